// Package reftree is the engine's one concrete Tree implementation,
// existing only because spec.md places the real tree builder out of
// scope (§1 "Out of scope (external collaborators)") while a complete,
// testable repository still needs something to drive the end-to-end
// scenarios of spec.md §8. It is a static, non-adaptive octree over an
// in-memory particle table, with a synthetic top-leaf map that splits
// the root's eight octants across N simulated ranks.
//
// Node representation follows spec.md §9's "Node traversal state"
// design note — a sum type (NodeKind) plus explicit integer child/
// sibling indices into a flat slice, rather than pointer chasing —
// structurally grounded on lvlath/core's explicit-index Vertex/Edge
// convention (no pointer fields, everything addressed by id).
package reftree

import (
	"math"
	"sort"

	"github.com/cosmowalk/treewalk/cluster"
)

type node struct {
	center     cluster.Vec3
	halfLen    float64
	sibling    int
	firstChild int
	occupancy  int
	kind       cluster.NodeKind
	topLevel   bool
	internal   bool // InternalTopLevel, meaningful only when topLevel
	hmaxValid  bool
	hmax       float64
	particles  []int
	octant     int // index into the shared octant table; -1 if not a top-level octant root
}

func (n *node) Center() cluster.Vec3       { return n.center }
func (n *node) HalfLen() float64           { return n.halfLen }
func (n *node) Sibling() int               { return n.sibling }
func (n *node) FirstChild() int            { return n.firstChild }
func (n *node) Occupancy() int             { return n.occupancy }
func (n *node) Kind() cluster.NodeKind     { return n.kind }
func (n *node) TopLevel() bool             { return n.topLevel }
func (n *node) InternalTopLevel() bool     { return n.internal }
func (n *node) HmaxValid() bool            { return n.hmaxValid }
func (n *node) Hmax() float64              { return n.hmax }
func (n *node) LeafParticles() []int       { return n.particles }
func (n *node) PseudoLeafID() int          { return n.octant }

// particle is the table-row implementation of cluster.Particle.
type particle struct {
	pos     cluster.Vec3
	typeTag int
	garbage bool
	hsml    float64
	id      int64
}

func (p *particle) Pos() cluster.Vec3 { return p.pos }
func (p *particle) TypeTag() int      { return p.typeTag }
func (p *particle) Garbage() bool     { return p.garbage }
func (p *particle) Hsml() float64     { return p.hsml }
func (p *particle) ID() int64         { return p.id }

// Table is the in-memory cluster.ParticleTable backing a Shared tree.
type Table struct {
	rows []particle
}

func (t *Table) Particle(i int) cluster.Particle { return &t.rows[i] }
func (t *Table) Len() int                        { return len(t.rows) }

// Shared is the full octree plus the octant-to-rank assignment shared
// by every simulated rank's view; Build returns one, from which
// NewRankView produces per-rank cluster.Tree facades.
type Shared struct {
	nodes    []node
	table    *Table
	boxSize  float64
	mask     int
	numRanks int
	// ownerOfOctant[i] is the rank owning octant root nodes[octantIDs[i]].
	ownerOfOctant [8]int
	octantIDs     [8]int
	rootID        int
}

// BuildOptions configures Build.
type BuildOptions struct {
	LeafSize int // particles per leaf before stopping subdivision
	MaxDepth int
	BoxSize  float64 // <=0: non-periodic, bounding box derived from data
	Mask     int     // tree-wide type mask (spec.md §4.4 precondition)
}

// Build constructs a full octree over positions/hsml/typeTags, then
// assigns the root's eight octants round-robin to numRanks simulated
// ranks. The same global node array backs every rank's view; per-rank
// differences (which octants are Pseudo vs. locally descendable) are
// applied by the facade in view.go, not by duplicating storage.
func Build(positions []cluster.Vec3, hsml []float64, typeTags []int, numRanks int, opt BuildOptions) *Shared {
	if opt.LeafSize <= 0 {
		opt.LeafSize = 8
	}
	if opt.MaxDepth <= 0 {
		opt.MaxDepth = 24
	}
	n := len(positions)
	table := &Table{rows: make([]particle, n)}
	for i := range positions {
		table.rows[i] = particle{pos: positions[i], hsml: hsml[i], typeTag: typeTags[i], id: int64(i)}
	}

	sh := &Shared{table: table, boxSize: opt.BoxSize, mask: opt.Mask, numRanks: numRanks}
	center, halfLen := boundingCube(positions, opt.BoxSize)

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sh.buildRecursive(idx, center, halfLen, 0, opt, true)

	// The root we just appended is nodes[len-1] by construction below
	// (buildRecursive appends children before returning the parent id),
	// so find it explicitly instead of assuming index 0.
	rootID := sh.rootID
	sh.nodes[rootID].topLevel = true
	sh.nodes[rootID].internal = true

	// Assign octants (root's direct children) round-robin to ranks.
	if numRanks < 1 {
		numRanks = 1
	}
	child := sh.nodes[rootID].firstChild
	oct := 0
	for child != -1 && oct < 8 {
		sh.nodes[child].topLevel = true
		sh.nodes[child].internal = (sh.nodes[child].kind != cluster.Leaf)
		sh.nodes[child].octant = oct
		sh.octantIDs[oct] = child
		sh.ownerOfOctant[oct] = oct % numRanks
		child = sh.nodes[child].sibling
		oct++
	}
	for ; oct < 8; oct++ {
		sh.octantIDs[oct] = -1
		sh.ownerOfOctant[oct] = 0
	}

	sh.computeHmax(rootID)

	// Thread the sibling links: a last child continues to its parent's
	// sibling, so a descent that runs off the end of a child list resumes
	// after the parent's subtree. Parents sit at higher indices than their
	// children, so a descending scan threads every parent first.
	for i := len(sh.nodes) - 1; i >= 0; i-- {
		c := sh.nodes[i].firstChild
		if c == -1 {
			continue
		}
		for sh.nodes[c].sibling != -1 {
			c = sh.nodes[c].sibling
		}
		sh.nodes[c].sibling = sh.nodes[i].sibling
	}
	return sh
}

func (sh *Shared) buildRecursive(idx []int, center cluster.Vec3, halfLen float64, depth int, opt BuildOptions, isRoot bool) int {
	if len(idx) <= opt.LeafSize || depth >= opt.MaxDepth {
		id := sh.appendLeaf(center, halfLen, idx)
		if isRoot {
			sh.rootID = id
		}
		return id
	}

	// Partition idx into up to 8 octants by sign of (pos-center) per axis.
	buckets := make([][]int, 8)
	for _, i := range idx {
		p := sh.table.rows[i].pos
		b := 0
		for a := 0; a < 3; a++ {
			if p[a] >= center[a] {
				b |= 1 << a
			}
		}
		buckets[b] = append(buckets[b], i)
	}

	childIDs := make([]int, 0, 8)
	childHalf := halfLen / 2
	for b := 0; b < 8; b++ {
		if len(buckets[b]) == 0 {
			continue
		}
		childCenter := center
		for a := 0; a < 3; a++ {
			if b&(1<<a) != 0 {
				childCenter[a] += childHalf
			} else {
				childCenter[a] -= childHalf
			}
		}
		cid := sh.buildRecursive(buckets[b], childCenter, childHalf, depth+1, opt, false)
		childIDs = append(childIDs, cid)
	}
	// Chain siblings in bucket order; last child's sibling stays -1 until
	// Build threads it to the parent's sibling.
	sort.Ints(childIDs) // deterministic order for test reproducibility
	for k := 0; k < len(childIDs)-1; k++ {
		sh.nodes[childIDs[k]].sibling = childIDs[k+1]
	}

	occ := 0
	for _, i := range idx {
		_ = i
		occ++
	}
	id := sh.appendNode(node{
		center:     center,
		halfLen:    halfLen,
		sibling:    -1,
		firstChild: childIDs[0],
		occupancy:  occ,
		kind:       cluster.Internal,
		octant:     -1,
	})
	if isRoot {
		sh.rootID = id
	}
	return id
}

func (sh *Shared) appendLeaf(center cluster.Vec3, halfLen float64, idx []int) int {
	own := make([]int, len(idx))
	copy(own, idx)
	return sh.appendNode(node{
		center:     center,
		halfLen:    halfLen,
		sibling:    -1,
		firstChild: -1,
		occupancy:  len(idx),
		kind:       cluster.Leaf,
		particles:  own,
		octant:     -1,
	})
}

func (sh *Shared) appendNode(n node) int {
	sh.nodes = append(sh.nodes, n)
	return len(sh.nodes) - 1
}

// computeHmax fills hmax/hmaxValid bottom-up (a post-order scan over
// the flat array works because children are always appended before
// their parent by buildRecursive).
func (sh *Shared) computeHmax(rootID int) {
	for i := range sh.nodes {
		n := &sh.nodes[i]
		if n.kind == cluster.Leaf {
			m := 0.0
			for _, p := range n.particles {
				if h := sh.table.rows[p].hsml; h > m {
					m = h
				}
			}
			n.hmax = m
			n.hmaxValid = true
			continue
		}
		m := 0.0
		c := n.firstChild
		for c != -1 {
			if sh.nodes[c].hmax > m {
				m = sh.nodes[c].hmax
			}
			c = sh.nodes[c].sibling
		}
		n.hmax = m
		n.hmaxValid = true
	}
	_ = rootID
}

func boundingCube(positions []cluster.Vec3, boxSize float64) (cluster.Vec3, float64) {
	if boxSize > 0 {
		return cluster.Vec3{boxSize / 2, boxSize / 2, boxSize / 2}, boxSize / 2
	}
	var lo, hi cluster.Vec3
	lo = positions[0]
	hi = positions[0]
	for _, p := range positions[1:] {
		for a := 0; a < 3; a++ {
			if p[a] < lo[a] {
				lo[a] = p[a]
			}
			if p[a] > hi[a] {
				hi[a] = p[a]
			}
		}
	}
	var center cluster.Vec3
	maxHalf := 0.0
	for a := 0; a < 3; a++ {
		center[a] = (lo[a] + hi[a]) / 2
		if half := (hi[a] - lo[a]) / 2; half > maxHalf {
			maxHalf = half
		}
	}
	return center, math.Max(maxHalf, 1e-9)
}
