package reftree

import "github.com/cosmowalk/treewalk/cluster"

// pseudoNode is the facade a rank sees in place of an octant root it
// does not own: same geometry (needed by the node culler), but its Kind
// reports Pseudo and it cannot be descended.
type pseudoNode struct{ base *node }

func (p *pseudoNode) Center() cluster.Vec3   { return p.base.center }
func (p *pseudoNode) HalfLen() float64       { return p.base.halfLen }
func (p *pseudoNode) Sibling() int           { return p.base.sibling }
func (p *pseudoNode) FirstChild() int        { return -1 }
func (p *pseudoNode) Occupancy() int         { return p.base.occupancy }
func (p *pseudoNode) Kind() cluster.NodeKind { return cluster.Pseudo }
func (p *pseudoNode) TopLevel() bool         { return true }
func (p *pseudoNode) InternalTopLevel() bool { return false }
func (p *pseudoNode) HmaxValid() bool        { return p.base.hmaxValid }
func (p *pseudoNode) Hmax() float64          { return p.base.hmax }
func (p *pseudoNode) LeafParticles() []int   { return nil }
func (p *pseudoNode) PseudoLeafID() int      { return p.base.octant }

// rankTree is the cluster.Tree a single simulated rank sees: every node
// is real except the eight octant roots owned by other ranks, which
// appear as Pseudo.
type rankTree struct {
	sh   *Shared
	rank int
}

// NewRankView returns the cluster.Tree facade simulated rank `rank`
// should walk against sh's shared octree.
func NewRankView(sh *Shared, rank int) cluster.Tree { return &rankTree{sh: sh, rank: rank} }

func (rt *rankTree) Root() int         { return rt.sh.rootID }
func (rt *rankTree) LastNode() int     { return len(rt.sh.nodes) - 1 }
func (rt *rankTree) NumParticles() int { return rt.sh.table.Len() }
func (rt *rankTree) Mask() int         { return rt.sh.mask }
func (rt *rankTree) BoxSize() float64  { return rt.sh.boxSize }

func (rt *rankTree) Node(id int) cluster.Node {
	n := &rt.sh.nodes[id]
	if n.octant >= 0 && rt.sh.ownerOfOctant[n.octant] != rt.rank {
		return &pseudoNode{base: n}
	}
	return n
}

func (rt *rankTree) TopLeafMap() cluster.TopLeafMap { return &topLeafMap{sh: rt.sh} }

type topLeafMap struct{ sh *Shared }

func (m *topLeafMap) Lookup(pseudoLeafID int) (cluster.TopLeafOwner, bool) {
	if pseudoLeafID < 0 || pseudoLeafID >= len(m.sh.octantIDs) {
		return cluster.TopLeafOwner{}, false
	}
	remote := m.sh.octantIDs[pseudoLeafID]
	if remote == -1 {
		return cluster.TopLeafOwner{}, false
	}
	return cluster.TopLeafOwner{Rank: m.sh.ownerOfOctant[pseudoLeafID], RemoteNodeID: remote}, true
}

// ParticleTable returns the shared particle table, the same for every
// rank view (particles are not partitioned by the reference tree; only
// tree ownership is).
func (sh *Shared) ParticleTable() cluster.ParticleTable { return sh.table }

// NumRanks returns how many simulated ranks this Shared tree was built
// for.
func (sh *Shared) NumRanks() int { return sh.numRanks }
