// Visitor Dispatcher (spec.md §4.4): generic pair-enumeration wrapper
// that drives the user ngbiter over the finder's candidates with
// periodic distance accounting.
package walk

import (
	"math"

	"github.com/cosmowalk/treewalk/cluster"
	"github.com/cosmowalk/treewalk/cmn/cos"
	"github.com/cosmowalk/treewalk/cmn/debug"
)

// VisitNgbiter is the standard Visit implementation: it seeds iter via
// one NgbIter(other=-1) call, descends every NodeList entry through the
// Finder, and calls NgbIter once per in-range candidate. Returns -1 the
// instant any NodeList entry's Finder call reports the export table
// full (propagated immediately, per spec.md §4.4); 0 otherwise.
// interactions is incremented once per NgbIter candidate call, for the
// caller's per-particle aggregation (spec.md §4.6 "per-particle
// interaction min/max/sum").
func VisitNgbiter(
	tree cluster.Tree,
	table cluster.ParticleTable,
	v *Visitor,
	q *Query,
	r *Result,
	local *LocalCtx,
	phase Phase,
	exports *ExportTable,
	tid int,
	originIdx int,
	boxSize float64,
	interactions *int,
) int {
	var iter IterState
	iter.Other = -1
	v.NgbIter(q, r, &iter, local)

	debug.Assertf(tree.Mask()&iter.Mask == iter.Mask, "walk: tree mask %#x is not a superset of visitor mask %#x", tree.Mask(), iter.Mask)
	if iter.Symmetric {
		root := tree.Node(tree.Root())
		debug.Assert(root.HmaxValid(), "walk: symmetric walk requires a hmax-valid tree")
	}

	for li := 0; li < cos.NodeListLength; li++ {
		entry := q.NodeList[li]
		if entry == cos.NoEntry {
			continue
		}
		var candidates []int
		if _, err := FindNeighbours(tree, entry, phase, q.Pos, iter.Hsml, iter.Symmetric, boxSize, &candidates, exports, tid, originIdx); err != nil {
			return -1
		}
		for _, cand := range candidates {
			p := table.Particle(cand)
			if p.Garbage() {
				continue
			}
			if iter.Mask != 0 && p.TypeTag()&iter.Mask == 0 {
				continue
			}
			var delta cluster.Vec3
			outside := false
			r2 := 0.0
			pos := p.Pos()
			for a := 0; a < 3; a++ {
				d := cos.Wrap1D(q.Pos[a]-pos[a], boxSize)
				if math.Abs(d) > iter.Hsml {
					outside = true
					break
				}
				delta[a] = d
				r2 += d * d
			}
			if outside || r2 > iter.Hsml*iter.Hsml {
				continue
			}
			iter.Other = cand
			iter.R2 = r2
			iter.R = math.Sqrt(r2)
			iter.Delta = delta
			v.NgbIter(q, r, &iter, local)
			*interactions++
		}
	}
	return 0
}

// VisitNolistNgbiter performs the same descent without buffering
// candidates, for kernels that adapt the search radius mid-walk
// (spec.md §4.4 "list-free variant"). Because the radius may change
// between candidates, culling re-reads iter.Hsml at every node instead
// of capturing it once.
func VisitNolistNgbiter(
	tree cluster.Tree,
	table cluster.ParticleTable,
	v *Visitor,
	q *Query,
	r *Result,
	local *LocalCtx,
	boxSize float64,
	interactions *int,
) int {
	var iter IterState
	iter.Other = -1
	v.NgbIter(q, r, &iter, local)
	debug.Assertf(tree.Mask()&iter.Mask == iter.Mask, "walk: tree mask %#x is not a superset of visitor mask %#x", tree.Mask(), iter.Mask)

	for li := 0; li < cos.NodeListLength; li++ {
		entry := q.NodeList[li]
		if entry == cos.NoEntry {
			continue
		}
		findInline(tree, entry, q.Pos, boxSize, &iter, func(pidx int) {
			p := table.Particle(pidx)
			if p.Garbage() {
				return
			}
			if iter.Mask != 0 && p.TypeTag()&iter.Mask == 0 {
				return
			}
			var delta cluster.Vec3
			outside := false
			r2 := 0.0
			pos := p.Pos()
			for a := 0; a < 3; a++ {
				d := cos.Wrap1D(q.Pos[a]-pos[a], boxSize)
				if math.Abs(d) > iter.Hsml {
					outside = true
					break
				}
				delta[a] = d
				r2 += d * d
			}
			if outside || r2 > iter.Hsml*iter.Hsml {
				return
			}
			iter.Other = pidx
			iter.R2 = r2
			iter.R = math.Sqrt(r2)
			iter.Delta = delta
			v.NgbIter(q, r, &iter, local)
			*interactions++
		})
	}
	return 0
}

// findInline descends PRIMARY-style (local subtree; pseudo nodes are
// never valid targets for a list-free local walk) calling process for
// every leaf particle encountered, re-reading iter.Hsml/Symmetric on
// every node so a kernel's mid-walk radius adjustment takes effect
// immediately rather than only on the next FindNeighbours call.
func findInline(tree cluster.Tree, startNode int, pos cluster.Vec3, boxSize float64, iter *IterState, process func(int)) {
	no := startNode
	for no != -1 {
		node := tree.Node(no)
		if !CullNode(pos, iter.Hsml, iter.Symmetric, node, boxSize) {
			no = node.Sibling()
			continue
		}
		switch node.Kind() {
		case cluster.Leaf:
			for _, p := range node.LeafParticles() {
				process(p)
			}
			no = node.Sibling()
		case cluster.Pseudo:
			no = node.Sibling()
		default:
			no = node.FirstChild()
		}
	}
}
