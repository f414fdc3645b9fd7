// Neighbour Finder (spec.md §4.3): single-node tree descent that emits
// neighbour candidates, exports pseudo-particles at sub-domain
// boundaries, and respects the current walk phase.
package walk

import "github.com/cosmowalk/treewalk/cluster"

// FindNeighbours descends from startNode under phase. candidates
// accumulates leaf particle indices (PRIMARY/GHOSTS only; TOPTREE
// never appends). Returns the number of candidates appended by this
// call, or ErrBufferFull if phase==TopTree and the export table ran
// out of room (the only condition under which this can happen — see
// spec.md §4.3).
//
// The tree's Node interface makes it structurally impossible to reach
// a raw particle or pseudo handle except through a parent's
// FirstChild/Sibling links (spec.md §4.3's "encountering a raw
// particle handle or pseudo handle via the no slot... is fatal" has no
// code path here: there is no alternate way to obtain a node id).
func FindNeighbours(
	tree cluster.Tree,
	startNode int,
	phase Phase,
	queryPos cluster.Vec3,
	hsml float64,
	symmetric bool,
	boxSize float64,
	candidates *[]int,
	exports *ExportTable,
	tid int,
	originIdx int,
) (int, error) {
	appended := 0
	no := startNode
	first := true

	for no != -1 {
		node := tree.Node(no)

		if phase == Ghosts && !first && node.TopLevel() {
			// Branch exhausted: we have stepped back out of the local
			// subtree the remote entry node rooted, into the
			// (replicated) top-tree again.
			break
		}

		if !CullNode(queryPos, hsml, symmetric, node, boxSize) {
			no = node.Sibling()
			first = false
			continue
		}

		switch phase {
		case TopTree:
			switch {
			case node.Kind() == cluster.Pseudo:
				if err := exports.Export(tid, phase, originIdx, tree, node); err != nil {
					return appended, err
				}
				no = node.Sibling()
			default:
				child := node.FirstChild()
				if child != -1 && tree.Node(child).TopLevel() {
					no = child
				} else {
					// Bottom of the replicated top-tree on our own
					// territory: local work belongs to the Primary
					// Runner, nothing to export here.
					no = node.Sibling()
				}
			}

		case Primary:
			switch node.Kind() {
			case cluster.Leaf:
				*candidates = append(*candidates, node.LeafParticles()...)
				appended += len(node.LeafParticles())
				no = node.Sibling()
			case cluster.Pseudo:
				// Already exported during the top-tree phase.
				no = node.Sibling()
			default:
				no = node.FirstChild()
			}

		case Ghosts:
			switch node.Kind() {
			case cluster.Leaf:
				*candidates = append(*candidates, node.LeafParticles()...)
				appended += len(node.LeafParticles())
				no = node.Sibling()
			case cluster.Pseudo:
				panic(fatal(ErrProtocol, "walk: pseudo-node encountered in GHOSTS mode"))
			default:
				no = node.FirstChild()
			}
		}
		first = false
	}
	return appended, nil
}
