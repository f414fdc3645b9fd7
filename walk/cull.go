// Node Culler (spec.md §4.2): decides whether a tree node's bounding
// region intersects the query's search sphere under periodic
// boundaries. Hot path; short-circuits per axis.
package walk

import (
	"math"

	"github.com/cosmowalk/treewalk/cluster"
	"github.com/cosmowalk/treewalk/cmn/cos"
)

// cullRadiusFactor is the node's circumscribing-sphere radius in units
// of its half-side length. spec.md §4.2 defines the radius as
// 0.5*len*(1+sqrt(3)) where len is the node's full side length; since
// half = len/2, that's (1+sqrt(3))*half.
const cullRadiusFactor = 1 + 1.7320508075688772

// CullNode reports whether node n's region can contain a particle
// within the query's search sphere: search radius Hsml, or
// max(Hsml, node.Hmax()) when symmetric is set (spec.md §4.2).
func CullNode(queryPos cluster.Vec3, hsml float64, symmetric bool, n cluster.Node, boxSize float64) bool {
	search := hsml
	if symmetric && n.HmaxValid() {
		if h := n.Hmax(); h > search {
			search = h
		}
	}

	center := n.Center()
	half := n.HalfLen()

	// Per-axis AABB-vs-expanded-box test, short-circuiting on the
	// first axis that proves no overlap.
	var delta cluster.Vec3
	for a := 0; a < 3; a++ {
		d := cos.Wrap1D(queryPos[a]-center[a], boxSize)
		delta[a] = d
		if math.Abs(d) > half+search {
			return false
		}
	}

	// Final tighter test: the node's circumscribing sphere at radius
	// (1+sqrt(3))*half, expanded by the search radius.
	r2 := cos.Sq(delta[0]) + cos.Sq(delta[1]) + cos.Sq(delta[2])
	radius := cullRadiusFactor*half + search
	return r2 <= radius*radius
}
