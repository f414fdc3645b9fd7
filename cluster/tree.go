package cluster

// NodeKind is the tree's per-node discriminator. spec.md §9 directs
// porting the tag field as "a sum type with explicit indices rather than
// pointer chasing" instead of the original's polymorphic pointer union.
type NodeKind uint8

const (
	// Leaf holds particles directly; descend no further, enumerate its
	// particle indices.
	Leaf NodeKind = iota
	// Pseudo stands in for a remote sub-domain; cannot be descended
	// locally, must be exported (spec.md §4.3).
	Pseudo
	// Internal is an ordinary internal node of the local tree.
	Internal
	// TopInternal is an internal node of the (globally replicated)
	// top-tree, walked only during the TOPTREE phase (spec.md §4.3).
	TopInternal
)

// Node is one node of the spatial tree, as spec.md §3 "Tree Node
// (external)" describes it: center, half-side length, sibling link,
// first-child link, occupancy count, kind, top-level flags, and an
// optional cached hmax.
type Node interface {
	Center() Vec3
	// HalfLen is the node's half-side length (its bounding cube extends
	// Center()±HalfLen() on every axis).
	HalfLen() float64
	// Sibling is the node id to continue to when this node's subtree is
	// exhausted or skipped. A last child's Sibling is its parent's
	// Sibling; -1 only where the whole walk ends.
	Sibling() int
	// FirstChild is the first child's node id; meaningless for Leaf.
	FirstChild() int
	// Occupancy is the number of particles this node's subtree
	// accounts for.
	Occupancy() int
	Kind() NodeKind
	// TopLevel reports whether this node is part of the (shallow,
	// globally replicated) top-tree.
	TopLevel() bool
	// InternalTopLevel reports whether this TopLevel node is internal
	// to the top-tree rather than a Pseudo leaf of it.
	InternalTopLevel() bool
	// HmaxValid reports whether Hmax has been computed for this node's
	// subtree; required by symmetric walks (spec.md §4.4 precondition).
	HmaxValid() bool
	// Hmax is the maximum Hsml among particles in this node's subtree.
	// Only meaningful when HmaxValid is true.
	Hmax() float64
	// LeafParticles returns the particle indices directly owned by a
	// Leaf node. Undefined for non-leaf kinds.
	LeafParticles() []int
	// PseudoLeafID returns the top-leaf identifier a Pseudo node stands
	// in for, used to look it up in the TopLeafMap. Undefined for
	// non-Pseudo kinds.
	PseudoLeafID() int
}

// TopLeafOwner is the (owner rank, remote node id) pair a pseudo-node
// resolves to, per spec.md §3 "Top Leaf Map (external)".
type TopLeafOwner struct {
	Rank         int
	RemoteNodeID int
}

// TopLeafMap maps a pseudo-node identifier to its owning rank and the
// remote tree's node id to enter at.
type TopLeafMap interface {
	Lookup(pseudoLeafID int) (TopLeafOwner, bool)
}

// Tree is the spatial tree the engine walks. spec.md §1 places its
// builder out of scope; the engine only ever reads through this
// interface.
type Tree interface {
	Root() int
	LastNode() int
	NumParticles() int
	// Mask is the bitmask of particle type-tags this tree's leaves may
	// contain; visitors require Mask to be a superset of their own mask
	// (spec.md §4.4 precondition).
	Mask() int
	// BoxSize is the periodic box side length; <=0 means non-periodic.
	BoxSize() float64
	Node(id int) Node
	TopLeafMap() TopLeafMap
}
