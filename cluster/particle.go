// Package cluster declares the interfaces the engine consumes and never
// implements itself: the tree, the particle table, and the top-leaf
// ownership map (spec.md §1 "Out of scope (external collaborators)").
// This mirrors aistore's own `cluster` package, which plays the same
// role as the interface boundary between an xaction (here, a Walk) and
// everything it depends on but does not own — see the `cluster.Xact`,
// `cluster.LOM` boundary types imported throughout xact/xs/tcb.go and
// xact/xs/tcobjs.go.
package cluster

// Vec3 is a 3D double-precision position, matching spec.md §3's
// "position (3D, double)".
type Vec3 [3]float64

// Particle exposes the observable attributes the engine reads. It never
// mutates a Particle directly; all writes happen through a visitor's
// Result payload or its own private reduction target (spec.md §5).
type Particle interface {
	Pos() Vec3
	// TypeTag is a small bitmaskable integer used by the visitor's
	// type mask (spec.md §4.4).
	TypeTag() int
	// Garbage reports whether this slot is a tombstoned particle that
	// the queue builder and visitor dispatcher must skip.
	Garbage() bool
	// Hsml is the particle's current adaptive search radius.
	Hsml() float64
	// ID is a stable identity, echoed into Result payloads by the
	// Primary Runner in every build (spec.md §3 "Query/Result Payloads").
	ID() int64
}

// ParticleTable is the engine's read access to the particle store,
// indexed by the same local index space the tree's leaves reference.
type ParticleTable interface {
	Particle(i int) Particle
	Len() int
}
