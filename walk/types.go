// Package walk is the distributed tree-walk engine itself: the Queue
// Builder, Node Culler, Neighbour Finder, Visitor Dispatcher, Export
// Table, the three Phase Runners, Exchange orchestration, the Outer
// Driver, and the adaptive hsml loop (spec.md §4). It is grounded on
// aistore's xaction shape (xact/xs/tcb.go, xact/xs/tcobjs.go): a
// factory-free but otherwise identical begin/run/finish lifecycle, a
// sync.WaitGroup for "starting up", atomic reference counts for
// "finishing" — here repurposed from cross-target object-copy
// completion tracking to cross-rank export/reduce completion tracking.
package walk

import (
	"github.com/google/uuid"

	"github.com/cosmowalk/treewalk/cluster"
	"github.com/cosmowalk/treewalk/cmn/cos"
)

// Phase drives Finder behaviour (spec.md §4.3).
type Phase uint8

const (
	TopTree Phase = iota
	Primary
	Ghosts
)

func (p Phase) String() string {
	switch p {
	case TopTree:
		return "toptree"
	case Primary:
		return "primary"
	case Ghosts:
		return "ghosts"
	default:
		return "unknown"
	}
}

// ReduceMode tells a Reduce callback which return leg produced the
// result it is merging (spec.md §4.6, §6 "reduce(i, result, mode)").
type ReduceMode uint8

const (
	ReducePrimary ReduceMode = iota
	ReduceGhosts
)

// QueryHeader is the fixed prefix of every Query: position and the
// node-list copied from the originating export record (spec.md §3
// "First fields of a Query include position and the node-list").
type QueryHeader struct {
	Pos      cluster.Vec3
	NodeList [cos.NodeListLength]int
}

// Query is the payload sent to (or evaluated against, locally) a
// remote entry node. Extra holds kernel-specific fields, byte-offset
// sliced by the visitor's own Fill/NgbIter callbacks (spec.md §9
// "dispatch uses byte-offset slicing into the query/result buffers").
// len(Extra) must be a multiple of 8 (spec.md §3).
type Query struct {
	QueryHeader
	Extra []byte
}

// ResultHeader is the fixed prefix of every Result: an identity echo
// that the Primary Runner sets from the particle's ID (spec.md §3). No
// code compares it against the query's particle.
type ResultHeader struct {
	IDEcho int64
}

// Result is the payload a Secondary Runner (or the local Primary leg)
// produces for one export record.
type Result struct {
	ResultHeader
	Extra []byte
}

// IterState is the record handed to a user's NgbIter callback: seeded
// once per Query with Other==-1 so the kernel can set Hsml/Mask/
// Symmetric, then once per in-range candidate (spec.md §4.4).
type IterState struct {
	Hsml      float64
	Mask      int
	Symmetric bool

	// Other is the candidate particle index, or -1 on the seed call.
	Other int
	R2    float64
	R     float64
	// Delta is the per-axis periodic displacement query-minus-candidate.
	Delta cluster.Vec3
}

// LocalCtx is per-thread scratch state threaded through Visit/NgbIter,
// matching spec.md §6's "local" parameter.
type LocalCtx struct {
	ThreadID int
	Data     any
}

// Visitor is the capability set a kernel (gravity, density, FoF, ...)
// supplies. Implemented "as a record of function handles plus an
// opaque user-data pointer — not inheritance" per spec.md §9.
type Visitor struct {
	// HasWork optionally filters the active set (spec.md §4.1).
	HasWork func(i int) bool
	// Fill populates kernel-specific Query.Extra fields after the
	// engine has set Pos/NodeList.
	Fill func(i int, q *Query)
	// Visit drives the descent for one query; usually VisitNgbiter.
	// Returns 0, or -1 on export-buffer-full.
	Visit func(q *Query, r *Result, local *LocalCtx) int
	// NgbIter is called once with Other==-1 to seed Hsml/Mask/
	// Symmetric, then once per in-range neighbour.
	NgbIter func(q *Query, r *Result, iter *IterState, local *LocalCtx)
	// Reduce merges a partial Result into particle i's owner state.
	Reduce func(i int, r *Result, mode ReduceMode, w *Walk)
	// Preprocess/Postprocess are optional per-particle hooks run
	// outside the walk proper.
	Preprocess  func(i int)
	Postprocess func(i int)

	QuerySize  int
	ResultSize int

	// NoNgblist skips neighbour-buffer allocation for list-free
	// visitors (VisitNolistNgbiter); spec.md §6.
	NoNgblist bool
	// RepeatDisallowed forces evaluated-mask allocation on the first
	// iteration; N/A to the top-tree variant (spec.md §6).
	RepeatDisallowed bool
}

// RunID correlates one outer-driver Run's logs and metrics across
// ranks, mirroring aistore xaction UUIDs (xact/xs/tcb.go's p.UUID()).
type RunID string

func newRunID() RunID { return RunID(uuid.NewString()) }
