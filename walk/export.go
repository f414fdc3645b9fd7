// Export Table (spec.md §4.5, §3 "Export Record"): per-thread regions
// of a shared table recording (destination rank, local index,
// node-list) triples, with coalescing of contiguous same-destination
// exports. No locking: each thread writes only into its own region
// (spec.md §5 "Export table: partitioned per thread; no locking").
package walk

import (
	"github.com/cosmowalk/treewalk/cluster"
	"github.com/cosmowalk/treewalk/cmn/cos"
	"github.com/cosmowalk/treewalk/cmn/debug"
	"github.com/cosmowalk/treewalk/memsys"
)

// ExportRecord is spec.md §3's fixed-size export tuple.
type ExportRecord struct {
	Rank      int
	OriginIdx int
	NodeList  [cos.NodeListLength]int
}

// exportRegion is one thread's exclusive slice of the export table.
type exportRegion struct {
	records []ExportRecord // capacity == bunchSize
	n       int            // Nexport for this thread

	// Coalescing state: the most recent record written during the
	// *current* particle's visit, so a second pseudo-node hit on the
	// same destination rank fills NodeList[1] instead of allocating a
	// new record (spec.md §4.5 "Coalescing rule").
	lastOriginIdx int
	lastRank      int
	lastRecordIdx int
}

func newExportRegion(bunchSize int, arena *memsys.Arena) *exportRegion {
	return &exportRegion{
		records:       memsys.CarveT[ExportRecord](arena, bunchSize),
		lastOriginIdx: -1,
		lastRank:      -1,
		lastRecordIdx: -1,
	}
}

// resetCoalesce must be called by the caller at the start of each new
// particle's visit so the coalescing rule only ever looks at records
// from the *current* particle (spec.md invariant: "Export records for
// one originating particle form a contiguous run within a single
// thread's region").
func (r *exportRegion) resetCoalesce() {
	r.lastOriginIdx = -1
	r.lastRank = -1
	r.lastRecordIdx = -1
}

// ExportTable is the full table: one region per thread.
type ExportTable struct {
	regions []*exportRegion
	self    int // this rank's id; every export destination must differ
}

// NewExportTable allocates bunchSize records per thread from arena.
func NewExportTable(threads, bunchSize, self int, arena *memsys.Arena) *ExportTable {
	t := &ExportTable{regions: make([]*exportRegion, threads), self: self}
	for i := range t.regions {
		t.regions[i] = newExportRegion(bunchSize, arena)
	}
	return t
}

// BeginParticle resets thread tid's coalescing state for a new particle
// visit. The top-tree runner calls this once per particle before
// walking it.
func (t *ExportTable) BeginParticle(tid int) { t.regions[tid].resetCoalesce() }

// Count returns thread tid's current Nexport.
func (t *ExportTable) Count(tid int) int { return t.regions[tid].n }

// RollbackBy undoes the last n records written by thread tid (spec.md
// §4.6 top-tree runner: "rolls back its export count by
// NThisParticleExport" on buffer-full).
func (t *ExportTable) RollbackBy(tid, n int) {
	r := t.regions[tid]
	debug.Assertf(n <= r.n, "walk: rollback %d exceeds Nexport %d", n, r.n)
	r.n -= n
	r.resetCoalesce()
}

// Export records an export of originIdx to the rank owning
// pseudoNode's sub-domain, applying the coalescing rule. Returns
// ErrBufferFull if the thread's region is exhausted (spec.md §4.5
// "Capacity"). Fatal if called from any phase other than TOPTREE, or
// if the destination would be self, or if the pseudo-node's owner is
// unknown to the top-leaf map.
func (t *ExportTable) Export(tid int, phase Phase, originIdx int, tree cluster.Tree, pseudoNode cluster.Node) error {
	if phase != TopTree {
		panic(fatal(ErrProtocol, "walk: Export called outside TOPTREE"))
	}
	owner, ok := tree.TopLeafMap().Lookup(pseudoNode.PseudoLeafID())
	if !ok {
		panic(fatal(ErrProtocol, "walk: pseudo-node has no top-leaf-map entry"))
	}
	debug.Assertf(owner.Rank != t.self, "walk: export destination rank %d equals self", owner.Rank)

	r := t.regions[tid]
	if r.lastOriginIdx == originIdx && r.lastRank == owner.Rank && r.records[r.lastRecordIdx].NodeList[1] == cos.NoEntry {
		r.records[r.lastRecordIdx].NodeList[1] = owner.RemoteNodeID
		return nil
	}
	if r.n == len(r.records) {
		return ErrBufferFull
	}
	idx := r.n
	r.records[idx] = ExportRecord{
		Rank:      owner.Rank,
		OriginIdx: originIdx,
		NodeList:  [cos.NodeListLength]int{owner.RemoteNodeID, cos.NoEntry},
	}
	r.n++
	r.lastOriginIdx = originIdx
	r.lastRank = owner.Rank
	r.lastRecordIdx = idx
	return nil
}

// Records returns thread tid's valid export records (records[:n]).
func (t *ExportTable) Records(tid int) []ExportRecord { return t.regions[tid].records[:t.regions[tid].n] }

// Threads returns how many thread regions this table has.
func (t *ExportTable) Threads() int { return len(t.regions) }

// Each calls fn for every valid record across every thread, in
// thread-id order — the order the top-tree runner's own output is
// defined to have (spec.md §3 "Invariants").
func (t *ExportTable) Each(fn func(tid int, rec *ExportRecord)) {
	for tid, r := range t.regions {
		for i := range r.records[:r.n] {
			fn(tid, &r.records[i])
		}
	}
}

// Reset clears every thread's region back to empty, keeping the arena's
// backing pages, so the next top-tree phase of a later outer-loop
// iteration can reuse the same table after this iteration's records
// have been exchanged and reduced (spec.md §4.7's per-iteration drain).
func (t *ExportTable) Reset() {
	for _, r := range t.regions {
		r.n = 0
		r.resetCoalesce()
	}
}

// Total returns the total export count across every thread.
func (t *ExportTable) Total() int {
	n := 0
	for _, r := range t.regions {
		n += r.n
	}
	return n
}
