// Walk Descriptor (spec.md §3 "Walk Descriptor"): the long-lived handle
// a caller builds once and reuses across Run invocations, bundling the
// external collaborators (tree, particle table, communicator) with the
// engine's own per-run state (export table, work set, buffer-full and
// export-count bookkeeping).
package walk

import (
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"

	"github.com/cosmowalk/treewalk/cluster"
	"github.com/cosmowalk/treewalk/cmn"
	"github.com/cosmowalk/treewalk/cmn/nlog"
	"github.com/cosmowalk/treewalk/memsys"
	"github.com/cosmowalk/treewalk/transport"
	"github.com/cosmowalk/treewalk/walk/metrics"
)

// Walk is one engine instance bound to a tree/table/visitor/communicator
// quadruple. Begin/Run/Finish mirror the teacher's xaction lifecycle:
// Begin allocates the run's arenas, Run drives the outer loop to
// completion, Finish releases the arenas (spec.md §4.8).
type Walk struct {
	Tree   cluster.Tree
	Table  cluster.ParticleTable
	V      *Visitor
	Comm   transport.Communicator
	Config *cmn.Config
	Threads int
	Reporter *metrics.Reporter

	ID RunID

	exports     *ExportTable
	exportArena *memsys.Arena
	workArena   *memsys.Arena
	ws          *WorkSet

	began bool

	// bufferFull is reset at the start of every top-tree phase and set
	// sticky for the remainder of that iteration the instant any thread
	// rolls back on a full export table (spec.md §4.6).
	bufferFull bool

	// Nexportfull counts every outer-loop iteration of this Run, the
	// first one included (spec.md §4.8).
	Nexportfull int64
	// NexportSum accumulates the export records kept by each iteration's
	// top-tree phase, across every iteration of this Run. Records rolled
	// back on a full buffer are not counted; a particle walked again in a
	// later iteration counts again.
	NexportSum int64
}

// NewWalk constructs a Walk bound to its collaborators. Run calls Begin
// and Finish itself.
func NewWalk(tree cluster.Tree, table cluster.ParticleTable, v *Visitor, comm transport.Communicator, cfg *cmn.Config, threads int, reporter *metrics.Reporter) *Walk {
	if threads < 1 {
		threads = 1
	}
	return &Walk{
		Tree:     tree,
		Table:    table,
		V:        v,
		Comm:     comm,
		Config:   cfg,
		Threads:  threads,
		Reporter: reporter,
	}
}

// Begin validates the configuration, allocates this run's export and
// work-set arenas, and compacts the active list into the work set
// (spec.md §4.1, §4.6 "begin"). Fatal (ErrConfiguration) on bad payload
// sizes, a nil tree, or too little room for MinExportRecords. Tree mask
// and hmax compatibility are not checked here; VisitNgbiter asserts them
// on every query.
func (w *Walk) Begin(active []int, noGarbagePossible bool) error {
	if w.Tree == nil {
		return fatal(ErrConfiguration, "walk: begin called with no tree")
	}
	if w.V.QuerySize%8 != 0 || w.V.ResultSize%8 != 0 {
		return fatal(ErrConfiguration, "walk: query/result payload sizes must be multiples of 8")
	}

	recordSize := int(recordSizeBytes)

	// Buffer sizing (spec.md §4.6): an explicitly configured BunchSize
	// is honored as long as it fits the MPI-safe transfer ceiling; left
	// unset (<=0), it is derived from free memory instead. Either way
	// the result must clear MinExportRecords or begin refuses to run.
	bunch := w.Config.BunchSize
	ceilingBunch := cmn.CeilingBunchSize(recordSize, w.V.QuerySize, w.V.ResultSize, w.Config)
	if bunch <= 0 {
		free, err := cmn.FreeMemoryBytes()
		if err != nil {
			return fatalf(ErrConfiguration, err, "walk: query free memory for buffer sizing")
		}
		bunch = cmn.DeriveBunchSize(free, w.Threads, recordSize, w.V.QuerySize, w.V.ResultSize, w.Config)
	} else if bunch > ceilingBunch {
		bunch = ceilingBunch
	}
	if bunch < w.Config.MinExportRecords {
		return fatalf(ErrConfiguration, nil, "walk: bunch size %d below minimum %d export records", bunch, w.Config.MinExportRecords)
	}

	exportBytes := bunch * w.Threads * recordSize
	exportArena, err := memsys.NewArena(exportBytes)
	if err != nil {
		return fatalf(ErrConfiguration, err, "walk: allocate export arena (%d bytes)", exportBytes)
	}
	w.exportArena = exportArena
	w.exports = NewExportTable(w.Threads, bunch, w.Comm.Rank(), exportArena)

	n := len(active)
	workBytes := (2*n + w.Threads*(w.Threads+1) + 16) * 8 // slabs plus the compacted output, in ints
	workArena, err := memsys.NewArena(workBytes)
	if err != nil {
		_ = exportArena.Free()
		return fatalf(ErrConfiguration, err, "walk: allocate work-set arena (%d bytes)", workBytes)
	}
	w.workArena = workArena

	ws, err := BuildWorkSet(active, w.Table, w.V.HasWork, noGarbagePossible, w.Threads, workArena)
	if err != nil {
		_ = exportArena.Free()
		_ = workArena.Free()
		return err
	}
	w.ws = ws
	w.began = true
	w.bufferFull = false
	w.Nexportfull = 0
	w.NexportSum = 0
	nlog.Infof("walk: begin run=%s active=%d worklist=%d bunch=%d threads=%d", w.ID, n, len(ws.Indices), bunch, w.Threads)
	return nil
}

// recordSizeBytes is ExportRecord's footprint in the arena: one int for
// Rank, one for OriginIdx, cos.NodeListLength ints for NodeList.
const recordSizeBytes = (2 + 2) * 8

// Finish releases this run's arenas. Safe to call even if Begin never
// succeeded.
func (w *Walk) Finish() error {
	if !w.began {
		return nil
	}
	w.began = false
	var firstErr error
	if w.workArena != nil {
		if err := w.workArena.Free(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if w.exportArena != nil {
		if err := w.exportArena.Free(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// forkJoin runs fn once per thread id in [0,Threads) and waits for all
// of them, choosing between a busy-wait join (UseSpinLocks) and a
// sync.WaitGroup join per spec.md §5's build knob. The busy-wait variant
// is grounded on the lock-free queue package's own spin.Wait backoff
// loop paired with an atomix counter (code.hybscloud.com/spin,
// code.hybscloud.com/atomix), rather than a spin mutex: there is no
// shared critical section to guard here, only a join point.
func (w *Walk) forkJoin(fn func(tid int)) {
	n := w.Threads
	if n <= 1 {
		fn(0)
		return
	}
	if w.Config.UseSpinLocks {
		var remaining atomix.Int64
		remaining.Store(int64(n))
		for t := 0; t < n; t++ {
			t := t
			go func() {
				defer remaining.Add(-1)
				fn(t)
			}()
		}
		var sw spin.Wait
		for remaining.Load() > 0 {
			sw.Once()
		}
		return
	}
	var wg sync.WaitGroup
	wg.Add(n)
	for t := 0; t < n; t++ {
		t := t
		go func() {
			defer wg.Done()
			fn(t)
		}()
	}
	wg.Wait()
}
