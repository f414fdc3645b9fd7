// Outer Driver (spec.md §4.8): the Run loop that ties the phase runners
// and exchange together. Primary runs exactly once; top-tree/exchange
// repeat until every rank's export table has drained, decided by a
// global done-flag reduction rather than any one rank's local view
// (spec.md §4.8 "a rank that finished early must keep answering other
// ranks' exchanges until the whole job is globally done").
package walk

import (
	"time"

	"code.hybscloud.com/atomix"

	"github.com/cosmowalk/treewalk/cmn/nlog"
	"github.com/cosmowalk/treewalk/walk/metrics"
)

// Run drives one complete outer-loop invocation over active to
// completion: Begin, optional Preprocess, the top-tree/exchange loop
// with Primary folded in on the first pass, optional Postprocess, and
// Finish. active and noGarbagePossible are spec.md §4.1's Queue Builder
// inputs.
func (w *Walk) Run(active []int, noGarbagePossible bool) error {
	w.ID = newRunID()
	if err := w.Begin(active, noGarbagePossible); err != nil {
		return err
	}
	defer func() {
		if err := w.Finish(); err != nil {
			nlog.Errorf("walk: finish run=%s: %v", w.ID, err)
		}
	}()

	if w.V.Preprocess != nil {
		t0 := time.Now()
		w.forEachParticle(w.V.Preprocess)
		w.Reporter.ObservePhase(metrics.PhasePreprocess, time.Since(t0))
	}

	primaryDone := false
	resumeFrom := 0
	for {
		w.bufferFull = false

		t0 := time.Now()
		next, err := w.runTopTree(resumeFrom)
		w.Reporter.ObservePhase(metrics.PhaseTopTree, time.Since(t0))
		if err != nil {
			return err
		}
		resumeFrom = next

		// Post the query round trip's receives/sends first, then run
		// Primary's purely local pass while it is in flight, and only
		// wait on the exchange once Primary returns (spec.md §2's
		// compute/communication overlap).
		pending, err := w.postQueryExchange()
		if err != nil {
			return err
		}

		if !primaryDone {
			t1 := time.Now()
			w.runPrimary()
			w.Reporter.ObservePhase(metrics.PhasePrimary, time.Since(t1))
			primaryDone = true
		}

		if err := w.finishQueryExchange(pending); err != nil {
			return err
		}

		w.Nexportfull++

		moreLocal := int64(0)
		if resumeFrom < len(w.ws.Indices) {
			moreLocal = 1
		}
		t2 := time.Now()
		total, err := w.Comm.AllreduceSum(moreLocal)
		w.Reporter.ObservePhase(metrics.PhaseWait, time.Since(t2))
		if err != nil {
			return err
		}
		if total == 0 {
			break
		}
	}

	if w.V.Postprocess != nil {
		t3 := time.Now()
		w.forEachParticle(w.V.Postprocess)
		w.Reporter.ObservePhase(metrics.PhasePostprocess, time.Since(t3))
	}

	nlog.Infof("walk: run=%s complete iterations=%d exports=%d", w.ID, w.Nexportfull, w.NexportSum)
	return nil
}

// forEachParticle runs fn over the work set in parallel, for
// Preprocess/Postprocess hooks that have no Query/Result shape of their
// own (spec.md §4.8 "optional parallel Preprocess/Postprocess").
func (w *Walk) forEachParticle(fn func(i int)) {
	n := len(w.ws.Indices)
	if n == 0 {
		return
	}
	chunk := dynamicChunk(n, w.Threads)
	var cursor atomix.Int64
	w.forkJoin(func(tid int) {
		for {
			begin := cursor.Add(chunk) - chunk
			if begin >= int64(n) {
				return
			}
			end := begin + chunk
			if end > int64(n) {
				end = int64(n)
			}
			for i := begin; i < end; i++ {
				fn(w.ws.Indices[i])
			}
		}
	})
}
