// Top-tree Runner (spec.md §4.6): the first phase of every outer-loop
// iteration. Walks every particle in the work set against the replicated
// top-tree only, recording export records for remote sub-domains the
// search sphere touches. Schedules itself with a hand-rolled dynamic
// schedule: a shared fetch-add cursor plus a shared chunk size that
// halves (floor 1) as the tail is approached, so no thread starves while
// another grinds through a dense neighbourhood.
package walk

import (
	"code.hybscloud.com/atomix"

	"github.com/cosmowalk/treewalk/cmn/cos"
)

const topTreeInitialChunk = int64(64)

// runTopTree walks ws.Indices[startIdx:] in TOPTREE mode. It returns the
// index (into w.ws.Indices) to resume from on the next call: len(ws) if
// every particle was enumerated without hitting a full export table, or
// one past the globally-minimum last-succeeded particle otherwise (spec.md
// §4.6 "the next-iteration starting point is min(lastSucceeded)+1,
// reduced with MIN across threads"). w.bufferFull is set sticky whenever
// any thread hits the buffer-full condition.
//
// A NoNgblist visitor never exports (its descent, VisitNolistNgbiter,
// silently steps over Pseudo nodes rather than recording them) so the
// whole phase is a no-op for it: there is nothing to schedule.
func (w *Walk) runTopTree(startIdx int) (int, error) {
	total := len(w.ws.Indices)
	if w.V.NoNgblist {
		return total, nil
	}
	if startIdx >= total {
		return total, nil
	}

	var cursor atomix.Int64
	cursor.Store(int64(startIdx))
	var chunk atomix.Int64
	chunk.Store(topTreeInitialChunk)

	lastSucceeded := make([]int64, w.Threads)
	hitFull := make([]bool, w.Threads)
	exported := make([]int64, w.Threads)
	for t := range lastSucceeded {
		lastSucceeded[t] = int64(total - 1)
	}

	boxSize := w.Tree.BoxSize()

	w.forkJoin(func(tid int) {
		q, r := w.newScratch()
		local := &LocalCtx{ThreadID: tid}

		for {
			c := chunk.Load()
			if c < 1 {
				c = 1
			}
			begin := cursor.Add(c) - c
			if begin >= int64(total) {
				return
			}
			end := begin + c
			if end > int64(total) {
				end = int64(total)
			}
			if remaining := int64(total) - end; remaining < c*int64(w.Threads) {
				newC := c / 2
				if newC < 1 {
					newC = 1
				}
				chunk.Store(newC)
			}

			for i := begin; i < end; i++ {
				idx := w.ws.Indices[i]
				w.exports.BeginParticle(tid)
				before := w.exports.Count(tid)

				p := w.Table.Particle(idx)
				q.Pos = p.Pos()
				q.NodeList = [cos.NodeListLength]int{w.Tree.Root(), cos.NoEntry}
				if w.V.Fill != nil {
					w.V.Fill(idx, q)
				}

				var interactions int
				status := w.dispatch(q, r, local, TopTree, tid, idx, boxSize, &interactions)
				if status != 0 {
					thisExports := w.exports.Count(tid) - before
					w.exports.RollbackBy(tid, thisExports)
					lastSucceeded[tid] = i - 1
					hitFull[tid] = true
					return
				}
				exported[tid] += int64(w.exports.Count(tid) - before)
			}
		}
	})

	var total64 int64
	for t := range exported {
		total64 += exported[t]
	}
	w.NexportSum += total64
	w.Reporter.AddExports(int(total64))

	resumeFrom := int64(total)
	anyFull := false
	for t := range hitFull {
		if !hitFull[t] {
			continue
		}
		anyFull = true
		if lastSucceeded[t] < resumeFrom {
			resumeFrom = lastSucceeded[t]
		}
	}
	if anyFull {
		w.bufferFull = true
		return int(resumeFrom) + 1, nil
	}
	return total, nil
}

// dispatch runs one particle's Visit, preferring a kernel-supplied
// override (v.Visit) and falling back to the engine's own dispatcher —
// VisitNolistNgbiter for list-free kernels, VisitNgbiter otherwise (spec.md
// §6 "usually visit_ngbiter").
func (w *Walk) dispatch(q *Query, r *Result, local *LocalCtx, phase Phase, tid, originIdx int, boxSize float64, interactions *int) int {
	if w.V.Visit != nil {
		return w.V.Visit(q, r, local)
	}
	if w.V.NoNgblist {
		return VisitNolistNgbiter(w.Tree, w.Table, w.V, q, r, local, boxSize, interactions)
	}
	return VisitNgbiter(w.Tree, w.Table, w.V, q, r, local, phase, w.exports, tid, originIdx, boxSize, interactions)
}

// newScratch allocates one thread's reusable Query/Result pair, sized per
// the visitor's payload contract. Reused across every particle the
// thread processes in a phase; contents are fully overwritten before
// each use.
func (w *Walk) newScratch() (*Query, *Result) {
	return &Query{Extra: make([]byte, w.V.QuerySize)}, &Result{Extra: make([]byte, w.V.ResultSize)}
}
