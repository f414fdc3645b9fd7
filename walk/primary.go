// Primary Runner (spec.md §4.6): the local-only pass over the entire
// work set, run exactly once per outer-driver invocation regardless of
// how many top-tree/exchange iterations the export buffer forces. Every
// particle gets a full local descent (PRIMARY mode never exports, so it
// can never hit the buffer-full condition); per-particle interaction
// counts feed the Observability reporter's min/max/avg, and each
// Result is reduced immediately with ReducePrimary.
package walk

import (
	"code.hybscloud.com/atomix"

	"github.com/cosmowalk/treewalk/cmn/cos"
)

// dynamicChunk sizes a fetch-add scheduler's chunk from the work set's
// own size: n/(threads*8), clamped to [1, 256], so a run over a thousand
// particles and a run over a billion don't contend on the same tiny
// fetch-add granularity.
func dynamicChunk(n, threads int) int64 {
	if threads < 1 {
		threads = 1
	}
	c := int64(n) / int64(threads*8)
	if c < 1 {
		c = 1
	}
	if c > 256 {
		c = 256
	}
	return c
}

func (w *Walk) runPrimary() {
	n := len(w.ws.Indices)
	if n == 0 {
		return
	}
	boxSize := w.Tree.BoxSize()
	chunk := dynamicChunk(n, w.Threads)

	var cursor atomix.Int64
	w.forkJoin(func(tid int) {
		q, r := w.newScratch()
		local := &LocalCtx{ThreadID: tid}
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
				idx := w.ws.Indices[i]
				p := w.Table.Particle(idx)
				q.Pos = p.Pos()
				q.NodeList = [cos.NodeListLength]int{w.Tree.Root(), cos.NoEntry}
				if w.V.Fill != nil {
					w.V.Fill(idx, q)
				}
				r.IDEcho = p.ID()
				clear(r.Extra)

				var interactions int
				// Primary never exports: FindNeighbours' PRIMARY branch
				// only ever appends candidates or skips pseudo nodes, so
				// the return status here is always 0.
				_ = w.dispatch(q, r, local, Primary, tid, idx, boxSize, &interactions)
				w.Reporter.ObserveInteractions(interactions)
				if w.V.Reduce != nil {
					w.V.Reduce(idx, r, ReducePrimary, w)
				}
			}
		}
	})
}
