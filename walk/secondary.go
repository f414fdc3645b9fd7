// Secondary Runner (spec.md §4.6, §4.7): processes queries imported from
// remote ranks against the local tree in GHOSTS mode, seeding a fresh
// zero-valued Result per query and never touching the export table
// (GHOSTS-mode pseudo nodes are fatal, per the Neighbour Finder — an
// imported query's node-list entries always resolve to a local subtree).
package walk

import "code.hybscloud.com/atomix"

// runSecondary evaluates queries in place, in parallel, returning one
// Result per query in the same order. originIdx is meaningless for a
// GHOSTS-mode descent (there is no local particle to export on behalf
// of), so each thread passes its own query's position in the batch
// purely for diagnostics.
func (w *Walk) runSecondary(queries []Query) []Result {
	n := len(queries)
	results := make([]Result, n)
	if n == 0 {
		return results
	}
	boxSize := w.Tree.BoxSize()
	chunk := dynamicChunk(n, w.Threads)

	var cursor atomix.Int64
	w.forkJoin(func(tid int) {
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
				q := &queries[i]
				r := &results[i]
				r.Extra = make([]byte, w.V.ResultSize)

				var interactions int
				_ = w.dispatch(q, r, local, Ghosts, tid, int(i), boxSize, &interactions)
			}
		}
	})
	return results
}
