// Queue Builder (spec.md §4.1): compacts the active particle list into
// a per-walk work set, filtering garbage and work-predicate misses,
// preserving original ordering.
package walk

import (
	"golang.org/x/sync/errgroup"

	"github.com/cosmowalk/treewalk/cluster"
	"github.com/cosmowalk/treewalk/cmn/debug"
	"github.com/cosmowalk/treewalk/memsys"
)

// WorkSet is the ordered, post-filtered index sequence a walk
// processes (spec.md §3 "Work Set").
type WorkSet struct {
	Indices []int
	// StolenFromActive records ownership: true means Indices aliases
	// the caller's active slice and `finish` must not free it.
	StolenFromActive bool
}

// BuildWorkSet implements spec.md §4.1. threads is the degree of
// parallelism for the static-schedule compaction pass; arena backs the
// thread-local slabs and the final compacted buffer.
//
// If hasWork is nil and noGarbagePossible is true, the input is adopted
// verbatim with zero copies (spec.md: "the input list is adopted
// verbatim (zero copy), recorded as borrowed").
func BuildWorkSet(active []int, table cluster.ParticleTable, hasWork func(i int) bool, noGarbagePossible bool, threads int, arena *memsys.Arena) (*WorkSet, error) {
	if hasWork == nil && noGarbagePossible {
		return &WorkSet{Indices: active, StolenFromActive: true}, nil
	}
	if threads < 1 {
		threads = 1
	}
	n := len(active)
	if n == 0 {
		return &WorkSet{Indices: nil, StolenFromActive: false}, nil
	}

	// Static schedule: each thread owns a contiguous input slice, so
	// relative survivor order matches input order once slabs are
	// concatenated in thread-id order — required because later
	// monotonic resumption (spec.md §4.6) depends on it.
	chunk := (n + threads - 1) / threads
	slabCap := chunk + threads
	slabs := make([][]int, threads)
	counts := make([]int, threads)

	g := new(errgroup.Group)
	for t := 0; t < threads; t++ {
		t := t
		lo := t * chunk
		if lo >= n {
			slabs[t] = nil
			continue
		}
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		slab := arena.CarveInts(slabCap)
		slabs[t] = slab
		g.Go(func() error {
			cnt := 0
			for _, i := range active[lo:hi] {
				if table != nil {
					if p := table.Particle(i); p != nil && p.Garbage() {
						continue
					}
				}
				if hasWork != nil && !hasWork(i) {
					continue
				}
				debug.Assertf(cnt < slabCap, "walk: queue builder slab overflow: thread=%d cnt=%d cap=%d", t, cnt, slabCap)
				slab[cnt] = i
				cnt++
			}
			counts[t] = cnt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	out := arena.CarveInts(total)
	off := 0
	for t := 0; t < threads; t++ {
		copy(out[off:off+counts[t]], slabs[t][:counts[t]])
		off += counts[t]
	}
	return &WorkSet{Indices: out, StolenFromActive: false}, nil
}
