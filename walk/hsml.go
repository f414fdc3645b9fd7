// Adaptive hsml Loop (spec.md §4.9): drives repeated Run invocations
// over a shrinking redo set until every particle's neighbour count
// lands within tolerance of the kernel's target, using two alternating
// arena-backed redo buffers so the next pass's survivor list never
// fragments against the pass still being read. The engine never writes
// a Particle's Hsml directly (cluster.Particle exposes it read-only);
// convergence state lives entirely behind the kernel-supplied
// GetHsml/SetHsml/NeighbourCount callbacks.
package walk

import (
	"math"

	"github.com/cosmowalk/treewalk/cmn/nlog"
	"github.com/cosmowalk/treewalk/memsys"
)

// HsmlNeighbourCounter is the kernel-side capability set the hsml loop
// needs: read/write access to a particle's trial radius, its own bounds
// storage, and its last Run's neighbour count (populated by the
// kernel's Reduce callback, which is the only code that knows how its
// own Result.Extra layout encodes a count).
type HsmlNeighbourCounter struct {
	DesNumNgb       int
	NumNgbTolerance int
	GetHsml         func(i int) float64
	SetHsml         func(i int, h float64)
	NeighbourCount  func(i int) int
}

// HsmlSummary is the loop's digest from the final pass (spec.md §4.9).
// MinNgb and MaxNgb are this rank's own minimum and maximum neighbour
// counts over that pass's redo set; they are not reduced across ranks.
type HsmlSummary struct {
	Iterations int
	MinNgb     int
	MaxNgb     int
}

// RunHsmlLoop iterates w.Run over a shrinking redo set until every
// particle converges or the configured iteration ceiling is hit, which
// is fatal (ErrConvergence) rather than returned as a soft error —
// spec.md §4.9 "enforce an iteration ceiling (fatal on exceed)".
func (w *Walk) RunHsmlLoop(active []int, k HsmlNeighbourCounter) (HsmlSummary, error) {
	left := make(map[int]float64, len(active))
	right := make(map[int]float64, len(active))
	rightBounded := make(map[int]bool, len(active))

	arenaSize := (len(active) + 16) * 8
	pair, err := memsys.NewAlternatingPair(arenaSize)
	if err != nil {
		return HsmlSummary{}, fatalf(ErrConfiguration, err, "walk: allocate hsml redo arenas (%d bytes each)", arenaSize)
	}
	defer func() { _ = pair.Free() }()

	redo := active
	var summary HsmlSummary

	for iter := 0; ; iter++ {
		if len(redo) == 0 {
			break
		}
		if iter >= w.Config.HsmlMaxIterations {
			return summary, fatalf(ErrConvergence, nil, "walk: hsml loop exceeded %d iterations with %d particles unconverged", w.Config.HsmlMaxIterations, len(redo))
		}

		if err := w.Run(redo, true); err != nil {
			return summary, err
		}

		arena := pair.Current(iter)
		arena.Reset()
		next := arena.CarveInts(len(redo))
		cnt := 0
		localMin, localMax := math.MaxInt, 0

		for _, i := range redo {
			ngb := k.NeighbourCount(i)
			if ngb < localMin {
				localMin = ngb
			}
			if ngb > localMax {
				localMax = ngb
			}

			if ngb >= k.DesNumNgb-k.NumNgbTolerance && ngb <= k.DesNumNgb+k.NumNgbTolerance {
				continue
			}

			h := k.GetHsml(i)
			if ngb < k.DesNumNgb-k.NumNgbTolerance {
				left[i] = h
			} else {
				right[i] = h
				rightBounded[i] = true
			}

			nh := narrowDownHsml(left[i], right[i], rightBounded[i], h, ngb, k.DesNumNgb)
			k.SetHsml(i, nh)
			next[cnt] = i
			cnt++
		}

		summary.Iterations++
		summary.MinNgb = localMin
		summary.MaxNgb = localMax
		nlog.Infof("walk: hsml run=%s iter=%d redo=%d min=%d max=%d", w.ID, iter, cnt, localMin, localMax)
		redo = next[:cnt]
	}
	return summary, nil
}

// narrowDownHsml computes the next trial radius for one particle. With
// no right bound yet, it grows aggressively in volume space (neighbour
// count scales with h^3) but capped at 4x per step so one pathologically
// sparse particle can't blow later passes' arena sizing; with both
// bounds known it extrapolates in volume space and clamps the guess back
// into (left,right) if extrapolation overshoots, falling back to a
// volume-space bisection (spec.md §4.9).
func narrowDownHsml(left, right float64, rightBounded bool, h float64, ngb, desNumNgb int) float64 {
	if !rightBounded {
		factor := 2.0
		if ngb > 0 {
			factor = math.Cbrt(float64(desNumNgb) / float64(ngb))
			if factor > 4 {
				factor = 4
			}
			if factor < 1.26 {
				factor = 1.26
			}
		}
		return h * factor
	}
	guess := h
	if ngb > 0 {
		guess = h * math.Cbrt(float64(desNumNgb)/float64(ngb))
	}
	if guess <= left || guess >= right {
		guess = math.Cbrt((left*left*left + right*right*right) / 2)
	}
	return guess
}
