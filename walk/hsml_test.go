package walk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNarrowDownHsmlGrowsByTwoWhenNoNeighboursSeen(t *testing.T) {
	got := narrowDownHsml(0, 0, false, 1.0, 0, 64)
	assert.InDelta(t, 2.0, got, 1e-12)
}

func TestNarrowDownHsmlGrowthIsCappedAtFour(t *testing.T) {
	// cbrt(desNumNgb/ngb) would exceed 4 here without the cap.
	got := narrowDownHsml(0, 0, false, 1.0, 1, 1000)
	assert.InDelta(t, 4.0, got, 1e-12)
}

func TestNarrowDownHsmlGrowthHasAFloorOfOneTwentySix(t *testing.T) {
	// ngb already far above target: cbrt(desNumNgb/ngb) < 1, clamped up to 1.26
	// so a single overshoot can't shrink hsml on the unbounded-right leg.
	got := narrowDownHsml(0, 0, false, 1.0, 1000, 64)
	assert.InDelta(t, 1.26, got, 1e-12)
}

func TestNarrowDownHsmlExtrapolatesWithinBounds(t *testing.T) {
	left, right, h, ngb, des := 1.0, 3.0, 2.0, 50, 64
	got := narrowDownHsml(left, right, true, h, ngb, des)
	want := h * math.Cbrt(float64(des)/float64(ngb))
	assert.InDelta(t, want, got, 1e-12)
	assert.True(t, got > left && got < right)
}

func TestNarrowDownHsmlFallsBackToBisectionOnOvershoot(t *testing.T) {
	// ngb tiny relative to des makes the cube-root extrapolation blow
	// past right, so the bisection fallback in volume space takes over.
	left, right, h, ngb, des := 1.0, 2.0, 1.5, 1, 1000
	got := narrowDownHsml(left, right, true, h, ngb, des)
	want := math.Cbrt((left*left*left + right*right*right) / 2)
	assert.InDelta(t, want, got, 1e-12)
}
