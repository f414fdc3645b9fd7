package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReportAggregatesInteractionMinMaxAvg(t *testing.T) {
	r := NewReporter(0)
	r.ObserveInteractions(4)
	r.ObserveInteractions(10)
	r.ObserveInteractions(1)

	s := r.Report()
	assert.Equal(t, int64(1), s.InteractionsMin)
	assert.Equal(t, int64(10), s.InteractionsMax)
	assert.InDelta(t, 5.0, s.InteractionsAvg, 1e-9)
}

func TestReportWithNoObservationsHasZeroMin(t *testing.T) {
	r := NewReporter(1)
	s := r.Report()
	assert.Zero(t, s.InteractionsMin)
	assert.Zero(t, s.InteractionsMax)
	assert.Zero(t, s.InteractionsAvg)
}

func TestNoteDestRankDeduplicates(t *testing.T) {
	r := NewReporter(2)
	r.NoteDestRank(3)
	r.NoteDestRank(3)
	r.NoteDestRank(4)
	assert.Equal(t, 2, r.Report().DistinctDestRanks)
}

func TestAddExportsAccumulates(t *testing.T) {
	r := NewReporter(3)
	r.AddExports(5)
	r.AddExports(7)
	assert.Equal(t, int64(12), r.Report().TotalExports)
}

func TestObservePhaseAccumulatesPerLabel(t *testing.T) {
	r := NewReporter(4)
	r.ObservePhase(PhasePrimary, 10*time.Millisecond)
	r.ObservePhase(PhasePrimary, 5*time.Millisecond)
	r.ObservePhase(PhaseSecondary, 1*time.Millisecond)

	s := r.Report()
	assert.Equal(t, 15*time.Millisecond, s.PhaseTimes[PhasePrimary])
	assert.Equal(t, 1*time.Millisecond, s.PhaseTimes[PhaseSecondary])
}

func TestDistinctReportersDoNotCollideOnRegistry(t *testing.T) {
	a := NewReporter(0)
	b := NewReporter(0)
	assert.NotSame(t, a.Registry(), b.Registry())
}
