// Package metrics is the engine's Observability surface (spec.md §6):
// per-walk counters exposed to a reporter — min/max/avg interactions
// per primary, total exports, distinct export-destination ranks, and
// per-phase wall times. Grounded on aistore's own stats.
// ExtRebalanceStats / rebManager.fillinStatus reporting idiom
// (other_examples/5846b3b1_gaikwadabhishek-aistore__ais-rebalance.go.go),
// built on github.com/prometheus/client_golang the way aistore's
// production stats subsystem does.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Phase wall-time labels, matching spec.md §6 exactly.
const (
	PhasePreprocess  = "preprocess"
	PhaseTopTree     = "toptree"
	PhasePrimary     = "primary"
	PhaseSecondary   = "secondary"
	PhaseCountsX     = "exchange_counts"
	PhaseQueryX      = "exchange_query"
	PhaseResultX     = "exchange_result"
	PhaseWait        = "wait"
	PhasePostprocess = "postprocess"
)

// Reporter owns one private Prometheus registry per Walk instance
// (rather than the global default registry) so concurrent tests and
// cmd/walkctl's multi-rank simulation never collide over metric names.
type Reporter struct {
	reg *prometheus.Registry

	phaseHist        *prometheus.HistogramVec
	exportsTotal     prometheus.Counter
	destRanksGauge   prometheus.Gauge
	interactionsHist prometheus.Histogram

	mu           sync.Mutex
	interMin     int64
	interMax     int64
	interSum     int64
	interCount   int64
	exportsSum   int64
	destRanks    map[int]struct{}
	phaseTimes   map[string]time.Duration
}

// NewReporter constructs a Reporter labeled by rank, so a multi-rank
// in-process run (cmd/walkctl, tests) can register all ranks' metrics
// into one process without name collisions.
func NewReporter(rank int) *Reporter {
	reg := prometheus.NewRegistry()
	r := &Reporter{
		reg:       reg,
		destRanks: make(map[int]struct{}),
		phaseTimes: make(map[string]time.Duration),
		interMin:  -1,
	}
	r.phaseHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "treewalk",
		Name:        "phase_seconds",
		Help:        "wall-clock time spent in each walk phase",
		ConstLabels: prometheus.Labels{"rank": itoa(rank)},
		Buckets:     prometheus.DefBuckets,
	}, []string{"phase"})
	r.exportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "treewalk",
		Name:        "exports_total",
		Help:        "export records produced, across every outer-driver iteration",
		ConstLabels: prometheus.Labels{"rank": itoa(rank)},
	})
	r.destRanksGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "treewalk",
		Name:        "export_dest_ranks",
		Help:        "distinct destination ranks exported to since this reporter was created",
		ConstLabels: prometheus.Labels{"rank": itoa(rank)},
	})
	r.interactionsHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   "treewalk",
		Name:        "interactions_per_particle",
		Help:        "neighbour interactions counted per active particle",
		ConstLabels: prometheus.Labels{"rank": itoa(rank)},
		Buckets:     prometheus.ExponentialBuckets(1, 2, 16),
	})
	reg.MustRegister(r.phaseHist, r.exportsTotal, r.destRanksGauge, r.interactionsHist)
	return r
}

// Registry exposes the private registry so a host process can scrape
// it alongside its own metrics.
func (r *Reporter) Registry() *prometheus.Registry { return r.reg }

func (r *Reporter) ObservePhase(phase string, d time.Duration) {
	r.phaseHist.WithLabelValues(phase).Observe(d.Seconds())
	r.mu.Lock()
	r.phaseTimes[phase] += d
	r.mu.Unlock()
}

func (r *Reporter) AddExports(n int) {
	r.exportsTotal.Add(float64(n))
	r.mu.Lock()
	r.exportsSum += int64(n)
	r.mu.Unlock()
}

func (r *Reporter) NoteDestRank(rank int) {
	r.mu.Lock()
	r.destRanks[rank] = struct{}{}
	r.mu.Unlock()
	r.destRanksGauge.Set(float64(len(r.destRanks)))
}

func (r *Reporter) ObserveInteractions(n int) {
	r.interactionsHist.Observe(float64(n))
	r.mu.Lock()
	defer r.mu.Unlock()
	v := int64(n)
	if r.interMin < 0 || v < r.interMin {
		r.interMin = v
	}
	if v > r.interMax {
		r.interMax = v
	}
	r.interSum += v
	r.interCount++
}

// Summary is the human-readable digest, cumulative since the Reporter
// was created, mirroring
// aistore's rebStatus/fillinStatus idiom.
type Summary struct {
	InteractionsMin   int64
	InteractionsMax   int64
	InteractionsAvg   float64
	TotalExports      int64
	DistinctDestRanks int
	PhaseTimes        map[string]time.Duration
}

func (r *Reporter) Report() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	avg := 0.0
	if r.interCount > 0 {
		avg = float64(r.interSum) / float64(r.interCount)
	}
	pt := make(map[string]time.Duration, len(r.phaseTimes))
	for k, v := range r.phaseTimes {
		pt[k] = v
	}
	min := r.interMin
	if min < 0 {
		min = 0
	}
	return Summary{
		InteractionsMin:   min,
		InteractionsMax:   r.interMax,
		InteractionsAvg:   avg,
		TotalExports:      r.exportsSum,
		DistinctDestRanks: len(r.destRanks),
		PhaseTimes:        pt,
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
