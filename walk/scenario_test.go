package walk_test

import (
	"encoding/binary"
	"math"
	"sync"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/cosmowalk/treewalk/cluster"
	"github.com/cosmowalk/treewalk/cluster/reftree"
	"github.com/cosmowalk/treewalk/cmn"
	"github.com/cosmowalk/treewalk/transport"
	"github.com/cosmowalk/treewalk/walk"
	"github.com/cosmowalk/treewalk/walk/metrics"
)

func TestScenarios(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "distributed tree-walk end-to-end scenarios")
}

func scenarioCloud(n int) ([]cluster.Vec3, []float64, []int) {
	positions := make([]cluster.Vec3, n)
	hsml := make([]float64, n)
	typeTags := make([]int, n)
	for i := range positions {
		x := float64(i%8) / 8
		y := float64((i/8)%8) / 8
		z := float64((i/64)%8) / 8
		positions[i] = cluster.Vec3{x, y, z}
		hsml[i] = 0.1
		typeTags[i] = 0
	}
	return positions, hsml, typeTags
}

func bruteForceCounts(positions []cluster.Vec3, radius, boxSize float64) []int64 {
	n := len(positions)
	counts := make([]int64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			r2 := 0.0
			for a := 0; a < 3; a++ {
				d := positions[i][a] - positions[j][a]
				if boxSize > 0 {
					if d > boxSize/2 {
						d -= boxSize
					} else if d < -boxSize/2 {
						d += boxSize
					}
				}
				r2 += d * d
			}
			if r2 <= radius*radius {
				counts[i]++
			}
		}
	}
	return counts
}

func runDistributedCount(positions []cluster.Vec3, hsml []float64, typeTags []int, numRanks, threads int, radius float64) []int64 {
	n := len(positions)
	sh := reftree.Build(positions, hsml, typeTags, numRanks, reftree.BuildOptions{LeafSize: 8, MaxDepth: 16})
	hub := transport.NewHub(numRanks)
	cfg := cmn.DefaultConfig()

	table := sh.ParticleTable()
	counts := make([]int64, n)
	var mu sync.Mutex

	var wg sync.WaitGroup
	errs := make([]error, numRanks)
	for rank := 0; rank < numRanks; rank++ {
		rank := rank
		wg.Add(1)
		go func() {
			defer wg.Done()
			tree := reftree.NewRankView(sh, rank)
			comm := hub.Rank(rank)
			reporter := metrics.NewReporter(rank)

			v := &walk.Visitor{
				QuerySize:  16,
				ResultSize: 8,
				Fill: func(i int, q *walk.Query) {
					binary.LittleEndian.PutUint64(q.Extra[:8], math.Float64bits(radius))
					binary.LittleEndian.PutUint64(q.Extra[8:16], uint64(int64(i)))
				},
				NgbIter: func(q *walk.Query, r *walk.Result, iter *walk.IterState, local *walk.LocalCtx) {
					if iter.Other == -1 {
						iter.Hsml = math.Float64frombits(binary.LittleEndian.Uint64(q.Extra[:8]))
						return
					}
					// The engine hands the query particle to NgbIter as well;
					// skip it so the count matches the brute force's i != j.
					if iter.Other == int(int64(binary.LittleEndian.Uint64(q.Extra[8:16]))) {
						return
					}
					v := int64(binary.LittleEndian.Uint64(r.Extra[:8]))
					binary.LittleEndian.PutUint64(r.Extra[:8], uint64(v+1))
				},
				Reduce: func(i int, r *walk.Result, mode walk.ReduceMode, w *walk.Walk) {
					v := int64(binary.LittleEndian.Uint64(r.Extra[:8]))
					mu.Lock()
					counts[i] += v
					mu.Unlock()
				},
			}

			w := walk.NewWalk(tree, table, v, comm, cfg, threads, reporter)
			lo := rank * n / numRanks
			hi := (rank + 1) * n / numRanks
			active := make([]int, 0, hi-lo)
			for i := lo; i < hi; i++ {
				active = append(active, i)
			}
			errs[rank] = w.Run(active, true)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		Expect(err).NotTo(HaveOccurred())
	}
	return counts
}

var _ = Describe("distributed fixed-radius neighbour count", func() {
	It("matches a brute-force count on a single simulated rank", func() {
		positions, hsml, typeTags := scenarioCloud(128)
		got := runDistributedCount(positions, hsml, typeTags, 1, 2, 0.15)
		want := bruteForceCounts(positions, 0.15, 0)
		Expect(got).To(Equal(want))
	})

	It("matches a brute-force count across four simulated ranks", func() {
		positions, hsml, typeTags := scenarioCloud(128)
		got := runDistributedCount(positions, hsml, typeTags, 4, 3, 0.15)
		want := bruteForceCounts(positions, 0.15, 0)
		Expect(got).To(Equal(want))
	})

	It("finds no neighbours when the radius is too small for the spacing", func() {
		positions, hsml, typeTags := scenarioCloud(64)
		got := runDistributedCount(positions, hsml, typeTags, 2, 2, 0.01)
		for _, c := range got {
			Expect(c).To(BeZero())
		}
	})

	It("is reproducible across repeated distributed runs", func() {
		positions, hsml, typeTags := scenarioCloud(64)
		first := runDistributedCount(positions, hsml, typeTags, 3, 2, 0.2)
		second := runDistributedCount(positions, hsml, typeTags, 3, 2, 0.2)
		Expect(first).To(Equal(second))
	})
})
