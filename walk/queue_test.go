package walk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmowalk/treewalk/cluster"
	"github.com/cosmowalk/treewalk/memsys"
)

type queueParticle struct {
	pos     cluster.Vec3
	garbage bool
}

func (p *queueParticle) Pos() cluster.Vec3 { return p.pos }
func (p *queueParticle) TypeTag() int      { return 0 }
func (p *queueParticle) Garbage() bool     { return p.garbage }
func (p *queueParticle) Hsml() float64     { return 0 }
func (p *queueParticle) ID() int64         { return 0 }

type queueTable struct{ particles []*queueParticle }

func (tb *queueTable) Particle(i int) cluster.Particle { return tb.particles[i] }
func (tb *queueTable) Len() int                        { return len(tb.particles) }

func newQueueArena(t *testing.T) *memsys.Arena {
	t.Helper()
	arena, err := memsys.NewArena(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = arena.Free() })
	return arena
}

func TestBuildWorkSetAdoptsVerbatimWhenNoFilteringNeeded(t *testing.T) {
	active := []int{4, 2, 7, 1}
	ws, err := BuildWorkSet(active, nil, nil, true, 4, newQueueArena(t))
	require.NoError(t, err)
	assert.True(t, ws.StolenFromActive)
	assert.Same(t, &active[0], &ws.Indices[0])
	assert.Equal(t, active, ws.Indices)
}

func TestBuildWorkSetFiltersGarbagePreservingOrder(t *testing.T) {
	table := &queueTable{particles: []*queueParticle{
		{garbage: false}, // 0
		{garbage: true},  // 1
		{garbage: false}, // 2
		{garbage: true},  // 3
		{garbage: false}, // 4
	}}
	active := []int{0, 1, 2, 3, 4}
	ws, err := BuildWorkSet(active, table, nil, false, 2, newQueueArena(t))
	require.NoError(t, err)
	assert.False(t, ws.StolenFromActive)
	assert.Equal(t, []int{0, 2, 4}, ws.Indices)
}

func TestBuildWorkSetAppliesHasWorkPredicate(t *testing.T) {
	active := []int{10, 11, 12, 13, 14, 15}
	hasWork := func(i int) bool { return i%2 == 0 }
	ws, err := BuildWorkSet(active, nil, hasWork, false, 3, newQueueArena(t))
	require.NoError(t, err)
	assert.Equal(t, []int{10, 12, 14}, ws.Indices)
}

func TestBuildWorkSetCombinesGarbageAndPredicateAcrossThreads(t *testing.T) {
	particles := make([]*queueParticle, 20)
	for i := range particles {
		particles[i] = &queueParticle{garbage: i%5 == 0}
	}
	table := &queueTable{particles: particles}
	active := make([]int, 20)
	for i := range active {
		active[i] = i
	}
	hasWork := func(i int) bool { return i%3 != 0 }

	ws, err := BuildWorkSet(active, table, hasWork, false, 4, newQueueArena(t))
	require.NoError(t, err)

	var want []int
	for _, i := range active {
		if particles[i].garbage {
			continue
		}
		if !hasWork(i) {
			continue
		}
		want = append(want, i)
	}
	assert.Equal(t, want, ws.Indices)
}

func TestBuildWorkSetEmptyActive(t *testing.T) {
	ws, err := BuildWorkSet(nil, nil, nil, false, 4, newQueueArena(t))
	require.NoError(t, err)
	assert.False(t, ws.StolenFromActive)
	assert.Empty(t, ws.Indices)
}
