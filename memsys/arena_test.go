package memsys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCarveReturnsZeroedDistinctSlices(t *testing.T) {
	arena, err := NewArena(4096)
	require.NoError(t, err)
	defer arena.Free()

	a := arena.Carve(16)
	b := arena.Carve(16)
	for _, v := range a {
		assert.Zero(t, v)
	}
	a[0] = 0xFF
	assert.Zero(t, b[0], "carved slices must not alias")
}

func TestResetReusesBackingPages(t *testing.T) {
	arena, err := NewArena(64)
	require.NoError(t, err)
	defer arena.Free()

	first := arena.Carve(32)
	first[0] = 9
	assert.Equal(t, 32, arena.Used())

	arena.Reset()
	assert.Equal(t, 0, arena.Used())

	second := arena.Carve(32)
	assert.Equal(t, byte(9), second[0], "Reset must not unmap or rezero the backing pages")
}

func TestCarveOverflowPanics(t *testing.T) {
	arena, err := NewArena(16)
	require.NoError(t, err)
	defer arena.Free()

	assert.Panics(t, func() {
		arena.Carve(arena.Cap() + 1)
	})
}

func TestCarveIntsGivesUsableIntSlice(t *testing.T) {
	arena, err := NewArena(1024)
	require.NoError(t, err)
	defer arena.Free()

	ints := arena.CarveInts(10)
	require.Len(t, ints, 10)
	for i := range ints {
		ints[i] = i * i
	}
	assert.Equal(t, 81, ints[9])
}

func TestFreeIsIdempotent(t *testing.T) {
	arena, err := NewArena(16)
	require.NoError(t, err)
	require.NoError(t, arena.Free())
	assert.NoError(t, arena.Free())
}

func TestAlternatingPairCurrentAndOtherAreOpposite(t *testing.T) {
	pair, err := NewAlternatingPair(64)
	require.NoError(t, err)
	defer pair.Free()

	assert.Same(t, pair.Current(0), pair.Other(1))
	assert.Same(t, pair.Current(1), pair.Other(0))
	assert.NotSame(t, pair.Current(0), pair.Current(1))
}

func TestAlternatingPairResetDoesNotDisturbOtherArena(t *testing.T) {
	pair, err := NewAlternatingPair(64)
	require.NoError(t, err)
	defer pair.Free()

	cur := pair.Current(0)
	other := pair.Other(0)
	cur.Carve(8)
	otherBuf := other.Carve(8)
	otherBuf[0] = 42

	cur.Reset()
	assert.Equal(t, 0, cur.Used())
	assert.Equal(t, 8, other.Used())
	assert.Equal(t, byte(42), otherBuf[0])
}
