package rng

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SameSeedSameSequence(t *testing.T) {
	a := New(123)
	b := New(123)

	for i := 0; i < 1000; i++ {
		require.Equal(t, a.Uint64(), b.Uint64(), "diverged at draw %d", i)
	}
}

func TestNew_DifferentSeedsDiverge(t *testing.T) {
	a := New(1)
	b := New(2)

	same := 0
	for i := 0; i < 100; i++ {
		if a.Uint64() == b.Uint64() {
			same++
		}
	}
	assert.Less(t, same, 5)
}

func TestFloat64_Range(t *testing.T) {
	r := New(7)
	for i := 0; i < 10000; i++ {
		f := r.Float64()
		require.GreaterOrEqual(t, f, 0.0)
		require.Less(t, f, 1.0)
	}
}

func TestIntRange_Inclusive(t *testing.T) {
	r := New(42)
	seen := map[int]bool{}
	for i := 0; i < 2000; i++ {
		v := r.IntRange(3, 6)
		require.GreaterOrEqual(t, v, 3)
		require.LessOrEqual(t, v, 6)
		seen[v] = true
	}
	assert.Len(t, seen, 4, "every value of the range should appear")
}

func TestIntRange_SingleValue(t *testing.T) {
	r := New(0)
	assert.Equal(t, 5, r.IntRange(5, 5))
}

func TestIntRange_EmptyPanics(t *testing.T) {
	r := New(0)
	assert.Panics(t, func() { r.IntRange(2, 1) })
}

func TestPareto_AtLeastOne(t *testing.T) {
	r := New(9)
	for i := 0; i < 5000; i++ {
		require.GreaterOrEqual(t, r.Pareto(1.0), 1.0)
	}
}

func TestShuffle_IsPermutation(t *testing.T) {
	r := New(11)
	items := []int{0, 1, 2, 3, 4, 5, 6, 7}
	r.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })

	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, items)
}

func TestSample_Distinct(t *testing.T) {
	r := New(5)
	got := r.Sample(100, 10)

	require.Len(t, got, 10)
	seen := map[int]bool{}
	for _, idx := range got {
		assert.False(t, seen[idx], "duplicate index %d", idx)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 100)
		seen[idx] = true
	}
}

func TestSample_TooLargePanics(t *testing.T) {
	r := New(5)
	assert.Panics(t, func() { r.Sample(3, 4) })
}

func TestDateBetween(t *testing.T) {
	r := New(3)
	start := civil.Date{Year: 2025, Month: 10, Day: 1}
	end := civil.Date{Year: 2025, Month: 10, Day: 31}

	for i := 0; i < 500; i++ {
		d, err := r.DateBetween(start, end)
		require.NoError(t, err)
		require.False(t, d.Before(start))
		require.False(t, d.After(end))
	}
}

func TestDateBetween_Inverted(t *testing.T) {
	r := New(3)
	start := civil.Date{Year: 2026, Month: 1, Day: 2}
	end := civil.Date{Year: 2026, Month: 1, Day: 1}

	_, err := r.DateBetween(start, end)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date window")
}

func TestChoice(t *testing.T) {
	r := New(1)
	items := []string{"a", "b", "c"}
	for i := 0; i < 50; i++ {
		assert.Contains(t, items, Choice(r, items))
	}
	assert.Panics(t, func() { Choice(r, []string{}) })
}
