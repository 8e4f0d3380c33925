// Package rng provides the seeded sequence generator behind dataset
// generation.
//
// Every value handed to the generator is derived here from the raw 64-bit
// output of a PCG source. The derivations (floats, ranges, Pareto draws,
// shuffles) are implemented in this package rather than delegated to
// math/rand helpers, so a seed produces the same sequence on every platform
// and Go release.
//
// A Rand is owned by exactly one generation. It is not safe for concurrent
// use and must never be shared between generations.
package rng

import (
	"fmt"
	"math"
	"math/rand/v2"

	"cloud.google.com/go/civil"
)

// Rand is a deterministic pseudo-random source.
type Rand struct {
	src *rand.PCG
}

// New returns a Rand seeded from seed. The two PCG words are expanded from
// the seed with SplitMix64 so nearby seeds produce unrelated streams.
func New(seed int64) *Rand {
	state := uint64(seed)
	hi := splitMix64(&state)
	lo := splitMix64(&state)
	return &Rand{src: rand.NewPCG(hi, lo)}
}

func splitMix64(state *uint64) uint64 {
	*state += 0x9e3779b97f4a7c15
	z := *state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Uint64 returns the next raw 64-bit value.
func (r *Rand) Uint64() uint64 {
	return r.src.Uint64()
}

// Float64 returns a value in [0, 1) with 53 bits of precision.
func (r *Rand) Float64() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}

// IntN returns a uniform value in [0, n). It panics if n <= 0.
func (r *Rand) IntN(n int) int {
	if n <= 0 {
		panic("rng: IntN called with non-positive n")
	}
	bound := uint64(n)
	// Values below threshold would bias the modulo.
	threshold := -bound % bound
	for {
		x := r.Uint64()
		if x >= threshold {
			return int(x % bound)
		}
	}
}

// IntRange returns a uniform value in [a, b], both inclusive.
func (r *Rand) IntRange(a, b int) int {
	if b < a {
		panic(fmt.Sprintf("rng: IntRange called with empty range [%d, %d]", a, b))
	}
	return a + r.IntN(b-a+1)
}

// Uniform returns a value in [a, b).
func (r *Rand) Uniform(a, b float64) float64 {
	return a + (b-a)*r.Float64()
}

// Bernoulli reports true with probability p.
func (r *Rand) Bernoulli(p float64) bool {
	return r.Float64() < p
}

// Pareto returns a Pareto(xm=1, alpha) variate, always >= 1.
func (r *Rand) Pareto(alpha float64) float64 {
	u := 1.0 - r.Float64() // (0, 1]
	return 1.0 / math.Pow(u, 1.0/alpha)
}

// Shuffle permutes n elements with Fisher-Yates, calling swap for each
// exchange.
func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		swap(i, j)
	}
}

// Sample returns k distinct indices drawn from [0, n), in draw order.
// It panics if k is outside [0, n].
func (r *Rand) Sample(n, k int) []int {
	if k < 0 || k > n {
		panic(fmt.Sprintf("rng: Sample size %d out of range for population %d", k, n))
	}
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + r.IntN(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k:k]
}

// DateBetween returns a uniform date in [start, end], both inclusive.
func (r *Rand) DateBetween(start, end civil.Date) (civil.Date, error) {
	if end.Before(start) {
		return civil.Date{}, fmt.Errorf("invalid date window: %s..%s", start, end)
	}
	return start.AddDays(r.IntRange(0, end.DaysSince(start))), nil
}

// Choice returns a uniformly chosen element of items. It panics on an
// empty slice.
func Choice[T any](r *Rand, items []T) T {
	if len(items) == 0 {
		panic("rng: Choice called with empty slice")
	}
	return items[r.IntN(len(items))]
}
