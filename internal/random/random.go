// Package random provides the injectable random sources used by pricing,
// seat assignment, market drift, payment simulation and reference codes.
package random

import (
	"math/rand/v2"
	"sync"
)

type Source interface {
	// Float64 returns a number in [0, 1).
	Float64() float64
	// IntN returns a number in [0, n). n must be positive.
	IntN(n int) int
}

// Default draws from the runtime's goroutine-safe generator.
var Default Source = global{}

type global struct{}

func (global) Float64() float64 { return rand.Float64() }
func (global) IntN(n int) int   { return rand.IntN(n) }

// Seeded is a reproducible source safe for concurrent use.
type Seeded struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSeeded(seed uint64) *Seeded {
	return &Seeded{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *Seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

func (s *Seeded) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.IntN(n)
}

// Between returns a number in [lo, hi]. It returns lo when hi < lo.
func Between(src Source, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + src.IntN(hi-lo+1)
}

// Fixed always returns the same float and the lowest integer. Useful in tests.
type Fixed float64

func (f Fixed) Float64() float64 { return float64(f) }
func (Fixed) IntN(int) int       { return 0 }
