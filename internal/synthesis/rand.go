package synthesis

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Rand is the random source the synthesizer and engine draw from.
type Rand interface {
	// IntN returns a value in [0, n). n must be positive.
	IntN(n int) int
	// Float64 returns a value in [0.0, 1.0).
	Float64() float64
}

type lockedRand struct {
	mu  sync.Mutex
	src *rand.Rand
}

// NewSeededRand returns a goroutine-safe PCG source. A fixed seed reproduces the same sequence.
func NewSeededRand(seed uint64) Rand {
	return &lockedRand{src: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRand returns a goroutine-safe source seeded from the clock.
func NewRand() Rand {
	return NewSeededRand(uint64(time.Now().UnixNano()))
}

func (r *lockedRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.IntN(n)
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Float64()
}
