package genai

import (
	"math/rand"
	"sync"
)

// lockedRand guards a rand.Rand for concurrent jitter draws.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}
