package tariff

import (
	"math/rand/v2"
	"sync"
)

// RandomSource yields uniform values in [0,1). Implementations must be safe
// for concurrent use if the engine is shared.
type RandomSource interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 {
	return rand.Float64()
}

// DefaultSource returns a source backed by the runtime-seeded global
// generator.
func DefaultSource() RandomSource {
	return globalSource{}
}

// SequenceSource replays a fixed list of values, wrapping around at the end.
// It exists so callers can pin the noise and jitter in tests.
type SequenceSource struct {
	mu     sync.Mutex
	values []float64
	draws  int
}

// NewSequenceSource returns a source that yields values in order.
func NewSequenceSource(values ...float64) *SequenceSource {
	if len(values) == 0 {
		panic("sequence source requires at least one value")
	}
	return &SequenceSource{values: values}
}

func (s *SequenceSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.draws%len(s.values)]
	s.draws++
	return v
}

// Draws returns the number of values handed out so far.
func (s *SequenceSource) Draws() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draws
}
