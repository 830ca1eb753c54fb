package timeline

import (
	"math"
	"math/rand/v2"
)

const (
	// DefaultTriggerProbability is the share of turns that overlap the previous one.
	DefaultTriggerProbability = 0.05
	// DefaultMaxOverlap caps any single overlap, in seconds.
	DefaultMaxOverlap = 2.0
)

// Sampler draws overlap amounts. It is not safe for concurrent use; each run
// owns its own Sampler.
type Sampler struct {
	rng        *rand.Rand
	maxOverlap float64
}

// NewSampler returns a Sampler drawing from rng. A nil rng uses a randomly
// seeded PCG source.
func NewSampler(rng *rand.Rand, maxOverlap float64) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if maxOverlap <= 0 {
		maxOverlap = DefaultMaxOverlap
	}
	return &Sampler{rng: rng, maxOverlap: maxOverlap}
}

// NewSeededSampler is NewSampler with a deterministic PCG source.
func NewSeededSampler(seed uint64, maxOverlap float64) *Sampler {
	return NewSampler(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), maxOverlap)
}

// MaxOverlap is the upper bound for a clip of the given duration.
func (s *Sampler) MaxOverlap(duration float64) float64 {
	return math.Min(s.maxOverlap, duration/2)
}

// Sample decides whether a clip of duration seconds overlaps its neighbour and
// by how much. With probability 1-p it returns 0. Otherwise it draws from a
// normal distribution centred at (max+duration)/2 with deviation
// (duration-max)/6 and clamps the draw into [0, max].
func (s *Sampler) Sample(duration, p float64) float64 {
	if duration <= 0 || p <= 0 {
		return 0
	}
	if s.rng.Float64() >= p {
		return 0
	}
	limit := s.MaxOverlap(duration)
	mu := (limit + duration) / 2
	sigma := (duration - limit) / 6
	overlap := mu + sigma*s.rng.NormFloat64()
	return math.Min(math.Max(overlap, 0), limit)
}
