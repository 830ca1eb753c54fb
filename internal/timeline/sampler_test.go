package timeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleStaysWithinBounds(t *testing.T) {
	s := NewSeededSampler(42, DefaultMaxOverlap)
	durations := []float64{0.1, 0.5, 1, 2.5, 4, 7.3, 30}
	for _, d := range durations {
		limit := math.Min(2.0, d/2)
		for i := 0; i < 2000; i++ {
			got := s.Sample(d, 1)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, limit, "duration %v", d)
		}
	}
}

func TestSampleZeroProbabilityNeverOverlaps(t *testing.T) {
	s := NewSeededSampler(7, DefaultMaxOverlap)
	for i := 0; i < 5000; i++ {
		assert.Zero(t, s.Sample(3.0, 0))
	}
}

func TestSampleNonPositiveDuration(t *testing.T) {
	s := NewSeededSampler(1, DefaultMaxOverlap)
	assert.Zero(t, s.Sample(0, 1))
	assert.Zero(t, s.Sample(-2, 1))
}

func TestSampleTriggerRate(t *testing.T) {
	s := NewSeededSampler(99, DefaultMaxOverlap)
	const draws = 20000
	hits := 0
	for i := 0; i < draws; i++ {
		if s.Sample(3.0, 0.05) > 0 {
			hits++
		}
	}
	rate := float64(hits) / draws
	assert.InDelta(t, 0.05, rate, 0.01)
}

func TestSampleIsDeterministicForSeed(t *testing.T) {
	a := NewSeededSampler(5, DefaultMaxOverlap)
	b := NewSeededSampler(5, DefaultMaxOverlap)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Sample(2.2, 0.5), b.Sample(2.2, 0.5))
	}
}
