package protocol

import (
	"time"

	"github.com/loqalabs/loqa-callsynth/internal/timeline"
)

const (
	SubjectSynthesizeRequest = "call.synthesize.request"
	SubjectSynthesizeDone    = "call.synthesize.done"

	// StreamResults retains completion notices for consumers that were offline.
	StreamResults = "CALLSYNTH_RESULTS"
)

// SynthesizeRequest asks a worker to assemble one stereo call.
type SynthesizeRequest struct {
	RequestID string          `json:"request_id"`
	Turns     []timeline.Turn `json:"turns"`
	// Voices maps channel ids ("1", "2") to voice identifiers; missing
	// entries fall back to the worker's configured voices.
	Voices             map[string]string `json:"voices,omitempty"`
	Language           string            `json:"language"`
	OverlapProbability *float64          `json:"overlap_probability,omitempty"`
}

// SynthesizeResult is sent as the reply and published on SubjectSynthesizeDone.
type SynthesizeResult struct {
	RequestID       string    `json:"request_id"`
	RunID           string    `json:"run_id,omitempty"`
	Artifact        string    `json:"artifact,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
