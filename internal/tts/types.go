package tts

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when a provider finishes without producing audio.
var ErrEmptyAudio = errors.New("tts: provider returned no audio")

// SynthRequest contains parameters to synthesize one utterance.
type SynthRequest struct {
	SessionID string
	Text      string
	Voice     string
	Language  string
}

// SynthChunk carries a slice of the encoded provider payload.
type SynthChunk struct {
	SessionID  string
	Sequence   int
	Encoding   string
	SampleRate int
	Channels   int
	Data       []byte
	Final      bool
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error)
}

// Utterance is the fully collected output of one synthesis request.
type Utterance struct {
	Encoding   string
	SampleRate int
	Channels   int
	Data       []byte
}
