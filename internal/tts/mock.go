package tts

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
)

const mockChunkSeconds = 0.25

// DurationFunc decides how long the mock voice speaks a piece of text.
type DurationFunc func(text string) float64

// TextDuration approximates a speaking rate of roughly fifteen characters per second.
func TextDuration(text string) float64 {
	return 0.3 + float64(len([]rune(strings.TrimSpace(text))))/15.0
}

type mockSynth struct {
	sampleRate int
	duration   DurationFunc
}

// NewMockSynth returns a synthesizer that emits a quiet tone as 16-bit PCM.
// A nil duration falls back to TextDuration.
func NewMockSynth(sampleRate int, duration DurationFunc) Synthesizer {
	if duration == nil {
		duration = TextDuration
	}
	return &mockSynth{sampleRate: sampleRate, duration: duration}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		total := int(math.Round(m.duration(req.Text) * float64(m.sampleRate)))
		per := int(mockChunkSeconds * float64(m.sampleRate))
		if per <= 0 {
			per = 1
		}
		sequence := 0
		for offset := 0; offset < total; offset += per {
			n := min(per, total-offset)
			pcm := make([]byte, n*2)
			for i := 0; i < n; i++ {
				t := float64(offset+i) / float64(m.sampleRate)
				v := int16(1200 * math.Sin(2*math.Pi*220*t))
				binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
			}
			chunk := SynthChunk{
				SessionID:  req.SessionID,
				Sequence:   sequence,
				Encoding:   "pcm",
				SampleRate: m.sampleRate,
				Channels:   1,
				Data:       pcm,
				Final:      offset+n >= total,
			}
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case chunks <- chunk:
			}
			sequence++
		}
	}()
	return chunks, errs
}
