package tts

import (
	"context"
	"fmt"
)

// Collect drains a synthesis stream into a single Utterance. The encoding and
// sample rate are taken from the first chunk that declares them.
func Collect(ctx context.Context, synth Synthesizer, req SynthRequest) (Utterance, error) {
	chunks, errs := synth.Synthesize(ctx, req)
	var out Utterance
	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if out.Encoding == "" {
				out.Encoding = chunk.Encoding
			} else if chunk.Encoding != "" && chunk.Encoding != out.Encoding {
				return Utterance{}, fmt.Errorf("tts: chunk %d switched encoding from %s to %s", chunk.Sequence, out.Encoding, chunk.Encoding)
			}
			if out.SampleRate == 0 {
				out.SampleRate = chunk.SampleRate
			}
			if out.Channels == 0 {
				out.Channels = chunk.Channels
			}
			out.Data = append(out.Data, chunk.Data...)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return Utterance{}, fmt.Errorf("synthesize voice %q: %w", req.Voice, err)
			}
		case <-ctx.Done():
			return Utterance{}, ctx.Err()
		}
	}
	if len(out.Data) == 0 {
		return Utterance{}, fmt.Errorf("synthesize voice %q: %w", req.Voice, ErrEmptyAudio)
	}
	return out, nil
}
