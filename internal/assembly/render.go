package assembly

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/loqa-callsynth/internal/audio"
	"github.com/loqalabs/loqa-callsynth/internal/timeline"
	"github.com/loqalabs/loqa-callsynth/internal/tts"
)

// renderer turns synthesized speech and requested silences into WAV clips
// inside a run's workspace.
type renderer struct {
	synth    tts.Synthesizer
	ws       *Workspace
	format   audio.Format
	language string

	mu       sync.Mutex
	prepared map[int]timeline.Clip
}

func newRenderer(synth tts.Synthesizer, ws *Workspace, format audio.Format, language string) *renderer {
	return &renderer{synth: synth, ws: ws, format: format, language: language, prepared: map[int]timeline.Clip{}}
}

// prefetch synthesizes up to limit turns concurrently ahead of scheduling.
// Turns whose channel has no voice are left for the scheduler to reject.
func (r *renderer) prefetch(ctx context.Context, turns []timeline.Turn, voices timeline.VoiceMap, limit int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for idx, turn := range turns {
		voice, err := voices.Voice(turn.Channel)
		if err != nil {
			continue
		}
		g.Go(func() error {
			clip, err := r.synthesize(gctx, idx, turn, voice)
			if err != nil {
				return fmt.Errorf("turn %d: %w", idx, err)
			}
			r.mu.Lock()
			r.prepared[idx] = clip
			r.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (r *renderer) RenderSpeech(ctx context.Context, idx int, turn timeline.Turn, voice string) (timeline.Clip, error) {
	r.mu.Lock()
	clip, ok := r.prepared[idx]
	r.mu.Unlock()
	if ok {
		return clip, nil
	}
	return r.synthesize(ctx, idx, turn, voice)
}

func (r *renderer) synthesize(ctx context.Context, idx int, turn timeline.Turn, voice string) (timeline.Clip, error) {
	utt, err := tts.Collect(ctx, r.synth, tts.SynthRequest{
		SessionID: r.ws.RunID,
		Text:      turn.Text,
		Voice:     voice,
		Language:  r.language,
	})
	if err != nil {
		return timeline.Clip{}, err
	}
	samples, err := audio.DecodeClip(utt.Data, utt.Encoding, utt.SampleRate, r.format)
	if err != nil {
		return timeline.Clip{}, err
	}
	if len(samples) == 0 {
		return timeline.Clip{}, tts.ErrEmptyAudio
	}
	path := r.ws.SpeechPath(idx)
	if err := audio.WriteWAV(path, r.format, samples); err != nil {
		return timeline.Clip{}, fmt.Errorf("write speech clip: %w", err)
	}
	duration, err := audio.Probe(path)
	if err != nil {
		return timeline.Clip{}, err
	}
	return timeline.Clip{Path: path, Duration: duration}, nil
}

func (r *renderer) RenderSilence(ctx context.Context, idx int, seconds float64) (timeline.Clip, error) {
	if err := ctx.Err(); err != nil {
		return timeline.Clip{}, err
	}
	path := r.ws.SilencePath(idx)
	if err := audio.WriteSilence(path, r.format, seconds); err != nil {
		return timeline.Clip{}, fmt.Errorf("write silence clip: %w", err)
	}
	return timeline.Clip{Path: path, Duration: seconds}, nil
}
