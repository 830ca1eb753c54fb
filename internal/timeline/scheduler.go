package timeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// DefaultMinDuration is the floor applied to effective durations, in seconds.
const DefaultMinDuration = 0.05

// SpeechRenderer synthesizes the clip for a turn and measures it.
type SpeechRenderer interface {
	RenderSpeech(ctx context.Context, index int, turn Turn, voice string) (Clip, error)
}

// SilenceRenderer produces a silent clip of the given length.
type SilenceRenderer interface {
	RenderSilence(ctx context.Context, index int, seconds float64) (Clip, error)
}

// Placement picks the channel (1 or 2) that carries the speech of a turn.
type Placement func(index int, turn Turn) int

// PlaceByParity alternates strictly: even indices speak on channel 1, odd
// indices on channel 2. The turn's declared channel only selects the voice.
func PlaceByParity(index int, _ Turn) int {
	if index%2 == 0 {
		return 1
	}
	return 2
}

// PlaceByDeclaredChannel puts each turn on the channel it names.
func PlaceByDeclaredChannel(_ int, turn Turn) int {
	return turn.Channel
}

// Scheduler assigns speech and silence segments to the two channels.
type Scheduler struct {
	Speech    SpeechRenderer
	Silence   SilenceRenderer
	Sampler   *Sampler
	Placement Placement
	// MinDuration floors effective durations; zero uses DefaultMinDuration.
	MinDuration float64
	Logger      *slog.Logger
	// OnStep, when set, observes each scheduled turn.
	OnStep func(Step)
}

// Build walks turns in order and returns the two-channel timeline. Any
// rendering failure aborts the build; no partial timeline is returned.
func (s *Scheduler) Build(ctx context.Context, turns []Turn, voices VoiceMap, p float64) (Timeline, error) {
	if len(turns) == 0 {
		return Timeline{}, ErrEmptyScript
	}
	sampler := s.Sampler
	if sampler == nil {
		sampler = NewSampler(nil, DefaultMaxOverlap)
	}
	place := s.Placement
	if place == nil {
		place = PlaceByParity
	}
	floor := s.MinDuration
	if floor <= 0 {
		floor = DefaultMinDuration
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var tl Timeline
	tl.Channels[0] = make([]Segment, 0, len(turns))
	tl.Channels[1] = make([]Segment, 0, len(turns))
	tl.Steps = make([]Step, 0, len(turns))

	var pending, overlap float64
	for idx, turn := range turns {
		if err := ctx.Err(); err != nil {
			return Timeline{}, err
		}
		voice, err := voices.Voice(turn.Channel)
		if err != nil {
			return Timeline{}, fmt.Errorf("turn %d: %w", idx, err)
		}
		channel := place(idx, turn)
		if channel != 1 && channel != 2 {
			return Timeline{}, fmt.Errorf("turn %d: placement returned channel %d", idx, channel)
		}

		speech, err := s.Speech.RenderSpeech(ctx, idx, turn, voice)
		if err != nil {
			return Timeline{}, fmt.Errorf("turn %d: render speech: %w", idx, err)
		}
		raw := speech.Duration
		if idx == 0 {
			overlap = sampler.Sample(raw, p)
		}

		step := Step{
			Index:       idx,
			Channel:     channel,
			Voice:       voice,
			RawDuration: raw,
			Overlap:     overlap,
			Carried:     pending,
		}
		effective := raw - overlap + pending
		if effective < floor {
			logger.Warn("effective duration below floor",
				slog.Int("turn", idx),
				slog.Float64("effective", effective),
				slog.Float64("floor", floor))
			effective = floor
			step.Clamped = true
		}
		step.EffectiveDuration = effective

		pending = -overlap
		overlap = sampler.Sample(effective, p)

		silence, err := s.Silence.RenderSilence(ctx, idx, effective)
		if err != nil {
			return Timeline{}, fmt.Errorf("turn %d: render silence: %w", idx, err)
		}

		speechSeg := Segment{Kind: Speech, Duration: raw, Clip: speech}
		silenceSeg := Segment{Kind: Silence, Duration: effective, Clip: silence}
		if channel == 1 {
			tl.Channels[0] = append(tl.Channels[0], speechSeg)
			tl.Channels[1] = append(tl.Channels[1], silenceSeg)
		} else {
			tl.Channels[0] = append(tl.Channels[0], silenceSeg)
			tl.Channels[1] = append(tl.Channels[1], speechSeg)
		}
		tl.Steps = append(tl.Steps, step)

		logger.Debug("turn scheduled",
			slog.Int("turn", idx),
			slog.Int("channel", channel),
			slog.Float64("raw", raw),
			slog.Float64("effective", effective),
			slog.Float64("overlap", step.Overlap))
		if s.OnStep != nil {
			s.OnStep(step)
		}
	}
	return tl, nil
}
