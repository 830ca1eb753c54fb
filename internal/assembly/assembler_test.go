package assembly

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-callsynth/internal/audio"
	"github.com/loqalabs/loqa-callsynth/internal/config"
	"github.com/loqalabs/loqa-callsynth/internal/eventstore"
	"github.com/loqalabs/loqa-callsynth/internal/timeline"
	"github.com/loqalabs/loqa-callsynth/internal/tts"
)

var scripted = map[string]float64{"a": 2.0, "b": 1.5, "c": 3.0, "d": 1.0}

func scriptedDuration(text string) float64 { return scripted[text] }

func fourTurns() []timeline.Turn {
	return []timeline.Turn{
		{Channel: 1, Text: "a"},
		{Channel: 2, Text: "b"},
		{Channel: 1, Text: "c"},
		{Channel: 2, Text: "d"},
	}
}

var voiceMap = timeline.VoiceMap{1: "Joanna", 2: "Matthew"}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	workDir   string
	outputDir string
	store     *eventstore.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	store, err := eventstore.Open(context.Background(), config.EventStoreConfig{
		Path:          filepath.Join(root, "runs.db"),
		RetentionMode: "session",
	}, discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return fixture{workDir: filepath.Join(root, "tmp"), outputDir: filepath.Join(root, "out"), store: store}
}

func (f fixture) assembler(t *testing.T, synth tts.Synthesizer, mutate func(*Options)) *Assembler {
	t.Helper()
	opts := Options{
		SampleRate: 16000,
		WorkDir:    f.workDir,
		OutputDir:  f.outputDir,
		Format:     "wav",
		Seed:       7,
	}
	if mutate != nil {
		mutate(&opts)
	}
	a, err := New(synth, audio.NewNative(), opts, f.store, discard())
	require.NoError(t, err)
	return a
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	list, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range list {
		names = append(names, e.Name())
	}
	return names
}

func zero() *float64 { p := 0.0; return &p }

func TestRunWithoutOverlap(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(t, tts.NewMockSynth(16000, scriptedDuration), nil)

	res, err := a.Run(context.Background(), Request{Turns: fourTurns(), Voices: voiceMap, Language: "en-us", OverlapProbability: zero()})
	require.NoError(t, err)

	assert.InDelta(t, 7.5, res.Timeline.Duration(1), 1e-9)
	assert.InDelta(t, 7.5, res.Timeline.Duration(2), 1e-9)
	assert.InDelta(t, 7.5, res.Duration, 1e-6)
	for _, step := range res.Timeline.Steps {
		assert.Zero(t, step.Overlap)
		assert.InDelta(t, step.RawDuration, step.EffectiveDuration, 1e-9)
	}

	assert.Equal(t, f.outputDir, filepath.Dir(res.Artifact))
	assert.Regexp(t, regexp.MustCompile(`^stereo-[0-9a-f-]{36}_en-us\.wav$`), filepath.Base(res.Artifact))
	format, samples, err := audio.ReadWAV(res.Artifact)
	require.NoError(t, err)
	assert.Equal(t, 2, format.Channels)
	assert.Equal(t, 16000, format.SampleRate)
	assert.Len(t, samples, 2*120000)

	assert.Empty(t, entries(t, f.workDir), "intermediate files must be removed")
	assert.Equal(t, []string{filepath.Base(res.Artifact)}, entries(t, f.outputDir))
}

func TestRunDurationsAreRepeatable(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(t, tts.NewMockSynth(16000, scriptedDuration), nil)
	req := Request{Turns: fourTurns(), Voices: voiceMap, Language: "en-us", OverlapProbability: zero()}

	first, err := a.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := a.Run(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Timeline.Steps, second.Timeline.Steps)
	assert.InDelta(t, first.Duration, second.Duration, 1e-9)
}

func TestRunRecordsLedger(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(t, tts.NewMockSynth(16000, scriptedDuration), nil)

	res, err := a.Run(context.Background(), Request{RequestID: "req-1", Turns: fourTurns(), Voices: voiceMap, Language: "en-us", OverlapProbability: zero()})
	require.NoError(t, err)

	run, err := f.store.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, eventstore.StatusCompleted, run.Status)
	assert.Equal(t, "req-1", run.RequestID)
	assert.Equal(t, res.Artifact, run.Artifact)
	assert.Equal(t, 4, run.Turns)

	events, err := f.store.ListRunEvents(context.Background(), res.RunID, 0)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		eventstore.EventRunStarted,
		eventstore.EventTurnScheduled,
		eventstore.EventTurnScheduled,
		eventstore.EventTurnScheduled,
		eventstore.EventTurnScheduled,
		eventstore.EventRunCompleted,
	}, types)
	assert.Contains(t, string(events[1].Payload), `"raw_duration":2`)
}

func TestRunWithOverlapKeepsInvariants(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(t, tts.NewMockSynth(16000, scriptedDuration), func(o *Options) { o.OverlapProbability = 1 })

	res, err := a.Run(context.Background(), Request{Turns: fourTurns(), Voices: voiceMap, Language: "en-us"})
	require.NoError(t, err)

	steps := res.Timeline.Steps
	require.Len(t, steps, 4)
	for i, step := range steps {
		assert.GreaterOrEqual(t, step.Overlap, 0.0)
		assert.LessOrEqual(t, step.Overlap, 2.0)
		if step.Clamped {
			assert.InDelta(t, timeline.DefaultMinDuration, step.EffectiveDuration, 1e-9)
		} else {
			assert.InDelta(t, step.RawDuration-step.Overlap+step.Carried, step.EffectiveDuration, 1e-9)
		}
		if i > 0 {
			assert.InDelta(t, -steps[i-1].Overlap, step.Carried, 1e-9)
		}
	}
	longest := max(res.Timeline.Duration(1), res.Timeline.Duration(2))
	assert.InDelta(t, longest, res.Duration, 1e-3)
	assert.Empty(t, entries(t, f.workDir))
}

func TestRunWithPrefetch(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(t, tts.NewMockSynth(16000, scriptedDuration), func(o *Options) { o.Prefetch = 3 })

	res, err := a.Run(context.Background(), Request{Turns: fourTurns(), Voices: voiceMap, Language: "fr-fr", OverlapProbability: zero()})
	require.NoError(t, err)
	assert.InDelta(t, 7.5, res.Duration, 1e-6)
	assert.Empty(t, entries(t, f.workDir))
}

type failingSynth struct {
	tts.Synthesizer
	failOn string
}

func (s failingSynth) Synthesize(ctx context.Context, req tts.SynthRequest) (<-chan tts.SynthChunk, <-chan error) {
	if req.Text != s.failOn {
		return s.Synthesizer.Synthesize(ctx, req)
	}
	chunks := make(chan tts.SynthChunk)
	errs := make(chan error, 1)
	errs <- errors.New("provider throttled")
	close(chunks)
	close(errs)
	return chunks, errs
}

func TestRunFailureCleansUp(t *testing.T) {
	f := newFixture(t)
	synth := failingSynth{Synthesizer: tts.NewMockSynth(16000, scriptedDuration), failOn: "c"}
	a := f.assembler(t, synth, nil)

	_, err := a.Run(context.Background(), Request{Turns: fourTurns(), Voices: voiceMap, Language: "en-us", OverlapProbability: zero()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turn 2")
	assert.Contains(t, err.Error(), "provider throttled")

	assert.Empty(t, entries(t, f.workDir))
	assert.Empty(t, entries(t, f.outputDir))

	runs, err := f.store.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, eventstore.StatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "provider throttled")
}

func TestRunUnknownChannel(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(t, tts.NewMockSynth(16000, scriptedDuration), nil)

	turns := fourTurns()
	turns[1].Channel = 3
	_, err := a.Run(context.Background(), Request{Turns: turns, Voices: voiceMap, Language: "en-us"})
	require.ErrorIs(t, err, timeline.ErrUnknownChannel)
	assert.Empty(t, entries(t, f.workDir))
}

func TestRunRejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(t, tts.NewMockSynth(16000, scriptedDuration), nil)

	_, err := a.Run(context.Background(), Request{Voices: voiceMap, Language: "en-us"})
	require.ErrorIs(t, err, timeline.ErrEmptyScript)

	_, err = a.Run(context.Background(), Request{Turns: fourTurns(), Voices: voiceMap})
	require.Error(t, err)

	p := 1.5
	_, err = a.Run(context.Background(), Request{Turns: fourTurns(), Voices: voiceMap, Language: "en-us", OverlapProbability: &p})
	require.Error(t, err)
}

func TestRunRejectsUnsafeLanguage(t *testing.T) {
	f := newFixture(t)
	calls := 0
	a := f.assembler(t, tts.NewMockSynth(16000, func(text string) float64 {
		calls++
		return scriptedDuration(text)
	}), nil)

	for _, lang := range []string{"x/../../escaped", "en/us", "..", `en\us`, "-en", "en us", ""} {
		_, err := a.Run(context.Background(), Request{Turns: fourTurns(), Voices: voiceMap, Language: lang})
		require.ErrorIs(t, err, ErrInvalidLanguage, "language %q", lang)
	}
	assert.Zero(t, calls, "no turn should be synthesized")
	assert.Empty(t, entries(t, f.outputDir))
	root := filepath.Dir(f.outputDir)
	assert.NoFileExists(t, filepath.Join(root, "escaped.wav"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(root), "escaped.wav"))

	res, err := a.Run(context.Background(), Request{Turns: fourTurns(), Voices: voiceMap, Language: "pt_BR", OverlapProbability: zero()})
	require.NoError(t, err)
	assert.Equal(t, f.outputDir, filepath.Dir(res.Artifact))
	assert.Equal(t, "stereo-"+res.RunID+"_pt_BR.wav", filepath.Base(res.Artifact))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Assembly.Placement = "declared"
	cfg.Assembly.MinSegmentMS = 80
	opts := OptionsFromConfig(cfg)
	assert.InDelta(t, 0.08, opts.MinDuration, 1e-9)
	assert.Equal(t, 16000, opts.SampleRate)
	assert.Equal(t, 2, opts.Placement(0, timeline.Turn{Channel: 2}))
}
