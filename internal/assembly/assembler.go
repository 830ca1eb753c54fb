// Package assembly turns a conversation script into a two-channel stereo
// recording: it synthesizes every turn, schedules speech and silence onto the
// two tracks, joins each track and interleaves them into the final artifact.
package assembly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-callsynth/internal/audio"
	"github.com/loqalabs/loqa-callsynth/internal/config"
	"github.com/loqalabs/loqa-callsynth/internal/eventstore"
	"github.com/loqalabs/loqa-callsynth/internal/logging"
	"github.com/loqalabs/loqa-callsynth/internal/timeline"
	"github.com/loqalabs/loqa-callsynth/internal/tts"
)

const instrumentationName = "github.com/loqalabs/loqa-callsynth/assembly"

// ErrInvalidLanguage is returned for language codes that cannot be used in an
// artifact file name.
var ErrInvalidLanguage = errors.New("invalid language code")

var languagePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Ledger receives the lifecycle of each run. *eventstore.Store satisfies it.
type Ledger interface {
	StartRun(ctx context.Context, run eventstore.Run) error
	AppendRunEvent(ctx context.Context, evt eventstore.RunEvent) error
	FinishRun(ctx context.Context, out eventstore.Outcome) error
}

// Options tune a run. Zero values fall back to the package defaults.
type Options struct {
	OverlapProbability float64
	MaxOverlap         float64
	MinDuration        float64
	SampleRate         int
	WorkDir            string
	OutputDir          string
	Format             string
	Placement          timeline.Placement
	Prefetch           int
	// Seed makes overlap sampling reproducible when non-zero.
	Seed    uint64
	Verbose bool
}

// OptionsFromConfig maps the assembly and tts sections onto Options.
func OptionsFromConfig(cfg config.Config) Options {
	a := cfg.Assembly
	opts := Options{
		OverlapProbability: a.OverlapProbability,
		MaxOverlap:         a.MaxOverlapSeconds,
		MinDuration:        float64(a.MinSegmentMS) / 1000,
		SampleRate:         cfg.TTS.SampleRate,
		WorkDir:            a.WorkDir,
		OutputDir:          a.OutputDir,
		Format:             a.Format,
		Placement:          timeline.PlaceByParity,
		Prefetch:           a.Prefetch,
		Seed:               a.Seed,
		Verbose:            a.Verbose,
	}
	if a.Placement == "declared" {
		opts.Placement = timeline.PlaceByDeclaredChannel
	}
	return opts
}

// Request is one conversation to assemble.
type Request struct {
	RequestID string
	Turns     []timeline.Turn
	Voices    timeline.VoiceMap
	Language  string
	// OverlapProbability overrides Options.OverlapProbability when set.
	OverlapProbability *float64
}

// Result describes a finished run.
type Result struct {
	RunID    string
	Artifact string
	// Duration is the length of the longer channel in seconds.
	Duration float64
	Timeline timeline.Timeline
}

type Assembler struct {
	synth  tts.Synthesizer
	tool   audio.Tool
	opts   Options
	ledger Ledger
	logger *slog.Logger

	tracer      trace.Tracer
	runCounter  metric.Int64Counter
	runSeconds  metric.Float64Histogram
	overlapHist metric.Float64Histogram
	clampCount  metric.Int64Counter
}

// New builds an Assembler. ledger may be nil.
func New(synth tts.Synthesizer, tool audio.Tool, opts Options, ledger Ledger, logger *slog.Logger) (*Assembler, error) {
	if synth == nil || tool == nil {
		return nil, errors.New("assembly: synthesizer and tool are required")
	}
	if opts.MaxOverlap <= 0 {
		opts.MaxOverlap = timeline.DefaultMaxOverlap
	}
	if opts.MinDuration <= 0 {
		opts.MinDuration = timeline.DefaultMinDuration
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.WorkDir == "" {
		opts.WorkDir = "./tmp"
	}
	if opts.Format == "" {
		opts.Format = audio.EncodingWAV
	}
	if opts.Prefetch < 1 {
		opts.Prefetch = 1
	}
	if opts.Placement == nil {
		opts.Placement = timeline.PlaceByParity
	}

	meter := otel.Meter(instrumentationName)
	runCounter, err := meter.Int64Counter("callsynth.runs", metric.WithDescription("Completed and failed assembly runs"))
	if err != nil {
		return nil, err
	}
	runSeconds, err := meter.Float64Histogram("callsynth.run.duration", metric.WithDescription("Wall time of an assembly run"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	overlapHist, err := meter.Float64Histogram("callsynth.overlap", metric.WithDescription("Overlap applied to a turn"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	clampCount, err := meter.Int64Counter("callsynth.segments.clamped", metric.WithDescription("Silences raised to the minimum segment length"))
	if err != nil {
		return nil, err
	}

	return &Assembler{
		synth:       synth,
		tool:        tool,
		opts:        opts,
		ledger:      ledger,
		logger:      logger.With(slog.String("component", "assembler")),
		tracer:      otel.Tracer(instrumentationName),
		runCounter:  runCounter,
		runSeconds:  runSeconds,
		overlapHist: overlapHist,
		clampCount:  clampCount,
	}, nil
}

func (a *Assembler) sampler() *timeline.Sampler {
	if a.opts.Seed != 0 {
		return timeline.NewSeededSampler(a.opts.Seed, a.opts.MaxOverlap)
	}
	return timeline.NewSampler(nil, a.opts.MaxOverlap)
}

// Run assembles req into a stereo artifact. Intermediate files are removed on
// every path; a cleanup failure after a successful mix is logged and the
// artifact is still returned.
func (a *Assembler) Run(ctx context.Context, req Request) (res Result, err error) {
	if len(req.Turns) == 0 {
		return Result{}, timeline.ErrEmptyScript
	}
	language := strings.TrimSpace(req.Language)
	if language == "" {
		return Result{}, fmt.Errorf("assembly: language is required: %w", ErrInvalidLanguage)
	}
	if !languagePattern.MatchString(language) {
		return Result{}, fmt.Errorf("assembly: language %q: %w", language, ErrInvalidLanguage)
	}
	p := a.opts.OverlapProbability
	if req.OverlapProbability != nil {
		p = *req.OverlapProbability
	}
	if p < 0 || p > 1 {
		return Result{}, fmt.Errorf("assembly: overlap probability %v outside [0, 1]", p)
	}

	ws, err := NewWorkspace(a.opts.WorkDir, a.opts.OutputDir, a.opts.Format, a.logger, a.opts.Verbose)
	if err != nil {
		return Result{}, err
	}
	logger := a.logger.With(slog.String("run_id", ws.RunID))
	ctx, span := a.tracer.Start(ctx, "assembly.run", trace.WithAttributes(
		attribute.String("run.id", ws.RunID),
		attribute.String("run.language", language),
		attribute.Int("run.turns", len(req.Turns)),
	))
	started := time.Now()

	a.record(ctx, logger, func(ctx context.Context) error {
		return a.ledger.StartRun(ctx, eventstore.Run{ID: ws.RunID, RequestID: req.RequestID, Language: language, Turns: len(req.Turns)})
	})
	a.event(ctx, logger, ws.RunID, eventstore.EventRunStarted, map[string]any{
		"language":            language,
		"turns":               len(req.Turns),
		"overlap_probability": p,
		"tool":                a.tool.Name(),
	})

	defer func() {
		if relErr := ws.Release(err != nil); relErr != nil {
			logger.Warn("failed to remove run files", logging.Err(relErr))
		}
		status := "completed"
		outcome := eventstore.Outcome{RunID: ws.RunID, Status: eventstore.StatusCompleted, Artifact: res.Artifact, Duration: res.Duration}
		evtType := eventstore.EventRunCompleted
		if err != nil {
			status = "failed"
			outcome = eventstore.Outcome{RunID: ws.RunID, Status: eventstore.StatusFailed, Error: err.Error()}
			evtType = eventstore.EventRunFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("call assembly failed", logging.Err(err))
		} else {
			logger.Info("call assembled",
				slog.String("artifact", res.Artifact),
				slog.Float64("duration_seconds", res.Duration))
		}
		// The ledger must still be written when ctx was cancelled.
		bg := context.WithoutCancel(ctx)
		a.event(bg, logger, ws.RunID, evtType, outcome)
		a.record(bg, logger, func(ctx context.Context) error { return a.ledger.FinishRun(ctx, outcome) })
		attrs := metric.WithAttributes(attribute.String("status", status), attribute.String("tool", a.tool.Name()))
		a.runCounter.Add(bg, 1, attrs)
		a.runSeconds.Record(bg, time.Since(started).Seconds(), attrs)
		span.End()
	}()

	format := audio.Mono16(a.opts.SampleRate)
	render := newRenderer(a.synth, ws, format, language)
	if a.opts.Prefetch > 1 {
		if err := render.prefetch(ctx, req.Turns, req.Voices, a.opts.Prefetch); err != nil {
			return Result{}, fmt.Errorf("synthesize turns: %w", err)
		}
	}

	sched := timeline.Scheduler{
		Speech:      render,
		Silence:     render,
		Sampler:     a.sampler(),
		Placement:   a.opts.Placement,
		MinDuration: a.opts.MinDuration,
		Logger:      logger,
		OnStep: func(step timeline.Step) {
			a.overlapHist.Record(ctx, step.Overlap)
			if step.Clamped {
				a.clampCount.Add(ctx, 1)
			}
			a.event(ctx, logger, ws.RunID, eventstore.EventTurnScheduled, step)
		},
	}
	tl, err := sched.Build(ctx, req.Turns, req.Voices, p)
	if err != nil {
		return Result{}, err
	}
	if err := tl.Validate(); err != nil {
		return Result{}, err
	}

	tracks := [2]string{ws.ChannelPath(1), ws.ChannelPath(2)}
	for i, track := range tracks {
		if err := a.tool.Concat(ctx, tl.Clips(i+1), track); err != nil {
			return Result{}, fmt.Errorf("assemble channel %d: %w", i+1, err)
		}
	}
	artifact := ws.ArtifactPath(language)
	if err := a.tool.Merge(ctx, tracks[0], tracks[1], artifact); err != nil {
		return Result{}, fmt.Errorf("mix stereo: %w", err)
	}

	duration := math.Max(tl.Duration(1), tl.Duration(2))
	if a.opts.Format == audio.EncodingWAV {
		if probed, perr := audio.Probe(artifact); perr == nil {
			duration = probed
		} else {
			logger.Warn("failed to probe artifact", logging.Err(perr))
		}
	}
	return Result{RunID: ws.RunID, Artifact: artifact, Duration: duration, Timeline: tl}, nil
}

func (a *Assembler) record(ctx context.Context, logger *slog.Logger, fn func(context.Context) error) {
	if a.ledger == nil {
		return
	}
	if err := fn(ctx); err != nil {
		logger.Warn("failed to update run ledger", logging.Err(err))
	}
}

func (a *Assembler) event(ctx context.Context, logger *slog.Logger, runID, typ string, payload any) {
	if a.ledger == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("failed to encode run event", slog.String("type", typ), logging.Err(err))
		return
	}
	a.record(ctx, logger, func(ctx context.Context) error {
		return a.ledger.AppendRunEvent(ctx, eventstore.RunEvent{RunID: runID, Type: typ, Payload: data})
	})
}

// NewTool returns the audio tool selected by cfg.Tool.
func NewTool(cfg config.AssemblyConfig) (audio.Tool, error) {
	switch cfg.Tool {
	case "", "native":
		return audio.NewNative(), nil
	case "sox":
		return audio.NewSox(cfg.SoxCommand)
	default:
		return nil, fmt.Errorf("unsupported audio tool %q", cfg.Tool)
	}
}

// FromConfig wires the configured synthesizer and audio tool into an Assembler.
func FromConfig(cfg config.Config, ledger Ledger, logger *slog.Logger) (*Assembler, error) {
	synth, err := tts.New(cfg.TTS)
	if err != nil {
		return nil, fmt.Errorf("create synthesizer: %w", err)
	}
	tool, err := NewTool(cfg.Assembly)
	if err != nil {
		return nil, err
	}
	return New(synth, tool, OptionsFromConfig(cfg), ledger, logger)
}
