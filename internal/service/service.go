// Package service exposes call assembly as a NATS request handler.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/semaphore"

	"github.com/loqalabs/loqa-callsynth/internal/assembly"
	"github.com/loqalabs/loqa-callsynth/internal/config"
	"github.com/loqalabs/loqa-callsynth/internal/logging"
	"github.com/loqalabs/loqa-callsynth/internal/protocol"
	"github.com/loqalabs/loqa-callsynth/internal/timeline"
)

// Runner assembles one call. *assembly.Assembler satisfies it.
type Runner interface {
	Run(ctx context.Context, req assembly.Request) (assembly.Result, error)
}

type Service struct {
	cfg      config.ServiceConfig
	voices   config.VoicesConfig
	conn     *nats.Conn
	runner   Runner
	sem      *semaphore.Weighted
	sub      *nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	ready    atomic.Bool
	inflight atomic.Int64
	logger   *slog.Logger
}

func NewService(parent context.Context, cfg config.ServiceConfig, voices config.VoicesConfig, conn *nats.Conn, runner Runner, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	limit := cfg.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	return &Service{
		cfg:    cfg,
		voices: voices,
		conn:   conn,
		runner: runner,
		sem:    semaphore.NewWeighted(int64(limit)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(slog.String("component", "call-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.conn.Subscribe(protocol.SubjectSynthesizeRequest, s.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe synthesize requests: %w", err)
	}
	s.sub = sub
	s.ready.Store(true)
	s.logger.Info("listening for call requests", slog.String("subject", protocol.SubjectSynthesizeRequest))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready.Load()
}

// InFlight is the number of runs currently executing.
func (s *Service) InFlight() int64 { return s.inflight.Load() }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SynthesizeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode call request", logging.Err(err))
		s.respond(msg, protocol.SynthesizeResult{Error: "invalid request: " + err.Error()})
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			s.respond(msg, protocol.SynthesizeResult{RequestID: req.RequestID, Error: "service shutting down"})
			return
		}
		defer s.sem.Release(1)
		s.inflight.Add(1)
		defer s.inflight.Add(-1)

		ctx := s.ctx
		if s.cfg.RunTimeoutMS > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(s.ctx, time.Duration(s.cfg.RunTimeoutMS)*time.Millisecond)
			defer cancel()
		}

		result := protocol.SynthesizeResult{RequestID: req.RequestID}
		voices, err := s.voiceMap(req.Voices)
		if err == nil {
			var res assembly.Result
			res, err = s.runner.Run(ctx, assembly.Request{
				RequestID:          req.RequestID,
				Turns:              req.Turns,
				Voices:             voices,
				Language:           req.Language,
				OverlapProbability: req.OverlapProbability,
			})
			result.RunID = res.RunID
			result.Artifact = res.Artifact
			result.DurationSeconds = res.Duration
		}
		if err != nil {
			s.logger.Warn("call request failed", slog.String("request_id", req.RequestID), logging.Err(err))
			result.Error = err.Error()
		}
		s.respond(msg, result)
	}()
}

// voiceMap merges request voices over the configured defaults.
func (s *Service) voiceMap(requested map[string]string) (timeline.VoiceMap, error) {
	voices := timeline.VoiceMap{1: s.voices.Channel1, 2: s.voices.Channel2}
	for key, voice := range requested {
		channel, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("voice channel %q is not a number", key)
		}
		voices[channel] = voice
	}
	return voices, nil
}

func (s *Service) respond(msg *nats.Msg, result protocol.SynthesizeResult) {
	result.Timestamp = time.Now().UTC()
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("failed to marshal call result", logging.Err(err))
		return
	}
	if msg.Reply != "" {
		if err := msg.Respond(data); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			s.logger.Warn("failed to reply to call request", logging.Err(err))
		}
	}
	if err := s.conn.Publish(protocol.SubjectSynthesizeDone, data); err != nil {
		s.logger.Warn("failed to publish call result", logging.Err(err))
	}
}
