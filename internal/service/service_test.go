package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-callsynth/internal/assembly"
	"github.com/loqalabs/loqa-callsynth/internal/config"
	"github.com/loqalabs/loqa-callsynth/internal/natsserver"
	"github.com/loqalabs/loqa-callsynth/internal/protocol"
	"github.com/loqalabs/loqa-callsynth/internal/timeline"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startBus(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1, StoreDir: t.TempDir()}, discard())
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

type stubRunner struct {
	mu       sync.Mutex
	requests []assembly.Request
	active   atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	err      error
}

func (r *stubRunner) Run(ctx context.Context, req assembly.Request) (assembly.Result, error) {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return assembly.Result{RunID: "run-failed"}, r.err
	}
	return assembly.Result{RunID: "run-1", Artifact: "stereo-run-1_" + req.Language + ".wav", Duration: 7.5}, nil
}

func newService(t *testing.T, conn *nats.Conn, runner Runner, limit int) *Service {
	t.Helper()
	svc := NewService(context.Background(),
		config.ServiceConfig{Enabled: true, MaxConcurrency: limit, RunTimeoutMS: 5000},
		config.VoicesConfig{Channel1: "Joanna", Channel2: "Matthew"},
		conn, runner, discard())
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Close)
	require.NoError(t, conn.Flush())
	return svc
}

func request(t *testing.T, conn *nats.Conn, req protocol.SynthesizeRequest) protocol.SynthesizeResult {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	msg, err := conn.Request(protocol.SubjectSynthesizeRequest, data, 5*time.Second)
	require.NoError(t, err)
	var res protocol.SynthesizeResult
	require.NoError(t, json.Unmarshal(msg.Data, &res))
	return res
}

func TestServiceRepliesAndPublishesDone(t *testing.T) {
	conn := startBus(t)
	runner := &stubRunner{}
	svc := newService(t, conn, runner, 2)
	assert.True(t, svc.Healthy())

	done := make(chan *nats.Msg, 1)
	sub, err := conn.ChanSubscribe(protocol.SubjectSynthesizeDone, done)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	res := request(t, conn, protocol.SynthesizeRequest{
		RequestID: "req-7",
		Turns:     []timeline.Turn{{Channel: 1, Text: "hi"}, {Channel: 2, Text: "hello"}},
		Voices:    map[string]string{"2": "Brian"},
		Language:  "en-gb",
	})
	assert.Equal(t, "req-7", res.RequestID)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "stereo-run-1_en-gb.wav", res.Artifact)
	assert.Equal(t, 7.5, res.DurationSeconds)
	assert.Empty(t, res.Error)

	select {
	case msg := <-done:
		var notice protocol.SynthesizeResult
		require.NoError(t, json.Unmarshal(msg.Data, &notice))
		assert.Equal(t, "req-7", notice.RequestID)
	case <-time.After(5 * time.Second):
		t.Fatal("no completion notice published")
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.requests, 1)
	assert.Equal(t, timeline.VoiceMap{1: "Joanna", 2: "Brian"}, runner.requests[0].Voices)
}

func TestServiceReportsRunErrors(t *testing.T) {
	conn := startBus(t)
	newService(t, conn, &stubRunner{err: errors.New("sox exited with code 2")}, 1)

	res := request(t, conn, protocol.SynthesizeRequest{Turns: []timeline.Turn{{Channel: 1, Text: "hi"}}, Language: "en-us"})
	assert.NotEmpty(t, res.RequestID)
	assert.Contains(t, res.Error, "sox exited with code 2")
}

func TestServiceRejectsBadPayload(t *testing.T) {
	conn := startBus(t)
	runner := &stubRunner{}
	newService(t, conn, runner, 1)

	msg, err := conn.Request(protocol.SubjectSynthesizeRequest, []byte("{not json"), 5*time.Second)
	require.NoError(t, err)
	var res protocol.SynthesizeResult
	require.NoError(t, json.Unmarshal(msg.Data, &res))
	assert.Contains(t, res.Error, "invalid request")
	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Empty(t, runner.requests)
}

func TestServiceRejectsBadVoiceKey(t *testing.T) {
	conn := startBus(t)
	newService(t, conn, &stubRunner{}, 1)

	res := request(t, conn, protocol.SynthesizeRequest{Voices: map[string]string{"left": "Amy"}, Language: "en-us"})
	assert.Contains(t, res.Error, "not a number")
}

func TestServiceBoundsConcurrency(t *testing.T) {
	conn := startBus(t)
	runner := &stubRunner{delay: 100 * time.Millisecond}
	newService(t, conn, runner, 1)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, _ := json.Marshal(protocol.SynthesizeRequest{Language: "en-us"})
			_, err := conn.Request(protocol.SubjectSynthesizeRequest, data, 5*time.Second)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), runner.peak.Load())
}
