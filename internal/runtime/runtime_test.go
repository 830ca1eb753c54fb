package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-callsynth/internal/config"
)

func TestHealthAlwaysOK(t *testing.T) {
	rt := New(config.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	rt.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReadyBeforeStart(t *testing.T) {
	rt := New(config.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	rt.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestStartServesUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.HTTP = config.HTTPConfig{Bind: "127.0.0.1", Port: freePort(t)}
	cfg.Telemetry.PrometheusBind = ""
	cfg.Bus = config.BusConfig{Embedded: true, Port: -1, StoreDir: filepath.Join(dir, "nats"), ConnectTimeout: 2000}
	cfg.EventStore = config.EventStoreConfig{RetentionMode: "ephemeral"}
	cfg.Assembly.WorkDir = filepath.Join(dir, "tmp")
	cfg.Assembly.OutputDir = dir

	rt := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- rt.Start(ctx) }()

	readyURL := fmt.Sprintf("http://127.0.0.1:%d/readyz", cfg.HTTP.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(readyURL)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond)
	require.True(t, rt.ready.Load())
	assert.True(t, rt.service.Healthy())
	assert.True(t, rt.bus.Healthy())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("runtime did not stop after cancellation")
	}
	assert.False(t, rt.ready.Load())
	_, err := http.Get(readyURL)
	assert.Error(t, err, "http server should be closed")
}
