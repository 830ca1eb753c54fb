package natsserver

import (
	"io"
	"log/slog"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-callsynth/internal/config"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStartDisabled(t *testing.T) {
	srv, err := Start(config.BusConfig{Embedded: false}, discard())
	require.NoError(t, err)
	assert.Nil(t, srv)
	assert.Empty(t, srv.ClientURL())
	srv.Shutdown()
}

func TestStartAcceptsClients(t *testing.T) {
	srv, err := Start(config.BusConfig{Embedded: true, Port: -1, StoreDir: t.TempDir()}, discard())
	require.NoError(t, err)
	defer srv.Shutdown()

	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer conn.Close()
	assert.True(t, conn.IsConnected())
}
