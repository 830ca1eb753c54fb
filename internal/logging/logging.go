// Package logging builds the slog logger shared by the CLI and the daemon.
package logging

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/loqalabs/loqa-callsynth/internal/config"
)

func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("invalid log level: " + level)
	}
}

// New writes to out, and additionally to a rotating file when
// telemetry.log_file is set. Production environments log JSON. The returned
// closer flushes the file sink and is never nil.
func New(cfg config.Config, out io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Telemetry.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Assembly.Verbose && level > slog.LevelInfo {
		level = slog.LevelInfo
	}

	var closer io.Closer = nopCloser{}
	if path := strings.TrimSpace(cfg.Telemetry.LogFile); path != "" {
		file := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		out = io.MultiWriter(out, file)
		closer = file
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Environment) {
	case "production", "prod":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	logger := slog.New(handler).With(slog.String("runtime", cfg.RuntimeName))
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Err is the attribute every component uses to log an error.
func Err(err error) slog.Attr {
	return slog.String("error", err.Error())
}
