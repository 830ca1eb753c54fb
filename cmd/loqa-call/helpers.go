package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-callsynth/internal/config"
	"github.com/loqalabs/loqa-callsynth/internal/eventstore"
	"github.com/loqalabs/loqa-callsynth/internal/logging"
)

const defaultConfigPath = "loqa-call.yaml"

func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to configuration file")
	cmd.PersistentFlags().String("log-level", "", "Override telemetry.log_level (debug|info|warn|error)")
}

// loadConfig reads the config file named by --config. A missing default file
// is not an error; an explicitly requested one is.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Telemetry.LogLevel = lvl
	}
	return cfg, nil
}

// newLogger logs to stderr so stdout stays parseable.
func newLogger(cmd *cobra.Command, cfg config.Config) (*slog.Logger, io.Closer, error) {
	return logging.New(cfg, cmd.ErrOrStderr())
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*eventstore.Store, error) {
	return eventstore.Open(ctx, cfg.EventStore, logger.With(slog.String("component", "eventstore")))
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// rawJSON embeds an already encoded payload, or null when empty.
func rawJSON(data []byte) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(data)
}
