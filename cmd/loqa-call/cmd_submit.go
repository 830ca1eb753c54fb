package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-callsynth/internal/bus"
	"github.com/loqalabs/loqa-callsynth/internal/protocol"
	"github.com/loqalabs/loqa-callsynth/internal/script"
)

func newSubmitCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "submit",
		Short: "Send a conversation script to a running loqa-calld worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, closer, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer closer.Close()

			path, _ := cmd.Flags().GetString("template")
			turns, err := script.Load(path)
			if err != nil {
				return err
			}
			if err := script.Validate(turns); err != nil {
				return err
			}
			req := protocol.SynthesizeRequest{Turns: turns, Voices: map[string]string{}}
			req.Language, _ = cmd.Flags().GetString("language")
			req.RequestID, _ = cmd.Flags().GetString("request-id")
			if v, _ := cmd.Flags().GetString("vid1"); v != "" {
				req.Voices["1"] = v
			}
			if v, _ := cmd.Flags().GetString("vid2"); v != "" {
				req.Voices["2"] = v
			}
			if cmd.Flags().Changed("threshold") {
				p, _ := cmd.Flags().GetFloat64("threshold")
				req.OverlapProbability = &p
			}

			client, err := bus.Connect(cmd.Context(), cfg.Bus, cfg.RuntimeName+"-submit", logger.With(slog.String("component", "bus")))
			if err != nil {
				return err
			}
			defer client.Close()

			timeout, _ := cmd.Flags().GetDuration("timeout")
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var res protocol.SynthesizeResult
			if err := client.RequestJSON(ctx, protocol.SubjectSynthesizeRequest, req, &res); err != nil {
				return err
			}
			if res.Error != "" {
				return errors.New(res.Error)
			}
			logger.Info("worker assembled call", slog.String("run_id", res.RunID), slog.Float64("duration_seconds", res.DurationSeconds))
			fmt.Fprintln(cmd.OutOrStdout(), res.Artifact)
			return nil
		},
	}
	c.Flags().StringP("template", "t", "", "The conversation script")
	c.Flags().StringP("language", "l", "", "The target language")
	c.Flags().String("vid1", "", "Voice for channel 1 (worker default when empty)")
	c.Flags().String("vid2", "", "Voice for channel 2 (worker default when empty)")
	c.Flags().Float64("threshold", 0, "Overlap trigger probability")
	c.Flags().String("request-id", "", "Correlation id echoed in the result")
	c.Flags().Duration("timeout", 10*time.Minute, "How long to wait for the worker")
	_ = c.MarkFlagRequired("template")
	_ = c.MarkFlagRequired("language")
	return c
}
