package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-callsynth/internal/script"
)

func newGenerateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "generate",
		Short: "Generate a conversation script from scenario guidelines",
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

			template, _ := cmd.Flags().GetString("template")
			language, _ := cmd.Flags().GetString("language")
			guidelines, err := os.ReadFile(template)
			if err != nil {
				return err
			}

			gen, err := script.NewGenerator(cfg.Generator)
			if err != nil {
				return err
			}
			req := script.BuildRequest(cfg.Generator, string(guidelines), language)
			logger.Debug("generating conversation", slog.String("prompt", req.Prompt))

			turns, err := script.Generate(cmd.Context(), gen, req)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("output")
			if out == "" {
				out = script.OutputName(template, language)
			}
			if err := script.Save(out, turns); err != nil {
				return err
			}
			logger.Info("conversation written", slog.String("path", out), slog.Int("turns", len(turns)))
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	c.Flags().StringP("template", "t", "", "Conversation guidelines")
	c.Flags().StringP("language", "l", "en-us", "The target language")
	c.Flags().StringP("output", "o", "", "Output path (default {template}_{language}.conversation.json)")
	_ = c.MarkFlagRequired("template")
	return c
}
