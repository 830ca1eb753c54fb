package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-callsynth/internal/assembly"
	"github.com/loqalabs/loqa-callsynth/internal/audio"
	"github.com/loqalabs/loqa-callsynth/internal/config"
	"github.com/loqalabs/loqa-callsynth/internal/logging"
	"github.com/loqalabs/loqa-callsynth/internal/script"
	"github.com/loqalabs/loqa-callsynth/internal/timeline"
)

func newSynthesizeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "synthesize",
		Short: "Assemble a stereo call from a conversation script",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applySynthesizeFlags(cmd, &cfg); err != nil {
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
			language, _ := cmd.Flags().GetString("language")

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			assembler, err := assembly.FromConfig(cfg, store, logger)
			if err != nil {
				return err
			}
			res, err := assembler.Run(ctx, assembly.Request{
				Turns:    turns,
				Voices:   timeline.VoiceMap{1: cfg.Voices.Channel1, 2: cfg.Voices.Channel2},
				Language: language,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Artifact)

			if play, _ := cmd.Flags().GetBool("play"); play {
				if err := audio.Play(ctx, cfg.Assembly.PlayCommand, res.Artifact); err != nil {
					logger.Warn("playback failed", logging.Err(err))
				}
			}
			return nil
		},
	}
	c.Flags().StringP("template", "t", "", "JSON conversation script")
	c.Flags().StringP("language", "l", "", "Language code used in the artifact name")
	c.Flags().String("vid1", "", "Voice for channel 1 (default from voices.channel_1)")
	c.Flags().String("vid2", "", "Voice for channel 2 (default from voices.channel_2)")
	c.Flags().Float64("threshold", 0, "Probability that a turn overlaps the next one")
	c.Flags().String("tmp-dir", "", "Directory for intermediate clips")
	c.Flags().String("output-dir", "", "Directory for the stereo artifact")
	c.Flags().String("tool", "", "Audio tool: native or sox")
	c.Flags().String("format", "", "Artifact format (wav, or any format sox can write)")
	c.Flags().Int("prefetch", 0, "Number of turns synthesized concurrently")
	c.Flags().Uint64("seed", 0, "Seed for reproducible overlap sampling")
	c.Flags().BoolP("verbose", "v", false, "Log every removed intermediate file")
	c.Flags().Bool("play", false, "Play the artifact when done")
	_ = c.MarkFlagRequired("template")
	_ = c.MarkFlagRequired("language")
	return c
}

// applySynthesizeFlags copies explicitly set flags over cfg and revalidates
// the combination.
func applySynthesizeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("vid1") {
		cfg.Voices.Channel1, _ = flags.GetString("vid1")
	}
	if flags.Changed("vid2") {
		cfg.Voices.Channel2, _ = flags.GetString("vid2")
	}
	if flags.Changed("threshold") {
		cfg.Assembly.OverlapProbability, _ = flags.GetFloat64("threshold")
	}
	if flags.Changed("tmp-dir") {
		cfg.Assembly.WorkDir, _ = flags.GetString("tmp-dir")
	}
	if flags.Changed("output-dir") {
		cfg.Assembly.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("tool") {
		cfg.Assembly.Tool, _ = flags.GetString("tool")
	}
	if flags.Changed("format") {
		cfg.Assembly.Format, _ = flags.GetString("format")
	}
	if flags.Changed("prefetch") {
		cfg.Assembly.Prefetch, _ = flags.GetInt("prefetch")
	}
	if flags.Changed("seed") {
		cfg.Assembly.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("verbose") {
		cfg.Assembly.Verbose, _ = flags.GetBool("verbose")
	}
	return config.Validate(*cfg)
}
