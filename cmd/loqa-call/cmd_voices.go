package main

import (
	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-callsynth/internal/voices"
)

func newVoicesCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "voices",
		Short: "List available voices, optionally filtered by language code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			all, err := voices.Load(cmd.Context(), cfg.Voices)
			if err != nil {
				return err
			}
			lang, _ := cmd.Flags().GetString("lang-code")
			return printJSON(cmd.OutOrStdout(), voices.Filter(all, lang))
		},
	}
	c.Flags().StringP("lang-code", "l", "", "ISO language code to filter voices")
	return c
}
