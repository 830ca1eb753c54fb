package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-callsynth/internal/script"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <script.json>...",
		Short: "Check that conversation scripts are well formed stereo conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				turns, err := script.Load(path)
				if err == nil {
					err = script.Validate(turns)
				}
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d turns)\n", path, len(turns))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scripts invalid", failed, len(args))
			}
			return nil
		},
	}
}
