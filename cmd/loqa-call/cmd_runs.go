package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run ledger",
	}
	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsEventsCmd())
	return cmd
}

type runView struct {
	RunID      string  `json:"run_id"`
	RequestID  string  `json:"request_id,omitempty"`
	Language   string  `json:"language"`
	Turns      int     `json:"turns"`
	Status     string  `json:"status"`
	Artifact   string  `json:"artifact,omitempty"`
	Duration   float64 `json:"duration_seconds,omitempty"`
	Error      string  `json:"error,omitempty"`
	CreatedAt  string  `json:"created_at"`
	FinishedAt string  `json:"finished_at,omitempty"`
}

func newRunsListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
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
			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			views := make([]runView, 0, len(runs))
			for _, r := range runs {
				v := runView{
					RunID:     r.ID,
					RequestID: r.RequestID,
					Language:  r.Language,
					Turns:     r.Turns,
					Status:    r.Status,
					Artifact:  r.Artifact,
					Duration:  r.Duration,
					Error:     r.Error,
					CreatedAt: r.CreatedAt.Format(time.RFC3339),
				}
				if !r.FinishedAt.IsZero() {
					v.FinishedAt = r.FinishedAt.Format(time.RFC3339)
				}
				views = append(views, v)
			}
			return printJSON(cmd.OutOrStdout(), views)
		},
	}
	c.Flags().Int("limit", 20, "Maximum number of runs")
	return c
}

func newRunsEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events <run-id>",
		Short: "Show the ledger events of a run",
		Args:  cobra.ExactArgs(1),
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
			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := store.GetRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			events, err := store.ListRunEvents(cmd.Context(), args[0], 0)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, e := range events {
				if err := printJSON(w, map[string]any{
					"type":       e.Type,
					"created_at": e.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
					"payload":    rawJSON(e.Payload),
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
