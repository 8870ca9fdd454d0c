package cmd

import (
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/telemetry"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/ui"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index state, usage totals, and recent ingestion runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			a, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.restore(ctx); err != nil {
				return err
			}

			// Lifetime usage and term aggregates come from the
			// telemetry store, not this process's recorder.
			to := time.Now().Format("2006-01-02")
			from := time.Now().AddDate(0, 0, -30).Format("2006-01-02")
			queries, tokens, err := a.metricsStore.GetUsage(from, to)
			if err != nil {
				return err
			}
			terms, err := a.metricsStore.GetTopTerms(5)
			if err != nil {
				return err
			}
			jobs, err := a.metricsStore.RecentJobRuns(5)
			if err != nil {
				return err
			}

			snap := &telemetry.Snapshot{
				TotalQueries: queries,
				TotalTokens:  tokens,
				TopTerms:     terms,
			}

			var (
				ready      bool
				docs       int
				generation string
			)
			if cur := a.manager.Current(); cur != nil {
				ready = true
				docs = cur.DocumentCount()
				generation = cur.ID()
			}

			render := ui.NewRenderer(cmd.OutOrStdout(), noColor)
			render.Status(ready, docs, generation, snap, jobs)
			return nil
		},
	}
}
