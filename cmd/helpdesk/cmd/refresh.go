package cmd

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/ui"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Download sources and rebuild the index now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger := slog.Default()
			if !debugMode {
				logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			}

			a, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.restore(ctx); err != nil {
				return err
			}

			render := ui.NewRenderer(cmd.OutOrStdout(), noColor)
			record, err := a.controller.RunOnce(ctx, "manual")
			if err != nil {
				render.Errorf("%v", err)
				return err
			}

			render.RefreshResult(record.JobID, record.Outcome, record.Documents, record.Elapsed)
			return nil
		},
	}
}
