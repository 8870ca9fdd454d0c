package cmd

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/ui"
)

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question from the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger := slog.Default()
			if !debugMode {
				// Keep one-shot output clean.
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
			result, err := a.orchestrator.Answer(ctx, args[0], nil)
			if err != nil {
				render.Errorf("%v", err)
				return err
			}

			render.Answer(result)
			return nil
		},
	}
}
