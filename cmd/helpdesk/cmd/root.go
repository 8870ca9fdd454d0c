// Package cmd provides the CLI commands for the helpdesk service.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/config"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/logging"
	"github.com/RobMal123/ai-helpdesk-chatbot/pkg/version"
)

var (
	configPath string
	debugMode  bool
	noColor    bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the helpdesk CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "helpdesk",
		Short: "RAG helpdesk chatbot over your documentation",
		Long: `Helpdesk answers support questions by retrieving passages from an
indexed documentation corpus and asking a language model to compose
the answer.

Run 'helpdesk serve' to start the API server with scheduled ingestion,
or 'helpdesk ask' to answer a single question from the terminal.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("helpdesk version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to helpdesk.yaml (default: ./helpdesk.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.helpdesk/logs/")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable styled output")

	cmd.PersistentPreRunE = startDebugLogging
	cmd.PersistentPostRunE = stopDebugLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startDebugLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("debug logging enabled", slog.String("version", version.Short()))
	return nil
}

func stopDebugLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loadConfig resolves the effective configuration for a command.
func loadConfig() (*config.Config, error) {
	return config.LoadOrDefault(configPath)
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
