package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/logging"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/server"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/watcher"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the helpdesk API server with scheduled ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	logCfg.WriteToStderr = true
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.restore(ctx); err != nil {
		return err
	}

	a.controller.Start(ctx)
	defer a.controller.Stop()

	if cfg.Ingestion.WatchEnabled {
		debounce, err := cfg.WatchDebounce()
		if err != nil {
			return fmt.Errorf("watch debounce: %w", err)
		}
		w, err := watcher.New(cfg.Paths.ProcessedDir, debounce, func(ctx context.Context, events int) {
			if _, err := a.controller.RunOnce(ctx, "watch"); err != nil {
				logger.Warn("watch-triggered refresh did not run",
					slog.String("error", err.Error()))
			}
		}, logger)
		if err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		w.Start(ctx)
		defer w.Stop()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, a.orchestrator, a.controller, a.manager, a.metrics, logger)

	logger.Info("helpdesk serving",
		slog.String("addr", addr),
		slog.String("model", cfg.Model.Name),
		slog.Int("schedule_hour", cfg.Ingestion.ScheduleHour))

	return srv.ListenAndServe(ctx)
}
