package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/alert"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/chat"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/config"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/etl"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/index"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/llm/gemini"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/store"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/telemetry"
)

// app holds the wired service components shared by the commands.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	engine       *store.BleveEngine
	manager      *index.Manager
	metrics      *telemetry.Recorder
	metricsStore *telemetry.SQLiteStore
	alerts       *alert.WebhookNotifier
	orchestrator *chat.Orchestrator
	controller   *etl.Controller
}

// buildApp wires the full component graph from configuration.
func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	metricsStore, err := telemetry.OpenSQLiteStore(filepath.Join(cfg.Paths.DataDir, "telemetry.db"))
	if err != nil {
		return nil, err
	}

	metricsCfg := telemetry.DefaultConfig()
	metricsCfg.Enabled = cfg.Monitor.MetricsEnabled
	metrics := telemetry.NewRecorder(metricsStore, metricsCfg)

	alerts := alert.NewWebhookNotifier(cfg.Monitor.WebhookURL, logger)

	eng := store.NewBleveEngine()
	manager := index.NewManager(eng, cfg.Paths.DataDir, logger,
		index.WithDegradedFunc(func(ctx context.Context, title, message string) {
			alerts.Notify(ctx, alert.Notification{
				Title:    title,
				Message:  message,
				Severity: alert.SeverityWarning,
			})
		}))

	modelTimeout, err := cfg.ModelTimeout()
	if err != nil {
		return nil, fmt.Errorf("model timeout: %w", err)
	}
	model := gemini.NewClient(cfg.Model.Name, cfg.Model.APIKey,
		gemini.WithBaseURL(cfg.Model.BaseURL),
		gemini.WithTimeout(modelTimeout))

	orchestrator := chat.NewOrchestrator(manager, eng, model, metrics, logger, chat.Options{
		TopK:         cfg.Retrieval.TopK,
		HistoryLimit: cfg.Retrieval.HistoryLimit,
	})

	fetchTimeout, err := cfg.FetchTimeout()
	if err != nil {
		return nil, fmt.Errorf("fetch timeout: %w", err)
	}
	downloader := etl.NewDownloader(etl.DownloaderOptions{
		RawDir:       cfg.Paths.RawDir,
		ProcessedDir: cfg.Paths.ProcessedDir,
		FetchTimeout: fetchTimeout,
		Concurrency:  cfg.Ingestion.FetchConcurrency,
	}, logger)

	controller := etl.NewController(downloader, etl.NewDirSource(cfg.Paths.ProcessedDir),
		manager, metrics, alerts, logger, etl.ControllerOptions{
			ScheduleHour: cfg.Ingestion.ScheduleHour,
			URLFile:      cfg.Paths.URLFile,
		})

	return &app{
		cfg:          cfg,
		logger:       logger,
		engine:       eng,
		manager:      manager,
		metrics:      metrics,
		metricsStore: metricsStore,
		alerts:       alerts,
		orchestrator: orchestrator,
		controller:   controller,
	}, nil
}

// restore loads the last published index generation and seeds the
// index gauges.
func (a *app) restore(ctx context.Context) error {
	if err := a.manager.LoadOrInitialize(ctx); err != nil {
		return err
	}
	if snap := a.manager.Current(); snap != nil {
		a.metrics.SetIndexState(true, snap.DocumentCount())
	} else {
		a.metrics.SetIndexState(false, 0)
	}
	return nil
}

// close releases the app's resources in dependency order.
func (a *app) close() {
	if err := a.metrics.Close(); err != nil {
		a.logger.Warn("metrics close failed", slog.String("error", err.Error()))
	}
	if err := a.metricsStore.Close(); err != nil {
		a.logger.Warn("telemetry store close failed", slog.String("error", err.Error()))
	}
	if err := a.manager.Close(); err != nil {
		a.logger.Warn("index close failed", slog.String("error", err.Error()))
	}
}
