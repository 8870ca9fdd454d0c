// Package config loads and validates the helpdesk service configuration.
//
// Configuration is resolved in three layers, later layers winning:
//  1. Built-in defaults (NewConfig)
//  2. YAML config file (helpdesk.yaml)
//  3. Environment variables (HELPDESK_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "helpdesk.yaml"

// Config represents the complete helpdesk service configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Ingestion IngestionConfig `yaml:"ingestion" json:"ingestion"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Model     ModelConfig     `yaml:"model" json:"model"`
	Monitor   MonitorConfig   `yaml:"monitor" json:"monitor"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// PathsConfig configures data directories.
type PathsConfig struct {
	// DataDir holds index generations, the telemetry store, and lock files.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// RawDir receives downloaded source files.
	RawDir string `yaml:"raw_dir" json:"raw_dir"`
	// ProcessedDir holds normalized text documents ready for indexing.
	ProcessedDir string `yaml:"processed_dir" json:"processed_dir"`
	// URLFile lists source URLs to download, one per line. Optional.
	URLFile string `yaml:"url_file" json:"url_file"`
}

// IngestionConfig configures the scheduled ingestion controller.
type IngestionConfig struct {
	// ScheduleHour is the hour of day (0-23) for the daily rebuild.
	ScheduleHour int `yaml:"schedule_hour" json:"schedule_hour"`
	// FetchTimeout bounds each source download (e.g. "60s").
	FetchTimeout string `yaml:"fetch_timeout" json:"fetch_timeout"`
	// FetchConcurrency is the maximum number of parallel downloads.
	FetchConcurrency int `yaml:"fetch_concurrency" json:"fetch_concurrency"`
	// WatchEnabled triggers a refresh when the processed dir changes.
	WatchEnabled bool `yaml:"watch_enabled" json:"watch_enabled"`
	// WatchDebounce coalesces file events before triggering (e.g. "2s").
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// RetrievalConfig configures passage retrieval and prompt assembly.
type RetrievalConfig struct {
	// TopK is the number of passages retrieved per query.
	TopK int `yaml:"top_k" json:"top_k"`
	// HistoryLimit is the number of trailing conversation messages kept.
	HistoryLimit int `yaml:"history_limit" json:"history_limit"`
}

// ModelConfig configures the language-model capability.
type ModelConfig struct {
	// Name is the model identifier (default: gemini-2.0-flash-lite).
	Name string `yaml:"name" json:"name"`
	// BaseURL overrides the API endpoint. Empty uses the provider default.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Timeout bounds a single completion call (e.g. "120s").
	Timeout string `yaml:"timeout" json:"timeout"`
	// APIKey is never read from the file; it comes from GEMINI_API_KEY.
	APIKey string `yaml:"-" json:"-"`
}

// MonitorConfig configures observability and alerting.
type MonitorConfig struct {
	// MetricsEnabled controls whether observations are recorded.
	MetricsEnabled bool `yaml:"metrics_enabled" json:"metrics_enabled"`
	// WebhookURL is the Discord-compatible alert webhook. Empty disables alerts.
	WebhookURL string `yaml:"webhook_url" json:"webhook_url"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8000,
			LogLevel: "info",
		},
		Paths: PathsConfig{
			DataDir:      "./data",
			RawDir:       "./data/raw",
			ProcessedDir: "./data/processed",
			URLFile:      "./data/source_urls.txt",
		},
		Ingestion: IngestionConfig{
			ScheduleHour:     2,
			FetchTimeout:     "60s",
			FetchConcurrency: 4,
			WatchEnabled:     false,
			WatchDebounce:    "2s",
		},
		Retrieval: RetrievalConfig{
			TopK:         4,
			HistoryLimit: 5,
		},
		Model: ModelConfig{
			Name:    "gemini-2.0-flash-lite",
			Timeout: "120s",
		},
		Monitor: MonitorConfig{
			MetricsEnabled: true,
		},
	}
}

// Load reads configuration from the given path, applying defaults for
// missing fields and environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the config file if it exists, otherwise returns
// defaults with environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultFileName
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := NewConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

// Save writes the configuration to the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies HELPDESK_* environment variables on top of
// file values. The model API key only ever comes from the environment.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HELPDESK_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("HELPDESK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("HELPDESK_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("HELPDESK_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("HELPDESK_SCHEDULE_HOUR"); v != "" {
		if hour, err := strconv.Atoi(v); err == nil {
			c.Ingestion.ScheduleHour = hour
		}
	}
	if v := os.Getenv("HELPDESK_FETCH_TIMEOUT"); v != "" {
		c.Ingestion.FetchTimeout = v
	}
	if v := os.Getenv("HELPDESK_METRICS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Monitor.MetricsEnabled = enabled
		}
	}
	if v := os.Getenv("HELPDESK_WEBHOOK_URL"); v != "" {
		c.Monitor.WebhookURL = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Model.APIKey = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Ingestion.ScheduleHour < 0 || c.Ingestion.ScheduleHour > 23 {
		return fmt.Errorf("invalid schedule hour: %d (must be 0-23)", c.Ingestion.ScheduleHour)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("invalid top_k: %d (must be >= 1)", c.Retrieval.TopK)
	}
	if c.Retrieval.HistoryLimit < 0 {
		return fmt.Errorf("invalid history_limit: %d", c.Retrieval.HistoryLimit)
	}
	if c.Ingestion.FetchConcurrency < 1 {
		return fmt.Errorf("invalid fetch_concurrency: %d (must be >= 1)", c.Ingestion.FetchConcurrency)
	}
	if _, err := c.FetchTimeout(); err != nil {
		return fmt.Errorf("invalid fetch_timeout: %w", err)
	}
	if _, err := c.WatchDebounce(); err != nil {
		return fmt.Errorf("invalid watch_debounce: %w", err)
	}
	if _, err := c.ModelTimeout(); err != nil {
		return fmt.Errorf("invalid model timeout: %w", err)
	}
	return nil
}

// FetchTimeout returns the parsed per-download timeout.
func (c *Config) FetchTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Ingestion.FetchTimeout)
}

// WatchDebounce returns the parsed watcher debounce window.
func (c *Config) WatchDebounce() (time.Duration, error) {
	return time.ParseDuration(c.Ingestion.WatchDebounce)
}

// ModelTimeout returns the parsed model call timeout.
func (c *Config) ModelTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Model.Timeout)
}

// IndexDir returns the directory holding index generations.
func (c *Config) IndexDir() string {
	return filepath.Join(c.Paths.DataDir, "index")
}

// EnsureDirs creates the configured data directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.RawDir, c.Paths.ProcessedDir, c.IndexDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
