package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/delineate/dashboard/dashboard/internal/history"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultAPIBase           = "http://localhost:3000"
	DefaultRequestTimeout    = 30 * time.Second
	DefaultHealthInterval    = 5 * time.Second
	DefaultMetricsInterval   = 10 * time.Second
	DefaultHistorySize       = history.DefaultCapacity
	DefaultHTTPAddr          = ":8090"
	DefaultBroadcastInterval = 2 * time.Second
	DefaultServiceName       = "delineate-dashboard"
	DefaultCollector         = "http://localhost:4318"
	DefaultDSNEnv            = "SENTRY_DSN"
)

// Environment variables that override the file.
const (
	EnvAPIBase   = "DASHBOARD_API_BASE"
	EnvCollector = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvLogLevel  = "DASHBOARD_LOG_LEVEL"
)

// Config is the top-level dashboard configuration.
type Config struct {
	// APIBase is the origin of the remote download service.
	APIBase string `yaml:"api_base"`

	// RequestTimeout bounds every outbound request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// HistorySize is the capacity of the job and error histories, at most
	// history.DefaultCapacity.
	HistorySize int `yaml:"history_size"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	Health         PollConfig           `yaml:"health"`
	Metrics        PollConfig           `yaml:"metrics"`
	HTTP           HTTPConfig           `yaml:"http"`
	Tracing        TracingConfig        `yaml:"tracing"`
	ErrorReporting ErrorReportingConfig `yaml:"error_reporting"`

	// Links are external UIs surfaced to the browser (jaeger, prometheus, grafana).
	Links map[string]string `yaml:"links"`
}

// PollConfig controls one periodic poller.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// HTTPConfig configures the dashboard's own HTTP listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`

	// CORSOrigins lists origins allowed to call the API. Empty allows all.
	CORSOrigins []string `yaml:"cors_origins"`

	// BroadcastInterval controls how often /ws/stream pushes state.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// TracingConfig configures the trace export pipeline.
type TracingConfig struct {
	ServiceName string `yaml:"service_name"`

	// Console additionally writes every finished span to stdout.
	Console bool `yaml:"console"`

	// CollectorEndpoint is the collector origin, e.g. http://localhost:4318.
	// Empty disables network export.
	CollectorEndpoint string `yaml:"collector_endpoint"`

	// Protocol is one of: http | grpc.
	Protocol string `yaml:"protocol"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`
}

// ErrorReportingConfig configures the Sentry integration.
type ErrorReportingConfig struct {
	// DSNEnv is the name of the environment variable holding the DSN.
	DSNEnv string `yaml:"dsn_env"`

	Environment      string  `yaml:"environment"`
	TracesSampleRate float64 `yaml:"traces_sample_rate"`
}

// DSN returns the DSN resolved from the environment.
// Returns empty string if DSNEnv is unset or the variable is not found.
func (e ErrorReportingConfig) DSN() string {
	if e.DSNEnv == "" {
		return ""
	}
	return os.Getenv(e.DSNEnv)
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the YAML config file at path, then applies
// environment overrides. An empty path yields defaults plus environment.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional; missing .env is not an error

	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		APIBase:        DefaultAPIBase,
		RequestTimeout: DefaultRequestTimeout,
		HistorySize:    DefaultHistorySize,
		LogLevel:       "info",
		Health:         PollConfig{Interval: DefaultHealthInterval},
		Metrics:        PollConfig{Interval: DefaultMetricsInterval},
		HTTP: HTTPConfig{
			Addr:              DefaultHTTPAddr,
			BroadcastInterval: DefaultBroadcastInterval,
		},
		Tracing: TracingConfig{
			ServiceName:       DefaultServiceName,
			Console:           true,
			CollectorEndpoint: DefaultCollector,
			Protocol:          "http",
			Insecure:          true,
		},
		ErrorReporting: ErrorReportingConfig{
			DSNEnv:           DefaultDSNEnv,
			Environment:      "development",
			TracesSampleRate: 1.0,
		},
		Links: map[string]string{
			"jaeger":     "http://localhost:16686",
			"prometheus": "http://localhost:9090",
			"grafana":    "http://localhost:3001",
		},
	}
}

// applyEnv overrides file values with any set environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvAPIBase); v != "" {
		cfg.APIBase = v
	}
	if v := os.Getenv(EnvCollector); v != "" {
		cfg.Tracing.CollectorEndpoint = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	u, err := url.Parse(cfg.APIBase)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api_base %q must be an absolute URL", cfg.APIBase)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if cfg.Health.Interval <= 0 {
		return fmt.Errorf("health.interval must be positive")
	}
	if cfg.Metrics.Interval <= 0 {
		return fmt.Errorf("metrics.interval must be positive")
	}
	if cfg.HistorySize <= 0 || cfg.HistorySize > history.DefaultCapacity {
		return fmt.Errorf("history_size must be within [1, %d]", history.DefaultCapacity)
	}
	if cfg.HTTP.BroadcastInterval <= 0 {
		return fmt.Errorf("http.broadcast_interval must be positive")
	}
	switch cfg.Tracing.Protocol {
	case "http", "grpc":
	default:
		return fmt.Errorf("tracing.protocol: unknown protocol %q", cfg.Tracing.Protocol)
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("log_level: unknown level %q", cfg.LogLevel)
	}
	if r := cfg.ErrorReporting.TracesSampleRate; r < 0 || r > 1 {
		return fmt.Errorf("error_reporting.traces_sample_rate must be within [0, 1]")
	}
	return nil
}
