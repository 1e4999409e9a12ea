// Package config loads and watches the dashboard configuration file.
//
// Load(path) applies defaults (api_base http://localhost:3000, 30s request
// timeout, 5s health and 10s metrics intervals, history of 5), overlays the
// YAML file, then the environment (DASHBOARD_API_BASE,
// OTEL_EXPORTER_OTLP_ENDPOINT, DASHBOARD_LOG_LEVEL), then validates.
// A .env file in the working directory is loaded into the environment first.
//
// The Sentry DSN is never stored in the file: error_reporting.dsn_env names
// the variable holding it, and an unset variable disables error reporting.
//
// Watch(ctx, path, onChange) uses fsnotify to reload the file on write and
// re-adds the watch after atomic-save renames.
package config
