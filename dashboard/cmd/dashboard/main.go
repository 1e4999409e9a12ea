package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/delineate/dashboard/dashboard/internal/api"
	"github.com/delineate/dashboard/dashboard/internal/apiclient"
	"github.com/delineate/dashboard/dashboard/internal/config"
	"github.com/delineate/dashboard/dashboard/internal/dashboard"
	"github.com/delineate/dashboard/dashboard/internal/errlog"
	"github.com/delineate/dashboard/dashboard/internal/health"
	"github.com/delineate/dashboard/dashboard/internal/jobs"
	"github.com/delineate/dashboard/dashboard/internal/metrics"
	"github.com/delineate/dashboard/dashboard/internal/reporting"
	"github.com/delineate/dashboard/dashboard/internal/tracing"
	"github.com/delineate/dashboard/dashboard/internal/upload"
	"github.com/delineate/dashboard/dashboard/internal/ws"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (empty: defaults and environment)")
	logLevel := pflag.String("log-level", "", "override log_level from the config file")
	pflag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("delineate-dashboard starting", "version", version, "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	level.Set(cfg.SlogLevel())

	slog.Info("config loaded",
		"api_base", cfg.APIBase,
		"health_interval", cfg.Health.Interval,
		"metrics_interval", cfg.Metrics.Interval,
		"http_addr", cfg.HTTP.Addr,
		"collector", cfg.Tracing.CollectorEndpoint,
	)

	flush, err := reporting.Init(cfg.ErrorReporting, version)
	if err != nil {
		slog.Warn("error reporting disabled", "err", err)
	}
	defer flush()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := apiclient.New(cfg.APIBase, cfg.RequestTimeout)
	if err != nil {
		slog.Error("invalid api_base", "err", err)
		os.Exit(1)
	}

	view := tracing.NewViewLifecycle()
	dash := dashboard.New(dashboard.Deps{
		Pollers: pollersFor(client, cfg),
		Jobs:    jobs.New(client, cfg.HistorySize, cfg.RequestTimeout),
		Errors:  errlog.New(client, cfg.HistorySize, cfg.RequestTimeout),
		Uploads: upload.New(client),
		View:    view,
		Tracing: tracing.Default(),
	})

	hub := ws.New(dash, cfg.HTTP.BroadcastInterval, cfg.HTTP.CORSOrigins)

	gin.SetMode(gin.ReleaseMode)
	router := api.New(dash, api.Options{
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Links:       cfg.Links,
		Stream:      hub,
		Reporting:   reporting.Enabled(),
	})
	inbound := tracing.NewInboundHTTP("dashboard", router)

	// Tracing must be registered before the first outbound request.
	err = tracing.Default().Initialize(ctx, tracingConfig(cfg), []tracing.Instrumentation{
		tracing.NewOutboundHTTP(client),
		inbound,
		view,
	})
	if err != nil {
		slog.Warn("tracing disabled", "err", err)
	}

	if err := dash.Mount(ctx); err != nil {
		slog.Error("failed to mount dashboard", "err", err)
		os.Exit(1)
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           inbound,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		return httpSrv.Shutdown(sctx)
	})
	if *configPath != "" {
		g.Go(func() error {
			current := cfg
			return config.Watch(gctx, *configPath, func(updated *config.Config) {
				if *logLevel == "" {
					level.Set(updated.SlogLevel())
				}
				if updated.Health.Interval != current.Health.Interval ||
					updated.Metrics.Interval != current.Metrics.Interval {
					if err := dash.Remount(gctx, pollersFor(client, updated)); err != nil {
						slog.Error("failed to remount dashboard", "err", err)
					}
				}
				current = updated
			})
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("delineate-dashboard stopped", "err", err)
	}

	slog.Info("delineate-dashboard shutting down")
	if err := dash.Close(); err != nil {
		slog.Error("dashboard close", "err", err)
	}
	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	if err := tracing.Default().Shutdown(sctx); err != nil {
		slog.Error("tracing shutdown", "err", err)
	}
}

func pollersFor(client *apiclient.Client, cfg *config.Config) dashboard.Pollers {
	return dashboard.Pollers{
		Health:  health.New(client, cfg.Health.Interval, cfg.RequestTimeout),
		Metrics: metrics.NewPoller(client, cfg.Metrics.Interval, cfg.RequestTimeout),
	}
}

func tracingConfig(cfg *config.Config) tracing.Config {
	return tracing.Config{
		ServiceName:       cfg.Tracing.ServiceName,
		Console:           cfg.Tracing.Console,
		CollectorEndpoint: cfg.Tracing.CollectorEndpoint,
		Protocol:          cfg.Tracing.Protocol,
		Insecure:          cfg.Tracing.Insecure,
	}
}
