package tracing

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

const (
	exportTimeout = 5 * time.Second
	tracesPath    = "/v1/traces"
	userAgent     = "delineate-dashboard"
)

// ErrShutdown is returned by Initialize once the bootstrap has been shut down.
var ErrShutdown = errors.New("tracing: bootstrap already shut down")

// Lifecycle states.
const (
	stateUninitialized int32 = iota
	stateInitializing
	stateRegistered
	stateShutdown
)

var stateNames = map[int32]string{
	stateUninitialized: "uninitialized",
	stateInitializing:  "initializing",
	stateRegistered:    "registered",
	stateShutdown:      "shutdown",
}

// Config describes the export pipeline.
type Config struct {
	ServiceName string

	// Console adds a stdout exporter for local debugging.
	Console bool

	// ConsoleWriter overrides os.Stdout for the console exporter.
	ConsoleWriter io.Writer

	// CollectorEndpoint is the collector origin (http://host:4318 for HTTP,
	// host:4317 or http://host:4317 for gRPC). Empty disables network export.
	CollectorEndpoint string

	// Protocol is "http" (default) or "grpc".
	Protocol string

	// Insecure disables TLS towards a gRPC collector. HTTP collectors follow
	// the endpoint's scheme.
	Insecure bool
}

// Option adjusts a single Initialize call.
type Option func(*options)

type options struct {
	extra []sdktrace.SpanExporter
}

// WithExporter adds exp behind its own synchronous span processor.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.extra = append(o.extra, exp) }
}

// Bootstrap owns the tracer provider for the process.
// All methods are safe for concurrent use.
type Bootstrap struct {
	state atomic.Int32
	mu    sync.Mutex // held for the duration of Initialize and Shutdown

	provider  *sdktrace.TracerProvider
	exporters []string
	installed []string
}

var defaultBootstrap = New()

// Default returns the process-wide Bootstrap.
func Default() *Bootstrap { return defaultBootstrap }

// New returns an uninitialized Bootstrap. Production code uses Default();
// separate instances exist for tests.
func New() *Bootstrap { return &Bootstrap{} }

// State reports the current lifecycle state.
func (b *Bootstrap) State() string { return stateNames[b.state.Load()] }

// Initialize builds the export pipeline, registers it globally and installs
// insts. Once registered, further calls return nil without side effects.
// A failed attempt leaves the bootstrap uninitialized so it can be retried.
func (b *Bootstrap) Initialize(ctx context.Context, cfg Config, insts []Instrumentation, opts ...Option) error {
	if b.state.Load() == stateRegistered {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.state.CompareAndSwap(stateUninitialized, stateInitializing) {
		if b.state.Load() == stateShutdown {
			return ErrShutdown
		}
		// Another caller registered the pipeline while we waited.
		return nil
	}

	if err := b.initialize(ctx, cfg, insts, opts); err != nil {
		b.state.Store(stateUninitialized)
		return err
	}
	b.state.Store(stateRegistered)
	slog.Info("tracing: initialized",
		"service", cfg.ServiceName,
		"exporters", b.exporters,
		"instrumentations", b.installed,
	)
	return nil
}

func (b *Bootstrap) initialize(ctx context.Context, cfg Config, insts []Instrumentation, opts []Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := checkUnique(insts); err != nil {
		return err
	}

	// 1. Resource.
	name := cfg.ServiceName
	if name == "" {
		name = "delineate-dashboard"
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(semconv.ServiceName(name)))
	if err != nil {
		return fmt.Errorf("tracing: build resource: %w", err)
	}

	// 2. Export pipeline: every processor sees every finished span.
	var (
		procs     []sdktrace.SpanProcessor
		exporters []string
	)
	if cfg.Console {
		w := cfg.ConsoleWriter
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return fmt.Errorf("tracing: console exporter: %w", err)
		}
		procs = append(procs, sdktrace.NewSimpleSpanProcessor(exp))
		exporters = append(exporters, "console")
	}
	if cfg.CollectorEndpoint != "" {
		exp, kind, err := networkExporter(ctx, cfg)
		if err != nil {
			return err
		}
		procs = append(procs, sdktrace.NewBatchSpanProcessor(exp))
		exporters = append(exporters, kind)
	}
	for _, exp := range o.extra {
		procs = append(procs, sdktrace.NewSimpleSpanProcessor(exp))
		exporters = append(exporters, "custom")
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	for _, p := range procs {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(p))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	// 3. Instrumentation. A failure undoes the installs made so far and
	// leaves the global provider untouched.
	prop := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	p := Pipeline{TracerProvider: tp, Propagator: prop}
	var installed []string
	for i, inst := range insts {
		if err := inst.Install(p); err != nil {
			rollback(insts[:i])
			_ = tp.Shutdown(context.Background())
			return fmt.Errorf("tracing: install %s instrumentation %q: %w", inst.Kind(), inst.Name(), err)
		}
		installed = append(installed, inst.Name())
	}

	// 4. Global registration.
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(prop)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		// Export failures drop spans; they never reach callers.
		slog.Debug("tracing: export error", "err", err)
	}))

	b.provider = tp
	b.exporters = exporters
	b.installed = installed
	return nil
}

// TracerProvider returns the registered provider, or the global no-op
// provider before registration.
func (b *Bootstrap) TracerProvider() trace.TracerProvider {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.provider == nil {
		return otel.GetTracerProvider()
	}
	return b.provider
}

// Exporters names the exporters of the active pipeline.
func (b *Bootstrap) Exporters() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.exporters...)
}

// Shutdown flushes and stops every span processor. It is safe to call more
// than once; after it returns, Initialize fails with ErrShutdown.
func (b *Bootstrap) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.state.Swap(stateShutdown)
	if prev != stateRegistered || b.provider == nil {
		return nil
	}
	err := b.provider.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("tracing: shutdown: %w", err)
	}
	slog.Info("tracing: shut down")
	return nil
}

// networkExporter builds the OTLP exporter for cfg.Protocol.
// Retries are disabled: an unreachable collector drops spans.
func networkExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, string, error) {
	switch cfg.Protocol {
	case "", "http":
		endpoint, err := tracesURL(cfg.CollectorEndpoint)
		if err != nil {
			return nil, "", err
		}
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(endpoint),
			otlptracehttp.WithTimeout(exportTimeout),
			otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
		)
		if err != nil {
			return nil, "", fmt.Errorf("tracing: otlp http exporter: %w", err)
		}
		return exp, "otlphttp", nil

	case "grpc":
		hostport := cfg.CollectorEndpoint
		if u, err := url.Parse(hostport); err == nil && u.Host != "" {
			hostport = u.Host
		}
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(hostport),
			otlptracegrpc.WithTimeout(exportTimeout),
			otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{Enabled: false}),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent(userAgent)),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(
				credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, "", fmt.Errorf("tracing: otlp grpc exporter: %w", err)
		}
		return exp, "otlpgrpc", nil

	default:
		return nil, "", fmt.Errorf("tracing: unknown protocol %q", cfg.Protocol)
	}
}

// tracesURL turns a collector origin into its OTLP/HTTP traces URL.
// An endpoint that already carries a path is used as-is.
func tracesURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("tracing: collector endpoint %q must be an absolute URL", endpoint)
	}
	if strings.Trim(u.Path, "/") == "" {
		u.Path = tracesPath
	}
	return u.String(), nil
}

func rollback(insts []Instrumentation) {
	for i := len(insts) - 1; i >= 0; i-- {
		if u, ok := insts[i].(uninstaller); ok {
			u.uninstall()
		}
	}
}
