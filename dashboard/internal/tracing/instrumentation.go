package tracing

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/delineate/dashboard/dashboard/internal/apiclient"
)

// instrumentationScope is the tracer name used for spans this package creates.
const instrumentationScope = "github.com/delineate/dashboard/dashboard/internal/tracing"

// Kind tags what an Instrumentation observes.
type Kind string

const (
	KindOutbound    Kind = "outbound"    // requests leaving the dashboard
	KindInteraction Kind = "interaction" // operator actions arriving at the dashboard
	KindLoad        Kind = "load"        // dashboard view mounts
)

// Pipeline is what an Instrumentation receives when it is installed.
type Pipeline struct {
	TracerProvider trace.TracerProvider
	Propagator     propagation.TextMapPropagator
}

// Instrumentation is one plug-in registered by Bootstrap.Initialize.
// Install must be idempotent: a second Install on the same value is a no-op.
type Instrumentation interface {
	Name() string
	Kind() Kind
	Install(Pipeline) error
}

// uninstaller is implemented by instrumentations that can undo Install
// when a later instrumentation in the same Initialize call fails.
type uninstaller interface {
	uninstall()
}

func checkUnique(insts []Instrumentation) error {
	seen := make(map[string]bool, len(insts))
	for _, inst := range insts {
		if seen[inst.Name()] {
			return fmt.Errorf("tracing: instrumentation %q listed twice", inst.Name())
		}
		seen[inst.Name()] = true
	}
	return nil
}

// --- outbound -----------------------------------------------------------------

// OutboundHTTP wraps an apiclient.Client's transport so every request
// produces a client span and carries trace headers. Headers are injected
// for every destination; there is no origin allow-list.
type OutboundHTTP struct {
	client    *apiclient.Client
	installed atomic.Bool
	unwrap    func()
}

// NewOutboundHTTP returns the outbound instrumentation for client.
func NewOutboundHTTP(client *apiclient.Client) *OutboundHTTP {
	return &OutboundHTTP{client: client}
}

func (o *OutboundHTTP) Name() string { return "http-client" }
func (o *OutboundHTTP) Kind() Kind   { return KindOutbound }

func (o *OutboundHTTP) Install(p Pipeline) error {
	if o.client == nil {
		return fmt.Errorf("nil client")
	}
	if !o.installed.CompareAndSwap(false, true) {
		return nil
	}
	o.unwrap = o.client.WrapTransport(func(next http.RoundTripper) http.RoundTripper {
		return otelhttp.NewTransport(next,
			otelhttp.WithTracerProvider(p.TracerProvider),
			otelhttp.WithPropagators(p.Propagator),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	return nil
}

func (o *OutboundHTTP) uninstall() {
	if o.unwrap != nil {
		o.unwrap()
		o.unwrap = nil
	}
	o.installed.Store(false)
}

// --- interaction --------------------------------------------------------------

// InboundHTTP is an http.Handler that passes requests through untouched
// until installed, then wraps them in server spans.
type InboundHTTP struct {
	operation string
	next      http.Handler
	active    atomic.Pointer[http.Handler]
	installed atomic.Bool
}

// NewInboundHTTP wraps next; operation names the server spans.
func NewInboundHTTP(operation string, next http.Handler) *InboundHTTP {
	h := &InboundHTTP{operation: operation, next: next}
	h.active.Store(&next)
	return h
}

func (h *InboundHTTP) Name() string { return "http-server" }
func (h *InboundHTTP) Kind() Kind   { return KindInteraction }

func (h *InboundHTTP) Install(p Pipeline) error {
	if !h.installed.CompareAndSwap(false, true) {
		return nil
	}
	wrapped := otelhttp.NewHandler(h.next, h.operation,
		otelhttp.WithTracerProvider(p.TracerProvider),
		otelhttp.WithPropagators(p.Propagator),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	h.active.Store(&wrapped)
	return nil
}

func (h *InboundHTTP) uninstall() {
	h.active.Store(&h.next)
	h.installed.Store(false)
}

func (h *InboundHTTP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*h.active.Load()).ServeHTTP(w, r)
}

// --- load ---------------------------------------------------------------------

// ViewLifecycle records a span for each dashboard view mount. Before
// installation it uses a no-op tracer.
type ViewLifecycle struct {
	tracer atomic.Pointer[trace.Tracer]
}

// NewViewLifecycle returns an uninstalled ViewLifecycle.
func NewViewLifecycle() *ViewLifecycle {
	v := &ViewLifecycle{}
	var t trace.Tracer = noop.NewTracerProvider().Tracer(instrumentationScope)
	v.tracer.Store(&t)
	return v
}

func (v *ViewLifecycle) Name() string { return "view-lifecycle" }
func (v *ViewLifecycle) Kind() Kind   { return KindLoad }

func (v *ViewLifecycle) Install(p Pipeline) error {
	t := p.TracerProvider.Tracer(instrumentationScope)
	v.tracer.Store(&t)
	return nil
}

func (v *ViewLifecycle) uninstall() {
	var t trace.Tracer = noop.NewTracerProvider().Tracer(instrumentationScope)
	v.tracer.Store(&t)
}

// Start begins a span named "view "+name and returns the derived context.
// The returned func ends the span.
func (v *ViewLifecycle) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	ctx, span := (*v.tracer.Load()).Start(ctx, "view "+name, trace.WithAttributes(attrs...))
	return ctx, func() { span.End() }
}
