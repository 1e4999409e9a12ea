// Package tracing bootstraps the process-wide OpenTelemetry tracer provider
// and the instrumentation that wraps every dashboard network call.
//
// Bootstrap moves through uninitialized → initializing → registered (and
// finally shut down). Initialize is guarded by a compare-and-swap on that
// state, so a second call is a no-op and never registers a second export
// pipeline.
//
// Initialization order:
//  1. a resource naming the service (service.name);
//  2. the export pipeline, one span processor per exporter: an optional
//     stdout exporter (synchronous) and an OTLP exporter over HTTP or gRPC
//     (batched, retries off);
//  3. global registration of the provider and a W3C tracecontext+baggage
//     propagator;
//  4. the Instrumentation list: OutboundHTTP (client spans plus trace headers
//     on every request, for every destination), InboundHTTP (server spans for
//     operator actions) and ViewLifecycle (spans around dashboard mounts).
//
// Trace context travels in context.Context values passed explicitly through
// every poll, tick and request; nothing relies on ambient state.
package tracing
