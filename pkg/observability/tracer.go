package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// GetTracer returns a tracer from the globally registered provider. Hosts
// that install no provider get the default no-op tracer, so instrumented
// paths cost almost nothing.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
