package interceptor

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gatewaykit/httpdispatch/internal/dispatch"
)

const tracerName = "github.com/gatewaykit/httpdispatch/internal/interceptor"

// Tracing opens a span around dispatch and records the outcome. The span
// covers the full chain lifecycle, including any suspended portion of an
// asynchronous request.
type Tracing struct {
	Base
	tracer trace.Tracer
}

// NewTracing creates a tracing interceptor using the globally registered
// tracer provider.
func NewTracing() *Tracing {
	return &Tracing{
		tracer: otel.Tracer(tracerName),
	}
}

// PreHandle starts a dispatch span and threads it through the request
// context so handlers and later interceptors can attach child spans.
func (ic *Tracing) PreHandle(_ http.ResponseWriter, r *http.Request, h *dispatch.HandlerRef) (*http.Request, bool, error) {
	ctx, _ := ic.tracer.Start(r.Context(), "dispatch "+r.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
			attribute.String("dispatch.handler", h.String()),
		),
	)
	return r.WithContext(ctx), true, nil
}

// AfterConcurrentHandlingStarted marks the point where the request left
// the dispatch goroutine.
func (ic *Tracing) AfterConcurrentHandlingStarted(_ http.ResponseWriter, r *http.Request, _ *dispatch.HandlerRef) {
	trace.SpanFromContext(r.Context()).AddEvent("dispatch.suspended")
}

// AfterCompletion records the outcome and ends the span.
func (ic *Tracing) AfterCompletion(_ http.ResponseWriter, r *http.Request, _ *dispatch.HandlerRef, err error) error {
	span := trace.SpanFromContext(r.Context())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
	return nil
}
