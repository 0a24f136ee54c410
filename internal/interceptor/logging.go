package interceptor

import (
	"net/http"
	"time"

	"github.com/gatewaykit/httpdispatch/internal/dispatch"
	"github.com/gatewaykit/httpdispatch/internal/observability"
	"github.com/gatewaykit/httpdispatch/internal/util"
)

// Logging logs one line per completed request with the resolved handler,
// matched pattern and duration. It is async-aware: a suspension is logged
// at debug level and the final line is emitted when the delayed outcome
// completes the chain.
type Logging struct {
	Base
	logger observability.Logger
}

// NewLogging creates the logging interceptor.
func NewLogging(logger observability.Logger) *Logging {
	return &Logging{logger: logger}
}

// PreHandle records the start time on the request context.
func (ic *Logging) PreHandle(_ http.ResponseWriter, r *http.Request, _ *dispatch.HandlerRef) (*http.Request, bool, error) {
	ctx := util.ContextWithStartTime(r.Context(), time.Now())
	return r.WithContext(ctx), true, nil
}

// AfterCompletion emits the request log line.
func (ic *Logging) AfterCompletion(_ http.ResponseWriter, r *http.Request, h *dispatch.HandlerRef, err error) error {
	fields := []observability.Field{
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path),
		observability.String("handler", h.String()),
	}

	if pattern := util.MatchedPatternFromContext(r.Context()); pattern != "" {
		fields = append(fields, observability.String("pattern", pattern))
	}
	if start, ok := util.StartTimeFromContext(r.Context()); ok {
		fields = append(fields, observability.Duration("duration", time.Since(start)))
	}

	logger := ic.logger.WithContext(r.Context())
	if err != nil {
		fields = append(fields, observability.Error(err))
		logger.Error("request failed", fields...)
		return nil
	}

	logger.Info("request handled", fields...)
	return nil
}

// AfterConcurrentHandlingStarted notes the suspension.
func (ic *Logging) AfterConcurrentHandlingStarted(_ http.ResponseWriter, r *http.Request, h *dispatch.HandlerRef) {
	ic.logger.WithContext(r.Context()).Debug("request suspended for async completion",
		observability.String("path", r.URL.Path),
		observability.String("handler", h.String()),
	)
}
