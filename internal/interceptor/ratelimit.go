package interceptor

import (
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/gatewaykit/httpdispatch/internal/dispatch"
	"github.com/gatewaykit/httpdispatch/internal/observability"
)

// RateLimit rejects requests above a global token-bucket rate. Rejected
// requests are answered with 429 and short-circuit the chain before the
// handler runs.
type RateLimit struct {
	Base
	limiter *rate.Limiter
	logger  observability.Logger
}

// RateLimitOption is a functional option for configuring the rate limiter.
type RateLimitOption func(*RateLimit)

// WithRateLimitLogger sets the logger for the rate limiter.
func WithRateLimitLogger(logger observability.Logger) RateLimitOption {
	return func(ic *RateLimit) {
		ic.logger = logger
	}
}

// NewRateLimit creates a rate limit interceptor allowing rps sustained
// requests per second with the given burst. A burst of zero defaults to
// the sustained rate, minimum one.
func NewRateLimit(rps float64, burst int, opts ...RateLimitOption) *RateLimit {
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}

	ic := &RateLimit{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(ic)
	}

	return ic
}

// PreHandle consumes a token or rejects the request.
func (ic *RateLimit) PreHandle(w http.ResponseWriter, r *http.Request, h *dispatch.HandlerRef) (*http.Request, bool, error) {
	if ic.limiter.Allow() {
		return nil, true, nil
	}

	ic.logger.Warn("request rate limited",
		observability.String("path", r.URL.Path),
		observability.String("handler", h.String()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = io.WriteString(w, `{"error":"rate limit exceeded"}`)
	return nil, false, nil
}
