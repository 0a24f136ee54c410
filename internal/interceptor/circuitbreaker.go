package interceptor

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gatewaykit/httpdispatch/internal/config"
	"github.com/gatewaykit/httpdispatch/internal/dispatch"
	"github.com/gatewaykit/httpdispatch/internal/observability"
)

// breakerDoneKey carries the per-request breaker completion callback.
type breakerDoneKey struct{}

// CircuitBreaker trips per handler after repeated failures. While open,
// requests for that handler are answered with 503 without invoking the
// handler. The two-step breaker protocol maps onto the chain phases:
// PreHandle reserves, AfterCompletion reports the outcome.
type CircuitBreaker struct {
	Base
	logger           observability.Logger
	maxRequests      uint32
	interval         time.Duration
	timeout          time.Duration
	failureThreshold uint32

	mu       sync.Mutex
	breakers map[string]*gobreaker.TwoStepCircuitBreaker
}

// CircuitBreakerOption is a functional option for configuring the breaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithCircuitBreakerLogger sets the logger for the breaker.
func WithCircuitBreakerLogger(logger observability.Logger) CircuitBreakerOption {
	return func(ic *CircuitBreaker) {
		ic.logger = logger
	}
}

// NewCircuitBreaker creates a circuit breaker interceptor from
// configuration. Zero values fall back to defaults: one half-open probe,
// a 30 second open period and five consecutive failures to trip.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig, opts ...CircuitBreakerOption) *CircuitBreaker {
	ic := &CircuitBreaker{
		logger:           observability.NopLogger(),
		maxRequests:      cfg.MaxRequests,
		interval:         cfg.Interval.Duration(),
		timeout:          cfg.Timeout.Duration(),
		failureThreshold: cfg.FailureThreshold,
		breakers:         make(map[string]*gobreaker.TwoStepCircuitBreaker),
	}

	if ic.maxRequests == 0 {
		ic.maxRequests = 1
	}
	if ic.timeout == 0 {
		ic.timeout = 30 * time.Second
	}
	if ic.failureThreshold == 0 {
		ic.failureThreshold = 5
	}

	for _, opt := range opts {
		opt(ic)
	}

	return ic
}

// breakerFor returns the handler's breaker, creating it on first use.
func (ic *CircuitBreaker) breakerFor(name string) *gobreaker.TwoStepCircuitBreaker {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	if cb, ok := ic.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: ic.maxRequests,
		Interval:    ic.interval,
		Timeout:     ic.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= ic.failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			ic.logger.Info("circuit breaker state change",
				observability.String("handler", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})
	ic.breakers[name] = cb
	return cb
}

// PreHandle reserves a slot on the handler's breaker or rejects the
// request while the breaker is open.
func (ic *CircuitBreaker) PreHandle(w http.ResponseWriter, r *http.Request, h *dispatch.HandlerRef) (*http.Request, bool, error) {
	done, err := ic.breakerFor(h.String()).Allow()
	if err != nil {
		ic.logger.Warn("circuit breaker rejected request",
			observability.String("handler", h.String()),
			observability.Error(err),
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":"service unavailable"}`)
		return nil, false, nil
	}

	ctx := context.WithValue(r.Context(), breakerDoneKey{}, done)
	return r.WithContext(ctx), true, nil
}

// AfterCompletion reports the request outcome to the breaker.
func (ic *CircuitBreaker) AfterCompletion(_ http.ResponseWriter, r *http.Request, _ *dispatch.HandlerRef, err error) error {
	if done, ok := r.Context().Value(breakerDoneKey{}).(func(bool)); ok {
		done(err == nil)
	}
	return nil
}
