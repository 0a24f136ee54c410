package interceptor

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewaykit/httpdispatch/internal/config"
	"github.com/gatewaykit/httpdispatch/internal/dispatch"
)

func newTestBreaker(t *testing.T, threshold uint32, timeout time.Duration) *CircuitBreaker {
	t.Helper()
	return NewCircuitBreaker(config.CircuitBreakerConfig{
		FailureThreshold: threshold,
		Timeout:          config.Duration(timeout),
	})
}

// roundTrip runs one reserve/report cycle against the breaker.
func roundTrip(t *testing.T, ic *CircuitBreaker, h *dispatch.HandlerRef, outcome error) bool {
	t.Helper()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/orders", nil)

	derived, proceed, err := ic.PreHandle(w, r, h)
	require.NoError(t, err)
	if !proceed {
		return false
	}

	require.NotNil(t, derived)
	require.NoError(t, ic.AfterCompletion(w, derived, h, outcome))
	return true
}

func TestCircuitBreaker_AllowsHealthyRequests(t *testing.T) {
	t.Parallel()

	ic := newTestBreaker(t, 2, time.Minute)
	h := testHandlerRef(t)

	for i := 0; i < 10; i++ {
		assert.True(t, roundTrip(t, ic, h, nil))
	}
}

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	ic := newTestBreaker(t, 2, time.Minute)
	h := testHandlerRef(t)

	require.True(t, roundTrip(t, ic, h, assert.AnError))
	require.True(t, roundTrip(t, ic, h, assert.AnError))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/orders", nil)
	derived, proceed, err := ic.PreHandle(w, r, h)
	require.NoError(t, err)
	assert.False(t, proceed)
	assert.Nil(t, derived)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	body, _ := io.ReadAll(w.Body)
	assert.JSONEq(t, `{"error":"service unavailable"}`, string(body))
}

func TestCircuitBreaker_RecoversAfterTimeout(t *testing.T) {
	t.Parallel()

	ic := newTestBreaker(t, 1, 50*time.Millisecond)
	h := testHandlerRef(t)

	require.True(t, roundTrip(t, ic, h, assert.AnError))
	require.False(t, roundTrip(t, ic, h, nil))

	time.Sleep(80 * time.Millisecond)

	// Half-open probe succeeds and closes the breaker again.
	assert.True(t, roundTrip(t, ic, h, nil))
	assert.True(t, roundTrip(t, ic, h, nil))
}

func TestCircuitBreaker_PerHandlerIsolation(t *testing.T) {
	t.Parallel()

	ic := newTestBreaker(t, 1, time.Minute)
	orders := dispatch.NewNamedHandlerRef("orders", "list", nil)
	inventory := dispatch.NewNamedHandlerRef("inventory", "list", nil)

	require.True(t, roundTrip(t, ic, orders, assert.AnError))
	require.False(t, roundTrip(t, ic, orders, nil))

	assert.True(t, roundTrip(t, ic, inventory, nil))
}

func TestCircuitBreaker_AfterCompletionWithoutReservation(t *testing.T) {
	t.Parallel()

	ic := newTestBreaker(t, 1, time.Minute)
	r := httptest.NewRequest(http.MethodGet, "/orders", nil)

	assert.NoError(t, ic.AfterCompletion(httptest.NewRecorder(), r, testHandlerRef(t), nil))
}
