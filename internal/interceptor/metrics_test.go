package interceptor

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewaykit/httpdispatch/internal/dispatch"
	"github.com/gatewaykit/httpdispatch/internal/util"
)

func TestMetrics_CountsOutcomes(t *testing.T) {
	t.Parallel()

	ic := NewMetrics()
	h := dispatch.NewNamedHandlerRef("metricsOutcomes", "list", nil)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/orders", nil)

	derived, proceed, err := ic.PreHandle(w, r, h)
	require.NoError(t, err)
	require.True(t, proceed)
	require.NotNil(t, derived)
	require.NoError(t, ic.AfterCompletion(w, derived, h, nil))

	derived, _, err = ic.PreHandle(w, r, h)
	require.NoError(t, err)
	require.NoError(t, ic.AfterCompletion(w, derived, h, assert.AnError))

	m := getChainMetrics()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues(h.String(), "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues(h.String(), "error")))
}

func TestMetrics_PreservesExistingStartTime(t *testing.T) {
	t.Parallel()

	ic := NewMetrics()
	h := dispatch.NewNamedHandlerRef("metricsStartTime", "list", nil)
	r := httptest.NewRequest(http.MethodGet, "/orders", nil)

	// A start time set by an earlier interceptor is kept.
	derived, proceed, err := ic.PreHandle(httptest.NewRecorder(), r, h)
	require.NoError(t, err)
	require.True(t, proceed)
	require.NotNil(t, derived)

	again, proceed, err := ic.PreHandle(httptest.NewRecorder(), derived, h)
	require.NoError(t, err)
	assert.True(t, proceed)
	assert.Nil(t, again)

	_, ok := util.StartTimeFromContext(derived.Context())
	assert.True(t, ok)
}

func TestMetrics_AsyncSuspensionCounted(t *testing.T) {
	t.Parallel()

	ic := NewMetrics()
	h := dispatch.NewNamedHandlerRef("metricsAsync", "watch", nil)
	r := httptest.NewRequest(http.MethodGet, "/orders", nil)

	before := testutil.ToFloat64(getChainMetrics().asyncSuspensions)
	ic.AfterConcurrentHandlingStarted(httptest.NewRecorder(), r, h)
	assert.Equal(t, before+1, testutil.ToFloat64(getChainMetrics().asyncSuspensions))
}
