package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_Health(t *testing.T) {
	t.Parallel()

	checker := NewChecker("1.2.3")
	response := checker.Health()

	assert.Equal(t, StatusHealthy, response.Status)
	assert.Equal(t, "1.2.3", response.Version)
	assert.False(t, response.Timestamp.IsZero())
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()

	checker := NewChecker("dev")
	checker.RegisterCheck("routes", func() error { return nil })

	response := checker.Readiness()
	assert.Equal(t, StatusHealthy, response.Status)
	assert.Equal(t, "ok", response.Checks["routes"])
}

func TestChecker_ReadinessFailingCheck(t *testing.T) {
	t.Parallel()

	checker := NewChecker("dev")
	checker.RegisterCheck("routes", func() error { return nil })
	checker.RegisterCheck("config", func() error { return errors.New("not loaded") })

	response := checker.Readiness()
	assert.Equal(t, StatusUnhealthy, response.Status)
	assert.Equal(t, "ok", response.Checks["routes"])
	assert.Equal(t, "not loaded", response.Checks["config"])
}

func TestChecker_HealthHandler(t *testing.T) {
	t.Parallel()

	checker := NewChecker("1.0.0")
	w := httptest.NewRecorder()
	checker.HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, StatusHealthy, response.Status)
	assert.Equal(t, "1.0.0", response.Version)
}

func TestChecker_ReadinessHandler(t *testing.T) {
	t.Parallel()

	checker := NewChecker("dev")
	checker.RegisterCheck("routes", func() error { return errors.New("empty table") })

	w := httptest.NewRecorder()
	checker.ReadinessHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestChecker_LivenessHandler(t *testing.T) {
	t.Parallel()

	checker := NewChecker("dev")
	w := httptest.NewRecorder()
	checker.LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
