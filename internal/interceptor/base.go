package interceptor

import (
	"net/http"

	"github.com/gatewaykit/httpdispatch/internal/dispatch"
)

// Base is an embeddable no-op interceptor. Interceptors that only care
// about one or two phases embed it and override what they need.
type Base struct{}

// PreHandle proceeds without touching the request.
func (Base) PreHandle(_ http.ResponseWriter, _ *http.Request, _ *dispatch.HandlerRef) (*http.Request, bool, error) {
	return nil, true, nil
}

// PostHandle does nothing.
func (Base) PostHandle(_ http.ResponseWriter, _ *http.Request, _ *dispatch.HandlerRef, _ any) error {
	return nil
}

// AfterCompletion does nothing.
func (Base) AfterCompletion(_ http.ResponseWriter, _ *http.Request, _ *dispatch.HandlerRef, _ error) error {
	return nil
}
