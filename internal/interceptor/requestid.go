package interceptor

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/gatewaykit/httpdispatch/internal/dispatch"
	"github.com/gatewaykit/httpdispatch/internal/observability"
)

// RequestIDHeader is the header carrying the request correlation ID.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request a correlation ID. An incoming ID is
// trusted and propagated; otherwise a new UUID is generated. The ID is
// set on the response, and stored in the request context where the
// logging layer picks it up.
type RequestID struct {
	Base
}

// NewRequestID creates the request ID interceptor.
func NewRequestID() *RequestID {
	return &RequestID{}
}

// PreHandle derives a request whose context carries the correlation ID.
func (ic *RequestID) PreHandle(w http.ResponseWriter, r *http.Request, _ *dispatch.HandlerRef) (*http.Request, bool, error) {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}

	w.Header().Set(RequestIDHeader, id)
	ctx := observability.ContextWithRequestID(r.Context(), id)
	return r.WithContext(ctx), true, nil
}
