package dispatch

import (
	"fmt"
	"net/http"

	"github.com/gatewaykit/httpdispatch/internal/observability"
)

// Interceptor wraps handler invocation with cross-cutting behavior.
//
// PreHandle runs before the handler, in registration order. It may return
// a derived request (nil keeps the current one); returning proceed=false
// short-circuits the chain, in which case the interceptor is responsible
// for having produced a response. PostHandle runs after a successful
// handler invocation, in reverse order. AfterCompletion is the best-effort
// cleanup phase: it runs for every interceptor whose PreHandle succeeded,
// in reverse order, and its error is logged, never propagated.
type Interceptor interface {
	PreHandle(w http.ResponseWriter, r *http.Request, h *HandlerRef) (*http.Request, bool, error)
	PostHandle(w http.ResponseWriter, r *http.Request, h *HandlerRef, result any) error
	AfterCompletion(w http.ResponseWriter, r *http.Request, h *HandlerRef, err error) error
}

// AsyncInterceptor is the optional capability for interceptors that want
// to be notified when the handler suspends for asynchronous completion.
type AsyncInterceptor interface {
	Interceptor

	AfterConcurrentHandlingStarted(w http.ResponseWriter, r *http.Request, h *HandlerRef)
}

// Chain drives a resolved handler through its ordered interceptor list.
// The progress cursor is invocation-scoped: a chain must be constructed
// fresh for every resolved request and never reused.
type Chain struct {
	handler      *HandlerRef
	interceptors []Interceptor
	logger       observability.Logger

	// interceptorIndex records the last interceptor whose PreHandle
	// returned proceed, for the completion phase.
	interceptorIndex int
}

// NewChain creates an execution chain around the handler.
func NewChain(handler *HandlerRef, interceptors ...Interceptor) *Chain {
	return &Chain{
		handler:          handler,
		interceptors:     interceptors,
		logger:           observability.NopLogger(),
		interceptorIndex: -1,
	}
}

// WithLogger sets the logger used for isolated completion failures and
// returns the chain.
func (c *Chain) WithLogger(logger observability.Logger) *Chain {
	c.logger = logger
	return c
}

// Handler returns the handler the chain executes.
func (c *Chain) Handler() *HandlerRef {
	return c.handler
}

// AddInterceptor appends an interceptor to the chain.
func (c *Chain) AddInterceptor(interceptor Interceptor) {
	c.interceptors = append(c.interceptors, interceptor)
}

// Interceptors returns a copy of the interceptor list.
func (c *Chain) Interceptors() []Interceptor {
	out := make([]Interceptor, len(c.interceptors))
	copy(out, c.interceptors)
	return out
}

// ApplyPreHandle applies interceptor pre-hooks in registration order and
// returns the request to continue with. If an interceptor short-circuits,
// completion is triggered for the interceptors already passed and
// proceed=false is returned. Errors propagate to the caller, which must
// still call TriggerAfterCompletion with them.
func (c *Chain) ApplyPreHandle(w http.ResponseWriter, r *http.Request) (*http.Request, bool, error) {
	for i, interceptor := range c.interceptors {
		req, proceed, err := interceptor.PreHandle(w, r, c.handler)
		if err != nil {
			return r, false, err
		}
		if req != nil {
			r = req
		}
		if !proceed {
			c.TriggerAfterCompletion(w, r, nil)
			return r, false, nil
		}
		c.interceptorIndex = i
	}
	return r, true, nil
}

// ApplyPostHandle applies interceptor post-hooks in reverse registration
// order. Only reached when every pre-hook proceeded and the handler
// returned without error.
func (c *Chain) ApplyPostHandle(w http.ResponseWriter, r *http.Request, result any) error {
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		if err := c.interceptors[i].PostHandle(w, r, c.handler, result); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterCompletion notifies every interceptor whose pre-hook
// succeeded, in reverse order. A failing completion hook is logged and
// never stops the remaining notifications.
func (c *Chain) TriggerAfterCompletion(w http.ResponseWriter, r *http.Request, err error) {
	for i := c.interceptorIndex; i >= 0; i-- {
		c.safeAfterCompletion(c.interceptors[i], w, r, err)
	}
}

// safeAfterCompletion isolates one interceptor's completion hook.
func (c *Chain) safeAfterCompletion(interceptor Interceptor, w http.ResponseWriter, r *http.Request, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("interceptor afterCompletion panicked",
				observability.String("handler", c.handler.String()),
				observability.Any("panic", rec),
			)
		}
	}()
	if cerr := interceptor.AfterCompletion(w, r, c.handler, err); cerr != nil {
		c.logger.Error("interceptor afterCompletion failed",
			observability.String("handler", c.handler.String()),
			observability.Error(cerr),
		)
	}
}

// ApplyAfterConcurrentHandlingStarted notifies async-capable interceptors,
// in reverse order, that the handler suspended for asynchronous
// completion. Failures are isolated per interceptor.
func (c *Chain) ApplyAfterConcurrentHandlingStarted(w http.ResponseWriter, r *http.Request) {
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		async, ok := c.interceptors[i].(AsyncInterceptor)
		if !ok {
			continue
		}
		c.safeAfterConcurrentHandlingStarted(async, w, r)
	}
}

// safeAfterConcurrentHandlingStarted isolates one async notification.
func (c *Chain) safeAfterConcurrentHandlingStarted(async AsyncInterceptor, w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("interceptor afterConcurrentHandlingStarted panicked",
				observability.String("handler", c.handler.String()),
				observability.Any("panic", rec),
			)
		}
	}()
	async.AfterConcurrentHandlingStarted(w, r, c.handler)
}

// String formats the chain for diagnostics.
func (c *Chain) String() string {
	return fmt.Sprintf("Chain with handler [%s] and %d interceptors", c.handler, len(c.interceptors))
}
