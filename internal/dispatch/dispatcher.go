package dispatch

import (
	"errors"
	"io"
	"net/http"

	"github.com/gatewaykit/httpdispatch/internal/cors"
	"github.com/gatewaykit/httpdispatch/internal/observability"
	"github.com/gatewaykit/httpdispatch/internal/util"
)

// AsyncOutcome is the delayed result of an asynchronously completing handler.
type AsyncOutcome struct {
	Result any
	Err    error
}

// AsyncResult is returned by a handler to signal that handling completes
// asynchronously. The dispatcher suspends the pipeline, notifies
// async-capable interceptors, and resumes post-handle and completion when
// an outcome arrives on Done.
type AsyncResult struct {
	Done <-chan AsyncOutcome
}

// ErrorRenderer writes an error response.
type ErrorRenderer func(w http.ResponseWriter, r *http.Request, err error)

// Dispatcher is an http.Handler that drives the full dispatch protocol:
// resolution, CORS handling, the interceptor pipeline, handler invocation,
// and asynchronous suspension.
type Dispatcher struct {
	mapping     *HandlerMapping
	logger      observability.Logger
	renderError ErrorRenderer
}

// DispatcherOption is a functional option for configuring the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger for the dispatcher.
func WithDispatcherLogger(logger observability.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithErrorRenderer sets the error response writer.
func WithErrorRenderer(fn ErrorRenderer) DispatcherOption {
	return func(d *Dispatcher) {
		d.renderError = fn
	}
}

// NewDispatcher creates a dispatcher around the handler mapping.
func NewDispatcher(mapping *HandlerMapping, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		mapping: mapping,
		logger:  observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.renderError == nil {
		d.renderError = d.defaultRenderError
	}

	return d
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	chain, req, err := d.mapping.Resolve(r)
	if err != nil {
		d.renderError(w, req, err)
		return
	}
	if chain == nil {
		d.renderError(w, req, util.NewNoHandlerError(r.Method, r.URL.Path))
		return
	}

	handler := chain.Handler()

	if cors.IsPreflight(req) {
		// A preflight probe never reaches the handler, whether or not the
		// matched route carries a policy.
		if policy := d.mapping.CorsPolicyFor(handler); policy != nil {
			policy.Apply(w, req.Header.Get("Origin"))
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if policy := d.mapping.CorsPolicyFor(handler); policy != nil && cors.IsCorsRequest(req) {
		policy.Apply(w, req.Header.Get("Origin"))
	}
	if IsPreflightAmbiguousMatch(handler) {
		// Preflight sentinel on a non-CORS request: nothing to execute.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	req, proceed, err := chain.ApplyPreHandle(w, req)
	if err != nil {
		chain.TriggerAfterCompletion(w, req, err)
		d.renderError(w, req, err)
		return
	}
	if !proceed {
		return
	}

	result, err := handler.Invoke(w, req)
	if err != nil {
		chain.TriggerAfterCompletion(w, req, err)
		d.renderError(w, req, err)
		return
	}

	if async, ok := result.(*AsyncResult); ok {
		d.awaitAsync(w, req, chain, async)
		return
	}

	d.finish(w, req, chain, result)
}

// awaitAsync suspends the pipeline until the handler's delayed outcome
// arrives or the request context ends. The caller-enforced deadline on the
// request context is the only timeout.
func (d *Dispatcher) awaitAsync(w http.ResponseWriter, r *http.Request, chain *Chain, async *AsyncResult) {
	chain.ApplyAfterConcurrentHandlingStarted(w, r)

	select {
	case outcome := <-async.Done:
		if outcome.Err != nil {
			chain.TriggerAfterCompletion(w, r, outcome.Err)
			d.renderError(w, r, outcome.Err)
			return
		}
		d.finish(w, r, chain, outcome.Result)
	case <-r.Context().Done():
		err := r.Context().Err()
		chain.TriggerAfterCompletion(w, r, err)
		d.renderError(w, r, err)
	}
}

// finish runs the post-handle and completion phases.
func (d *Dispatcher) finish(w http.ResponseWriter, r *http.Request, chain *Chain, result any) {
	if err := chain.ApplyPostHandle(w, r, result); err != nil {
		chain.TriggerAfterCompletion(w, r, err)
		d.renderError(w, r, err)
		return
	}
	chain.TriggerAfterCompletion(w, r, nil)
}

// defaultRenderError writes a minimal JSON error response.
func (d *Dispatcher) defaultRenderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := `{"error":"internal server error"}`

	switch {
	case errors.Is(err, util.ErrNoHandler):
		status = http.StatusNotFound
		body = `{"error":"not found"}`
	case errors.Is(err, util.ErrAmbiguousMatch):
		d.logger.Error("ambiguous handler match",
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
	default:
		d.logger.Error("request dispatch failed",
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
