package dispatch

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gatewaykit/httpdispatch/internal/cors"
	"github.com/gatewaykit/httpdispatch/internal/observability"
	"github.com/gatewaykit/httpdispatch/internal/util"
)

// emptyHandler backs the preflight ambiguous-match sentinel.
type emptyHandler struct{}

// preflightAmbiguousMatch is returned for cross-origin preflight probes
// when several candidates match. It signals the CORS layer to respond
// permissively without invoking a real handler.
var preflightAmbiguousMatch = NewHandlerRef(emptyHandler{}, "handle",
	func(http.ResponseWriter, *http.Request) (any, error) {
		return nil, errors.New("not implemented")
	})

// IsPreflightAmbiguousMatch reports whether the handler is the permissive
// preflight sentinel.
func IsPreflightAmbiguousMatch(h *HandlerRef) bool {
	return h == preflightAmbiguousMatch
}

// NoMatchHandler substitutes a fallback handler when no mapping matches.
// Returning a nil handler keeps the no-match result.
type NoMatchHandler func(path string, r *http.Request) (*HandlerRef, error)

// MatchObserver is invoked for bookkeeping once a best match is selected.
type MatchObserver func(m Mapping, path string, r *http.Request)

// LookupPathFunc produces the canonical lookup path for a request.
type LookupPathFunc func(r *http.Request) string

// HandlerMapping resolves requests to the single best-matching handler and
// wraps it in a fresh execution chain.
type HandlerMapping struct {
	registry       *Registry
	strategy       Strategy
	targetResolver TargetResolver
	interceptors   []Interceptor
	logger         observability.Logger
	noMatch        NoMatchHandler
	matchObserver  MatchObserver
	lookupPath     LookupPathFunc
	registryOpts   []RegistryOption
}

// Option is a functional option for configuring the handler mapping.
type Option func(*HandlerMapping)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(hm *HandlerMapping) {
		hm.logger = logger
	}
}

// WithInterceptors appends interceptors applied to every resolved chain,
// in registration order.
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(hm *HandlerMapping) {
		hm.interceptors = append(hm.interceptors, interceptors...)
	}
}

// WithNoMatchHandler sets the fallback hook consulted when nothing matches.
func WithNoMatchHandler(fn NoMatchHandler) Option {
	return func(hm *HandlerMapping) {
		hm.noMatch = fn
	}
}

// WithMatchObserver sets the hook invoked after a match is selected.
func WithMatchObserver(fn MatchObserver) Option {
	return func(hm *HandlerMapping) {
		hm.matchObserver = fn
	}
}

// WithLookupPath sets the request path normalizer.
func WithLookupPath(fn LookupPathFunc) Option {
	return func(hm *HandlerMapping) {
		hm.lookupPath = fn
	}
}

// WithTargetResolver sets the resolver for lazily-bound handler targets.
func WithTargetResolver(resolver TargetResolver) Option {
	return func(hm *HandlerMapping) {
		hm.targetResolver = resolver
	}
}

// WithRegistry replaces the default registry. The registry must have been
// built with the same strategy.
func WithRegistry(registry *Registry) Option {
	return func(hm *HandlerMapping) {
		hm.registry = registry
	}
}

// WithRegistryOptions passes options through to the default registry.
// Ignored when WithRegistry supplies a registry.
func WithRegistryOptions(opts ...RegistryOption) Option {
	return func(hm *HandlerMapping) {
		hm.registryOpts = append(hm.registryOpts, opts...)
	}
}

// NewHandlerMapping creates a handler mapping for the given strategy.
// Registry options (naming strategy, CORS provider) apply to the default
// registry it creates.
func NewHandlerMapping(strategy Strategy, opts ...Option) *HandlerMapping {
	hm := &HandlerMapping{
		strategy:   strategy,
		logger:     observability.NopLogger(),
		lookupPath: func(r *http.Request) string { return r.URL.Path },
	}

	for _, opt := range opts {
		opt(hm)
	}

	if hm.registry == nil {
		opts := append([]RegistryOption{WithRegistryLogger(hm.logger)}, hm.registryOpts...)
		hm.registry = NewRegistry(strategy, opts...)
	}

	return hm
}

// Registry returns the backing registry.
func (hm *HandlerMapping) Registry() *Registry {
	return hm.registry
}

// RegisterMapping registers a mapping to handler binding. May be invoked
// at any time, including after requests started flowing.
func (hm *HandlerMapping) RegisterMapping(m Mapping, h *HandlerRef) error {
	return hm.registry.Register(m, h)
}

// UnregisterMapping removes a mapping registration.
func (hm *HandlerMapping) UnregisterMapping(m Mapping) {
	hm.registry.Unregister(m)
}

// DetectHandlers enumerates the targets through the discoverer and
// registers every handler found. It models one-shot startup discovery.
func (hm *HandlerMapping) DetectHandlers(disc Discoverer, targets ...any) error {
	for _, target := range targets {
		if !disc.IsCandidate(target) {
			continue
		}
		handlers, err := disc.Handlers(target)
		if err != nil {
			return err
		}
		hm.logger.Debug("detected handlers",
			observability.Int("count", len(handlers)),
		)
		for _, dh := range handlers {
			ref := NewHandlerRef(target, dh.EntryPoint, dh.Fn)
			if err := hm.registry.Register(dh.Mapping, ref); err != nil {
				return err
			}
		}
	}
	return nil
}

// Mappings returns an immutable snapshot of mapping to handler bindings.
func (hm *HandlerMapping) Mappings() map[Mapping]*HandlerRef {
	return hm.registry.Snapshot()
}

// HandlersByName returns the handlers registered under a derived name.
func (hm *HandlerMapping) HandlersByName(name string) []*HandlerRef {
	return hm.registry.HandlersByName(name)
}

// AddInterceptors appends interceptors applied to chains resolved after
// the call. Not safe for concurrent use with Resolve.
func (hm *HandlerMapping) AddInterceptors(interceptors ...Interceptor) {
	hm.interceptors = append(hm.interceptors, interceptors...)
}

// CorsPolicyFor returns the cross-origin policy for a resolved handler.
// The preflight ambiguous-match sentinel maps to the permissive policy.
func (hm *HandlerMapping) CorsPolicyFor(h *HandlerRef) *cors.Policy {
	if IsPreflightAmbiguousMatch(h) {
		return cors.Permissive()
	}
	return hm.registry.CorsPolicy(h)
}

// match pairs a refined mapping with its handler for ranking.
type match struct {
	mapping Mapping
	handler *HandlerRef
}

// Resolve finds the best-matching handler for the request and returns a
// fresh execution chain around it, plus the request enriched with match
// context. A nil chain with a nil error means no handler matched.
func (hm *HandlerMapping) Resolve(r *http.Request) (*Chain, *http.Request, error) {
	start := time.Now()
	metrics := getDispatchMetrics()

	path := hm.lookupPath(r)
	handler, req, err := hm.lookupHandler(path, r)
	metrics.resolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, r, err
	}
	if handler == nil {
		hm.logger.Debug("no handler found",
			observability.String("method", r.Method),
			observability.String("path", path),
		)
		return nil, req, nil
	}

	if hm.targetResolver != nil && !IsPreflightAmbiguousMatch(handler) {
		handler, err = handler.CreateWithResolvedTarget(hm.targetResolver)
		if err != nil {
			return nil, req, err
		}
	}

	return NewChain(handler, hm.interceptors...).WithLogger(hm.logger), req, nil
}

// lookupHandler implements the best-match selection: direct-path fast path,
// full-scan fallback, ranking, ambiguity detection, and match bookkeeping.
func (hm *HandlerMapping) lookupHandler(path string, r *http.Request) (*HandlerRef, *http.Request, error) {
	metrics := getDispatchMetrics()
	rg := hm.registry

	rg.mu.RLock()
	outcome := outcomeDirect
	matches := collectMatches(rg.pathLookup[path], rg, r, nil)
	if len(matches) == 0 {
		// No choice but to go through all mappings.
		outcome = outcomeScan
		all := make([]Mapping, 0, len(rg.registrations))
		for _, reg := range rg.registrations {
			all = append(all, reg.mapping)
		}
		matches = collectMatches(all, rg, r, matches)
	}
	rg.mu.RUnlock()

	if len(matches) == 0 {
		metrics.resolveTotal.WithLabelValues(outcomeNone).Inc()
		if hm.noMatch != nil {
			handler, err := hm.noMatch(path, r)
			return handler, r, err
		}
		return nil, r, nil
	}

	// Ranking happens outside the registry lock.
	cmp := hm.strategy.Comparator(r)
	sort.SliceStable(matches, func(i, j int) bool {
		return cmp(matches[i].mapping, matches[j].mapping) < 0
	})

	best := matches[0]
	if len(matches) > 1 {
		if cors.IsPreflight(r) {
			metrics.resolveTotal.WithLabelValues(outcomePreflight).Inc()
			return preflightAmbiguousMatch, r, nil
		}
		second := matches[1]
		if cmp(best.mapping, second.mapping) == 0 {
			metrics.resolveTotal.WithLabelValues(outcomeAmbiguous).Inc()
			return nil, r, util.NewAmbiguousMatchError(path,
				best.handler.String(), second.handler.String())
		}
	}

	metrics.resolveTotal.WithLabelValues(outcome).Inc()
	req := hm.handleMatch(best, path, r)
	return best.handler, req, nil
}

// collectMatches refines each candidate mapping against the request.
// Must be called with the registry read lock held.
func collectMatches(candidates []Mapping, rg *Registry, r *http.Request, matches []match) []match {
	for _, m := range candidates {
		refined, ok := m.Match(r)
		if !ok {
			continue
		}
		reg := rg.registrations[m.Key()]
		if reg == nil {
			continue
		}
		matches = append(matches, match{mapping: refined, handler: reg.handler})
	}
	return matches
}

// handleMatch records the match context on the request and notifies the
// observer hook.
func (hm *HandlerMapping) handleMatch(best match, path string, r *http.Request) *http.Request {
	ctx := util.ContextWithLookupPath(r.Context(), path)
	ctx = util.ContextWithHandlerName(ctx, best.handler.String())
	if p, ok := best.mapping.(MatchedPatternProvider); ok {
		ctx = util.ContextWithMatchedPattern(ctx, p.MatchedPattern())
	}
	if p, ok := best.mapping.(PathParamsProvider); ok {
		if params := p.PathParams(); len(params) > 0 {
			ctx = util.ContextWithPathParams(ctx, params)
		}
	}
	req := r.WithContext(ctx)

	if hm.matchObserver != nil {
		hm.matchObserver(best.mapping, path, req)
	}
	return req
}
