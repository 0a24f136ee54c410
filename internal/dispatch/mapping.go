package dispatch

import (
	"net/http"

	"github.com/gatewaykit/httpdispatch/internal/cors"
)

// Mapping is an application-defined matching criterion. Implementations are
// immutable after registration.
type Mapping interface {
	// Key returns a stable identity string; two mappings with equal keys
	// are the same registration.
	Key() string

	// Paths returns every path the mapping covers, patterns included.
	// The registry keeps the non-pattern subset in its direct-path index.
	Paths() []string

	// Match checks the mapping against a request. On a match it returns a
	// refined mapping narrowed to the concrete match, used for ranking.
	Match(r *http.Request) (Mapping, bool)

	String() string
}

// MappingComparator orders refined mappings for a specific request.
// A negative result means a ranks better than b; zero means a true tie.
type MappingComparator func(a, b Mapping) int

// Strategy parameterizes the generic machinery with the concrete routing
// behavior: how matches rank against each other and which paths are
// literal enough for the direct-path index.
type Strategy interface {
	// Comparator returns the request-scoped ranking comparator.
	Comparator(r *http.Request) MappingComparator

	// IsPattern reports whether a path contains pattern syntax and is
	// therefore unfit for the direct-path index.
	IsPattern(path string) bool
}

// MatchedPatternProvider is an optional capability of refined mappings that
// expose the concrete pattern that matched.
type MatchedPatternProvider interface {
	MatchedPattern() string
}

// PathParamsProvider is an optional capability of refined mappings that
// carry parameters extracted from the request path.
type PathParamsProvider interface {
	PathParams() map[string]string
}

// NamingStrategy derives a name for a registered handler.
type NamingStrategy interface {
	Name(h *HandlerRef, m Mapping) string
}

// NamingStrategyFunc adapts a function to the NamingStrategy interface.
type NamingStrategyFunc func(h *HandlerRef, m Mapping) string

// Name implements NamingStrategy.
func (f NamingStrategyFunc) Name(h *HandlerRef, m Mapping) string {
	return f(h, m)
}

// CorsPolicyProvider derives the cross-origin policy for a handler at
// registration time. A nil policy means the handler has none.
type CorsPolicyProvider interface {
	PolicyFor(h *HandlerRef, m Mapping) *cors.Policy
}

// CorsPolicyProviderFunc adapts a function to the CorsPolicyProvider interface.
type CorsPolicyProviderFunc func(h *HandlerRef, m Mapping) *cors.Policy

// PolicyFor implements CorsPolicyProvider.
func (f CorsPolicyProviderFunc) PolicyFor(h *HandlerRef, m Mapping) *cors.Policy {
	return f(h, m)
}

// DiscoveredHandler is one handler found on a candidate target.
type DiscoveredHandler struct {
	Mapping    Mapping
	EntryPoint string
	Fn         HandlerFunc
}

// Discoverer enumerates the handlers a target exposes. It models one-shot
// startup discovery against an external object registry.
type Discoverer interface {
	// IsCandidate reports whether the target can carry handlers at all.
	IsCandidate(target any) bool

	// Handlers returns the handlers found on a candidate target.
	Handlers(target any) ([]DiscoveredHandler, error)
}
