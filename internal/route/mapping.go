package route

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/gatewaykit/httpdispatch/internal/config"
	"github.com/gatewaykit/httpdispatch/internal/cors"
	"github.com/gatewaykit/httpdispatch/internal/dispatch"
)

// Route priority constants for ranking matched routes. Higher priority
// routes win.
const (
	// priorityExactMatch is the base priority for exact path matches.
	priorityExactMatch = 1000

	// priorityPrefixMatch is the base priority for prefix path matches.
	// Longer prefixes receive additional priority based on their length.
	priorityPrefixMatch = 500

	// priorityParameterMatch is the base priority for parameterized path
	// matches.
	priorityParameterMatch = 300

	// priorityRegexMatch is the base priority for regex and wildcard
	// path matches.
	priorityRegexMatch = 100

	// priorityMethodRestriction is the priority bonus for routes with
	// method restrictions.
	priorityMethodRestriction = 50

	// priorityHeaderRestriction is the priority bonus per header
	// restriction.
	priorityHeaderRestriction = 10

	// priorityQueryRestriction is the priority bonus per query parameter
	// restriction.
	priorityQueryRestriction = 5

	// priorityCondition is the priority bonus for routes with a CEL
	// condition.
	priorityCondition = 5
)

// compiledMatch is one pre-compiled matching condition.
type compiledMatch struct {
	path    PathMatcher
	methods *MethodMatcher
	headers []*HeaderMatcher
	queries []*QueryParamMatcher
}

// Mapping is a compiled route implementing the dispatch mapping contract.
// It is immutable after compilation; Match returns refined copies carrying
// the concrete matched pattern and extracted path parameters.
type Mapping struct {
	name       string
	cfg        config.Route
	matches    []*compiledMatch
	condition  *Condition
	corsPolicy *cors.Policy
	priority   int

	// Refined-match state, set on the copies returned by Match.
	matchedPattern string
	params         map[string]string
}

// Compile compiles a route configuration into a mapping.
func Compile(cfg config.Route) (*Mapping, error) {
	m := &Mapping{
		name:     cfg.Name,
		cfg:      cfg,
		priority: calculatePriority(cfg),
	}

	for i := range cfg.Match {
		compiled, err := compileMatch(&cfg.Match[i])
		if err != nil {
			return nil, fmt.Errorf("failed to compile route %s: %w", cfg.Name, err)
		}
		m.matches = append(m.matches, compiled)
	}

	if cfg.Condition != "" {
		condition, err := CompileCondition(cfg.Condition)
		if err != nil {
			return nil, fmt.Errorf("failed to compile route %s: %w", cfg.Name, err)
		}
		m.condition = condition
	}

	if cfg.CORS != nil {
		m.corsPolicy = compileCorsPolicy(cfg.CORS)
	}

	return m, nil
}

// compileMatch compiles a single match condition.
func compileMatch(rm *config.RouteMatch) (*compiledMatch, error) {
	compiled := &compiledMatch{}

	if rm.URI != nil && !rm.URI.IsEmpty() {
		matcher, err := createPathMatcher(rm.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to create path matcher: %w", err)
		}
		compiled.path = matcher
	}

	if len(rm.Methods) > 0 {
		compiled.methods = NewMethodMatcher(rm.Methods)
	}

	for _, headerCfg := range rm.Headers {
		matcher, err := NewHeaderMatcher(headerCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create header matcher: %w", err)
		}
		compiled.headers = append(compiled.headers, matcher)
	}

	for _, queryCfg := range rm.QueryParams {
		matcher, err := NewQueryParamMatcher(queryCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create query matcher: %w", err)
		}
		compiled.queries = append(compiled.queries, matcher)
	}

	return compiled, nil
}

// createPathMatcher creates a path matcher from URI configuration.
func createPathMatcher(uri *config.URIMatch) (PathMatcher, error) {
	if uri.Exact != "" {
		if HasPathParameters(uri.Exact) {
			return NewParameterMatcher(uri.Exact)
		}
		return NewExactMatcher(uri.Exact), nil
	}

	if uri.Prefix != "" {
		if HasPathParameters(uri.Prefix) {
			return NewParameterMatcher(uri.Prefix)
		}
		if HasWildcards(uri.Prefix) {
			return NewWildcardMatcher(uri.Prefix)
		}
		return NewPrefixMatcher(uri.Prefix), nil
	}

	return NewRegexMatcher(uri.Regex)
}

// compileCorsPolicy converts the route CORS configuration to a policy.
func compileCorsPolicy(cfg *config.CORSConfig) *cors.Policy {
	policy := cors.NewPolicy(cfg.AllowOrigins, cfg.AllowMethods, cfg.AllowHeaders)
	policy.ExposeHeaders = cfg.ExposeHeaders
	policy.AllowCredentials = cfg.AllowCredentials
	policy.MaxAge = cfg.MaxAge
	return policy
}

// calculatePriority derives the ranking priority from match specificity.
// Exact paths rank highest, then prefixes (longer first), parameters and
// finally regex and wildcard matches. Every additional restriction adds
// specificity.
func calculatePriority(cfg config.Route) int {
	priority := 0

	for _, match := range cfg.Match {
		if match.URI != nil {
			switch {
			case match.URI.Exact != "" && !HasPathParameters(match.URI.Exact):
				priority += priorityExactMatch
			case match.URI.Exact != "":
				priority += priorityParameterMatch
			case match.URI.Prefix != "" && !HasPathParameters(match.URI.Prefix) && !HasWildcards(match.URI.Prefix):
				priority += priorityPrefixMatch + len(match.URI.Prefix)
			case match.URI.Prefix != "" && HasPathParameters(match.URI.Prefix):
				priority += priorityParameterMatch
			case match.URI.Prefix != "":
				priority += priorityRegexMatch
			case match.URI.Regex != "":
				priority += priorityRegexMatch
			}
		}

		if len(match.Methods) > 0 {
			priority += priorityMethodRestriction
		}

		priority += len(match.Headers) * priorityHeaderRestriction
		priority += len(match.QueryParams) * priorityQueryRestriction
	}

	if cfg.Condition != "" {
		priority += priorityCondition
	}

	return priority
}

// Key returns the stable route identity.
func (m *Mapping) Key() string {
	return "route/" + m.name
}

// Name returns the route name.
func (m *Mapping) Name() string {
	return m.name
}

// Config returns the source route configuration.
func (m *Mapping) Config() config.Route {
	return m.cfg
}

// Priority returns the ranking priority.
func (m *Mapping) Priority() int {
	return m.priority
}

// CorsPolicy returns the per-route cross-origin policy, or nil.
func (m *Mapping) CorsPolicy() *cors.Policy {
	return m.corsPolicy
}

// Paths returns every path pattern the route covers.
func (m *Mapping) Paths() []string {
	var paths []string
	for _, match := range m.matches {
		if match.path != nil {
			paths = append(paths, match.path.Pattern())
		}
	}
	return paths
}

// Match checks the route against a request. A route with several match
// conditions matches when any one of them does.
func (m *Mapping) Match(r *http.Request) (dispatch.Mapping, bool) {
	if len(m.matches) == 0 {
		return m.refine("", nil), m.conditionHolds(r)
	}

	for _, match := range m.matches {
		pattern, params, ok := m.matchCondition(match, r)
		if !ok {
			continue
		}
		if !m.conditionHolds(r) {
			return nil, false
		}
		return m.refine(pattern, params), true
	}

	return nil, false
}

// matchCondition checks one compiled condition against the request.
func (m *Mapping) matchCondition(match *compiledMatch, r *http.Request) (pattern string, params map[string]string, ok bool) {
	// Method first, it is the cheapest check. Preflight probes match on
	// the method they announce rather than OPTIONS itself.
	if match.methods != nil {
		method := r.Method
		if cors.IsPreflight(r) {
			method = r.Header.Get("Access-Control-Request-Method")
		}
		if !match.methods.Match(method) {
			return "", nil, false
		}
	}

	if match.path != nil {
		matched, pathParams := match.path.Match(r.URL.Path)
		if !matched {
			return "", nil, false
		}
		pattern = match.path.Pattern()
		params = pathParams
	}

	for _, header := range match.headers {
		if !header.Match(r.Header) {
			return "", nil, false
		}
	}

	query := r.URL.Query()
	for _, param := range match.queries {
		if !param.Match(query) {
			return "", nil, false
		}
	}

	return pattern, params, true
}

// conditionHolds evaluates the CEL condition, if any. Evaluation errors
// count as a non-match.
func (m *Mapping) conditionHolds(r *http.Request) bool {
	if m.condition == nil {
		return true
	}
	ok, err := m.condition.Evaluate(r)
	return err == nil && ok
}

// refine returns a copy narrowed to the concrete match.
func (m *Mapping) refine(pattern string, params map[string]string) *Mapping {
	refined := *m
	refined.matchedPattern = pattern
	refined.params = params
	return &refined
}

// MatchedPattern returns the pattern that matched, on refined copies.
func (m *Mapping) MatchedPattern() string {
	return m.matchedPattern
}

// PathParams returns the extracted path parameters, on refined copies.
func (m *Mapping) PathParams() map[string]string {
	return m.params
}

// String formats the mapping for diagnostics.
func (m *Mapping) String() string {
	return fmt.Sprintf("route %s (priority %d)", m.name, m.priority)
}

// Strategy is the dispatch strategy backed by route priorities.
type Strategy struct{}

// Comparator returns the ranking comparator. Routes rank by priority,
// higher first; equal priorities are a true tie.
func (Strategy) Comparator(_ *http.Request) dispatch.MappingComparator {
	return func(a, b dispatch.Mapping) int {
		ra, aok := a.(*Mapping)
		rb, bok := b.(*Mapping)
		if !aok || !bok {
			return 0
		}
		return rb.priority - ra.priority
	}
}

// IsPattern reports whether a path contains pattern syntax.
func (Strategy) IsPattern(path string) bool {
	return strings.ContainsAny(path, "{}*?^$()[]|+")
}

// DefaultNamingStrategy derives handler names as the capital letters of
// the target type followed by "#" and the entry point, so a reference to
// OrderController.listOrders becomes "OC#listOrders".
func DefaultNamingStrategy() dispatch.NamingStrategy {
	return dispatch.NamingStrategyFunc(func(h *dispatch.HandlerRef, _ dispatch.Mapping) string {
		var sb strings.Builder
		for _, r := range h.TargetTypeName() {
			if unicode.IsUpper(r) {
				sb.WriteRune(r)
			}
		}
		sb.WriteString("#")
		sb.WriteString(h.EntryPoint())
		return sb.String()
	})
}

// CorsPolicyProvider returns the provider that surfaces per-route CORS
// policies to the dispatch registry.
func CorsPolicyProvider() dispatch.CorsPolicyProvider {
	return dispatch.CorsPolicyProviderFunc(func(_ *dispatch.HandlerRef, m dispatch.Mapping) *cors.Policy {
		if rm, ok := m.(*Mapping); ok {
			return rm.corsPolicy
		}
		return nil
	})
}
