// Package cors derives and applies cross-origin resource sharing policy
// for resolved handlers.
package cors

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// Policy describes the cross-origin policy attached to a handler.
type Policy struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int

	compileOnce      sync.Once
	allowOrigins     map[string]bool
	wildcardPatterns []string
	allowAllOrigins  bool
}

// NewPolicy creates a policy and pre-computes its origin matching state.
func NewPolicy(allowOrigins, allowMethods, allowHeaders []string) *Policy {
	p := &Policy{
		AllowOrigins: allowOrigins,
		AllowMethods: allowMethods,
		AllowHeaders: allowHeaders,
	}
	p.compile()
	return p
}

// Permissive returns the policy used for ambiguous preflight matches:
// every origin, method, and header is allowed.
func Permissive() *Policy {
	p := &Policy{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"*"},
		AllowHeaders:     []string{"*"},
		AllowCredentials: true,
	}
	p.compile()
	return p
}

// compile pre-computes origin lookup structures, once per policy. The
// sync.Once makes a literally-constructed Policy safe for concurrent use.
func (p *Policy) compile() {
	p.compileOnce.Do(func() {
		p.allowOrigins = make(map[string]bool)

		for _, origin := range p.AllowOrigins {
			switch {
			case origin == "*":
				p.allowAllOrigins = true
			case strings.HasPrefix(origin, "*."):
				p.wildcardPatterns = append(p.wildcardPatterns, origin)
			default:
				p.allowOrigins[origin] = true
			}
		}
	})
}

// IsOriginAllowed checks if the given origin is allowed.
func (p *Policy) IsOriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	p.compile()

	if p.allowAllOrigins {
		return true
	}
	if p.allowOrigins[origin] {
		return true
	}
	for _, pattern := range p.wildcardPatterns {
		if matchWildcardOrigin(origin, pattern) {
			return true
		}
	}
	return false
}

// matchWildcardOrigin checks if an origin matches a wildcard pattern.
// Pattern format: "*.example.com" matches "sub.example.com", "api.example.com", etc.
func matchWildcardOrigin(origin, pattern string) bool {
	if !strings.HasPrefix(pattern, "*.") {
		return false
	}

	suffix := pattern[1:]
	host := origin

	if idx := strings.Index(host, "://"); idx != -1 {
		host = host[idx+3:]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}

	// At least one character must precede the suffix (the subdomain).
	return len(host) > len(suffix) && strings.HasSuffix(host, suffix)
}

// Combine merges another policy into a copy of this one. Values from the
// other policy are unioned in; boolean and numeric fields from the other
// policy win when set.
func (p *Policy) Combine(other *Policy) *Policy {
	if other == nil {
		return p
	}
	if p == nil {
		return other
	}

	merged := &Policy{
		AllowOrigins:     unionStrings(p.AllowOrigins, other.AllowOrigins),
		AllowMethods:     unionStrings(p.AllowMethods, other.AllowMethods),
		AllowHeaders:     unionStrings(p.AllowHeaders, other.AllowHeaders),
		ExposeHeaders:    unionStrings(p.ExposeHeaders, other.ExposeHeaders),
		AllowCredentials: p.AllowCredentials || other.AllowCredentials,
		MaxAge:           p.MaxAge,
	}
	if other.MaxAge > 0 {
		merged.MaxAge = other.MaxAge
	}
	merged.compile()
	return merged
}

// unionStrings merges two string slices preserving order and dropping duplicates.
func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Apply sets response headers for the given request origin.
func (p *Policy) Apply(w http.ResponseWriter, origin string) {
	if p.IsOriginAllowed(origin) {
		// Echo the specific origin; credentials require a non-wildcard value.
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
	}

	if len(p.AllowMethods) > 0 {
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(p.AllowMethods, ", "))
	}
	if len(p.AllowHeaders) > 0 {
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(p.AllowHeaders, ", "))
	}
	if len(p.ExposeHeaders) > 0 {
		w.Header().Set("Access-Control-Expose-Headers", strings.Join(p.ExposeHeaders, ", "))
	}
	if p.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	if p.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(p.MaxAge))
	}
}

// IsCorsRequest checks whether the request carries an Origin header.
func IsCorsRequest(r *http.Request) bool {
	return r.Header.Get("Origin") != ""
}

// IsPreflight checks whether the request is a cross-origin preflight probe:
// an OPTIONS request with Origin and Access-Control-Request-Method headers.
func IsPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != ""
}
