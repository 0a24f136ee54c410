package config

import (
	"fmt"

	"github.com/gatewaykit/httpdispatch/internal/util"
)

// Route is one routing rule: matching conditions plus the handler they
// bind to.
type Route struct {
	Name string `yaml:"name"`

	// Match lists the matching conditions. A request matches the route
	// when any condition matches.
	Match []RouteMatch `yaml:"match,omitempty"`

	// Handler names the target and entry point the route dispatches to.
	Handler HandlerBinding `yaml:"handler"`

	// Condition is an optional CEL expression evaluated against the
	// request. It must hold in addition to the Match conditions.
	Condition string `yaml:"condition,omitempty"`

	// CORS is the per-route cross-origin policy.
	CORS *CORSConfig `yaml:"cors,omitempty"`
}

// HandlerBinding names the handler a route dispatches to.
type HandlerBinding struct {
	// Target is the handler target name, resolved through the target
	// registry at dispatch time.
	Target string `yaml:"target"`

	// EntryPoint selects the entry point on the target.
	EntryPoint string `yaml:"entryPoint"`
}

// RouteMatch is one matching condition for a route.
type RouteMatch struct {
	URI         *URIMatch         `yaml:"uri,omitempty"`
	Methods     []string          `yaml:"methods,omitempty"`
	Headers     []HeaderMatch     `yaml:"headers,omitempty"`
	QueryParams []QueryParamMatch `yaml:"queryParams,omitempty"`
}

// IsEmpty reports whether the condition constrains nothing.
func (rm *RouteMatch) IsEmpty() bool {
	return (rm.URI == nil || rm.URI.IsEmpty()) &&
		len(rm.Methods) == 0 &&
		len(rm.Headers) == 0 &&
		len(rm.QueryParams) == 0
}

// URIMatch matches the request path. Exactly one field should be set;
// Exact and Prefix may contain "{param}" segments.
type URIMatch struct {
	Exact  string `yaml:"exact,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
	Regex  string `yaml:"regex,omitempty"`
}

// IsEmpty reports whether no path constraint is set.
func (u *URIMatch) IsEmpty() bool {
	return u.Exact == "" && u.Prefix == "" && u.Regex == ""
}

// HeaderMatch matches one request header.
type HeaderMatch struct {
	Name   string `yaml:"name"`
	Exact  string `yaml:"exact,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
	Regex  string `yaml:"regex,omitempty"`

	// Present, when set, only checks header presence or absence.
	Present *bool `yaml:"present,omitempty"`
}

// QueryParamMatch matches one query parameter.
type QueryParamMatch struct {
	Name  string `yaml:"name"`
	Exact string `yaml:"exact,omitempty"`
	Regex string `yaml:"regex,omitempty"`

	// Present, when set, only checks parameter presence or absence.
	Present *bool `yaml:"present,omitempty"`
}

// CORSConfig is the per-route cross-origin policy configuration.
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins,omitempty"`
	AllowMethods     []string `yaml:"allowMethods,omitempty"`
	AllowHeaders     []string `yaml:"allowHeaders,omitempty"`
	ExposeHeaders    []string `yaml:"exposeHeaders,omitempty"`
	AllowCredentials bool     `yaml:"allowCredentials,omitempty"`
	MaxAge           int      `yaml:"maxAge,omitempty"`
}

// Validate checks the route for errors.
func (r *Route) Validate() error {
	if r.Name == "" {
		return util.NewConfigError("routes.name", "must not be empty")
	}
	if r.Handler.Target == "" {
		return util.NewConfigError(fmt.Sprintf("routes[%s].handler.target", r.Name), "must not be empty")
	}
	if r.Handler.EntryPoint == "" {
		return util.NewConfigError(fmt.Sprintf("routes[%s].handler.entryPoint", r.Name), "must not be empty")
	}

	for i := range r.Match {
		match := &r.Match[i]
		if match.IsEmpty() {
			return util.NewConfigError(fmt.Sprintf("routes[%s].match[%d]", r.Name, i), "condition constrains nothing")
		}
		if err := match.validate(r.Name, i); err != nil {
			return err
		}
	}

	return nil
}

func (rm *RouteMatch) validate(route string, idx int) error {
	if rm.URI != nil {
		set := 0
		for _, v := range []string{rm.URI.Exact, rm.URI.Prefix, rm.URI.Regex} {
			if v != "" {
				set++
			}
		}
		if set > 1 {
			return util.NewConfigError(
				fmt.Sprintf("routes[%s].match[%d].uri", route, idx),
				"exact, prefix and regex are mutually exclusive")
		}
	}

	for _, h := range rm.Headers {
		if h.Name == "" {
			return util.NewConfigError(
				fmt.Sprintf("routes[%s].match[%d].headers", route, idx),
				"header name must not be empty")
		}
	}
	for _, q := range rm.QueryParams {
		if q.Name == "" {
			return util.NewConfigError(
				fmt.Sprintf("routes[%s].match[%d].queryParams", route, idx),
				"query parameter name must not be empty")
		}
	}

	return nil
}
