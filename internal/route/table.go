package route

import (
	"fmt"
	"sync"

	"github.com/gatewaykit/httpdispatch/internal/config"
	"github.com/gatewaykit/httpdispatch/internal/dispatch"
	"github.com/gatewaykit/httpdispatch/internal/observability"
)

// HandlerProvider supplies the handler function for a configured binding.
type HandlerProvider interface {
	Handler(target, entryPoint string) (dispatch.HandlerFunc, error)
}

// HandlerProviderFunc adapts a function to the HandlerProvider interface.
type HandlerProviderFunc func(target, entryPoint string) (dispatch.HandlerFunc, error)

// Handler implements HandlerProvider.
func (f HandlerProviderFunc) Handler(target, entryPoint string) (dispatch.HandlerFunc, error) {
	return f(target, entryPoint)
}

// Table keeps the dispatch registry in sync with the configured routes.
// Apply diffs the desired routes against the active set, so a reload only
// touches registrations that actually changed.
type Table struct {
	mapping  *dispatch.HandlerMapping
	handlers HandlerProvider
	logger   observability.Logger

	mu     sync.Mutex
	active map[string]appliedRoute
}

// appliedRoute is a registration the table currently owns.
type appliedRoute struct {
	mapping *Mapping
	ref     *dispatch.HandlerRef
}

// TableOption is a functional option for configuring the table.
type TableOption func(*Table)

// WithTableLogger sets the logger for the table.
func WithTableLogger(logger observability.Logger) TableOption {
	return func(t *Table) {
		t.logger = logger
	}
}

// NewTable creates a route table bound to the handler mapping.
func NewTable(mapping *dispatch.HandlerMapping, handlers HandlerProvider, opts ...TableOption) *Table {
	t := &Table{
		mapping:  mapping,
		handlers: handlers,
		logger:   observability.NopLogger(),
		active:   make(map[string]appliedRoute),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Apply compiles the routes and reconciles them against the active set:
// removed routes are unregistered, new and changed routes registered.
// Compilation and handler resolution both happen before any mutation, so
// a route that fails there never touches the registry. On a registration
// failure the already-applied part stays in effect and the error is
// returned.
func (t *Table) Apply(routes []config.Route) error {
	compiled := make(map[string]appliedRoute, len(routes))
	for i := range routes {
		m, err := Compile(routes[i])
		if err != nil {
			return err
		}

		binding := m.Config().Handler
		fn, err := t.handlers.Handler(binding.Target, binding.EntryPoint)
		if err != nil {
			return fmt.Errorf("route %s: %w", m.Name(), err)
		}

		compiled[m.Name()] = appliedRoute{
			mapping: m,
			ref:     dispatch.NewNamedHandlerRef(binding.Target, binding.EntryPoint, fn),
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for name, current := range t.active {
		if _, keep := compiled[name]; !keep {
			t.mapping.UnregisterMapping(current.mapping)
			delete(t.active, name)
			t.logger.Info("route removed", observability.String("route", name))
		}
	}

	for name, next := range compiled {
		current, replacing := t.active[name]
		if replacing {
			if routesEqual(current.mapping.Config(), next.mapping.Config()) {
				continue
			}
			t.mapping.UnregisterMapping(current.mapping)
		}

		if err := t.mapping.RegisterMapping(next.mapping, next.ref); err != nil {
			if replacing {
				// Put the previous registration back so the route keeps
				// serving across the failed swap.
				if restoreErr := t.mapping.RegisterMapping(current.mapping, current.ref); restoreErr != nil {
					delete(t.active, name)
					t.logger.Error("failed to restore route after registration error",
						observability.String("route", name),
						observability.Error(restoreErr),
					)
				}
			}
			return fmt.Errorf("route %s: %w", name, err)
		}

		t.active[name] = next
		t.logger.Info("route applied",
			observability.String("route", name),
			observability.String("handler", next.ref.String()),
			observability.Int("priority", next.mapping.Priority()),
		)
	}

	return nil
}

// Routes returns the names of the active routes.
func (t *Table) Routes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.active))
	for name := range t.active {
		names = append(names, name)
	}
	return names
}

// Len returns the number of active routes.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// routesEqual compares two route configurations structurally.
func routesEqual(a, b config.Route) bool {
	if a.Name != b.Name || a.Condition != b.Condition || a.Handler != b.Handler {
		return false
	}
	if len(a.Match) != len(b.Match) {
		return false
	}
	for i := range a.Match {
		if !matchEqual(&a.Match[i], &b.Match[i]) {
			return false
		}
	}
	return corsEqual(a.CORS, b.CORS)
}

func matchEqual(a, b *config.RouteMatch) bool {
	if (a.URI == nil) != (b.URI == nil) {
		return false
	}
	if a.URI != nil && *a.URI != *b.URI {
		return false
	}
	if !stringSlicesEqual(a.Methods, b.Methods) {
		return false
	}
	if len(a.Headers) != len(b.Headers) || len(a.QueryParams) != len(b.QueryParams) {
		return false
	}
	for i := range a.Headers {
		if !headerMatchEqual(&a.Headers[i], &b.Headers[i]) {
			return false
		}
	}
	for i := range a.QueryParams {
		if !queryMatchEqual(&a.QueryParams[i], &b.QueryParams[i]) {
			return false
		}
	}
	return true
}

func headerMatchEqual(a, b *config.HeaderMatch) bool {
	if a.Name != b.Name || a.Exact != b.Exact || a.Prefix != b.Prefix || a.Regex != b.Regex {
		return false
	}
	return boolPtrEqual(a.Present, b.Present)
}

func queryMatchEqual(a, b *config.QueryParamMatch) bool {
	if a.Name != b.Name || a.Exact != b.Exact || a.Regex != b.Regex {
		return false
	}
	return boolPtrEqual(a.Present, b.Present)
}

func corsEqual(a, b *config.CORSConfig) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return stringSlicesEqual(a.AllowOrigins, b.AllowOrigins) &&
		stringSlicesEqual(a.AllowMethods, b.AllowMethods) &&
		stringSlicesEqual(a.AllowHeaders, b.AllowHeaders) &&
		stringSlicesEqual(a.ExposeHeaders, b.ExposeHeaders) &&
		a.AllowCredentials == b.AllowCredentials &&
		a.MaxAge == b.MaxAge
}

func boolPtrEqual(a, b *bool) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
