package dispatch

import (
	"sync"

	"github.com/gatewaykit/httpdispatch/internal/cors"
	"github.com/gatewaykit/httpdispatch/internal/observability"
	"github.com/gatewaykit/httpdispatch/internal/util"
)

// registration is the immutable record kept per registered mapping.
type registration struct {
	mapping     Mapping
	handler     *HandlerRef
	directPaths []string
	name        string
}

// Registry maintains all mappings to handler references and the derived
// lookup indices, providing concurrent access.
//
// The primary registration map and the direct-path index share one
// read-write lock. The name and CORS indices live on sync.Map so reads
// stay lock-free and never contend with registration.
type Registry struct {
	strategy     Strategy
	naming       NamingStrategy
	corsProvider CorsPolicyProvider
	logger       observability.Logger

	mu            sync.RWMutex
	registrations map[string]*registration
	pathLookup    map[string][]Mapping

	nameLookup sync.Map // string -> []*HandlerRef
	corsLookup sync.Map // *HandlerRef (canonical) -> *cors.Policy
}

// RegistryOption is a functional option for configuring the registry.
type RegistryOption func(*Registry)

// WithNamingStrategy sets the naming strategy used to index handlers by name.
func WithNamingStrategy(naming NamingStrategy) RegistryOption {
	return func(rg *Registry) {
		rg.naming = naming
	}
}

// WithCorsPolicyProvider sets the collaborator that derives per-handler
// CORS policy at registration time.
func WithCorsPolicyProvider(provider CorsPolicyProvider) RegistryOption {
	return func(rg *Registry) {
		rg.corsProvider = provider
	}
}

// WithRegistryLogger sets the logger for the registry.
func WithRegistryLogger(logger observability.Logger) RegistryOption {
	return func(rg *Registry) {
		rg.logger = logger
	}
}

// NewRegistry creates a new registry.
func NewRegistry(strategy Strategy, opts ...RegistryOption) *Registry {
	rg := &Registry{
		strategy:      strategy,
		logger:        observability.NopLogger(),
		registrations: make(map[string]*registration),
		pathLookup:    make(map[string][]Mapping),
	}

	for _, opt := range opts {
		opt(rg)
	}

	return rg
}

// Register records a mapping to handler binding and all derived index
// entries in one atomic critical section. Registering an equal mapping
// with a different handler fails; re-registering the identical binding is
// a no-op.
func (rg *Registry) Register(m Mapping, h *HandlerRef) error {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	key := m.Key()
	if existing, ok := rg.registrations[key]; ok {
		if existing.handler.Equal(h) {
			return nil
		}
		return util.NewAmbiguousMappingError(m.String(), existing.handler.String(), h.String())
	}

	directPaths := rg.directPaths(m)
	for _, path := range directPaths {
		rg.pathLookup[path] = append(rg.pathLookup[path], m)
	}

	var name string
	if rg.naming != nil {
		name = rg.naming.Name(h, m)
		rg.addHandlerName(name, h)
	}

	if rg.corsProvider != nil {
		if policy := rg.corsProvider.PolicyFor(h, m); policy != nil {
			rg.corsLookup.Store(h.canonical(), policy)
		}
	}

	rg.registrations[key] = &registration{
		mapping:     m,
		handler:     h,
		directPaths: directPaths,
		name:        name,
	}
	getDispatchMetrics().mappings.Set(float64(len(rg.registrations)))

	rg.logger.Info("mapped handler",
		observability.String("mapping", m.String()),
		observability.String("handler", h.String()),
	)
	return nil
}

// Unregister removes a registration and all derived index entries.
// Unknown mappings are ignored.
func (rg *Registry) Unregister(m Mapping) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	reg, ok := rg.registrations[m.Key()]
	if !ok {
		return
	}
	delete(rg.registrations, m.Key())

	for _, path := range reg.directPaths {
		mappings := rg.pathLookup[path]
		filtered := mappings[:0]
		for _, candidate := range mappings {
			if candidate.Key() != reg.mapping.Key() {
				filtered = append(filtered, candidate)
			}
		}
		if len(filtered) == 0 {
			delete(rg.pathLookup, path)
		} else {
			rg.pathLookup[path] = filtered
		}
	}

	rg.removeHandlerName(reg)
	rg.corsLookup.Delete(reg.handler.canonical())
	getDispatchMetrics().mappings.Set(float64(len(rg.registrations)))
}

// directPaths filters the mapping's paths down to non-pattern entries.
func (rg *Registry) directPaths(m Mapping) []string {
	var paths []string
	for _, path := range m.Paths() {
		if !rg.strategy.IsPattern(path) {
			paths = append(paths, path)
		}
	}
	return paths
}

// addHandlerName appends the handler to the name index, deduplicated by
// handler equality. A name shared by several handlers is legal but logged.
func (rg *Registry) addHandlerName(name string, h *HandlerRef) {
	var oldList []*HandlerRef
	if v, ok := rg.nameLookup.Load(name); ok {
		oldList = v.([]*HandlerRef)
	}

	for _, current := range oldList {
		if current.Equal(h) {
			return
		}
	}

	newList := make([]*HandlerRef, 0, len(oldList)+1)
	newList = append(newList, oldList...)
	newList = append(newList, h)
	rg.nameLookup.Store(name, newList)

	if len(newList) > 1 {
		rg.logger.Warn("handler name clash, consider assigning explicit names",
			observability.String("name", name),
			observability.Int("handlers", len(newList)),
		)
	}
}

// removeHandlerName drops the registration's handler from the name index,
// removing the name entirely when its last entry goes away.
func (rg *Registry) removeHandlerName(reg *registration) {
	if reg.name == "" {
		return
	}
	v, ok := rg.nameLookup.Load(reg.name)
	if !ok {
		return
	}
	oldList := v.([]*HandlerRef)
	if len(oldList) <= 1 {
		rg.nameLookup.Delete(reg.name)
		return
	}
	newList := make([]*HandlerRef, 0, len(oldList)-1)
	for _, current := range oldList {
		if !current.Equal(reg.handler) {
			newList = append(newList, current)
		}
	}
	rg.nameLookup.Store(reg.name, newList)
}

// Snapshot returns an eager copy of the mapping to handler bindings.
func (rg *Registry) Snapshot() map[Mapping]*HandlerRef {
	rg.mu.RLock()
	defer rg.mu.RUnlock()

	out := make(map[Mapping]*HandlerRef, len(rg.registrations))
	for _, reg := range rg.registrations {
		out[reg.mapping] = reg.handler
	}
	return out
}

// MappingsByPath returns the direct-path candidates for a literal path.
func (rg *Registry) MappingsByPath(path string) []Mapping {
	rg.mu.RLock()
	defer rg.mu.RUnlock()

	mappings := rg.pathLookup[path]
	if len(mappings) == 0 {
		return nil
	}
	out := make([]Mapping, len(mappings))
	copy(out, mappings)
	return out
}

// HandlersByName returns the handlers registered under a derived name.
// Safe for concurrent use without the registry lock.
func (rg *Registry) HandlersByName(name string) []*HandlerRef {
	if v, ok := rg.nameLookup.Load(name); ok {
		return v.([]*HandlerRef)
	}
	return nil
}

// CorsPolicy returns the policy registered for the handler, resolving
// through to the canonical registered reference. Safe for concurrent use
// without the registry lock.
func (rg *Registry) CorsPolicy(h *HandlerRef) *cors.Policy {
	if h == nil {
		return nil
	}
	if v, ok := rg.corsLookup.Load(h.canonical()); ok {
		return v.(*cors.Policy)
	}
	return nil
}

// Len returns the number of registrations.
func (rg *Registry) Len() int {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	return len(rg.registrations)
}
