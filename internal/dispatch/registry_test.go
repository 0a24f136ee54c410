package dispatch

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewaykit/httpdispatch/internal/cors"
	"github.com/gatewaykit/httpdispatch/internal/util"
)

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	rg := NewRegistry(testStrategy{})
	m := newTestMapping("GET /health", []string{http.MethodGet}, "/health")
	h := NewHandlerRef(&testController{name: "health"}, "check", okHandler("ok"))

	require.NoError(t, rg.Register(m, h))

	snapshot := rg.Snapshot()
	assert.Len(t, snapshot, 1)
	assert.Equal(t, h, snapshot[m])
	assert.Equal(t, 1, rg.Len())
}

func TestRegistry_Register_DuplicateMappingDifferentHandler(t *testing.T) {
	t.Parallel()

	rg := NewRegistry(testStrategy{})
	m := newTestMapping("GET /items", []string{http.MethodGet}, "/items")
	first := NewHandlerRef(&testController{name: "catalog"}, "list", okHandler("a"))
	second := NewHandlerRef(&testController{name: "inventory"}, "list", okHandler("b"))

	require.NoError(t, rg.Register(m, first))

	err := rg.Register(m, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrDuplicateMapping)
	assert.Contains(t, err.Error(), "testController#list")

	// The first registration is retained unchanged.
	assert.Equal(t, first, rg.Snapshot()[m])
}

func TestRegistry_Register_SameBindingIsIdempotent(t *testing.T) {
	t.Parallel()

	rg := NewRegistry(testStrategy{})
	target := &testController{name: "catalog"}
	m := newTestMapping("GET /items", []string{http.MethodGet}, "/items")
	h := NewHandlerRef(target, "list", okHandler("a"))

	require.NoError(t, rg.Register(m, h))
	require.NoError(t, rg.Register(m, NewHandlerRef(target, "list", okHandler("a"))))
	assert.Equal(t, 1, rg.Len())
}

func TestRegistry_DirectPathIndex(t *testing.T) {
	t.Parallel()

	rg := NewRegistry(testStrategy{})
	literal := newTestMapping("GET /health", []string{http.MethodGet}, "/health")
	pattern := newTestMapping("GET /users/{id}", []string{http.MethodGet}, "/users/{id}")

	require.NoError(t, rg.Register(literal, NewHandlerRef(&testController{}, "check", okHandler(nil))))
	require.NoError(t, rg.Register(pattern, NewHandlerRef(&testController{}, "get", okHandler(nil))))

	// Only the literal path lands in the fast index.
	assert.Equal(t, []Mapping{literal}, rg.MappingsByPath("/health"))
	assert.Nil(t, rg.MappingsByPath("/users/{id}"))
	assert.Nil(t, rg.MappingsByPath("/users/42"))
}

func TestRegistry_NameIndex(t *testing.T) {
	t.Parallel()

	naming := NamingStrategyFunc(func(h *HandlerRef, _ Mapping) string {
		return "TC#" + h.EntryPoint()
	})
	rg := NewRegistry(testStrategy{}, WithNamingStrategy(naming))

	target := &testController{name: "catalog"}
	h := NewHandlerRef(target, "list", okHandler(nil))
	m1 := newTestMapping("GET /items", []string{http.MethodGet}, "/items")
	m2 := newTestMapping("GET /catalog", []string{http.MethodGet}, "/catalog")

	require.NoError(t, rg.Register(m1, h))
	// Same handler under a second mapping: the name list stays deduplicated.
	require.NoError(t, rg.Register(m2, NewHandlerRef(target, "list", okHandler(nil))))

	handlers := rg.HandlersByName("TC#list")
	require.Len(t, handlers, 1)
	assert.True(t, handlers[0].Equal(h))

	// A different handler under the same name is a non-fatal clash.
	other := NewHandlerRef(&testController{name: "other"}, "list", okHandler(nil))
	m3 := newTestMapping("GET /other", []string{http.MethodGet}, "/other")
	require.NoError(t, rg.Register(m3, other))
	assert.Len(t, rg.HandlersByName("TC#list"), 2)
}

func TestRegistry_Unregister(t *testing.T) {
	t.Parallel()

	naming := NamingStrategyFunc(func(h *HandlerRef, _ Mapping) string {
		return h.String()
	})
	provider := CorsPolicyProviderFunc(func(_ *HandlerRef, _ Mapping) *cors.Policy {
		return cors.NewPolicy([]string{"*"}, nil, nil)
	})
	rg := NewRegistry(testStrategy{}, WithNamingStrategy(naming), WithCorsPolicyProvider(provider))

	m := newTestMapping("GET /health", []string{http.MethodGet}, "/health")
	h := NewHandlerRef(&testController{name: "health"}, "check", okHandler(nil))
	require.NoError(t, rg.Register(m, h))
	require.NotNil(t, rg.CorsPolicy(h))

	rg.Unregister(m)

	assert.Empty(t, rg.Snapshot())
	assert.Nil(t, rg.MappingsByPath("/health"))
	assert.Nil(t, rg.HandlersByName(h.String()))
	assert.Nil(t, rg.CorsPolicy(h))

	// Unregistering an unknown mapping is a no-op.
	rg.Unregister(newTestMapping("GET /ghost", nil, "/ghost"))
}

func TestRegistry_Unregister_KeepsSharedName(t *testing.T) {
	t.Parallel()

	naming := NamingStrategyFunc(func(_ *HandlerRef, _ Mapping) string {
		return "shared"
	})
	rg := NewRegistry(testStrategy{}, WithNamingStrategy(naming))

	m1 := newTestMapping("GET /a", []string{http.MethodGet}, "/a")
	m2 := newTestMapping("GET /b", []string{http.MethodGet}, "/b")
	h1 := NewHandlerRef(&testController{name: "a"}, "a", okHandler(nil))
	h2 := NewHandlerRef(&testController{name: "b"}, "b", okHandler(nil))

	require.NoError(t, rg.Register(m1, h1))
	require.NoError(t, rg.Register(m2, h2))
	require.Len(t, rg.HandlersByName("shared"), 2)

	rg.Unregister(m1)

	handlers := rg.HandlersByName("shared")
	require.Len(t, handlers, 1)
	assert.True(t, handlers[0].Equal(h2))

	// The name orphans only when its last entry is removed.
	rg.Unregister(m2)
	assert.Nil(t, rg.HandlersByName("shared"))
}

func TestRegistry_CorsPolicy_CanonicalLookup(t *testing.T) {
	t.Parallel()

	policy := cors.NewPolicy([]string{"http://example.com"}, nil, nil)
	provider := CorsPolicyProviderFunc(func(_ *HandlerRef, _ Mapping) *cors.Policy {
		return policy
	})
	rg := NewRegistry(testStrategy{}, WithCorsPolicyProvider(provider))

	m := newTestMapping("GET /items", []string{http.MethodGet}, "/items")
	named := NewNamedHandlerRef("catalog", "list", okHandler(nil))
	require.NoError(t, rg.Register(m, named))

	resolved, err := named.CreateWithResolvedTarget(resolverFunc(func(string) (any, error) {
		return &testController{name: "catalog"}, nil
	}))
	require.NoError(t, err)
	require.NotSame(t, named, resolved)

	// The resolved copy keys back to the canonical registered reference.
	assert.Equal(t, policy, rg.CorsPolicy(resolved))
	assert.Equal(t, policy, rg.CorsPolicy(named))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	hm := NewHandlerMapping(testStrategy{},
		WithRegistryOptions(WithNamingStrategy(NamingStrategyFunc(func(_ *HandlerRef, m Mapping) string {
			return m.Key()
		}))),
	)

	// A stable route every reader must always resolve.
	stable := newTestMapping("GET /stable", []string{http.MethodGet}, "/stable")
	require.NoError(t, hm.RegisterMapping(stable, NewHandlerRef(&testController{name: "stable"}, "get", okHandler("ok"))))

	const (
		writers    = 8
		readers    = 8
		iterations = 200
	)

	var wg sync.WaitGroup

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			key := fmt.Sprintf("GET /churn/%d", w)
			m := newTestMapping(key, []string{http.MethodGet}, fmt.Sprintf("/churn/%d", w))
			h := NewHandlerRef(&testController{name: key}, "get", okHandler("ok"))
			for i := 0; i < iterations; i++ {
				assert.NoError(t, hm.RegisterMapping(m, h))
				hm.UnregisterMapping(m)
			}
		}(w)
	}

	for rd := 0; rd < readers; rd++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				chain, _, err := hm.Resolve(httptest.NewRequest(http.MethodGet, "/stable", nil))
				assert.NoError(t, err)
				assert.NotNil(t, chain)

				_, _, _ = hm.Resolve(httptest.NewRequest(http.MethodGet, "/churn/3", nil))
				_ = hm.Registry().Snapshot()
				_ = hm.HandlersByName("GET /churn/3")
			}
		}()
	}

	wg.Wait()

	// The stable registration survives the churn untouched.
	assert.Len(t, hm.HandlersByName("GET /stable"), 1)
}
