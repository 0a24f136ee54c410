package cors

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_IsOriginAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origins []string
		origin  string
		allowed bool
	}{
		{
			name:    "wildcard allows everything",
			origins: []string{"*"},
			origin:  "http://example.com",
			allowed: true,
		},
		{
			name:    "exact match",
			origins: []string{"http://example.com"},
			origin:  "http://example.com",
			allowed: true,
		},
		{
			name:    "exact mismatch",
			origins: []string{"http://allowed.com"},
			origin:  "http://other.com",
			allowed: false,
		},
		{
			name:    "wildcard subdomain matches",
			origins: []string{"*.example.com"},
			origin:  "https://api.example.com",
			allowed: true,
		},
		{
			name:    "wildcard subdomain with port",
			origins: []string{"*.example.com"},
			origin:  "http://api.example.com:8080",
			allowed: true,
		},
		{
			name:    "wildcard subdomain requires subdomain",
			origins: []string{"*.example.com"},
			origin:  "https://example.com",
			allowed: false,
		},
		{
			name:    "empty origin never allowed",
			origins: []string{"*"},
			origin:  "",
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := NewPolicy(tt.origins, nil, nil)
			assert.Equal(t, tt.allowed, p.IsOriginAllowed(tt.origin))
		})
	}
}

func TestPermissive(t *testing.T) {
	t.Parallel()

	p := Permissive()
	assert.True(t, p.IsOriginAllowed("http://anything.example"))
	assert.True(t, p.AllowCredentials)
	assert.Equal(t, []string{"*"}, p.AllowMethods)
}

func TestPolicy_Combine(t *testing.T) {
	t.Parallel()

	base := NewPolicy([]string{"http://a.com"}, []string{"GET"}, nil)
	other := NewPolicy([]string{"http://b.com"}, []string{"GET", "POST"}, []string{"X-Token"})
	other.MaxAge = 600

	merged := base.Combine(other)
	assert.True(t, merged.IsOriginAllowed("http://a.com"))
	assert.True(t, merged.IsOriginAllowed("http://b.com"))
	assert.Equal(t, []string{"GET", "POST"}, merged.AllowMethods)
	assert.Equal(t, []string{"X-Token"}, merged.AllowHeaders)
	assert.Equal(t, 600, merged.MaxAge)

	// Nil handling on either side.
	assert.Equal(t, base, base.Combine(nil))
	var nilPolicy *Policy
	assert.Equal(t, other, nilPolicy.Combine(other))
}

func TestPolicy_Apply(t *testing.T) {
	t.Parallel()

	p := NewPolicy([]string{"http://example.com"}, []string{"GET", "POST"}, []string{"Content-Type"})
	p.AllowCredentials = true
	p.MaxAge = 3600

	rec := httptest.NewRecorder()
	p.Apply(rec, "http://example.com")

	assert.Equal(t, "http://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestPolicy_Apply_DisallowedOrigin(t *testing.T) {
	t.Parallel()

	p := NewPolicy([]string{"http://allowed.com"}, []string{"GET"}, nil)

	rec := httptest.NewRecorder()
	p.Apply(rec, "http://other.com")

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestIsPreflight(t *testing.T) {
	t.Parallel()

	preflight := httptest.NewRequest(http.MethodOptions, "/items", nil)
	preflight.Header.Set("Origin", "http://example.com")
	preflight.Header.Set("Access-Control-Request-Method", "POST")
	assert.True(t, IsPreflight(preflight))
	assert.True(t, IsCorsRequest(preflight))

	// OPTIONS without the request-method header is not a preflight.
	options := httptest.NewRequest(http.MethodOptions, "/items", nil)
	options.Header.Set("Origin", "http://example.com")
	assert.False(t, IsPreflight(options))

	// A plain GET with Origin is a CORS request but not a preflight.
	get := httptest.NewRequest(http.MethodGet, "/items", nil)
	get.Header.Set("Origin", "http://example.com")
	assert.False(t, IsPreflight(get))
	assert.True(t, IsCorsRequest(get))

	plain := httptest.NewRequest(http.MethodGet, "/items", nil)
	assert.False(t, IsCorsRequest(plain))
}

func TestPolicy_LiteralConstructionConcurrentUse(t *testing.T) {
	t.Parallel()

	// A policy built without NewPolicy compiles itself safely under
	// concurrent first use.
	p := &Policy{AllowOrigins: []string{"https://app.example.com", "*.example.org"}}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, p.IsOriginAllowed("https://app.example.com"))
			assert.True(t, p.IsOriginAllowed("https://api.example.org"))
			assert.False(t, p.IsOriginAllowed("https://evil.test"))
		}()
	}
	wg.Wait()
}
