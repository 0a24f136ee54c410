package route

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewaykit/httpdispatch/internal/config"
)

func TestExactMatcher(t *testing.T) {
	t.Parallel()

	m := NewExactMatcher("/api/users")

	tests := []struct {
		path    string
		matched bool
	}{
		{"/api/users", true},
		{"/api/users/", false},
		{"/api/users/123", false},
		{"/api", false},
	}

	for _, tt := range tests {
		matched, params := m.Match(tt.path)
		assert.Equal(t, tt.matched, matched, "path %s", tt.path)
		assert.Nil(t, params)
	}

	assert.Equal(t, "exact", m.Type())
	assert.Equal(t, "/api/users", m.Pattern())
}

func TestPrefixMatcher(t *testing.T) {
	t.Parallel()

	m := NewPrefixMatcher("/api")

	tests := []struct {
		path    string
		matched bool
	}{
		{"/api", true},
		{"/api/users", true},
		{"/api/users/123", true},
		{"/apiv2", false},
		{"/other", false},
	}

	for _, tt := range tests {
		matched, _ := m.Match(tt.path)
		assert.Equal(t, tt.matched, matched, "path %s", tt.path)
	}
}

func TestParameterMatcher(t *testing.T) {
	t.Parallel()

	m, err := NewParameterMatcher("/users/{id}/orders/{orderId}")
	require.NoError(t, err)

	matched, params := m.Match("/users/42/orders/7")
	require.True(t, matched)
	assert.Equal(t, map[string]string{"id": "42", "orderId": "7"}, params)

	matched, _ = m.Match("/users/42")
	assert.False(t, matched)

	matched, _ = m.Match("/users/42/orders/7/items")
	assert.False(t, matched)

	// Parameters never span segments.
	matched, _ = m.Match("/users/a/b/orders/7")
	assert.False(t, matched)
}

func TestRegexMatcher(t *testing.T) {
	t.Parallel()

	m, err := NewRegexMatcher(`^/files/(?P<name>[a-z]+)\.(?P<ext>[a-z]{2,4})$`)
	require.NoError(t, err)

	matched, params := m.Match("/files/report.pdf")
	require.True(t, matched)
	assert.Equal(t, map[string]string{"name": "report", "ext": "pdf"}, params)

	matched, _ = m.Match("/files/report")
	assert.False(t, matched)
}

func TestRegexMatcher_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := NewRegexMatcher("([unclosed")
	require.Error(t, err)
}

func TestRegexMatcher_CacheReuse(t *testing.T) {
	t.Parallel()

	a, err := NewRegexMatcher(`^/cached/[0-9]+$`)
	require.NoError(t, err)
	b, err := NewRegexMatcher(`^/cached/[0-9]+$`)
	require.NoError(t, err)

	// Both matchers share the cached compiled regex.
	assert.Same(t, a.regex, b.regex)
}

func TestWildcardMatcher(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		path    string
		matched bool
	}{
		{"/static/*", "/static/app.js", true},
		{"/static/*", "/static/css/app.css", false},
		{"/static/**", "/static/css/app.css", true},
		{"/file?.txt", "/file1.txt", true},
		{"/file?.txt", "/file12.txt", false},
	}

	for _, tt := range tests {
		m, err := NewWildcardMatcher(tt.pattern)
		require.NoError(t, err)
		matched, _ := m.Match(tt.path)
		assert.Equal(t, tt.matched, matched, "pattern %s path %s", tt.pattern, tt.path)
	}
}

func TestMethodMatcher(t *testing.T) {
	t.Parallel()

	m := NewMethodMatcher([]string{"get", "POST"})

	assert.True(t, m.Match("GET"))
	assert.True(t, m.Match("get"))
	assert.True(t, m.Match("POST"))
	// HEAD rides along with GET.
	assert.True(t, m.Match("HEAD"))
	assert.False(t, m.Match("DELETE"))

	wildcard := NewMethodMatcher([]string{"*"})
	assert.True(t, wildcard.Match("PATCH"))
}

func TestHeaderMatcher(t *testing.T) {
	t.Parallel()

	boolPtr := func(v bool) *bool { return &v }

	tests := []struct {
		name    string
		cfg     config.HeaderMatch
		headers http.Header
		matched bool
	}{
		{
			name:    "exact match",
			cfg:     config.HeaderMatch{Name: "X-Tenant", Exact: "acme"},
			headers: http.Header{"X-Tenant": []string{"acme"}},
			matched: true,
		},
		{
			name:    "exact mismatch",
			cfg:     config.HeaderMatch{Name: "X-Tenant", Exact: "acme"},
			headers: http.Header{"X-Tenant": []string{"other"}},
			matched: false,
		},
		{
			name:    "prefix match",
			cfg:     config.HeaderMatch{Name: "Authorization", Prefix: "Bearer "},
			headers: http.Header{"Authorization": []string{"Bearer abc"}},
			matched: true,
		},
		{
			name:    "regex match",
			cfg:     config.HeaderMatch{Name: "X-Version", Regex: `^v[0-9]+$`},
			headers: http.Header{"X-Version": []string{"v2"}},
			matched: true,
		},
		{
			name:    "required header absent",
			cfg:     config.HeaderMatch{Name: "X-Tenant", Exact: "acme"},
			headers: http.Header{},
			matched: false,
		},
		{
			name:    "presence check",
			cfg:     config.HeaderMatch{Name: "X-Debug", Present: boolPtr(true)},
			headers: http.Header{"X-Debug": []string{"1"}},
			matched: true,
		},
		{
			name:    "absence check",
			cfg:     config.HeaderMatch{Name: "X-Debug", Present: boolPtr(false)},
			headers: http.Header{},
			matched: true,
		},
		{
			name:    "absence check fails when present",
			cfg:     config.HeaderMatch{Name: "X-Debug", Present: boolPtr(false)},
			headers: http.Header{"X-Debug": []string{"1"}},
			matched: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := NewHeaderMatcher(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.matched, m.Match(tt.headers))
		})
	}
}

func TestQueryParamMatcher(t *testing.T) {
	t.Parallel()

	m, err := NewQueryParamMatcher(config.QueryParamMatch{Name: "version", Exact: "2"})
	require.NoError(t, err)

	assert.True(t, m.Match(url.Values{"version": []string{"2"}}))
	assert.False(t, m.Match(url.Values{"version": []string{"1"}}))
	assert.False(t, m.Match(url.Values{}))

	regex, err := NewQueryParamMatcher(config.QueryParamMatch{Name: "page", Regex: `^[0-9]+$`})
	require.NoError(t, err)
	assert.True(t, regex.Match(url.Values{"page": []string{"10"}}))
	assert.False(t, regex.Match(url.Values{"page": []string{"x"}}))
}
