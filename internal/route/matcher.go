package route

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/gatewaykit/httpdispatch/internal/config"
)

// PathMatcher is the interface for path matching.
type PathMatcher interface {
	Match(path string) (bool, map[string]string)
	Type() string
	Pattern() string
}

// ExactMatcher matches exact paths.
type ExactMatcher struct {
	path string
}

// NewExactMatcher creates a new exact path matcher.
func NewExactMatcher(path string) *ExactMatcher {
	return &ExactMatcher{path: path}
}

// Match checks if the path matches exactly.
func (m *ExactMatcher) Match(path string) (matched bool, params map[string]string) {
	return path == m.path, nil
}

// Type returns the matcher type.
func (m *ExactMatcher) Type() string {
	return "exact"
}

// Pattern returns the pattern.
func (m *ExactMatcher) Pattern() string {
	return m.path
}

// PrefixMatcher matches path prefixes at segment boundaries.
type PrefixMatcher struct {
	prefix string
}

// NewPrefixMatcher creates a new prefix path matcher.
func NewPrefixMatcher(prefix string) *PrefixMatcher {
	return &PrefixMatcher{prefix: prefix}
}

// Match checks if the path starts with the prefix.
func (m *PrefixMatcher) Match(path string) (matched bool, params map[string]string) {
	if strings.HasPrefix(path, m.prefix) {
		if len(path) == len(m.prefix) {
			return true, nil
		}
		if strings.HasSuffix(m.prefix, "/") || path[len(m.prefix)] == '/' {
			return true, nil
		}
	}
	return false, nil
}

// Type returns the matcher type.
func (m *PrefixMatcher) Type() string {
	return "prefix"
}

// Pattern returns the pattern.
func (m *PrefixMatcher) Pattern() string {
	return m.prefix
}

// RegexMatcher matches paths using regular expressions.
type RegexMatcher struct {
	pattern string
	regex   *regexp.Regexp
}

// regexCacheMaxSize is the maximum number of entries in the regex cache.
const regexCacheMaxSize = 1000

// regexCacheEntry holds a compiled regex and its access order for LRU
// eviction.
type regexCacheEntry struct {
	regex       *regexp.Regexp
	accessOrder int64
}

var (
	regexCache         = make(map[string]*regexCacheEntry)
	regexCacheMu       sync.RWMutex
	regexAccessCounter int64
)

// NewRegexMatcher creates a new regex path matcher. Compiled patterns are
// held in a bounded LRU cache shared across routes.
func NewRegexMatcher(pattern string) (*RegexMatcher, error) {
	metrics := getRegexCacheMetrics()

	regexCacheMu.Lock()
	if entry, ok := regexCache[pattern]; ok {
		regexAccessCounter++
		entry.accessOrder = regexAccessCounter
		regexCacheMu.Unlock()

		metrics.cacheHits.Inc()

		return &RegexMatcher{pattern: pattern, regex: entry.regex}, nil
	}
	regexCacheMu.Unlock()

	metrics.cacheMisses.Inc()

	// Compile outside the lock, it is the expensive part.
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	regexCacheMu.Lock()
	// Another goroutine may have compiled the same pattern meanwhile.
	if existing, ok := regexCache[pattern]; ok {
		regexAccessCounter++
		existing.accessOrder = regexAccessCounter
		regexCacheMu.Unlock()
		return &RegexMatcher{pattern: pattern, regex: existing.regex}, nil
	}

	if len(regexCache) >= regexCacheMaxSize {
		evictLRURegexEntry()
		metrics.cacheEvictions.Inc()
	}

	regexAccessCounter++
	regexCache[pattern] = &regexCacheEntry{
		regex:       regex,
		accessOrder: regexAccessCounter,
	}
	metrics.cacheSize.Set(float64(len(regexCache)))
	regexCacheMu.Unlock()

	return &RegexMatcher{pattern: pattern, regex: regex}, nil
}

// evictLRURegexEntry removes the least recently used cache entry.
// Must be called with regexCacheMu held.
func evictLRURegexEntry() {
	var lruKey string
	var lruOrder int64 = -1

	for key, entry := range regexCache {
		if lruOrder == -1 || entry.accessOrder < lruOrder {
			lruOrder = entry.accessOrder
			lruKey = key
		}
	}

	if lruKey != "" {
		delete(regexCache, lruKey)
	}
}

// Match checks if the path matches the regex and extracts named groups.
func (m *RegexMatcher) Match(path string) (matched bool, params map[string]string) {
	matches := m.regex.FindStringSubmatch(path)
	if matches == nil {
		return false, nil
	}

	params = make(map[string]string)
	for i, name := range m.regex.SubexpNames() {
		if i > 0 && name != "" && i < len(matches) {
			params[name] = matches[i]
		}
	}

	return true, params
}

// Type returns the matcher type.
func (m *RegexMatcher) Type() string {
	return "regex"
}

// Pattern returns the pattern.
func (m *RegexMatcher) Pattern() string {
	return m.pattern
}

// ParameterMatcher matches paths with parameters like /users/{id}.
type ParameterMatcher struct {
	pattern string
	regex   *regexp.Regexp
}

// NewParameterMatcher creates a new parameter path matcher.
func NewParameterMatcher(pattern string) (*ParameterMatcher, error) {
	var regexPattern strings.Builder
	regexPattern.WriteString("^")

	for _, part := range strings.Split(strings.Trim(pattern, "/"), "/") {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			regexPattern.WriteString("/(?P<")
			regexPattern.WriteString(part[1 : len(part)-1])
			regexPattern.WriteString(">[^/]+)")
		} else {
			regexPattern.WriteString("/")
			regexPattern.WriteString(regexp.QuoteMeta(part))
		}
	}
	regexPattern.WriteString("$")

	regex, err := regexp.Compile(regexPattern.String())
	if err != nil {
		return nil, err
	}

	return &ParameterMatcher{pattern: pattern, regex: regex}, nil
}

// Match checks if the path matches the pattern and extracts parameters.
func (m *ParameterMatcher) Match(path string) (matched bool, params map[string]string) {
	matches := m.regex.FindStringSubmatch(path)
	if matches == nil {
		return false, nil
	}

	params = make(map[string]string)
	for i, name := range m.regex.SubexpNames() {
		if i > 0 && name != "" && i < len(matches) {
			params[name] = matches[i]
		}
	}

	return true, params
}

// Type returns the matcher type.
func (m *ParameterMatcher) Type() string {
	return "parameter"
}

// Pattern returns the pattern.
func (m *ParameterMatcher) Pattern() string {
	return m.pattern
}

// WildcardMatcher matches paths with wildcards (* and **).
type WildcardMatcher struct {
	pattern string
	regex   *regexp.Regexp
}

// NewWildcardMatcher creates a new wildcard path matcher.
func NewWildcardMatcher(pattern string) (*WildcardMatcher, error) {
	regex, err := regexp.Compile(wildcardToRegex(pattern))
	if err != nil {
		return nil, err
	}

	return &WildcardMatcher{pattern: pattern, regex: regex}, nil
}

// wildcardToRegex converts a wildcard pattern to a regex pattern.
// "*" matches within a segment, "**" matches across segments and "?"
// matches a single character.
func wildcardToRegex(pattern string) string {
	var result strings.Builder
	result.WriteString("^")

	i := 0
	for i < len(pattern) {
		switch {
		case i+1 < len(pattern) && pattern[i:i+2] == "**":
			result.WriteString(".*")
			i += 2
		case pattern[i] == '*':
			result.WriteString("[^/]*")
			i++
		case pattern[i] == '?':
			result.WriteString("[^/]")
			i++
		default:
			result.WriteString(regexp.QuoteMeta(string(pattern[i])))
			i++
		}
	}

	result.WriteString("$")
	return result.String()
}

// Match checks if the path matches the wildcard pattern.
func (m *WildcardMatcher) Match(path string) (matched bool, params map[string]string) {
	return m.regex.MatchString(path), nil
}

// Type returns the matcher type.
func (m *WildcardMatcher) Type() string {
	return "wildcard"
}

// Pattern returns the pattern.
func (m *WildcardMatcher) Pattern() string {
	return m.pattern
}

// HasPathParameters reports whether the pattern contains "{param}" segments.
func HasPathParameters(pattern string) bool {
	return strings.Contains(pattern, "{") && strings.Contains(pattern, "}")
}

// HasWildcards reports whether the pattern contains wildcard characters.
func HasWildcards(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}

// MethodMatcher matches HTTP methods.
type MethodMatcher struct {
	methods map[string]bool
}

// NewMethodMatcher creates a new method matcher.
func NewMethodMatcher(methods []string) *MethodMatcher {
	m := &MethodMatcher{
		methods: make(map[string]bool),
	}

	for _, method := range methods {
		m.methods[strings.ToUpper(method)] = true
	}

	return m
}

// Match checks if the method matches.
func (m *MethodMatcher) Match(method string) bool {
	method = strings.ToUpper(method)

	// Wildcard matches all methods
	if m.methods["*"] {
		return true
	}

	// HEAD automatically matches GET
	if method == "HEAD" && m.methods["GET"] {
		return true
	}

	return m.methods[method]
}

// Methods returns the configured method set.
func (m *MethodMatcher) Methods() []string {
	out := make([]string, 0, len(m.methods))
	for method := range m.methods {
		out = append(out, method)
	}
	return out
}

// HeaderMatcher matches one HTTP header.
type HeaderMatcher struct {
	cfg   config.HeaderMatch
	regex *regexp.Regexp
}

// NewHeaderMatcher creates a new header matcher.
func NewHeaderMatcher(cfg config.HeaderMatch) (*HeaderMatcher, error) {
	m := &HeaderMatcher{cfg: cfg}

	if cfg.Regex != "" {
		regex, err := regexp.Compile(cfg.Regex)
		if err != nil {
			return nil, err
		}
		m.regex = regex
	}

	return m, nil
}

// Match checks if the headers match.
func (m *HeaderMatcher) Match(headers http.Header) bool {
	// Header names are case-insensitive
	value := headers.Get(m.cfg.Name)
	hasHeader := value != ""

	if m.cfg.Present != nil {
		return *m.cfg.Present == hasHeader
	}

	if !hasHeader {
		return false
	}

	if m.cfg.Exact != "" {
		return value == m.cfg.Exact
	}
	if m.cfg.Prefix != "" {
		return strings.HasPrefix(value, m.cfg.Prefix)
	}
	if m.regex != nil {
		return m.regex.MatchString(value)
	}

	return true
}

// QueryParamMatcher matches one query parameter.
type QueryParamMatcher struct {
	cfg   config.QueryParamMatch
	regex *regexp.Regexp
}

// NewQueryParamMatcher creates a new query parameter matcher.
func NewQueryParamMatcher(cfg config.QueryParamMatch) (*QueryParamMatcher, error) {
	m := &QueryParamMatcher{cfg: cfg}

	if cfg.Regex != "" {
		regex, err := regexp.Compile(cfg.Regex)
		if err != nil {
			return nil, err
		}
		m.regex = regex
	}

	return m, nil
}

// Match checks if the query parameters match.
func (m *QueryParamMatcher) Match(query url.Values) bool {
	value := query.Get(m.cfg.Name)
	hasParam := query.Has(m.cfg.Name)

	if m.cfg.Present != nil {
		return *m.cfg.Present == hasParam
	}

	if !hasParam {
		return false
	}

	if m.cfg.Exact != "" {
		return value == m.cfg.Exact
	}
	if m.regex != nil {
		return m.regex.MatchString(value)
	}

	return true
}
