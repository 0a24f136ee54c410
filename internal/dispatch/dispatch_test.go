package dispatch

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// testMapping is a minimal mapping for exercising the generic machinery.
// It matches on method plus either literal paths or single-level
// "{param}" patterns.
type testMapping struct {
	key      string
	paths    []string
	methods  []string
	priority int

	// Refined-match state, set on the copies returned by Match.
	matchedPattern string
	params         map[string]string
}

func newTestMapping(key string, methods []string, paths ...string) *testMapping {
	return &testMapping{key: key, paths: paths, methods: methods}
}

func (m *testMapping) Key() string     { return m.key }
func (m *testMapping) Paths() []string { return m.paths }
func (m *testMapping) String() string  { return m.key }

func (m *testMapping) Match(r *http.Request) (Mapping, bool) {
	if len(m.methods) > 0 {
		ok := false
		for _, method := range m.methods {
			if method == r.Method {
				ok = true
				break
			}
		}
		if !ok && !(r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "") {
			return nil, false
		}
	}

	for _, pattern := range m.paths {
		if params, ok := matchTestPath(pattern, r.URL.Path); ok {
			refined := *m
			refined.matchedPattern = pattern
			refined.params = params
			refined.priority = 10
			if !strings.Contains(pattern, "{") {
				refined.priority = 100
			}
			if len(m.methods) > 0 {
				refined.priority += 5
			}
			return &refined, true
		}
	}
	return nil, false
}

func (m *testMapping) MatchedPattern() string        { return m.matchedPattern }
func (m *testMapping) PathParams() map[string]string { return m.params }

func matchTestPath(pattern, path string) (map[string]string, bool) {
	if pattern == path {
		return nil, true
	}
	if !strings.Contains(pattern, "{") {
		return nil, false
	}
	patternSegs := strings.Split(strings.Trim(pattern, "/"), "/")
	pathSegs := strings.Split(strings.Trim(path, "/"), "/")
	if len(patternSegs) != len(pathSegs) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range patternSegs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			params[seg[1:len(seg)-1]] = pathSegs[i]
			continue
		}
		if seg != pathSegs[i] {
			return nil, false
		}
	}
	return params, true
}

// testStrategy ranks refined test mappings by priority, higher first.
type testStrategy struct{}

func (testStrategy) Comparator(_ *http.Request) MappingComparator {
	return func(a, b Mapping) int {
		return b.(*testMapping).priority - a.(*testMapping).priority
	}
}

func (testStrategy) IsPattern(path string) bool {
	return strings.Contains(path, "{")
}

// eventLog collects ordered events from interceptors and handlers.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

// recordingInterceptor records every phase it sees and can be configured
// to stop, fail, or panic at a given phase.
type recordingInterceptor struct {
	name string
	log  *eventLog

	stopOnPre         bool
	preErr            error
	postErr           error
	completionErr     error
	panicOnCompletion bool
}

func (ic *recordingInterceptor) PreHandle(_ http.ResponseWriter, _ *http.Request, _ *HandlerRef) (*http.Request, bool, error) {
	ic.log.add("%s:pre", ic.name)
	if ic.preErr != nil {
		return nil, false, ic.preErr
	}
	return nil, !ic.stopOnPre, nil
}

func (ic *recordingInterceptor) PostHandle(_ http.ResponseWriter, _ *http.Request, _ *HandlerRef, _ any) error {
	ic.log.add("%s:post", ic.name)
	return ic.postErr
}

func (ic *recordingInterceptor) AfterCompletion(_ http.ResponseWriter, _ *http.Request, _ *HandlerRef, err error) error {
	if err != nil {
		ic.log.add("%s:completion(err)", ic.name)
	} else {
		ic.log.add("%s:completion", ic.name)
	}
	if ic.panicOnCompletion {
		panic("completion hook exploded")
	}
	return ic.completionErr
}

// asyncRecordingInterceptor additionally implements the async capability.
type asyncRecordingInterceptor struct {
	recordingInterceptor
}

func (ic *asyncRecordingInterceptor) AfterConcurrentHandlingStarted(_ http.ResponseWriter, _ *http.Request, _ *HandlerRef) {
	ic.log.add("%s:asyncStarted", ic.name)
}

// testController is a handler target used in tests.
type testController struct {
	name string
}

// resolverFunc adapts a function to TargetResolver.
type resolverFunc func(name string) (any, error)

func (f resolverFunc) ResolveTarget(name string) (any, error) { return f(name) }

func okHandler(result any) HandlerFunc {
	return func(http.ResponseWriter, *http.Request) (any, error) {
		return result, nil
	}
}
