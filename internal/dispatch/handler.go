package dispatch

import (
	"fmt"
	"net/http"
	"strings"
)

// HandlerFunc is the entry point bound to a handler reference. The returned
// value is passed to the interceptors' post-handle phase; a *AsyncResult
// return signals that handling completes asynchronously.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) (any, error)

// TargetResolver resolves a named handler target to a live instance.
// It models lazy binding against an external object registry.
type TargetResolver interface {
	ResolveTarget(name string) (any, error)
}

// HandlerRef identifies a callable target plus the concrete entry point to
// invoke. Targets must be comparable values, typically pointers; equality
// is by target identity and entry-point name.
type HandlerRef struct {
	target       any
	targetName   string
	entryPoint   string
	fn           HandlerFunc
	resolvedFrom *HandlerRef
}

// NewHandlerRef creates a handler reference bound to a live target instance.
func NewHandlerRef(target any, entryPoint string, fn HandlerFunc) *HandlerRef {
	return &HandlerRef{target: target, entryPoint: entryPoint, fn: fn}
}

// NewNamedHandlerRef creates a handler reference bound to a named target
// that is resolved lazily, at the first request that selects it.
func NewNamedHandlerRef(targetName, entryPoint string, fn HandlerFunc) *HandlerRef {
	return &HandlerRef{targetName: targetName, entryPoint: entryPoint, fn: fn}
}

// Target returns the live target instance, or nil for an unresolved
// named reference.
func (h *HandlerRef) Target() any {
	return h.target
}

// TargetName returns the target name for a named reference, or "".
func (h *HandlerRef) TargetName() string {
	return h.targetName
}

// EntryPoint returns the entry-point name.
func (h *HandlerRef) EntryPoint() string {
	return h.entryPoint
}

// Invoke calls the bound entry point.
func (h *HandlerRef) Invoke(w http.ResponseWriter, r *http.Request) (any, error) {
	if h.fn == nil {
		return nil, fmt.Errorf("handler %s has no bound entry point", h)
	}
	return h.fn(w, r)
}

// Equal reports whether two references identify the same target and
// entry point.
func (h *HandlerRef) Equal(other *HandlerRef) bool {
	if h == nil || other == nil {
		return h == other
	}
	if h.entryPoint != other.entryPoint {
		return false
	}
	if h.targetName != "" || other.targetName != "" {
		return h.targetName == other.targetName
	}
	return h.target == other.target
}

// CreateWithResolvedTarget returns a copy of a named reference bound to the
// live instance produced by the resolver. The copy remembers the original
// reference so index lookups keyed on it still resolve. References already
// bound to an instance are returned unchanged.
func (h *HandlerRef) CreateWithResolvedTarget(resolver TargetResolver) (*HandlerRef, error) {
	if h.targetName == "" || resolver == nil {
		return h, nil
	}
	target, err := resolver.ResolveTarget(h.targetName)
	if err != nil {
		return nil, fmt.Errorf("resolving handler target %q: %w", h.targetName, err)
	}
	return &HandlerRef{
		target:       target,
		targetName:   h.targetName,
		entryPoint:   h.entryPoint,
		fn:           h.fn,
		resolvedFrom: h,
	}, nil
}

// canonical returns the originally registered reference for a resolved
// copy, or the reference itself.
func (h *HandlerRef) canonical() *HandlerRef {
	if h.resolvedFrom != nil {
		return h.resolvedFrom
	}
	return h
}

// TargetTypeName returns the short type name of the target, or the target
// name for a named reference.
func (h *HandlerRef) TargetTypeName() string {
	if h.target == nil {
		return h.targetName
	}
	name := fmt.Sprintf("%T", h.target)
	name = strings.TrimPrefix(name, "*")
	if idx := strings.LastIndex(name, "."); idx != -1 {
		name = name[idx+1:]
	}
	return name
}

// String formats the reference as "Target#entryPoint".
func (h *HandlerRef) String() string {
	if h == nil {
		return "<nil>"
	}
	return h.TargetTypeName() + "#" + h.entryPoint
}
