package util

import (
	"context"
	"time"
)

// Context keys.
type ctxKey string

const (
	ctxKeyLookupPath     ctxKey = "lookup_path"
	ctxKeyMatchedPattern ctxKey = "matched_pattern"
	ctxKeyPathParams     ctxKey = "path_params"
	ctxKeyHandlerName    ctxKey = "handler_name"
	ctxKeyStartTime      ctxKey = "start_time"
)

// ContextWithLookupPath adds the normalized lookup path to the context.
func ContextWithLookupPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, ctxKeyLookupPath, path)
}

// LookupPathFromContext extracts the lookup path from context.
func LookupPathFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyLookupPath).(string); ok {
		return v
	}
	return ""
}

// ContextWithMatchedPattern adds the matched route pattern to the context.
func ContextWithMatchedPattern(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, ctxKeyMatchedPattern, pattern)
}

// MatchedPatternFromContext extracts the matched route pattern from context.
func MatchedPatternFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyMatchedPattern).(string); ok {
		return v
	}
	return ""
}

// ContextWithPathParams adds extracted path parameters to the context.
func ContextWithPathParams(ctx context.Context, params map[string]string) context.Context {
	return context.WithValue(ctx, ctxKeyPathParams, params)
}

// PathParamsFromContext extracts path parameters from context.
func PathParamsFromContext(ctx context.Context) map[string]string {
	if v, ok := ctx.Value(ctxKeyPathParams).(map[string]string); ok {
		return v
	}
	return nil
}

// ContextWithHandlerName adds the resolved handler name to the context.
func ContextWithHandlerName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKeyHandlerName, name)
}

// HandlerNameFromContext extracts the resolved handler name from context.
func HandlerNameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyHandlerName).(string); ok {
		return v
	}
	return ""
}

// ContextWithStartTime adds a start time to the context.
func ContextWithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyStartTime, t)
}

// StartTimeFromContext extracts the start time from context.
func StartTimeFromContext(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(ctxKeyStartTime).(time.Time)
	return t, ok
}
