package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLookupPathContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, LookupPathFromContext(ctx))

	ctx = ContextWithLookupPath(ctx, "/users/42")
	assert.Equal(t, "/users/42", LookupPathFromContext(ctx))
}

func TestMatchedPatternContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, MatchedPatternFromContext(ctx))

	ctx = ContextWithMatchedPattern(ctx, "/users/{id}")
	assert.Equal(t, "/users/{id}", MatchedPatternFromContext(ctx))
}

func TestPathParamsContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Nil(t, PathParamsFromContext(ctx))

	params := map[string]string{"id": "42"}
	ctx = ContextWithPathParams(ctx, params)
	assert.Equal(t, params, PathParamsFromContext(ctx))
}

func TestHandlerNameContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, HandlerNameFromContext(ctx))

	ctx = ContextWithHandlerName(ctx, "UC#getUser")
	assert.Equal(t, "UC#getUser", HandlerNameFromContext(ctx))
}

func TestStartTimeContext(t *testing.T) {
	t.Parallel()

	_, ok := StartTimeFromContext(context.Background())
	assert.False(t, ok)

	now := time.Now()
	ctx := ContextWithStartTime(context.Background(), now)
	got, ok := StartTimeFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, now, got)
}
