package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

func takenSet(slugs ...string) SlugProber {
	set := make(map[string]struct{}, len(slugs))
	for _, s := range slugs {
		set[s] = struct{}{}
	}
	return func(ctx context.Context, candidate string) (bool, error) {
		_, ok := set[candidate]
		return ok, nil
	}
}

func TestGenerateUsesTitleWhenNoPreferred(t *testing.T) {
	alloc := NewSlugAllocator(nil)

	got, err := alloc.Generate(context.Background(), "Hello World", "", takenSet())
	require.NoError(t, err)
	assert.Equal(t, "hello-world", got)
}

func TestGeneratePrefersExplicitSlug(t *testing.T) {
	alloc := NewSlugAllocator(nil)

	got, err := alloc.Generate(context.Background(), "Hello World", "Custom Slug", takenSet())
	require.NoError(t, err)
	assert.Equal(t, "custom-slug", got)
}

func TestGenerateAppendsSequentialSuffix(t *testing.T) {
	alloc := NewSlugAllocator(nil)

	got, err := alloc.Generate(context.Background(), "Hello World", "", takenSet("hello-world"))
	require.NoError(t, err)
	assert.Equal(t, "hello-world-1", got)

	got, err = alloc.Generate(context.Background(), "Hello World", "", takenSet("hello-world", "hello-world-1"))
	require.NoError(t, err)
	assert.Equal(t, "hello-world-2", got)
}

func TestGenerateFallsBackToRandom(t *testing.T) {
	alloc := NewSlugAllocator(nil)

	got, err := alloc.Generate(context.Background(), "日本語のタイトル", "", takenSet())
	require.NoError(t, err)
	assert.Len(t, got, 8)
	assert.Regexp(t, "^[a-z0-9]+$", got)
}

func TestGenerateGivesUpAfterMaxProbes(t *testing.T) {
	alloc := NewSlugAllocator(nil)

	alwaysTaken := func(ctx context.Context, candidate string) (bool, error) {
		return true, nil
	}
	_, err := alloc.Generate(context.Background(), "Hello", "", alwaysTaken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlugExhausted.Code, appErrors.FromError(err).Code)
}
