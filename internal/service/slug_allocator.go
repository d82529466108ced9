package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
	"github.com/campusworks/dept-admin-api/pkg/slug"
)

// maxSlugProbes bounds the sequential suffix search before giving up.
const maxSlugProbes = 64

// randomSlugLength is the size of the fallback slug used when the input
// carries no ASCII-representable characters at all.
const randomSlugLength = 8

// SlugProber reports whether a candidate slug is already taken.
type SlugProber func(ctx context.Context, candidate string) (bool, error)

// SlugAllocator finds a unique slug for a resource. The caller supplies
// the existence probe, which lets allocation run inside the same
// transaction as the insert it protects.
type SlugAllocator struct {
	logger *zap.Logger
}

// NewSlugAllocator constructs a SlugAllocator.
func NewSlugAllocator(logger *zap.Logger) *SlugAllocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlugAllocator{logger: logger}
}

// Generate returns a slug derived from preferred when given, otherwise
// from title. A non-sluggable input falls back to a random slug. When
// the base is taken the allocator probes base-1, base-2, ... until a
// free candidate appears.
func (s *SlugAllocator) Generate(ctx context.Context, title, preferred string, exists SlugProber) (string, error) {
	base := slug.Make(preferred)
	if base == "" {
		base = slug.Make(title)
	}
	if base == "" {
		base = slug.Random(randomSlugLength)
		s.logger.Debug("slug input not representable, using random base", zap.String("base", base))
	}

	candidate := base
	for i := 0; i < maxSlugProbes; i++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("probe slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i+1)
	}
	return "", appErrors.Clone(appErrors.ErrSlugExhausted, fmt.Sprintf("no free slug after %d probes of %q", maxSlugProbes, base))
}
