package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campusworks/dept-admin-api/internal/models"
	"github.com/campusworks/dept-admin-api/internal/repository"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

type tagSyncRepository interface {
	FindByName(ctx context.Context, q sqlx.ExtContext, tagContext, name string) (*models.Tag, error)
	SlugExists(ctx context.Context, q sqlx.ExtContext, tagContext, slug, ignoreID string) (bool, error)
	Insert(ctx context.Context, q sqlx.ExtContext, tag *models.Tag) error
	ReplaceAssociations(ctx context.Context, q sqlx.ExtContext, tagContext, ownerID string, tagIDs []string) error
	TouchUsage(ctx context.Context, q sqlx.ExtContext, tagIDs []string, at time.Time) error
	ListForOwner(ctx context.Context, tagContext, ownerID string) ([]models.Tag, error)
	List(ctx context.Context, filter models.TagFilter) ([]models.Tag, int, error)
	FindByID(ctx context.Context, id string) (*models.Tag, error)
	Merge(ctx context.Context, tx *sqlx.Tx, tagContext, sourceID, targetID string) error
	OwnersOf(ctx context.Context, q sqlx.ExtContext, tagContext, tagID string) ([]string, error)
	Attach(ctx context.Context, q sqlx.ExtContext, tagContext, ownerID, tagID string) error
	SetActive(ctx context.Context, q sqlx.ExtContext, id string, active bool) error
	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// TagService keeps resource tag sets in sync with free-form user input
// and offers admin curation (merge, split).
type TagService struct {
	repo    tagSyncRepository
	slugs   *SlugAllocator
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewTagService constructs a TagService.
func NewTagService(repo tagSyncRepository, slugs *SlugAllocator, logger *zap.Logger) *TagService {
	if slugs == nil {
		slugs = NewSlugAllocator(logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TagService{repo: repo, slugs: slugs, logger: logger, nowFunc: func() time.Time { return time.Now().UTC() }}
}

// NormalizeTagInput splits a comma-separated tag string, trims
// whitespace, drops empties and deduplicates case-insensitively while
// keeping the first casing seen.
func NormalizeTagInput(raw string) []string {
	parts := strings.Split(raw, ",")
	seen := make(map[string]struct{}, len(parts))
	var names []string
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Sync replaces the tag set of an owner row with the tags named in raw,
// creating missing tags on demand. Running twice with the same input is
// a no-op. When tag storage is not provisioned the whole call degrades
// to a no-op instead of failing the surrounding transaction.
func (s *TagService) Sync(ctx context.Context, q sqlx.ExtContext, tagContext, ownerID, raw string) ([]models.Tag, error) {
	names := NormalizeTagInput(raw)

	tags := make([]models.Tag, 0, len(names))
	tagIDs := make([]string, 0, len(names))
	for _, name := range names {
		tag, err := s.findOrCreate(ctx, q, tagContext, name)
		if err != nil {
			if repository.IsUndefinedTable(err) {
				s.logger.Warn("tag storage not provisioned, skipping sync", zap.String("context", tagContext))
				return nil, nil
			}
			return nil, err
		}
		tags = append(tags, *tag)
		tagIDs = append(tagIDs, tag.ID)
	}

	if err := s.repo.ReplaceAssociations(ctx, q, tagContext, ownerID, tagIDs); err != nil {
		if repository.IsUndefinedTable(err) {
			s.logger.Warn("tag associations not provisioned, skipping sync", zap.String("context", tagContext))
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sync tags")
	}

	if len(tagIDs) > 0 {
		if err := s.repo.TouchUsage(ctx, q, tagIDs, s.nowFunc()); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark tag usage")
		}
	}
	return tags, nil
}

// findOrCreate matches by name within the context, case-insensitively,
// and creates the tag when absent. A concurrent insert losing the race
// is recovered by re-reading.
func (s *TagService) findOrCreate(ctx context.Context, q sqlx.ExtContext, tagContext, name string) (*models.Tag, error) {
	tag, err := s.repo.FindByName(ctx, q, tagContext, name)
	if err == nil {
		return tag, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	slugValue, err := s.slugs.Generate(ctx, name, "", func(ctx context.Context, candidate string) (bool, error) {
		return s.repo.SlugExists(ctx, q, tagContext, candidate, "")
	})
	if err != nil {
		return nil, err
	}

	created := &models.Tag{
		Context: tagContext,
		Name:    name,
		Slug:    slugValue,
		Active:  true,
	}
	if err := s.repo.Insert(ctx, q, created); err != nil {
		if repository.IsUniqueViolation(err) {
			return s.repo.FindByName(ctx, q, tagContext, name)
		}
		return nil, err
	}
	return created, nil
}

// TagsFor returns the tags attached to an owner row. A missing
// association table reads as an empty set.
func (s *TagService) TagsFor(ctx context.Context, tagContext, ownerID string) ([]models.Tag, error) {
	tags, err := s.repo.ListForOwner(ctx, tagContext, ownerID)
	if err != nil {
		if repository.IsUndefinedTable(err) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tags")
	}
	return tags, nil
}

// List returns tags plus pagination data.
func (s *TagService) List(ctx context.Context, filter models.TagFilter) ([]models.Tag, *models.Pagination, error) {
	tags, total, err := s.repo.List(ctx, filter)
	if err != nil {
		if repository.IsUndefinedTable(err) {
			return nil, &models.Pagination{Page: 1, PageSize: 50}, nil
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tags")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return tags, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Merge moves every association of the source tag onto the target and
// removes the source. Admin only; both tags must share a context.
func (s *TagService) Merge(ctx context.Context, actor *models.User, sourceID, targetID string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "administrator role required")
	}
	if sourceID == targetID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot merge a tag into itself")
	}

	source, err := s.repo.FindByID(ctx, sourceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "source tag not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load source tag")
	}
	target, err := s.repo.FindByID(ctx, targetID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "target tag not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target tag")
	}
	if source.Context != target.Context {
		return appErrors.Clone(appErrors.ErrValidation, "cannot merge tags across contexts")
	}

	err = s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		return s.repo.Merge(ctx, tx, source.Context, sourceID, targetID)
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to merge tags")
	}
	return nil
}

// Split creates new tags from names and copies the source tag's
// associations onto each of them, then deactivates the source. Admin
// only.
func (s *TagService) Split(ctx context.Context, actor *models.User, sourceID string, names []string) ([]models.Tag, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "administrator role required")
	}
	if len(names) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "split requires at least one new tag name")
	}

	source, err := s.repo.FindByID(ctx, sourceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "source tag not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load source tag")
	}

	var created []models.Tag
	err = s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		owners, err := s.repo.OwnersOf(ctx, tx, source.Context, sourceID)
		if err != nil {
			return err
		}
		for _, name := range names {
			tag, err := s.findOrCreate(ctx, tx, source.Context, name)
			if err != nil {
				return err
			}
			for _, ownerID := range owners {
				if err := s.repo.Attach(ctx, tx, source.Context, ownerID, tag.ID); err != nil {
					return err
				}
			}
			created = append(created, *tag)
		}
		return s.repo.SetActive(ctx, tx, sourceID, false)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to split tag")
	}
	return created, nil
}
