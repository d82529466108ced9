package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/dept-admin-api/internal/models"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

type stubTagRepo struct {
	tags          map[string]*models.Tag // keyed by id
	associations  map[string][]string    // ownerID -> tagIDs
	nextID        int
	unprovisioned bool
}

func newStubTagRepo() *stubTagRepo {
	return &stubTagRepo{tags: map[string]*models.Tag{}, associations: map[string][]string{}}
}

func undefinedTableErr() error {
	return &pq.Error{Code: "42P01"}
}

func (s *stubTagRepo) FindByName(ctx context.Context, q sqlx.ExtContext, tagContext, name string) (*models.Tag, error) {
	if s.unprovisioned {
		return nil, undefinedTableErr()
	}
	for _, tag := range s.tags {
		if tag.Context == tagContext && strings.EqualFold(tag.Name, name) {
			return tag, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubTagRepo) SlugExists(ctx context.Context, q sqlx.ExtContext, tagContext, slug, ignoreID string) (bool, error) {
	for _, tag := range s.tags {
		if tag.Context == tagContext && tag.Slug == slug && tag.ID != ignoreID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubTagRepo) Insert(ctx context.Context, q sqlx.ExtContext, tag *models.Tag) error {
	s.nextID++
	tag.ID = string(rune('0' + s.nextID))
	s.tags[tag.ID] = tag
	return nil
}

func (s *stubTagRepo) ReplaceAssociations(ctx context.Context, q sqlx.ExtContext, tagContext, ownerID string, tagIDs []string) error {
	if s.unprovisioned {
		return undefinedTableErr()
	}
	s.associations[ownerID] = append([]string(nil), tagIDs...)
	return nil
}

func (s *stubTagRepo) TouchUsage(ctx context.Context, q sqlx.ExtContext, tagIDs []string, at time.Time) error {
	for _, id := range tagIDs {
		if tag, ok := s.tags[id]; ok {
			ts := at
			tag.LastUsedAt = &ts
		}
	}
	return nil
}

func (s *stubTagRepo) ListForOwner(ctx context.Context, tagContext, ownerID string) ([]models.Tag, error) {
	var out []models.Tag
	for _, id := range s.associations[ownerID] {
		if tag, ok := s.tags[id]; ok {
			out = append(out, *tag)
		}
	}
	return out, nil
}

func (s *stubTagRepo) List(ctx context.Context, filter models.TagFilter) ([]models.Tag, int, error) {
	var out []models.Tag
	for _, tag := range s.tags {
		out = append(out, *tag)
	}
	return out, len(out), nil
}

func (s *stubTagRepo) FindByID(ctx context.Context, id string) (*models.Tag, error) {
	if tag, ok := s.tags[id]; ok {
		return tag, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubTagRepo) Merge(ctx context.Context, tx *sqlx.Tx, tagContext, sourceID, targetID string) error {
	for ownerID, ids := range s.associations {
		var next []string
		hasTarget := false
		for _, id := range ids {
			if id == targetID {
				hasTarget = true
			}
		}
		for _, id := range ids {
			if id == sourceID {
				if !hasTarget {
					next = append(next, targetID)
					hasTarget = true
				}
				continue
			}
			next = append(next, id)
		}
		s.associations[ownerID] = next
	}
	delete(s.tags, sourceID)
	return nil
}

func (s *stubTagRepo) OwnersOf(ctx context.Context, q sqlx.ExtContext, tagContext, tagID string) ([]string, error) {
	var owners []string
	for ownerID, ids := range s.associations {
		for _, id := range ids {
			if id == tagID {
				owners = append(owners, ownerID)
			}
		}
	}
	return owners, nil
}

func (s *stubTagRepo) Attach(ctx context.Context, q sqlx.ExtContext, tagContext, ownerID, tagID string) error {
	for _, id := range s.associations[ownerID] {
		if id == tagID {
			return nil
		}
	}
	s.associations[ownerID] = append(s.associations[ownerID], tagID)
	return nil
}

func (s *stubTagRepo) SetActive(ctx context.Context, q sqlx.ExtContext, id string, active bool) error {
	if tag, ok := s.tags[id]; ok {
		tag.Active = active
	}
	return nil
}

func (s *stubTagRepo) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

func TestNormalizeTagInput(t *testing.T) {
	assert.Equal(t, []string{"AI", "ml"}, NormalizeTagInput("AI, ml, AI"))
	assert.Equal(t, []string{"go"}, NormalizeTagInput("  go  "))
	assert.Empty(t, NormalizeTagInput(" , , "))
	assert.Empty(t, NormalizeTagInput(""))
}

func TestSyncCreatesAndDeduplicates(t *testing.T) {
	repo := newStubTagRepo()
	svc := NewTagService(repo, nil, nil)

	tags, err := svc.Sync(context.Background(), nil, models.TagContextPosts, "p1", "AI, ml, AI")
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "AI", tags[0].Name)
	assert.Equal(t, "ml", tags[1].Name)
	assert.Len(t, repo.associations["p1"], 2)
}

func TestSyncIsIdempotent(t *testing.T) {
	repo := newStubTagRepo()
	svc := NewTagService(repo, nil, nil)
	ctx := context.Background()

	first, err := svc.Sync(ctx, nil, models.TagContextPosts, "p1", "go, testing")
	require.NoError(t, err)
	second, err := svc.Sync(ctx, nil, models.TagContextPosts, "p1", "go, testing")
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[1].ID, second[1].ID)
	assert.Len(t, repo.tags, 2)
	assert.Len(t, repo.associations["p1"], 2)
}

func TestSyncMatchesExistingCaseInsensitively(t *testing.T) {
	repo := newStubTagRepo()
	svc := NewTagService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Sync(ctx, nil, models.TagContextPosts, "p1", "Robotics")
	require.NoError(t, err)
	tags, err := svc.Sync(ctx, nil, models.TagContextPosts, "p2", "robotics")
	require.NoError(t, err)

	require.Len(t, tags, 1)
	assert.Equal(t, "Robotics", tags[0].Name)
	assert.Len(t, repo.tags, 1)
}

func TestSyncEmptyInputClearsAssociations(t *testing.T) {
	repo := newStubTagRepo()
	svc := NewTagService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Sync(ctx, nil, models.TagContextPosts, "p1", "one, two")
	require.NoError(t, err)
	_, err = svc.Sync(ctx, nil, models.TagContextPosts, "p1", "")
	require.NoError(t, err)

	assert.Empty(t, repo.associations["p1"])
}

func TestSyncUnprovisionedStorageIsNoop(t *testing.T) {
	repo := newStubTagRepo()
	repo.unprovisioned = true
	svc := NewTagService(repo, nil, nil)

	tags, err := svc.Sync(context.Background(), nil, models.TagContextPosts, "p1", "go")
	require.NoError(t, err)
	assert.Nil(t, tags)
}

func TestMergeRequiresAdmin(t *testing.T) {
	repo := newStubTagRepo()
	svc := NewTagService(repo, nil, nil)

	teacher := userWithRoles("t1", models.RoleNameTeacher)
	err := svc.Merge(context.Background(), teacher, "1", "2")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMergeRejectsCrossContext(t *testing.T) {
	repo := newStubTagRepo()
	svc := NewTagService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Sync(ctx, nil, models.TagContextPosts, "p1", "shared")
	require.NoError(t, err)
	_, err = svc.Sync(ctx, nil, models.TagContextLabs, "l1", "shared")
	require.NoError(t, err)

	admin := userWithRoles("a1", models.RoleNameAdmin)
	err = svc.Merge(ctx, admin, "1", "2")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMergeRepointsAssociations(t *testing.T) {
	repo := newStubTagRepo()
	svc := NewTagService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Sync(ctx, nil, models.TagContextPosts, "p1", "ml")
	require.NoError(t, err)
	_, err = svc.Sync(ctx, nil, models.TagContextPosts, "p2", "machine-learning")
	require.NoError(t, err)

	admin := userWithRoles("a1", models.RoleNameAdmin)
	require.NoError(t, svc.Merge(ctx, admin, "1", "2"))

	assert.Equal(t, []string{"2"}, repo.associations["p1"])
	assert.Len(t, repo.tags, 1)
}
