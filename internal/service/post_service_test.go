package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/dept-admin-api/internal/models"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

type stubPostStore struct {
	posts      map[string]*models.Post
	categories map[string]*models.PostCategory
	nextID     int
}

func newStubPostStore() *stubPostStore {
	return &stubPostStore{
		posts:      map[string]*models.Post{},
		categories: map[string]*models.PostCategory{"cat1": {ID: "cat1", Name: "News", Visible: true}},
	}
}

func (s *stubPostStore) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

func (s *stubPostStore) SlugExists(ctx context.Context, q sqlx.ExtContext, slug, ignoreID string) (bool, error) {
	for _, p := range s.posts {
		if p.Slug == slug && p.ID != ignoreID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubPostStore) Insert(ctx context.Context, q sqlx.ExtContext, post *models.Post) error {
	s.nextID++
	post.ID = fmt.Sprintf("p%d", s.nextID)
	copied := *post
	s.posts[post.ID] = &copied
	return nil
}

func (s *stubPostStore) Update(ctx context.Context, q sqlx.ExtContext, post *models.Post) error {
	if _, ok := s.posts[post.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *post
	s.posts[post.ID] = &copied
	return nil
}

func (s *stubPostStore) FindByID(ctx context.Context, id string, withTrashed bool) (*models.Post, error) {
	p, ok := s.posts[id]
	if !ok || (!withTrashed && p.DeletedAt != nil) {
		return nil, sql.ErrNoRows
	}
	copied := *p
	return &copied, nil
}

func (s *stubPostStore) FindBySlug(ctx context.Context, slug string) (*models.Post, error) {
	for _, p := range s.posts {
		if p.Slug == slug && p.DeletedAt == nil {
			copied := *p
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubPostStore) List(ctx context.Context, filter models.PostFilter) ([]models.Post, int, error) {
	var out []models.Post
	for _, p := range s.posts {
		if !filter.WithTrashed && p.DeletedAt != nil {
			continue
		}
		if filter.CreatedBy != "" && p.CreatedBy != filter.CreatedBy {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (s *stubPostStore) ListVisible(ctx context.Context, categoryID string, now time.Time, page, pageSize int) ([]models.Post, int, error) {
	var out []models.Post
	for _, p := range s.posts {
		if categoryID != "" && p.CategoryID != categoryID {
			continue
		}
		if p.Visibility != models.PostVisibilityPublic {
			continue
		}
		if p.EffectivelyVisibleAt(now) {
			out = append(out, *p)
		}
	}
	return out, len(out), nil
}

func (s *stubPostStore) SetStatusBulk(ctx context.Context, ids []string, status models.PostStatus, actorID string) (int64, error) {
	var affected int64
	now := time.Now().UTC()
	for _, id := range ids {
		p, ok := s.posts[id]
		if !ok || p.DeletedAt != nil {
			continue
		}
		p.Status = status
		if status == models.PostStatusPublished && p.PublishedAt == nil {
			p.PublishedAt = &now
		}
		affected++
	}
	return affected, nil
}

func (s *stubPostStore) SoftDeleteBulk(ctx context.Context, ids []string, actorID string) (int64, error) {
	var affected int64
	now := time.Now().UTC()
	for _, id := range ids {
		if p, ok := s.posts[id]; ok && p.DeletedAt == nil {
			p.DeletedAt = &now
			affected++
		}
	}
	return affected, nil
}

func (s *stubPostStore) Restore(ctx context.Context, id, actorID string) error {
	p, ok := s.posts[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.DeletedAt = nil
	return nil
}

func (s *stubPostStore) IncrementViews(ctx context.Context, id string) error {
	if p, ok := s.posts[id]; ok {
		p.Views++
	}
	return nil
}

func (s *stubPostStore) FindCategory(ctx context.Context, id string) (*models.PostCategory, error) {
	if c, ok := s.categories[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubPostStore) ListCategories(ctx context.Context) ([]models.PostCategory, error) {
	var out []models.PostCategory
	for _, c := range s.categories {
		out = append(out, *c)
	}
	return out, nil
}

func (s *stubPostStore) CountByStatus(ctx context.Context) (map[models.PostStatus]int, error) {
	counts := map[models.PostStatus]int{}
	for _, p := range s.posts {
		if p.DeletedAt == nil {
			counts[p.Status]++
		}
	}
	return counts, nil
}

type stubActivityRecorder struct {
	entries []models.Activity
}

func (s *stubActivityRecorder) Record(ctx context.Context, activity *models.Activity) error {
	s.entries = append(s.entries, *activity)
	return nil
}

type stubNotifier struct {
	published []string
}

func (s *stubNotifier) PostPublished(post *models.Post) {
	s.published = append(s.published, post.ID)
}

type postFixture struct {
	svc      *PostService
	store    *stubPostStore
	tags     *stubTagRepo
	activity *stubActivityRecorder
	notifier *stubNotifier
	now      time.Time
}

func newPostFixture(t *testing.T) *postFixture {
	t.Helper()
	store := newStubPostStore()
	tagRepo := newStubTagRepo()
	activity := &stubActivityRecorder{}
	notifier := &stubNotifier{}
	authz := NewAuthzService(newStubRoleRepo(), nil)
	tagSvc := NewTagService(tagRepo, nil, nil)
	svc := NewPostService(store, tagSvc, authz, nil, nil, activity, notifier, nil, nil, 0)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.nowFunc = func() time.Time { return now }
	return &postFixture{svc: svc, store: store, tags: tagRepo, activity: activity, notifier: notifier, now: now}
}

func TestCreatePublishedStampsPublishTime(t *testing.T) {
	f := newPostFixture(t)
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	post, err := f.svc.Create(context.Background(), teacher, CreatePostRequest{
		CategoryID: "cat1",
		Title:      "Hello World",
		Content:    "body",
		Status:     "published",
		Tags:       "news, Research",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, post.Status)
	require.NotNil(t, post.PublishedAt)
	assert.Equal(t, f.now, *post.PublishedAt)
	assert.Equal(t, "hello-world", post.Slug)
	assert.Len(t, post.Tags, 2)
	assert.Equal(t, []string{post.ID}, f.notifier.published)
	require.Len(t, f.activity.entries, 1)
	assert.Equal(t, models.ActivityPostCreated, f.activity.entries[0].Action)
}

func TestCreateScheduledFutureKeepsSchedule(t *testing.T) {
	f := newPostFixture(t)
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	future := f.now.Add(24 * time.Hour)
	post, err := f.svc.Create(context.Background(), teacher, CreatePostRequest{
		CategoryID:  "cat1",
		Title:       "Soon",
		Content:     "body",
		Status:      "scheduled",
		PublishedAt: &future,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusScheduled, post.Status)
	assert.Equal(t, future, *post.PublishedAt)
	assert.Empty(t, f.notifier.published)
}

func TestCreateScheduledPastBecomesPublished(t *testing.T) {
	f := newPostFixture(t)
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	past := f.now.Add(-time.Hour)
	post, err := f.svc.Create(context.Background(), teacher, CreatePostRequest{
		CategoryID:  "cat1",
		Title:       "Already Due",
		Content:     "body",
		Status:      "scheduled",
		PublishedAt: &past,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, post.Status)
	assert.Equal(t, past, *post.PublishedAt)
	assert.Len(t, f.notifier.published, 1)
}

func TestCreateDraftHasNoPublishTime(t *testing.T) {
	f := newPostFixture(t)
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	past := f.now.Add(-time.Hour)
	post, err := f.svc.Create(context.Background(), teacher, CreatePostRequest{
		CategoryID:  "cat1",
		Title:       "Draft",
		Content:     "body",
		Status:      "draft",
		PublishedAt: &past,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, post.Status)
	assert.Nil(t, post.PublishedAt)
}

func TestCreateUnknownStatusFallsBackToDraft(t *testing.T) {
	f := newPostFixture(t)
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	post, err := f.svc.Create(context.Background(), teacher, CreatePostRequest{
		CategoryID: "cat1",
		Title:      "Odd",
		Content:    "body",
		Status:     "warp-speed",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, post.Status)
}

func TestCreateValidationRunsBeforeSideEffects(t *testing.T) {
	f := newPostFixture(t)
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	_, err := f.svc.Create(context.Background(), teacher, CreatePostRequest{
		CategoryID: "missing-category",
		Title:      "Nope",
		Content:    "body",
		Tags:       "should-not-exist",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.store.posts)
	assert.Empty(t, f.tags.tags)
	assert.Empty(t, f.activity.entries)
}

func TestCreateScheduledWithoutTimeRejected(t *testing.T) {
	f := newPostFixture(t)
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	_, err := f.svc.Create(context.Background(), teacher, CreatePostRequest{
		CategoryID: "cat1",
		Title:      "No Time",
		Content:    "body",
		Status:     "scheduled",
	})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateByBaseRoleForbidden(t *testing.T) {
	f := newPostFixture(t)
	base := userWithRoles("u1", models.RoleNameUser)

	_, err := f.svc.Create(context.Background(), base, CreatePostRequest{
		CategoryID: "cat1",
		Title:      "Nope",
		Content:    "body",
	})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSlugCollisionGetsSuffix(t *testing.T) {
	f := newPostFixture(t)
	teacher := userWithRoles("t1", models.RoleNameTeacher)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, teacher, CreatePostRequest{CategoryID: "cat1", Title: "Hello World", Content: "a"})
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, teacher, CreatePostRequest{CategoryID: "cat1", Title: "Hello World", Content: "b"})
	require.NoError(t, err)

	assert.Equal(t, "hello-world", first.Slug)
	assert.Equal(t, "hello-world-1", second.Slug)
}

// collidingPostStore fails the next N updates with a slug uniqueness
// violation, simulating a concurrent allocation winning the race after
// the probe reported the slug free.
type collidingPostStore struct {
	*stubPostStore
	updateCollisions int
}

func (s *collidingPostStore) Update(ctx context.Context, q sqlx.ExtContext, post *models.Post) error {
	if s.updateCollisions > 0 {
		s.updateCollisions--
		return &pq.Error{Code: "23505"}
	}
	return s.stubPostStore.Update(ctx, q, post)
}

func newCollidingPostFixture(t *testing.T, collisions int) (*PostService, *collidingPostStore) {
	t.Helper()
	store := &collidingPostStore{stubPostStore: newStubPostStore(), updateCollisions: collisions}
	authz := NewAuthzService(newStubRoleRepo(), nil)
	tagSvc := NewTagService(newStubTagRepo(), nil, nil)
	svc := NewPostService(store, tagSvc, authz, nil, nil, &stubActivityRecorder{}, nil, nil, nil, 0)
	svc.nowFunc = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, store
}

func TestUpdateSlugCollisionRetriesWithFreshSlug(t *testing.T) {
	svc, store := newCollidingPostFixture(t, 1)
	ctx := context.Background()
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	post, err := svc.Create(ctx, teacher, CreatePostRequest{CategoryID: "cat1", Title: "Mine", Content: "body"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, teacher, post.ID, UpdatePostRequest{CategoryID: "cat1", Title: "Mine", Content: "body", Slug: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Slug)
	assert.Zero(t, store.updateCollisions)
}

func TestUpdateSlugCollisionTwiceSurfacesConflict(t *testing.T) {
	svc, _ := newCollidingPostFixture(t, 2)
	ctx := context.Background()
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	post, err := svc.Create(ctx, teacher, CreatePostRequest{CategoryID: "cat1", Title: "Mine", Content: "body"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, teacher, post.ID, UpdatePostRequest{CategoryID: "cat1", Title: "Mine", Content: "body", Slug: "renamed"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUpdateByNonOwnerForbidden(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	owner := userWithRoles("t1", models.RoleNameTeacher)
	stranger := userWithRoles("t2", models.RoleNameTeacher)

	post, err := f.svc.Create(ctx, owner, CreatePostRequest{CategoryID: "cat1", Title: "Mine", Content: "body"})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, stranger, post.ID, UpdatePostRequest{CategoryID: "cat1", Title: "Stolen", Content: "body"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUpdateByAdminBypassesOwnership(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	owner := userWithRoles("t1", models.RoleNameTeacher)
	admin := userWithRoles("a1", models.RoleNameAdmin)

	post, err := f.svc.Create(ctx, owner, CreatePostRequest{CategoryID: "cat1", Title: "Mine", Content: "body"})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, admin, post.ID, UpdatePostRequest{CategoryID: "cat1", Title: "Edited", Content: "body"})
	require.NoError(t, err)
	assert.Equal(t, "Edited", updated.Title)
}

func TestScheduledPostBecomesVisibleWithoutWrite(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	future := f.now.Add(time.Hour)
	post, err := f.svc.Create(ctx, teacher, CreatePostRequest{
		CategoryID:  "cat1",
		Title:       "Scheduled",
		Content:     "body",
		Status:      "scheduled",
		PublishedAt: &future,
	})
	require.NoError(t, err)

	// Before the publish instant the public site sees nothing.
	_, err = f.svc.GetPublicBySlug(ctx, post.Slug)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	page, err := f.svc.ListPublic(ctx, "", 1, 20)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)

	// Advance the clock past the publish instant; no write happens.
	f.svc.nowFunc = func() time.Time { return future.Add(time.Minute) }

	got, err := f.svc.GetPublicBySlug(ctx, post.Slug)
	require.NoError(t, err)
	assert.Equal(t, post.ID, got.ID)

	page, err = f.svc.ListPublic(ctx, "", 1, 20)
	require.NoError(t, err)
	assert.Len(t, page.Posts, 1)

	// The stored status is untouched.
	assert.Equal(t, models.PostStatusScheduled, f.store.posts[post.ID].Status)
}

func TestListPublicExcludesNonPublicAudiences(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	_, err := f.svc.Create(ctx, teacher, CreatePostRequest{
		CategoryID: "cat1",
		Title:      "Staff Memo",
		Content:    "body",
		Status:     "published",
		Visibility: "internal",
	})
	require.NoError(t, err)
	private, err := f.svc.Create(ctx, teacher, CreatePostRequest{
		CategoryID: "cat1",
		Title:      "Secret",
		Content:    "body",
		Status:     "published",
		Visibility: "private",
	})
	require.NoError(t, err)
	open, err := f.svc.Create(ctx, teacher, CreatePostRequest{
		CategoryID: "cat1",
		Title:      "Open House",
		Content:    "body",
		Status:     "published",
	})
	require.NoError(t, err)

	page, err := f.svc.ListPublic(ctx, "", 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, open.ID, page.Posts[0].ID)

	_, err = f.svc.GetPublicBySlug(ctx, private.Slug)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCreatePublishedKeepsFuturePublishTime(t *testing.T) {
	f := newPostFixture(t)
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	future := f.now.Add(48 * time.Hour)
	post, err := f.svc.Create(context.Background(), teacher, CreatePostRequest{
		CategoryID:  "cat1",
		Title:       "Dated Ahead",
		Content:     "body",
		Status:      "published",
		PublishedAt: &future,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, post.Status)
	require.NotNil(t, post.PublishedAt)
	assert.Equal(t, future, *post.PublishedAt)
	// Published is visible regardless of its timestamp.
	assert.Equal(t, []string{post.ID}, f.notifier.published)
}

func TestExpiredPostHiddenFromPublicRead(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	past := f.now.Add(-2 * time.Hour)
	expire := f.now.Add(time.Hour)
	post, err := f.svc.Create(ctx, teacher, CreatePostRequest{
		CategoryID:  "cat1",
		Title:       "Fleeting",
		Content:     "body",
		Status:      "published",
		PublishedAt: &past,
		ExpireAt:    &expire,
	})
	require.NoError(t, err)

	_, err = f.svc.GetPublicBySlug(ctx, post.Slug)
	require.NoError(t, err)

	f.svc.nowFunc = func() time.Time { return expire.Add(time.Minute) }
	_, err = f.svc.GetPublicBySlug(ctx, post.Slug)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPublicReadIncrementsViews(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	post, err := f.svc.Create(ctx, teacher, CreatePostRequest{CategoryID: "cat1", Title: "Counted", Content: "body", Status: "published"})
	require.NoError(t, err)

	_, err = f.svc.GetPublicBySlug(ctx, post.Slug)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.store.posts[post.ID].Views)
}

func TestListScopesNonAdminToOwnPosts(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	t1 := userWithRoles("t1", models.RoleNameTeacher)
	t2 := userWithRoles("t2", models.RoleNameTeacher)

	_, err := f.svc.Create(ctx, t1, CreatePostRequest{CategoryID: "cat1", Title: "One", Content: "body"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, t2, CreatePostRequest{CategoryID: "cat1", Title: "Two", Content: "body"})
	require.NoError(t, err)

	posts, _, err := f.svc.List(ctx, t1, models.PostFilter{})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "t1", posts[0].CreatedBy)

	admin := userWithRoles("a1", models.RoleNameAdmin)
	posts, _, err = f.svc.List(ctx, admin, models.PostFilter{})
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func TestBulkPublishRequiresAdmin(t *testing.T) {
	f := newPostFixture(t)
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	_, err := f.svc.BulkPublish(context.Background(), teacher, []string{"p1"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestBulkPublishStampsMissingPublishTime(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	teacher := userWithRoles("t1", models.RoleNameTeacher)
	admin := userWithRoles("a1", models.RoleNameAdmin)

	post, err := f.svc.Create(ctx, teacher, CreatePostRequest{CategoryID: "cat1", Title: "Draft", Content: "body"})
	require.NoError(t, err)
	require.Nil(t, post.PublishedAt)

	affected, err := f.svc.BulkPublish(ctx, admin, []string{post.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.Equal(t, models.PostStatusPublished, f.store.posts[post.ID].Status)
	assert.NotNil(t, f.store.posts[post.ID].PublishedAt)
}
