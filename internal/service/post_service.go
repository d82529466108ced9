package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campusworks/dept-admin-api/internal/models"
	"github.com/campusworks/dept-admin-api/internal/repository"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

type postStore interface {
	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	SlugExists(ctx context.Context, q sqlx.ExtContext, slug, ignoreID string) (bool, error)
	Insert(ctx context.Context, q sqlx.ExtContext, post *models.Post) error
	Update(ctx context.Context, q sqlx.ExtContext, post *models.Post) error
	FindByID(ctx context.Context, id string, withTrashed bool) (*models.Post, error)
	FindBySlug(ctx context.Context, slug string) (*models.Post, error)
	List(ctx context.Context, filter models.PostFilter) ([]models.Post, int, error)
	ListVisible(ctx context.Context, categoryID string, now time.Time, page, pageSize int) ([]models.Post, int, error)
	SetStatusBulk(ctx context.Context, ids []string, status models.PostStatus, actorID string) (int64, error)
	SoftDeleteBulk(ctx context.Context, ids []string, actorID string) (int64, error)
	Restore(ctx context.Context, id, actorID string) error
	IncrementViews(ctx context.Context, id string) error
	FindCategory(ctx context.Context, id string) (*models.PostCategory, error)
	ListCategories(ctx context.Context) ([]models.PostCategory, error)
	CountByStatus(ctx context.Context) (map[models.PostStatus]int, error)
}

type postTagSyncer interface {
	Sync(ctx context.Context, q sqlx.ExtContext, tagContext, ownerID, raw string) ([]models.Tag, error)
	TagsFor(ctx context.Context, tagContext, ownerID string) ([]models.Tag, error)
}

type activityRecorder interface {
	Record(ctx context.Context, activity *models.Activity) error
}

type publishNotifier interface {
	PostPublished(post *models.Post)
}

// publicPostsCachePattern matches every cached public listing page.
const publicPostsCachePattern = "posts:public:*"

// CreatePostRequest describes the create payload.
type CreatePostRequest struct {
	CategoryID  string     `json:"category_id" validate:"required"`
	SpaceID     *string    `json:"space_id"`
	Title       string     `json:"title" validate:"required,max=500"`
	TitleEN     string     `json:"title_en" validate:"omitempty,max=500"`
	Summary     *string    `json:"summary"`
	SummaryEN   *string    `json:"summary_en"`
	Content     string     `json:"content" validate:"required"`
	ContentEN   string     `json:"content_en"`
	Slug        string     `json:"slug" validate:"omitempty,max=255"`
	Status      string     `json:"status"`
	Visibility  string     `json:"visibility"`
	SourceType  string     `json:"source_type"`
	SourceURL   *string    `json:"source_url" validate:"omitempty,url"`
	PublishedAt *time.Time `json:"published_at"`
	ExpireAt    *time.Time `json:"expire_at"`
	Pinned      bool       `json:"pinned"`
	Tags        string     `json:"tags"`
}

// UpdatePostRequest describes the update payload.
type UpdatePostRequest struct {
	CategoryID  string     `json:"category_id" validate:"required"`
	SpaceID     *string    `json:"space_id"`
	Title       string     `json:"title" validate:"required,max=500"`
	TitleEN     string     `json:"title_en" validate:"omitempty,max=500"`
	Summary     *string    `json:"summary"`
	SummaryEN   *string    `json:"summary_en"`
	Content     string     `json:"content" validate:"required"`
	ContentEN   string     `json:"content_en"`
	Slug        string     `json:"slug" validate:"omitempty,max=255"`
	Status      string     `json:"status"`
	Visibility  string     `json:"visibility"`
	SourceType  string     `json:"source_type"`
	SourceURL   *string    `json:"source_url" validate:"omitempty,url"`
	PublishedAt *time.Time `json:"published_at"`
	ExpireAt    *time.Time `json:"expire_at"`
	Pinned      bool       `json:"pinned"`
	Tags        string     `json:"tags"`
}

// PublicPostsPage is the cached shape of a public listing page.
type PublicPostsPage struct {
	Posts      []models.Post      `json:"posts"`
	Pagination *models.Pagination `json:"pagination"`
}

// PostService orchestrates the post lifecycle: authorization, slug
// allocation, persistence and tag sync share one transaction; the
// public listing is evaluated against the clock, never rewritten.
type PostService struct {
	repo      postStore
	tags      postTagSyncer
	authz     *AuthzService
	slugs     *SlugAllocator
	cache     *CacheService
	activity  activityRecorder
	notifier  publishNotifier
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
	nowFunc   func() time.Time
}

// NewPostService constructs a PostService.
func NewPostService(repo postStore, tags postTagSyncer, authz *AuthzService, slugs *SlugAllocator, cache *CacheService, activity activityRecorder, notifier publishNotifier, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *PostService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if slugs == nil {
		slugs = NewSlugAllocator(logger)
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &PostService{
		repo:      repo,
		tags:      tags,
		authz:     authz,
		slugs:     slugs,
		cache:     cache,
		activity:  activity,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		cacheTTL:  cacheTTL,
		nowFunc:   func() time.Time { return time.Now().UTC() },
	}
}

// resolvePublishState maps the requested status and publish time onto
// the stored pair. A scheduled post with a future time keeps its time;
// a scheduled post whose time is absent or already past is stored
// published. A published post keeps the requested time as-is, future or
// past, since a published post is visible regardless of its timestamp.
func (s *PostService) resolvePublishState(status models.PostStatus, requestedAt *time.Time, now time.Time) (models.PostStatus, *time.Time) {
	switch status {
	case models.PostStatusDraft:
		return models.PostStatusDraft, nil
	case models.PostStatusScheduled:
		if requestedAt != nil && requestedAt.After(now) {
			return models.PostStatusScheduled, requestedAt
		}
		if requestedAt != nil {
			return models.PostStatusPublished, requestedAt
		}
		return models.PostStatusPublished, &now
	case models.PostStatusPublished:
		if requestedAt != nil {
			return models.PostStatusPublished, requestedAt
		}
		return models.PostStatusPublished, &now
	default:
		return status, requestedAt
	}
}

// parseEnums resolves the request's enum names, logging every
// unrecognized value before falling back to the defaults.
func (s *PostService) parseEnums(statusName, visibilityName, sourceName string) (models.PostStatus, models.PostVisibility, models.PostSourceType) {
	status := models.PostStatusDraft
	if statusName != "" {
		parsed, ok := models.ParsePostStatus(statusName)
		if !ok {
			s.logger.Warn("unrecognized post status, falling back to draft", zap.String("status", statusName))
		}
		status = parsed
	}
	visibility := models.PostVisibilityPublic
	if visibilityName != "" {
		parsed, ok := models.ParsePostVisibility(visibilityName)
		if !ok {
			s.logger.Warn("unrecognized post visibility, falling back to public", zap.String("visibility", visibilityName))
		}
		visibility = parsed
	}
	source := models.PostSourceManual
	if sourceName != "" {
		parsed, ok := models.ParsePostSourceType(sourceName)
		if !ok {
			s.logger.Warn("unrecognized post source type, falling back to manual", zap.String("source_type", sourceName))
		}
		source = parsed
	}
	return status, visibility, source
}

func (s *PostService) validateWindow(status models.PostStatus, publishedAt, expireAt *time.Time) error {
	if status == models.PostStatusScheduled && publishedAt == nil {
		return appErrors.Clone(appErrors.ErrValidation, "scheduled post requires a publish time")
	}
	if expireAt != nil && publishedAt != nil && !expireAt.After(*publishedAt) {
		return appErrors.Clone(appErrors.ErrValidation, "expire time must be after publish time")
	}
	return nil
}

func (s *PostService) ensureCategory(ctx context.Context, id string) error {
	if _, err := s.repo.FindCategory(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrValidation, "unknown post category")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}
	return nil
}

// Create builds and persists a post. All side effects run only after
// authorization and validation pass; slug allocation, the insert and the
// tag sync share one transaction.
func (s *PostService) Create(ctx context.Context, actor *models.User, req CreatePostRequest) (*models.Post, error) {
	if err := s.authz.Authorize(ctx, actor, ActionCreate, nil); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid post payload")
	}
	if err := s.ensureCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	status, visibility, source := s.parseEnums(req.Status, req.Visibility, req.SourceType)
	if err := s.validateWindow(status, req.PublishedAt, req.ExpireAt); err != nil {
		return nil, err
	}

	now := s.nowFunc()
	resolvedStatus, publishedAt := s.resolvePublishState(status, req.PublishedAt, now)

	post := &models.Post{
		CategoryID:  req.CategoryID,
		SpaceID:     req.SpaceID,
		Status:      resolvedStatus,
		Visibility:  visibility,
		SourceType:  source,
		SourceURL:   req.SourceURL,
		PublishedAt: publishedAt,
		ExpireAt:    req.ExpireAt,
		Pinned:      req.Pinned,
		Title:       strings.TrimSpace(req.Title),
		TitleEN:     strings.TrimSpace(req.TitleEN),
		Summary:     req.Summary,
		SummaryEN:   req.SummaryEN,
		Content:     req.Content,
		ContentEN:   req.ContentEN,
		CreatedBy:   actor.ID,
		UpdatedBy:   actor.ID,
	}

	err := s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.persistWithSlug(ctx, tx, post, req.Title, req.Slug, ""); err != nil {
			return err
		}
		tags, err := s.tags.Sync(ctx, tx, models.TagContextPosts, post.ID, req.Tags)
		if err != nil {
			return err
		}
		post.Tags = tags
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidatePublicCache(ctx)
	s.recordActivity(ctx, actor.ID, models.ActivityPostCreated, "post", post.ID, fmt.Sprintf("created post %q", post.Title))
	if s.notifier != nil && post.EffectivelyVisibleAt(now) {
		s.notifier.PostPublished(post)
	}
	return post, nil
}

// Update rewrites a post. Non-admin actors must own it.
func (s *PostService) Update(ctx context.Context, actor *models.User, id string, req UpdatePostRequest) (*models.Post, error) {
	post, err := s.repo.FindByID(ctx, id, false)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}
	if err := s.authz.Authorize(ctx, actor, ActionUpdate, post); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid post payload")
	}
	if err := s.ensureCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	status, visibility, source := s.parseEnums(req.Status, req.Visibility, req.SourceType)
	if err := s.validateWindow(status, req.PublishedAt, req.ExpireAt); err != nil {
		return nil, err
	}

	now := s.nowFunc()
	wasVisible := post.EffectivelyVisibleAt(now)
	resolvedStatus, publishedAt := s.resolvePublishState(status, req.PublishedAt, now)

	post.CategoryID = req.CategoryID
	post.SpaceID = req.SpaceID
	post.Status = resolvedStatus
	post.Visibility = visibility
	post.SourceType = source
	post.SourceURL = req.SourceURL
	post.PublishedAt = publishedAt
	post.ExpireAt = req.ExpireAt
	post.Pinned = req.Pinned
	post.Title = strings.TrimSpace(req.Title)
	post.TitleEN = strings.TrimSpace(req.TitleEN)
	post.Summary = req.Summary
	post.SummaryEN = req.SummaryEN
	post.Content = req.Content
	post.ContentEN = req.ContentEN
	post.UpdatedBy = actor.ID

	err = s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		if req.Slug != "" && req.Slug != post.Slug {
			if err := s.rewriteWithSlug(ctx, tx, post, req.Title, req.Slug); err != nil {
				return err
			}
		} else if err := s.repo.Update(ctx, tx, post); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update post")
		}
		tags, err := s.tags.Sync(ctx, tx, models.TagContextPosts, post.ID, req.Tags)
		if err != nil {
			return err
		}
		post.Tags = tags
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidatePublicCache(ctx)
	s.recordActivity(ctx, actor.ID, models.ActivityPostUpdated, "post", post.ID, fmt.Sprintf("updated post %q", post.Title))
	if s.notifier != nil && !wasVisible && post.EffectivelyVisibleAt(now) {
		s.notifier.PostPublished(post)
	}
	return post, nil
}

// persistWithSlug allocates a slug and inserts the row. A uniqueness
// violation from a concurrent allocation is retried once with a fresh
// slug before surfacing as a conflict.
func (s *PostService) persistWithSlug(ctx context.Context, tx *sqlx.Tx, post *models.Post, title, preferred, ignoreID string) error {
	prober := func(ctx context.Context, candidate string) (bool, error) {
		return s.repo.SlugExists(ctx, tx, candidate, ignoreID)
	}

	slugValue, err := s.slugs.Generate(ctx, title, preferred, prober)
	if err != nil {
		return err
	}
	post.Slug = slugValue

	if err := s.repo.Insert(ctx, tx, post); err == nil {
		return nil
	} else if !repository.IsUniqueViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create post")
	}

	s.logger.Warn("slug collision on insert, retrying once", zap.String("slug", post.Slug))
	slugValue, err = s.slugs.Generate(ctx, title, preferred, prober)
	if err != nil {
		return err
	}
	post.Slug = slugValue
	if err := s.repo.Insert(ctx, tx, post); err != nil {
		if repository.IsUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "slug already in use")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create post")
	}
	return nil
}

// rewriteWithSlug allocates a new slug for an existing post and rewrites
// the row. Like the create path, a uniqueness violation from a
// concurrent allocation is retried once with a fresh slug before
// surfacing as a conflict.
func (s *PostService) rewriteWithSlug(ctx context.Context, tx *sqlx.Tx, post *models.Post, title, preferred string) error {
	prober := func(ctx context.Context, candidate string) (bool, error) {
		return s.repo.SlugExists(ctx, tx, candidate, post.ID)
	}

	slugValue, err := s.slugs.Generate(ctx, title, preferred, prober)
	if err != nil {
		return err
	}
	post.Slug = slugValue

	if err := s.repo.Update(ctx, tx, post); err == nil {
		return nil
	} else if !repository.IsUniqueViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update post")
	}

	s.logger.Warn("slug collision on update, retrying once", zap.String("slug", post.Slug))
	slugValue, err = s.slugs.Generate(ctx, title, preferred, prober)
	if err != nil {
		return err
	}
	post.Slug = slugValue
	if err := s.repo.Update(ctx, tx, post); err != nil {
		if repository.IsUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "slug already in use")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update post")
	}
	return nil
}

// Get returns one post for the management view.
func (s *PostService) Get(ctx context.Context, actor *models.User, id string) (*models.Post, error) {
	post, err := s.repo.FindByID(ctx, id, true)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}
	if err := s.authz.Authorize(ctx, actor, ActionManage, post); err != nil {
		return nil, err
	}
	tags, err := s.tags.TagsFor(ctx, models.TagContextPosts, post.ID)
	if err != nil {
		return nil, err
	}
	post.Tags = tags
	return post, nil
}

// List returns the management listing. Non-admin actors only see their
// own posts.
func (s *PostService) List(ctx context.Context, actor *models.User, filter models.PostFilter) ([]models.Post, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.PrimaryRole() == models.BaseRoleName {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient role for this action")
	}
	if !actor.IsAdmin() {
		filter.CreatedBy = actor.ID
		filter.WithTrashed = false
	}

	posts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list posts")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return posts, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListPublic returns the effectively visible posts at the current
// instant, cached per category and page.
func (s *PostService) ListPublic(ctx context.Context, categoryID string, page, pageSize int) (*PublicPostsPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	key := fmt.Sprintf("posts:public:%s:%d:%d", categoryID, page, pageSize)
	var cached PublicPostsPage
	if s.cache != nil {
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	posts, total, err := s.repo.ListVisible(ctx, categoryID, s.nowFunc(), page, pageSize)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list public posts")
	}
	result := &PublicPostsPage{
		Posts:      posts,
		Pagination: &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total},
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache public posts page", zap.Error(err))
		}
	}
	return result, nil
}

// GetPublicBySlug returns a post for the public site. Anything not
// effectively visible right now reads as not found, and a successful
// read bumps the view counter.
func (s *PostService) GetPublicBySlug(ctx context.Context, slug string) (*models.Post, error) {
	post, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}
	if !post.EffectivelyVisibleAt(s.nowFunc()) || post.Visibility != models.PostVisibilityPublic {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
	}
	if err := s.repo.IncrementViews(ctx, post.ID); err != nil {
		s.logger.Warn("failed to increment views", zap.String("post_id", post.ID), zap.Error(err))
	}
	tags, err := s.tags.TagsFor(ctx, models.TagContextPosts, post.ID)
	if err != nil {
		return nil, err
	}
	post.Tags = tags
	return post, nil
}

// BulkPublish marks the posts published, stamping published_at where
// missing. Admin only.
func (s *PostService) BulkPublish(ctx context.Context, actor *models.User, ids []string) (int64, error) {
	return s.bulkStatus(ctx, actor, ids, models.PostStatusPublished, models.ActivityPostBulkPublished)
}

// BulkUnpublish hides the posts. Admin only.
func (s *PostService) BulkUnpublish(ctx context.Context, actor *models.User, ids []string) (int64, error) {
	return s.bulkStatus(ctx, actor, ids, models.PostStatusHidden, models.ActivityPostBulkUnpublished)
}

func (s *PostService) bulkStatus(ctx context.Context, actor *models.User, ids []string, status models.PostStatus, action string) (int64, error) {
	if err := s.authz.RequireAdmin(actor); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "no post ids given")
	}
	affected, err := s.repo.SetStatusBulk(ctx, ids, status, actor.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update posts")
	}
	s.invalidatePublicCache(ctx)
	s.recordActivity(ctx, actor.ID, action, "post", "", fmt.Sprintf("%d posts affected", affected))
	return affected, nil
}

// BulkDelete soft deletes the posts. Admin only.
func (s *PostService) BulkDelete(ctx context.Context, actor *models.User, ids []string) (int64, error) {
	if err := s.authz.RequireAdmin(actor); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "no post ids given")
	}
	affected, err := s.repo.SoftDeleteBulk(ctx, ids, actor.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete posts")
	}
	s.invalidatePublicCache(ctx)
	s.recordActivity(ctx, actor.ID, models.ActivityPostDeleted, "post", "", fmt.Sprintf("%d posts deleted", affected))
	return affected, nil
}

// Delete soft deletes a single post. Admins or the owner.
func (s *PostService) Delete(ctx context.Context, actor *models.User, id string) error {
	post, err := s.repo.FindByID(ctx, id, false)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}
	if err := s.authz.Authorize(ctx, actor, ActionDelete, post); err != nil {
		return err
	}
	if _, err := s.repo.SoftDeleteBulk(ctx, []string{id}, actor.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete post")
	}
	s.invalidatePublicCache(ctx)
	s.recordActivity(ctx, actor.ID, models.ActivityPostDeleted, "post", id, fmt.Sprintf("deleted post %q", post.Title))
	return nil
}

// Restore clears the soft-delete marker. Admin only.
func (s *PostService) Restore(ctx context.Context, actor *models.User, id string) error {
	if err := s.authz.RequireAdmin(actor); err != nil {
		return err
	}
	if err := s.repo.Restore(ctx, id, actor.ID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore post")
	}
	s.invalidatePublicCache(ctx)
	s.recordActivity(ctx, actor.ID, models.ActivityPostRestored, "post", id, "restored post")
	return nil
}

// Categories returns the visible category tree in display order.
func (s *PostService) Categories(ctx context.Context) ([]models.PostCategory, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	return categories, nil
}

func (s *PostService) invalidatePublicCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, publicPostsCachePattern); err != nil {
		s.logger.Warn("failed to invalidate public posts cache", zap.Error(err))
	}
}

func (s *PostService) recordActivity(ctx context.Context, actorID, action, subjectType, subjectID, description string) {
	if s.activity == nil {
		return
	}
	entry := &models.Activity{
		UserID:      &actorID,
		Action:      action,
		SubjectType: subjectType,
		Description: description,
	}
	if subjectID != "" {
		entry.SubjectID = &subjectID
	}
	if err := s.activity.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record activity", zap.String("action", action), zap.Error(err))
	}
}
