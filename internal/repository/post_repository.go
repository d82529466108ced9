package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusworks/dept-admin-api/internal/models"
)

const postColumns = `id, category_id, space_id, slug, status, visibility, source_type, source_url, published_at, expire_at, pinned, title, title_en, summary, summary_en, content, content_en, views, created_by, updated_by, created_at, updated_at, deleted_at`

// PostRepository provides database access for posts and categories.
// Write methods take a sqlx.ExtContext so slug allocation, the insert
// and the tag sync can run inside one transaction.
type PostRepository struct {
	db *sqlx.DB
}

// NewPostRepository creates a new instance of PostRepository.
func NewPostRepository(db *sqlx.DB) *PostRepository {
	return &PostRepository{db: db}
}

// InTx runs fn inside a transaction, committing on nil and rolling back
// on error or panic.
func (r *PostRepository) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SlugExists probes the slug column, optionally ignoring one row so an
// update does not collide with itself. Soft-deleted rows still reserve
// their slug.
func (r *PostRepository) SlugExists(ctx context.Context, q sqlx.ExtContext, slug, ignoreID string) (bool, error) {
	var exists bool
	var err error
	if ignoreID != "" {
		err = sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM posts WHERE slug = $1 AND id <> $2)`, slug, ignoreID)
	} else {
		err = sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM posts WHERE slug = $1)`, slug)
	}
	if err != nil {
		return false, fmt.Errorf("probe slug: %w", err)
	}
	return exists, nil
}

// Insert persists a new post.
func (r *PostRepository) Insert(ctx context.Context, q sqlx.ExtContext, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now

	const query = `INSERT INTO posts (id, category_id, space_id, slug, status, visibility, source_type, source_url, published_at, expire_at, pinned, title, title_en, summary, summary_en, content, content_en, views, created_by, updated_by, created_at, updated_at)
		VALUES (:id, :category_id, :space_id, :slug, :status, :visibility, :source_type, :source_url, :published_at, :expire_at, :pinned, :title, :title_en, :summary, :summary_en, :content, :content_en, :views, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, post); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of a post.
func (r *PostRepository) Update(ctx context.Context, q sqlx.ExtContext, post *models.Post) error {
	post.UpdatedAt = time.Now().UTC()
	const query = `UPDATE posts SET category_id = :category_id, space_id = :space_id, slug = :slug, status = :status, visibility = :visibility, source_type = :source_type, source_url = :source_url, published_at = :published_at, expire_at = :expire_at, pinned = :pinned, title = :title, title_en = :title_en, summary = :summary, summary_en = :summary_en, content = :content, content_en = :content_en, updated_by = :updated_by, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	res, err := sqlx.NamedExecContext(ctx, q, query, post)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID returns a post by identifier. Soft-deleted posts are
// excluded unless withTrashed is set.
func (r *PostRepository) FindByID(ctx context.Context, id string, withTrashed bool) (*models.Post, error) {
	query := fmt.Sprintf(`SELECT %s FROM posts WHERE id = $1`, postColumns)
	if !withTrashed {
		query += ` AND deleted_at IS NULL`
	}
	var post models.Post
	if err := r.db.GetContext(ctx, &post, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find post by id: %w", err)
	}
	return &post, nil
}

// FindBySlug returns a non-deleted post by slug.
func (r *PostRepository) FindBySlug(ctx context.Context, slug string) (*models.Post, error) {
	query := fmt.Sprintf(`SELECT %s FROM posts WHERE slug = $1 AND deleted_at IS NULL LIMIT 1`, postColumns)
	var post models.Post
	if err := r.db.GetContext(ctx, &post, query, slug); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find post by slug: %w", err)
	}
	return &post, nil
}

// List returns posts for the management view with a total count. All
// stored statuses are listable here; visibility gating belongs to the
// public listing.
func (r *PostRepository) List(ctx context.Context, filter models.PostFilter) ([]models.Post, int, error) {
	baseQuery := `FROM posts p WHERE 1=1`
	var conditions []string
	var args []interface{}

	if !filter.WithTrashed {
		conditions = append(conditions, "p.deleted_at IS NULL")
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.CategoryID != "" {
		conditions = append(conditions, fmt.Sprintf("p.category_id = $%d", len(args)+1))
		args = append(args, filter.CategoryID)
	}
	if filter.CreatedBy != "" {
		conditions = append(conditions, fmt.Sprintf("p.created_by = $%d", len(args)+1))
		args = append(args, filter.CreatedBy)
	}
	if filter.Tag != "" {
		conditions = append(conditions, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM post_tags pt JOIN tags t ON t.id = pt.tag_id WHERE pt.post_id = p.id AND t.slug = $%d)`,
			len(args)+1))
		args = append(args, filter.Tag)
	}
	if filter.Keyword != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(p.title) LIKE $%d OR LOWER(p.title_en) LIKE $%d OR LOWER(p.content) LIKE $%d)", n, n, n))
		args = append(args, "%"+strings.ToLower(filter.Keyword)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listColumns := "p." + strings.ReplaceAll(postColumns, ", ", ", p.")
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY p.pinned DESC, p.published_at DESC NULLS LAST, p.created_at DESC LIMIT %d OFFSET %d", listColumns, baseQuery, pageSize, offset)

	var posts []models.Post
	if err := r.db.SelectContext(ctx, &posts, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	return posts, total, nil
}

// ListVisible returns the public-audience posts effectively visible at
// now: published posts, plus scheduled posts whose publish time has
// passed. Internal and private posts never appear here. Stored rows are
// never rewritten by this read.
func (r *PostRepository) ListVisible(ctx context.Context, categoryID string, now time.Time, page, pageSize int) ([]models.Post, int, error) {
	baseQuery := `FROM posts p WHERE p.deleted_at IS NULL
		AND p.visibility = $2
		AND (p.expire_at IS NULL OR p.expire_at > $1)
		AND (p.status = $3 OR (p.status = $4 AND p.published_at IS NOT NULL AND p.published_at <= $1))`
	args := []interface{}{now, models.PostVisibilityPublic, models.PostStatusPublished, models.PostStatusScheduled}

	if categoryID != "" {
		baseQuery += fmt.Sprintf(" AND p.category_id = $%d", len(args)+1)
		args = append(args, categoryID)
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listColumns := "p." + strings.ReplaceAll(postColumns, ", ", ", p.")
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY p.pinned DESC, p.published_at DESC NULLS LAST, p.created_at DESC LIMIT %d OFFSET %d", listColumns, baseQuery, pageSize, offset)

	var posts []models.Post
	if err := r.db.SelectContext(ctx, &posts, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list visible posts: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count visible posts: %w", err)
	}

	return posts, total, nil
}

// SetStatusBulk rewrites the status of a set of posts. Publishing stamps
// published_at when the column is still empty.
func (r *PostRepository) SetStatusBulk(ctx context.Context, ids []string, status models.PostStatus, actorID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()

	var query string
	var args []interface{}
	if status == models.PostStatusPublished {
		query = `UPDATE posts SET status = ?, published_at = COALESCE(published_at, ?), updated_by = ?, updated_at = ? WHERE id IN (?) AND deleted_at IS NULL`
		args = []interface{}{status, now, actorID, now, ids}
	} else {
		query = `UPDATE posts SET status = ?, updated_by = ?, updated_at = ? WHERE id IN (?) AND deleted_at IS NULL`
		args = []interface{}{status, actorID, now, ids}
	}

	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk status query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), inArgs...)
	if err != nil {
		return 0, fmt.Errorf("bulk set status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk set status: %w", err)
	}
	return affected, nil
}

// SoftDeleteBulk stamps deleted_at on a set of posts.
func (r *PostRepository) SoftDeleteBulk(ctx context.Context, ids []string, actorID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	query, args, err := sqlx.In(`UPDATE posts SET deleted_at = ?, updated_by = ?, updated_at = ? WHERE id IN (?) AND deleted_at IS NULL`, now, actorID, now, ids)
	if err != nil {
		return 0, fmt.Errorf("bulk delete query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("bulk soft delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk soft delete: %w", err)
	}
	return affected, nil
}

// Restore clears the soft-delete marker on a post.
func (r *PostRepository) Restore(ctx context.Context, id, actorID string) error {
	now := time.Now().UTC()
	const query = `UPDATE posts SET deleted_at = NULL, updated_by = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, actorID, now)
	if err != nil {
		return fmt.Errorf("restore post: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("restore post: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IncrementViews bumps the view counter without touching updated_at.
func (r *PostRepository) IncrementViews(ctx context.Context, id string) error {
	const query = `UPDATE posts SET views = views + 1 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	return nil
}

// CountByStatus returns post counts keyed by stored status.
func (r *PostRepository) CountByStatus(ctx context.Context) (map[models.PostStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS total FROM posts WHERE deleted_at IS NULL GROUP BY status`
	rows := []struct {
		Status models.PostStatus `db:"status"`
		Total  int               `db:"total"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count posts by status: %w", err)
	}
	counts := make(map[models.PostStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// FindCategory returns a visible category by identifier.
func (r *PostRepository) FindCategory(ctx context.Context, id string) (*models.PostCategory, error) {
	const query = `SELECT id, parent_id, slug, name, name_en, sort_order, visible, created_at, updated_at, deleted_at FROM post_categories WHERE id = $1 AND deleted_at IS NULL LIMIT 1`
	var category models.PostCategory
	if err := r.db.GetContext(ctx, &category, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find category: %w", err)
	}
	return &category, nil
}

// ListCategories returns the visible categories in display order.
func (r *PostRepository) ListCategories(ctx context.Context) ([]models.PostCategory, error) {
	const query = `SELECT id, parent_id, slug, name, name_en, sort_order, visible, created_at, updated_at, deleted_at FROM post_categories WHERE deleted_at IS NULL AND visible = TRUE ORDER BY sort_order ASC, name ASC`
	var categories []models.PostCategory
	if err := r.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}
