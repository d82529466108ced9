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

const tagColumns = `id, context, name, slug, description, sort_order, active, last_used_at, created_at, updated_at`

// TagRepository provides database access for context-scoped tags and
// their associations. Sync-path methods take a sqlx.ExtContext so they
// run inside the owning resource's transaction.
type TagRepository struct {
	db *sqlx.DB
}

// NewTagRepository creates a new instance of TagRepository.
func NewTagRepository(db *sqlx.DB) *TagRepository {
	return &TagRepository{db: db}
}

// assocTable maps a tag context to its association table and owner
// column. Unknown contexts return empty strings; callers treat that as
// a validation failure.
func assocTable(tagContext string) (table, ownerColumn string) {
	switch tagContext {
	case models.TagContextPosts:
		return "post_tags", "post_id"
	case models.TagContextLabs:
		return "lab_tags", "lab_id"
	case models.TagContextProjects:
		return "project_tags", "project_id"
	}
	return "", ""
}

// FindByName matches a tag within a context case-insensitively.
func (r *TagRepository) FindByName(ctx context.Context, q sqlx.ExtContext, tagContext, name string) (*models.Tag, error) {
	query := fmt.Sprintf(`SELECT %s FROM tags WHERE context = $1 AND LOWER(name) = LOWER($2) LIMIT 1`, tagColumns)
	var tag models.Tag
	if err := sqlx.GetContext(ctx, q, &tag, query, tagContext, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find tag by name: %w", err)
	}
	return &tag, nil
}

// SlugExists probes the slug column within a context.
func (r *TagRepository) SlugExists(ctx context.Context, q sqlx.ExtContext, tagContext, slug, ignoreID string) (bool, error) {
	var exists bool
	var err error
	if ignoreID != "" {
		err = sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM tags WHERE context = $1 AND slug = $2 AND id <> $3)`, tagContext, slug, ignoreID)
	} else {
		err = sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM tags WHERE context = $1 AND slug = $2)`, tagContext, slug)
	}
	if err != nil {
		return false, fmt.Errorf("probe tag slug: %w", err)
	}
	return exists, nil
}

// Insert persists a new tag.
func (r *TagRepository) Insert(ctx context.Context, q sqlx.ExtContext, tag *models.Tag) error {
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tag.CreatedAt = now
	tag.UpdatedAt = now

	const query = `INSERT INTO tags (id, context, name, slug, description, sort_order, active, last_used_at, created_at, updated_at) VALUES (:id, :context, :name, :slug, :description, :sort_order, :active, :last_used_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, tag); err != nil {
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

// TouchUsage refreshes the last_used_at marker on a set of tags.
func (r *TagRepository) TouchUsage(ctx context.Context, q sqlx.ExtContext, tagIDs []string, at time.Time) error {
	if len(tagIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE tags SET last_used_at = ?, updated_at = ? WHERE id IN (?)`, at, at, tagIDs)
	if err != nil {
		return fmt.Errorf("touch usage query: %w", err)
	}
	if _, err := q.ExecContext(ctx, q.Rebind(query), args...); err != nil {
		return fmt.Errorf("touch tag usage: %w", err)
	}
	return nil
}

// ReplaceAssociations rewrites the tag set attached to an owner row.
// The association table comes from the tag context.
func (r *TagRepository) ReplaceAssociations(ctx context.Context, q sqlx.ExtContext, tagContext, ownerID string, tagIDs []string) error {
	table, ownerColumn := assocTable(tagContext)
	if table == "" {
		return fmt.Errorf("replace associations: unknown tag context %q", tagContext)
	}

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, ownerColumn)
	if _, err := q.ExecContext(ctx, deleteQuery, ownerID); err != nil {
		return fmt.Errorf("clear tag associations: %w", err)
	}

	insertQuery := fmt.Sprintf(`INSERT INTO %s (%s, tag_id) VALUES ($1, $2)`, table, ownerColumn)
	for _, tagID := range tagIDs {
		if _, err := q.ExecContext(ctx, insertQuery, ownerID, tagID); err != nil {
			return fmt.Errorf("attach tag: %w", err)
		}
	}
	return nil
}

// ListForOwner returns the tags attached to an owner row, in name order.
func (r *TagRepository) ListForOwner(ctx context.Context, tagContext, ownerID string) ([]models.Tag, error) {
	table, ownerColumn := assocTable(tagContext)
	if table == "" {
		return nil, fmt.Errorf("list tags: unknown tag context %q", tagContext)
	}

	listColumns := "t." + strings.ReplaceAll(tagColumns, ", ", ", t.")
	query := fmt.Sprintf(`SELECT %s FROM tags t JOIN %s a ON a.tag_id = t.id WHERE a.%s = $1 ORDER BY t.name ASC`, listColumns, table, ownerColumn)

	var tags []models.Tag
	if err := r.db.SelectContext(ctx, &tags, query, ownerID); err != nil {
		return nil, fmt.Errorf("list tags for owner: %w", err)
	}
	return tags, nil
}

// List returns tags matching the filter with a total count.
func (r *TagRepository) List(ctx context.Context, filter models.TagFilter) ([]models.Tag, int, error) {
	baseQuery := `FROM tags t WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Context != "" {
		conditions = append(conditions, fmt.Sprintf("t.context = $%d", len(args)+1))
		args = append(args, filter.Context)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(t.name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
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
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listColumns := "t." + strings.ReplaceAll(tagColumns, ", ", ", t.")
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY t.sort_order ASC, t.name ASC LIMIT %d OFFSET %d", listColumns, baseQuery, pageSize, offset)

	var tags []models.Tag
	if err := r.db.SelectContext(ctx, &tags, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list tags: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count tags: %w", err)
	}

	return tags, total, nil
}

// FindByID returns a tag by identifier.
func (r *TagRepository) FindByID(ctx context.Context, id string) (*models.Tag, error) {
	query := fmt.Sprintf(`SELECT %s FROM tags WHERE id = $1 LIMIT 1`, tagColumns)
	var tag models.Tag
	if err := r.db.GetContext(ctx, &tag, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find tag: %w", err)
	}
	return &tag, nil
}

// Merge repoints every association of the source tag onto the target
// and deletes the source. Both tags must share a context.
func (r *TagRepository) Merge(ctx context.Context, tx *sqlx.Tx, tagContext, sourceID, targetID string) error {
	table, ownerColumn := assocTable(tagContext)
	if table == "" {
		return fmt.Errorf("merge tags: unknown tag context %q", tagContext)
	}

	// Rows where the owner already carries the target would collide on
	// the association primary key; drop them first.
	dropQuery := fmt.Sprintf(`DELETE FROM %s src WHERE src.tag_id = $1 AND EXISTS (SELECT 1 FROM %s dst WHERE dst.%s = src.%s AND dst.tag_id = $2)`, table, table, ownerColumn, ownerColumn)
	if _, err := tx.ExecContext(ctx, dropQuery, sourceID, targetID); err != nil {
		return fmt.Errorf("merge tags: drop overlaps: %w", err)
	}

	repointQuery := fmt.Sprintf(`UPDATE %s SET tag_id = $2 WHERE tag_id = $1`, table)
	if _, err := tx.ExecContext(ctx, repointQuery, sourceID, targetID); err != nil {
		return fmt.Errorf("merge tags: repoint: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = $1`, sourceID); err != nil {
		return fmt.Errorf("merge tags: delete source: %w", err)
	}
	return nil
}

// OwnersOf returns the owner row identifiers currently carrying a tag.
func (r *TagRepository) OwnersOf(ctx context.Context, q sqlx.ExtContext, tagContext, tagID string) ([]string, error) {
	table, ownerColumn := assocTable(tagContext)
	if table == "" {
		return nil, fmt.Errorf("owners of tag: unknown tag context %q", tagContext)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tag_id = $1`, ownerColumn, table)
	var owners []string
	if err := sqlx.SelectContext(ctx, q, &owners, query, tagID); err != nil {
		return nil, fmt.Errorf("owners of tag: %w", err)
	}
	return owners, nil
}

// Attach adds a single association, ignoring duplicates.
func (r *TagRepository) Attach(ctx context.Context, q sqlx.ExtContext, tagContext, ownerID, tagID string) error {
	table, ownerColumn := assocTable(tagContext)
	if table == "" {
		return fmt.Errorf("attach tag: unknown tag context %q", tagContext)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, table, ownerColumn)
	if _, err := q.ExecContext(ctx, query, ownerID, tagID); err != nil {
		return fmt.Errorf("attach tag: %w", err)
	}
	return nil
}

// SetActive toggles the active flag on a tag.
func (r *TagRepository) SetActive(ctx context.Context, q sqlx.ExtContext, id string, active bool) error {
	const query = `UPDATE tags SET active = $2, updated_at = $3 WHERE id = $1`
	if _, err := q.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("set tag active: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction, committing on nil and rolling back
// on error or panic.
func (r *TagRepository) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
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
