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

const projectColumns = `id, slug, title, title_en, summary, principal_investigator_id, funding_source, starts_on, ends_on, created_at, updated_at, deleted_at`

// ProjectRepository provides database access for research projects.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository creates a new instance of ProjectRepository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// InTx runs fn inside a transaction, committing on nil and rolling back
// on error or panic.
func (r *ProjectRepository) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
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

// SlugExists probes the slug column, optionally ignoring one row.
func (r *ProjectRepository) SlugExists(ctx context.Context, q sqlx.ExtContext, slug, ignoreID string) (bool, error) {
	var exists bool
	var err error
	if ignoreID != "" {
		err = sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM projects WHERE slug = $1 AND id <> $2)`, slug, ignoreID)
	} else {
		err = sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM projects WHERE slug = $1)`, slug)
	}
	if err != nil {
		return false, fmt.Errorf("probe project slug: %w", err)
	}
	return exists, nil
}

// Insert persists a new project.
func (r *ProjectRepository) Insert(ctx context.Context, q sqlx.ExtContext, project *models.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now

	const query = `INSERT INTO projects (id, slug, title, title_en, summary, principal_investigator_id, funding_source, starts_on, ends_on, created_at, updated_at) VALUES (:id, :slug, :title, :title_en, :summary, :principal_investigator_id, :funding_source, :starts_on, :ends_on, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, project); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of a project.
func (r *ProjectRepository) Update(ctx context.Context, q sqlx.ExtContext, project *models.Project) error {
	project.UpdatedAt = time.Now().UTC()
	const query = `UPDATE projects SET slug = :slug, title = :title, title_en = :title_en, summary = :summary, principal_investigator_id = :principal_investigator_id, funding_source = :funding_source, starts_on = :starts_on, ends_on = :ends_on, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	res, err := sqlx.NamedExecContext(ctx, q, query, project)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID returns a non-deleted project by identifier.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*models.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE id = $1 AND deleted_at IS NULL LIMIT 1`, projectColumns)
	var project models.Project
	if err := r.db.GetContext(ctx, &project, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find project by id: %w", err)
	}
	return &project, nil
}

// List returns projects matching the filter with a total count.
func (r *ProjectRepository) List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, int, error) {
	baseQuery := `FROM projects pr WHERE pr.deleted_at IS NULL`
	var conditions []string
	var args []interface{}

	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("pr.principal_investigator_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if filter.Keyword != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(pr.title) LIKE $%d OR LOWER(pr.title_en) LIKE $%d)", n, n))
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

	listColumns := "pr." + strings.ReplaceAll(projectColumns, ", ", ", pr.")
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY pr.starts_on DESC NULLS LAST, pr.created_at DESC LIMIT %d OFFSET %d", listColumns, baseQuery, pageSize, offset)

	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	return projects, total, nil
}

// SoftDelete stamps deleted_at on a project.
func (r *ProjectRepository) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	const query = `UPDATE projects SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("soft delete project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete project: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Count returns the number of non-deleted projects.
func (r *ProjectRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM projects WHERE deleted_at IS NULL`); err != nil {
		return 0, fmt.Errorf("count projects: %w", err)
	}
	return total, nil
}
