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

const labColumns = `id, slug, name, name_en, description, principal_investigator_id, location, website, created_at, updated_at, deleted_at`

// LabRepository provides database access for research labs.
type LabRepository struct {
	db *sqlx.DB
}

// NewLabRepository creates a new instance of LabRepository.
func NewLabRepository(db *sqlx.DB) *LabRepository {
	return &LabRepository{db: db}
}

// InTx runs fn inside a transaction, committing on nil and rolling back
// on error or panic.
func (r *LabRepository) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
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
func (r *LabRepository) SlugExists(ctx context.Context, q sqlx.ExtContext, slug, ignoreID string) (bool, error) {
	var exists bool
	var err error
	if ignoreID != "" {
		err = sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM labs WHERE slug = $1 AND id <> $2)`, slug, ignoreID)
	} else {
		err = sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM labs WHERE slug = $1)`, slug)
	}
	if err != nil {
		return false, fmt.Errorf("probe lab slug: %w", err)
	}
	return exists, nil
}

// Insert persists a new lab.
func (r *LabRepository) Insert(ctx context.Context, q sqlx.ExtContext, lab *models.Lab) error {
	if lab.ID == "" {
		lab.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lab.CreatedAt = now
	lab.UpdatedAt = now

	const query = `INSERT INTO labs (id, slug, name, name_en, description, principal_investigator_id, location, website, created_at, updated_at) VALUES (:id, :slug, :name, :name_en, :description, :principal_investigator_id, :location, :website, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, lab); err != nil {
		return fmt.Errorf("insert lab: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of a lab.
func (r *LabRepository) Update(ctx context.Context, q sqlx.ExtContext, lab *models.Lab) error {
	lab.UpdatedAt = time.Now().UTC()
	const query = `UPDATE labs SET slug = :slug, name = :name, name_en = :name_en, description = :description, principal_investigator_id = :principal_investigator_id, location = :location, website = :website, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	res, err := sqlx.NamedExecContext(ctx, q, query, lab)
	if err != nil {
		return fmt.Errorf("update lab: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update lab: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID returns a non-deleted lab by identifier.
func (r *LabRepository) FindByID(ctx context.Context, id string) (*models.Lab, error) {
	query := fmt.Sprintf(`SELECT %s FROM labs WHERE id = $1 AND deleted_at IS NULL LIMIT 1`, labColumns)
	var lab models.Lab
	if err := r.db.GetContext(ctx, &lab, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lab by id: %w", err)
	}
	return &lab, nil
}

// List returns labs matching the filter with a total count.
func (r *LabRepository) List(ctx context.Context, filter models.LabFilter) ([]models.Lab, int, error) {
	baseQuery := `FROM labs l WHERE l.deleted_at IS NULL`
	var conditions []string
	var args []interface{}

	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("l.principal_investigator_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if filter.Keyword != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(l.name) LIKE $%d OR LOWER(l.name_en) LIKE $%d)", n, n))
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

	listColumns := "l." + strings.ReplaceAll(labColumns, ", ", ", l.")
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY l.name ASC LIMIT %d OFFSET %d", listColumns, baseQuery, pageSize, offset)

	var labs []models.Lab
	if err := r.db.SelectContext(ctx, &labs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list labs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count labs: %w", err)
	}

	return labs, total, nil
}

// SoftDelete stamps deleted_at on a lab.
func (r *LabRepository) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	const query = `UPDATE labs SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("soft delete lab: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete lab: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Count returns the number of non-deleted labs.
func (r *LabRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM labs WHERE deleted_at IS NULL`); err != nil {
		return 0, fmt.Errorf("count labs: %w", err)
	}
	return total, nil
}
