package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campusworks/dept-admin-api/internal/models"
)

// RoleRepository provides read access to the role catalog. Roles are
// seeded reference data and rarely change.
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository creates a new instance of RoleRepository.
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Hierarchy returns every role ordered by descending priority.
func (r *RoleRepository) Hierarchy(ctx context.Context) ([]models.Role, error) {
	const query = `SELECT id, name, display_name, description, priority, created_at, updated_at FROM roles ORDER BY priority DESC, name ASC`
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles, query); err != nil {
		return nil, fmt.Errorf("load role hierarchy: %w", err)
	}
	return roles, nil
}

// FindByName returns a role by its unique name.
func (r *RoleRepository) FindByName(ctx context.Context, name string) (*models.Role, error) {
	const query = `SELECT id, name, display_name, description, priority, created_at, updated_at FROM roles WHERE name = $1 LIMIT 1`
	var role models.Role
	if err := r.db.GetContext(ctx, &role, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find role by name: %w", err)
	}
	return &role, nil
}

// PriorityOf returns the priority for a role name. The boolean is false
// when the role is unknown so callers can fail closed.
func (r *RoleRepository) PriorityOf(ctx context.Context, name string) (int, bool, error) {
	const query = `SELECT priority FROM roles WHERE name = $1 LIMIT 1`
	var priority int
	if err := r.db.GetContext(ctx, &priority, query, name); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("lookup role priority: %w", err)
	}
	return priority, true, nil
}
