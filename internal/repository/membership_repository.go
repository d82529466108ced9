package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusworks/dept-admin-api/internal/models"
)

// MembershipRepository manages the role grant ledger. Mutating methods
// take a sqlx.ExtContext so the authorization read and the status write
// can share one transaction.
type MembershipRepository struct {
	db *sqlx.DB
}

// NewMembershipRepository creates a new instance of MembershipRepository.
func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// InTx runs fn inside a transaction, committing on nil and rolling back
// on error or panic.
func (r *MembershipRepository) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
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

// GrantsForUser returns all role grants for a user, most senior first.
func (r *MembershipRepository) GrantsForUser(ctx context.Context, userID string) ([]models.RoleGrant, error) {
	return r.GrantsForUserTx(ctx, r.db, userID)
}

// GrantsForUserTx is GrantsForUser on an arbitrary querier, usable
// inside transactions.
func (r *MembershipRepository) GrantsForUserTx(ctx context.Context, q sqlx.ExtContext, userID string) ([]models.RoleGrant, error) {
	const query = `
		SELECT ur.id AS membership_id, ro.name AS role_name, ro.priority, ur.status
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY ro.priority DESC`
	var grants []models.RoleGrant
	if err := sqlx.SelectContext(ctx, q, &grants, query, userID); err != nil {
		return nil, fmt.Errorf("load grants: %w", err)
	}
	return grants, nil
}

// Find returns a membership entry by identifier.
func (r *MembershipRepository) Find(ctx context.Context, id string) (*models.Membership, error) {
	return r.FindTx(ctx, r.db, id)
}

// FindTx is Find on an arbitrary querier.
func (r *MembershipRepository) FindTx(ctx context.Context, q sqlx.ExtContext, id string) (*models.Membership, error) {
	const query = `SELECT id, user_id, role_id, status, assigned_at, deactivated_at, person_id, created_at, updated_at FROM user_roles WHERE id = $1 LIMIT 1`
	var membership models.Membership
	if err := sqlx.GetContext(ctx, q, &membership, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find membership: %w", err)
	}
	return &membership, nil
}

// FindActive returns the active membership linking a user to a role, if
// one exists.
func (r *MembershipRepository) FindActive(ctx context.Context, q sqlx.ExtContext, userID, roleID string) (*models.Membership, error) {
	const query = `SELECT id, user_id, role_id, status, assigned_at, deactivated_at, person_id, created_at, updated_at FROM user_roles WHERE user_id = $1 AND role_id = $2 AND status = 'active' LIMIT 1`
	var membership models.Membership
	if err := sqlx.GetContext(ctx, q, &membership, query, userID, roleID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active membership: %w", err)
	}
	return &membership, nil
}

// Grant inserts a new ledger entry. A fresh entry is always created;
// reactivation of an inactive grant goes through SetStatusTx instead.
func (r *MembershipRepository) Grant(ctx context.Context, q sqlx.ExtContext, membership *models.Membership) error {
	if membership.ID == "" {
		membership.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if membership.AssignedAt.IsZero() {
		membership.AssignedAt = now
	}
	membership.CreatedAt = now
	membership.UpdatedAt = now
	if membership.Status == "" {
		membership.Status = models.MembershipActive
	}

	const query = `INSERT INTO user_roles (id, user_id, role_id, status, assigned_at, deactivated_at, person_id, created_at, updated_at) VALUES (:id, :user_id, :role_id, :status, :assigned_at, :deactivated_at, :person_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, membership); err != nil {
		return fmt.Errorf("grant membership: %w", err)
	}
	return nil
}

// SetStatusTx toggles a ledger entry. Deactivation stamps
// deactivated_at; reactivation clears it and refreshes assigned_at.
func (r *MembershipRepository) SetStatusTx(ctx context.Context, q sqlx.ExtContext, id string, status models.MembershipStatus) error {
	now := time.Now().UTC()

	var query string
	if status == models.MembershipInactive {
		query = `UPDATE user_roles SET status = $2, deactivated_at = $3, updated_at = $3 WHERE id = $1`
	} else {
		query = `UPDATE user_roles SET status = $2, deactivated_at = NULL, assigned_at = $3, updated_at = $3 WHERE id = $1`
	}

	res, err := q.ExecContext(ctx, query, id, status, now)
	if err != nil {
		return fmt.Errorf("set membership status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set membership status: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListForUser returns the full ledger for a user, including inactive
// entries, newest assignment first.
func (r *MembershipRepository) ListForUser(ctx context.Context, userID string) ([]models.Membership, error) {
	const query = `SELECT id, user_id, role_id, status, assigned_at, deactivated_at, person_id, created_at, updated_at FROM user_roles WHERE user_id = $1 ORDER BY assigned_at DESC`
	var memberships []models.Membership
	if err := r.db.SelectContext(ctx, &memberships, query, userID); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return memberships, nil
}

// CountActiveByRole returns active membership counts keyed by role name.
func (r *MembershipRepository) CountActiveByRole(ctx context.Context) (map[string]int, error) {
	const query = `
		SELECT ro.name AS role_name, COUNT(*) AS total
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.status = 'active'
		GROUP BY ro.name`
	rows := []struct {
		RoleName string `db:"role_name"`
		Total    int    `db:"total"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count memberships by role: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.RoleName] = row.Total
	}
	return counts, nil
}
