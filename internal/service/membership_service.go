package service

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campusworks/dept-admin-api/internal/models"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

type membershipLedger interface {
	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	GrantsForUserTx(ctx context.Context, q sqlx.ExtContext, userID string) ([]models.RoleGrant, error)
	FindTx(ctx context.Context, q sqlx.ExtContext, id string) (*models.Membership, error)
	Grant(ctx context.Context, q sqlx.ExtContext, membership *models.Membership) error
	SetStatusTx(ctx context.Context, q sqlx.ExtContext, id string, status models.MembershipStatus) error
	ListForUser(ctx context.Context, userID string) ([]models.Membership, error)
}

type membershipRoleRepository interface {
	FindByName(ctx context.Context, name string) (*models.Role, error)
}

// MembershipService manages the role grant ledger. Every mutation
// re-reads the actor's grants inside the same transaction as the write,
// so a concurrently revoked admin cannot slip a change through.
type MembershipService struct {
	memberships membershipLedger
	roles       membershipRoleRepository
	logger      *zap.Logger
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(memberships membershipLedger, roles membershipRoleRepository, logger *zap.Logger) *MembershipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipService{memberships: memberships, roles: roles, logger: logger}
}

// Grant creates an active ledger entry linking the target user to the
// named role. Admin only; a duplicate active grant is a conflict.
func (s *MembershipService) Grant(ctx context.Context, actorID, targetUserID, roleName string, personID *string) (*models.Membership, error) {
	role, err := s.roles.FindByName(ctx, roleName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role name")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve role")
	}

	membership := &models.Membership{
		UserID:   targetUserID,
		RoleID:   role.ID,
		Status:   models.MembershipActive,
		PersonID: personID,
	}

	err = s.memberships.InTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.requireActiveAdmin(ctx, tx, actorID); err != nil {
			return err
		}
		existing, err := s.memberships.GrantsForUserTx(ctx, tx, targetUserID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target grants")
		}
		for _, grant := range existing {
			if grant.RoleName == roleName && grant.Status == models.MembershipActive {
				return appErrors.Clone(appErrors.ErrConflict, "user already holds this role")
			}
		}
		if err := s.memberships.Grant(ctx, tx, membership); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant role")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("role granted",
		zap.String("user_id", targetUserID),
		zap.String("role", roleName),
		zap.String("actor_id", actorID))
	return membership, nil
}

// Deactivate flips a ledger entry to inactive, stamping deactivated_at.
// The entry survives for history; nothing is deleted.
func (s *MembershipService) Deactivate(ctx context.Context, actorID, membershipID string) error {
	return s.setStatus(ctx, actorID, membershipID, models.MembershipInactive)
}

// Activate re-enables an inactive ledger entry, clearing deactivated_at
// and refreshing assigned_at.
func (s *MembershipService) Activate(ctx context.Context, actorID, membershipID string) error {
	return s.setStatus(ctx, actorID, membershipID, models.MembershipActive)
}

func (s *MembershipService) setStatus(ctx context.Context, actorID, membershipID string, status models.MembershipStatus) error {
	err := s.memberships.InTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.requireActiveAdmin(ctx, tx, actorID); err != nil {
			return err
		}

		membership, err := s.memberships.FindTx(ctx, tx, membershipID)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "membership not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
		}
		if membership.Status == status {
			return nil
		}

		// Admins manage non-admins only; an account holding an active
		// admin grant, the actor's own included, stays untouchable here.
		targetGrants, err := s.memberships.GrantsForUserTx(ctx, tx, membership.UserID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target grants")
		}
		if holdsActiveRole(targetGrants, models.RoleNameAdmin) {
			return appErrors.Clone(appErrors.ErrForbidden, "cannot modify memberships of an administrator")
		}

		if err := s.memberships.SetStatusTx(ctx, tx, membershipID, status); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update membership")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("membership status changed",
		zap.String("membership_id", membershipID),
		zap.String("status", string(status)),
		zap.String("actor_id", actorID))
	return nil
}

// ListForUser returns the full ledger for a user, inactive entries
// included.
func (s *MembershipService) ListForUser(ctx context.Context, userID string) ([]models.Membership, error) {
	memberships, err := s.memberships.ListForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list memberships")
	}
	return memberships, nil
}

// requireActiveAdmin re-reads the actor's grants on the transaction and
// denies unless an active admin grant is present right now.
func (s *MembershipService) requireActiveAdmin(ctx context.Context, tx *sqlx.Tx, actorID string) error {
	grants, err := s.memberships.GrantsForUserTx(ctx, tx, actorID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor grants")
	}
	if !holdsActiveRole(grants, models.RoleNameAdmin) {
		return appErrors.Clone(appErrors.ErrForbidden, "administrator role required")
	}
	return nil
}

func holdsActiveRole(grants []models.RoleGrant, roleName string) bool {
	for _, grant := range grants {
		if grant.Status == models.MembershipActive && grant.RoleName == roleName {
			return true
		}
	}
	return false
}
