package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/campusworks/dept-admin-api/internal/models"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

// Action names a management operation submitted to Authorize.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// Owned is implemented by resources whose management is restricted to
// their owner (plus admins).
type Owned interface {
	OwnerID() string
}

type roleHierarchyRepository interface {
	Hierarchy(ctx context.Context) ([]models.Role, error)
	PriorityOf(ctx context.Context, name string) (int, bool, error)
}

// AuthzService decides management permissions from the role hierarchy,
// the actor's active memberships and resource ownership. Decisions are
// fail-closed: an unknown role name never grants anything.
type AuthzService struct {
	roles  roleHierarchyRepository
	logger *zap.Logger
}

// NewAuthzService constructs an AuthzService.
func NewAuthzService(roles roleHierarchyRepository, logger *zap.Logger) *AuthzService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthzService{roles: roles, logger: logger}
}

// Hierarchy returns the role ranking, most senior first.
func (s *AuthzService) Hierarchy(ctx context.Context) ([]models.Role, error) {
	roles, err := s.roles.Hierarchy(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role hierarchy")
	}
	return roles, nil
}

// HasRole reports whether the actor holds the named role through an
// active membership.
func (s *AuthzService) HasRole(actor *models.User, name string) bool {
	if actor == nil {
		return false
	}
	return actor.HasRole(name)
}

// HasRoleOrHigher reports whether the actor's most senior active role
// ranks at or above the named role. An unknown role name denies.
func (s *AuthzService) HasRoleOrHigher(ctx context.Context, actor *models.User, name string) (bool, error) {
	if actor == nil {
		return false, nil
	}
	target, ok, err := s.roles.PriorityOf(ctx, name)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve role priority")
	}
	if !ok {
		s.logger.Warn("unknown role name in authorization check", zap.String("role", name))
		return false, nil
	}
	return s.highestActivePriority(actor) >= target, nil
}

// IsHigherThan reports whether role a strictly outranks role b. Either
// name being unknown denies.
func (s *AuthzService) IsHigherThan(ctx context.Context, a, b string) (bool, error) {
	pa, pb, ok, err := s.prioritiesOf(ctx, a, b)
	if err != nil || !ok {
		return false, err
	}
	return pa > pb, nil
}

// IsHigherOrEqual reports whether role a ranks at or above role b.
func (s *AuthzService) IsHigherOrEqual(ctx context.Context, a, b string) (bool, error) {
	pa, pb, ok, err := s.prioritiesOf(ctx, a, b)
	if err != nil || !ok {
		return false, err
	}
	return pa >= pb, nil
}

func (s *AuthzService) prioritiesOf(ctx context.Context, a, b string) (int, int, bool, error) {
	pa, okA, err := s.roles.PriorityOf(ctx, a)
	if err != nil {
		return 0, 0, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve role priority")
	}
	pb, okB, err := s.roles.PriorityOf(ctx, b)
	if err != nil {
		return 0, 0, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve role priority")
	}
	if !okA || !okB {
		s.logger.Warn("unknown role name in comparison",
			zap.String("a", a), zap.String("b", b))
		return 0, 0, false, nil
	}
	return pa, pb, true, nil
}

// highestActivePriority returns the priority of the actor's most senior
// active grant, or -1 when none exists.
func (s *AuthzService) highestActivePriority(actor *models.User) int {
	best := -1
	for _, grant := range actor.Grants {
		if grant.Status != models.MembershipActive {
			continue
		}
		if grant.Priority > best {
			best = grant.Priority
		}
	}
	return best
}

// Authorize decides whether the actor may perform a management action,
// optionally against an owned resource. Admins bypass ownership; an
// actor whose only standing is the base role may manage nothing; other
// staff may act on resources they own, or create new ones. A denial is
// always ErrForbidden, never a not-found.
func (s *AuthzService) Authorize(ctx context.Context, actor *models.User, action Action, resource Owned) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.IsAdmin() {
		return nil
	}
	if actor.PrimaryRole() == models.BaseRoleName {
		return appErrors.Clone(appErrors.ErrForbidden, "insufficient role for this action")
	}
	if resource == nil {
		// Creation of a fresh resource: any active non-base role.
		if action == ActionCreate {
			return nil
		}
		return appErrors.Clone(appErrors.ErrForbidden, "insufficient role for this action")
	}
	if resource.OwnerID() == actor.ID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not the owner of this resource")
}

// RequireAdmin returns nil only for an admin actor.
func (s *AuthzService) RequireAdmin(actor *models.User) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "administrator role required")
	}
	return nil
}

// ManagedUsersFilter returns the account-listing scope for an actor:
// admins see every non-admin, teachers see base-role accounts only,
// everyone else sees nothing.
func (s *AuthzService) ManagedUsersFilter(actor *models.User) models.ManagedScope {
	if actor == nil {
		return models.ManagedScopeNone
	}
	switch {
	case actor.IsAdmin():
		return models.ManagedScopeNonAdmins
	case actor.IsTeacher():
		return models.ManagedScopeBaseOnly
	default:
		return models.ManagedScopeNone
	}
}
