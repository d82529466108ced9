package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/dept-admin-api/internal/models"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

type stubRoleRepo struct {
	roles map[string]int
}

func newStubRoleRepo() *stubRoleRepo {
	return &stubRoleRepo{roles: map[string]int{
		models.RoleNameAdmin:   100,
		models.RoleNameTeacher: 80,
		models.RoleNameStaff:   60,
		models.RoleNameUser:    20,
	}}
}

func (s *stubRoleRepo) Hierarchy(ctx context.Context) ([]models.Role, error) {
	var out []models.Role
	for name, priority := range s.roles {
		out = append(out, models.Role{Name: name, Priority: priority})
	}
	return out, nil
}

func (s *stubRoleRepo) PriorityOf(ctx context.Context, name string) (int, bool, error) {
	p, ok := s.roles[name]
	return p, ok, nil
}

func userWithRoles(id string, roles ...string) *models.User {
	priorities := map[string]int{
		models.RoleNameAdmin:   100,
		models.RoleNameTeacher: 80,
		models.RoleNameStaff:   60,
		models.RoleNameUser:    20,
	}
	u := &models.User{ID: id, Status: models.UserStatusActive}
	for i, role := range roles {
		u.Grants = append(u.Grants, models.RoleGrant{
			MembershipID: string(rune('a' + i)),
			RoleName:     role,
			Priority:     priorities[role],
			Status:       models.MembershipActive,
		})
	}
	return u
}

type ownedResource struct{ owner string }

func (o ownedResource) OwnerID() string { return o.owner }

func TestHasRoleOrHigher(t *testing.T) {
	svc := NewAuthzService(newStubRoleRepo(), nil)
	ctx := context.Background()

	admin := userWithRoles("u1", models.RoleNameAdmin)
	teacher := userWithRoles("u2", models.RoleNameTeacher)
	base := userWithRoles("u3", models.RoleNameUser)

	ok, err := svc.HasRoleOrHigher(ctx, admin, models.RoleNameTeacher)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasRoleOrHigher(ctx, teacher, models.RoleNameTeacher)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasRoleOrHigher(ctx, base, models.RoleNameStaff)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasRoleOrHigherUnknownRoleDenies(t *testing.T) {
	svc := NewAuthzService(newStubRoleRepo(), nil)

	admin := userWithRoles("u1", models.RoleNameAdmin)
	ok, err := svc.HasRoleOrHigher(context.Background(), admin, "superuser")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInactiveMembershipDoesNotCount(t *testing.T) {
	svc := NewAuthzService(newStubRoleRepo(), nil)

	u := &models.User{ID: "u1", Status: models.UserStatusActive, Grants: []models.RoleGrant{
		{MembershipID: "m1", RoleName: models.RoleNameTeacher, Priority: 80, Status: models.MembershipInactive},
		{MembershipID: "m2", RoleName: models.RoleNameUser, Priority: 20, Status: models.MembershipActive},
	}}

	ok, err := svc.HasRoleOrHigher(context.Background(), u, models.RoleNameTeacher)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.RoleNameUser, u.PrimaryRole())
}

func TestIsHigherThan(t *testing.T) {
	svc := NewAuthzService(newStubRoleRepo(), nil)
	ctx := context.Background()

	higher, err := svc.IsHigherThan(ctx, models.RoleNameAdmin, models.RoleNameTeacher)
	require.NoError(t, err)
	assert.True(t, higher)

	higher, err = svc.IsHigherThan(ctx, models.RoleNameTeacher, models.RoleNameTeacher)
	require.NoError(t, err)
	assert.False(t, higher)

	higher, err = svc.IsHigherThan(ctx, models.RoleNameTeacher, "nonexistent")
	require.NoError(t, err)
	assert.False(t, higher)
}

func TestAuthorizeAdminBypassesOwnership(t *testing.T) {
	svc := NewAuthzService(newStubRoleRepo(), nil)

	admin := userWithRoles("admin", models.RoleNameAdmin)
	err := svc.Authorize(context.Background(), admin, ActionDelete, ownedResource{owner: "someone-else"})
	assert.NoError(t, err)
}

func TestAuthorizeOwnerAllowedStrangerForbidden(t *testing.T) {
	svc := NewAuthzService(newStubRoleRepo(), nil)
	ctx := context.Background()

	owner := userWithRoles("t1", models.RoleNameTeacher)
	stranger := userWithRoles("t2", models.RoleNameTeacher)
	resource := ownedResource{owner: "t1"}

	assert.NoError(t, svc.Authorize(ctx, owner, ActionUpdate, resource))

	err := svc.Authorize(ctx, stranger, ActionUpdate, resource)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestAuthorizeBaseRoleManagesNothing(t *testing.T) {
	svc := NewAuthzService(newStubRoleRepo(), nil)
	ctx := context.Background()

	base := userWithRoles("u1", models.RoleNameUser)

	// Even a resource the base user owns stays off limits.
	err := svc.Authorize(ctx, base, ActionUpdate, ownedResource{owner: "u1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = svc.Authorize(ctx, base, ActionCreate, nil)
	require.Error(t, err)
}

func TestAuthorizeNilActorUnauthorized(t *testing.T) {
	svc := NewAuthzService(newStubRoleRepo(), nil)

	err := svc.Authorize(context.Background(), nil, ActionCreate, nil)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestManagedUsersFilter(t *testing.T) {
	svc := NewAuthzService(newStubRoleRepo(), nil)

	assert.Equal(t, models.ManagedScopeNonAdmins, svc.ManagedUsersFilter(userWithRoles("a", models.RoleNameAdmin)))
	assert.Equal(t, models.ManagedScopeBaseOnly, svc.ManagedUsersFilter(userWithRoles("t", models.RoleNameTeacher)))
	assert.Equal(t, models.ManagedScopeNone, svc.ManagedUsersFilter(userWithRoles("s", models.RoleNameStaff)))
	assert.Equal(t, models.ManagedScopeNone, svc.ManagedUsersFilter(userWithRoles("u", models.RoleNameUser)))
	assert.Equal(t, models.ManagedScopeNone, svc.ManagedUsersFilter(nil))
}
