package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/dept-admin-api/internal/models"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

type stubLabStore struct {
	labs   map[string]*models.Lab
	nextID int
}

func newStubLabStore() *stubLabStore {
	return &stubLabStore{labs: map[string]*models.Lab{}}
}

func (s *stubLabStore) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

func (s *stubLabStore) SlugExists(ctx context.Context, q sqlx.ExtContext, slug, ignoreID string) (bool, error) {
	for _, l := range s.labs {
		if l.Slug == slug && l.ID != ignoreID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubLabStore) Insert(ctx context.Context, q sqlx.ExtContext, lab *models.Lab) error {
	s.nextID++
	lab.ID = fmt.Sprintf("l%d", s.nextID)
	copied := *lab
	s.labs[lab.ID] = &copied
	return nil
}

func (s *stubLabStore) Update(ctx context.Context, q sqlx.ExtContext, lab *models.Lab) error {
	if _, ok := s.labs[lab.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *lab
	s.labs[lab.ID] = &copied
	return nil
}

func (s *stubLabStore) FindByID(ctx context.Context, id string) (*models.Lab, error) {
	l, ok := s.labs[id]
	if !ok || l.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	copied := *l
	return &copied, nil
}

func (s *stubLabStore) List(ctx context.Context, filter models.LabFilter) ([]models.Lab, int, error) {
	var out []models.Lab
	for _, l := range s.labs {
		if l.DeletedAt != nil {
			continue
		}
		if filter.OwnerID != "" && l.PrincipalInvestigatorID != filter.OwnerID {
			continue
		}
		out = append(out, *l)
	}
	return out, len(out), nil
}

func (s *stubLabStore) SoftDelete(ctx context.Context, id string) error {
	l, ok := s.labs[id]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now()
	l.DeletedAt = &now
	return nil
}

func newLabService(store *stubLabStore) *LabService {
	authz := NewAuthzService(newStubRoleRepo(), nil)
	tagSvc := NewTagService(newStubTagRepo(), nil, nil)
	return NewLabService(store, tagSvc, authz, nil, &stubActivityRecorder{}, nil, nil)
}

func TestCreateLabTeacherBecomesPI(t *testing.T) {
	store := newStubLabStore()
	svc := newLabService(store)
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	lab, err := svc.Create(context.Background(), teacher, CreateLabRequest{
		Name: "Vision Lab",
		// A non-admin cannot hand ownership to someone else.
		PrincipalInvestigatorID: "someone-else",
		Tags:                    "vision, ml",
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", lab.PrincipalInvestigatorID)
	assert.Equal(t, "vision-lab", lab.Slug)
	assert.Len(t, lab.Tags, 2)
}

func TestCreateLabAdminMayAssignPI(t *testing.T) {
	store := newStubLabStore()
	svc := newLabService(store)
	admin := userWithRoles("a1", models.RoleNameAdmin)

	lab, err := svc.Create(context.Background(), admin, CreateLabRequest{
		Name:                    "Robotics Lab",
		PrincipalInvestigatorID: "t9",
	})
	require.NoError(t, err)
	assert.Equal(t, "t9", lab.PrincipalInvestigatorID)
}

func TestUpdateLabNonOwnerForbidden(t *testing.T) {
	store := newStubLabStore()
	svc := newLabService(store)
	ctx := context.Background()

	owner := userWithRoles("t1", models.RoleNameTeacher)
	lab, err := svc.Create(ctx, owner, CreateLabRequest{Name: "Mine"})
	require.NoError(t, err)

	stranger := userWithRoles("t2", models.RoleNameTeacher)
	_, err = svc.Update(ctx, stranger, lab.ID, UpdateLabRequest{Name: "Taken Over"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	admin := userWithRoles("a1", models.RoleNameAdmin)
	updated, err := svc.Update(ctx, admin, lab.ID, UpdateLabRequest{Name: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
}

func TestDeleteLabOwnershipRules(t *testing.T) {
	store := newStubLabStore()
	svc := newLabService(store)
	ctx := context.Background()

	owner := userWithRoles("t1", models.RoleNameTeacher)
	lab, err := svc.Create(ctx, owner, CreateLabRequest{Name: "Short Lived"})
	require.NoError(t, err)

	stranger := userWithRoles("t2", models.RoleNameTeacher)
	err = svc.Delete(ctx, stranger, lab.ID)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(ctx, owner, lab.ID))
	_, err = svc.Get(ctx, lab.ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
