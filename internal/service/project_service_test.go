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

type stubProjectStore struct {
	projects map[string]*models.Project
	nextID   int
}

func newStubProjectStore() *stubProjectStore {
	return &stubProjectStore{projects: map[string]*models.Project{}}
}

func (s *stubProjectStore) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

func (s *stubProjectStore) SlugExists(ctx context.Context, q sqlx.ExtContext, slug, ignoreID string) (bool, error) {
	for _, p := range s.projects {
		if p.Slug == slug && p.ID != ignoreID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubProjectStore) Insert(ctx context.Context, q sqlx.ExtContext, project *models.Project) error {
	s.nextID++
	project.ID = fmt.Sprintf("pr%d", s.nextID)
	copied := *project
	s.projects[project.ID] = &copied
	return nil
}

func (s *stubProjectStore) Update(ctx context.Context, q sqlx.ExtContext, project *models.Project) error {
	if _, ok := s.projects[project.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *project
	s.projects[project.ID] = &copied
	return nil
}

func (s *stubProjectStore) FindByID(ctx context.Context, id string) (*models.Project, error) {
	p, ok := s.projects[id]
	if !ok || p.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	copied := *p
	return &copied, nil
}

func (s *stubProjectStore) List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, int, error) {
	var out []models.Project
	for _, p := range s.projects {
		if p.DeletedAt != nil {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (s *stubProjectStore) SoftDelete(ctx context.Context, id string) error {
	p, ok := s.projects[id]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now()
	p.DeletedAt = &now
	return nil
}

func newProjectService(store *stubProjectStore) *ProjectService {
	authz := NewAuthzService(newStubRoleRepo(), nil)
	tagSvc := NewTagService(newStubTagRepo(), nil, nil)
	return NewProjectService(store, tagSvc, authz, nil, &stubActivityRecorder{}, nil, nil)
}

func TestCreateProjectTeacherBecomesPI(t *testing.T) {
	store := newStubProjectStore()
	svc := newProjectService(store)
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	project, err := svc.Create(context.Background(), teacher, CreateProjectRequest{
		Title:                   "Autonomous Greenhouse",
		PrincipalInvestigatorID: "someone-else",
		Tags:                    "agritech, robotics",
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", project.PrincipalInvestigatorID)
	assert.Equal(t, "autonomous-greenhouse", project.Slug)
	assert.Len(t, project.Tags, 2)
}

func TestCreateProjectRejectsInvertedWindow(t *testing.T) {
	store := newStubProjectStore()
	svc := newProjectService(store)
	teacher := userWithRoles("t1", models.RoleNameTeacher)

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, -3, 0)
	_, err := svc.Create(context.Background(), teacher, CreateProjectRequest{
		Title:    "Backwards",
		StartsOn: &start,
		EndsOn:   &end,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.projects)
}

func TestUpdateProjectOwnershipRules(t *testing.T) {
	store := newStubProjectStore()
	svc := newProjectService(store)
	ctx := context.Background()

	owner := userWithRoles("t1", models.RoleNameTeacher)
	project, err := svc.Create(ctx, owner, CreateProjectRequest{Title: "Mine"})
	require.NoError(t, err)

	stranger := userWithRoles("t2", models.RoleNameTeacher)
	_, err = svc.Update(ctx, stranger, project.ID, UpdateProjectRequest{Title: "Taken Over"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	updated, err := svc.Update(ctx, owner, project.ID, UpdateProjectRequest{Title: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)

	// Only an admin may hand the project to a different PI.
	updated, err = svc.Update(ctx, owner, project.ID, UpdateProjectRequest{Title: "Renamed", PrincipalInvestigatorID: "t2"})
	require.NoError(t, err)
	assert.Equal(t, "t1", updated.PrincipalInvestigatorID)

	admin := userWithRoles("a1", models.RoleNameAdmin)
	updated, err = svc.Update(ctx, admin, project.ID, UpdateProjectRequest{Title: "Renamed", PrincipalInvestigatorID: "t2"})
	require.NoError(t, err)
	assert.Equal(t, "t2", updated.PrincipalInvestigatorID)
}

func TestDeleteProjectOwnerOrAdmin(t *testing.T) {
	store := newStubProjectStore()
	svc := newProjectService(store)
	ctx := context.Background()

	owner := userWithRoles("t1", models.RoleNameTeacher)
	project, err := svc.Create(ctx, owner, CreateProjectRequest{Title: "Mine"})
	require.NoError(t, err)

	stranger := userWithRoles("t2", models.RoleNameTeacher)
	err = svc.Delete(ctx, stranger, project.ID)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = svc.Delete(ctx, owner, project.ID)
	require.NoError(t, err)

	_, err = svc.Get(ctx, project.ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
