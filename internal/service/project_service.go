package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campusworks/dept-admin-api/internal/models"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

type projectStore interface {
	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	SlugExists(ctx context.Context, q sqlx.ExtContext, slug, ignoreID string) (bool, error)
	Insert(ctx context.Context, q sqlx.ExtContext, project *models.Project) error
	Update(ctx context.Context, q sqlx.ExtContext, project *models.Project) error
	FindByID(ctx context.Context, id string) (*models.Project, error)
	List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, int, error)
	SoftDelete(ctx context.Context, id string) error
}

// CreateProjectRequest describes the create payload.
type CreateProjectRequest struct {
	Title                   string     `json:"title" validate:"required,max=500"`
	TitleEN                 string     `json:"title_en" validate:"omitempty,max=500"`
	Summary                 *string    `json:"summary"`
	Slug                    string     `json:"slug" validate:"omitempty,max=255"`
	PrincipalInvestigatorID string     `json:"principal_investigator_id"`
	FundingSource           *string    `json:"funding_source" validate:"omitempty,max=255"`
	StartsOn                *time.Time `json:"starts_on"`
	EndsOn                  *time.Time `json:"ends_on"`
	Tags                    string     `json:"tags"`
}

// UpdateProjectRequest describes the update payload.
type UpdateProjectRequest struct {
	Title                   string     `json:"title" validate:"required,max=500"`
	TitleEN                 string     `json:"title_en" validate:"omitempty,max=500"`
	Summary                 *string    `json:"summary"`
	Slug                    string     `json:"slug" validate:"omitempty,max=255"`
	PrincipalInvestigatorID string     `json:"principal_investigator_id"`
	FundingSource           *string    `json:"funding_source" validate:"omitempty,max=255"`
	StartsOn                *time.Time `json:"starts_on"`
	EndsOn                  *time.Time `json:"ends_on"`
	Tags                    string     `json:"tags"`
}

// ProjectService manages research projects with PI-ownership
// authorization, mirroring the lab rules.
type ProjectService struct {
	repo      projectStore
	tags      postTagSyncer
	authz     *AuthzService
	slugs     *SlugAllocator
	activity  activityRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProjectService constructs a ProjectService.
func NewProjectService(repo projectStore, tags postTagSyncer, authz *AuthzService, slugs *SlugAllocator, activity activityRecorder, validate *validator.Validate, logger *zap.Logger) *ProjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if slugs == nil {
		slugs = NewSlugAllocator(logger)
	}
	return &ProjectService{repo: repo, tags: tags, authz: authz, slugs: slugs, activity: activity, validator: validate, logger: logger}
}

func validateProjectWindow(startsOn, endsOn *time.Time) error {
	if startsOn != nil && endsOn != nil && endsOn.Before(*startsOn) {
		return appErrors.Clone(appErrors.ErrValidation, "project end date precedes start date")
	}
	return nil
}

// Create registers a new project. A non-admin creator becomes the PI.
func (s *ProjectService) Create(ctx context.Context, actor *models.User, req CreateProjectRequest) (*models.Project, error) {
	if err := s.authz.Authorize(ctx, actor, ActionCreate, nil); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project payload")
	}
	if err := validateProjectWindow(req.StartsOn, req.EndsOn); err != nil {
		return nil, err
	}

	piID := actor.ID
	if actor.IsAdmin() && req.PrincipalInvestigatorID != "" {
		piID = req.PrincipalInvestigatorID
	}

	project := &models.Project{
		Title:                   strings.TrimSpace(req.Title),
		TitleEN:                 strings.TrimSpace(req.TitleEN),
		Summary:                 req.Summary,
		PrincipalInvestigatorID: piID,
		FundingSource:           req.FundingSource,
		StartsOn:                req.StartsOn,
		EndsOn:                  req.EndsOn,
	}

	err := s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		slugValue, err := s.slugs.Generate(ctx, req.Title, req.Slug, func(ctx context.Context, candidate string) (bool, error) {
			return s.repo.SlugExists(ctx, tx, candidate, "")
		})
		if err != nil {
			return err
		}
		project.Slug = slugValue
		if err := s.repo.Insert(ctx, tx, project); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create project")
		}
		tags, err := s.tags.Sync(ctx, tx, models.TagContextProjects, project.ID, req.Tags)
		if err != nil {
			return err
		}
		project.Tags = tags
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, actor.ID, models.ActivityProjectCreated, project.ID, fmt.Sprintf("created project %q", project.Title))
	return project, nil
}

// Update rewrites a project. Non-admin actors must be the PI.
func (s *ProjectService) Update(ctx context.Context, actor *models.User, id string, req UpdateProjectRequest) (*models.Project, error) {
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	if err := s.authz.Authorize(ctx, actor, ActionUpdate, project); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project payload")
	}
	if err := validateProjectWindow(req.StartsOn, req.EndsOn); err != nil {
		return nil, err
	}

	project.Title = strings.TrimSpace(req.Title)
	project.TitleEN = strings.TrimSpace(req.TitleEN)
	project.Summary = req.Summary
	project.FundingSource = req.FundingSource
	project.StartsOn = req.StartsOn
	project.EndsOn = req.EndsOn
	if actor.IsAdmin() && req.PrincipalInvestigatorID != "" {
		project.PrincipalInvestigatorID = req.PrincipalInvestigatorID
	}

	err = s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		if req.Slug != "" && req.Slug != project.Slug {
			slugValue, err := s.slugs.Generate(ctx, req.Title, req.Slug, func(ctx context.Context, candidate string) (bool, error) {
				return s.repo.SlugExists(ctx, tx, candidate, project.ID)
			})
			if err != nil {
				return err
			}
			project.Slug = slugValue
		}
		if err := s.repo.Update(ctx, tx, project); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update project")
		}
		tags, err := s.tags.Sync(ctx, tx, models.TagContextProjects, project.ID, req.Tags)
		if err != nil {
			return err
		}
		project.Tags = tags
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, actor.ID, models.ActivityProjectUpdated, project.ID, fmt.Sprintf("updated project %q", project.Title))
	return project, nil
}

// Get returns a project with its tags.
func (s *ProjectService) Get(ctx context.Context, id string) (*models.Project, error) {
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	tags, err := s.tags.TagsFor(ctx, models.TagContextProjects, project.ID)
	if err != nil {
		return nil, err
	}
	project.Tags = tags
	return project, nil
}

// List returns projects plus pagination data.
func (s *ProjectService) List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, *models.Pagination, error) {
	projects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list projects")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return projects, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Delete soft deletes a project. Admins or the PI.
func (s *ProjectService) Delete(ctx context.Context, actor *models.User, id string) error {
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	if err := s.authz.Authorize(ctx, actor, ActionDelete, project); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete project")
	}
	s.recordActivity(ctx, actor.ID, models.ActivityProjectDeleted, id, fmt.Sprintf("deleted project %q", project.Title))
	return nil
}

func (s *ProjectService) recordActivity(ctx context.Context, actorID, action, subjectID, description string) {
	if s.activity == nil {
		return
	}
	entry := &models.Activity{
		UserID:      &actorID,
		Action:      action,
		SubjectType: "project",
		SubjectID:   &subjectID,
		Description: description,
	}
	if err := s.activity.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record activity", zap.String("action", action), zap.Error(err))
	}
}
