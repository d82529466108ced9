package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campusworks/dept-admin-api/internal/models"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

type labStore interface {
	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	SlugExists(ctx context.Context, q sqlx.ExtContext, slug, ignoreID string) (bool, error)
	Insert(ctx context.Context, q sqlx.ExtContext, lab *models.Lab) error
	Update(ctx context.Context, q sqlx.ExtContext, lab *models.Lab) error
	FindByID(ctx context.Context, id string) (*models.Lab, error)
	List(ctx context.Context, filter models.LabFilter) ([]models.Lab, int, error)
	SoftDelete(ctx context.Context, id string) error
}

// CreateLabRequest describes the create payload. A non-admin creator
// always becomes the principal investigator.
type CreateLabRequest struct {
	Name                    string  `json:"name" validate:"required,max=255"`
	NameEN                  string  `json:"name_en" validate:"omitempty,max=255"`
	Description             *string `json:"description"`
	Slug                    string  `json:"slug" validate:"omitempty,max=255"`
	PrincipalInvestigatorID string  `json:"principal_investigator_id"`
	Location                *string `json:"location" validate:"omitempty,max=255"`
	Website                 *string `json:"website" validate:"omitempty,url"`
	Tags                    string  `json:"tags"`
}

// UpdateLabRequest describes the update payload.
type UpdateLabRequest struct {
	Name                    string  `json:"name" validate:"required,max=255"`
	NameEN                  string  `json:"name_en" validate:"omitempty,max=255"`
	Description             *string `json:"description"`
	Slug                    string  `json:"slug" validate:"omitempty,max=255"`
	PrincipalInvestigatorID string  `json:"principal_investigator_id"`
	Location                *string `json:"location" validate:"omitempty,max=255"`
	Website                 *string `json:"website" validate:"omitempty,url"`
	Tags                    string  `json:"tags"`
}

// LabService manages research labs with PI-ownership authorization.
type LabService struct {
	repo      labStore
	tags      postTagSyncer
	authz     *AuthzService
	slugs     *SlugAllocator
	activity  activityRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLabService constructs a LabService.
func NewLabService(repo labStore, tags postTagSyncer, authz *AuthzService, slugs *SlugAllocator, activity activityRecorder, validate *validator.Validate, logger *zap.Logger) *LabService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if slugs == nil {
		slugs = NewSlugAllocator(logger)
	}
	return &LabService{repo: repo, tags: tags, authz: authz, slugs: slugs, activity: activity, validator: validate, logger: logger}
}

// Create registers a new lab. Only an admin may assign the PI to
// someone else; any other creator becomes the PI themselves.
func (s *LabService) Create(ctx context.Context, actor *models.User, req CreateLabRequest) (*models.Lab, error) {
	if err := s.authz.Authorize(ctx, actor, ActionCreate, nil); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lab payload")
	}

	piID := actor.ID
	if actor.IsAdmin() && req.PrincipalInvestigatorID != "" {
		piID = req.PrincipalInvestigatorID
	}

	lab := &models.Lab{
		Name:                    strings.TrimSpace(req.Name),
		NameEN:                  strings.TrimSpace(req.NameEN),
		Description:             req.Description,
		PrincipalInvestigatorID: piID,
		Location:                req.Location,
		Website:                 req.Website,
	}

	err := s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		slugValue, err := s.slugs.Generate(ctx, req.Name, req.Slug, func(ctx context.Context, candidate string) (bool, error) {
			return s.repo.SlugExists(ctx, tx, candidate, "")
		})
		if err != nil {
			return err
		}
		lab.Slug = slugValue
		if err := s.repo.Insert(ctx, tx, lab); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lab")
		}
		tags, err := s.tags.Sync(ctx, tx, models.TagContextLabs, lab.ID, req.Tags)
		if err != nil {
			return err
		}
		lab.Tags = tags
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, actor.ID, models.ActivityLabCreated, lab.ID, fmt.Sprintf("created lab %q", lab.Name))
	return lab, nil
}

// Update rewrites a lab. Non-admin actors must be the PI.
func (s *LabService) Update(ctx context.Context, actor *models.User, id string, req UpdateLabRequest) (*models.Lab, error) {
	lab, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lab not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lab")
	}
	if err := s.authz.Authorize(ctx, actor, ActionUpdate, lab); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lab payload")
	}

	lab.Name = strings.TrimSpace(req.Name)
	lab.NameEN = strings.TrimSpace(req.NameEN)
	lab.Description = req.Description
	lab.Location = req.Location
	lab.Website = req.Website
	if actor.IsAdmin() && req.PrincipalInvestigatorID != "" {
		lab.PrincipalInvestigatorID = req.PrincipalInvestigatorID
	}

	err = s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		if req.Slug != "" && req.Slug != lab.Slug {
			slugValue, err := s.slugs.Generate(ctx, req.Name, req.Slug, func(ctx context.Context, candidate string) (bool, error) {
				return s.repo.SlugExists(ctx, tx, candidate, lab.ID)
			})
			if err != nil {
				return err
			}
			lab.Slug = slugValue
		}
		if err := s.repo.Update(ctx, tx, lab); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lab")
		}
		tags, err := s.tags.Sync(ctx, tx, models.TagContextLabs, lab.ID, req.Tags)
		if err != nil {
			return err
		}
		lab.Tags = tags
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, actor.ID, models.ActivityLabUpdated, lab.ID, fmt.Sprintf("updated lab %q", lab.Name))
	return lab, nil
}

// Get returns a lab with its tags.
func (s *LabService) Get(ctx context.Context, id string) (*models.Lab, error) {
	lab, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lab not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lab")
	}
	tags, err := s.tags.TagsFor(ctx, models.TagContextLabs, lab.ID)
	if err != nil {
		return nil, err
	}
	lab.Tags = tags
	return lab, nil
}

// List returns labs plus pagination data.
func (s *LabService) List(ctx context.Context, filter models.LabFilter) ([]models.Lab, *models.Pagination, error) {
	labs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list labs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return labs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Delete soft deletes a lab. Admins or the PI.
func (s *LabService) Delete(ctx context.Context, actor *models.User, id string) error {
	lab, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "lab not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lab")
	}
	if err := s.authz.Authorize(ctx, actor, ActionDelete, lab); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lab")
	}
	s.recordActivity(ctx, actor.ID, models.ActivityLabDeleted, id, fmt.Sprintf("deleted lab %q", lab.Name))
	return nil
}

func (s *LabService) recordActivity(ctx context.Context, actorID, action, subjectID, description string) {
	if s.activity == nil {
		return
	}
	entry := &models.Activity{
		UserID:      &actorID,
		Action:      action,
		SubjectType: "lab",
		SubjectID:   &subjectID,
		Description: description,
	}
	if err := s.activity.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record activity", zap.String("action", action), zap.Error(err))
	}
}
