package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campusworks/dept-admin-api/internal/models"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

type activityStore interface {
	Record(ctx context.Context, activity *models.Activity) error
	List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// ActivityService writes and serves the audit trail. It satisfies the
// recorder dependency of the mutation services.
type ActivityService struct {
	repo   activityStore
	authz  *AuthzService
	logger *zap.Logger
}

// NewActivityService creates an instance of ActivityService.
func NewActivityService(repo activityStore, authz *AuthzService, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{repo: repo, authz: authz, logger: logger}
}

// Record appends an audit entry. Failures are surfaced to the caller;
// mutation services decide whether to warn or abort.
func (s *ActivityService) Record(ctx context.Context, activity *models.Activity) error {
	return s.repo.Record(ctx, activity)
}

// List returns the activity feed. Admin only.
func (s *ActivityService) List(ctx context.Context, actor *models.User, filter models.ActivityFilter) ([]models.Activity, *models.Pagination, error) {
	if err := s.authz.RequireAdmin(actor); err != nil {
		return nil, nil, err
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}

	return entries, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// CountSince reports how many entries were recorded at or after the
// given instant. Used by the dashboard.
func (s *ActivityService) CountSince(ctx context.Context, since time.Time) (int, error) {
	return s.repo.CountSince(ctx, since)
}
