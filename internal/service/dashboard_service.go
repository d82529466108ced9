package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campusworks/dept-admin-api/internal/models"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

const dashboardCacheKey = "dashboard:admin"

type postCounter interface {
	CountByStatus(ctx context.Context) (map[models.PostStatus]int, error)
}

type roleCounter interface {
	CountActiveByRole(ctx context.Context) (map[string]int, error)
}

type entityCounter interface {
	Count(ctx context.Context) (int, error)
}

type activityFeed interface {
	List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL       time.Duration
	RecentActivity int
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Posts       postCounter
	Memberships roleCounter
	Labs        entityCounter
	Projects    entityCounter
	Activity    activityFeed
	Authz       *AuthzService
	Cache       *CacheService
	Logger      *zap.Logger
	Config      DashboardServiceConfig
}

// DashboardService composes the admin overview payload.
type DashboardService struct {
	posts       postCounter
	memberships roleCounter
	labs        entityCounter
	projects    entityCounter
	activity    activityFeed
	authz       *AuthzService
	cache       *CacheService
	logger      *zap.Logger
	now         func() time.Time
	cfg         DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.RecentActivity <= 0 {
		cfg.RecentActivity = 10
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		posts:       params.Posts,
		memberships: params.Memberships,
		labs:        params.Labs,
		projects:    params.Projects,
		activity:    params.Activity,
		authz:       params.Authz,
		cache:       params.Cache,
		logger:      logger,
		now:         time.Now,
		cfg:         cfg,
	}
}

// Summary returns the admin dashboard and reports cache utilisation.
// Admin only.
func (s *DashboardService) Summary(ctx context.Context, actor *models.User) (*models.DashboardSummary, bool, error) {
	if err := s.authz.RequireAdmin(actor); err != nil {
		return nil, false, err
	}

	if summary, hit := s.tryCache(ctx); hit {
		return summary, true, nil
	}

	summary, err := s.compose(ctx)
	if err != nil {
		return nil, false, err
	}
	s.persistCache(ctx, summary)
	return summary, false, nil
}

// Invalidate drops the cached payload. Mutation paths call this so the
// next read recomputes.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, dashboardCacheKey); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}

func (s *DashboardService) tryCache(ctx context.Context) (*models.DashboardSummary, bool) {
	if s.cache == nil {
		return nil, false
	}
	var cached models.DashboardSummary
	hit, err := s.cache.Get(ctx, dashboardCacheKey, &cached)
	if err != nil {
		s.logger.Warn("dashboard cache read failed", zap.Error(err))
		return nil, false
	}
	if hit {
		return &cached, true
	}
	return nil, false
}

func (s *DashboardService) persistCache(ctx context.Context, summary *models.DashboardSummary) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, dashboardCacheKey, summary, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.Error(err))
	}
}

func (s *DashboardService) compose(ctx context.Context) (*models.DashboardSummary, error) {
	now := s.now().UTC()
	summary := &models.DashboardSummary{GeneratedAt: now}

	byStatus, err := s.posts.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count posts")
	}
	summary.Posts = postCounts(byStatus)

	byRole, err := s.memberships.CountActiveByRole(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count memberships")
	}
	summary.UsersByRole = byRole

	if summary.Labs, err = s.labs.Count(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count labs")
	}
	if summary.Projects, err = s.projects.Count(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count projects")
	}

	if s.activity != nil {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if summary.ActivityToday, err = s.activity.CountSince(ctx, midnight); err != nil {
			s.logger.Warn("dashboard activity count failed", zap.Error(err))
		}
		recent, _, err := s.activity.List(ctx, models.ActivityFilter{Page: 1, PageSize: s.cfg.RecentActivity})
		if err != nil {
			s.logger.Warn("dashboard recent activity fetch failed", zap.Error(err))
		} else {
			summary.RecentActivity = recent
		}
	}

	return summary, nil
}

func postCounts(byStatus map[models.PostStatus]int) models.PostCounts {
	counts := models.PostCounts{
		Draft:     byStatus[models.PostStatusDraft],
		Published: byStatus[models.PostStatusPublished],
		Scheduled: byStatus[models.PostStatusScheduled],
		Hidden:    byStatus[models.PostStatusHidden],
		Archived:  byStatus[models.PostStatusArchived],
	}
	counts.Total = counts.Draft + counts.Published + counts.Scheduled + counts.Hidden + counts.Archived
	return counts
}
