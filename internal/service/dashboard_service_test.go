package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusworks/dept-admin-api/internal/models"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

type fakePostCounter struct {
	byStatus map[models.PostStatus]int
	calls    int
}

func (f *fakePostCounter) CountByStatus(context.Context) (map[models.PostStatus]int, error) {
	f.calls++
	return f.byStatus, nil
}

type fakeRoleCounter struct {
	byRole map[string]int
}

func (f *fakeRoleCounter) CountActiveByRole(context.Context) (map[string]int, error) {
	return f.byRole, nil
}

type fakeEntityCounter struct {
	count int
}

func (f *fakeEntityCounter) Count(context.Context) (int, error) {
	return f.count, nil
}

type fakeActivityFeed struct {
	entries []models.Activity
	today   int
}

func (f *fakeActivityFeed) List(context.Context, models.ActivityFilter) ([]models.Activity, int, error) {
	return f.entries, len(f.entries), nil
}

func (f *fakeActivityFeed) CountSince(context.Context, time.Time) (int, error) {
	return f.today, nil
}

func newDashboardFixture(posts *fakePostCounter) *DashboardService {
	return NewDashboardService(DashboardServiceParams{
		Posts: posts,
		Memberships: &fakeRoleCounter{byRole: map[string]int{
			models.RoleNameAdmin:   2,
			models.RoleNameTeacher: 14,
		}},
		Labs:     &fakeEntityCounter{count: 6},
		Projects: &fakeEntityCounter{count: 11},
		Activity: &fakeActivityFeed{today: 3, entries: []models.Activity{{ID: "a1", Action: models.ActivityPostCreated}}},
		Authz:    NewAuthzService(newStubRoleRepo(), zap.NewNop()),
		Logger:   zap.NewNop(),
	})
}

func TestDashboardSummaryComposesCounts(t *testing.T) {
	posts := &fakePostCounter{byStatus: map[models.PostStatus]int{
		models.PostStatusDraft:     4,
		models.PostStatusPublished: 9,
		models.PostStatusScheduled: 2,
	}}
	svc := newDashboardFixture(posts)

	summary, cached, err := svc.Summary(context.Background(), userWithRoles("a1", models.RoleNameAdmin))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 15, summary.Posts.Total)
	assert.Equal(t, 9, summary.Posts.Published)
	assert.Equal(t, 2, summary.Posts.Scheduled)
	assert.Equal(t, 14, summary.UsersByRole[models.RoleNameTeacher])
	assert.Equal(t, 6, summary.Labs)
	assert.Equal(t, 11, summary.Projects)
	assert.Equal(t, 3, summary.ActivityToday)
	require.Len(t, summary.RecentActivity, 1)
	assert.Equal(t, models.ActivityPostCreated, summary.RecentActivity[0].Action)
}

func TestDashboardSummaryAdminOnly(t *testing.T) {
	posts := &fakePostCounter{byStatus: map[models.PostStatus]int{}}
	svc := newDashboardFixture(posts)

	_, _, err := svc.Summary(context.Background(), userWithRoles("t1", models.RoleNameTeacher))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Zero(t, posts.calls)
}

func TestDashboardSummaryWithoutCacheRecomputes(t *testing.T) {
	posts := &fakePostCounter{byStatus: map[models.PostStatus]int{}}
	svc := newDashboardFixture(posts)
	admin := userWithRoles("a1", models.RoleNameAdmin)

	_, _, err := svc.Summary(context.Background(), admin)
	require.NoError(t, err)
	_, cached, err := svc.Summary(context.Background(), admin)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, posts.calls)
}
