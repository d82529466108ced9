package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/dept-admin-api/internal/models"
)

func postRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "category_id", "space_id", "slug", "status", "visibility", "source_type", "source_url", "published_at", "expire_at", "pinned", "title", "title_en", "summary", "summary_en", "content", "content_en", "views", "created_by", "updated_by", "created_at", "updated_at", "deleted_at"}).
		AddRow("p1", "c1", nil, "hello-world", int(models.PostStatusPublished), int(models.PostVisibilityPublic), int(models.PostSourceManual), nil, now, nil, false, "Hello", "Hello", nil, nil, "body", "body", 0, "u1", "u1", now, now, nil)
}

func TestSlugExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostRepository(db)

	rows := sqlmock.NewRows([]string{"exists"}).AddRow(true)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM posts WHERE slug = $1)")).
		WithArgs("hello-world").
		WillReturnRows(rows)

	exists, err := repo.SlugExists(context.Background(), db, "hello-world", "")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlugExistsIgnoresSelf(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostRepository(db)

	rows := sqlmock.NewRows([]string{"exists"}).AddRow(false)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM posts WHERE slug = $1 AND id <> $2)")).
		WithArgs("hello-world", "p1").
		WillReturnRows(rows)

	exists, err := repo.SlugExists(context.Background(), db, "hello-world", "p1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListVisibleQueriesByInstant(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostRepository(db)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM posts p WHERE p.deleted_at IS NULL").
		WithArgs(now, int64(models.PostVisibilityPublic), int64(models.PostStatusPublished), int64(models.PostStatusScheduled)).
		WillReturnRows(postRows(now))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM posts p WHERE p.deleted_at IS NULL`).
		WithArgs(now, int64(models.PostVisibilityPublic), int64(models.PostStatusPublished), int64(models.PostStatusScheduled)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	posts, total, err := repo.ListVisible(context.Background(), "", now, 1, 20)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListVisibleRestrictsToPublicAudience(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostRepository(db)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM posts p WHERE p.deleted_at IS NULL\s+AND p.visibility = \$2`).
		WithArgs(now, int64(models.PostVisibilityPublic), int64(models.PostStatusPublished), int64(models.PostStatusScheduled)).
		WillReturnRows(postRows(now))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM posts p WHERE p.deleted_at IS NULL\s+AND p.visibility = \$2`).
		WithArgs(now, int64(models.PostVisibilityPublic), int64(models.PostStatusPublished), int64(models.PostStatusScheduled)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	posts, _, err := repo.ListVisible(context.Background(), "", now, 1, 20)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, models.PostVisibilityPublic, posts[0].Visibility)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatusBulkPublishStampsPublishedAt(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE posts SET status = $1, published_at = COALESCE(published_at, $2), updated_by = $3, updated_at = $4 WHERE id IN ($5, $6) AND deleted_at IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := repo.SetStatusBulk(context.Background(), []string{"p1", "p2"}, models.PostStatusPublished, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatusBulkEmptyInputIsNoop(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostRepository(db)

	affected, err := repo.SetStatusBulk(context.Background(), nil, models.PostStatusHidden, "u1")
	require.NoError(t, err)
	assert.Zero(t, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementViews(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE posts SET views = views + 1 WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.IncrementViews(context.Background(), "p1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
