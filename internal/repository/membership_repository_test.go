package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/dept-admin-api/internal/models"
)

func TestGrantsForUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMembershipRepository(db)

	rows := sqlmock.NewRows([]string{"membership_id", "role_name", "priority", "status"}).
		AddRow("m1", models.RoleNameAdmin, 100, string(models.MembershipActive)).
		AddRow("m2", models.RoleNameUser, 20, string(models.MembershipActive))
	mock.ExpectQuery("SELECT ur.id AS membership_id, ro.name AS role_name, ro.priority, ur.status").
		WithArgs("u1").
		WillReturnRows(rows)

	grants, err := repo.GrantsForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, 100, grants[0].Priority)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatusDeactivateStampsTimestamp(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMembershipRepository(db)

	mock.ExpectExec("UPDATE user_roles SET status = .+, deactivated_at = .+, updated_at = ").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetStatusTx(context.Background(), db, "m1", models.MembershipInactive)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatusReactivateClearsTimestamp(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMembershipRepository(db)

	mock.ExpectExec("UPDATE user_roles SET status = .+, deactivated_at = NULL, assigned_at = ").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetStatusTx(context.Background(), db, "m1", models.MembershipActive)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatusMissingEntry(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMembershipRepository(db)

	mock.ExpectExec("UPDATE user_roles SET status = ").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetStatusTx(context.Background(), db, "missing", models.MembershipInactive)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMembershipRepository(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("boom")
	err := repo.InTx(context.Background(), func(tx *sqlx.Tx) error {
		return sentinel
	})
	assert.True(t, errors.Is(err, sentinel))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxCommits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMembershipRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO user_roles").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(tx *sqlx.Tx) error {
		return repo.Grant(context.Background(), tx, &models.Membership{UserID: "u1", RoleID: "r1"})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
