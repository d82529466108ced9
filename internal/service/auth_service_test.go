package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusworks/dept-admin-api/internal/models"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

type stubAuthRepo struct {
	user             *models.User
	refreshTokens    map[string]*models.RefreshToken
	lastLoginUpdated bool
	revokedAll       bool
}

func (m *stubAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.user == nil || m.user.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *stubAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.user == nil || m.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *stubAuthRepo) FindWithGrants(ctx context.Context, id string) (*models.User, error) {
	return m.FindByID(ctx, id)
}

func (m *stubAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *stubAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if m.user != nil && m.user.ID == id {
		m.user.PasswordHash = passwordHash
	}
	return nil
}

func (m *stubAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = true
	for _, token := range m.refreshTokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *stubAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *stubAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *stubAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func newAuthFixture(user *models.User) (*AuthService, *stubAuthRepo, *stubActivityRecorder) {
	repo := &stubAuthRepo{user: user, refreshTokens: make(map[string]*models.RefreshToken)}
	activity := &stubActivityRecorder{}
	svc := NewAuthService(repo, activity, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
	})
	return svc, repo, activity
}

func activeUser(roles ...string) *models.User {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	u := userWithRoles("u1", roles...)
	u.Email = "user@example.com"
	u.Name = "Ada"
	u.PasswordHash = string(password)
	return u
}

func TestLoginSuccess(t *testing.T) {
	svc, repo, activity := newAuthFixture(activeUser(models.RoleNameTeacher))

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, models.RoleNameTeacher, res.User.PrimaryRole)
	assert.Equal(t, []string{models.RoleNameTeacher}, res.User.Roles)
	assert.True(t, repo.lastLoginUpdated)
	require.Len(t, activity.entries, 1)
	assert.Equal(t, models.ActivityLogin, activity.entries[0].Action)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, activity := newAuthFixture(activeUser(models.RoleNameTeacher))

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	assert.Empty(t, activity.entries)
}

func TestLoginUnknownEmailMatchesWrongPassword(t *testing.T) {
	svc, _, _ := newAuthFixture(activeUser(models.RoleNameTeacher))

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "other@example.com", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	user := activeUser(models.RoleNameTeacher)
	user.Status = models.UserStatusInactive
	svc, _, _ := newAuthFixture(user)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestLoginWithoutGrantsYieldsBaseRole(t *testing.T) {
	svc, _, _ := newAuthFixture(activeUser())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	assert.Equal(t, models.BaseRoleName, res.User.PrimaryRole)
	assert.Empty(t, res.User.Roles)
}

func TestSingleSessionRevokesOpenTokens(t *testing.T) {
	user := activeUser(models.RoleNameAdmin)
	repo := &stubAuthRepo{user: user, refreshTokens: map[string]*models.RefreshToken{
		"stale": {ID: "rt0", UserID: user.ID, Token: "stale", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	svc := NewAuthService(repo, &stubActivityRecorder{}, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		SingleSession:      true,
	})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	assert.True(t, repo.revokedAll)
	assert.True(t, repo.refreshTokens["stale"].Revoked)
}

func TestRefreshTokenRotates(t *testing.T) {
	svc, repo, _ := newAuthFixture(activeUser(models.RoleNameAdmin))
	repo.refreshTokens["token"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(time.Hour)}

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["token"].Revoked)
	assert.Contains(t, repo.refreshTokens, res.RefreshToken)
}

func TestRefreshTokenExpired(t *testing.T) {
	svc, repo, _ := newAuthFixture(activeUser(models.RoleNameAdmin))
	repo.refreshTokens["token"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(-time.Minute)}

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, repo, activity := newAuthFixture(activeUser(models.RoleNameTeacher))
	repo.refreshTokens["token"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(time.Hour)}

	err := svc.Logout(context.Background(), "token", "u1", models.LoginRequest{IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.True(t, repo.refreshTokens["token"].Revoked)
	require.Len(t, activity.entries, 1)
	assert.Equal(t, models.ActivityLogout, activity.entries[0].Action)
}

func TestLogoutForeignTokenForbidden(t *testing.T) {
	svc, repo, _ := newAuthFixture(activeUser(models.RoleNameTeacher))
	repo.refreshTokens["token"] = &models.RefreshToken{ID: "rt1", UserID: "other", Token: "token", ExpiresAt: time.Now().Add(time.Hour)}

	err := svc.Logout(context.Background(), "token", "u1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.False(t, repo.refreshTokens["token"].Revoked)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	svc, repo, activity := newAuthFixture(activeUser(models.RoleNameStaff))
	oldHash := repo.user.PasswordHash
	repo.refreshTokens["token"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(time.Hour)}

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "password", NewPassword: "longerpassword"})
	require.NoError(t, err)
	assert.NotEqual(t, oldHash, repo.user.PasswordHash)
	assert.True(t, repo.revokedAll)
	require.Len(t, activity.entries, 1)
	assert.Equal(t, models.ActivityPasswordChange, activity.entries[0].Action)
}

func TestChangePasswordWrongOldPassword(t *testing.T) {
	svc, repo, _ := newAuthFixture(activeUser(models.RoleNameStaff))
	oldHash := repo.user.PasswordHash

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "nope", NewPassword: "longerpassword"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Equal(t, oldHash, repo.user.PasswordHash)
}

func TestValidateTokenRoundTrip(t *testing.T) {
	svc, _, _ := newAuthFixture(activeUser(models.RoleNameAdmin))
	token, _, err := svc.generateAccessToken(activeUser(models.RoleNameAdmin, models.RoleNameTeacher))
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleNameAdmin, claims.PrimaryRole)
	assert.Equal(t, []string{models.RoleNameAdmin, models.RoleNameTeacher}, claims.Roles)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	svc, _, _ := newAuthFixture(activeUser(models.RoleNameAdmin))
	token, _, err := svc.generateAccessToken(activeUser(models.RoleNameAdmin))
	require.NoError(t, err)

	other := NewAuthService(&stubAuthRepo{}, nil, validator.New(), zap.NewNop(), AuthConfig{AccessTokenSecret: "different", AccessTokenExpiry: time.Hour})
	_, err = other.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
