package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusworks/dept-admin-api/internal/models"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindWithGrants(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	SoftDelete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Name        string `json:"name" validate:"required"`
	Locale      string `json:"locale"`
	Password    string `json:"password" validate:"required,min=6"`
	Status      string `json:"status" validate:"omitempty,oneof=active inactive"`
	InitialRole string `json:"initial_role"`
}

// UpdateUserRequest payload for updating users. Status changes are
// accepted from admins only.
type UpdateUserRequest struct {
	Name   string  `json:"name" validate:"required"`
	Locale string  `json:"locale"`
	Status *string `json:"status" validate:"omitempty,oneof=active inactive"`
}

// UserService handles account management workflows. Role membership
// changes go through MembershipService; creation may seed one grant.
type UserService struct {
	repo        userRepository
	authz       *AuthzService
	memberships *MembershipService
	activity    activityRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, authz *AuthzService, memberships *MembershipService, activity activityRecorder, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, authz: authz, memberships: memberships, activity: activity, validator: validate, logger: logger}
}

// List returns the users the actor manages, paginated. The scope
// derived from the actor's roles overrides whatever the caller set.
func (s *UserService) List(ctx context.Context, actor *models.User, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}

	filter.Scope = s.authz.ManagedUsersFilter(actor)
	if !actor.IsAdmin() {
		filter.WithTrashed = false
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}

	return users, pagination, nil
}

// Get returns a user with role grants. Users may read themselves;
// anyone else requires an active admin grant.
func (s *UserService) Get(ctx context.Context, actor *models.User, id string) (*models.User, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if actor.ID != id {
		if err := s.authz.RequireAdmin(actor); err != nil {
			return nil, err
		}
	}

	user, err := s.repo.FindWithGrants(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a new account. Admin only. When InitialRole is set the
// corresponding membership is granted right after the insert.
func (s *UserService) Create(ctx context.Context, actor *models.User, req CreateUserRequest) (*models.User, error) {
	if err := s.authz.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	status := models.UserStatusActive
	if req.Status != "" {
		status = models.ParseUserStatus(req.Status)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         req.Name,
		Locale:       req.Locale,
		Status:       status,
		PasswordHash: string(passwordHash),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	if req.InitialRole != "" && s.memberships != nil {
		if _, err := s.memberships.Grant(ctx, actor.ID, user.ID, req.InitialRole, nil); err != nil {
			s.logger.Warn("failed to grant initial role",
				zap.String("user_id", user.ID),
				zap.String("role", req.InitialRole),
				zap.Error(err))
		}
	}

	s.recordActivity(ctx, actor.ID, models.ActivityUserCreated, user.ID, "account created")
	return user, nil
}

// Update modifies name, locale and, for admin actors, account status.
// Non-admins may only edit their own profile.
func (s *UserService) Update(ctx context.Context, actor *models.User, id string, req UpdateUserRequest) (*models.User, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	isSelf := actor.ID == id
	if !isSelf {
		if err := s.authz.RequireAdmin(actor); err != nil {
			return nil, err
		}
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	user.Name = req.Name
	if req.Locale != "" {
		user.Locale = req.Locale
	}
	if req.Status != nil {
		if !actor.IsAdmin() {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may change account status")
		}
		user.Status = models.ParseUserStatus(*req.Status)
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.recordActivity(ctx, actor.ID, models.ActivityUserUpdated, user.ID, "account updated")
	return user, nil
}

// Delete soft-deletes an account and revokes its open sessions. Admin
// only; self-deletion is rejected.
func (s *UserService) Delete(ctx context.Context, actor *models.User, id string) error {
	if err := s.authz.RequireAdmin(actor); err != nil {
		return err
	}
	if actor.ID == id {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete own account")
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
		s.logger.Warn("failed to revoke sessions of deleted user", zap.String("user_id", id), zap.Error(err))
	}

	s.recordActivity(ctx, actor.ID, models.ActivityUserDeleted, id, "account deleted")
	return nil
}

// Restore clears the soft-delete marker on an account. Admin only.
func (s *UserService) Restore(ctx context.Context, actor *models.User, id string) error {
	if err := s.authz.RequireAdmin(actor); err != nil {
		return err
	}

	if err := s.repo.Restore(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore user")
	}

	s.recordActivity(ctx, actor.ID, models.ActivityUserUpdated, id, "account restored")
	return nil
}

func (s *UserService) recordActivity(ctx context.Context, actorID, action, subjectID, description string) {
	if s.activity == nil {
		return
	}
	entry := &models.Activity{
		UserID:      &actorID,
		Action:      action,
		SubjectType: "user",
		SubjectID:   &subjectID,
		Description: description,
	}
	if err := s.activity.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record user activity", zap.String("action", action), zap.Error(err))
	}
}
