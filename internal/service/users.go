package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Skotchmaster/staff_api/internal/models"
	"github.com/Skotchmaster/staff_api/internal/repo"
	pkg_hash "github.com/Skotchmaster/staff_api/pkg/hash"
	"github.com/Skotchmaster/staff_api/pkg/logging"
)

type UserStore interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	FindByID(ctx context.Context, id uint) (*models.User, error)
	UpdateUser(ctx context.Context, id uint, patch repo.UserPatch) (*models.User, error)
	DeleteUser(ctx context.Context, id uint) error
}

type UserService struct {
	Repo UserStore
	Auth *AuthService
}

// UserUpdate carries the fields a caller asked to change. Nil means keep.
type UserUpdate struct {
	Username *string
	Password *string
	Role     *string
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	users, err := s.Repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return user, nil
}

func (s *UserService) Create(ctx context.Context, username, password, role string) (*models.User, error) {
	if role == "" {
		role = models.RoleUser
	}
	return s.Auth.RegisterWithRole(ctx, username, password, role)
}

// Update applies upd. A new password is hashed here and ends the user's
// session in the same write.
func (s *UserService) Update(ctx context.Context, id uint, upd UserUpdate) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "users.update")

	name, err := nonBlank(upd.Username, "username")
	if err != nil {
		return nil, err
	}
	patch := repo.UserPatch{Username: name}
	if upd.Role != nil {
		if !models.ValidRole(*upd.Role) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, *upd.Role)
		}
		patch.Role = upd.Role
	}
	if upd.Password != nil {
		if strings.TrimSpace(*upd.Password) == "" {
			return nil, fmt.Errorf("%w: password must not be empty", ErrValidation)
		}
		if err := checkPasswordLength(*upd.Password); err != nil {
			return nil, err
		}
		pwHash, err := pkg_hash.HashPassword(*upd.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		patch.PasswordHash = &pwHash
	}

	user, err := s.Repo.UpdateUser(ctx, id, patch)
	if err != nil {
		return nil, mapStoreError(err)
	}

	l.Info("user_updated", "user_id", id, "password_changed", patch.PasswordHash != nil)
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, id uint) error {
	if err := s.Repo.DeleteUser(ctx, id); err != nil {
		return mapStoreError(err)
	}
	logging.FromContext(ctx).Info("user_deleted", "user_id", id)
	return nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repo.ErrUserAlreadyExist):
		return ErrConflict
	default:
		return fmt.Errorf("store: %w", err)
	}
}
