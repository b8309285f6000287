package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/staff_api/internal/models"
	"gorm.io/gorm"
)

// UserPatch carries the optional fields of a profile update. PasswordHash is
// already hashed.
type UserPatch struct {
	Username     *string
	PasswordHash *string
	Role         *string
}

func (r *GormRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *GormRepo) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *GormRepo) FindByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	var user models.User
	if err := r.DB.WithContext(ctx).Where("refresh_token = ?", token).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	tx := r.DB.WithContext(ctx).Where("username = ?", u.Username).FirstOrCreate(u)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrDuplicatedKey) {
			return ErrUserAlreadyExist
		}
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrUserAlreadyExist
	}
	return nil
}

// SetRefreshToken overwrites the stored refresh token; nil clears it. Setting
// the token of a missing user is not an error.
func (r *GormRepo) SetRefreshToken(ctx context.Context, id uint, token *string) error {
	err := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("refresh_token", token).Error
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	return nil
}

// RotateRefreshToken replaces oldToken with newToken only while oldToken is
// still the stored value. It reports false when another writer got there
// first.
func (r *GormRepo) RotateRefreshToken(ctx context.Context, id uint, oldToken, newToken string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND refresh_token = ?", id, oldToken).
		Update("refresh_token", newToken)
	if res.Error != nil {
		return false, fmt.Errorf("rotate refresh token: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.DB.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUser applies patch and returns the stored row. A password change also
// clears the refresh token.
func (r *GormRepo) UpdateUser(ctx context.Context, id uint, patch UserPatch) (*models.User, error) {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("id = ?", id).First(&user).Error; err != nil {
			return notFound(err)
		}

		fields := map[string]any{}
		if patch.Username != nil && *patch.Username != user.Username {
			var taken int64
			if err := tx.Model(&models.User{}).
				Where("username = ? AND id <> ?", *patch.Username, id).
				Count(&taken).Error; err != nil {
				return err
			}
			if taken > 0 {
				return ErrUserAlreadyExist
			}
			fields["username"] = *patch.Username
		}
		if patch.PasswordHash != nil {
			fields["password"] = *patch.PasswordHash
			fields["refresh_token"] = nil
		}
		if patch.Role != nil {
			fields["role"] = *patch.Role
		}
		if len(fields) == 0 {
			return nil
		}

		if err := tx.Model(&user).Updates(fields).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUserAlreadyExist
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *GormRepo) DeleteUser(ctx context.Context, id uint) error {
	res := r.DB.WithContext(ctx).Delete(&models.User{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
