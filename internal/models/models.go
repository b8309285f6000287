package models

import (
	"time"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

// User is the credential record. RefreshToken holds the single live refresh
// token for the user, or NULL when the user has no session.
type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"           json:"id"`
	Username     string    `gorm:"uniqueIndex;not null;size:64"       json:"username"`
	PasswordHash string    `gorm:"column:password;not null"           json:"-"`
	Role         string    `gorm:"not null;default:user;size:16"      json:"role"`
	RefreshToken *string   `gorm:"column:refresh_token;size:1024"     json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime"                     json:"created_at"`
}

type Position struct {
	PositionID   uint      `gorm:"column:position_id;primaryKey;autoIncrement" json:"position_id"`
	PositionCode string    `gorm:"column:position_code;not null;size:64"       json:"position_code"`
	PositionName string    `gorm:"column:position_name;not null;size:255"      json:"position_name"`
	UserID       uint      `gorm:"column:user_id;index;not null"               json:"user_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime"                              json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"                              json:"updated_at"`
}
