package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Skotchmaster/staff_api/internal/events"
	"github.com/Skotchmaster/staff_api/internal/models"
	"github.com/Skotchmaster/staff_api/internal/repo"
	pkg_hash "github.com/Skotchmaster/staff_api/pkg/hash"
	"github.com/Skotchmaster/staff_api/pkg/logging"
	"github.com/Skotchmaster/staff_api/pkg/tokens"
)

type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id uint) (*models.User, error)
	// FindByRefreshToken resolves the owner of a stored refresh token.
	FindByRefreshToken(ctx context.Context, token string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	SetRefreshToken(ctx context.Context, id uint, token *string) error
	RotateRefreshToken(ctx context.Context, id uint, oldToken, newToken string) (bool, error)
}

type TokenIssuer interface {
	IssueAccess(sub tokens.Subject) (string, time.Time, error)
	IssueRefresh(sub tokens.Subject) (string, time.Time, error)
	VerifyRefresh(token string) (*tokens.RefreshClaims, error)
}

// AuthService owns the session lifecycle: register, login, refresh, logout.
// A user is Anonymous while users.refresh_token is NULL and Authenticated
// while it holds the one live refresh token.
type AuthService struct {
	Repo   CredentialStore
	Tokens TokenIssuer
	Events events.Publisher
}

// Session is the token pair handed to the client. It is returned whole or not
// at all.
type Session struct {
	AccessToken  string
	RefreshToken string
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// equalizer keeps a login for an unknown username as slow as a wrong
// password.
func equalizer() string {
	dummyHashOnce.Do(func() {
		dummyHash, _ = pkg_hash.HashPassword("timing-equalizer")
	})
	return dummyHash
}

func (h *AuthService) Register(ctx context.Context, username, password string) (*models.User, error) {
	return h.RegisterWithRole(ctx, username, password, models.RoleUser)
}

// RegisterWithRole creates a user with an explicit role. Public registration
// always goes through Register.
func (h *AuthService) RegisterWithRole(ctx context.Context, username, password, role string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}
	if err := checkPasswordLength(password); err != nil {
		return nil, err
	}
	if !models.ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	pwHash, err := pkg_hash.HashPassword(password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: pwHash,
		Role:         role,
	}
	if err := h.Repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_failed", "status", 409, "reason", "user_exists")
			return nil, ErrConflict
		}
		l.Error("register_error", "status", 500, "reason", "db_error", "error", err)
		return nil, fmt.Errorf("create user: %w", err)
	}

	h.publish(ctx, "user_registered", user)
	l.Info("register_success", "user_id", user.ID)
	return user, nil
}

func (h *AuthService) Login(ctx context.Context, username, password string) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	user, err := h.Repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			pkg_hash.CheckPassword(equalizer(), password)
			l.Warn("login_failed", "status", 401, "reason", "invalid username or password")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !pkg_hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "invalid username or password")
		return nil, ErrInvalidCredentials
	}

	sess, err := h.issue(user)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot create token", "error", err)
		return nil, err
	}

	// overwriting the stored token ends any other session of this user
	if err := h.Repo.SetRefreshToken(ctx, user.ID, &sess.RefreshToken); err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot store refresh token", "error", err)
		return nil, err
	}

	h.publish(ctx, "user_logged_in", user)
	l.Info("login_successful", "user_id", user.ID)
	return sess, nil
}

// Refresh trades a live refresh token for a new pair. Checks run cheapest
// first: signature and expiry, then the user row, then the stored value. Every
// rejection is the same ErrInvalidRefreshToken.
func (h *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	claims, err := h.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		l.Warn("refresh_rejected", "status", 401, "reason", "bad signature or expired", "error", err)
		return nil, ErrInvalidRefreshToken
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || userID == 0 {
		l.Warn("refresh_rejected", "status", 401, "reason", "bad subject")
		return nil, ErrInvalidRefreshToken
	}

	user, err := h.Repo.FindByID(ctx, uint(userID))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("refresh_rejected", "status", 401, "reason", "unknown subject", "user_id", userID)
			return nil, ErrInvalidRefreshToken
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("find user: %w", err)
	}

	if user.RefreshToken == nil || subtle.ConstantTimeCompare([]byte(*user.RefreshToken), []byte(refreshToken)) != 1 {
		l.Warn("refresh_rejected", "status", 401, "reason", "not the stored token", "user_id", user.ID)
		return nil, ErrInvalidRefreshToken
	}

	sess, err := h.issue(user)
	if err != nil {
		l.Error("refresh_failed", "status", 500, "reason", "cannot create token", "error", err)
		return nil, err
	}

	rotated, err := h.Repo.RotateRefreshToken(ctx, user.ID, refreshToken, sess.RefreshToken)
	if err != nil {
		l.Error("refresh_failed", "status", 500, "reason", "cannot store refresh token", "error", err)
		return nil, err
	}
	if !rotated {
		l.Warn("refresh_rejected", "status", 401, "reason", "lost rotation race", "user_id", user.ID)
		return nil, ErrInvalidRefreshToken
	}

	h.publish(ctx, "tokens_refreshed", user)
	l.Info("refresh_successful", "user_id", user.ID)
	return sess, nil
}

// LogOut clears the stored refresh token. Calling it again is a no-op.
// Access tokens already issued stay valid until they expire.
func (h *AuthService) LogOut(ctx context.Context, userID uint) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	if err := h.Repo.SetRefreshToken(ctx, userID, nil); err != nil {
		l.Error("logout_failed", "status", 500, "reason", "cannot revoke refreshToken", "error", err)
		return err
	}

	h.publish(ctx, "user_logged_out", &models.User{ID: userID})
	l.Info("successful_logout", "user_id", userID)
	return nil
}

// BootstrapAdmin creates the admin account on startup when it does not exist.
func (h *AuthService) BootstrapAdmin(ctx context.Context, username, password string) error {
	l := logging.FromContext(ctx).With("svc", "auth.bootstrap")

	if username == "" && password == "" {
		return nil
	}
	_, err := h.RegisterWithRole(ctx, username, password, models.RoleAdmin)
	if errors.Is(err, ErrConflict) {
		l.Info("admin_exists", "username", username)
		return nil
	}
	return err
}

func (h *AuthService) issue(user *models.User) (*Session, error) {
	sub := tokens.Subject{ID: user.ID, Username: user.Username, Role: user.Role}

	access, _, err := h.Tokens.IssueAccess(sub)
	if err != nil {
		return nil, err
	}
	refresh, _, err := h.Tokens.IssueRefresh(sub)
	if err != nil {
		return nil, err
	}

	return &Session{AccessToken: access, RefreshToken: refresh}, nil
}

func (h *AuthService) publish(ctx context.Context, kind string, user *models.User) {
	if h.Events == nil {
		return
	}
	event := events.UserEvent{
		Type:     kind,
		UserID:   user.ID,
		Username: user.Username,
		At:       time.Now().UTC(),
	}
	if err := h.Events.PublishEvent(ctx, events.TopicUserEvents, strconv.FormatUint(uint64(user.ID), 10), event); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "type", kind, "error", err)
	}
}

func checkPasswordLength(password string) error {
	if len(password) > pkg_hash.MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, pkg_hash.MaxPasswordBytes)
	}
	return nil
}
