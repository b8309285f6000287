package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/staff_api/internal/events"
	"github.com/Skotchmaster/staff_api/internal/middleware"
	"github.com/Skotchmaster/staff_api/internal/repo"
	"github.com/Skotchmaster/staff_api/internal/service"
	"github.com/Skotchmaster/staff_api/internal/transport"
	pkgdb "github.com/Skotchmaster/staff_api/pkg/db"
	"github.com/Skotchmaster/staff_api/pkg/tokens"
)

type testServer struct {
	e      *echo.Echo
	auth   *service.AuthService
	issuer *tokens.Issuer
	ready  error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := pkgdb.Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(db))
	t.Cleanup(func() { _ = pkgdb.Close(db) })

	issuer, err := tokens.NewIssuer([]byte("access"), []byte("refresh"), 15*time.Minute, time.Hour)
	require.NoError(t, err)

	r := repo.New(db)
	ts := &testServer{issuer: issuer}
	ts.auth = &service.AuthService{Repo: r, Tokens: issuer, Events: events.Nop{}}

	ts.e = New(&Deps{
		AuthHandler:      &AuthHTTP{Svc: ts.auth},
		UsersHandler:     &UsersHTTP{Svc: &service.UserService{Repo: r, Auth: ts.auth}},
		PositionsHandler: &PositionsHTTP{Svc: &service.PositionService{Repo: r}},
		Guard:            middleware.Guard(issuer),
		Ready:            func(context.Context) error { return ts.ready },
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) register(t *testing.T, username, password string) uint {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/auth/register", "", transport.Credentials{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res transport.RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res.User.ID
}

func (ts *testServer) login(t *testing.T, username, password string) transport.TokenPair {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/auth/login", "", transport.Credentials{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pair transport.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	return pair
}

func (ts *testServer) admin(t *testing.T) transport.TokenPair {
	t.Helper()

	require.NoError(t, ts.auth.BootstrapAdmin(context.Background(), "root", "toor"))
	return ts.login(t, "root", "toor")
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Message
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health/ready", "", nil).Code)

	ts.ready = errors.New("db down")
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodGet, "/health/ready", "", nil).Code)
}

func TestAuth_Register(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/auth/register", "", transport.Credentials{Username: "alice", Password: "secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	var res transport.RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "User registered successfully", res.Message)
	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, "user", res.User.Role)
	assert.NotZero(t, res.User.ID)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = ts.do(t, http.MethodPost, "/auth/register", "", transport.Credentials{Username: "alice", Password: "secret"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/auth/register", "", transport.Credentials{Username: "bob"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/auth/register", "", transport.Credentials{Username: "bob", Password: strings.Repeat("a", 73)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request")
}

func TestAuth_LoginFailuresLookTheSame(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.register(t, "alice", "secret")

	wrong := ts.do(t, http.MethodPost, "/auth/login", "", transport.Credentials{Username: "alice", Password: "nope"})
	unknown := ts.do(t, http.MethodPost, "/auth/login", "", transport.Credentials{Username: "mallory", Password: "secret"})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestAuth_RefreshRotationAndLogout(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.register(t, "alice", "secret")
	first := ts.login(t, "alice", "secret")
	assert.NotEqual(t, first.AccessToken, first.RefreshToken)

	rec := ts.do(t, http.MethodPost, "/auth/refresh", "", transport.RefreshRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var second transport.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	rec = ts.do(t, http.MethodPost, "/auth/refresh", "", transport.RefreshRequest{RefreshToken: first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid refresh token", errorMessage(t, rec))

	rec = ts.do(t, http.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/auth/logout", second.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/auth/logout", second.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "logout is idempotent and the access token still passes the guard")

	rec = ts.do(t, http.MethodPost, "/auth/refresh", "", transport.RefreshRequest{RefreshToken: second.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuard_RejectsBadTokens(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	id := ts.register(t, "alice", "secret")
	pair := ts.login(t, "alice", "secret")

	past, err := tokens.NewIssuer([]byte("access"), []byte("refresh"), 15*time.Minute, time.Hour,
		tokens.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }))
	require.NoError(t, err)
	expired, _, err := past.IssueAccess(tokens.Subject{ID: id, Username: "alice", Role: "user"})
	require.NoError(t, err)

	for name, token := range map[string]string{
		"malformed":     "not-a-jwt",
		"expired":       expired,
		"refresh token": pair.RefreshToken,
	} {
		rec := ts.do(t, http.MethodGet, "/positions", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.Equal(t, "unauthenticated", errorMessage(t, rec), name)
	}

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/positions", "", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/positions", pair.AccessToken, nil).Code)
}

func TestUsers_Policy(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	aliceID := ts.register(t, "alice", "secret")
	bobID := ts.register(t, "bob", "secret")
	alice := ts.login(t, "alice", "secret")
	root := ts.admin(t)

	own := ts.do(t, http.MethodGet, "/users/"+itoa(aliceID), alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, own.Code)
	var view transport.UserView
	require.NoError(t, json.Unmarshal(own.Body.Bytes(), &view))
	assert.Equal(t, "alice", view.Username)

	other := ts.do(t, http.MethodGet, "/users/"+itoa(bobID), alice.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, other.Code)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/users/"+itoa(bobID), root.AccessToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/users/999", root.AccessToken, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/users/abc", root.AccessToken, nil).Code)

	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodGet, "/users", alice.AccessToken, nil).Code)
	list := ts.do(t, http.MethodGet, "/users", root.AccessToken, nil)
	require.Equal(t, http.StatusOK, list.Code)
	var users []transport.UserView
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &users))
	assert.Len(t, users, 3)
}

func TestUsers_AdminManagement(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	root := ts.admin(t)
	ts.register(t, "alice", "secret")
	alice := ts.login(t, "alice", "secret")

	rec := ts.do(t, http.MethodPost, "/users", alice.AccessToken, transport.CreateUserRequest{Username: "eve", Password: "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/users", root.AccessToken, transport.CreateUserRequest{Username: "carol", Password: "x", Role: "admin"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var carol transport.UserView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &carol))
	assert.Equal(t, "admin", carol.Role)

	rec = ts.do(t, http.MethodPost, "/users", root.AccessToken, transport.CreateUserRequest{Username: "carol", Password: "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodDelete, "/users/"+itoa(carol.ID), alice.AccessToken, nil).Code)

	rec = ts.do(t, http.MethodDelete, "/users/"+itoa(carol.ID), root.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var deleted transport.DeletedUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deleted))
	assert.Equal(t, carol.ID, deleted.DeletedID)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/users/"+itoa(carol.ID), root.AccessToken, nil).Code)
}

func TestUsers_UpdateRoleNeedsAdmin(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	aliceID := ts.register(t, "alice", "secret")
	alice := ts.login(t, "alice", "secret")
	root := ts.admin(t)
	path := "/users/" + itoa(aliceID)

	admin := "admin"
	rec := ts.do(t, http.MethodPut, path, alice.AccessToken, transport.UpdateUserRequest{Role: &admin})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	name := "alice2"
	rec = ts.do(t, http.MethodPut, path, alice.AccessToken, transport.UpdateUserRequest{Username: &name})
	require.Equal(t, http.StatusOK, rec.Code)
	var view transport.UserView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "alice2", view.Username)
	assert.Equal(t, "user", view.Role)

	rec = ts.do(t, http.MethodPut, path, root.AccessToken, transport.UpdateUserRequest{Role: &admin})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "admin", view.Role)
}

func TestPositions_OwnerPolicy(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.register(t, "alice", "secret")
	ts.register(t, "bob", "secret")
	alice := ts.login(t, "alice", "secret")
	bob := ts.login(t, "bob", "secret")
	root := ts.admin(t)

	code, name := "DEV", "Backend Developer"
	rec := ts.do(t, http.MethodPost, "/positions", alice.AccessToken, transport.PositionRequest{PositionCode: &code, PositionName: &name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		PositionID uint   `json:"position_id"`
		UserID     uint   `json:"user_id"`
		Code       string `json:"position_code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "DEV", created.Code)
	path := "/positions/" + itoa(created.PositionID)

	rec = ts.do(t, http.MethodPost, "/positions", alice.AccessToken, transport.PositionRequest{PositionCode: &code})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	newName := "Go Developer"
	rec = ts.do(t, http.MethodPut, path, bob.AccessToken, transport.PositionRequest{PositionName: &newName})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPut, path, alice.AccessToken, transport.PositionRequest{PositionName: &newName})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Position updated successfully", errorMessage(t, rec))

	rec = ts.do(t, http.MethodGet, "/positions/search?q=go", bob.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var found transport.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	assert.EqualValues(t, 1, found.Total)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/positions/search", bob.AccessToken, nil).Code)

	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodDelete, path, bob.AccessToken, nil).Code)
	rec = ts.do(t, http.MethodDelete, path, root.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Position deleted successfully", errorMessage(t, rec))

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, path, alice.AccessToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, path, alice.AccessToken, nil).Code)
}
