package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/staff_api/internal/policy"
	"github.com/Skotchmaster/staff_api/internal/service"
	"github.com/Skotchmaster/staff_api/pkg/tokens"
)

func newIssuer(t *testing.T, opts ...tokens.Option) *tokens.Issuer {
	t.Helper()

	iss, err := tokens.NewIssuer([]byte("access"), []byte("refresh"), 15*time.Minute, time.Hour, opts...)
	require.NoError(t, err)
	return iss
}

func newContext(authorization string) echo.Context {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set(echo.HeaderAuthorization, authorization)
	}
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestGuard_Rejects(t *testing.T) {
	t.Parallel()

	iss := newIssuer(t)
	sub := tokens.Subject{ID: 1, Username: "alice", Role: "user"}

	expired, _, err := newIssuer(t, tokens.WithClock(func() time.Time { return time.Now().Add(-time.Hour) })).IssueAccess(sub)
	require.NoError(t, err)
	refresh, _, err := iss.IssueRefresh(sub)
	require.NoError(t, err)
	valid, _, err := iss.IssueAccess(sub)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "no scheme", header: valid},
		{name: "basic scheme", header: "Basic YWxpY2U6c2VjcmV0"},
		{name: "malformed", header: "Bearer not-a-jwt"},
		{name: "expired", header: "Bearer " + expired},
		{name: "refresh token", header: "Bearer " + refresh},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reached := false
			h := Guard(iss)(func(c echo.Context) error {
				reached = true
				return nil
			})

			err := h(newContext(tt.header))
			assert.ErrorIs(t, err, service.ErrUnauthenticated)
			assert.False(t, reached)
		})
	}
}

func TestGuard_StoresIdentity(t *testing.T) {
	t.Parallel()

	iss := newIssuer(t)
	token, _, err := iss.IssueAccess(tokens.Subject{ID: 7, Username: "alice", Role: "admin"})
	require.NoError(t, err)

	var got tokens.Identity
	h := Guard(iss)(func(c echo.Context) error {
		var ok bool
		got, ok = IdentityFrom(c)
		require.True(t, ok)
		return nil
	})

	require.NoError(t, h(newContext("Bearer "+token)))
	assert.Equal(t, tokens.Identity{ID: 7, Username: "alice", Role: "admin"}, got)
}

func TestRequire(t *testing.T) {
	t.Parallel()

	ok := func(c echo.Context) error { return nil }

	c := newContext("")
	assert.ErrorIs(t, Require(policy.AdminOnly())(ok)(c), service.ErrUnauthenticated)

	c.Set(identityKey, tokens.Identity{ID: 2, Role: "user"})
	assert.ErrorIs(t, Require(policy.AdminOnly())(ok)(c), service.ErrForbidden)

	c.Set(identityKey, tokens.Identity{ID: 1, Role: "admin"})
	assert.NoError(t, Require(policy.AdminOnly())(ok)(c))
}

func TestRequireSelfOrAdmin(t *testing.T) {
	t.Parallel()

	ok := func(c echo.Context) error { return nil }

	tests := []struct {
		name    string
		id      tokens.Identity
		param   string
		wantErr error
	}{
		{name: "self", id: tokens.Identity{ID: 2, Role: "user"}, param: "2"},
		{name: "other", id: tokens.Identity{ID: 2, Role: "user"}, param: "3", wantErr: service.ErrForbidden},
		{name: "admin", id: tokens.Identity{ID: 1, Role: "admin"}, param: "3"},
		{name: "bad id", id: tokens.Identity{ID: 1, Role: "admin"}, param: "x", wantErr: service.ErrValidation},
	}

	for _, tt := range tests {
		c := newContext("")
		c.SetParamNames("id")
		c.SetParamValues(tt.param)
		c.Set(identityKey, tt.id)

		err := RequireSelfOrAdmin("id")(ok)(c)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, tt.name)
			continue
		}
		assert.NoError(t, err, tt.name)
	}
}
