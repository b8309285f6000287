package middleware

import (
	"strconv"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/staff_api/internal/policy"
	"github.com/Skotchmaster/staff_api/internal/service"
	"github.com/Skotchmaster/staff_api/pkg/logging"
	"github.com/Skotchmaster/staff_api/pkg/tokens"
)

const identityKey = "identity"

type AccessVerifier interface {
	VerifyAccess(token string) (tokens.Identity, error)
}

// Guard turns "Authorization: Bearer <token>" into a tokens.Identity stored on
// the echo context. A missing, malformed, expired or forged token stops the
// request with service.ErrUnauthenticated; the handler never runs.
func Guard(v AccessVerifier) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  identityKey,
		TokenLookup: "header:Authorization:Bearer ",
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			return v.VerifyAccess(auth)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			logging.FromContext(c.Request().Context()).Warn("access_denied", "status", 401, "reason", err.Error())
			return service.ErrUnauthenticated
		},
	})
}

// IdentityFrom returns the identity the guard stored. It is the only identity
// source handlers may trust.
func IdentityFrom(c echo.Context) (tokens.Identity, bool) {
	id, ok := c.Get(identityKey).(tokens.Identity)
	return id, ok
}

// Require evaluates rules against the guard's identity.
func Require(rules ...policy.Rule) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return service.ErrUnauthenticated
			}
			if err := policy.Authorize(id, rules...); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// RequireSelfOrAdmin applies policy.SelfOrAdmin to the user id in path
// parameter param.
func RequireSelfOrAdmin(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return service.ErrUnauthenticated
			}
			target, err := strconv.ParseUint(c.Param(param), 10, 32)
			if err != nil {
				return service.ErrValidation
			}
			if err := policy.Authorize(id, policy.SelfOrAdmin(uint(target))); err != nil {
				return err
			}
			return next(c)
		}
	}
}
