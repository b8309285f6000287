package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/staff_api/internal/observability"
	"github.com/Skotchmaster/staff_api/internal/service"
	"github.com/Skotchmaster/staff_api/pkg/logging"
)

var errorKinds = []struct {
	err     error
	code    int
	message string
}{
	{service.ErrValidation, http.StatusBadRequest, "invalid request"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid username or password"},
	{service.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{service.ErrInvalidRefreshToken, http.StatusUnauthorized, "invalid refresh token"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},
	{service.ErrConflict, http.StatusConflict, "user already exists"},
	{service.ErrNotFound, http.StatusNotFound, "not found"},
}

// ErrorHandler renders service errors with one fixed message per kind. Any
// other error becomes a 500 without detail and is reported to Sentry.
func ErrorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		e.DefaultHTTPErrorHandler(toHTTPError(c, err), c)
	}
}

func toHTTPError(c echo.Context, err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
		return he
	}

	for _, kind := range errorKinds {
		if errors.Is(err, kind.err) {
			return echo.NewHTTPError(kind.code, kind.message)
		}
	}

	ctx := c.Request().Context()
	logging.FromContext(ctx).Error("internal_error", "error", err)
	observability.CaptureError(ctx, err, map[string]string{
		"path":       c.Path(),
		"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
	})
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
