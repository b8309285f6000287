package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/staff_api/internal/middleware"
	"github.com/Skotchmaster/staff_api/internal/policy"
	"github.com/Skotchmaster/staff_api/pkg/logging"
)

type Deps struct {
	AuthHandler      *AuthHTTP
	UsersHandler     *UsersHTTP
	PositionsHandler *PositionsHTTP
	Guard            echo.MiddlewareFunc
	Ready            func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				logging.FromContext(c.Request().Context()).Warn("not_ready", "error", err)
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})

	auth := e.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	auth.POST("/logout", d.AuthHandler.LogOut, d.Guard)

	adminOnly := middleware.Require(policy.AdminOnly())
	selfOrAdmin := middleware.RequireSelfOrAdmin("id")

	users := e.Group("/users", d.Guard)
	users.GET("", d.UsersHandler.List, adminOnly)
	users.POST("", d.UsersHandler.Create, adminOnly)
	users.GET("/:id", d.UsersHandler.Get, selfOrAdmin)
	users.PUT("/:id", d.UsersHandler.Update, selfOrAdmin)
	users.DELETE("/:id", d.UsersHandler.Delete, adminOnly)

	positions := e.Group("/positions", d.Guard)
	positions.GET("", d.PositionsHandler.List)
	positions.GET("/search", d.PositionsHandler.Search)
	positions.GET("/:id", d.PositionsHandler.Get)
	positions.POST("", d.PositionsHandler.Create)
	positions.PUT("/:id", d.PositionsHandler.Update)
	positions.DELETE("/:id", d.PositionsHandler.Delete)
}
