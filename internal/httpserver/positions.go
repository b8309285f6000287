package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/staff_api/internal/middleware"
	"github.com/Skotchmaster/staff_api/internal/policy"
	"github.com/Skotchmaster/staff_api/internal/service"
	"github.com/Skotchmaster/staff_api/internal/transport"
	"github.com/Skotchmaster/staff_api/internal/util"
	"github.com/Skotchmaster/staff_api/pkg/logging"
)

type PositionsHTTP struct {
	Svc *service.PositionService
}

func (h *PositionsHTTP) List(c echo.Context) error {
	items, err := h.Svc.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *PositionsHTTP) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	pos, err := h.Svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pos)
}

func (h *PositionsHTTP) Search(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	offset, limit := util.Calculate(page, size)

	total, items, err := h.Svc.Search(c.Request().Context(), c.QueryParam("q"), offset, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.SearchResult{Total: total, Positions: items})
}

func (h *PositionsHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()

	owner, ok := middleware.IdentityFrom(c)
	if !ok {
		return service.ErrUnauthenticated
	}

	var req transport.PositionRequest
	if err := c.Bind(&req); err != nil {
		logging.FromContext(ctx).Warn("create_position_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	pos, err := h.Svc.Create(ctx, owner.ID, deref(req.PositionCode), deref(req.PositionName))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, pos)
}

func (h *PositionsHTTP) Update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req transport.PositionRequest
	if err := c.Bind(&req); err != nil {
		logging.FromContext(ctx).Warn("update_position_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.authorizeOwner(c, id); err != nil {
		return err
	}

	if _, err := h.Svc.Update(ctx, id, service.PositionUpdate{
		PositionCode: req.PositionCode,
		PositionName: req.PositionName,
	}); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.Message{Message: "Position updated successfully"})
}

func (h *PositionsHTTP) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := h.authorizeOwner(c, id); err != nil {
		return err
	}

	if err := h.Svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.Message{Message: "Position deleted successfully"})
}

// authorizeOwner applies SelfOrAdmin to the position's owner. A missing
// position is a 404 for everyone.
func (h *PositionsHTTP) authorizeOwner(c echo.Context, id uint) error {
	caller, ok := middleware.IdentityFrom(c)
	if !ok {
		return service.ErrUnauthenticated
	}

	pos, err := h.Svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return policy.Authorize(caller, policy.SelfOrAdmin(pos.UserID))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
