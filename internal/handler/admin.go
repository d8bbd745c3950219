package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/middleware"
	"github.com/iliyamo/staymarket/internal/service"
)

// AdminHandler is the admin user-management console.
type AdminHandler struct {
	Admin *service.AdminService
	Log   logrus.FieldLogger
}

func NewAdminHandler(admin *service.AdminService, log logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{Admin: admin, Log: log}
}

type hostFlagReq struct {
	IsHost *bool `json:"is_host" validate:"required"`
}

func (h *AdminHandler) ListUsers(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	users, err := h.Admin.ListUsers(ctx, middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users})
}

func (h *AdminHandler) SetHost(c echo.Context) error {
	var req hostFlagReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Admin.SetHostFlag(ctx, middleware.ActorFrom(c), c.Param("id"), *req.IsHost)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, u)
}

// DeleteUser reports orphaned_identity when only the profile could be
// removed.
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Admin.DeleteUser(ctx, middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": true, "orphaned_identity": res.OrphanedIdentity})
}
