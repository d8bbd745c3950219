package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/middleware"
	"github.com/iliyamo/staymarket/internal/service"
)

// AccountHandler serves the caller's own account.
type AccountHandler struct {
	Accounts *service.AccountService
	Log      logrus.FieldLogger
}

func NewAccountHandler(accounts *service.AccountService, log logrus.FieldLogger) *AccountHandler {
	return &AccountHandler{Accounts: accounts, Log: log}
}

type changeEmailReq struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewEmail        string `json:"new_email" validate:"required,email"`
}
type changePasswordReq struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}
type deleteAccountReq struct {
	CurrentPassword string `json:"current_password" validate:"required"`
}

// Me returns the profile together with the effective role.
func (h *AccountHandler) Me(c echo.Context) error {
	actor := middleware.ActorFrom(c)
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Accounts.Profile(ctx, actor)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": u, "role": actor.Role})
}

func (h *AccountHandler) ChangeEmail(c echo.Context) error {
	var req changeEmailReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Accounts.ChangeEmail(ctx, middleware.ActorFrom(c), req.CurrentPassword, req.NewEmail)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": u})
}

// ChangePassword revokes every existing session and hands back a fresh
// pair so the current client stays signed in.
func (h *AccountHandler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Accounts.ChangePassword(ctx, middleware.ActorFrom(c), req.CurrentPassword, req.NewPassword)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toAuthResp(res))
}

func (h *AccountHandler) Delete(c echo.Context) error {
	var req deleteAccountReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.DeleteSelf(ctx, middleware.ActorFrom(c), req.CurrentPassword); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
