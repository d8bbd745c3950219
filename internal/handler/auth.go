package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/middleware"
	"github.com/iliyamo/staymarket/internal/service"
)

// requestTimeout bounds every store round trip started by a handler.
const requestTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Accounts *service.AccountService
	Log      logrus.FieldLogger
}

func NewAuthHandler(accounts *service.AccountService, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{Accounts: accounts, Log: log}
}

// ----- DTOs -----

type credentialsReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type tokenReq struct {
	Token string `json:"token" validate:"required"`
}
type emailReq struct {
	Email string `json:"email" validate:"required,email"`
}
type resetConfirmReq struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsHost   bool   `json:"is_host"`
	Verified bool   `json:"verified"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func toAuthResp(r *service.AuthResult) authResp {
	return authResp{
		User: userPart{
			ID:       r.User.ID,
			Email:    r.User.Email,
			Role:     string(r.Role),
			IsHost:   r.User.IsHost,
			Verified: r.User.Verified,
		},
		Access:  tokenPart{Token: r.Access.Token, Expires: r.Access.Exp},
		Refresh: tokenPart{Token: r.Refresh.Raw, Expires: r.Refresh.Exp}, // raw back to client
	}
}

// bindValid binds the body into v and runs the registered validator.
func bindValid(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return errBadBody
	}
	return c.Validate(v)
}

// Register creates an account and returns tokens immediately. New users
// always start as guests.
func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsReq
	if err := bindValid(c, &req); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Accounts.Register(ctx, req.Email, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, toAuthResp(res))
}

// Login verifies credentials and returns a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsReq
	if err := bindValid(c, &req); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toAuthResp(res))
}

// Refresh rotates a refresh token: the old one is revoked and a new pair
// returned.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Accounts.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toAuthResp(res))
}

// RefreshAccess returns a new access token without rotating the refresh
// token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	access, err := h.Accounts.RefreshAccess(ctx, req.RefreshToken)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access": tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Logout revokes the refresh token in the body, or every session of the
// bearer when the body carries none.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	actor := middleware.ActorFrom(c)
	if strings.TrimSpace(req.RefreshToken) == "" && !actor.Authenticated() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide Authorization header or refresh_token"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.Logout(ctx, actor, req.RefreshToken); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// VerifyEmail consumes the token from a verification mail. The token may
// come as a query parameter (the mailed link) or in a JSON body.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		var req tokenReq
		if err := bindValid(c, &req); err != nil {
			return h.fail(c, err)
		}
		token = req.Token
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.VerifyEmail(ctx, token); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"verified": true})
}

func (h *AuthHandler) ResendVerification(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.ResendVerification(ctx, middleware.ActorFrom(c)); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

// RequestPasswordReset always answers 202 so the endpoint cannot be used
// to probe which addresses are registered.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req emailReq
	if err := bindValid(c, &req); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.RequestPasswordReset(ctx, req.Email); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *AuthHandler) ConfirmPasswordReset(c echo.Context) error {
	var req resetConfirmReq
	if err := bindValid(c, &req); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.ConfirmPasswordReset(ctx, req.Token, req.Password); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) fail(c echo.Context, err error) error {
	return respondError(c, h.Log, err)
}
