package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/middleware"
)

// AdminCheck answers whether the bearer may use the admin console. It
// relies only on a verified token and a static uid allow-list, not on the
// admin claim, so it keeps working when the profile store is down.
type AdminCheck struct {
	allowed map[string]bool
	Log     logrus.FieldLogger
}

// NewAdminCheck builds the check. An empty allow-list admits any verified
// token.
func NewAdminCheck(uids []string, log logrus.FieldLogger) *AdminCheck {
	allowed := make(map[string]bool, len(uids))
	for _, u := range uids {
		allowed[u] = true
	}
	return &AdminCheck{allowed: allowed, Log: log}
}

// Handle serves every method on the route so unsupported ones get a 405
// carrying the Allow header.
func (h *AdminCheck) Handle(c echo.Context) error {
	switch c.Request().Method {
	case http.MethodGet, http.MethodPost:
	default:
		c.Response().Header().Set(echo.HeaderAllow, "GET, POST")
		return c.JSON(http.StatusMethodNotAllowed, echo.Map{"error": "method not allowed"})
	}
	actor := middleware.ActorFrom(c)
	if !actor.Authenticated() {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing or invalid token"})
	}
	uid := actor.ID()
	if len(h.allowed) > 0 && !h.allowed[uid] {
		h.Log.WithField("user_id", uid).Info("admin check refused")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "uid": uid})
}
