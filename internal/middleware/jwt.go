package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/staymarket/internal/model"
	"github.com/iliyamo/staymarket/internal/service"
)

// TokenVerifier checks a raw bearer token. *service.AccountService
// implements it.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (*model.Session, error)
}

// RoleResolver derives the effective role of a session.
type RoleResolver interface {
	ResolveRole(ctx context.Context, s *model.Session) model.Role
}

// Authenticate decodes an optional bearer token and stores the caller's
// Actor in the context. Requests without an Authorization header continue
// as guests; a header carrying an invalid, expired or revoked token is
// rejected with 401 so a client never silently loses its session.
func Authenticate(v TokenVerifier, r RoleResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, present := bearer(c.Request())
			if !present {
				setActor(c, service.Guest)
				return next(c)
			}
			ctx := c.Request().Context()
			sess, err := v.VerifyToken(ctx, raw)
			if err != nil {
				if errors.Is(err, service.ErrUnavailable) {
					return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "identity store unavailable"})
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			setActor(c, service.Actor{Session: sess, Role: r.ResolveRole(ctx, sess)})
			return next(c)
		}
	}
}

// bearer extracts the token of an "Authorization: Bearer" header. present
// is true whenever an Authorization header was sent, even a malformed one.
// Browsers cannot set headers on websocket handshakes, so upgrade requests
// may carry the token as ?access_token= instead.
func bearer(r *http.Request) (token string, present bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		if websocket.IsWebSocketUpgrade(r) {
			if t := r.URL.Query().Get("access_token"); t != "" {
				return t, true
			}
		}
		return "", false
	}
	const prefix = "Bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", true
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
