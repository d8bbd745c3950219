package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/service"
)

// respondError maps service errors onto HTTP responses. Unknown errors are
// logged and reported as 500 without detail.
func respondError(c echo.Context, log logrus.FieldLogger, err error) error {
	var ve *service.ValidationError
	switch {
	case errors.Is(err, errBadBody):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, service.ErrAuthenticationRequired):
		msg := "authentication required"
		if errors.Is(err, service.ErrInvalidCredentials) {
			msg = "invalid credentials"
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg})
	case errors.Is(err, service.ErrPermissionDenied):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "permission denied"})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrUnavailable):
		log.WithError(err).Warn("store unavailable")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable, try again"})
	}
	log.WithError(err).WithField("route", c.Path()).Error("unhandled error")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// errBadBody marks a request body that could not be decoded.
var errBadBody = errors.New("invalid body")
