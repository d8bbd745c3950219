package middleware

// identity.go stores and retrieves the per-request Actor. Handlers read it
// with ActorFrom; nothing else in the process holds a signed-in user.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/staymarket/internal/service"
)

const actorKey = "actor"

func setActor(c echo.Context, a service.Actor) { c.Set(actorKey, a) }

// ActorFrom returns the caller set by Authenticate, or Guest when the
// middleware did not run.
func ActorFrom(c echo.Context) service.Actor {
	if a, ok := c.Get(actorKey).(service.Actor); ok {
		return a
	}
	return service.Guest
}

// userID returns the caller's id, or "anon" for guests.
func userID(c echo.Context) string {
	if id := ActorFrom(c).ID(); id != "" {
		return id
	}
	return "anon"
}
