package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/feed"
	"github.com/iliyamo/staymarket/internal/middleware"
	"github.com/iliyamo/staymarket/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// LiveHandler streams feed subscriptions over websockets. Authorization is
// decided before the upgrade so refusals are plain HTTP errors.
type LiveHandler struct {
	Hub      *feed.Hub
	Catalog  *service.CatalogService
	Appeals  *service.AppealService
	Admin    *service.AdminService
	Log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

// NewLiveHandler accepts any origin when allowedOrigins is empty.
func NewLiveHandler(hub *feed.Hub, catalog *service.CatalogService, appeals *service.AppealService, admin *service.AdminService, allowedOrigins []string, log logrus.FieldLogger) *LiveHandler {
	h := &LiveHandler{Hub: hub, Catalog: catalog, Appeals: appeals, Admin: admin, Log: log}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			log.WithField("origin", origin).Warn("websocket origin rejected")
			return false
		},
	}
	return h
}

// Listings streams all listings, or one host's with ?owner=<id>.
func (h *LiveHandler) Listings(c echo.Context) error {
	return h.stream(c, h.Catalog.ListingsQuery(c.QueryParam("owner")))
}

func (h *LiveHandler) MyBookings(c echo.Context) error {
	q, err := h.Catalog.MyBookingsQuery(middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return h.stream(c, q)
}

func (h *LiveHandler) PendingAppeals(c echo.Context) error {
	q, err := h.Appeals.PendingQuery(middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return h.stream(c, q)
}

func (h *LiveHandler) Users(c echo.Context) error {
	q, err := h.Admin.UsersQuery(middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return h.stream(c, q)
}

// stream opens the subscription, upgrades the connection and relays events
// as JSON frames until either side goes away. The subscription is always
// cancelled before returning.
func (h *LiveHandler) stream(c echo.Context, q feed.Query) error {
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	sub, err := h.Hub.Subscribe(ctx, q)
	if err != nil {
		h.Log.WithError(err).WithField("collection", q.Collection).Warn("subscribe failed")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "live feed unavailable"})
	}
	defer sub.Cancel()

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.Log.WithError(err).Debug("websocket upgrade failed")
		return nil
	}
	defer ws.Close()

	log := h.Log.WithFields(logrus.Fields{"collection": q.Collection, "user_id": middleware.ActorFrom(c).ID()})
	log.Debug("live subscription opened")

	// The read side only exists to notice the client going away.
	go func() {
		defer cancel()
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("live subscription closed by client")
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(ev); err != nil {
				log.WithError(err).Debug("live write failed")
				return nil
			}
			if ev.Type == feed.EventError {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ev.Error),
					time.Now().Add(writeWait))
				return nil
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		}
	}
}
