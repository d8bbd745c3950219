package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/staymarket/internal/handler"
	"github.com/iliyamo/staymarket/internal/middleware"
	"github.com/iliyamo/staymarket/internal/model"
)

// RegisterRoutes registers the operational endpoints: probes, metrics and
// the admin check.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, check *handler.AdminCheck) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	// Any so that unsupported methods reach the handler and get 405 + Allow.
	e.Any("/api/admin", check.Handle)
}

// RegisterAuth registers the token endpoints under /v1/auth. None of them
// require an existing session except resend-verification.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)              // rotates the refresh token
	g.POST("/refresh-access", a.RefreshAccess) // keeps the refresh token
	g.POST("/logout", a.Logout)
	g.GET("/verify-email", a.VerifyEmail)
	g.POST("/verify-email", a.VerifyEmail)
	g.POST("/resend-verification", a.ResendVerification, middleware.RequireAuth())
	g.POST("/password-reset", a.RequestPasswordReset)
	g.POST("/password-reset/confirm", a.ConfirmPasswordReset)

	e.POST("/v1/logout", a.Logout)
}

// Groups below take no middleware: echo gives such a group a catch-all
// route, and unknown paths must stay 404. Access checks go on each route.

// RegisterPublic registers catalog reads open to guests. cache is applied
// only here; it serves anonymous callers and steps aside for everyone else.
func RegisterPublic(e *echo.Echo, h *handler.CatalogHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.GET("/listings", h.ListListings, cache)
	g.GET("/listings/:id", h.GetListing, cache)
	g.GET("/hosts/:id/listings", h.HostListings, cache)
}

// RegisterAccount registers the caller's own account, appeal and booking
// endpoints. Every signed-in user qualifies, whatever the role.
func RegisterAccount(e *echo.Echo, a *handler.AccountHandler, ap *handler.AppealHandler, c *handler.CatalogHandler) {
	g := e.Group("/v1")
	auth := middleware.RequireAuth()
	g.GET("/me", a.Me, auth)
	g.PUT("/account/email", a.ChangeEmail, auth)
	g.PUT("/account/password", a.ChangePassword, auth)
	g.DELETE("/account", a.Delete, auth)

	g.GET("/appeal", ap.Mine, auth)
	g.PUT("/appeal", ap.Submit, auth)

	g.POST("/listings/:id/reservations", c.Reserve, auth)
	g.GET("/my-bookings", c.MyBookings, auth)
}

// RegisterHost registers listing management. Admins may act as hosts.
// Deleting only needs a session: the owner keeps that right after losing
// the host flag, and the service decides ownership.
func RegisterHost(e *echo.Echo, h *handler.CatalogHandler) {
	g := e.Group("/v1")
	host := middleware.RequireRole(model.RoleHost, model.RoleAdmin)
	g.POST("/listings", h.CreateListing, host)
	g.GET("/host-bookings", h.HostBookings, host)
	g.DELETE("/listings/:id", h.DeleteListing, middleware.RequireAuth())
}

// RegisterAdmin registers the moderation console under /v1/admin.
func RegisterAdmin(e *echo.Echo, ap *handler.AppealHandler, ad *handler.AdminHandler) {
	g := e.Group("/v1/admin")
	admin := middleware.RequireRole(model.RoleAdmin)
	g.GET("/appeals", ap.Pending, admin)
	g.POST("/appeals/:id/decision", ap.Decide, admin)
	g.GET("/users", ad.ListUsers, admin)
	g.PUT("/users/:id/host", ad.SetHost, admin)
	g.DELETE("/users/:id", ad.DeleteUser, admin)
}

// RegisterLive registers the websocket subscriptions. The handlers enforce
// their own role checks before upgrading.
func RegisterLive(e *echo.Echo, l *handler.LiveHandler) {
	e.GET("/v1/live/listings", l.Listings)
	e.GET("/v1/live/bookings", l.MyBookings)
	e.GET("/v1/admin/live/appeals", l.PendingAppeals)
	e.GET("/v1/admin/live/users", l.Users)
}
