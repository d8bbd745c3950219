package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/middleware"
	"github.com/iliyamo/staymarket/internal/service"
)

// CatalogHandler serves listings and bookings.
type CatalogHandler struct {
	Catalog *service.CatalogService
	Log     logrus.FieldLogger
}

func NewCatalogHandler(catalog *service.CatalogService, log logrus.FieldLogger) *CatalogHandler {
	return &CatalogHandler{Catalog: catalog, Log: log}
}

type listingReq struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	ImageURL    string  `json:"image_url"`
	Price       float64 `json:"price"`
}
type reserveReq struct {
	CheckIn    string   `json:"check_in" validate:"required"`
	CheckOut   string   `json:"check_out" validate:"required"`
	Guests     int      `json:"guests"`
	Nights     *int     `json:"nights,omitempty"`
	TotalPrice *float64 `json:"total_price,omitempty"`
}

// ListListings returns the newest listings. ?limit caps the page; the
// service clamps it.
func (h *CatalogHandler) ListListings(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit", "field": "limit"})
		}
		limit = n
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Catalog.ListListings(ctx, limit)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": list})
}

func (h *CatalogHandler) GetListing(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	l, err := h.Catalog.GetListing(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *CatalogHandler) CreateListing(c echo.Context) error {
	var req listingReq
	if err := c.Bind(&req); err != nil {
		return respondError(c, h.Log, errBadBody)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	l, err := h.Catalog.CreateListing(ctx, middleware.ActorFrom(c), service.ListingInput{
		Title:       req.Title,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Price:       req.Price,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *CatalogHandler) DeleteListing(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Catalog.DeleteListing(ctx, middleware.ActorFrom(c), c.Param("id")); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Reserve books the listing in the path for the caller.
func (h *CatalogHandler) Reserve(c echo.Context) error {
	var req reserveReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, err := h.Catalog.Reserve(ctx, middleware.ActorFrom(c), c.Param("id"), service.ReserveInput{
		CheckIn:    req.CheckIn,
		CheckOut:   req.CheckOut,
		Guests:     req.Guests,
		Nights:     req.Nights,
		TotalPrice: req.TotalPrice,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *CatalogHandler) MyBookings(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Catalog.ListMyBookings(ctx, middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// HostBookings lists bookings made against the caller's listings.
func (h *CatalogHandler) HostBookings(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Catalog.ListHostBookings(ctx, middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// HostListings lists one host's listings, newest first.
func (h *CatalogHandler) HostListings(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Catalog.ListByOwner(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": list})
}
