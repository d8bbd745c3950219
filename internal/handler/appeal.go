package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/middleware"
	"github.com/iliyamo/staymarket/internal/model"
	"github.com/iliyamo/staymarket/internal/service"
)

// AppealHandler exposes the host appeal workflow.
type AppealHandler struct {
	Appeals *service.AppealService
	Log     logrus.FieldLogger
}

func NewAppealHandler(appeals *service.AppealService, log logrus.FieldLogger) *AppealHandler {
	return &AppealHandler{Appeals: appeals, Log: log}
}

type submitAppealReq struct {
	DisplayName string `json:"display_name"`
	Message     string `json:"message"`
}
type decisionReq struct {
	Decision string `json:"decision" validate:"required,oneof=approve deny"`
}

// Mine returns the caller's appeal. The appeal id is the caller's uid.
func (h *AppealHandler) Mine(c echo.Context) error {
	actor := middleware.ActorFrom(c)
	ctx, cancel := reqCtx(c)
	defer cancel()

	a, err := h.Appeals.Get(ctx, actor, actor.ID())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *AppealHandler) Submit(c echo.Context) error {
	var req submitAppealReq
	if err := c.Bind(&req); err != nil {
		return respondError(c, h.Log, errBadBody)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	a, err := h.Appeals.Submit(ctx, middleware.ActorFrom(c), service.SubmitInput{
		DisplayName: req.DisplayName,
		Message:     req.Message,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, a)
}

// Pending lists appeals awaiting review, oldest first.
func (h *AppealHandler) Pending(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Appeals.ListPending(ctx, middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"appeals": list})
}

func (h *AppealHandler) Decide(c echo.Context) error {
	var req decisionReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	a, err := h.Appeals.Decide(ctx, middleware.ActorFrom(c), c.Param("id"), model.Decision(req.Decision))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, a)
}
