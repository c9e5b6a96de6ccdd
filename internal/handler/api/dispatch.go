package api

import (
	"context"
	"strconv"

	"github.com/labstack/echo/v4"

	xhttp "github.com/paeltech/savannaFx-sub000/pkg/http"
	"github.com/paeltech/savannaFx-sub000/pkg/http/middleware"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
	"github.com/paeltech/savannaFx-sub000/pkg/queue"
)

// ParkedMessages lists queued dispatches whose job failed.
type ParkedMessages interface {
	Failed(ctx context.Context, limit int64) ([]queue.Message, error)
}

// DispatchHandler exposes parked dispatch jobs. parked is nil in sync mode.
type DispatchHandler struct {
	logger *logger.Logger
	parked ParkedMessages
}

func NewDispatchHandler(lgr *logger.Logger, parked ParkedMessages) *DispatchHandler {
	return &DispatchHandler{logger: lgr, parked: parked}
}

func (h *DispatchHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/admin/dispatch", middleware.Identify(), middleware.RequireAdmin())
	g.GET("/failed", h.Failed)
}

func (h *DispatchHandler) Failed(c echo.Context) error {
	if h.parked == nil {
		return xhttp.ListResponse(c, []queue.Message{}, 0)
	}
	limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	msgs, err := h.parked.Failed(c.Request().Context(), limit)
	if err != nil {
		return fail(c, h.logger, "list parked dispatches", err)
	}
	return xhttp.ListResponse(c, msgs, int64(len(msgs)))
}
