package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
	"github.com/paeltech/savannaFx-sub000/internal/usecase"
	xhttp "github.com/paeltech/savannaFx-sub000/pkg/http"
	"github.com/paeltech/savannaFx-sub000/pkg/http/middleware"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
	"github.com/paeltech/savannaFx-sub000/pkg/util"
)

type GroupsHandler struct {
	logger    *logger.Logger
	allocator *usecase.GroupAllocator
}

func NewGroupsHandler(lgr *logger.Logger, allocator *usecase.GroupAllocator) *GroupsHandler {
	return &GroupsHandler{logger: lgr, allocator: allocator}
}

func (h *GroupsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/admin/groups", middleware.Identify(), middleware.RequireAdmin())
	g.GET("", h.List)
	g.POST("/refresh", h.Refresh)
}

type refreshResponse struct {
	Summary interface{} `json:"summary"`
	Error   string      `json:"error,omitempty"`
}

// Refresh reports partial progress with 207 and a stopped batch with 502;
// assignments made before the failure stay.
func (h *GroupsHandler) Refresh(c echo.Context) error {
	summary, err := h.allocator.Refresh(c.Request().Context())
	if err != nil && summary == nil {
		return fail(c, h.logger, "refresh groups", err)
	}
	if err != nil {
		status := http.StatusMultiStatus
		if errs.KindOf(err) == errs.KindExternal {
			status = http.StatusBadGateway
		}
		h.logger.Warn("group refresh incomplete", logger.Error(err))
		return xhttp.DataResponse(c, status, refreshResponse{Summary: summary, Error: err.Error()})
	}
	return xhttp.SuccessResponse(c, refreshResponse{Summary: summary})
}

func (h *GroupsHandler) List(c echo.Context) error {
	month := c.QueryParam("month")
	if month != "" {
		norm, ok := util.ParseMonthKey(month)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_VALIDATION", "month", "month must be YYYY-MM", http.StatusBadRequest))
		}
		month = norm
	}
	groups, err := h.allocator.ListGroups(c.Request().Context(), month)
	if err != nil {
		return fail(c, h.logger, "list groups", err)
	}
	return xhttp.ListResponse(c, groups, int64(len(groups)))
}
