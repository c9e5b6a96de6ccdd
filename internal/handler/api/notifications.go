package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	drepo "github.com/paeltech/savannaFx-sub000/internal/domain/repository"
	"github.com/paeltech/savannaFx-sub000/internal/service/contacts"
	"github.com/paeltech/savannaFx-sub000/internal/service/realtime"
	xhttp "github.com/paeltech/savannaFx-sub000/pkg/http"
	"github.com/paeltech/savannaFx-sub000/pkg/http/middleware"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
	"github.com/paeltech/savannaFx-sub000/pkg/util"
)

// NotificationsHandler serves the in-app mailbox, its live feed and the
// subscriber's gateway address.
type NotificationsHandler struct {
	logger   *logger.Logger
	mailbox  drepo.NotificationStore
	hub      *realtime.Hub
	contacts *contacts.Directory
}

func NewNotificationsHandler(lgr *logger.Logger, mailbox drepo.NotificationStore, hub *realtime.Hub, dir *contacts.Directory) *NotificationsHandler {
	return &NotificationsHandler{logger: lgr, mailbox: mailbox, hub: hub, contacts: dir}
}

func (h *NotificationsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", middleware.Identify(), middleware.RequireActor())
	g.GET("/notifications", h.List)
	g.POST("/notifications/:id/read", h.MarkRead)
	g.PUT("/me/contact", h.RegisterContact)

	e.GET("/ws/notifications", h.Stream, middleware.Identify(), middleware.RequireActor())
}

func (h *NotificationsHandler) List(c echo.Context) error {
	f := models.InboxFilter{UnreadOnly: c.QueryParam("unread") == "true"}
	f.Limit, _ = xhttp.Pagination(c, 50, 200)
	if raw := c.QueryParam("since"); raw != "" {
		since, ok := util.ParseTime(raw)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_VALIDATION", "since", "since must be RFC3339 or unix seconds", http.StatusBadRequest))
		}
		f.Since = since
	}
	items, err := h.mailbox.ListNotifications(c.Request().Context(), actorID(c), f)
	if err != nil {
		return fail(c, h.logger, "list notifications", err)
	}
	return xhttp.ListResponse(c, items, int64(len(items)))
}

func (h *NotificationsHandler) MarkRead(c echo.Context) error {
	if err := h.mailbox.MarkRead(c.Request().Context(), actorID(c), c.Param("id")); err != nil {
		return fail(c, h.logger, "mark notification read", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *NotificationsHandler) RegisterContact(c echo.Context) error {
	req := &models.RegisterContactRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.contacts.Register(c.Request().Context(), actorID(c), req.Target); err != nil {
		return fail(c, h.logger, "register contact", err)
	}
	return xhttp.NoContentResponse(c)
}

// Stream upgrades to a websocket that receives new mailbox entries.
func (h *NotificationsHandler) Stream(c echo.Context) error {
	if err := h.hub.Serve(c.Response(), c.Request(), actorID(c)); err != nil {
		h.logger.Debug("websocket upgrade failed", logger.Error(err))
		return nil
	}
	return nil
}
