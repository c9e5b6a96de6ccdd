package api

import (
	"github.com/labstack/echo/v4"

	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	"github.com/paeltech/savannaFx-sub000/internal/usecase"
	xhttp "github.com/paeltech/savannaFx-sub000/pkg/http"
	"github.com/paeltech/savannaFx-sub000/pkg/http/middleware"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

type SubscriptionsHandler struct {
	logger  *logger.Logger
	account *usecase.SubscriptionAccount
}

func NewSubscriptionsHandler(lgr *logger.Logger, account *usecase.SubscriptionAccount) *SubscriptionsHandler {
	return &SubscriptionsHandler{logger: lgr, account: account}
}

func (h *SubscriptionsHandler) RegisterRoutes(e *echo.Echo) {
	sub := e.Group("/api/subscriptions", middleware.Identify(), middleware.RequireActor())
	sub.POST("", h.Create)
	sub.GET("/current", h.Current)

	admin := e.Group("/api/admin/subscriptions", middleware.Identify(), middleware.RequireAdmin())
	admin.GET("", h.ListActive)
	admin.GET("/:id", h.Get)
	admin.PATCH("/:id", h.AdminUpdate)
	admin.POST("/:id/confirm", h.Confirm)
	admin.POST("/:id/pips", h.ConsumePips)
	admin.POST("/:id/cancel", h.Cancel)
	admin.POST("/:id/expire", h.Expire)
}

func (h *SubscriptionsHandler) Create(c echo.Context) error {
	req := &models.CreateSubscriptionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sub, err := h.account.CreateSubscription(c.Request().Context(), actorID(c), req.PricingID, models.PlanType(req.SubscriptionType), req.Pips)
	if err != nil {
		return fail(c, h.logger, "create subscription", err)
	}
	return xhttp.CreatedResponse(c, sub)
}

func (h *SubscriptionsHandler) Current(c echo.Context) error {
	sub, err := h.account.Current(c.Request().Context(), actorID(c))
	if err != nil {
		return fail(c, h.logger, "current subscription", err)
	}
	return xhttp.SuccessResponse(c, sub)
}

func (h *SubscriptionsHandler) ListActive(c echo.Context) error {
	subs, err := h.account.ListActive(c.Request().Context())
	if err != nil {
		return fail(c, h.logger, "list subscriptions", err)
	}
	return xhttp.ListResponse(c, subs, int64(len(subs)))
}

func (h *SubscriptionsHandler) Get(c echo.Context) error {
	sub, err := h.account.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "get subscription", err)
	}
	return xhttp.SuccessResponse(c, sub)
}

func (h *SubscriptionsHandler) AdminUpdate(c echo.Context) error {
	req := &models.AdminSubscriptionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sub, err := h.account.AdminUpdate(c.Request().Context(), c.Param("id"), req.Patch())
	if err != nil {
		return fail(c, h.logger, "update subscription", err)
	}
	return xhttp.SuccessResponse(c, sub)
}

func (h *SubscriptionsHandler) Confirm(c echo.Context) error {
	req := &models.ConfirmPaymentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sub, err := h.account.ConfirmPayment(c.Request().Context(), c.Param("id"), req.PaymentReference)
	if err != nil {
		return fail(c, h.logger, "confirm payment", err)
	}
	return xhttp.SuccessResponse(c, sub)
}

func (h *SubscriptionsHandler) ConsumePips(c echo.Context) error {
	req := &models.ConsumePipsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sub, err := h.account.ConsumePips(c.Request().Context(), c.Param("id"), req.Pips)
	if err != nil {
		return fail(c, h.logger, "consume pips", err)
	}
	return xhttp.SuccessResponse(c, sub)
}

func (h *SubscriptionsHandler) Cancel(c echo.Context) error {
	sub, err := h.account.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "cancel subscription", err)
	}
	return xhttp.SuccessResponse(c, sub)
}

func (h *SubscriptionsHandler) Expire(c echo.Context) error {
	sub, err := h.account.Expire(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "expire subscription", err)
	}
	return xhttp.SuccessResponse(c, sub)
}
