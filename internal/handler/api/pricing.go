package api

import (
	"github.com/labstack/echo/v4"

	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	"github.com/paeltech/savannaFx-sub000/internal/usecase"
	xhttp "github.com/paeltech/savannaFx-sub000/pkg/http"
	"github.com/paeltech/savannaFx-sub000/pkg/http/middleware"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

type PricingHandler struct {
	logger  *logger.Logger
	account *usecase.SubscriptionAccount
}

func NewPricingHandler(lgr *logger.Logger, account *usecase.SubscriptionAccount) *PricingHandler {
	return &PricingHandler{logger: lgr, account: account}
}

func (h *PricingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/pricing", h.ListActive)

	admin := e.Group("/api/admin/pricing", middleware.Identify(), middleware.RequireAdmin())
	admin.GET("", h.List)
	admin.PUT("/:type", h.Upsert)
}

func (h *PricingHandler) List(c echo.Context) error {
	plans, err := h.account.ListPlans(c.Request().Context())
	if err != nil {
		return fail(c, h.logger, "list pricing", err)
	}
	return xhttp.ListResponse(c, plans, int64(len(plans)))
}

// ListActive is the public catalogue.
func (h *PricingHandler) ListActive(c echo.Context) error {
	plans, err := h.account.ListPlans(c.Request().Context())
	if err != nil {
		return fail(c, h.logger, "list pricing", err)
	}
	active := plans[:0]
	for _, p := range plans {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return xhttp.ListResponse(c, active, int64(len(active)))
}

func (h *PricingHandler) Upsert(c echo.Context) error {
	req := &models.UpsertPlanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	plan, err := h.account.UpsertPlan(c.Request().Context(), models.PricingPlan{
		PricingType: models.PlanType(c.Param("type")),
		Price:       req.Price,
		Currency:    req.Currency,
		Description: req.Description,
		IsActive:    active,
	})
	if err != nil {
		return fail(c, h.logger, "upsert pricing", err)
	}
	return xhttp.SuccessResponse(c, plan)
}
