package api

import (
	"github.com/labstack/echo/v4"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	"github.com/paeltech/savannaFx-sub000/internal/usecase"
	xhttp "github.com/paeltech/savannaFx-sub000/pkg/http"
	"github.com/paeltech/savannaFx-sub000/pkg/http/middleware"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

// SignalsHandler serves the ledger to admins and the published signals to subscribers.
type SignalsHandler struct {
	logger     *logger.Logger
	ledger     *usecase.SignalLedger
	notifier   usecase.SignalNotifier
	dispatcher *usecase.NotificationDispatcher
	account    *usecase.SubscriptionAccount
}

func NewSignalsHandler(
	lgr *logger.Logger,
	ledger *usecase.SignalLedger,
	notifier usecase.SignalNotifier,
	dispatcher *usecase.NotificationDispatcher,
	account *usecase.SubscriptionAccount,
) *SignalsHandler {
	return &SignalsHandler{logger: lgr, ledger: ledger, notifier: notifier, dispatcher: dispatcher, account: account}
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	admin := e.Group("/api/admin/signals", middleware.Identify(), middleware.RequireAdmin())
	admin.GET("", h.AdminList)
	admin.POST("", h.Create)
	admin.PATCH("/:id", h.Update)
	admin.GET("/:id/history", h.History)
	admin.GET("/:id/verify", h.Verify)
	admin.POST("/:id/dispatch", h.Dispatch)

	sub := e.Group("/api/signals", middleware.Identify(), middleware.RequireActor())
	sub.GET("", h.List)
	sub.GET("/:id", h.Get)
}

type createSignalResponse struct {
	Signal   *models.Signal            `json:"signal"`
	Dispatch *usecase.DispatchOutcome `json:"dispatch"`
}

func (h *SignalsHandler) Create(c echo.Context) error {
	req := &models.CreateSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	sig, err := h.ledger.Create(ctx, actorID(c), req.State())
	if err != nil {
		return fail(c, h.logger, "create signal", err)
	}
	// the signal is committed; dispatch problems are reported, not raised
	out := h.notifier.NotifySignalCreated(ctx, sig)
	return xhttp.CreatedResponse(c, createSignalResponse{Signal: sig, Dispatch: out})
}

type updateSignalResponse struct {
	*usecase.UpdateResult
	Dispatch *usecase.DispatchOutcome `json:"dispatch,omitempty"`
}

func (h *SignalsHandler) Update(c echo.Context) error {
	req := &models.UpdateSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	res, err := h.ledger.Update(ctx, actorID(c), c.Param("id"), req.Patch())
	if err != nil {
		return fail(c, h.logger, "update signal", err)
	}
	out := updateSignalResponse{UpdateResult: res}
	if res.Revision != nil {
		out.Dispatch = h.notifier.NotifySignalUpdated(ctx, res.Signal, res.Changes)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *SignalsHandler) History(c echo.Context) error {
	revs, err := h.ledger.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "signal history", err)
	}
	return xhttp.ListResponse(c, revs, int64(len(revs)))
}

func (h *SignalsHandler) Verify(c echo.Context) error {
	res, err := h.ledger.Verify(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "verify signal", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// Dispatch re-sends the current state synchronously regardless of dispatch mode.
func (h *SignalsHandler) Dispatch(c echo.Context) error {
	summary, err := h.dispatcher.Redispatch(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "dispatch signal", err)
	}
	return xhttp.SuccessResponse(c, summary)
}

func (h *SignalsHandler) AdminList(c echo.Context) error {
	sigs, err := h.ledger.List(c.Request().Context(), signalFilter(c))
	if err != nil {
		return fail(c, h.logger, "list signals", err)
	}
	return xhttp.ListResponse(c, sigs, int64(len(sigs)))
}

func (h *SignalsHandler) List(c echo.Context) error {
	if err := h.requireSubscriber(c); err != nil {
		return fail(c, h.logger, "list signals", err)
	}
	sigs, err := h.ledger.List(c.Request().Context(), signalFilter(c))
	if err != nil {
		return fail(c, h.logger, "list signals", err)
	}
	views := make([]models.SignalView, len(sigs))
	for i, s := range sigs {
		views[i] = models.NewSignalView(s)
	}
	return xhttp.ListResponse(c, views, int64(len(views)))
}

func (h *SignalsHandler) Get(c echo.Context) error {
	if err := h.requireSubscriber(c); err != nil {
		return fail(c, h.logger, "get signal", err)
	}
	sig, err := h.ledger.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "get signal", err)
	}
	return xhttp.SuccessResponse(c, models.NewSignalView(*sig))
}

// requireSubscriber lets admins through and otherwise needs an active subscription.
func (h *SignalsHandler) requireSubscriber(c echo.Context) error {
	a, _ := middleware.ActorFrom(c)
	if a.IsAdmin() {
		return nil
	}
	sub, err := h.account.Current(c.Request().Context(), a.ID)
	if err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			return xhttp.ForbiddenError("an active subscription is required")
		}
		return err
	}
	if sub.Status != models.SubscriptionActive {
		return xhttp.ForbiddenError("subscription is " + string(sub.Status))
	}
	return nil
}

func signalFilter(c echo.Context) models.SignalFilter {
	limit, offset := xhttp.Pagination(c, 50, 200)
	return models.SignalFilter{
		Status:      models.SignalStatus(c.QueryParam("status")),
		TradingPair: c.QueryParam("pair"),
		Limit:       limit,
		Offset:      offset,
	}
}
