package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	"github.com/paeltech/savannaFx-sub000/internal/repository/memory"
	"github.com/paeltech/savannaFx-sub000/internal/service/contacts"
	"github.com/paeltech/savannaFx-sub000/internal/service/gateway"
	"github.com/paeltech/savannaFx-sub000/internal/service/realtime"
	"github.com/paeltech/savannaFx-sub000/internal/usecase"
	"github.com/paeltech/savannaFx-sub000/pkg/cache"
	"github.com/paeltech/savannaFx-sub000/pkg/clock"
	xhttp "github.com/paeltech/savannaFx-sub000/pkg/http"
	"github.com/paeltech/savannaFx-sub000/pkg/http/middleware"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
	"github.com/paeltech/savannaFx-sub000/pkg/metrics"
	"github.com/paeltech/savannaFx-sub000/pkg/queue"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	srv     *xhttp.Server
	store   *memory.Store
	account *usecase.SubscriptionAccount
	parked  *fakeParked
}

type fakeParked struct {
	msgs  []queue.Message
	limit int64
}

func (f *fakeParked) Failed(_ context.Context, limit int64) ([]queue.Message, error) {
	f.limit = limit
	return f.msgs, nil
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	lgr := logger.NewNop()
	store := memory.New()
	clk := clock.NewManual(time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC))
	gw := gateway.NewLoopback(lgr)
	dir := contacts.New(cache.NewMemoryCache())
	hub := realtime.NewHub(lgr)

	ledger := usecase.NewSignalLedger(store, nil, metrics.Nop{}, clk, node, lgr)
	account := usecase.NewSubscriptionAccount(store, store, nil, metrics.Nop{}, clk, lgr)
	allocator := usecase.NewGroupAllocator(store, store, gw, nil, nil, metrics.Nop{}, clk, lgr, usecase.AllocatorConfig{DefaultMaxMembers: 2})
	dispatcher := usecase.NewNotificationDispatcher(usecase.DispatcherDeps{
		Signals:  store,
		Subs:     store,
		Mailbox:  store,
		Gateway:  gw,
		Contacts: dir,
		Pusher:   hub,
		Metrics:  metrics.Nop{},
		Clock:    clk,
		Logger:   lgr,
	}, nil, usecase.DispatcherConfig{})
	parked := &fakeParked{}

	srv := xhttp.NewServer(lgr, []xhttp.Handler{
		NewHealthHandler(map[string]Pinger{"storage": func(context.Context) error { return nil }}),
		NewSignalsHandler(lgr, ledger, dispatcher, dispatcher, account),
		NewSubscriptionsHandler(lgr, account),
		NewGroupsHandler(lgr, allocator),
		NewPricingHandler(lgr, account),
		NewNotificationsHandler(lgr, store, hub, dir),
		NewDispatchHandler(lgr, parked),
	}, xhttp.WithMetricsPath(""))
	return &testAPI{srv: srv, store: store, account: account, parked: parked}
}

func (a *testAPI) do(t *testing.T, method, path, actor, role string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(middleware.HeaderActorID, actor)
	}
	if role != "" {
		req.Header.Set(middleware.HeaderActorRole, role)
	}
	rec := httptest.NewRecorder()
	a.srv.Echo().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, env
}

func (a *testAPI) subscribe(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	plan, err := a.store.GetPlanByType(ctx, models.PlanMonthly)
	if err != nil {
		plan, err = a.account.UpsertPlan(ctx, models.PricingPlan{
			PricingType: models.PlanMonthly,
			Price:       decimal.RequireFromString("49"),
			IsActive:    true,
		})
		if err != nil {
			t.Fatalf("plan: %v", err)
		}
	}
	sub, err := a.account.CreateSubscription(ctx, userID, plan.ID, models.PlanMonthly, 0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := a.account.ConfirmPayment(ctx, sub.ID, "pay-"+userID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
}

var eurusdBody = map[string]interface{}{
	"trading_pair": "EUR/USD",
	"signal_type":  "buy",
	"entry_price":  "1.0850",
	"stop_loss":    "1.0820",
}

func TestCreateSignalFlow(t *testing.T) {
	a := newTestAPI(t)
	for _, u := range []string{"user-1", "user-2", "user-3"} {
		a.subscribe(t, u)
	}

	code, env := a.do(t, http.MethodPost, "/api/admin/signals", "admin-1", "admin", eurusdBody)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d, data = %s", code, env.Data)
	}
	var created struct {
		Signal   models.Signal            `json:"signal"`
		Dispatch usecase.DispatchOutcome `json:"dispatch"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Signal.Status != models.SignalActive || created.Signal.CreatedBy != "admin-1" {
		t.Fatalf("signal = %+v", created.Signal)
	}
	s := created.Dispatch.Summary
	if s == nil || s.TotalSubscribers != 3 || s.SuccessCount+s.FailureCount != 3 {
		t.Fatalf("dispatch = %+v", created.Dispatch)
	}

	id := created.Signal.ID
	code, env = a.do(t, http.MethodPatch, "/api/admin/signals/"+id, "admin-1", "admin", map[string]interface{}{"stop_loss": "1.0800"})
	if code != http.StatusOK {
		t.Fatalf("update status = %d, data = %s", code, env.Data)
	}
	var updated struct {
		Changes map[string]json.RawMessage `json:"changes"`
	}
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(updated.Changes) != 1 || updated.Changes["stop_loss"] == nil {
		t.Fatalf("changes = %v", updated.Changes)
	}

	code, env = a.do(t, http.MethodGet, "/api/admin/signals/"+id+"/history", "admin-1", "admin", nil)
	if code != http.StatusOK {
		t.Fatalf("history status = %d", code)
	}
	var history struct {
		Rows  []models.SignalRevision `json:"rows"`
		Total int64                   `json:"total"`
	}
	_ = json.Unmarshal(env.Data, &history)
	if history.Total != 2 || history.Rows[0].RevisionType != models.RevisionInitial {
		t.Fatalf("history = %+v", history)
	}

	// subscribers read the published view
	code, _ = a.do(t, http.MethodGet, "/api/signals/"+id, "user-1", "", nil)
	if code != http.StatusOK {
		t.Fatalf("subscriber get status = %d", code)
	}
	code, _ = a.do(t, http.MethodGet, "/api/signals/"+id, "stranger", "", nil)
	if code != http.StatusForbidden {
		t.Fatalf("non-subscriber get status = %d, want 403", code)
	}
}

func TestCreateSignalValidation(t *testing.T) {
	a := newTestAPI(t)
	body := map[string]interface{}{"trading_pair": "EUR/USD", "signal_type": "hold", "entry_price": "1", "stop_loss": "1"}
	code, _ := a.do(t, http.MethodPost, "/api/admin/signals", "admin-1", "admin", body)
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	body = map[string]interface{}{"trading_pair": "EUR/USD", "signal_type": "buy", "entry_price": "0", "stop_loss": "1"}
	code, _ = a.do(t, http.MethodPost, "/api/admin/signals", "admin-1", "admin", body)
	if code != http.StatusBadRequest {
		t.Fatalf("zero entry status = %d, want 400", code)
	}
}

func TestAdminRoutesNeedAdminRole(t *testing.T) {
	a := newTestAPI(t)
	if code, _ := a.do(t, http.MethodPost, "/api/admin/signals", "", "", eurusdBody); code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", code)
	}
	if code, _ := a.do(t, http.MethodPost, "/api/admin/signals", "user-1", "subscriber", eurusdBody); code != http.StatusForbidden {
		t.Fatalf("subscriber status = %d, want 403", code)
	}
}

func TestSubscriptionEndpoints(t *testing.T) {
	a := newTestAPI(t)
	code, env := a.do(t, http.MethodPut, "/api/admin/pricing/per_pip", "admin-1", "admin", map[string]interface{}{"price": "0.50"})
	if code != http.StatusOK {
		t.Fatalf("upsert plan status = %d, data = %s", code, env.Data)
	}
	var plan models.PricingPlan
	_ = json.Unmarshal(env.Data, &plan)

	req := map[string]interface{}{"pricing_id": plan.ID, "subscription_type": "per_pip", "pips": 100}
	code, env = a.do(t, http.MethodPost, "/api/subscriptions", "user-1", "", req)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d, data = %s", code, env.Data)
	}
	var sub models.Subscription
	_ = json.Unmarshal(env.Data, &sub)

	if code, _ := a.do(t, http.MethodPost, "/api/subscriptions", "user-1", "", req); code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", code)
	}

	base := "/api/admin/subscriptions/" + sub.ID
	if code, _ := a.do(t, http.MethodPost, base+"/confirm", "admin-1", "admin", map[string]string{"payment_reference": "pay-1"}); code != http.StatusOK {
		t.Fatalf("confirm status = %d", code)
	}
	if code, _ := a.do(t, http.MethodPost, base+"/pips", "admin-1", "admin", map[string]int{"pips": 95}); code != http.StatusOK {
		t.Fatalf("consume status = %d", code)
	}
	code, env = a.do(t, http.MethodPost, base+"/pips", "admin-1", "admin", map[string]int{"pips": 20})
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("over quota status = %d, want 422", code)
	}
	var appErrs []xhttp.AppError
	_ = json.Unmarshal(env.Data, &appErrs)
	if len(appErrs) != 1 || appErrs[0].Code != "ERR_QUOTA_EXCEEDED" {
		t.Fatalf("error body = %s", env.Data)
	}

	if code, _ := a.do(t, http.MethodGet, "/api/admin/subscriptions/missing", "admin-1", "admin", nil); code != http.StatusNotFound {
		t.Fatalf("missing status = %d, want 404", code)
	}
}

func TestRefreshGroupsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	for _, u := range []string{"user-1", "user-2", "user-3"} {
		a.subscribe(t, u)
	}
	code, env := a.do(t, http.MethodPost, "/api/admin/groups/refresh", "admin-1", "admin", nil)
	if code != http.StatusOK {
		t.Fatalf("refresh status = %d, data = %s", code, env.Data)
	}
	code, env = a.do(t, http.MethodGet, "/api/admin/groups?month=2026-10", "admin-1", "admin", nil)
	if code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	var groups struct {
		Rows []models.DeliveryGroup `json:"rows"`
	}
	_ = json.Unmarshal(env.Data, &groups)
	if len(groups.Rows) != 2 || groups.Rows[0].MemberCount != 2 || groups.Rows[1].MemberCount != 1 {
		t.Fatalf("groups = %+v", groups.Rows)
	}
	if code, _ := a.do(t, http.MethodGet, "/api/admin/groups?month=2026-13", "admin-1", "admin", nil); code != http.StatusBadRequest {
		t.Fatalf("bad month status = %d, want 400", code)
	}
}

func TestNotificationsInbox(t *testing.T) {
	a := newTestAPI(t)
	a.subscribe(t, "user-1")
	if code, _ := a.do(t, http.MethodPost, "/api/admin/signals", "admin-1", "admin", eurusdBody); code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}

	code, env := a.do(t, http.MethodGet, "/api/notifications?unread=true", "user-1", "", nil)
	if code != http.StatusOK {
		t.Fatalf("inbox status = %d", code)
	}
	var inbox struct {
		Rows []models.Notification `json:"rows"`
	}
	_ = json.Unmarshal(env.Data, &inbox)
	if len(inbox.Rows) != 1 {
		t.Fatalf("inbox = %+v", inbox.Rows)
	}
	if code, _ := a.do(t, http.MethodPost, "/api/notifications/"+inbox.Rows[0].ID+"/read", "user-1", "", nil); code != http.StatusNoContent {
		t.Fatalf("mark read status = %d", code)
	}
	if code, _ := a.do(t, http.MethodPost, "/api/notifications/"+inbox.Rows[0].ID+"/read", "user-2", "", nil); code != http.StatusNotFound {
		t.Fatalf("foreign mark read status = %d, want 404", code)
	}
}

func TestVerifyReportsReason(t *testing.T) {
	a := newTestAPI(t)
	code, env := a.do(t, http.MethodPost, "/api/admin/signals", "admin-1", "admin", eurusdBody)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}
	var created struct {
		Signal models.Signal `json:"signal"`
	}
	_ = json.Unmarshal(env.Data, &created)
	id := created.Signal.ID

	verify := func() usecase.VerifyResult {
		code, env := a.do(t, http.MethodGet, "/api/admin/signals/"+id+"/verify", "admin-1", "admin", nil)
		if code != http.StatusOK {
			t.Fatalf("verify status = %d", code)
		}
		var vr usecase.VerifyResult
		if err := json.Unmarshal(env.Data, &vr); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return vr
	}
	if vr := verify(); !vr.Consistent {
		t.Fatalf("fresh signal verify = %+v", vr)
	}
	a.store.DropRevisions(id)
	if vr := verify(); vr.Consistent || vr.Reason != usecase.VerifyMalformedLedger {
		t.Fatalf("verify without ledger = %+v", vr)
	}
}

func TestNotificationsInboxSince(t *testing.T) {
	a := newTestAPI(t)
	a.subscribe(t, "user-1")
	if code, _ := a.do(t, http.MethodPost, "/api/admin/signals", "admin-1", "admin", eurusdBody); code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}

	count := func(query string) int {
		code, env := a.do(t, http.MethodGet, "/api/notifications"+query, "user-1", "", nil)
		if code != http.StatusOK {
			t.Fatalf("inbox%s status = %d", query, code)
		}
		var inbox struct {
			Rows []models.Notification `json:"rows"`
		}
		_ = json.Unmarshal(env.Data, &inbox)
		return len(inbox.Rows)
	}
	if n := count("?since=2026-10-17T08:00:00Z"); n != 1 {
		t.Fatalf("since before signal: %d rows, want 1", n)
	}
	if n := count("?since=2026-10-18T00:00:00Z"); n != 0 {
		t.Fatalf("since after signal: %d rows, want 0", n)
	}
	if code, _ := a.do(t, http.MethodGet, "/api/notifications?since=yesterday", "user-1", "", nil); code != http.StatusBadRequest {
		t.Fatalf("bad since status = %d, want 400", code)
	}
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	if code, _ := a.do(t, http.MethodGet, "/healthz", "", "", nil); code != http.StatusOK {
		t.Fatalf("health status = %d", code)
	}
}

func TestToAppError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errs.Validation("pips", "bad"), http.StatusBadRequest},
		{errs.NotFound("x"), http.StatusNotFound},
		{errs.Conflict("x"), http.StatusConflict},
		{errs.QuotaExceeded("x"), http.StatusUnprocessableEntity},
		{errs.External(errors.New("503"), "x"), http.StatusBadGateway},
		{errs.PartialFailure(errors.New("1 failed"), "x"), http.StatusMultiStatus},
		{errors.New("boom"), http.StatusInternalServerError},
		{xhttp.ForbiddenError("no"), http.StatusForbidden},
	}
	for _, tc := range cases {
		if got := toAppError(tc.err).Status; got != tc.want {
			t.Fatalf("%v: status = %d, want %d", tc.err, got, tc.want)
		}
	}
	ae := toAppError(errs.Validation("pips", "bad"))
	if ae.Field != "pips" || ae.Code != "ERR_VALIDATION" {
		t.Fatalf("validation error = %+v", ae)
	}
}

func TestParkedDispatches(t *testing.T) {
	a := newTestAPI(t)
	a.parked.msgs = []queue.Message{{ID: "m1", Type: usecase.DispatchJobType, Error: "signal not found"}}

	if code, _ := a.do(t, http.MethodGet, "/api/admin/dispatch/failed", "user-1", "", nil); code != http.StatusForbidden {
		t.Fatalf("subscriber status = %d, want 403", code)
	}
	code, env := a.do(t, http.MethodGet, "/api/admin/dispatch/failed?limit=10", "admin-1", "admin", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var list struct {
		Rows  []queue.Message `json:"rows"`
		Total int64           `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 1 || list.Rows[0].ID != "m1" || a.parked.limit != 10 {
		t.Fatalf("list = %+v, limit = %d", list, a.parked.limit)
	}
}
