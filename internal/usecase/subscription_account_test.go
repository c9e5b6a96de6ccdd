package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
)

func TestSubscriptionAccount_ConsumePipsQuota(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	plan := h.plan(t, models.PlanPerPip, "0.50")

	sub, err := h.account.CreateSubscription(ctx, "user-1", plan.ID, models.PlanPerPip, 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !sub.AmountPaid.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("amount_paid = %s, want 50", sub.AmountPaid)
	}
	if _, err := h.account.ConfirmPayment(ctx, sub.ID, "pay-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := h.account.ConsumePips(ctx, sub.ID, 90); err != nil {
		t.Fatalf("consume 90: %v", err)
	}

	got, err := h.account.ConsumePips(ctx, sub.ID, 5)
	if err != nil {
		t.Fatalf("consume 5: %v", err)
	}
	if got.PipsUsed != 95 {
		t.Fatalf("pips_used = %d, want 95", got.PipsUsed)
	}

	_, err = h.account.ConsumePips(ctx, sub.ID, 20)
	if !errors.Is(err, errs.ErrQuotaExceeded) {
		t.Fatalf("consume 20 err = %v, want quota exceeded", err)
	}
	cur, _ := h.account.Get(ctx, sub.ID)
	if cur.PipsUsed != 95 {
		t.Fatalf("pips_used after rejection = %d, want 95", cur.PipsUsed)
	}
}

func TestSubscriptionAccount_ConsumePipsRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	monthly := h.activeSubscriber(t, "user-1")

	if _, err := h.account.ConsumePips(ctx, monthly.ID, 0); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("zero pips err = %v", err)
	}
	if _, err := h.account.ConsumePips(ctx, monthly.ID, 1); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("monthly plan err = %v", err)
	}

	plan := h.plan(t, models.PlanPerPip, "0.50")
	pending, err := h.account.CreateSubscription(ctx, "user-2", plan.ID, models.PlanPerPip, 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.account.ConsumePips(ctx, pending.ID, 1); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("pending err = %v, want conflict", err)
	}
}

func TestSubscriptionAccount_OneOpenSubscriptionPerUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	plan := h.plan(t, models.PlanMonthly, "49.00")

	first, err := h.account.CreateSubscription(ctx, "user-1", plan.ID, models.PlanMonthly, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = h.account.CreateSubscription(ctx, "user-1", plan.ID, models.PlanMonthly, 0)
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("duplicate err = %v, want conflict", err)
	}

	if _, err := h.account.Cancel(ctx, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := h.account.CreateSubscription(ctx, "user-1", plan.ID, models.PlanMonthly, 0); err != nil {
		t.Fatalf("create after cancel: %v", err)
	}
}

func TestSubscriptionAccount_AmountIsSnapshotted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	plan := h.plan(t, models.PlanMonthly, "49.00")
	sub, _ := h.account.CreateSubscription(ctx, "user-1", plan.ID, models.PlanMonthly, 0)

	h.plan(t, models.PlanMonthly, "59.00")
	cur, _ := h.account.Get(ctx, sub.ID)
	if !cur.AmountPaid.Equal(decimal.RequireFromString("49")) {
		t.Fatalf("amount_paid changed with the plan: %s", cur.AmountPaid)
	}
}

func TestSubscriptionAccount_ConfirmPaymentIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	plan := h.plan(t, models.PlanMonthly, "49.00")
	sub, _ := h.account.CreateSubscription(ctx, "user-1", plan.ID, models.PlanMonthly, 0)

	first, err := h.account.ConfirmPayment(ctx, sub.ID, "pay-1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if first.Status != models.SubscriptionActive || first.PaymentStatus != models.PaymentCompleted {
		t.Fatalf("state = %s/%s", first.Status, first.PaymentStatus)
	}
	wantEnd := time.Date(2026, time.November, 17, 9, 30, 0, 0, time.UTC)
	if first.EndDate == nil || !first.EndDate.Equal(wantEnd) {
		t.Fatalf("end_date = %v, want %v", first.EndDate, wantEnd)
	}

	h.clock.Advance(time.Hour)
	second, err := h.account.ConfirmPayment(ctx, sub.ID, "pay-1")
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if !second.StartDate.Equal(*first.StartDate) || !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("second confirm changed the row")
	}

	activations := 0
	for _, typ := range h.events.types() {
		if typ == models.EventSubscriptionActivated {
			activations++
		}
	}
	if activations != 1 {
		t.Fatalf("activation events = %d, want 1", activations)
	}

	if _, err := h.account.ConfirmPayment(ctx, sub.ID, "pay-other"); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("different reference err = %v, want conflict", err)
	}
}

func TestSubscriptionAccount_Transitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	plan := h.plan(t, models.PlanMonthly, "49.00")

	pending, _ := h.account.CreateSubscription(ctx, "user-1", plan.ID, models.PlanMonthly, 0)
	if _, err := h.account.Expire(ctx, pending.ID); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expire pending err = %v, want conflict", err)
	}
	cancelled, err := h.account.Cancel(ctx, pending.ID)
	if err != nil || cancelled.Status != models.SubscriptionCancelled {
		t.Fatalf("cancel pending: %v", err)
	}
	if _, err := h.account.ConfirmPayment(ctx, pending.ID, "late"); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("confirm cancelled err = %v, want conflict", err)
	}

	active := h.activeSubscriber(t, "user-2")
	expired, err := h.account.Expire(ctx, active.ID)
	if err != nil || expired.Status != models.SubscriptionExpired {
		t.Fatalf("expire active: %v", err)
	}
	if _, err := h.account.Cancel(ctx, active.ID); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("cancel expired err = %v, want conflict", err)
	}
	// repeating the same terminal transition is a no-op
	if _, err := h.account.Expire(ctx, active.ID); err != nil {
		t.Fatalf("expire twice: %v", err)
	}
}

func TestSubscriptionAccount_ExpireDue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.activeSubscriber(t, "user-1")
	h.clock.Advance(10 * 24 * time.Hour)
	b := h.activeSubscriber(t, "user-2")

	h.clock.Set(time.Date(2026, time.November, 20, 0, 0, 0, 0, time.UTC))
	n, err := h.account.ExpireDue(ctx)
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	if cur, _ := h.account.Get(ctx, a.ID); cur.Status != models.SubscriptionExpired {
		t.Fatalf("user-1 status = %s", cur.Status)
	}
	if cur, _ := h.account.Get(ctx, b.ID); cur.Status != models.SubscriptionActive {
		t.Fatalf("user-2 status = %s", cur.Status)
	}
}

func TestSubscriptionAccount_AdminUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	plan := h.plan(t, models.PlanPerPip, "0.50")
	sub, _ := h.account.CreateSubscription(ctx, "user-1", plan.ID, models.PlanPerPip, 100)

	purchased := int64(150)
	refunded := models.PaymentRefunded
	got, err := h.account.AdminUpdate(ctx, sub.ID, models.SubscriptionPatch{PipsPurchased: &purchased, PaymentStatus: &refunded})
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if got.PipsPurchased != 150 || got.PaymentStatus != models.PaymentRefunded {
		t.Fatalf("patch not applied: %+v", got)
	}

	used := int64(200)
	if _, err := h.account.AdminUpdate(ctx, sub.ID, models.SubscriptionPatch{PipsUsed: &used}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("overdraw err = %v, want validation", err)
	}
}

func TestSubscriptionAccount_SeedPlansKeepsExisting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.plan(t, models.PlanMonthly, "59.00")

	n, err := h.account.SeedPlans(ctx, []models.PricingPlan{
		{PricingType: models.PlanMonthly, Price: decimal.RequireFromString("49.00")},
		{PricingType: models.PlanPerPip, Price: decimal.RequireFromString("0.50")},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 1 {
		t.Fatalf("created = %d, want 1", n)
	}
	monthly, _ := h.store.GetPlanByType(ctx, models.PlanMonthly)
	if !monthly.Price.Equal(decimal.RequireFromString("59")) {
		t.Fatalf("seed overwrote monthly price: %s", monthly.Price)
	}
	perPip, _ := h.store.GetPlanByType(ctx, models.PlanPerPip)
	if !perPip.IsActive || perPip.Currency != "USD" {
		t.Fatalf("seeded plan = %+v", perPip)
	}
}

func TestSubscriptionAccount_ConcurrentCreateOneWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	plan := h.plan(t, models.PlanMonthly, "49.00")

	const callers = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.account.CreateSubscription(ctx, "user-1", plan.ID, models.PlanMonthly, 0)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	created := 0
	for err := range results {
		switch {
		case err == nil:
			created++
		case errors.Is(err, errs.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("created = %d, want exactly 1", created)
	}
	open, err := h.store.GetOpenSubscription(ctx, "user-1")
	if err != nil || open.Status != models.SubscriptionPending {
		t.Fatalf("open subscription = %+v, %v", open, err)
	}
}
