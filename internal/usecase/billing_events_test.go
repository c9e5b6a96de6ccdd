package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

func TestPaymentEventsHandler(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	plan := h.plan(t, models.PlanMonthly, "49.00")
	sub, _ := h.account.CreateSubscription(ctx, "user-1", plan.ID, models.PlanMonthly, 0)
	handler := NewPaymentEventsHandler("billing.payments", h.account, logger.NewNop())

	if handler.Topic() != "billing.payments" {
		t.Fatalf("topic = %s", handler.Topic())
	}
	failed := fmt.Sprintf(`{"subscription_id":%q,"payment_reference":"pay-1","status":"failed"}`, sub.ID)
	if err := handler.Handle(ctx, []byte(failed)); err != nil {
		t.Fatalf("failed payment: %v", err)
	}
	if cur, _ := h.account.Get(ctx, sub.ID); cur.Status != models.SubscriptionPending {
		t.Fatalf("failed payment activated subscription")
	}

	completed := fmt.Sprintf(`{"subscription_id":%q,"payment_reference":"pay-1","status":"completed"}`, sub.ID)
	for i := 0; i < 2; i++ {
		if err := handler.Handle(ctx, []byte(completed)); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if cur, _ := h.account.Get(ctx, sub.ID); cur.Status != models.SubscriptionActive {
		t.Fatalf("status = %s, want active", cur.Status)
	}

	// domain rejections are dropped rather than retried
	if err := handler.Handle(ctx, []byte(`{"subscription_id":"missing","status":"completed"}`)); err != nil {
		t.Fatalf("unknown subscription: %v", err)
	}
	if err := handler.Handle(ctx, []byte(`not json`)); err != nil {
		t.Fatalf("malformed: %v", err)
	}
}

func TestPipUsageHandler(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	plan := h.plan(t, models.PlanPerPip, "0.50")
	sub, _ := h.account.CreateSubscription(ctx, "user-1", plan.ID, models.PlanPerPip, 10)
	if _, err := h.account.ConfirmPayment(ctx, sub.ID, "pay-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	handler := NewPipUsageHandler("billing.pips", h.account, logger.NewNop())

	if err := handler.Handle(ctx, []byte(fmt.Sprintf(`{"subscription_id":%q,"pips":4}`, sub.ID))); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := handler.Handle(ctx, []byte(fmt.Sprintf(`{"subscription_id":%q,"pips":40}`, sub.ID))); err != nil {
		t.Fatalf("over quota should be dropped: %v", err)
	}
	cur, _ := h.account.Get(ctx, sub.ID)
	if cur.PipsUsed != 4 {
		t.Fatalf("pips_used = %d, want 4", cur.PipsUsed)
	}
}
