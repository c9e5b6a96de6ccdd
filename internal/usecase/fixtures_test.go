package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	"github.com/paeltech/savannaFx-sub000/internal/repository/memory"
	"github.com/paeltech/savannaFx-sub000/pkg/clock"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
	"github.com/paeltech/savannaFx-sub000/pkg/metrics"
)

var testNow = time.Date(2026, time.October, 17, 9, 30, 0, 0, time.UTC)

type fakeGateway struct {
	mu          sync.Mutex
	failTargets map[string]bool
	provisionFn func(name string) (string, error)
	sent        map[string][]string
	provisioned []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failTargets: map[string]bool{}, sent: map[string][]string{}}
}

func (g *fakeGateway) Send(_ context.Context, target, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failTargets[target] {
		return errors.New("gateway: recipient unreachable")
	}
	g.sent[target] = append(g.sent[target], message)
	return nil
}

func (g *fakeGateway) ProvisionChannel(_ context.Context, name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.provisionFn != nil {
		id, err := g.provisionFn(name)
		if err != nil {
			return "", err
		}
		g.provisioned = append(g.provisioned, name)
		return id, nil
	}
	g.provisioned = append(g.provisioned, name)
	return fmt.Sprintf("chan-%d", len(g.provisioned)), nil
}

func (g *fakeGateway) messages(target string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.sent[target]...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.DomainEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, ev models.DomainEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type harness struct {
	store   *memory.Store
	clock   *clock.Manual
	gateway *fakeGateway
	events  *recordingPublisher
	ledger  *SignalLedger
	account *SubscriptionAccount
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	h := &harness{
		store:   memory.New(),
		clock:   clock.NewManual(testNow),
		gateway: newFakeGateway(),
		events:  &recordingPublisher{},
	}
	lgr := logger.NewNop()
	h.ledger = NewSignalLedger(h.store, h.events, metrics.Nop{}, h.clock, node, lgr)
	h.account = NewSubscriptionAccount(h.store, h.store, h.events, metrics.Nop{}, h.clock, lgr)
	return h
}

func (h *harness) allocator(maxMembers int) *GroupAllocator {
	return NewGroupAllocator(h.store, h.store, h.gateway, nil, h.events, metrics.Nop{}, h.clock, logger.NewNop(),
		AllocatorConfig{DefaultMaxMembers: maxMembers})
}

func (h *harness) dispatcher() *NotificationDispatcher {
	return NewNotificationDispatcher(DispatcherDeps{
		Signals: h.store,
		Subs:    h.store,
		Mailbox: h.store,
		Gateway: h.gateway,
		Events:  h.events,
		Metrics: metrics.Nop{},
		Clock:   h.clock,
		Logger:  logger.NewNop(),
	}, nil, DispatcherConfig{Concurrency: 4})
}

func (h *harness) plan(t *testing.T, typ models.PlanType, price string) *models.PricingPlan {
	t.Helper()
	p, err := h.account.UpsertPlan(context.Background(), models.PricingPlan{
		PricingType: typ,
		Price:       decimal.RequireFromString(price),
		IsActive:    true,
	})
	if err != nil {
		t.Fatalf("upsert plan: %v", err)
	}
	return p
}

// activeSubscriber creates and confirms a monthly subscription for userID.
func (h *harness) activeSubscriber(t *testing.T, userID string) *models.Subscription {
	t.Helper()
	ctx := context.Background()
	plan, err := h.store.GetPlanByType(ctx, models.PlanMonthly)
	if err != nil {
		plan = h.plan(t, models.PlanMonthly, "49.00")
	}
	sub, err := h.account.CreateSubscription(ctx, userID, plan.ID, models.PlanMonthly, 0)
	if err != nil {
		t.Fatalf("create subscription for %s: %v", userID, err)
	}
	sub, err = h.account.ConfirmPayment(ctx, sub.ID, "pay-"+userID)
	if err != nil {
		t.Fatalf("confirm %s: %v", userID, err)
	}
	return sub
}

func eurusdBuy() models.SignalState {
	return models.SignalState{
		TradingPair: "EUR/USD",
		SignalType:  models.SignalBuy,
		EntryPrice:  decimal.RequireFromString("1.0850"),
		StopLoss:    decimal.RequireFromString("1.0820"),
		TakeProfit1: decimal.NewNullDecimal(decimal.RequireFromString("1.0900")),
	}
}
