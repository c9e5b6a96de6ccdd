package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	drepo "github.com/paeltech/savannaFx-sub000/internal/domain/repository"
	"github.com/paeltech/savannaFx-sub000/pkg/clock"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
	"github.com/paeltech/savannaFx-sub000/pkg/util"
)

// SubscriptionAccount runs the billing state machine and pip accounting.
type SubscriptionAccount struct {
	subs    drepo.SubscriptionStore
	plans   drepo.PricingStore
	metrics drepo.Metrics
	clock   clock.Clock
	logger  *logger.Logger
	events  eventSink
}

func NewSubscriptionAccount(
	subs drepo.SubscriptionStore,
	plans drepo.PricingStore,
	events drepo.EventPublisher,
	metrics drepo.Metrics,
	clk clock.Clock,
	lgr *logger.Logger,
) *SubscriptionAccount {
	return &SubscriptionAccount{
		subs:    subs,
		plans:   plans,
		metrics: metrics,
		clock:   clk,
		logger:  lgr,
		events:  eventSink{pub: events, clock: clk, logger: lgr},
	}
}

// CreateSubscription opens a pending subscription, snapshotting the plan price.
// For per_pip plans amount_paid is price times the pips bought.
func (a *SubscriptionAccount) CreateSubscription(ctx context.Context, userID, pricingID string, planType models.PlanType, pips int64) (*models.Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errs.Validation("user_id", "user_id is required")
	}
	if !planType.Valid() {
		return nil, errs.Validation("subscription_type", "subscription_type must be one of: monthly, per_pip")
	}

	plan, err := a.plans.GetPlan(ctx, pricingID)
	if err != nil {
		return nil, fmt.Errorf("load pricing plan: %w", err)
	}
	if !plan.IsActive {
		return nil, errs.Validation("pricing_id", "pricing plan %s is not active", plan.ID)
	}
	if plan.PricingType != planType {
		return nil, errs.Validation("subscription_type", "pricing plan %s is %s, not %s", plan.ID, plan.PricingType, planType)
	}

	amount := plan.Price
	var purchased int64
	if planType == models.PlanPerPip {
		if pips <= 0 {
			return nil, errs.Validation("pips", "pips must be greater than 0 for per_pip plans")
		}
		purchased = pips
		amount = plan.Price.Mul(decimal.NewFromInt(pips))
	}

	now := a.clock.Now()
	sub := &models.Subscription{
		ID:               uuid.NewString(),
		UserID:           userID,
		PricingID:        plan.ID,
		SubscriptionType: planType,
		Status:           models.SubscriptionPending,
		PaymentStatus:    models.PaymentPending,
		AmountPaid:       amount,
		Currency:         plan.Currency,
		PipsPurchased:    purchased,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := a.subs.CreateSubscription(ctx, sub); err != nil {
		a.metrics.RecordError("subscription_create")
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	a.metrics.RecordSubscription("created")
	return sub, nil
}

// ConfirmPayment activates a pending subscription. Confirming again with the
// same reference is a no-op; a different reference on an active one is a Conflict.
func (a *SubscriptionAccount) ConfirmPayment(ctx context.Context, id, paymentRef string) (*models.Subscription, error) {
	activated := false
	sub, err := a.subs.MutateSubscription(ctx, id, func(cur models.Subscription) (*models.Subscription, error) {
		if cur.Status == models.SubscriptionActive && cur.PaymentStatus == models.PaymentCompleted {
			if paymentRef == "" || cur.PaymentReference == "" || cur.PaymentReference == paymentRef {
				return nil, nil
			}
			return nil, errs.Conflict("subscription %s already active via payment %s", cur.ID, cur.PaymentReference)
		}
		if cur.Status != models.SubscriptionPending {
			return nil, errs.Conflict("subscription %s is %s and cannot be confirmed", cur.ID, cur.Status)
		}

		now := a.clock.Now()
		next := cur
		next.Status = models.SubscriptionActive
		next.PaymentStatus = models.PaymentCompleted
		next.PaymentReference = paymentRef
		next.StartDate = &now
		if cur.SubscriptionType == models.PlanMonthly {
			end := util.AddMonths(now, 1)
			next.EndDate = &end
		}
		next.UpdatedAt = now
		activated = true
		return &next, nil
	})
	if err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}
	if activated {
		a.metrics.RecordSubscription("activated")
		a.events.emit(ctx, models.EventSubscriptionActivated, sub.UserID, sub)
	}
	return sub, nil
}

// ConsumePips deducts pips from an active per_pip subscription. Overdrawing
// fails with QuotaExceeded and leaves the row untouched.
func (a *SubscriptionAccount) ConsumePips(ctx context.Context, id string, amount int64) (*models.Subscription, error) {
	if amount <= 0 {
		return nil, errs.Validation("amount", "amount must be greater than 0")
	}
	sub, err := a.subs.MutateSubscription(ctx, id, func(cur models.Subscription) (*models.Subscription, error) {
		if cur.SubscriptionType != models.PlanPerPip {
			return nil, errs.Validation("subscription_id", "subscription %s is not a per_pip plan", cur.ID)
		}
		if cur.Status != models.SubscriptionActive {
			return nil, errs.Conflict("subscription %s is %s", cur.ID, cur.Status)
		}
		if cur.PipsUsed+amount > cur.PipsPurchased {
			return nil, errs.QuotaExceeded("requested %d pips but only %d remain", amount, cur.PipsRemaining())
		}
		next := cur
		next.PipsUsed += amount
		next.UpdatedAt = a.clock.Now()
		return &next, nil
	})
	if err != nil {
		a.metrics.RecordError("consume_pips")
		return nil, fmt.Errorf("consume pips: %w", err)
	}
	a.metrics.RecordPipsConsumed(amount)
	return sub, nil
}

// AdminUpdate applies a trusted correction to any billing field.
func (a *SubscriptionAccount) AdminUpdate(ctx context.Context, id string, patch models.SubscriptionPatch) (*models.Subscription, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	sub, err := a.subs.MutateSubscription(ctx, id, func(cur models.Subscription) (*models.Subscription, error) {
		next := patch.ApplyTo(cur)
		if next.PipsUsed > next.PipsPurchased {
			return nil, errs.Validation("pips_used", "pips_used %d exceeds pips_purchased %d", next.PipsUsed, next.PipsPurchased)
		}
		next.UpdatedAt = a.clock.Now()
		return &next, nil
	})
	if err != nil {
		return nil, fmt.Errorf("admin update subscription: %w", err)
	}
	a.metrics.RecordSubscription("admin_update")
	return sub, nil
}

func validatePatch(p models.SubscriptionPatch) error {
	if p.Status != nil && !p.Status.Valid() {
		return errs.Validation("status", "invalid status %q", *p.Status)
	}
	if p.PaymentStatus != nil && !p.PaymentStatus.Valid() {
		return errs.Validation("payment_status", "invalid payment_status %q", *p.PaymentStatus)
	}
	if p.AmountPaid != nil && p.AmountPaid.IsNegative() {
		return errs.Validation("amount_paid", "amount_paid must not be negative")
	}
	if p.PipsPurchased != nil && *p.PipsPurchased < 0 {
		return errs.Validation("pips_purchased", "pips_purchased must not be negative")
	}
	if p.PipsUsed != nil && *p.PipsUsed < 0 {
		return errs.Validation("pips_used", "pips_used must not be negative")
	}
	return nil
}

func (a *SubscriptionAccount) Cancel(ctx context.Context, id string) (*models.Subscription, error) {
	return a.close(ctx, id, models.SubscriptionCancelled)
}

func (a *SubscriptionAccount) Expire(ctx context.Context, id string) (*models.Subscription, error) {
	return a.close(ctx, id, models.SubscriptionExpired)
}

func (a *SubscriptionAccount) close(ctx context.Context, id string, to models.SubscriptionStatus) (*models.Subscription, error) {
	closed := false
	sub, err := a.subs.MutateSubscription(ctx, id, func(cur models.Subscription) (*models.Subscription, error) {
		if cur.Status == to {
			return nil, nil
		}
		if !cur.Status.CanTransition(to) {
			return nil, errs.Conflict("subscription %s cannot move from %s to %s", cur.ID, cur.Status, to)
		}
		now := a.clock.Now()
		next := cur
		next.Status = to
		if to == models.SubscriptionCancelled || next.EndDate == nil {
			next.EndDate = &now
		}
		next.UpdatedAt = now
		closed = true
		return &next, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s subscription: %w", to, err)
	}
	if closed {
		a.metrics.RecordSubscription(string(to))
		a.events.emit(ctx, models.EventSubscriptionClosed, sub.UserID, sub)
	}
	return sub, nil
}

// ExpireDue expires every active subscription whose end date has passed.
func (a *SubscriptionAccount) ExpireDue(ctx context.Context) (int, error) {
	due, err := a.subs.ListExpiredBefore(ctx, a.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("list due subscriptions: %w", err)
	}
	var (
		expired int
		errList error
	)
	for _, s := range due {
		if _, err := a.Expire(ctx, s.ID); err != nil {
			errList = multierr.Append(errList, err)
			continue
		}
		expired++
	}
	if expired > 0 {
		a.logger.Info("expired subscriptions", logger.Int("count", expired))
	}
	return expired, errList
}

func (a *SubscriptionAccount) Get(ctx context.Context, id string) (*models.Subscription, error) {
	sub, err := a.subs.GetSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", id, err)
	}
	return sub, nil
}

// Current returns the user's pending or active subscription.
func (a *SubscriptionAccount) Current(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := a.subs.GetOpenSubscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("current subscription: %w", err)
	}
	return sub, nil
}

func (a *SubscriptionAccount) ListActive(ctx context.Context) ([]models.Subscription, error) {
	return a.subs.ListActiveSubscriptions(ctx)
}

func (a *SubscriptionAccount) ListPlans(ctx context.Context) ([]models.PricingPlan, error) {
	return a.plans.ListPlans(ctx)
}

// UpsertPlan edits the single plan record of a pricing type. Existing
// subscriptions keep the amount they were created with.
func (a *SubscriptionAccount) UpsertPlan(ctx context.Context, plan models.PricingPlan) (*models.PricingPlan, error) {
	if !plan.PricingType.Valid() {
		return nil, errs.Validation("pricing_type", "pricing_type must be one of: monthly, per_pip")
	}
	if !plan.Price.IsPositive() {
		return nil, errs.Validation("price", "price must be greater than 0")
	}
	if plan.Currency == "" {
		plan.Currency = "USD"
	}
	existing, err := a.plans.GetPlanByType(ctx, plan.PricingType)
	switch {
	case err == nil:
		plan.ID = existing.ID
	case errs.KindOf(err) == errs.KindNotFound:
		plan.ID = uuid.NewString()
	default:
		return nil, fmt.Errorf("load pricing plan: %w", err)
	}
	plan.UpdatedAt = a.clock.Now()
	if err := a.plans.UpsertPlan(ctx, &plan); err != nil {
		return nil, fmt.Errorf("upsert pricing plan: %w", err)
	}
	return &plan, nil
}

// SeedPlans creates the plans whose type has no record yet and leaves existing
// ones untouched. It returns how many were created.
func (a *SubscriptionAccount) SeedPlans(ctx context.Context, plans []models.PricingPlan) (int, error) {
	created := 0
	for _, p := range plans {
		_, err := a.plans.GetPlanByType(ctx, p.PricingType)
		if err == nil {
			continue
		}
		if errs.KindOf(err) != errs.KindNotFound {
			return created, fmt.Errorf("load pricing plan %s: %w", p.PricingType, err)
		}
		p.IsActive = true
		if _, err := a.UpsertPlan(ctx, p); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
