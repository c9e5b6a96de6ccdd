package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PlanType string

const (
	PlanMonthly PlanType = "monthly"
	PlanPerPip  PlanType = "per_pip"
)

func (p PlanType) Valid() bool { return p == PlanMonthly || p == PlanPerPip }

type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionPending, SubscriptionActive, SubscriptionCancelled, SubscriptionExpired:
		return true
	}
	return false
}

func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionCancelled || s == SubscriptionExpired
}

// IsOpen reports pending or active; a user holds at most one open subscription.
func (s SubscriptionStatus) IsOpen() bool {
	return s == SubscriptionPending || s == SubscriptionActive
}

// CanTransition encodes pending -> active -> {cancelled, expired} and pending -> cancelled.
func (s SubscriptionStatus) CanTransition(to SubscriptionStatus) bool {
	switch s {
	case SubscriptionPending:
		return to == SubscriptionActive || to == SubscriptionCancelled
	case SubscriptionActive:
		return to == SubscriptionCancelled || to == SubscriptionExpired
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type Subscription struct {
	ID               string             `json:"id"`
	UserID           string             `json:"user_id"`
	PricingID        string             `json:"pricing_id"`
	SubscriptionType PlanType           `json:"subscription_type"`
	Status           SubscriptionStatus `json:"status"`
	PaymentStatus    PaymentStatus      `json:"payment_status"`
	PaymentReference string             `json:"payment_reference,omitempty"`
	AmountPaid       decimal.Decimal    `json:"amount_paid"`
	Currency         string             `json:"currency"`
	StartDate        *time.Time         `json:"start_date,omitempty"`
	EndDate          *time.Time         `json:"end_date,omitempty"`
	PipsPurchased    int64              `json:"pips_purchased"`
	PipsUsed         int64              `json:"pips_used"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func (s *Subscription) PipsRemaining() int64 { return s.PipsPurchased - s.PipsUsed }

// SubscriptionPatch is an admin correction; nil fields are left alone.
type SubscriptionPatch struct {
	Status           *SubscriptionStatus
	PaymentStatus    *PaymentStatus
	PaymentReference *string
	AmountPaid       *decimal.Decimal
	PipsPurchased    *int64
	PipsUsed         *int64
	StartDate        *time.Time
	EndDate          *time.Time
}

func (p SubscriptionPatch) ApplyTo(s Subscription) Subscription {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		s.PaymentStatus = *p.PaymentStatus
	}
	if p.PaymentReference != nil {
		s.PaymentReference = *p.PaymentReference
	}
	if p.AmountPaid != nil {
		s.AmountPaid = *p.AmountPaid
	}
	if p.PipsPurchased != nil {
		s.PipsPurchased = *p.PipsPurchased
	}
	if p.PipsUsed != nil {
		s.PipsUsed = *p.PipsUsed
	}
	if p.StartDate != nil {
		t := *p.StartDate
		s.StartDate = &t
	}
	if p.EndDate != nil {
		t := *p.EndDate
		s.EndDate = &t
	}
	return s
}

// PricingPlan is the admin-editable price for one plan type.
type PricingPlan struct {
	ID          string          `json:"id"`
	PricingType PlanType        `json:"pricing_type"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	IsActive    bool            `json:"is_active"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
