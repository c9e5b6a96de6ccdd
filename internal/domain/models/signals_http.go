package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OptionalDecimal tells an absent JSON field apart from an explicit null.
type OptionalDecimal struct {
	Set   bool
	Value decimal.NullDecimal
}

func (o *OptionalDecimal) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = decimal.NullDecimal{}
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

func (o OptionalDecimal) ptr() *decimal.NullDecimal {
	if !o.Set {
		return nil
	}
	v := o.Value
	return &v
}

type CreateSignalRequest struct {
	TradingPair     string              `json:"trading_pair" validate:"required,max=32,trading_pair"`
	SignalType      string              `json:"signal_type" validate:"required,oneof=buy sell"`
	EntryPrice      decimal.Decimal     `json:"entry_price" validate:"gt=0"`
	StopLoss        decimal.Decimal     `json:"stop_loss" validate:"gt=0"`
	TakeProfit1     decimal.NullDecimal `json:"take_profit_1"`
	TakeProfit2     decimal.NullDecimal `json:"take_profit_2"`
	TakeProfit3     decimal.NullDecimal `json:"take_profit_3"`
	Title           string              `json:"title" validate:"max=255"`
	Analysis        string              `json:"analysis"`
	ConfidenceLevel string              `json:"confidence_level" validate:"omitempty,oneof=low medium high"`
	Status          string              `json:"status" default:"active" validate:"oneof=active closed cancelled"`
}

func (r CreateSignalRequest) State() SignalState {
	return SignalState{
		TradingPair:     r.TradingPair,
		SignalType:      SignalType(r.SignalType),
		EntryPrice:      r.EntryPrice,
		StopLoss:        r.StopLoss,
		TakeProfit1:     r.TakeProfit1,
		TakeProfit2:     r.TakeProfit2,
		TakeProfit3:     r.TakeProfit3,
		Title:           r.Title,
		Analysis:        r.Analysis,
		ConfidenceLevel: r.ConfidenceLevel,
		Status:          SignalStatus(r.Status),
	}
}

// UpdateSignalRequest is a partial update; take profits accept null to clear.
type UpdateSignalRequest struct {
	TradingPair     *string          `json:"trading_pair" validate:"omitempty,max=32,trading_pair"`
	SignalType      *string          `json:"signal_type" validate:"omitempty,oneof=buy sell"`
	EntryPrice      *decimal.Decimal `json:"entry_price"`
	StopLoss        *decimal.Decimal `json:"stop_loss"`
	TakeProfit1     OptionalDecimal  `json:"take_profit_1"`
	TakeProfit2     OptionalDecimal  `json:"take_profit_2"`
	TakeProfit3     OptionalDecimal  `json:"take_profit_3"`
	Title           *string          `json:"title" validate:"omitempty,max=255"`
	Analysis        *string          `json:"analysis"`
	ConfidenceLevel *string          `json:"confidence_level" validate:"omitempty,oneof=low medium high"`
	Status          *string          `json:"status" validate:"omitempty,oneof=active closed cancelled"`
}

func (r UpdateSignalRequest) Patch() SignalPatch {
	p := SignalPatch{
		TradingPair:     r.TradingPair,
		EntryPrice:      r.EntryPrice,
		StopLoss:        r.StopLoss,
		TakeProfit1:     r.TakeProfit1.ptr(),
		TakeProfit2:     r.TakeProfit2.ptr(),
		TakeProfit3:     r.TakeProfit3.ptr(),
		Title:           r.Title,
		Analysis:        r.Analysis,
		ConfidenceLevel: r.ConfidenceLevel,
	}
	if r.SignalType != nil {
		t := SignalType(*r.SignalType)
		p.SignalType = &t
	}
	if r.Status != nil {
		s := SignalStatus(*r.Status)
		p.Status = &s
	}
	return p
}

type CreateSubscriptionRequest struct {
	PricingID        string `json:"pricing_id" validate:"required"`
	SubscriptionType string `json:"subscription_type" validate:"required,oneof=monthly per_pip"`
	Pips             int64  `json:"pips" validate:"gte=0"`
}

type ConfirmPaymentRequest struct {
	PaymentReference string `json:"payment_reference" validate:"max=128"`
}

type ConsumePipsRequest struct {
	Pips int64 `json:"pips" validate:"gt=0"`
}

type AdminSubscriptionRequest struct {
	Status           *string          `json:"status" validate:"omitempty,oneof=pending active cancelled expired"`
	PaymentStatus    *string          `json:"payment_status" validate:"omitempty,oneof=pending completed failed refunded"`
	PaymentReference *string          `json:"payment_reference" validate:"omitempty,max=128"`
	AmountPaid       *decimal.Decimal `json:"amount_paid"`
	PipsPurchased    *int64           `json:"pips_purchased" validate:"omitempty,gte=0"`
	PipsUsed         *int64           `json:"pips_used" validate:"omitempty,gte=0"`
	StartDate        *time.Time       `json:"start_date"`
	EndDate          *time.Time       `json:"end_date"`
}

func (r AdminSubscriptionRequest) Patch() SubscriptionPatch {
	p := SubscriptionPatch{
		PaymentReference: r.PaymentReference,
		AmountPaid:       r.AmountPaid,
		PipsPurchased:    r.PipsPurchased,
		PipsUsed:         r.PipsUsed,
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
	}
	if r.Status != nil {
		s := SubscriptionStatus(*r.Status)
		p.Status = &s
	}
	if r.PaymentStatus != nil {
		s := PaymentStatus(*r.PaymentStatus)
		p.PaymentStatus = &s
	}
	return p
}

type UpsertPlanRequest struct {
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency" default:"USD" validate:"len=3"`
	Description string          `json:"description"`
	IsActive    *bool           `json:"is_active"`
}

type RegisterContactRequest struct {
	Target string `json:"target" validate:"required,max=128"`
}

// SignalView is the subscriber projection of a signal.
type SignalView struct {
	ID string `json:"id"`
	SignalState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewSignalView(s Signal) SignalView {
	return SignalView{ID: s.ID, SignalState: s.SignalState, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt}
}
