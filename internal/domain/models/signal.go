package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
)

type SignalType string

const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
)

func (t SignalType) Valid() bool { return t == SignalBuy || t == SignalSell }

type SignalStatus string

const (
	SignalActive    SignalStatus = "active"
	SignalClosed    SignalStatus = "closed"
	SignalCancelled SignalStatus = "cancelled"
)

func (s SignalStatus) Valid() bool {
	return s == SignalActive || s == SignalClosed || s == SignalCancelled
}

// IsTerminal reports whether the status can no longer change.
func (s SignalStatus) IsTerminal() bool { return s == SignalClosed || s == SignalCancelled }

var confidenceLevels = map[string]bool{"": true, "low": true, "medium": true, "high": true}

// SignalState is the audited field set of a signal. Revisions snapshot and
// diff exactly these fields.
type SignalState struct {
	TradingPair     string              `json:"trading_pair"`
	SignalType      SignalType          `json:"signal_type"`
	EntryPrice      decimal.Decimal     `json:"entry_price"`
	StopLoss        decimal.Decimal     `json:"stop_loss"`
	TakeProfit1     decimal.NullDecimal `json:"take_profit_1"`
	TakeProfit2     decimal.NullDecimal `json:"take_profit_2"`
	TakeProfit3     decimal.NullDecimal `json:"take_profit_3"`
	Title           string              `json:"title"`
	Analysis        string              `json:"analysis"`
	ConfidenceLevel string              `json:"confidence_level"` // low | medium | high
	Status          SignalStatus        `json:"status"`
}

type Signal struct {
	ID string `json:"id"`
	SignalState
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required fields and numeric sanity.
func (s SignalState) Validate() error {
	if strings.TrimSpace(s.TradingPair) == "" {
		return errs.Validation("trading_pair", "trading_pair is required")
	}
	if !s.SignalType.Valid() {
		return errs.Validation("signal_type", "signal_type must be one of: buy, sell")
	}
	if !s.EntryPrice.IsPositive() {
		return errs.Validation("entry_price", "entry_price must be greater than 0")
	}
	if !s.StopLoss.IsPositive() {
		return errs.Validation("stop_loss", "stop_loss must be greater than 0")
	}
	for field, tp := range map[string]decimal.NullDecimal{
		"take_profit_1": s.TakeProfit1,
		"take_profit_2": s.TakeProfit2,
		"take_profit_3": s.TakeProfit3,
	} {
		if tp.Valid && !tp.Decimal.IsPositive() {
			return errs.Validation(field, "%s must be greater than 0", field)
		}
	}
	if !confidenceLevels[s.ConfidenceLevel] {
		return errs.Validation("confidence_level", "confidence_level must be one of: low, medium, high")
	}
	if !s.Status.Valid() {
		return errs.Validation("status", "status must be one of: active, closed, cancelled")
	}
	return nil
}

// SignalPatch carries the fields an admin wants to change; nil means keep.
type SignalPatch struct {
	TradingPair     *string
	SignalType      *SignalType
	EntryPrice      *decimal.Decimal
	StopLoss        *decimal.Decimal
	TakeProfit1     *decimal.NullDecimal
	TakeProfit2     *decimal.NullDecimal
	TakeProfit3     *decimal.NullDecimal
	Title           *string
	Analysis        *string
	ConfidenceLevel *string
	Status          *SignalStatus
}

// ApplyTo returns s with every non-nil patch field set.
func (p SignalPatch) ApplyTo(s SignalState) SignalState {
	if p.TradingPair != nil {
		s.TradingPair = *p.TradingPair
	}
	if p.SignalType != nil {
		s.SignalType = *p.SignalType
	}
	if p.EntryPrice != nil {
		s.EntryPrice = *p.EntryPrice
	}
	if p.StopLoss != nil {
		s.StopLoss = *p.StopLoss
	}
	if p.TakeProfit1 != nil {
		s.TakeProfit1 = *p.TakeProfit1
	}
	if p.TakeProfit2 != nil {
		s.TakeProfit2 = *p.TakeProfit2
	}
	if p.TakeProfit3 != nil {
		s.TakeProfit3 = *p.TakeProfit3
	}
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Analysis != nil {
		s.Analysis = *p.Analysis
	}
	if p.ConfidenceLevel != nil {
		s.ConfidenceLevel = *p.ConfidenceLevel
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	return s
}

type SignalFilter struct {
	Status      SignalStatus
	TradingPair string
	Limit       int
	Offset      int
}
