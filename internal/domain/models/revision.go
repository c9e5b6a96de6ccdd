package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type RevisionType string

const (
	RevisionInitial RevisionType = "initial"
	RevisionUpdate  RevisionType = "update"
)

// SignalField names one member of the audited field set.
type SignalField string

const (
	FieldTradingPair     SignalField = "trading_pair"
	FieldSignalType      SignalField = "signal_type"
	FieldEntryPrice      SignalField = "entry_price"
	FieldStopLoss        SignalField = "stop_loss"
	FieldTakeProfit1     SignalField = "take_profit_1"
	FieldTakeProfit2     SignalField = "take_profit_2"
	FieldTakeProfit3     SignalField = "take_profit_3"
	FieldTitle           SignalField = "title"
	FieldAnalysis        SignalField = "analysis"
	FieldConfidenceLevel SignalField = "confidence_level"
	FieldStatus          SignalField = "status"
)

// Change is an old/new pair for a single field.
type Change[T any] struct {
	Old T `json:"old"`
	New T `json:"new"`
}

// SignalChanges is the typed diff of an update revision. Only changed
// fields are non-nil, so the JSON form carries no other keys.
type SignalChanges struct {
	TradingPair     *Change[string]              `json:"trading_pair,omitempty"`
	SignalType      *Change[SignalType]          `json:"signal_type,omitempty"`
	EntryPrice      *Change[decimal.Decimal]     `json:"entry_price,omitempty"`
	StopLoss        *Change[decimal.Decimal]     `json:"stop_loss,omitempty"`
	TakeProfit1     *Change[decimal.NullDecimal] `json:"take_profit_1,omitempty"`
	TakeProfit2     *Change[decimal.NullDecimal] `json:"take_profit_2,omitempty"`
	TakeProfit3     *Change[decimal.NullDecimal] `json:"take_profit_3,omitempty"`
	Title           *Change[string]              `json:"title,omitempty"`
	Analysis        *Change[string]              `json:"analysis,omitempty"`
	ConfidenceLevel *Change[string]              `json:"confidence_level,omitempty"`
	Status          *Change[SignalStatus]        `json:"status,omitempty"`
}

// DiffSignal compares two states field by field. Decimals compare by value,
// so 1.0820 and 1.082 are equal.
func DiffSignal(prev, next SignalState) SignalChanges {
	return SignalChanges{
		TradingPair:     diffEq(prev.TradingPair, next.TradingPair),
		SignalType:      diffEq(prev.SignalType, next.SignalType),
		EntryPrice:      diffDecimal(prev.EntryPrice, next.EntryPrice),
		StopLoss:        diffDecimal(prev.StopLoss, next.StopLoss),
		TakeProfit1:     diffNullDecimal(prev.TakeProfit1, next.TakeProfit1),
		TakeProfit2:     diffNullDecimal(prev.TakeProfit2, next.TakeProfit2),
		TakeProfit3:     diffNullDecimal(prev.TakeProfit3, next.TakeProfit3),
		Title:           diffEq(prev.Title, next.Title),
		Analysis:        diffEq(prev.Analysis, next.Analysis),
		ConfidenceLevel: diffEq(prev.ConfidenceLevel, next.ConfidenceLevel),
		Status:          diffEq(prev.Status, next.Status),
	}
}

func diffEq[T comparable](prev, next T) *Change[T] {
	if prev == next {
		return nil
	}
	return &Change[T]{Old: prev, New: next}
}

func diffDecimal(prev, next decimal.Decimal) *Change[decimal.Decimal] {
	if prev.Equal(next) {
		return nil
	}
	return &Change[decimal.Decimal]{Old: prev, New: next}
}

func diffNullDecimal(prev, next decimal.NullDecimal) *Change[decimal.NullDecimal] {
	if prev.Valid == next.Valid && (!prev.Valid || prev.Decimal.Equal(next.Decimal)) {
		return nil
	}
	return &Change[decimal.NullDecimal]{Old: prev, New: next}
}

// IsEmpty reports whether no field changed.
func (c SignalChanges) IsEmpty() bool { return len(c.Fields()) == 0 }

// Fields lists the changed fields in schema order.
func (c SignalChanges) Fields() []SignalField {
	var out []SignalField
	add := func(set bool, f SignalField) {
		if set {
			out = append(out, f)
		}
	}
	add(c.TradingPair != nil, FieldTradingPair)
	add(c.SignalType != nil, FieldSignalType)
	add(c.EntryPrice != nil, FieldEntryPrice)
	add(c.StopLoss != nil, FieldStopLoss)
	add(c.TakeProfit1 != nil, FieldTakeProfit1)
	add(c.TakeProfit2 != nil, FieldTakeProfit2)
	add(c.TakeProfit3 != nil, FieldTakeProfit3)
	add(c.Title != nil, FieldTitle)
	add(c.Analysis != nil, FieldAnalysis)
	add(c.ConfidenceLevel != nil, FieldConfidenceLevel)
	add(c.Status != nil, FieldStatus)
	return out
}

// Apply replays the diff on top of s.
func (c SignalChanges) Apply(s SignalState) SignalState {
	if c.TradingPair != nil {
		s.TradingPair = c.TradingPair.New
	}
	if c.SignalType != nil {
		s.SignalType = c.SignalType.New
	}
	if c.EntryPrice != nil {
		s.EntryPrice = c.EntryPrice.New
	}
	if c.StopLoss != nil {
		s.StopLoss = c.StopLoss.New
	}
	if c.TakeProfit1 != nil {
		s.TakeProfit1 = c.TakeProfit1.New
	}
	if c.TakeProfit2 != nil {
		s.TakeProfit2 = c.TakeProfit2.New
	}
	if c.TakeProfit3 != nil {
		s.TakeProfit3 = c.TakeProfit3.New
	}
	if c.Title != nil {
		s.Title = c.Title.New
	}
	if c.Analysis != nil {
		s.Analysis = c.Analysis.New
	}
	if c.ConfidenceLevel != nil {
		s.ConfidenceLevel = c.ConfidenceLevel.New
	}
	if c.Status != nil {
		s.Status = c.Status.New
	}
	return s
}

// Lines renders each change as "field: old -> new".
func (c SignalChanges) Lines() []string {
	var out []string
	line := func(f SignalField, old, new string) {
		out = append(out, fmt.Sprintf("%s: %s -> %s", f, old, new))
	}
	if c.TradingPair != nil {
		line(FieldTradingPair, c.TradingPair.Old, c.TradingPair.New)
	}
	if c.SignalType != nil {
		line(FieldSignalType, string(c.SignalType.Old), string(c.SignalType.New))
	}
	if c.EntryPrice != nil {
		line(FieldEntryPrice, c.EntryPrice.Old.String(), c.EntryPrice.New.String())
	}
	if c.StopLoss != nil {
		line(FieldStopLoss, c.StopLoss.Old.String(), c.StopLoss.New.String())
	}
	for _, tp := range []struct {
		f SignalField
		c *Change[decimal.NullDecimal]
	}{{FieldTakeProfit1, c.TakeProfit1}, {FieldTakeProfit2, c.TakeProfit2}, {FieldTakeProfit3, c.TakeProfit3}} {
		if tp.c != nil {
			line(tp.f, FormatNullDecimal(tp.c.Old), FormatNullDecimal(tp.c.New))
		}
	}
	if c.Title != nil {
		line(FieldTitle, c.Title.Old, c.Title.New)
	}
	if c.Analysis != nil {
		line(FieldAnalysis, c.Analysis.Old, c.Analysis.New)
	}
	if c.ConfidenceLevel != nil {
		line(FieldConfidenceLevel, c.ConfidenceLevel.Old, c.ConfidenceLevel.New)
	}
	if c.Status != nil {
		line(FieldStatus, string(c.Status.Old), string(c.Status.New))
	}
	return out
}

// FormatNullDecimal prints "-" for an unset value.
func FormatNullDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}

// SignalRevision is one immutable ledger entry.
type SignalRevision struct {
	ID           int64          `json:"id,string"`
	SignalID     string         `json:"signal_id"`
	RevisionType RevisionType   `json:"revision_type"`
	Snapshot     *SignalState   `json:"snapshot,omitempty"` // initial only
	Changes      *SignalChanges `json:"changes,omitempty"`  // update only
	CreatedBy    string         `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ReplayRevisions rebuilds signal state from its ordered ledger.
func ReplayRevisions(revs []SignalRevision) (SignalState, error) {
	if len(revs) == 0 {
		return SignalState{}, fmt.Errorf("empty ledger")
	}
	if revs[0].RevisionType != RevisionInitial || revs[0].Snapshot == nil {
		return SignalState{}, fmt.Errorf("first revision %d is not an initial snapshot", revs[0].ID)
	}
	state := *revs[0].Snapshot
	for _, r := range revs[1:] {
		if r.RevisionType != RevisionUpdate {
			return SignalState{}, fmt.Errorf("revision %d: unexpected type %q after initial", r.ID, r.RevisionType)
		}
		if r.Changes != nil {
			state = r.Changes.Apply(state)
		}
	}
	return state, nil
}

// EqualState compares two states by value.
func EqualState(a, b SignalState) bool { return DiffSignal(a, b).IsEmpty() }
