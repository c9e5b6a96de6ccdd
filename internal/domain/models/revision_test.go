package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func eurusd() SignalState {
	return SignalState{
		TradingPair: "EUR/USD",
		SignalType:  SignalBuy,
		EntryPrice:  decimal.RequireFromString("1.0850"),
		StopLoss:    decimal.RequireFromString("1.0820"),
		TakeProfit1: decimal.NewNullDecimal(decimal.RequireFromString("1.0900")),
		Status:      SignalActive,
	}
}

func TestDiffSignal_OnlyChangedFields(t *testing.T) {
	prev := eurusd()
	next := prev
	next.StopLoss = decimal.RequireFromString("1.0800")

	ch := DiffSignal(prev, next)
	fields := ch.Fields()
	if len(fields) != 1 || fields[0] != FieldStopLoss {
		t.Fatalf("fields = %v, want [stop_loss]", fields)
	}
	if !ch.StopLoss.Old.Equal(decimal.RequireFromString("1.0820")) || !ch.StopLoss.New.Equal(decimal.RequireFromString("1.0800")) {
		t.Fatalf("stop_loss change = %v -> %v", ch.StopLoss.Old, ch.StopLoss.New)
	}

	b, err := json.Marshal(ch)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("json keys = %s, want only stop_loss", b)
	}
	if _, ok := keys["stop_loss"]; !ok {
		t.Fatalf("json = %s, missing stop_loss", b)
	}
}

func TestDiffSignal_DecimalScaleIsNotAChange(t *testing.T) {
	prev := eurusd()
	next := prev
	next.EntryPrice = decimal.RequireFromString("1.085")
	if ch := DiffSignal(prev, next); !ch.IsEmpty() {
		t.Fatalf("expected no change, got %v", ch.Fields())
	}
}

func TestDiffSignal_NullDecimal(t *testing.T) {
	prev := eurusd()
	next := prev
	next.TakeProfit1 = decimal.NullDecimal{}
	next.TakeProfit2 = decimal.NewNullDecimal(decimal.RequireFromString("1.0950"))

	ch := DiffSignal(prev, next)
	if ch.TakeProfit1 == nil || ch.TakeProfit1.New.Valid {
		t.Fatalf("take_profit_1 should be cleared, got %+v", ch.TakeProfit1)
	}
	if ch.TakeProfit2 == nil || ch.TakeProfit2.Old.Valid {
		t.Fatalf("take_profit_2 should be set from null, got %+v", ch.TakeProfit2)
	}
	lines := ch.Lines()
	if len(lines) != 2 || lines[0] != "take_profit_1: 1.09 -> -" {
		t.Fatalf("lines = %v", lines)
	}
}

func TestReplayRevisions(t *testing.T) {
	initial := eurusd()
	s1 := initial
	s1.StopLoss = decimal.RequireFromString("1.0800")
	s2 := s1
	s2.Status = SignalClosed
	s2.Title = "closed at tp1"

	c1 := DiffSignal(initial, s1)
	c2 := DiffSignal(s1, s2)
	revs := []SignalRevision{
		{ID: 1, RevisionType: RevisionInitial, Snapshot: &initial},
		{ID: 2, RevisionType: RevisionUpdate, Changes: &c1},
		{ID: 3, RevisionType: RevisionUpdate, Changes: &c2},
	}
	got, err := ReplayRevisions(revs)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !EqualState(got, s2) {
		t.Fatalf("replay diverged: %v", DiffSignal(got, s2).Lines())
	}
}

func TestReplayRevisions_RejectsMalformedLedger(t *testing.T) {
	st := eurusd()
	cases := map[string][]SignalRevision{
		"empty":          nil,
		"update first":   {{ID: 1, RevisionType: RevisionUpdate}},
		"second initial": {{ID: 1, RevisionType: RevisionInitial, Snapshot: &st}, {ID: 2, RevisionType: RevisionInitial, Snapshot: &st}},
	}
	for name, revs := range cases {
		if _, err := ReplayRevisions(revs); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestSignalStateValidate(t *testing.T) {
	st := eurusd()
	if err := st.Validate(); err != nil {
		t.Fatalf("valid state rejected: %v", err)
	}
	bad := st
	bad.EntryPrice = decimal.Zero
	if err := bad.Validate(); err == nil {
		t.Fatalf("zero entry price accepted")
	}
	bad = st
	bad.ConfidenceLevel = "extreme"
	if err := bad.Validate(); err == nil {
		t.Fatalf("unknown confidence accepted")
	}
}

func TestSubscriptionStatusTransitions(t *testing.T) {
	allowed := map[[2]SubscriptionStatus]bool{
		{SubscriptionPending, SubscriptionActive}:    true,
		{SubscriptionPending, SubscriptionCancelled}: true,
		{SubscriptionActive, SubscriptionCancelled}:  true,
		{SubscriptionActive, SubscriptionExpired}:    true,
	}
	all := []SubscriptionStatus{SubscriptionPending, SubscriptionActive, SubscriptionCancelled, SubscriptionExpired}
	for _, from := range all {
		for _, to := range all {
			if got := from.CanTransition(to); got != allowed[[2]SubscriptionStatus{from, to}] {
				t.Fatalf("%s -> %s: got %v", from, to, got)
			}
		}
	}
}
