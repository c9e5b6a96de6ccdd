package usecase

import (
	"fmt"
	"strings"

	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
)

func signalCreatedTitle(s *models.Signal) string {
	return fmt.Sprintf("New signal: %s %s", strings.ToUpper(string(s.SignalType)), s.TradingPair)
}

func signalUpdatedTitle(s *models.Signal) string {
	return fmt.Sprintf("Signal updated: %s %s", strings.ToUpper(string(s.SignalType)), s.TradingPair)
}

// signalCreatedMessage is the full-state gateway text.
func signalCreatedMessage(s *models.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", signalCreatedTitle(s))
	if s.Title != "" {
		fmt.Fprintf(&b, "%s\n", s.Title)
	}
	fmt.Fprintf(&b, "Entry: %s\n", s.EntryPrice.String())
	fmt.Fprintf(&b, "Stop loss: %s\n", s.StopLoss.String())
	for i, tp := range []struct {
		set bool
		v   string
	}{
		{s.TakeProfit1.Valid, models.FormatNullDecimal(s.TakeProfit1)},
		{s.TakeProfit2.Valid, models.FormatNullDecimal(s.TakeProfit2)},
		{s.TakeProfit3.Valid, models.FormatNullDecimal(s.TakeProfit3)},
	} {
		if tp.set {
			fmt.Fprintf(&b, "TP%d: %s\n", i+1, tp.v)
		}
	}
	if s.ConfidenceLevel != "" {
		fmt.Fprintf(&b, "Confidence: %s\n", s.ConfidenceLevel)
	}
	return strings.TrimRight(b.String(), "\n")
}

// signalUpdatedMessage lists only the changed fields.
func signalUpdatedMessage(s *models.Signal, changes models.SignalChanges) string {
	lines := append([]string{signalUpdatedTitle(s)}, changes.Lines()...)
	return strings.Join(lines, "\n")
}
