package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
)

func TestSignalLedger_CreateWritesOneInitialRevision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sig, err := h.ledger.Create(ctx, "admin-1", eurusdBuy())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sig.Status != models.SignalActive {
		t.Fatalf("status = %s, want active", sig.Status)
	}
	if !sig.CreatedAt.Equal(testNow) {
		t.Fatalf("created_at = %v, want clock time", sig.CreatedAt)
	}

	revs, err := h.ledger.History(ctx, sig.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(revs) != 1 || revs[0].RevisionType != models.RevisionInitial {
		t.Fatalf("revisions = %+v, want one initial", revs)
	}
	if revs[0].Snapshot == nil || !models.EqualState(*revs[0].Snapshot, sig.SignalState) {
		t.Fatalf("initial snapshot does not match signal")
	}
	if got := h.events.types(); len(got) != 1 || got[0] != models.EventSignalCreated {
		t.Fatalf("events = %v", got)
	}
}

func TestSignalLedger_CreateValidates(t *testing.T) {
	h := newHarness(t)
	fields := eurusdBuy()
	fields.SignalType = "hold"
	_, err := h.ledger.Create(context.Background(), "admin-1", fields)
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestSignalLedger_UpdateRecordsOnlyChangedField(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sig, err := h.ledger.Create(ctx, "admin-1", eurusdBuy())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sl := decimal.RequireFromString("1.0800")
	// an unchanged value in the patch must not show up in the diff
	entry := decimal.RequireFromString("1.085")
	res, err := h.ledger.Update(ctx, "admin-2", sig.ID, models.SignalPatch{StopLoss: &sl, EntryPrice: &entry})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Revision == nil || res.Revision.RevisionType != models.RevisionUpdate {
		t.Fatalf("expected an update revision, got %+v", res.Revision)
	}
	fields := res.Changes.Fields()
	if len(fields) != 1 || fields[0] != models.FieldStopLoss {
		t.Fatalf("changed fields = %v, want [stop_loss]", fields)
	}
	if !res.Changes.StopLoss.Old.Equal(decimal.RequireFromString("1.0820")) || !res.Changes.StopLoss.New.Equal(sl) {
		t.Fatalf("stop_loss change = %s -> %s", res.Changes.StopLoss.Old, res.Changes.StopLoss.New)
	}

	revs, _ := h.ledger.History(ctx, sig.ID)
	if len(revs) != 2 {
		t.Fatalf("revisions = %d, want 2", len(revs))
	}
	if revs[1].CreatedBy != "admin-2" {
		t.Fatalf("created_by = %s", revs[1].CreatedBy)
	}
	vr, err := h.ledger.Verify(ctx, sig.ID)
	if err != nil || !vr.Consistent {
		t.Fatalf("verify = %+v, %v", vr, err)
	}
}

func TestSignalLedger_NoOpUpdateWritesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sig, _ := h.ledger.Create(ctx, "admin-1", eurusdBuy())

	pair := "EUR/USD"
	res, err := h.ledger.Update(ctx, "admin-1", sig.ID, models.SignalPatch{TradingPair: &pair})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Revision != nil || !res.Changes.IsEmpty() {
		t.Fatalf("no-op update produced a revision")
	}
	revs, _ := h.ledger.History(ctx, sig.ID)
	if len(revs) != 1 {
		t.Fatalf("revisions = %d, want 1", len(revs))
	}
}

func TestSignalLedger_UpdateSynthesizesMissingInitial(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sig, _ := h.ledger.Create(ctx, "admin-1", eurusdBuy())
	h.store.DropRevisions(sig.ID)

	title := "moved to breakeven"
	res, err := h.ledger.Update(ctx, "admin-1", sig.ID, models.SignalPatch{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !res.Synthesized {
		t.Fatalf("expected synthesized initial")
	}

	revs, _ := h.ledger.History(ctx, sig.ID)
	if len(revs) != 2 || revs[0].RevisionType != models.RevisionInitial || revs[1].RevisionType != models.RevisionUpdate {
		t.Fatalf("ledger = %+v", revs)
	}
	if revs[0].Snapshot.Title != "" {
		t.Fatalf("synthesized snapshot should hold the pre-update state")
	}

	// a second update must not synthesize again
	title2 := "tp1 hit"
	res, err = h.ledger.Update(ctx, "admin-1", sig.ID, models.SignalPatch{Title: &title2})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if res.Synthesized {
		t.Fatalf("second update synthesized again")
	}
	vr, err := h.ledger.Verify(ctx, sig.ID)
	if err != nil || !vr.Consistent {
		t.Fatalf("verify = %+v, %v", vr, err)
	}
}

func TestSignalLedger_VerifyReportsMalformedLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sig, _ := h.ledger.Create(ctx, "admin-1", eurusdBuy())
	h.store.DropRevisions(sig.ID)

	vr, err := h.ledger.Verify(ctx, sig.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if vr.Consistent || vr.Reason != VerifyMalformedLedger || vr.Detail == "" {
		t.Fatalf("verify = %+v", vr)
	}
}

func TestSignalLedger_VerifyReportsDrift(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stored := eurusdBuy()
	stored.Status = models.SignalActive
	snapshot := stored
	snapshot.StopLoss = decimal.RequireFromString("1.0800")
	sig := &models.Signal{ID: "drifted", SignalState: stored}
	initial := &models.SignalRevision{ID: 1, SignalID: sig.ID, RevisionType: models.RevisionInitial, Snapshot: &snapshot}
	if err := h.store.CreateSignal(ctx, sig, initial); err != nil {
		t.Fatalf("seed: %v", err)
	}

	vr, err := h.ledger.Verify(ctx, sig.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if vr.Consistent || vr.Reason != VerifyStateDrift {
		t.Fatalf("verify = %+v", vr)
	}
	if len(vr.Drift) != 1 || vr.Drift[0] != models.FieldStopLoss {
		t.Fatalf("drift = %v", vr.Drift)
	}
}

func TestSignalLedger_TerminalStatusIsFrozen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sig, _ := h.ledger.Create(ctx, "admin-1", eurusdBuy())

	closed := models.SignalClosed
	if _, err := h.ledger.Update(ctx, "admin-1", sig.ID, models.SignalPatch{Status: &closed}); err != nil {
		t.Fatalf("close: %v", err)
	}
	active := models.SignalActive
	_, err := h.ledger.Update(ctx, "admin-1", sig.ID, models.SignalPatch{Status: &active})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("reopen err = %v, want conflict", err)
	}
}

func TestSignalLedger_UnknownSignal(t *testing.T) {
	h := newHarness(t)
	title := "x"
	_, err := h.ledger.Update(context.Background(), "admin-1", "missing", models.SignalPatch{Title: &title})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if _, err := h.ledger.History(context.Background(), "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("history err = %v, want not found", err)
	}
}
