package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	drepo "github.com/paeltech/savannaFx-sub000/internal/domain/repository"
	"github.com/paeltech/savannaFx-sub000/pkg/clock"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

// SignalLedger owns signal state and its append-only revision log.
type SignalLedger struct {
	store   drepo.SignalStore
	metrics drepo.Metrics
	clock   clock.Clock
	ids     *snowflake.Node
	logger  *logger.Logger
	events  eventSink
}

// NewSignalLedger creates a new SignalLedger instance.
func NewSignalLedger(
	store drepo.SignalStore,
	events drepo.EventPublisher,
	metrics drepo.Metrics,
	clk clock.Clock,
	ids *snowflake.Node,
	lgr *logger.Logger,
) *SignalLedger {
	return &SignalLedger{
		store:   store,
		metrics: metrics,
		clock:   clk,
		ids:     ids,
		logger:  lgr,
		events:  eventSink{pub: events, clock: clk, logger: lgr},
	}
}

// UpdateResult describes one Update call. Revision is nil for a no-op.
type UpdateResult struct {
	Signal      *models.Signal         `json:"signal"`
	Revision    *models.SignalRevision `json:"revision,omitempty"`
	Changes     models.SignalChanges   `json:"changes"`
	Synthesized bool                   `json:"synthesized_initial,omitempty"`
}

// Verify outcomes other than consistent.
const (
	VerifyMalformedLedger = "malformed_ledger"
	VerifyStateDrift      = "state_drift"
)

// VerifyResult tells a broken ledger apart from a ledger that replays to a
// different state than the stored signal.
type VerifyResult struct {
	Consistent bool                 `json:"consistent"`
	Reason     string               `json:"reason,omitempty"`
	Detail     string               `json:"detail,omitempty"`
	Drift      []models.SignalField `json:"drift,omitempty"`
}

// Create publishes a new active signal together with its initial revision.
func (l *SignalLedger) Create(ctx context.Context, actor string, fields models.SignalState) (*models.Signal, error) {
	start := time.Now()
	fields.TradingPair = strings.TrimSpace(fields.TradingPair)
	fields.Status = models.SignalActive
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	now := l.clock.Now()
	sig := &models.Signal{
		ID:          uuid.NewString(),
		SignalState: fields,
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	snapshot := fields
	initial := &models.SignalRevision{
		ID:           l.ids.Generate().Int64(),
		SignalID:     sig.ID,
		RevisionType: models.RevisionInitial,
		Snapshot:     &snapshot,
		CreatedBy:    actor,
		CreatedAt:    now,
	}

	if err := l.store.CreateSignal(ctx, sig, initial); err != nil {
		l.metrics.RecordError("signal_create")
		return nil, fmt.Errorf("create signal: %w", err)
	}

	l.metrics.RecordSignal("created")
	l.metrics.RecordLatency("signal_create", time.Since(start).Seconds())
	l.events.emit(ctx, models.EventSignalCreated, sig.ID, sig)
	return sig, nil
}

// Update diffs patch against the stored signal and records an update revision
// when anything changed. A signal without an initial revision gets one
// synthesized from its pre-update state first.
func (l *SignalLedger) Update(ctx context.Context, actor, id string, patch models.SignalPatch) (*UpdateResult, error) {
	start := time.Now()
	res := &UpdateResult{}

	sig, err := l.store.MutateSignal(ctx, id, func(cur models.Signal, hasInitial bool) (*models.Signal, []models.SignalRevision, error) {
		next := patch.ApplyTo(cur.SignalState)
		next.TradingPair = strings.TrimSpace(next.TradingPair)
		if err := next.Validate(); err != nil {
			return nil, nil, err
		}
		if cur.Status.IsTerminal() && next.Status != cur.Status {
			return nil, nil, errs.Conflict("signal %s is %s and cannot change status", cur.ID, cur.Status)
		}

		changes := models.DiffSignal(cur.SignalState, next)
		if changes.IsEmpty() {
			return nil, nil, nil
		}

		now := l.clock.Now()
		var revs []models.SignalRevision
		if !hasInitial {
			snapshot := cur.SignalState
			revs = append(revs, models.SignalRevision{
				ID:           l.ids.Generate().Int64(),
				SignalID:     cur.ID,
				RevisionType: models.RevisionInitial,
				Snapshot:     &snapshot,
				CreatedBy:    cur.CreatedBy,
				CreatedAt:    cur.CreatedAt,
			})
			res.Synthesized = true
		}
		update := models.SignalRevision{
			ID:           l.ids.Generate().Int64(),
			SignalID:     cur.ID,
			RevisionType: models.RevisionUpdate,
			Changes:      &changes,
			CreatedBy:    actor,
			CreatedAt:    now,
		}
		revs = append(revs, update)

		out := cur
		out.SignalState = next
		out.UpdatedAt = now
		res.Revision = &update
		res.Changes = changes
		return &out, revs, nil
	})
	if err != nil {
		l.metrics.RecordError("signal_update")
		return nil, fmt.Errorf("update signal %s: %w", id, err)
	}
	res.Signal = sig

	if res.Revision == nil {
		l.metrics.RecordSignal("noop")
		return res, nil
	}
	if res.Synthesized {
		l.logger.Warn("ledger gap: synthesized initial revision", logger.SignalID(id))
		l.metrics.RecordSignal("initial_synthesized")
	}
	l.metrics.RecordSignal("updated")
	l.metrics.RecordLatency("signal_update", time.Since(start).Seconds())
	l.events.emit(ctx, models.EventSignalUpdated, sig.ID, map[string]interface{}{
		"signal":  sig,
		"changes": res.Changes,
	})
	return res, nil
}

// History returns the ledger oldest first.
func (l *SignalLedger) History(ctx context.Context, id string) ([]models.SignalRevision, error) {
	revs, err := l.store.ListRevisions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("signal history %s: %w", id, err)
	}
	return revs, nil
}

// Verify replays the ledger and compares it with the stored state. Only
// storage failures are returned as errors.
func (l *SignalLedger) Verify(ctx context.Context, id string) (*VerifyResult, error) {
	sig, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	revs, err := l.History(ctx, id)
	if err != nil {
		return nil, err
	}
	replayed, err := models.ReplayRevisions(revs)
	if err != nil {
		l.logger.Warn("signal ledger malformed", logger.SignalID(id), logger.Error(err))
		return &VerifyResult{Reason: VerifyMalformedLedger, Detail: err.Error()}, nil
	}
	if drift := models.DiffSignal(replayed, sig.SignalState).Fields(); len(drift) > 0 {
		l.logger.Warn("signal state drifted from ledger", logger.SignalID(id), logger.Int("fields", len(drift)))
		return &VerifyResult{Reason: VerifyStateDrift, Drift: drift}, nil
	}
	return &VerifyResult{Consistent: true}, nil
}

func (l *SignalLedger) Get(ctx context.Context, id string) (*models.Signal, error) {
	sig, err := l.store.GetSignal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get signal %s: %w", id, err)
	}
	return sig, nil
}

func (l *SignalLedger) List(ctx context.Context, f models.SignalFilter) ([]models.Signal, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return l.store.ListSignals(ctx, f)
}
