package usecase

import (
	"context"
	"fmt"

	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	drepo "github.com/paeltech/savannaFx-sub000/internal/domain/repository"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
	"github.com/paeltech/savannaFx-sub000/pkg/queue"
)

const (
	DispatchModeSync  = "sync"
	DispatchModeQueue = "queue"
)

// DispatchOutcome is what the caller of a ledger mutation gets back about the
// follow-up fan-out. The mutation itself is already committed either way.
type DispatchOutcome struct {
	Mode    string                  `json:"mode"`
	Status  string                  `json:"status"`
	Summary *models.DispatchSummary `json:"summary,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

// SignalNotifier runs after a ledger commit.
type SignalNotifier interface {
	NotifySignalCreated(ctx context.Context, sig *models.Signal) *DispatchOutcome
	NotifySignalUpdated(ctx context.Context, sig *models.Signal, changes models.SignalChanges) *DispatchOutcome
}

var (
	_ SignalNotifier = (*NotificationDispatcher)(nil)
	_ SignalNotifier = (*QueuedNotifier)(nil)
)

func (d *NotificationDispatcher) NotifySignalCreated(ctx context.Context, sig *models.Signal) *DispatchOutcome {
	return syncOutcome(d.OnSignalCreated(ctx, sig))
}

func (d *NotificationDispatcher) NotifySignalUpdated(ctx context.Context, sig *models.Signal, changes models.SignalChanges) *DispatchOutcome {
	return syncOutcome(d.OnSignalUpdated(ctx, sig, changes))
}

func syncOutcome(summary *models.DispatchSummary, err error) *DispatchOutcome {
	if err != nil {
		return &DispatchOutcome{Mode: DispatchModeSync, Status: "failed", Error: err.Error()}
	}
	return &DispatchOutcome{Mode: DispatchModeSync, Status: summary.Status(), Summary: summary}
}

// DispatchPayload is the queued form of one dispatch trigger.
type DispatchPayload struct {
	SignalID string                  `json:"signal_id"`
	Kind     models.NotificationKind `json:"kind"`
	Changes  *models.SignalChanges   `json:"changes,omitempty"`
}

// QueuedNotifier hands dispatches to the Redis queue so the HTTP call returns
// as soon as the mutation commits.
type QueuedNotifier struct {
	queue  queue.QueueService
	logger *logger.Logger
}

func NewQueuedNotifier(q queue.QueueService, lgr *logger.Logger) *QueuedNotifier {
	return &QueuedNotifier{queue: q, logger: lgr}
}

func (n *QueuedNotifier) NotifySignalCreated(ctx context.Context, sig *models.Signal) *DispatchOutcome {
	return n.enqueue(ctx, DispatchPayload{SignalID: sig.ID, Kind: models.NotifySignalCreated})
}

func (n *QueuedNotifier) NotifySignalUpdated(ctx context.Context, sig *models.Signal, changes models.SignalChanges) *DispatchOutcome {
	if changes.IsEmpty() {
		return &DispatchOutcome{Mode: DispatchModeQueue, Status: "skipped"}
	}
	return n.enqueue(ctx, DispatchPayload{SignalID: sig.ID, Kind: models.NotifySignalUpdated, Changes: &changes})
}

func (n *QueuedNotifier) enqueue(ctx context.Context, p DispatchPayload) *DispatchOutcome {
	if err := n.queue.PublishMessage(ctx, DispatchJobType, p); err != nil {
		n.logger.Error("enqueue dispatch failed",
			logger.SignalID(p.SignalID),
			logger.String("kind", string(p.Kind)),
			logger.Error(err))
		return &DispatchOutcome{Mode: DispatchModeQueue, Status: "failed", Error: err.Error()}
	}
	return &DispatchOutcome{Mode: DispatchModeQueue, Status: "queued"}
}

const DispatchJobType = "signal.dispatch"

// DispatchJob runs a queued dispatch. The queue never retries it.
type DispatchJob struct {
	signals    drepo.SignalStore
	dispatcher *NotificationDispatcher
	logger     *logger.Logger
}

var _ queue.Job = (*DispatchJob)(nil)

func NewDispatchJob(signals drepo.SignalStore, d *NotificationDispatcher, lgr *logger.Logger) *DispatchJob {
	return &DispatchJob{signals: signals, dispatcher: d, logger: lgr}
}

func (j *DispatchJob) Name() string { return "SignalDispatchJob" }

func (j *DispatchJob) Type() string { return DispatchJobType }

func (j *DispatchJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[DispatchPayload](payload)
	if err != nil {
		return err
	}
	sig, err := j.signals.GetSignal(ctx, p.SignalID)
	if err != nil {
		return fmt.Errorf("load signal %s: %w", p.SignalID, err)
	}

	var summary *models.DispatchSummary
	switch p.Kind {
	case models.NotifySignalCreated:
		summary, err = j.dispatcher.OnSignalCreated(ctx, sig)
	case models.NotifySignalUpdated:
		if p.Changes == nil {
			return fmt.Errorf("update dispatch for %s has no changes", p.SignalID)
		}
		summary, err = j.dispatcher.OnSignalUpdated(ctx, sig, *p.Changes)
	default:
		return fmt.Errorf("unknown dispatch kind %q", p.Kind)
	}
	if err != nil {
		return err
	}
	j.logger.Info("queued dispatch done",
		logger.SignalID(sig.ID),
		logger.String("status", summary.Status()))
	return nil
}
