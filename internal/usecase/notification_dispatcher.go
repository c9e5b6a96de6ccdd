package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	drepo "github.com/paeltech/savannaFx-sub000/internal/domain/repository"
	"github.com/paeltech/savannaFx-sub000/internal/service/ratelimit"
	"github.com/paeltech/savannaFx-sub000/pkg/clock"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

const (
	ChannelGateway = "gateway"
	ChannelInApp   = "in_app"
)

type DispatcherConfig struct {
	Concurrency   int
	RatePerSecond float64
	Burst         int
	SendTimeout   time.Duration
}

// NotificationDispatcher fans a committed signal change out to every active
// subscriber over the messaging gateway (Channel A) and the in-app mailbox
// (Channel B). Each trigger is delivered at most once; there is no retry.
type NotificationDispatcher struct {
	signals    drepo.SignalStore
	subs       drepo.SubscriptionStore
	mailbox    drepo.NotificationStore
	gateway    drepo.MessagingGateway
	contacts   drepo.ContactDirectory
	pusher     drepo.NotificationPusher
	deliveries drepo.DeliveryLog
	limiter    *ratelimit.Limiter
	metrics    drepo.Metrics
	clock      clock.Clock
	logger     *logger.Logger
	events     eventSink
	cfg        DispatcherConfig
}

// DispatcherDeps groups the collaborators; contacts, pusher, deliveries and
// events are optional.
type DispatcherDeps struct {
	Signals    drepo.SignalStore
	Subs       drepo.SubscriptionStore
	Mailbox    drepo.NotificationStore
	Gateway    drepo.MessagingGateway
	Contacts   drepo.ContactDirectory
	Pusher     drepo.NotificationPusher
	Deliveries drepo.DeliveryLog
	Events     drepo.EventPublisher
	Metrics    drepo.Metrics
	Clock      clock.Clock
	Logger     *logger.Logger
}

func NewNotificationDispatcher(deps DispatcherDeps, limiter *ratelimit.Limiter, cfg DispatcherConfig) *NotificationDispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Concurrency
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if limiter == nil {
		limiter = ratelimit.New()
	}
	return &NotificationDispatcher{
		signals:    deps.Signals,
		subs:       deps.Subs,
		mailbox:    deps.Mailbox,
		gateway:    deps.Gateway,
		contacts:   deps.Contacts,
		pusher:     deps.Pusher,
		deliveries: deps.Deliveries,
		limiter:    limiter,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		logger:     deps.Logger,
		events:     eventSink{pub: deps.Events, clock: deps.Clock, logger: deps.Logger},
		cfg:        cfg,
	}
}

// OnSignalCreated sends the full signal to every active subscriber.
func (d *NotificationDispatcher) OnSignalCreated(ctx context.Context, sig *models.Signal) (*models.DispatchSummary, error) {
	return d.dispatch(ctx, sig, models.NotifySignalCreated, signalCreatedTitle(sig), signalCreatedMessage(sig))
}

// OnSignalUpdated sends only the changed fields. An empty diff sends nothing.
func (d *NotificationDispatcher) OnSignalUpdated(ctx context.Context, sig *models.Signal, changes models.SignalChanges) (*models.DispatchSummary, error) {
	if changes.IsEmpty() {
		return &models.DispatchSummary{SignalID: sig.ID, Kind: models.NotifySignalUpdated}, nil
	}
	return d.dispatch(ctx, sig, models.NotifySignalUpdated, signalUpdatedTitle(sig), signalUpdatedMessage(sig, changes))
}

// Redispatch is the manual re-trigger: the current state goes out again as a
// new signal message under a fresh trigger id.
func (d *NotificationDispatcher) Redispatch(ctx context.Context, signalID string) (*models.DispatchSummary, error) {
	sig, err := d.signals.GetSignal(ctx, signalID)
	if err != nil {
		return nil, fmt.Errorf("redispatch %s: %w", signalID, err)
	}
	return d.OnSignalCreated(ctx, sig)
}

func (d *NotificationDispatcher) dispatch(ctx context.Context, sig *models.Signal, kind models.NotificationKind, title, message string) (*models.DispatchSummary, error) {
	summary := &models.DispatchSummary{
		TriggerID: uuid.NewString(),
		SignalID:  sig.ID,
		Kind:      kind,
		StartedAt: d.clock.Now(),
	}
	log := d.logger.With(
		logger.String("trigger_id", summary.TriggerID),
		logger.SignalID(sig.ID),
		logger.String("kind", string(kind)))

	recipients, err := d.recipients(ctx)
	if err != nil {
		return nil, err
	}
	summary.TotalSubscribers = len(recipients)
	if len(recipients) == 0 {
		summary.FinishedAt = d.clock.Now()
		log.Info("no active subscribers to notify")
		return summary, nil
	}

	var (
		wg             sync.WaitGroup
		gatewayRecords []models.DeliveryRecord
		inAppRecords   []models.DeliveryRecord
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		gatewayRecords = d.sendGateway(ctx, summary, recipients, message)
	}()
	go func() {
		defer wg.Done()
		inAppRecords = d.sendInApp(ctx, summary, sig, kind, title, message, recipients, log)
	}()
	wg.Wait()

	for _, r := range gatewayRecords {
		if r.OK {
			summary.SuccessCount++
			continue
		}
		summary.FailureCount++
		summary.Failures = append(summary.Failures, models.DeliveryFailure{UserID: r.UserID, Target: r.Target, Error: r.Error})
	}
	for _, r := range inAppRecords {
		if r.OK {
			summary.InApp.Created++
		} else {
			summary.InApp.Failed++
		}
	}
	summary.FinishedAt = d.clock.Now()

	d.recordDeliveries(ctx, append(gatewayRecords, inAppRecords...), log)
	d.metrics.RecordLatency("dispatch", summary.FinishedAt.Sub(summary.StartedAt).Seconds())

	if summary.PartialFailure() {
		log.Warn("dispatch finished with gateway failures",
			logger.Int("total", summary.TotalSubscribers),
			logger.Int("success", summary.SuccessCount),
			logger.Int("failure", summary.FailureCount))
	} else {
		log.Info("dispatch finished",
			logger.Int("total", summary.TotalSubscribers),
			logger.Int("in_app", summary.InApp.Created))
	}
	d.events.emit(ctx, models.EventSignalDispatched, sig.ID, summary)
	return summary, nil
}

// recipients resolves active subscribers, one per user.
func (d *NotificationDispatcher) recipients(ctx context.Context) ([]models.Recipient, error) {
	active, err := d.subs.ListActiveSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	seen := make(map[string]bool, len(active))
	out := make([]models.Recipient, 0, len(active))
	for _, s := range active {
		if seen[s.UserID] {
			continue
		}
		seen[s.UserID] = true
		target := s.UserID
		if d.contacts != nil {
			t, err := d.contacts.Target(ctx, s.UserID)
			if err != nil {
				d.logger.Warn("contact lookup failed, using user id",
					logger.UserID(s.UserID), logger.Error(err))
			} else if t != "" {
				target = t
			}
		}
		out = append(out, models.Recipient{UserID: s.UserID, SubscriptionID: s.ID, Target: target})
	}
	return out, nil
}

// sendGateway is Channel A: concurrent, rate limited, every outcome gathered.
func (d *NotificationDispatcher) sendGateway(ctx context.Context, summary *models.DispatchSummary, recipients []models.Recipient, message string) []models.DeliveryRecord {
	records := make([]models.DeliveryRecord, len(recipients))
	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)

	for i, r := range recipients {
		i, r := i, r
		g.Go(func() error {
			rec := models.DeliveryRecord{
				TriggerID: summary.TriggerID,
				SignalID:  summary.SignalID,
				Kind:      summary.Kind,
				UserID:    r.UserID,
				Target:    r.Target,
				Channel:   ChannelGateway,
			}
			err := d.limiter.Wait(ctx, ChannelGateway, float64(d.cfg.Burst), d.cfg.RatePerSecond)
			if err == nil {
				sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
				err = d.gateway.Send(sendCtx, r.Target, message)
				cancel()
			}
			rec.SentAt = d.clock.Now()
			if err != nil {
				rec.Error = errs.External(err, "send to %s", r.Target).Error()
				d.metrics.RecordDelivery(ChannelGateway, "failure")
			} else {
				rec.OK = true
				d.metrics.RecordDelivery(ChannelGateway, "success")
			}
			records[i] = rec
			return nil
		})
	}
	_ = g.Wait()
	return records
}

// sendInApp is Channel B. It never affects Channel A and its failures are only logged.
func (d *NotificationDispatcher) sendInApp(
	ctx context.Context,
	summary *models.DispatchSummary,
	sig *models.Signal,
	kind models.NotificationKind,
	title, message string,
	recipients []models.Recipient,
	log *logger.Logger,
) []models.DeliveryRecord {
	records := make([]models.DeliveryRecord, 0, len(recipients))
	var errList error
	for _, r := range recipients {
		n := &models.Notification{
			ID:        uuid.NewString(),
			UserID:    r.UserID,
			SignalID:  sig.ID,
			Kind:      kind,
			Title:     title,
			Message:   message,
			CreatedAt: d.clock.Now(),
		}
		rec := models.DeliveryRecord{
			TriggerID: summary.TriggerID,
			SignalID:  sig.ID,
			Kind:      kind,
			UserID:    r.UserID,
			Target:    r.UserID,
			Channel:   ChannelInApp,
			SentAt:    n.CreatedAt,
		}
		if err := d.mailbox.CreateNotification(ctx, n); err != nil {
			rec.Error = err.Error()
			errList = multierr.Append(errList, fmt.Errorf("user %s: %w", r.UserID, err))
			d.metrics.RecordDelivery(ChannelInApp, "failure")
			records = append(records, rec)
			continue
		}
		rec.OK = true
		d.metrics.RecordDelivery(ChannelInApp, "success")
		records = append(records, rec)

		if d.pusher != nil {
			if err := d.pusher.Push(ctx, n); err != nil {
				log.Debug("live push skipped", logger.UserID(r.UserID), logger.Error(err))
			}
		}
	}
	if errList != nil {
		log.Warn("in-app notifications failed",
			logger.Int("failed", len(multierr.Errors(errList))),
			logger.Error(errList))
	}
	return records
}

func (d *NotificationDispatcher) recordDeliveries(ctx context.Context, records []models.DeliveryRecord, log *logger.Logger) {
	if d.deliveries == nil || len(records) == 0 {
		return
	}
	if err := d.deliveries.RecordBatch(ctx, records); err != nil {
		log.Warn("delivery log write failed", logger.Int("records", len(records)), logger.Error(err))
	}
}
