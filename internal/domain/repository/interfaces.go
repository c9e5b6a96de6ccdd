package repository

import (
	"context"
	"time"

	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
)

// SignalMutation decides the new state and the revisions to append, given the
// locked current row. Returning no revisions means nothing is written.
type SignalMutation func(current models.Signal, hasInitial bool) (*models.Signal, []models.SignalRevision, error)

type SignalStore interface {
	// CreateSignal persists the signal and its initial revision atomically.
	CreateSignal(ctx context.Context, s *models.Signal, initial *models.SignalRevision) error
	GetSignal(ctx context.Context, id string) (*models.Signal, error)
	ListSignals(ctx context.Context, f models.SignalFilter) ([]models.Signal, error)
	// MutateSignal serializes writers on the signal row so ledger order equals commit order.
	MutateSignal(ctx context.Context, id string, fn SignalMutation) (*models.Signal, error)
	// ListRevisions returns the ledger oldest first.
	ListRevisions(ctx context.Context, signalID string) ([]models.SignalRevision, error)
}

type PricingStore interface {
	GetPlan(ctx context.Context, id string) (*models.PricingPlan, error)
	GetPlanByType(ctx context.Context, t models.PlanType) (*models.PricingPlan, error)
	ListPlans(ctx context.Context) ([]models.PricingPlan, error)
	UpsertPlan(ctx context.Context, p *models.PricingPlan) error
}

type SubscriptionStore interface {
	// CreateSubscription fails with errs.Conflict when the user already has an
	// open subscription; the check is a uniqueness constraint, not a read.
	CreateSubscription(ctx context.Context, s *models.Subscription) error
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	GetOpenSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]models.Subscription, error)
	ListExpiredBefore(ctx context.Context, t time.Time) ([]models.Subscription, error)
	// MutateSubscription runs fn against the locked row; an fn error leaves the row unchanged.
	MutateSubscription(ctx context.Context, id string, fn func(current models.Subscription) (*models.Subscription, error)) (*models.Subscription, error)
}

type GroupStore interface {
	// RetireGroups flips is_active=false on every active group outside monthKey.
	RetireGroups(ctx context.Context, monthKey string) (int64, error)
	// ListGroups returns groups of a month ordered by group_number.
	ListGroups(ctx context.Context, monthKey string) ([]models.DeliveryGroup, error)
	AssignedUsers(ctx context.Context, monthKey string) (map[string]bool, error)
	// CreateGroup fails with errs.Conflict when group_number is taken for the month.
	CreateGroup(ctx context.Context, g *models.DeliveryGroup) error
	// AddMember increments member_count iff member_count < max_members in a single
	// conditional write and records the membership. false means the group was full.
	AddMember(ctx context.Context, groupID string, m models.GroupMembership) (bool, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, f models.InboxFilter) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

// MessagingGateway is the external channel used for Channel A and group provisioning.
type MessagingGateway interface {
	Send(ctx context.Context, target, message string) error
	ProvisionChannel(ctx context.Context, name string) (string, error)
}

// ContactDirectory maps a subscriber to the gateway target address.
type ContactDirectory interface {
	Target(ctx context.Context, userID string) (string, error)
}

// NotificationPusher delivers a mailbox entry to live sessions.
type NotificationPusher interface {
	Push(ctx context.Context, n *models.Notification) error
}

type DeliveryLog interface {
	RecordBatch(ctx context.Context, records []models.DeliveryRecord) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, ev models.DomainEvent) error
	Close() error
}

// Locker is a cluster-wide best-effort mutex.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Metrics interface {
	RecordSignal(op string)
	RecordSubscription(transition string)
	RecordPipsConsumed(n int64)
	RecordGroupAssignment(result string)
	RecordDelivery(channel, result string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
