package models

import "time"

type NotificationKind string

const (
	NotifySignalCreated NotificationKind = "signal_created"
	NotifySignalUpdated NotificationKind = "signal_updated"
)

// Notification is an in-app mailbox entry.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	SignalID  string           `json:"signal_id"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

// InboxFilter narrows a mailbox listing. A zero Since means no lower bound.
type InboxFilter struct {
	UnreadOnly bool
	Since      time.Time
	Limit      int
}

// Recipient is an active subscriber resolved for one dispatch.
type Recipient struct {
	UserID         string `json:"user_id"`
	SubscriptionID string `json:"subscription_id"`
	Target         string `json:"target"`
}

type DeliveryFailure struct {
	UserID string `json:"user_id"`
	Target string `json:"target"`
	Error  string `json:"error"`
}

type InAppSummary struct {
	Created int `json:"created"`
	Failed  int `json:"failed"`
}

// DispatchSummary is the Channel A result plus best-effort Channel B counts.
type DispatchSummary struct {
	TriggerID        string            `json:"trigger_id"`
	SignalID         string            `json:"signal_id"`
	Kind             NotificationKind  `json:"kind"`
	TotalSubscribers int               `json:"total_subscribers"`
	SuccessCount     int               `json:"success_count"`
	FailureCount     int               `json:"failure_count"`
	Failures         []DeliveryFailure `json:"failures,omitempty"`
	InApp            InAppSummary      `json:"in_app"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
}

func (s *DispatchSummary) PartialFailure() bool { return s.FailureCount > 0 }

// Status is "ok", "partial_failure" or "no_recipients".
func (s *DispatchSummary) Status() string {
	switch {
	case s.TotalSubscribers == 0:
		return "no_recipients"
	case s.FailureCount > 0:
		return "partial_failure"
	default:
		return "ok"
	}
}

// DeliveryRecord is one per-recipient outcome written to the delivery log.
type DeliveryRecord struct {
	TriggerID string
	SignalID  string
	Kind      NotificationKind
	UserID    string
	Target    string
	Channel   string // gateway | in_app
	OK        bool
	Error     string
	SentAt    time.Time
}

// DomainEvent is published to the event stream after a committed mutation.
type DomainEvent struct {
	Type       string      `json:"type"`
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

const (
	EventSignalCreated         = "signal.created"
	EventSignalUpdated         = "signal.updated"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionClosed    = "subscription.closed"
	EventGroupsRefreshed       = "groups.refreshed"
	EventSignalDispatched      = "signal.dispatched"
)
