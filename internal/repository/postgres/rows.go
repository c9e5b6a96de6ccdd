package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
)

type signalRow struct {
	ID              string              `gorm:"primaryKey;type:uuid"`
	TradingPair     string              `gorm:"size:32;not null;index"`
	SignalType      string              `gorm:"size:8;not null"`
	EntryPrice      decimal.Decimal     `gorm:"type:numeric(20,10);not null"`
	StopLoss        decimal.Decimal     `gorm:"type:numeric(20,10);not null"`
	TakeProfit1     decimal.NullDecimal `gorm:"type:numeric(20,10)"`
	TakeProfit2     decimal.NullDecimal `gorm:"type:numeric(20,10)"`
	TakeProfit3     decimal.NullDecimal `gorm:"type:numeric(20,10)"`
	Title           string              `gorm:"size:255"`
	Analysis        string              `gorm:"type:text"`
	ConfidenceLevel string              `gorm:"size:16"`
	Status          string              `gorm:"size:16;not null;index"`
	CreatedBy       string              `gorm:"size:64"`
	CreatedAt       time.Time           `gorm:"not null;index"`
	UpdatedAt       time.Time           `gorm:"not null"`
}

func (signalRow) TableName() string { return "signals" }

func toSignalRow(s *models.Signal) signalRow {
	return signalRow{
		ID:              s.ID,
		TradingPair:     s.TradingPair,
		SignalType:      string(s.SignalType),
		EntryPrice:      s.EntryPrice,
		StopLoss:        s.StopLoss,
		TakeProfit1:     s.TakeProfit1,
		TakeProfit2:     s.TakeProfit2,
		TakeProfit3:     s.TakeProfit3,
		Title:           s.Title,
		Analysis:        s.Analysis,
		ConfidenceLevel: s.ConfidenceLevel,
		Status:          string(s.Status),
		CreatedBy:       s.CreatedBy,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func (r signalRow) model() models.Signal {
	return models.Signal{
		ID: r.ID,
		SignalState: models.SignalState{
			TradingPair:     r.TradingPair,
			SignalType:      models.SignalType(r.SignalType),
			EntryPrice:      r.EntryPrice,
			StopLoss:        r.StopLoss,
			TakeProfit1:     r.TakeProfit1,
			TakeProfit2:     r.TakeProfit2,
			TakeProfit3:     r.TakeProfit3,
			Title:           r.Title,
			Analysis:        r.Analysis,
			ConfidenceLevel: r.ConfidenceLevel,
			Status:          models.SignalStatus(r.Status),
		},
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// revisionRow keeps snapshot and changes as jsonb; exactly one is set.
// Seq is drawn from a database sequence inside the signal's row lock, so it
// follows commit order regardless of which instance generated ID.
type revisionRow struct {
	ID           int64     `gorm:"primaryKey;autoIncrement:false"`
	Seq          int64     `gorm:"type:bigserial;autoIncrement;not null;uniqueIndex:uq_revisions_seq"`
	SignalID     string    `gorm:"type:uuid;not null;index:idx_revisions_signal"`
	RevisionType string    `gorm:"size:16;not null"`
	Snapshot     *string   `gorm:"type:jsonb"`
	Changes      *string   `gorm:"type:jsonb"`
	CreatedBy    string    `gorm:"size:64"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (revisionRow) TableName() string { return "signal_revisions" }

func toRevisionRow(r models.SignalRevision) (revisionRow, error) {
	row := revisionRow{
		ID:           r.ID,
		SignalID:     r.SignalID,
		RevisionType: string(r.RevisionType),
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
	}
	if r.Snapshot != nil {
		b, err := json.Marshal(r.Snapshot)
		if err != nil {
			return row, fmt.Errorf("encode snapshot: %w", err)
		}
		s := string(b)
		row.Snapshot = &s
	}
	if r.Changes != nil {
		b, err := json.Marshal(r.Changes)
		if err != nil {
			return row, fmt.Errorf("encode changes: %w", err)
		}
		s := string(b)
		row.Changes = &s
	}
	return row, nil
}

func (r revisionRow) model() (models.SignalRevision, error) {
	rev := models.SignalRevision{
		ID:           r.ID,
		SignalID:     r.SignalID,
		RevisionType: models.RevisionType(r.RevisionType),
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt.UTC(),
	}
	if r.Snapshot != nil {
		var st models.SignalState
		if err := json.Unmarshal([]byte(*r.Snapshot), &st); err != nil {
			return rev, fmt.Errorf("decode snapshot of revision %d: %w", r.ID, err)
		}
		rev.Snapshot = &st
	}
	if r.Changes != nil {
		var ch models.SignalChanges
		if err := json.Unmarshal([]byte(*r.Changes), &ch); err != nil {
			return rev, fmt.Errorf("decode changes of revision %d: %w", r.ID, err)
		}
		rev.Changes = &ch
	}
	return rev, nil
}

type pricingRow struct {
	ID          string          `gorm:"primaryKey;type:uuid"`
	PricingType string          `gorm:"size:16;not null;uniqueIndex"`
	Price       decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	Currency    string          `gorm:"size:8;not null"`
	Description string          `gorm:"type:text"`
	IsActive    bool            `gorm:"not null"`
	UpdatedAt   time.Time       `gorm:"not null"`
}

func (pricingRow) TableName() string { return "pricing_plans" }

func toPricingRow(p *models.PricingPlan) pricingRow {
	return pricingRow{
		ID:          p.ID,
		PricingType: string(p.PricingType),
		Price:       p.Price,
		Currency:    p.Currency,
		Description: p.Description,
		IsActive:    p.IsActive,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (r pricingRow) model() models.PricingPlan {
	return models.PricingPlan{
		ID:          r.ID,
		PricingType: models.PlanType(r.PricingType),
		Price:       r.Price,
		Currency:    r.Currency,
		Description: r.Description,
		IsActive:    r.IsActive,
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type subscriptionRow struct {
	ID               string          `gorm:"primaryKey;type:uuid"`
	UserID           string          `gorm:"size:64;not null;index"`
	PricingID        string          `gorm:"type:uuid;not null"`
	SubscriptionType string          `gorm:"size:16;not null"`
	Status           string          `gorm:"size:16;not null;index"`
	PaymentStatus    string          `gorm:"size:16;not null"`
	PaymentReference string          `gorm:"size:128"`
	AmountPaid       decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	Currency         string          `gorm:"size:8;not null"`
	StartDate        *time.Time
	EndDate          *time.Time
	PipsPurchased    int64     `gorm:"not null;default:0"`
	PipsUsed         int64     `gorm:"not null;default:0;check:chk_pips_quota,pips_used <= pips_purchased"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (subscriptionRow) TableName() string { return "subscriptions" }

func toSubscriptionRow(s *models.Subscription) subscriptionRow {
	return subscriptionRow{
		ID:               s.ID,
		UserID:           s.UserID,
		PricingID:        s.PricingID,
		SubscriptionType: string(s.SubscriptionType),
		Status:           string(s.Status),
		PaymentStatus:    string(s.PaymentStatus),
		PaymentReference: s.PaymentReference,
		AmountPaid:       s.AmountPaid,
		Currency:         s.Currency,
		StartDate:        s.StartDate,
		EndDate:          s.EndDate,
		PipsPurchased:    s.PipsPurchased,
		PipsUsed:         s.PipsUsed,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func (r subscriptionRow) model() models.Subscription {
	return models.Subscription{
		ID:               r.ID,
		UserID:           r.UserID,
		PricingID:        r.PricingID,
		SubscriptionType: models.PlanType(r.SubscriptionType),
		Status:           models.SubscriptionStatus(r.Status),
		PaymentStatus:    models.PaymentStatus(r.PaymentStatus),
		PaymentReference: r.PaymentReference,
		AmountPaid:       r.AmountPaid,
		Currency:         r.Currency,
		StartDate:        utcPtr(r.StartDate),
		EndDate:          utcPtr(r.EndDate),
		PipsPurchased:    r.PipsPurchased,
		PipsUsed:         r.PipsUsed,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type groupRow struct {
	ID                string    `gorm:"primaryKey;type:uuid"`
	GroupName         string    `gorm:"size:128;not null"`
	ExternalChannelID string    `gorm:"size:128"`
	GroupNumber       int       `gorm:"not null;uniqueIndex:uq_groups_month_number,priority:2"`
	MemberCount       int       `gorm:"not null;default:0;check:chk_group_capacity,member_count <= max_members"`
	MaxMembers        int       `gorm:"not null"`
	IsActive          bool      `gorm:"not null;index"`
	MonthKey          string    `gorm:"size:7;not null;uniqueIndex:uq_groups_month_number,priority:1"`
	CreatedAt         time.Time `gorm:"not null"`
}

func (groupRow) TableName() string { return "delivery_groups" }

func toGroupRow(g *models.DeliveryGroup) groupRow {
	return groupRow{
		ID:                g.ID,
		GroupName:         g.GroupName,
		ExternalChannelID: g.ExternalChannelID,
		GroupNumber:       g.GroupNumber,
		MemberCount:       g.MemberCount,
		MaxMembers:        g.MaxMembers,
		IsActive:          g.IsActive,
		MonthKey:          g.MonthKey,
		CreatedAt:         g.CreatedAt,
	}
}

func (r groupRow) model() models.DeliveryGroup {
	return models.DeliveryGroup{
		ID:                r.ID,
		GroupName:         r.GroupName,
		ExternalChannelID: r.ExternalChannelID,
		GroupNumber:       r.GroupNumber,
		MemberCount:       r.MemberCount,
		MaxMembers:        r.MaxMembers,
		IsActive:          r.IsActive,
		MonthKey:          r.MonthKey,
		CreatedAt:         r.CreatedAt.UTC(),
	}
}

// membershipRow is keyed by (user, month): a user sits in one group per month.
type membershipRow struct {
	UserID         string    `gorm:"primaryKey;size:64"`
	MonthKey       string    `gorm:"primaryKey;size:7"`
	GroupID        string    `gorm:"type:uuid;not null;index"`
	SubscriptionID string    `gorm:"type:uuid;not null"`
	JoinedAt       time.Time `gorm:"not null"`
}

func (membershipRow) TableName() string { return "group_memberships" }

type notificationRow struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	UserID    string    `gorm:"size:64;not null;index:idx_notifications_user,priority:1"`
	SignalID  string    `gorm:"type:uuid"`
	Kind      string    `gorm:"size:32;not null"`
	Title     string    `gorm:"size:255"`
	Message   string    `gorm:"type:text"`
	IsRead    bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null;index:idx_notifications_user,priority:2"`
}

func (notificationRow) TableName() string { return "notifications" }

func (r notificationRow) model() models.Notification {
	return models.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		SignalID:  r.SignalID,
		Kind:      models.NotificationKind(r.Kind),
		Title:     r.Title,
		Message:   r.Message,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
