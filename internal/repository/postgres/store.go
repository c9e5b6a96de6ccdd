package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	"github.com/paeltech/savannaFx-sub000/internal/domain/repository"
)

// Store implements every domain store on one Postgres database.
type Store struct {
	db *gorm.DB
}

var (
	_ repository.SignalStore       = (*Store)(nil)
	_ repository.PricingStore      = (*Store)(nil)
	_ repository.SubscriptionStore = (*Store)(nil)
	_ repository.GroupStore        = (*Store)(nil)
	_ repository.NotificationStore = (*Store)(nil)
)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Ping is used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate maps driver errors onto domain kinds.
func translate(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	var de *errs.Error
	if errors.As(err, &de) {
		return err
	}
	what := fmt.Sprintf(format, a...)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errs.NotFound("%s not found", what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errs.Conflict("%s already exists", what)
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return errs.Conflict("%s violates a constraint", what)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// --- signals ---

func (s *Store) CreateSignal(ctx context.Context, sig *models.Signal, initial *models.SignalRevision) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := toSignalRow(sig)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if initial == nil {
			return nil
		}
		rev, err := toRevisionRow(*initial)
		if err != nil {
			return err
		}
		return tx.Create(&rev).Error
	})
	return translate(err, "signal %s", sig.ID)
}

func (s *Store) GetSignal(ctx context.Context, id string) (*models.Signal, error) {
	var row signalRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err, "signal %s", id)
	}
	sig := row.model()
	return &sig, nil
}

func (s *Store) ListSignals(ctx context.Context, f models.SignalFilter) ([]models.Signal, error) {
	q := s.db.WithContext(ctx).Model(&signalRow{})
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if pair := strings.TrimSpace(f.TradingPair); pair != "" {
		q = q.Where("UPPER(trading_pair) = UPPER(?)", pair)
	}
	var rows []signalRow
	if err := q.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	out := make([]models.Signal, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// MutateSignal locks the signal row for the whole transaction, so concurrent
// updates append their revisions in commit order.
func (s *Store) MutateSignal(ctx context.Context, id string, fn repository.SignalMutation) (*models.Signal, error) {
	var result models.Signal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row signalRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", id).Error; err != nil {
			return err
		}
		var initials int64
		if err := tx.Model(&revisionRow{}).
			Where("signal_id = ? AND revision_type = ?", id, string(models.RevisionInitial)).
			Count(&initials).Error; err != nil {
			return err
		}

		cur := row.model()
		next, revs, err := fn(cur, initials > 0)
		if err != nil {
			return err
		}
		if next == nil || len(revs) == 0 {
			result = cur
			return nil
		}

		for _, r := range revs {
			rr, err := toRevisionRow(r)
			if err != nil {
				return err
			}
			if err := tx.Create(&rr).Error; err != nil {
				return err
			}
		}
		updated := toSignalRow(next)
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		result = *next
		return nil
	})
	if err != nil {
		return nil, translate(err, "signal %s", id)
	}
	return &result, nil
}

// ListRevisions orders the initial snapshot first, then by commit sequence; a
// synthesized initial is committed after the updates that predate it.
func (s *Store) ListRevisions(ctx context.Context, signalID string) ([]models.SignalRevision, error) {
	var exists int64
	if err := s.db.WithContext(ctx).Model(&signalRow{}).Where("id = ?", signalID).Count(&exists).Error; err != nil {
		return nil, fmt.Errorf("lookup signal %s: %w", signalID, err)
	}
	if exists == 0 {
		return nil, errs.NotFound("signal %s not found", signalID)
	}

	var rows []revisionRow
	if err := s.db.WithContext(ctx).
		Where("signal_id = ?", signalID).
		Order("(revision_type <> 'initial'), seq").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list revisions %s: %w", signalID, err)
	}
	out := make([]models.SignalRevision, 0, len(rows))
	for _, r := range rows {
		rev, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, nil
}

// --- pricing ---

func (s *Store) GetPlan(ctx context.Context, id string) (*models.PricingPlan, error) {
	var row pricingRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err, "pricing plan %s", id)
	}
	p := row.model()
	return &p, nil
}

func (s *Store) GetPlanByType(ctx context.Context, t models.PlanType) (*models.PricingPlan, error) {
	var row pricingRow
	if err := s.db.WithContext(ctx).First(&row, "pricing_type = ?", string(t)).Error; err != nil {
		return nil, translate(err, "pricing plan %s", t)
	}
	p := row.model()
	return &p, nil
}

func (s *Store) ListPlans(ctx context.Context) ([]models.PricingPlan, error) {
	var rows []pricingRow
	if err := s.db.WithContext(ctx).Order("pricing_type").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list pricing plans: %w", err)
	}
	out := make([]models.PricingPlan, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

func (s *Store) UpsertPlan(ctx context.Context, p *models.PricingPlan) error {
	row := toPricingRow(p)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pricing_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "currency", "description", "is_active", "updated_at"}),
	}).Create(&row).Error
	return translate(err, "pricing plan %s", p.PricingType)
}

// --- subscriptions ---

func (s *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	row := toSubscriptionRow(sub)
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errs.Conflict("user %s already has an open subscription", sub.UserID)
	}
	return translate(err, "subscription %s", sub.ID)
}

func (s *Store) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var row subscriptionRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err, "subscription %s", id)
	}
	sub := row.model()
	return &sub, nil
}

func (s *Store) GetOpenSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var row subscriptionRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []string{string(models.SubscriptionPending), string(models.SubscriptionActive)}).
		First(&row).Error
	if err != nil {
		return nil, translate(err, "open subscription for user %s", userID)
	}
	sub := row.model()
	return &sub, nil
}

func (s *Store) ListActiveSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	return s.listSubscriptions(ctx, s.db.WithContext(ctx).Where("status = ?", string(models.SubscriptionActive)))
}

func (s *Store) ListExpiredBefore(ctx context.Context, t time.Time) ([]models.Subscription, error) {
	return s.listSubscriptions(ctx, s.db.WithContext(ctx).
		Where("status = ? AND end_date IS NOT NULL AND end_date < ?", string(models.SubscriptionActive), t))
}

func (s *Store) listSubscriptions(_ context.Context, q *gorm.DB) ([]models.Subscription, error) {
	var rows []subscriptionRow
	if err := q.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	out := make([]models.Subscription, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// MutateSubscription holds the row lock while fn decides, so pip consumption
// and transitions are check-and-set.
func (s *Store) MutateSubscription(ctx context.Context, id string, fn func(models.Subscription) (*models.Subscription, error)) (*models.Subscription, error) {
	var result models.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row subscriptionRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", id).Error; err != nil {
			return err
		}
		cur := row.model()
		next, err := fn(cur)
		if err != nil {
			return err
		}
		if next == nil {
			result = cur
			return nil
		}
		updated := toSubscriptionRow(next)
		if err := tx.Save(&updated).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errs.Conflict("user %s already has an open subscription", next.UserID)
			}
			return err
		}
		result = *next
		return nil
	})
	if err != nil {
		return nil, translate(err, "subscription %s", id)
	}
	return &result, nil
}

// --- groups ---

func (s *Store) RetireGroups(ctx context.Context, monthKey string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&groupRow{}).
		Where("is_active AND month_key <> ?", monthKey).
		Update("is_active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("retire groups: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) ListGroups(ctx context.Context, monthKey string) ([]models.DeliveryGroup, error) {
	var rows []groupRow
	if err := s.db.WithContext(ctx).Where("month_key = ?", monthKey).Order("group_number").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	out := make([]models.DeliveryGroup, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

func (s *Store) AssignedUsers(ctx context.Context, monthKey string) (map[string]bool, error) {
	var users []string
	if err := s.db.WithContext(ctx).Model(&membershipRow{}).Where("month_key = ?", monthKey).Pluck("user_id", &users).Error; err != nil {
		return nil, fmt.Errorf("assigned users: %w", err)
	}
	out := make(map[string]bool, len(users))
	for _, u := range users {
		out[u] = true
	}
	return out, nil
}

func (s *Store) CreateGroup(ctx context.Context, g *models.DeliveryGroup) error {
	row := toGroupRow(g)
	err := s.db.WithContext(ctx).Create(&row).Error
	return translate(err, "group #%d for %s", g.GroupNumber, g.MonthKey)
}

// AddMember is a single conditional UPDATE; zero rows affected means the
// group filled up first.
func (s *Store) AddMember(ctx context.Context, groupID string, m models.GroupMembership) (bool, error) {
	added := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&groupRow{}).
			Where("id = ? AND is_active AND member_count < max_members", groupID).
			UpdateColumn("member_count", gorm.Expr("member_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&groupRow{}).Where("id = ?", groupID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return errs.NotFound("group %s not found", groupID)
			}
			return nil
		}
		row := membershipRow{
			UserID:         m.UserID,
			MonthKey:       m.MonthKey,
			GroupID:        groupID,
			SubscriptionID: m.SubscriptionID,
			JoinedAt:       m.JoinedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errs.Conflict("user %s already assigned for %s", m.UserID, m.MonthKey)
			}
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		return false, translate(err, "membership of %s", m.UserID)
	}
	return added, nil
}

// --- notifications ---

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	row := notificationRow{
		ID:        n.ID,
		UserID:    n.UserID,
		SignalID:  n.SignalID,
		Kind:      string(n.Kind),
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
	return translate(s.db.WithContext(ctx).Create(&row).Error, "notification %s", n.ID)
}

func (s *Store) ListNotifications(ctx context.Context, userID string, f models.InboxFilter) ([]models.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if f.UnreadOnly {
		q = q.Where("NOT is_read")
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []notificationRow
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]models.Notification, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, userID, id string) error {
	res := s.db.WithContext(ctx).Model(&notificationRow{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("mark notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("notification %s not found", id)
	}
	return nil
}
