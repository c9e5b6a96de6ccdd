// Package memory is an in-process store with the same atomicity guarantees as
// the Postgres implementation. It backs tests and the "memory" storage driver.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	"github.com/paeltech/savannaFx-sub000/internal/domain/repository"
)

type Store struct {
	mu sync.Mutex

	signals   map[string]models.Signal
	signalSeq []string
	revisions map[string][]models.SignalRevision

	plans         map[string]models.PricingPlan
	subscriptions map[string]models.Subscription

	groups      map[string]models.DeliveryGroup
	memberships map[string]models.GroupMembership // key: month|user

	notifications []models.Notification
}

func New() *Store {
	return &Store{
		signals:       make(map[string]models.Signal),
		revisions:     make(map[string][]models.SignalRevision),
		plans:         make(map[string]models.PricingPlan),
		subscriptions: make(map[string]models.Subscription),
		groups:        make(map[string]models.DeliveryGroup),
		memberships:   make(map[string]models.GroupMembership),
	}
}

var (
	_ repository.SignalStore       = (*Store)(nil)
	_ repository.PricingStore      = (*Store)(nil)
	_ repository.SubscriptionStore = (*Store)(nil)
	_ repository.GroupStore        = (*Store)(nil)
	_ repository.NotificationStore = (*Store)(nil)
)

// --- signals ---

func (s *Store) CreateSignal(_ context.Context, sig *models.Signal, initial *models.SignalRevision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.signals[sig.ID]; ok {
		return errs.Conflict("signal %s already exists", sig.ID)
	}
	s.signals[sig.ID] = *sig
	s.signalSeq = append(s.signalSeq, sig.ID)
	if initial != nil {
		s.revisions[sig.ID] = append(s.revisions[sig.ID], *initial)
	}
	return nil
}

func (s *Store) GetSignal(_ context.Context, id string) (*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok {
		return nil, errs.NotFound("signal %s not found", id)
	}
	return &sig, nil
}

func (s *Store) ListSignals(_ context.Context, f models.SignalFilter) ([]models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Signal, 0, len(s.signalSeq))
	// newest first
	for i := len(s.signalSeq) - 1; i >= 0; i-- {
		sig := s.signals[s.signalSeq[i]]
		if f.Status != "" && sig.Status != f.Status {
			continue
		}
		if f.TradingPair != "" && !strings.EqualFold(sig.TradingPair, f.TradingPair) {
			continue
		}
		out = append(out, sig)
	}
	return paginate(out, f.Offset, f.Limit), nil
}

func (s *Store) MutateSignal(_ context.Context, id string, fn repository.SignalMutation) (*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.signals[id]
	if !ok {
		return nil, errs.NotFound("signal %s not found", id)
	}
	hasInitial := false
	for _, r := range s.revisions[id] {
		if r.RevisionType == models.RevisionInitial {
			hasInitial = true
			break
		}
	}
	next, revs, err := fn(cur, hasInitial)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 || next == nil {
		return &cur, nil
	}
	// a synthesized initial goes to the front so the ledger stays initial-first
	for _, r := range revs {
		if r.RevisionType == models.RevisionInitial {
			s.revisions[id] = append([]models.SignalRevision{r}, s.revisions[id]...)
		} else {
			s.revisions[id] = append(s.revisions[id], r)
		}
	}
	s.signals[id] = *next
	return next, nil
}

func (s *Store) ListRevisions(_ context.Context, signalID string) ([]models.SignalRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.signals[signalID]; !ok {
		return nil, errs.NotFound("signal %s not found", signalID)
	}
	revs := s.revisions[signalID]
	out := make([]models.SignalRevision, len(revs))
	copy(out, revs)
	return out, nil
}

// DropRevisions removes a signal's ledger, simulating rows written before
// revisions were recorded.
func (s *Store) DropRevisions(signalID string) {
	s.mu.Lock()
	delete(s.revisions, signalID)
	s.mu.Unlock()
}

// --- pricing ---

func (s *Store) GetPlan(_ context.Context, id string) (*models.PricingPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, errs.NotFound("pricing plan %s not found", id)
	}
	return &p, nil
}

func (s *Store) GetPlanByType(_ context.Context, t models.PlanType) (*models.PricingPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plans {
		if p.PricingType == t {
			return &p, nil
		}
	}
	return nil, errs.NotFound("pricing plan %s not found", t)
}

func (s *Store) ListPlans(_ context.Context) ([]models.PricingPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PricingPlan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PricingType < out[j].PricingType })
	return out, nil
}

func (s *Store) UpsertPlan(_ context.Context, p *models.PricingPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.plans {
		if existing.PricingType == p.PricingType && id != p.ID {
			p.ID = id
		}
	}
	s.plans[p.ID] = *p
	return nil
}

// --- subscriptions ---

func (s *Store) CreateSubscription(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subscriptions {
		if existing.UserID == sub.UserID && existing.Status.IsOpen() {
			return errs.Conflict("user %s already has an open subscription", sub.UserID)
		}
	}
	s.subscriptions[sub.ID] = *sub
	return nil
}

func (s *Store) GetSubscription(_ context.Context, id string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, errs.NotFound("subscription %s not found", id)
	}
	return &sub, nil
}

func (s *Store) GetOpenSubscription(_ context.Context, userID string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscriptions {
		if sub.UserID == userID && sub.Status.IsOpen() {
			return &sub, nil
		}
	}
	return nil, errs.NotFound("no open subscription for user %s", userID)
}

func (s *Store) ListActiveSubscriptions(_ context.Context) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, sub := range s.subscriptions {
		if sub.Status == models.SubscriptionActive {
			out = append(out, sub)
		}
	}
	sortSubscriptions(out)
	return out, nil
}

func (s *Store) ListExpiredBefore(_ context.Context, t time.Time) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, sub := range s.subscriptions {
		if sub.Status == models.SubscriptionActive && sub.EndDate != nil && sub.EndDate.Before(t) {
			out = append(out, sub)
		}
	}
	sortSubscriptions(out)
	return out, nil
}

func (s *Store) MutateSubscription(_ context.Context, id string, fn func(models.Subscription) (*models.Subscription, error)) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.subscriptions[id]
	if !ok {
		return nil, errs.NotFound("subscription %s not found", id)
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return &cur, nil
	}
	if next.Status.IsOpen() {
		for otherID, other := range s.subscriptions {
			if otherID != id && other.UserID == next.UserID && other.Status.IsOpen() {
				return nil, errs.Conflict("user %s already has an open subscription", next.UserID)
			}
		}
	}
	s.subscriptions[id] = *next
	return next, nil
}

func sortSubscriptions(subs []models.Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].ID < subs[j].ID
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
}

// --- groups ---

func (s *Store) RetireGroups(_ context.Context, monthKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, g := range s.groups {
		if g.IsActive && g.MonthKey != monthKey {
			g.IsActive = false
			s.groups[id] = g
			n++
		}
	}
	return n, nil
}

func (s *Store) ListGroups(_ context.Context, monthKey string) ([]models.DeliveryGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DeliveryGroup
	for _, g := range s.groups {
		if g.MonthKey == monthKey {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupNumber < out[j].GroupNumber })
	return out, nil
}

func (s *Store) AssignedUsers(_ context.Context, monthKey string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for _, m := range s.memberships {
		if m.MonthKey == monthKey {
			out[m.UserID] = true
		}
	}
	return out, nil
}

func (s *Store) CreateGroup(_ context.Context, g *models.DeliveryGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.groups {
		if existing.MonthKey == g.MonthKey && existing.GroupNumber == g.GroupNumber {
			return errs.Conflict("group #%d already exists for %s", g.GroupNumber, g.MonthKey)
		}
	}
	s.groups[g.ID] = *g
	return nil
}

func (s *Store) AddMember(_ context.Context, groupID string, m models.GroupMembership) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return false, errs.NotFound("group %s not found", groupID)
	}
	if !g.IsActive || !g.HasCapacity() {
		return false, nil
	}
	key := m.MonthKey + "|" + m.UserID
	if _, dup := s.memberships[key]; dup {
		return false, errs.Conflict("user %s already assigned for %s", m.UserID, m.MonthKey)
	}
	g.MemberCount++
	s.groups[groupID] = g
	s.memberships[key] = m
	return true, nil
}

// --- notifications ---

func (s *Store) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, f models.InboxFilter) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.UserID != userID || (f.UnreadOnly && n.IsRead) {
			continue
		}
		if !f.Since.IsZero() && n.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, n)
	}
	return paginate(out, 0, f.Limit), nil
}

func (s *Store) MarkRead(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id && s.notifications[i].UserID == userID {
			s.notifications[i].IsRead = true
			return nil
		}
	}
	return errs.NotFound("notification %s not found", id)
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
