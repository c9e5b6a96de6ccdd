package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/paeltech/savannaFx-sub000/internal/domain/errs"
	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	drepo "github.com/paeltech/savannaFx-sub000/internal/domain/repository"
	"github.com/paeltech/savannaFx-sub000/pkg/clock"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

// AllocatorConfig tunes group creation.
type AllocatorConfig struct {
	DefaultMaxMembers int
	GroupNamePrefix   string
	LockTTL           time.Duration
}

// GroupAllocator places active subscribers into capacity-bounded monthly groups.
type GroupAllocator struct {
	groups  drepo.GroupStore
	subs    drepo.SubscriptionStore
	gateway drepo.MessagingGateway
	locker  drepo.Locker
	metrics drepo.Metrics
	clock   clock.Clock
	logger  *logger.Logger
	events  eventSink
	cfg     AllocatorConfig

	// createMu keeps one process from provisioning two channels for the same
	// group_number; the store's unique index covers other processes.
	createMu sync.Mutex
}

// NewGroupAllocator creates a new GroupAllocator. locker may be nil.
func NewGroupAllocator(
	groups drepo.GroupStore,
	subs drepo.SubscriptionStore,
	gateway drepo.MessagingGateway,
	locker drepo.Locker,
	events drepo.EventPublisher,
	metrics drepo.Metrics,
	clk clock.Clock,
	lgr *logger.Logger,
	cfg AllocatorConfig,
) *GroupAllocator {
	if cfg.DefaultMaxMembers <= 0 {
		cfg.DefaultMaxMembers = 200
	}
	if cfg.GroupNamePrefix == "" {
		cfg.GroupNamePrefix = "Signals"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &GroupAllocator{
		groups:  groups,
		subs:    subs,
		gateway: gateway,
		locker:  locker,
		metrics: metrics,
		clock:   clk,
		logger:  lgr,
		events:  eventSink{pub: events, clock: clk, logger: lgr},
		cfg:     cfg,
	}
}

// CurrentMonthKey returns the UTC year-month of the injected clock.
func (a *GroupAllocator) CurrentMonthKey() string {
	return models.MonthKeyOf(a.clock.Now())
}

// Assignment is where one subscriber landed.
type Assignment struct {
	Group   models.DeliveryGroup
	Created bool
}

// Assign places one subscriber into monthKey. The conditional increment is
// tried at most twice; losing both races is a Conflict.
func (a *GroupAllocator) Assign(ctx context.Context, sub models.Subscription, monthKey string) (*Assignment, error) {
	membership := models.GroupMembership{
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		MonthKey:       monthKey,
	}

	for attempt := 0; attempt < 2; attempt++ {
		group, created, err := a.candidate(ctx, monthKey)
		if err != nil {
			a.metrics.RecordGroupAssignment("error")
			return nil, err
		}
		membership.GroupID = group.ID
		membership.JoinedAt = a.clock.Now()

		ok, err := a.groups.AddMember(ctx, group.ID, membership)
		if err != nil {
			a.metrics.RecordGroupAssignment("error")
			return nil, fmt.Errorf("add member %s to group #%d: %w", sub.UserID, group.GroupNumber, err)
		}
		if ok {
			group.MemberCount++
			a.metrics.RecordGroupAssignment("assigned")
			return &Assignment{Group: *group, Created: created}, nil
		}
		a.metrics.RecordGroupAssignment("race_lost")
		a.logger.Debug("group filled concurrently, retrying",
			logger.UserID(sub.UserID),
			logger.Int("group_number", group.GroupNumber),
			logger.Int("attempt", attempt+1))
	}

	a.metrics.RecordGroupAssignment("conflict")
	return nil, errs.Conflict("could not place user %s into a group for %s", sub.UserID, monthKey)
}

// candidate returns the lowest-numbered group with spare capacity, creating
// the next one when every group is full.
func (a *GroupAllocator) candidate(ctx context.Context, monthKey string) (*models.DeliveryGroup, bool, error) {
	if g, err := a.openGroup(ctx, monthKey); err != nil || g != nil {
		return g, false, err
	}

	a.createMu.Lock()
	defer a.createMu.Unlock()

	// another caller may have created one while we waited
	if g, err := a.openGroup(ctx, monthKey); err != nil || g != nil {
		return g, false, err
	}
	g, err := a.createGroup(ctx, monthKey)
	if err != nil {
		return nil, false, err
	}
	return g, true, nil
}

func (a *GroupAllocator) openGroup(ctx context.Context, monthKey string) (*models.DeliveryGroup, error) {
	groups, err := a.groups.ListGroups(ctx, monthKey)
	if err != nil {
		return nil, fmt.Errorf("list groups for %s: %w", monthKey, err)
	}
	for i := range groups {
		if groups[i].HasCapacity() {
			return &groups[i], nil
		}
	}
	return nil, nil
}

func (a *GroupAllocator) createGroup(ctx context.Context, monthKey string) (*models.DeliveryGroup, error) {
	groups, err := a.groups.ListGroups(ctx, monthKey)
	if err != nil {
		return nil, fmt.Errorf("list groups for %s: %w", monthKey, err)
	}
	next := 1
	for _, g := range groups {
		if g.GroupNumber >= next {
			next = g.GroupNumber + 1
		}
	}

	name := fmt.Sprintf("%s %s #%d", a.cfg.GroupNamePrefix, monthKey, next)
	channelID, err := a.gateway.ProvisionChannel(ctx, name)
	if err != nil {
		a.metrics.RecordError("group_provision")
		return nil, errs.External(err, "provision channel for group %q", name)
	}

	g := &models.DeliveryGroup{
		ID:                uuid.NewString(),
		GroupName:         name,
		ExternalChannelID: channelID,
		GroupNumber:       next,
		MaxMembers:        a.cfg.DefaultMaxMembers,
		IsActive:          true,
		MonthKey:          monthKey,
		CreatedAt:         a.clock.Now(),
	}
	if err := a.groups.CreateGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("create group #%d: %w", next, err)
	}
	a.logger.Info("delivery group created",
		logger.Month(monthKey),
		logger.Int("group_number", next),
		logger.String("channel_id", channelID))
	return g, nil
}

// Refresh reconciles the current month: retires older groups and assigns every
// active subscriber that has no group yet. A second run with nothing new to
// place writes nothing.
func (a *GroupAllocator) Refresh(ctx context.Context) (*models.RefreshSummary, error) {
	start := time.Now()
	month := a.CurrentMonthKey()
	summary := &models.RefreshSummary{MonthKey: month}

	if a.locker != nil {
		key := "allocator:refresh:" + month
		ok, err := a.locker.TryLock(ctx, key, a.cfg.LockTTL)
		if err != nil {
			a.logger.Warn("refresh lock unavailable, continuing unlocked", logger.Error(err))
		} else if !ok {
			return nil, errs.Conflict("group refresh for %s already running", month)
		} else {
			defer func() {
				if err := a.locker.Unlock(context.Background(), key); err != nil {
					a.logger.Warn("release refresh lock", logger.Error(err))
				}
			}()
		}
	}

	retired, err := a.groups.RetireGroups(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("retire groups: %w", err)
	}
	summary.GroupsRetired = retired

	pending, err := a.unassigned(ctx, month)
	if err != nil {
		return nil, err
	}

	var (
		errList     error
		externalErr bool
		touched     = make(map[string]struct{})
	)
	for i, sub := range pending {
		res, err := a.Assign(ctx, sub, month)
		if err != nil {
			errList = multierr.Append(errList, fmt.Errorf("user %s: %w", sub.UserID, err))
			if errors.Is(err, errs.ErrExternal) {
				// without a channel nobody else can be placed this run
				externalErr = true
				summary.Failed += len(pending) - i
				break
			}
			summary.Failed++
			continue
		}
		summary.Migrated++
		touched[res.Group.ID] = struct{}{}
		if res.Created {
			summary.GroupsCreated++
		}
	}
	summary.GroupsTouched = len(touched)

	a.metrics.RecordLatency("group_refresh", time.Since(start).Seconds())
	a.logger.Info("group refresh finished",
		logger.Month(month),
		logger.Int("migrated", summary.Migrated),
		logger.Int("groups_touched", summary.GroupsTouched),
		logger.Int("groups_created", summary.GroupsCreated),
		logger.Int64("groups_retired", summary.GroupsRetired),
		logger.Int("failed", summary.Failed))

	if summary.Mutated() {
		a.events.emit(ctx, models.EventGroupsRefreshed, month, summary)
	}

	if errList != nil {
		if externalErr {
			return summary, errs.External(errList, "group refresh for %s stopped, %d subscribers unassigned", month, summary.Failed)
		}
		return summary, errs.PartialFailure(errList, "group refresh for %s: %d subscribers unassigned", month, summary.Failed)
	}
	return summary, nil
}

// unassigned lists active subscribers without a membership this month, one per user.
func (a *GroupAllocator) unassigned(ctx context.Context, month string) ([]models.Subscription, error) {
	active, err := a.subs.ListActiveSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	assigned, err := a.groups.AssignedUsers(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("list assigned users: %w", err)
	}
	out := make([]models.Subscription, 0, len(active))
	for _, s := range active {
		if assigned[s.UserID] {
			continue
		}
		assigned[s.UserID] = true
		out = append(out, s)
	}
	return out, nil
}

// ListGroups returns the groups of monthKey, or of the current month when empty.
func (a *GroupAllocator) ListGroups(ctx context.Context, monthKey string) ([]models.DeliveryGroup, error) {
	if monthKey == "" {
		monthKey = a.CurrentMonthKey()
	}
	return a.groups.ListGroups(ctx, monthKey)
}
