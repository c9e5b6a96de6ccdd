package models

import "time"

// MonthKeyLayout formats the canonical year-month partition key.
const MonthKeyLayout = "2006-01"

// MonthKeyOf returns the UTC year-month key for t, e.g. "2026-10".
func MonthKeyOf(t time.Time) string { return t.UTC().Format(MonthKeyLayout) }

// DeliveryGroup is a capacity-bounded external channel for one month.
type DeliveryGroup struct {
	ID                string    `json:"id"`
	GroupName         string    `json:"group_name"`
	ExternalChannelID string    `json:"external_channel_id"`
	GroupNumber       int       `json:"group_number"`
	MemberCount       int       `json:"member_count"`
	MaxMembers        int       `json:"max_members"`
	IsActive          bool      `json:"is_active"`
	MonthKey          string    `json:"month_key"`
	CreatedAt         time.Time `json:"created_at"`
}

func (g *DeliveryGroup) HasCapacity() bool { return g.IsActive && g.MemberCount < g.MaxMembers }

// GroupMembership records that a user was placed in a group for a month.
type GroupMembership struct {
	GroupID        string    `json:"group_id"`
	UserID         string    `json:"user_id"`
	SubscriptionID string    `json:"subscription_id"`
	MonthKey       string    `json:"month_key"`
	JoinedAt       time.Time `json:"joined_at"`
}

// RefreshSummary reports one allocator run.
type RefreshSummary struct {
	MonthKey      string `json:"month_key"`
	Migrated      int    `json:"migrated"`
	GroupsTouched int    `json:"groups_touched"`
	GroupsCreated int    `json:"groups_created"`
	GroupsRetired int64  `json:"groups_retired"`
	Failed        int    `json:"failed"`
}

// Mutated reports whether the run changed anything.
func (s RefreshSummary) Mutated() bool {
	return s.Migrated > 0 || s.GroupsCreated > 0 || s.GroupsRetired > 0
}
