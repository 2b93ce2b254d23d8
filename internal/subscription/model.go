package subscription

import (
	"time"

	"gympro/internal/plan"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusTrialing  Status = "trialing"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

type HistoryAction string

const (
	ActionCreated                HistoryAction = "created"
	ActionUpgraded               HistoryAction = "upgraded"
	ActionDowngraded             HistoryAction = "downgraded"
	ActionRenewed                HistoryAction = "renewed"
	ActionCancelled              HistoryAction = "cancelled"
	ActionExpired                HistoryAction = "expired"
	ActionReactivated            HistoryAction = "reactivated"
	ActionDowngradeScheduled     HistoryAction = "downgrade_scheduled"
	ActionSwitchScheduled        HistoryAction = "switch_scheduled"
	ActionPendingChangeCancelled HistoryAction = "pending_change_cancelled"
)

// Subscription is a member's current commitment. At most one pending
// change exists at a time; the rollover worker applies it and clears the
// pending fields.
type Subscription struct {
	ID                         int                `db:"id" json:"id"`
	UserID                     int                `db:"user_id" json:"user_id"`
	BillingEmail               string             `db:"billing_email" json:"billing_email,omitempty"`
	PlanID                     string             `db:"plan_id" json:"plan_id"`
	BillingCycle               plan.BillingCycle  `db:"billing_cycle" json:"billing_cycle"`
	Status                     Status             `db:"status" json:"status"`
	StartDate                  time.Time          `db:"start_date" json:"start_date"`
	EndDate                    *time.Time         `db:"end_date" json:"end_date,omitempty"`
	CurrentPeriodStart         time.Time          `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd           *time.Time         `db:"current_period_end" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd          bool               `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	CancelledAt                *time.Time         `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason         *string            `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	PendingPlanID              *string            `db:"pending_plan_id" json:"pending_plan_id,omitempty"`
	PendingBillingCycle        *plan.BillingCycle `db:"pending_billing_cycle" json:"pending_billing_cycle,omitempty"`
	PendingChangeEffectiveDate *time.Time         `db:"pending_change_effective_date" json:"pending_change_effective_date,omitempty"`
	TrialEndsAt                *time.Time         `db:"trial_ends_at" json:"trial_ends_at,omitempty"`
	HasUsedTrial               bool               `db:"has_used_trial" json:"has_used_trial"`
	CreatedAt                  time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt                  time.Time          `db:"updated_at" json:"updated_at"`

	// Plan is the resolved catalog entry for PlanID, loaded by the
	// service. Nil when the catalog no longer carries the plan.
	Plan *plan.Plan `db:"-" json:"plan,omitempty"`
}

// Cycle returns the subscription's billing cycle, defaulting to monthly
// for legacy rows that predate cycle tracking.
func (s *Subscription) Cycle() plan.BillingCycle {
	if s.BillingCycle == "" {
		return plan.CycleMonthly
	}
	return s.BillingCycle
}

// lifetimeHorizon is how far out an end date must sit for a oneTime
// purchase to count as lifetime rather than a fixed term.
const lifetimeHorizon = 50 * 365 * 24 * time.Hour

// IsLifetime reports whether the subscription is a lifetime purchase: a
// oneTime cycle with no end date, or one so far out it should never be
// rendered as a countdown.
func (s *Subscription) IsLifetime(now time.Time) bool {
	if s.Cycle() != plan.CycleOneTime {
		return false
	}
	if s.EndDate == nil {
		return true
	}
	return s.EndDate.After(now.Add(lifetimeHorizon))
}

// HasPendingChange reports whether a plan change is scheduled for the next
// period rollover.
func (s *Subscription) HasPendingChange() bool {
	return s.PendingPlanID != nil
}

// History is an append-only record of every subscription mutation.
type History struct {
	ID             int           `db:"id" json:"id"`
	UserID         int           `db:"user_id" json:"user_id"`
	SubscriptionID int           `db:"subscription_id" json:"subscription_id"`
	PlanID         string        `db:"plan_id" json:"plan_id"`
	Action         HistoryAction `db:"action" json:"action"`
	Status         Status        `db:"status" json:"status"`
	AmountCents    *int64        `db:"amount_cents" json:"amount_cents,omitempty"`
	Currency       *string       `db:"currency" json:"currency,omitempty"`
	Notes          string        `db:"notes" json:"notes"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}
