package subscription

import (
	"context"
	"time"

	"gympro/internal/plan"
)

type Store interface {
	GetCurrentByUser(ctx context.Context, userID int) (*Subscription, error)
	HasUsedTrial(ctx context.Context, userID int) (bool, error)
	Create(ctx context.Context, p CreateParams) (*Subscription, error)
	DeactivateCurrent(ctx context.Context, userID int, endedAt time.Time) error
	SetPendingChange(ctx context.Context, subID int, planID string, cycle plan.BillingCycle, effective time.Time) error
	ClearPendingChange(ctx context.Context, subID int) error
	MarkCancelAtPeriodEnd(ctx context.Context, subID int, reason string, at time.Time) error
	ClearCancelAtPeriodEnd(ctx context.Context, subID int) error
	ListDuePendingChanges(ctx context.Context, now time.Time) ([]*Subscription, error)
	ApplyPendingChange(ctx context.Context, subID int, planID string, cycle plan.BillingCycle, periodStart time.Time, periodEnd time.Time) error
	ListDueCancellations(ctx context.Context, now time.Time) ([]*Subscription, error)
	MarkExpired(ctx context.Context, subID int, at time.Time) error
	ListRenewalCandidates(ctx context.Context, cutoff time.Time) ([]*Subscription, error)
	InsertHistory(ctx context.Context, h *History) error
	ListHistoryByUser(ctx context.Context, userID int, limit int) ([]History, error)
}
