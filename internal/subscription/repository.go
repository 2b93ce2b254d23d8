package subscription

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"gympro/internal/plan"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const subscriptionColumns = `
	id, user_id, billing_email, plan_id, billing_cycle, status, start_date, end_date,
	current_period_start, current_period_end, cancel_at_period_end,
	cancelled_at, cancellation_reason, pending_plan_id, pending_billing_cycle,
	pending_change_effective_date, trial_ends_at, has_used_trial, created_at, updated_at`

// GetCurrentByUser returns the user's active or trialing subscription, or
// nil when they have none.
func (r *Repository) GetCurrentByUser(ctx context.Context, userID int) (*Subscription, error) {
	sub := &Subscription{}
	err := r.db.GetContext(ctx, sub, `
		SELECT`+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1
		  AND status IN ('active', 'trialing')
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

// HasUsedTrial reports whether any of the user's subscriptions, past or
// present, consumed a trial. Trials are granted once per user.
func (r *Repository) HasUsedTrial(ctx context.Context, userID int) (bool, error) {
	var used bool
	err := r.db.GetContext(ctx, &used, `
		SELECT EXISTS (
			SELECT 1 FROM subscriptions
			WHERE user_id = $1
			  AND has_used_trial = TRUE
		)
	`, userID)
	return used, err
}

type CreateParams struct {
	UserID           int
	BillingEmail     string
	PlanID           string
	BillingCycle     plan.BillingCycle
	Status           Status
	StartDate        time.Time
	EndDate          *time.Time
	CurrentPeriodEnd *time.Time
	TrialEndsAt      *time.Time
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (*Subscription, error) {
	sub := &Subscription{}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO subscriptions (user_id, billing_email, plan_id, billing_cycle, status, start_date, end_date,
		                           current_period_start, current_period_end, trial_ends_at, has_used_trial)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $6, $8, $9, $9 IS NOT NULL)
		RETURNING`+subscriptionColumns+`
	`, p.UserID, p.BillingEmail, p.PlanID, p.BillingCycle, p.Status, p.StartDate, p.EndDate, p.CurrentPeriodEnd, p.TrialEndsAt).StructScan(sub)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// DeactivateCurrent cancels every active or trialing subscription the user
// holds, in preparation for an immediate upgrade.
func (r *Repository) DeactivateCurrent(ctx context.Context, userID int, endedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = 'cancelled',
		    end_date = $2,
		    updated_at = NOW()
		WHERE user_id = $1
		  AND status IN ('active', 'trialing')
	`, userID, endedAt)
	return err
}

func (r *Repository) SetPendingChange(ctx context.Context, subID int, planID string, cycle plan.BillingCycle, effective time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET pending_plan_id = $2,
		    pending_billing_cycle = $3,
		    pending_change_effective_date = $4,
		    updated_at = NOW()
		WHERE id = $1
	`, subID, planID, cycle, effective)
	return err
}

func (r *Repository) ClearPendingChange(ctx context.Context, subID int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET pending_plan_id = NULL,
		    pending_billing_cycle = NULL,
		    pending_change_effective_date = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, subID)
	return err
}

// MarkCancelAtPeriodEnd flags the subscription for cancellation at the end
// of the current period. Any scheduled plan change is dropped: the
// cancellation supersedes it.
func (r *Repository) MarkCancelAtPeriodEnd(ctx context.Context, subID int, reason string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET cancel_at_period_end = TRUE,
		    cancelled_at = $3,
		    cancellation_reason = $2,
		    pending_plan_id = NULL,
		    pending_billing_cycle = NULL,
		    pending_change_effective_date = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, subID, reason, at)
	return err
}

func (r *Repository) ClearCancelAtPeriodEnd(ctx context.Context, subID int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET cancel_at_period_end = FALSE,
		    cancelled_at = NULL,
		    cancellation_reason = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, subID)
	return err
}

// ListDuePendingChanges returns subscriptions whose scheduled change
// should have taken effect by now.
func (r *Repository) ListDuePendingChanges(ctx context.Context, now time.Time) ([]*Subscription, error) {
	subs := []*Subscription{}
	err := r.db.SelectContext(ctx, &subs, `
		SELECT`+subscriptionColumns+`
		FROM subscriptions
		WHERE status IN ('active', 'trialing')
		  AND pending_plan_id IS NOT NULL
		  AND pending_change_effective_date <= $1
	`, now)
	return subs, err
}

// ApplyPendingChange swaps in the scheduled plan and cycle, starts the new
// period, and clears the pending fields.
func (r *Repository) ApplyPendingChange(ctx context.Context, subID int, planID string, cycle plan.BillingCycle, periodStart time.Time, periodEnd time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET plan_id = $2,
		    billing_cycle = $3,
		    current_period_start = $4,
		    current_period_end = $5,
		    pending_plan_id = NULL,
		    pending_billing_cycle = NULL,
		    pending_change_effective_date = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, subID, planID, cycle, periodStart, periodEnd)
	return err
}

// ListDueCancellations returns subscriptions flagged cancel-at-period-end
// whose period has ended.
func (r *Repository) ListDueCancellations(ctx context.Context, now time.Time) ([]*Subscription, error) {
	subs := []*Subscription{}
	err := r.db.SelectContext(ctx, &subs, `
		SELECT`+subscriptionColumns+`
		FROM subscriptions
		WHERE status IN ('active', 'trialing')
		  AND cancel_at_period_end = TRUE
		  AND current_period_end <= $1
	`, now)
	return subs, err
}

func (r *Repository) MarkExpired(ctx context.Context, subID int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = 'expired',
		    end_date = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, subID, at)
	return err
}

// ListRenewalCandidates returns recurring subscriptions whose period ends
// by the cutoff, for renewal warning delivery.
func (r *Repository) ListRenewalCandidates(ctx context.Context, cutoff time.Time) ([]*Subscription, error) {
	subs := []*Subscription{}
	err := r.db.SelectContext(ctx, &subs, `
		SELECT`+subscriptionColumns+`
		FROM subscriptions
		WHERE status IN ('active', 'trialing')
		  AND billing_cycle IN ('monthly', 'yearly')
		  AND current_period_end IS NOT NULL
		  AND current_period_end <= $1
	`, cutoff)
	return subs, err
}

func (r *Repository) InsertHistory(ctx context.Context, h *History) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscription_history (user_id, subscription_id, plan_id, action, status, amount_cents, currency, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, h.UserID, h.SubscriptionID, h.PlanID, h.Action, h.Status, h.AmountCents, h.Currency, h.Notes)
	return err
}

func (r *Repository) ListHistoryByUser(ctx context.Context, userID int, limit int) ([]History, error) {
	entries := []History{}
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, user_id, subscription_id, plan_id, action, status, amount_cents, currency, notes, created_at
		FROM subscription_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	return entries, err
}
