package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gympro/internal/logger"
	"gympro/internal/metrics"
	"gympro/internal/plan"
)

var (
	ErrNoActiveSubscription = errors.New("no active subscription found")
	ErrCycleMismatch        = errors.New("billing cycle does not match plan type")
	ErrNotADowngrade        = errors.New("target plan is not a downgrade")
	ErrPendingChangeExists  = errors.New("a plan change is already scheduled")
	ErrNoPendingChange      = errors.New("no pending plan change found")
	ErrAlreadyCancelled     = errors.New("subscription is already set to cancel")
	ErrNotCancelled         = errors.New("subscription is not set to cancel")
	ErrNoPeriodEnd          = errors.New("subscription has no period end to schedule against")
	ErrUseDowngradeEndpoint = errors.New("downgrades must be scheduled, not applied immediately")
)

// BlockedError carries the availability decision when a plan selection is
// refused. Handlers turn it into a 409 with the reason, never a 5xx.
type BlockedError struct {
	Decision Decision
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("plan selection blocked: %s", e.Decision.Reason)
}

// Preview is the engine's output for a candidate selection: whether it is
// allowed and, when a subscription exists, how the change classifies.
type Preview struct {
	Available     bool           `json:"available"`
	Reason        BlockingReason `json:"reason,omitempty"`
	ChangeType    Class          `json:"change_type,omitempty"`
	EffectiveDate *time.Time     `json:"effective_date,omitempty"`
}

// Countdown is the time-remaining view for the current subscription.
type Countdown struct {
	Lifetime  bool           `json:"lifetime"`
	Remaining *TimeRemaining `json:"remaining,omitempty"`
	Urgency   Urgency        `json:"urgency,omitempty"`
	PeriodEnd *time.Time     `json:"period_end,omitempty"`
}

type Service interface {
	Current(ctx context.Context, userID int) (*Subscription, error)
	PreviewChange(ctx context.Context, userID int, planID string, cycle plan.BillingCycle) (*Preview, error)
	Subscribe(ctx context.Context, userID int, email string, planID string, cycle plan.BillingCycle, currency string) (*Subscription, error)
	ScheduleDowngrade(ctx context.Context, userID int, planID string, cycle plan.BillingCycle) (*Subscription, error)
	Cancel(ctx context.Context, userID int, reason string) (*Subscription, error)
	Reactivate(ctx context.Context, userID int) (*Subscription, error)
	CancelPendingChange(ctx context.Context, userID int) (*Subscription, error)
	TimeRemaining(ctx context.Context, userID int) (*Countdown, error)
	History(ctx context.Context, userID int, limit int) ([]History, error)
	ApplyDueChanges(ctx context.Context) error
}

type service struct {
	store   Store
	catalog plan.Catalog
	now     func() time.Time
}

func NewService(store Store, catalog plan.Catalog) Service {
	return &service{
		store:   store,
		catalog: catalog,
		now:     time.Now,
	}
}

// Current returns the user's active or trialing subscription with its
// catalog plan resolved, or nil when they have none.
func (s *service) Current(ctx context.Context, userID int) (*Subscription, error) {
	sub, err := s.store.GetCurrentByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}

	p, err := s.catalog.GetByPlanID(ctx, sub.PlanID)
	if err != nil && !errors.Is(err, plan.ErrPlanNotFound) {
		return nil, err
	}
	sub.Plan = p

	return sub, nil
}

func (s *service) PreviewChange(ctx context.Context, userID int, planID string, cycle plan.BillingCycle) (*Preview, error) {
	targetPlan, err := s.catalog.GetByPlanID(ctx, planID)
	if err != nil {
		return nil, err
	}

	sub, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}

	decision := Evaluate(sub, targetPlan, cycle)
	preview := &Preview{
		Available: decision.Available,
		Reason:    decision.Reason,
	}
	if !decision.Available {
		metrics.RecordPlanSelectionBlocked(string(decision.Reason))
		return preview, nil
	}

	if sub != nil && sub.Plan != nil {
		class := Classify(sub.Plan.Level, sub.Cycle(), targetPlan.Level, cycle)
		preview.ChangeType = class
		if class == ClassDowngrade || class == ClassSwitchDown {
			preview.EffectiveDate = sub.CurrentPeriodEnd
		}
	}

	return preview, nil
}

// Subscribe creates a subscription, or applies an immediate upgrade over
// the current one. Transitions that classify as a downgrade or switch-down
// are refused here: they must be scheduled for the period end instead.
func (s *service) Subscribe(ctx context.Context, userID int, email string, planID string, cycle plan.BillingCycle, currency string) (*Subscription, error) {
	targetPlan, err := s.catalog.GetByPlanID(ctx, planID)
	if err != nil {
		return nil, err
	}

	if err := validateCycleForPlan(targetPlan, cycle); err != nil {
		return nil, err
	}

	current, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}

	isUpgrade := false
	if current != nil && current.Plan != nil {
		decision := Evaluate(current, targetPlan, cycle)
		if !decision.Available {
			metrics.RecordPlanSelectionBlocked(string(decision.Reason))
			return nil, &BlockedError{Decision: decision}
		}

		class := Classify(current.Plan.Level, current.Cycle(), targetPlan.Level, cycle)
		metrics.RecordPlanChange(string(class))
		if class == ClassDowngrade || class == ClassSwitchDown {
			return nil, ErrUseDowngradeEndpoint
		}
		isUpgrade = true
	}

	now := s.now()

	if current != nil {
		if err := s.store.DeactivateCurrent(ctx, userID, now); err != nil {
			return nil, fmt.Errorf("failed to deactivate current subscription: %w", err)
		}
	}

	params := CreateParams{
		UserID:       userID,
		BillingEmail: email,
		PlanID:       targetPlan.PlanID,
		BillingCycle: cycle,
		Status:       StatusActive,
		StartDate:    now,
	}

	if cycle == plan.CycleOneTime {
		end := now.AddDate(100, 0, 0)
		params.EndDate = &end
		params.CurrentPeriodEnd = &end
	} else {
		periodEnd := advancePeriod(now, cycle)
		params.CurrentPeriodEnd = &periodEnd
	}

	// A trial is granted once per user, not once per subscription: a
	// member whose trial lapsed does not earn another by re-subscribing.
	if current == nil && targetPlan.TrialDays > 0 {
		used, err := s.store.HasUsedTrial(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to check trial usage: %w", err)
		}
		if !used {
			trialEnd := now.AddDate(0, 0, targetPlan.TrialDays)
			params.Status = StatusTrialing
			params.TrialEndsAt = &trialEnd
		}
	}

	sub, err := s.store.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	sub.Plan = targetPlan

	metrics.RecordSubscriptionCreated(targetPlan.PlanID, string(cycle))

	action := ActionCreated
	notes := fmt.Sprintf("Subscribed to %s (%s)", targetPlan.Name, cycle)
	if isUpgrade {
		action = ActionUpgraded
		notes = fmt.Sprintf("Upgraded to %s (%s)", targetPlan.Name, cycle)
	}

	entry := &History{
		UserID:         userID,
		SubscriptionID: sub.ID,
		PlanID:         targetPlan.PlanID,
		Action:         action,
		Status:         sub.Status,
		Notes:          notes,
	}
	if amount, ok := targetPlan.Price(currency, cycle); ok {
		entry.AmountCents = &amount
		entry.Currency = &currency
	}
	if err := s.store.InsertHistory(ctx, entry); err != nil {
		logger.Errorf("Failed to record subscription history for user %d: %v", userID, err)
	}

	logger.Infof("Subscription %s: plan=%s cycle=%s user=%d", action, targetPlan.PlanID, cycle, userID)
	return sub, nil
}

// ScheduleDowngrade writes a pending change that the rollover worker
// applies at the end of the current period. Entitlements do not change
// until then.
func (s *service) ScheduleDowngrade(ctx context.Context, userID int, planID string, cycle plan.BillingCycle) (*Subscription, error) {
	current, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil || current.Plan == nil {
		return nil, ErrNoActiveSubscription
	}

	targetPlan, err := s.catalog.GetByPlanID(ctx, planID)
	if err != nil {
		return nil, err
	}

	if err := validateCycleForPlan(targetPlan, cycle); err != nil {
		return nil, err
	}

	decision := Evaluate(current, targetPlan, cycle)
	if !decision.Available {
		metrics.RecordPlanSelectionBlocked(string(decision.Reason))
		return nil, &BlockedError{Decision: decision}
	}

	class := Classify(current.Plan.Level, current.Cycle(), targetPlan.Level, cycle)
	metrics.RecordPlanChange(string(class))
	if class != ClassDowngrade && class != ClassSwitchDown {
		return nil, ErrNotADowngrade
	}

	if current.HasPendingChange() {
		return nil, ErrPendingChangeExists
	}
	if current.CurrentPeriodEnd == nil {
		return nil, ErrNoPeriodEnd
	}

	effective := *current.CurrentPeriodEnd
	if err := s.store.SetPendingChange(ctx, current.ID, targetPlan.PlanID, cycle, effective); err != nil {
		return nil, fmt.Errorf("failed to schedule plan change: %w", err)
	}

	current.PendingPlanID = &targetPlan.PlanID
	current.PendingBillingCycle = &cycle
	current.PendingChangeEffectiveDate = &effective

	action := ActionDowngradeScheduled
	if class == ClassSwitchDown {
		action = ActionSwitchScheduled
	}
	if err := s.store.InsertHistory(ctx, &History{
		UserID:         userID,
		SubscriptionID: current.ID,
		PlanID:         targetPlan.PlanID,
		Action:         action,
		Status:         current.Status,
		Notes:          fmt.Sprintf("Change to %s (%s) scheduled for %s", targetPlan.Name, cycle, effective.Format(time.RFC3339)),
	}); err != nil {
		logger.Errorf("Failed to record schedule history for user %d: %v", userID, err)
	}

	logger.Infof("Plan change scheduled: user=%d target=%s cycle=%s effective=%s", userID, targetPlan.PlanID, cycle, effective.Format(time.RFC3339))
	return current, nil
}

// Cancel flags the subscription to end at the period boundary. Any
// scheduled plan change is dropped, since the cancellation supersedes it.
func (s *service) Cancel(ctx context.Context, userID int, reason string) (*Subscription, error) {
	current, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNoActiveSubscription
	}
	if current.CancelAtPeriodEnd {
		return nil, ErrAlreadyCancelled
	}

	now := s.now()
	if err := s.store.MarkCancelAtPeriodEnd(ctx, current.ID, reason, now); err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	current.CancelAtPeriodEnd = true
	current.CancelledAt = &now
	if reason != "" {
		current.CancellationReason = &reason
	}
	current.PendingPlanID = nil
	current.PendingBillingCycle = nil
	current.PendingChangeEffectiveDate = nil

	if err := s.store.InsertHistory(ctx, &History{
		UserID:         userID,
		SubscriptionID: current.ID,
		PlanID:         current.PlanID,
		Action:         ActionCancelled,
		Status:         current.Status,
		Notes:          "Cancellation requested, effective at period end",
	}); err != nil {
		logger.Errorf("Failed to record cancel history for user %d: %v", userID, err)
	}

	logger.Infof("Subscription cancel scheduled: user=%d sub=%d", userID, current.ID)
	return current, nil
}

func (s *service) Reactivate(ctx context.Context, userID int) (*Subscription, error) {
	current, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNoActiveSubscription
	}
	if !current.CancelAtPeriodEnd {
		return nil, ErrNotCancelled
	}

	if err := s.store.ClearCancelAtPeriodEnd(ctx, current.ID); err != nil {
		return nil, fmt.Errorf("failed to reactivate subscription: %w", err)
	}

	current.CancelAtPeriodEnd = false
	current.CancelledAt = nil
	current.CancellationReason = nil

	if err := s.store.InsertHistory(ctx, &History{
		UserID:         userID,
		SubscriptionID: current.ID,
		PlanID:         current.PlanID,
		Action:         ActionReactivated,
		Status:         current.Status,
		Notes:          "Subscription reactivated by user",
	}); err != nil {
		logger.Errorf("Failed to record reactivate history for user %d: %v", userID, err)
	}

	logger.Infof("Subscription reactivated: user=%d sub=%d", userID, current.ID)
	return current, nil
}

func (s *service) CancelPendingChange(ctx context.Context, userID int) (*Subscription, error) {
	current, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNoActiveSubscription
	}
	if !current.HasPendingChange() {
		return nil, ErrNoPendingChange
	}

	if err := s.store.ClearPendingChange(ctx, current.ID); err != nil {
		return nil, fmt.Errorf("failed to cancel pending change: %w", err)
	}

	pendingPlan := *current.PendingPlanID
	current.PendingPlanID = nil
	current.PendingBillingCycle = nil
	current.PendingChangeEffectiveDate = nil

	if err := s.store.InsertHistory(ctx, &History{
		UserID:         userID,
		SubscriptionID: current.ID,
		PlanID:         current.PlanID,
		Action:         ActionPendingChangeCancelled,
		Status:         current.Status,
		Notes:          fmt.Sprintf("Scheduled change to %s cancelled", pendingPlan),
	}); err != nil {
		logger.Errorf("Failed to record pending-change history for user %d: %v", userID, err)
	}

	return current, nil
}

func (s *service) TimeRemaining(ctx context.Context, userID int) (*Countdown, error) {
	current, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNoActiveSubscription
	}

	now := s.now()
	if current.IsLifetime(now) {
		return &Countdown{Lifetime: true}, nil
	}

	countdown := &Countdown{PeriodEnd: current.CurrentPeriodEnd}
	if remaining := Project(current.CurrentPeriodEnd, now); remaining != nil {
		countdown.Remaining = remaining
		countdown.Urgency = remaining.Urgency()
	}
	return countdown, nil
}

func (s *service) History(ctx context.Context, userID int, limit int) ([]History, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListHistoryByUser(ctx, userID, limit)
}

// ApplyDueChanges is the billing period rollover: it applies scheduled
// plan changes whose effective date has passed and expires subscriptions
// that were flagged cancel-at-period-end. The engine itself never mutates
// state; this is the external rollover the engine's inputs come from.
func (s *service) ApplyDueChanges(ctx context.Context) error {
	now := s.now()

	due, err := s.store.ListDuePendingChanges(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list due pending changes: %w", err)
	}
	for _, sub := range due {
		if err := s.applyPendingChange(ctx, sub, now); err != nil {
			logger.Errorf("Failed to apply pending change for subscription %d: %v", sub.ID, err)
		}
	}

	cancellations, err := s.store.ListDueCancellations(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list due cancellations: %w", err)
	}
	for _, sub := range cancellations {
		if err := s.expire(ctx, sub, now); err != nil {
			logger.Errorf("Failed to expire subscription %d: %v", sub.ID, err)
		}
	}

	return nil
}

func (s *service) applyPendingChange(ctx context.Context, sub *Subscription, now time.Time) error {
	newPlanID := *sub.PendingPlanID
	newCycle := sub.Cycle()
	if sub.PendingBillingCycle != nil {
		newCycle = *sub.PendingBillingCycle
	}

	if _, err := s.catalog.GetByPlanID(ctx, newPlanID); err != nil {
		if errors.Is(err, plan.ErrPlanNotFound) {
			// Scheduled plan left the catalog; drop the change rather
			// than move the member onto a plan that no longer exists.
			logger.Errorf("Pending plan %s no longer in catalog, clearing change for subscription %d", newPlanID, sub.ID)
			return s.store.ClearPendingChange(ctx, sub.ID)
		}
		return err
	}

	periodStart := *sub.PendingChangeEffectiveDate
	periodEnd := advancePeriod(periodStart, newCycle)

	if err := s.store.ApplyPendingChange(ctx, sub.ID, newPlanID, newCycle, periodStart, periodEnd); err != nil {
		return err
	}

	metrics.RecordPendingChangeApplied()
	if err := s.store.InsertHistory(ctx, &History{
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		PlanID:         newPlanID,
		Action:         ActionDowngraded,
		Status:         sub.Status,
		Notes:          fmt.Sprintf("Scheduled change applied: now on %s (%s)", newPlanID, newCycle),
	}); err != nil {
		logger.Errorf("Failed to record rollover history for subscription %d: %v", sub.ID, err)
	}

	logger.Infof("Pending change applied: sub=%d plan=%s cycle=%s", sub.ID, newPlanID, newCycle)
	return nil
}

func (s *service) expire(ctx context.Context, sub *Subscription, now time.Time) error {
	if err := s.store.MarkExpired(ctx, sub.ID, now); err != nil {
		return err
	}

	metrics.RecordSubscriptionExpired()
	if err := s.store.InsertHistory(ctx, &History{
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		PlanID:         sub.PlanID,
		Action:         ActionExpired,
		Status:         StatusExpired,
		Notes:          "Cancelled subscription reached period end",
	}); err != nil {
		logger.Errorf("Failed to record expiry history for subscription %d: %v", sub.ID, err)
	}

	logger.Infof("Subscription expired at period end: sub=%d user=%d", sub.ID, sub.UserID)
	return nil
}

// validateCycleForPlan rejects cycle/plan-type combinations the catalog
// does not sell: lifetime plans are bought oneTime, recurring plans are
// bought monthly or yearly.
func validateCycleForPlan(p *plan.Plan, cycle plan.BillingCycle) error {
	if p.Type == plan.TypeOneTime && cycle != plan.CycleOneTime {
		return ErrCycleMismatch
	}
	if p.Type == plan.TypeSubscription && cycle == plan.CycleOneTime {
		return ErrCycleMismatch
	}
	return nil
}

func advancePeriod(from time.Time, cycle plan.BillingCycle) time.Time {
	switch cycle {
	case plan.CycleYearly:
		return from.AddDate(1, 0, 0)
	case plan.CycleOneTime:
		return from.AddDate(100, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}
