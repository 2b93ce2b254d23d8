package notify

import (
	"context"
	"errors"
	"time"

	"gympro/internal/logger"
	"gympro/internal/plan"
	"gympro/internal/subscription"
)

// warningWindow is how far ahead of a period end warnings start going out.
const warningWindow = 7 * 24 * time.Hour

// warnedTTL keeps the per-tier dedup key alive past the period end so a
// tier fires once per period, then naturally resets for the next one.
const warnedTTL = 40 * 24 * time.Hour

// RenewalCandidateSource is the slice of the subscription store the
// scanner needs.
type RenewalCandidateSource interface {
	ListRenewalCandidates(ctx context.Context, cutoff time.Time) ([]*subscription.Subscription, error)
}

// RenewalScanner periodically finds recurring subscriptions approaching
// their period end and queues one warning email per urgency tier. The
// urgency thresholds come from the countdown projection, so the emails
// and the UI can never disagree on what counts as urgent.
type RenewalScanner struct {
	subs     RenewalCandidateSource
	catalog  plan.Catalog
	emails   *Service
	interval time.Duration
	now      func() time.Time
}

func NewRenewalScanner(subs RenewalCandidateSource, catalog plan.Catalog, emails *Service, interval time.Duration) *RenewalScanner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RenewalScanner{
		subs:     subs,
		catalog:  catalog,
		emails:   emails,
		interval: interval,
		now:      time.Now,
	}
}

func (w *RenewalScanner) Start(ctx context.Context) {
	logger.Infof("Renewal warning scanner started, interval %s", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Renewal warning scanner stopped")
			return
		case <-ticker.C:
			if err := w.Scan(ctx); err != nil {
				logger.Errorf("Renewal scan failed: %v", err)
			}
		}
	}
}

func (w *RenewalScanner) Scan(ctx context.Context) error {
	now := w.now()

	candidates, err := w.subs.ListRenewalCandidates(ctx, now.Add(warningWindow))
	if err != nil {
		return err
	}

	for _, sub := range candidates {
		if err := w.warn(ctx, sub, now); err != nil {
			logger.Errorf("Failed to warn subscription %d: %v", sub.ID, err)
		}
	}

	return nil
}

func (w *RenewalScanner) warn(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
	remaining := subscription.Project(sub.CurrentPeriodEnd, now)
	if remaining == nil {
		return nil
	}

	urgency := remaining.Urgency()
	if !remaining.Expired && urgency == subscription.UrgencyLow {
		return nil
	}
	if sub.BillingEmail == "" {
		return nil
	}

	first, err := w.emails.MarkWarned(ctx, sub.ID, string(urgency), warnedTTL)
	if err != nil || !first {
		return err
	}

	planName := sub.PlanID
	if p, err := w.catalog.GetByPlanID(ctx, sub.PlanID); err == nil {
		planName = p.Name
	} else if !errors.Is(err, plan.ErrPlanNotFound) {
		return err
	}

	return w.emails.SendRenewalWarning(ctx, sub.BillingEmail, sub.BillingEmail, planName, string(urgency), *sub.CurrentPeriodEnd)
}
