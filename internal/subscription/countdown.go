package subscription

import "time"

// TimeRemaining is the countdown until a period end, floor-decomposed so
// the displayed value never overstates what is left.
type TimeRemaining struct {
	Days    int  `json:"days"`
	Hours   int  `json:"hours"`
	Minutes int  `json:"minutes"`
	Expired bool `json:"expired"`
}

// Urgency buckets days remaining into the presentation tiers the UI
// renders. Kept here so callers never re-derive the thresholds.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// Project computes the countdown from now until periodEnd. Nil in, nil
// out: with no period end there is nothing to count down (lifetime or
// unstarted subscriptions). A period end at or before now yields the zero
// countdown with Expired set.
func Project(periodEnd *time.Time, now time.Time) *TimeRemaining {
	if periodEnd == nil {
		return nil
	}

	diff := periodEnd.Sub(now)
	if diff <= 0 {
		return &TimeRemaining{Expired: true}
	}

	days := int(diff / (24 * time.Hour))
	diff -= time.Duration(days) * 24 * time.Hour
	hours := int(diff / time.Hour)
	diff -= time.Duration(hours) * time.Hour
	minutes := int(diff / time.Minute)

	return &TimeRemaining{Days: days, Hours: hours, Minutes: minutes}
}

// Urgency returns the presentation tier for the countdown. Expired is
// terminal and always renders at the critical tier.
func (t *TimeRemaining) Urgency() Urgency {
	if t.Expired {
		return UrgencyCritical
	}
	switch {
	case t.Days <= 1:
		return UrgencyCritical
	case t.Days <= 3:
		return UrgencyHigh
	case t.Days <= 7:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}
