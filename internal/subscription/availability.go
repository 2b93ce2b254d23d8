package subscription

import "gympro/internal/plan"

// BlockingReason is the closed set of reasons a plan selection can be
// refused. Every reason is an expected, displayable state, not an error.
type BlockingReason string

const (
	ReasonAlreadySubscribed            BlockingReason = "already_subscribed"
	ReasonLifetimeDowngradeBlocked     BlockingReason = "lifetime_downgrade_blocked"
	ReasonLifetimeToSubscriptionBlocked BlockingReason = "lifetime_to_subscription_blocked"
)

// Decision says whether a candidate (plan, cycle) may currently be
// selected. Recomputed on every selection, never persisted.
type Decision struct {
	Available bool           `json:"available"`
	Reason    BlockingReason `json:"reason,omitempty"`
}

func allowed() Decision {
	return Decision{Available: true}
}

func blocked(reason BlockingReason) Decision {
	return Decision{Available: false, Reason: reason}
}

// Evaluate decides whether selecting targetPlan at targetCycle is allowed
// for the subscription's current state. Rules run in order, first match
// wins:
//
//  1. no subscription, or one whose plan the catalog no longer resolves:
//     always available (new customer),
//  2. the exact current (planId, cycle) pair: already subscribed; the
//     same plan at a different cycle is deliberately not caught here,
//  3. lifetime to lifetime: only a strictly higher level is allowed,
//  4. lifetime to a recurring cycle: blocked, since a lifetime purchase
//     has no period end to schedule the switch against,
//  5. anything else: available.
func Evaluate(sub *Subscription, targetPlan *plan.Plan, targetCycle plan.BillingCycle) Decision {
	if sub == nil {
		return allowed()
	}

	currentPlan := sub.Plan
	if currentPlan == nil {
		return allowed()
	}

	currentCycle := sub.Cycle()

	if currentPlan.PlanID == targetPlan.PlanID && currentCycle == targetCycle {
		return blocked(ReasonAlreadySubscribed)
	}

	if currentCycle == plan.CycleOneTime && targetCycle == plan.CycleOneTime {
		if targetPlan.Level.Order() > currentPlan.Level.Order() {
			return allowed()
		}
		return blocked(ReasonLifetimeDowngradeBlocked)
	}

	if currentCycle == plan.CycleOneTime && targetCycle != plan.CycleOneTime {
		return blocked(ReasonLifetimeToSubscriptionBlocked)
	}

	return allowed()
}
