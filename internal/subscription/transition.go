package subscription

import "gympro/internal/plan"

// Class is the categorical label for a requested plan/cycle change
// relative to the current one. It is computed on demand and never stored.
type Class string

const (
	ClassUpgrade    Class = "upgrade"
	ClassDowngrade  Class = "downgrade"
	ClassSwitchUp   Class = "switch_up"
	ClassSwitchDown Class = "switch_down"
	ClassSame       Class = "same"
)

// Classes lists every transition class the classifier can return.
func Classes() []Class {
	return []Class{ClassUpgrade, ClassDowngrade, ClassSwitchUp, ClassSwitchDown, ClassSame}
}

// Classify resolves a (level, cycle) change to exactly one transition
// class. Level and cycle can change at the same time, so the branches are
// ordered and the order is load-bearing:
//
//  1. a level increase is an upgrade no matter what the cycle does,
//  2. then a cycle increase is a switch up,
//  3. then a cycle decrease is a switch down,
//  4. then a level decrease is a downgrade,
//  5. identical level and cycle is same.
//
// Callers map the class to a commit strategy: upgrades apply immediately,
// downgrades and switch-downs are scheduled for the period end, and the
// commit timing of a switch-up is the caller's policy choice.
//
// Panics on a level or cycle outside the known enumerations; malformed
// catalog data is a bug, never something to silently classify.
func Classify(currentLevel plan.Level, currentCycle plan.BillingCycle, targetLevel plan.Level, targetCycle plan.BillingCycle) Class {
	// Rank all four inputs before branching so an unknown enum always
	// panics, even when an earlier branch could have decided without it.
	curLevel, tgtLevel := currentLevel.Order(), targetLevel.Order()
	curCycle, tgtCycle := currentCycle.Order(), targetCycle.Order()

	switch {
	case tgtLevel > curLevel:
		return ClassUpgrade
	case tgtCycle > curCycle:
		return ClassSwitchUp
	case tgtCycle < curCycle:
		return ClassSwitchDown
	case tgtLevel < curLevel:
		return ClassDowngrade
	default:
		return ClassSame
	}
}
