package plan

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Level is the entitlement tier of a plan. Levels form a single total
// order; Order panics on values outside it, since classifying a transition
// against an unknown tier would risk a real billing mistake.
type Level string

const (
	LevelFree    Level = "free"
	LevelStarter Level = "starter"
	LevelPro     Level = "pro"
	LevelPremium Level = "premium"
)

var levelOrder = map[Level]int{
	LevelFree:    0,
	LevelStarter: 1,
	LevelPro:     2,
	LevelPremium: 3,
}

// Levels lists all plan levels in ascending entitlement order.
func Levels() []Level {
	return []Level{LevelFree, LevelStarter, LevelPro, LevelPremium}
}

func (l Level) Valid() bool {
	_, ok := levelOrder[l]
	return ok
}

// Order returns the level's position in the entitlement hierarchy.
// Panics on an unknown level: that is catalog corruption or a programmer
// error, not a runtime condition to report.
func (l Level) Order() int {
	order, ok := levelOrder[l]
	if !ok {
		panic(fmt.Sprintf("plan: invalid plan level %q", string(l)))
	}
	return order
}

// BillingCycle is the recurrence unit of a subscription. CycleOneTime is a
// lifetime purchase, not a longer recurring cycle; it sorts above the
// recurring cycles only so that moving onto it classifies as a switch up.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
	CycleOneTime BillingCycle = "oneTime"
)

var cycleOrder = map[BillingCycle]int{
	CycleMonthly: 0,
	CycleYearly:  1,
	CycleOneTime: 2,
}

// Cycles lists all billing cycles in ascending order.
func Cycles() []BillingCycle {
	return []BillingCycle{CycleMonthly, CycleYearly, CycleOneTime}
}

func (c BillingCycle) Valid() bool {
	_, ok := cycleOrder[c]
	return ok
}

// Order returns the cycle's position in the cycle ordering. Panics on an
// unknown cycle, same contract as Level.Order.
func (c BillingCycle) Order() int {
	order, ok := cycleOrder[c]
	if !ok {
		panic(fmt.Sprintf("plan: invalid billing cycle %q", string(c)))
	}
	return order
}

// Recurring reports whether the cycle renews. A oneTime purchase has no
// period end to pivot from, which is why downgrade scheduling never applies
// to it.
func (c BillingCycle) Recurring() bool {
	return c == CycleMonthly || c == CycleYearly
}

type PlanType string

const (
	TypeSubscription PlanType = "subscription"
	TypeOneTime      PlanType = "oneTime"
)

// Pricing maps currency code to per-cycle amounts in the currency's minor
// unit (cents, centimes).
type Pricing map[string]map[BillingCycle]int64

// Plan is an immutable catalog entry. Rows are seeded by migration and
// never written by this service.
type Plan struct {
	ID           int            `db:"id" json:"-"`
	PlanID       string         `db:"plan_id" json:"plan_id"`
	Level        Level          `db:"level" json:"level"`
	Type         PlanType       `db:"type" json:"type"`
	Name         string         `db:"name" json:"name"`
	Description  string         `db:"description" json:"description"`
	DisplayOrder int            `db:"display_order" json:"display_order"`
	TrialDays    int            `db:"trial_days" json:"trial_days"`
	MaxGyms      *int           `db:"max_gyms" json:"max_gyms,omitempty"`
	MaxMembers   *int           `db:"max_members" json:"max_members,omitempty"`
	Features     pq.StringArray `db:"features" json:"features"`
	Pricing      Pricing        `db:"-" json:"pricing"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// Price returns the amount for a currency and cycle, and whether the plan
// is offered at that combination at all.
func (p *Plan) Price(currency string, cycle BillingCycle) (int64, bool) {
	byCycle, ok := p.Pricing[currency]
	if !ok {
		return 0, false
	}
	amount, ok := byCycle[cycle]
	return amount, ok
}
