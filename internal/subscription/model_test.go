package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gympro/internal/plan"
)

func TestCycleDefaultsToMonthly(t *testing.T) {
	s := &Subscription{}
	assert.Equal(t, plan.CycleMonthly, s.Cycle())

	s.BillingCycle = plan.CycleYearly
	assert.Equal(t, plan.CycleYearly, s.Cycle())
}

func TestIsLifetime(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	s := &Subscription{BillingCycle: plan.CycleOneTime}
	assert.True(t, s.IsLifetime(now), "oneTime with no end date")

	farOut := now.AddDate(100, 0, 0)
	s.EndDate = &farOut
	assert.True(t, s.IsLifetime(now), "oneTime ending a century out")

	nextYear := now.AddDate(1, 0, 0)
	s.EndDate = &nextYear
	assert.False(t, s.IsLifetime(now), "fixed-term oneTime purchase")

	recurring := &Subscription{BillingCycle: plan.CycleYearly}
	assert.False(t, recurring.IsLifetime(now))
}

func TestHasPendingChange(t *testing.T) {
	s := &Subscription{}
	assert.False(t, s.HasPendingChange())

	pending := "starter"
	s.PendingPlanID = &pending
	assert.True(t, s.HasPendingChange())
}
