package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gympro/internal/plan"
)

// Mock store and catalog
type MockStore struct{ mock.Mock }
type MockCatalog struct{ mock.Mock }

func (m *MockStore) GetCurrentByUser(ctx context.Context, userID int) (*Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Subscription), args.Error(1)
}

func (m *MockStore) HasUsedTrial(ctx context.Context, userID int) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Create(ctx context.Context, p CreateParams) (*Subscription, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Subscription), args.Error(1)
}

func (m *MockStore) DeactivateCurrent(ctx context.Context, userID int, endedAt time.Time) error {
	return m.Called(ctx, userID, endedAt).Error(0)
}

func (m *MockStore) SetPendingChange(ctx context.Context, subID int, planID string, cycle plan.BillingCycle, effective time.Time) error {
	return m.Called(ctx, subID, planID, cycle, effective).Error(0)
}

func (m *MockStore) ClearPendingChange(ctx context.Context, subID int) error {
	return m.Called(ctx, subID).Error(0)
}

func (m *MockStore) MarkCancelAtPeriodEnd(ctx context.Context, subID int, reason string, at time.Time) error {
	return m.Called(ctx, subID, reason, at).Error(0)
}

func (m *MockStore) ClearCancelAtPeriodEnd(ctx context.Context, subID int) error {
	return m.Called(ctx, subID).Error(0)
}

func (m *MockStore) ListDuePendingChanges(ctx context.Context, now time.Time) ([]*Subscription, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Subscription), args.Error(1)
}

func (m *MockStore) ApplyPendingChange(ctx context.Context, subID int, planID string, cycle plan.BillingCycle, periodStart time.Time, periodEnd time.Time) error {
	return m.Called(ctx, subID, planID, cycle, periodStart, periodEnd).Error(0)
}

func (m *MockStore) ListDueCancellations(ctx context.Context, now time.Time) ([]*Subscription, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Subscription), args.Error(1)
}

func (m *MockStore) MarkExpired(ctx context.Context, subID int, at time.Time) error {
	return m.Called(ctx, subID, at).Error(0)
}

func (m *MockStore) ListRenewalCandidates(ctx context.Context, cutoff time.Time) ([]*Subscription, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Subscription), args.Error(1)
}

func (m *MockStore) InsertHistory(ctx context.Context, h *History) error {
	return m.Called(ctx, h).Error(0)
}

func (m *MockStore) ListHistoryByUser(ctx context.Context, userID int, limit int) ([]History, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]History), args.Error(1)
}

func (m *MockCatalog) ListPlans(ctx context.Context) ([]plan.Plan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]plan.Plan), args.Error(1)
}

func (m *MockCatalog) GetByPlanID(ctx context.Context, planID string) (*plan.Plan, error) {
	args := m.Called(ctx, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*plan.Plan), args.Error(1)
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(store *MockStore, catalog *MockCatalog) *service {
	return &service{store: store, catalog: catalog, now: func() time.Time { return testNow }}
}

func starterPlan() *plan.Plan {
	return &plan.Plan{
		PlanID: "starter",
		Level:  plan.LevelStarter,
		Type:   plan.TypeSubscription,
		Name:   "Starter",
		Pricing: plan.Pricing{
			"USD": {plan.CycleMonthly: 2900, plan.CycleYearly: 29000},
		},
	}
}

func proPlan() *plan.Plan {
	return &plan.Plan{
		PlanID: "pro",
		Level:  plan.LevelPro,
		Type:   plan.TypeSubscription,
		Name:   "Pro",
		Pricing: plan.Pricing{
			"USD": {plan.CycleMonthly: 7900, plan.CycleYearly: 79000},
		},
	}
}

func activeSub(p *plan.Plan, cycle plan.BillingCycle) *Subscription {
	periodEnd := testNow.AddDate(0, 1, 0)
	return &Subscription{
		ID:                 1,
		UserID:             42,
		PlanID:             p.PlanID,
		BillingCycle:       cycle,
		Status:             StatusActive,
		StartDate:          testNow.AddDate(0, -1, 0),
		CurrentPeriodStart: testNow.AddDate(0, -1, 0),
		CurrentPeriodEnd:   &periodEnd,
	}
}

func TestCurrentResolvesPlan(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	p := proPlan()
	sub := activeSub(p, plan.CycleYearly)
	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(p, nil)

	got, err := svc.Current(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p, got.Plan)
}

func TestCurrentNoSubscription(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	store.On("GetCurrentByUser", mock.Anything, 42).Return(nil, nil)

	got, err := svc.Current(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, got)
	catalog.AssertNotCalled(t, "GetByPlanID")
}

func TestCurrentRetiredPlanLeftNil(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	sub := &Subscription{ID: 1, UserID: 42, PlanID: "legacy-gold", Status: StatusActive}
	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "legacy-gold").Return(nil, plan.ErrPlanNotFound)

	got, err := svc.Current(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Plan)
}

func TestPreviewChangeNewCustomer(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	catalog.On("GetByPlanID", mock.Anything, "pro").Return(proPlan(), nil)
	store.On("GetCurrentByUser", mock.Anything, 42).Return(nil, nil)

	preview, err := svc.PreviewChange(context.Background(), 42, "pro", plan.CycleMonthly)
	require.NoError(t, err)
	assert.True(t, preview.Available)
	assert.Empty(t, preview.ChangeType, "no current subscription, nothing to classify")
}

func TestPreviewChangeUpgrade(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := starterPlan()
	sub := activeSub(current, plan.CycleMonthly)
	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "starter").Return(current, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(proPlan(), nil)

	preview, err := svc.PreviewChange(context.Background(), 42, "pro", plan.CycleYearly)
	require.NoError(t, err)
	assert.True(t, preview.Available)
	assert.Equal(t, ClassUpgrade, preview.ChangeType)
	assert.Nil(t, preview.EffectiveDate, "upgrades apply immediately")
}

func TestPreviewChangeDowngradeCarriesEffectiveDate(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	sub := activeSub(current, plan.CycleMonthly)
	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(current, nil)
	catalog.On("GetByPlanID", mock.Anything, "starter").Return(starterPlan(), nil)

	preview, err := svc.PreviewChange(context.Background(), 42, "starter", plan.CycleMonthly)
	require.NoError(t, err)
	assert.True(t, preview.Available)
	assert.Equal(t, ClassDowngrade, preview.ChangeType)
	require.NotNil(t, preview.EffectiveDate)
	assert.Equal(t, *sub.CurrentPeriodEnd, *preview.EffectiveDate)
}

func TestPreviewChangeBlocked(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	sub := activeSub(current, plan.CycleMonthly)
	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(current, nil)

	preview, err := svc.PreviewChange(context.Background(), 42, "pro", plan.CycleMonthly)
	require.NoError(t, err, "a blocked selection is a result, not an error")
	assert.False(t, preview.Available)
	assert.Equal(t, ReasonAlreadySubscribed, preview.Reason)
	assert.Empty(t, preview.ChangeType)
}

func TestSubscribeNewCustomerWithTrial(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	p := starterPlan()
	p.TrialDays = 14
	catalog.On("GetByPlanID", mock.Anything, "starter").Return(p, nil)
	store.On("GetCurrentByUser", mock.Anything, 42).Return(nil, nil)
	store.On("HasUsedTrial", mock.Anything, 42).Return(false, nil)

	created := activeSub(p, plan.CycleMonthly)
	created.Status = StatusTrialing
	store.On("Create", mock.Anything, mock.MatchedBy(func(params CreateParams) bool {
		return params.UserID == 42 &&
			params.PlanID == "starter" &&
			params.Status == StatusTrialing &&
			params.TrialEndsAt != nil &&
			params.TrialEndsAt.Equal(testNow.AddDate(0, 0, 14))
	})).Return(created, nil)
	store.On("InsertHistory", mock.Anything, mock.MatchedBy(func(h *History) bool {
		return h.Action == ActionCreated && h.AmountCents != nil && *h.AmountCents == 2900
	})).Return(nil)

	sub, err := svc.Subscribe(context.Background(), 42, "owner@gym.io", "starter", plan.CycleMonthly, "USD")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, p, sub.Plan)
	store.AssertNotCalled(t, "DeactivateCurrent", mock.Anything, mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

// A member whose trial already lapsed does not earn a second one by
// letting the subscription expire and signing up again.
func TestSubscribeReturningCustomerGetsNoSecondTrial(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	p := starterPlan()
	p.TrialDays = 14
	catalog.On("GetByPlanID", mock.Anything, "starter").Return(p, nil)
	store.On("GetCurrentByUser", mock.Anything, 42).Return(nil, nil)
	store.On("HasUsedTrial", mock.Anything, 42).Return(true, nil)

	created := activeSub(p, plan.CycleMonthly)
	store.On("Create", mock.Anything, mock.MatchedBy(func(params CreateParams) bool {
		return params.Status == StatusActive && params.TrialEndsAt == nil
	})).Return(created, nil)
	store.On("InsertHistory", mock.Anything, mock.Anything).Return(nil)

	sub, err := svc.Subscribe(context.Background(), 42, "owner@gym.io", "starter", plan.CycleMonthly, "USD")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sub.Status)
	store.AssertExpectations(t)
}

func TestSubscribeTrialCheckError(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	p := starterPlan()
	p.TrialDays = 14
	catalog.On("GetByPlanID", mock.Anything, "starter").Return(p, nil)
	store.On("GetCurrentByUser", mock.Anything, 42).Return(nil, nil)
	dbErr := errors.New("connection refused")
	store.On("HasUsedTrial", mock.Anything, 42).Return(false, dbErr)

	_, err := svc.Subscribe(context.Background(), 42, "owner@gym.io", "starter", plan.CycleMonthly, "USD")
	assert.ErrorIs(t, err, dbErr)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSubscribeUpgradeReplacesCurrent(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := starterPlan()
	target := proPlan()
	sub := activeSub(current, plan.CycleMonthly)

	catalog.On("GetByPlanID", mock.Anything, "pro").Return(target, nil)
	catalog.On("GetByPlanID", mock.Anything, "starter").Return(current, nil)
	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	store.On("DeactivateCurrent", mock.Anything, 42, testNow).Return(nil)

	created := activeSub(target, plan.CycleYearly)
	store.On("Create", mock.Anything, mock.MatchedBy(func(params CreateParams) bool {
		// An upgrade over an existing subscription never re-enters trial.
		return params.PlanID == "pro" && params.Status == StatusActive && params.TrialEndsAt == nil
	})).Return(created, nil)
	store.On("InsertHistory", mock.Anything, mock.MatchedBy(func(h *History) bool {
		return h.Action == ActionUpgraded
	})).Return(nil)

	got, err := svc.Subscribe(context.Background(), 42, "owner@gym.io", "pro", plan.CycleYearly, "USD")
	require.NoError(t, err)
	require.NotNil(t, got)
	store.AssertExpectations(t)
}

func TestSubscribeRefusesDowngrade(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	target := starterPlan()
	sub := activeSub(current, plan.CycleMonthly)

	catalog.On("GetByPlanID", mock.Anything, "starter").Return(target, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(current, nil)
	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)

	_, err := svc.Subscribe(context.Background(), 42, "owner@gym.io", "starter", plan.CycleMonthly, "USD")
	assert.ErrorIs(t, err, ErrUseDowngradeEndpoint)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSubscribeBlockedSelection(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	sub := activeSub(current, plan.CycleMonthly)

	catalog.On("GetByPlanID", mock.Anything, "pro").Return(current, nil)
	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)

	_, err := svc.Subscribe(context.Background(), 42, "owner@gym.io", "pro", plan.CycleMonthly, "USD")

	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, ReasonAlreadySubscribed, blocked.Decision.Reason)
}

func TestSubscribeCycleMismatch(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	lifetime := &plan.Plan{PlanID: "premium-lifetime", Level: plan.LevelPremium, Type: plan.TypeOneTime, Name: "Premium Lifetime"}
	catalog.On("GetByPlanID", mock.Anything, "premium-lifetime").Return(lifetime, nil)

	_, err := svc.Subscribe(context.Background(), 42, "owner@gym.io", "premium-lifetime", plan.CycleMonthly, "USD")
	assert.ErrorIs(t, err, ErrCycleMismatch)

	recurring := proPlan()
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(recurring, nil)

	_, err = svc.Subscribe(context.Background(), 42, "owner@gym.io", "pro", plan.CycleOneTime, "USD")
	assert.ErrorIs(t, err, ErrCycleMismatch)
}

func TestSubscribeLifetimeGetsCenturyPeriod(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	lifetime := &plan.Plan{
		PlanID:  "premium-lifetime",
		Level:   plan.LevelPremium,
		Type:    plan.TypeOneTime,
		Name:    "Premium Lifetime",
		Pricing: plan.Pricing{"USD": {plan.CycleOneTime: 499000}},
	}
	catalog.On("GetByPlanID", mock.Anything, "premium-lifetime").Return(lifetime, nil)
	store.On("GetCurrentByUser", mock.Anything, 42).Return(nil, nil)

	created := activeSub(lifetime, plan.CycleOneTime)
	store.On("Create", mock.Anything, mock.MatchedBy(func(params CreateParams) bool {
		return params.EndDate != nil &&
			params.EndDate.Equal(testNow.AddDate(100, 0, 0)) &&
			params.CurrentPeriodEnd != nil &&
			params.TrialEndsAt == nil
	})).Return(created, nil)
	store.On("InsertHistory", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Subscribe(context.Background(), 42, "owner@gym.io", "premium-lifetime", plan.CycleOneTime, "USD")
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestScheduleDowngrade(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	target := starterPlan()
	sub := activeSub(current, plan.CycleMonthly)

	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(current, nil)
	catalog.On("GetByPlanID", mock.Anything, "starter").Return(target, nil)
	store.On("SetPendingChange", mock.Anything, sub.ID, "starter", plan.CycleMonthly, *sub.CurrentPeriodEnd).Return(nil)
	store.On("InsertHistory", mock.Anything, mock.MatchedBy(func(h *History) bool {
		return h.Action == ActionDowngradeScheduled
	})).Return(nil)

	got, err := svc.ScheduleDowngrade(context.Background(), 42, "starter", plan.CycleMonthly)
	require.NoError(t, err)
	require.NotNil(t, got.PendingPlanID)
	assert.Equal(t, "starter", *got.PendingPlanID)
	require.NotNil(t, got.PendingChangeEffectiveDate)
	assert.Equal(t, *sub.CurrentPeriodEnd, *got.PendingChangeEffectiveDate)
	store.AssertExpectations(t)
}

func TestScheduleDowngradeSwitchDownAction(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	sub := activeSub(current, plan.CycleYearly)

	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(current, nil)
	store.On("SetPendingChange", mock.Anything, sub.ID, "pro", plan.CycleMonthly, *sub.CurrentPeriodEnd).Return(nil)
	store.On("InsertHistory", mock.Anything, mock.MatchedBy(func(h *History) bool {
		return h.Action == ActionSwitchScheduled
	})).Return(nil)

	_, err := svc.ScheduleDowngrade(context.Background(), 42, "pro", plan.CycleMonthly)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestScheduleDowngradeRejectsUpgrade(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := starterPlan()
	target := proPlan()
	sub := activeSub(current, plan.CycleMonthly)

	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "starter").Return(current, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(target, nil)

	_, err := svc.ScheduleDowngrade(context.Background(), 42, "pro", plan.CycleMonthly)
	assert.ErrorIs(t, err, ErrNotADowngrade)
}

func TestScheduleDowngradePendingChangeExists(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	target := starterPlan()
	sub := activeSub(current, plan.CycleMonthly)
	pendingID := "free"
	sub.PendingPlanID = &pendingID

	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(current, nil)
	catalog.On("GetByPlanID", mock.Anything, "starter").Return(target, nil)

	_, err := svc.ScheduleDowngrade(context.Background(), 42, "starter", plan.CycleMonthly)
	assert.ErrorIs(t, err, ErrPendingChangeExists)
	store.AssertNotCalled(t, "SetPendingChange", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestScheduleDowngradeNoSubscription(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	store.On("GetCurrentByUser", mock.Anything, 42).Return(nil, nil)

	_, err := svc.ScheduleDowngrade(context.Background(), 42, "starter", plan.CycleMonthly)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestCancelClearsPendingChange(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	sub := activeSub(current, plan.CycleMonthly)
	pendingID := "starter"
	sub.PendingPlanID = &pendingID

	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(current, nil)
	store.On("MarkCancelAtPeriodEnd", mock.Anything, sub.ID, "too expensive", testNow).Return(nil)
	store.On("InsertHistory", mock.Anything, mock.MatchedBy(func(h *History) bool {
		return h.Action == ActionCancelled
	})).Return(nil)

	got, err := svc.Cancel(context.Background(), 42, "too expensive")
	require.NoError(t, err)
	assert.True(t, got.CancelAtPeriodEnd)
	assert.Nil(t, got.PendingPlanID, "cancellation supersedes the scheduled change")
	store.AssertExpectations(t)
}

func TestCancelAlreadyCancelled(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	sub := activeSub(current, plan.CycleMonthly)
	sub.CancelAtPeriodEnd = true

	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(current, nil)

	_, err := svc.Cancel(context.Background(), 42, "")
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestReactivate(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	sub := activeSub(current, plan.CycleMonthly)
	sub.CancelAtPeriodEnd = true
	cancelledAt := testNow.Add(-time.Hour)
	sub.CancelledAt = &cancelledAt

	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(current, nil)
	store.On("ClearCancelAtPeriodEnd", mock.Anything, sub.ID).Return(nil)
	store.On("InsertHistory", mock.Anything, mock.MatchedBy(func(h *History) bool {
		return h.Action == ActionReactivated
	})).Return(nil)

	got, err := svc.Reactivate(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, got.CancelAtPeriodEnd)
	assert.Nil(t, got.CancelledAt)
	store.AssertExpectations(t)
}

func TestReactivateNotCancelled(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	sub := activeSub(current, plan.CycleMonthly)

	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(current, nil)

	_, err := svc.Reactivate(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotCancelled)
}

func TestCancelPendingChange(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	sub := activeSub(current, plan.CycleMonthly)
	pendingID := "starter"
	pendingCycle := plan.CycleMonthly
	effective := *sub.CurrentPeriodEnd
	sub.PendingPlanID = &pendingID
	sub.PendingBillingCycle = &pendingCycle
	sub.PendingChangeEffectiveDate = &effective

	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(current, nil)
	store.On("ClearPendingChange", mock.Anything, sub.ID).Return(nil)
	store.On("InsertHistory", mock.Anything, mock.MatchedBy(func(h *History) bool {
		return h.Action == ActionPendingChangeCancelled
	})).Return(nil)

	got, err := svc.CancelPendingChange(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, got.PendingPlanID)
	assert.Nil(t, got.PendingBillingCycle)
	assert.Nil(t, got.PendingChangeEffectiveDate)
	store.AssertExpectations(t)
}

func TestCancelPendingChangeNonePending(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	sub := activeSub(current, plan.CycleMonthly)

	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(current, nil)

	_, err := svc.CancelPendingChange(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNoPendingChange)
}

func TestTimeRemainingLifetime(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	lifetime := &plan.Plan{PlanID: "premium-lifetime", Level: plan.LevelPremium, Type: plan.TypeOneTime}
	sub := activeSub(lifetime, plan.CycleOneTime)
	sub.EndDate = nil
	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "premium-lifetime").Return(lifetime, nil)

	countdown, err := svc.TimeRemaining(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, countdown.Lifetime)
	assert.Nil(t, countdown.Remaining)
}

func TestTimeRemainingRecurring(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	sub := activeSub(current, plan.CycleMonthly)
	periodEnd := testNow.Add(36 * time.Hour)
	sub.CurrentPeriodEnd = &periodEnd

	store.On("GetCurrentByUser", mock.Anything, 42).Return(sub, nil)
	catalog.On("GetByPlanID", mock.Anything, "pro").Return(current, nil)

	countdown, err := svc.TimeRemaining(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, countdown.Lifetime)
	require.NotNil(t, countdown.Remaining)
	assert.Equal(t, 1, countdown.Remaining.Days)
	assert.Equal(t, 12, countdown.Remaining.Hours)
	assert.Equal(t, UrgencyCritical, countdown.Urgency)
}

func TestTimeRemainingNoSubscription(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	store.On("GetCurrentByUser", mock.Anything, 42).Return(nil, nil)

	_, err := svc.TimeRemaining(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestHistoryClampsLimit(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	store.On("ListHistoryByUser", mock.Anything, 42, 50).Return([]History{}, nil)

	_, err := svc.History(context.Background(), 42, 0)
	require.NoError(t, err)
	_, err = svc.History(context.Background(), 42, 500)
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "ListHistoryByUser", 2)
}

func TestApplyDueChangesRollsOver(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	sub := activeSub(current, plan.CycleMonthly)
	pendingID := "starter"
	pendingCycle := plan.CycleMonthly
	effective := testNow.Add(-time.Hour)
	sub.PendingPlanID = &pendingID
	sub.PendingBillingCycle = &pendingCycle
	sub.PendingChangeEffectiveDate = &effective

	store.On("ListDuePendingChanges", mock.Anything, testNow).Return([]*Subscription{sub}, nil)
	catalog.On("GetByPlanID", mock.Anything, "starter").Return(starterPlan(), nil)
	store.On("ApplyPendingChange", mock.Anything, sub.ID, "starter", plan.CycleMonthly,
		effective, effective.AddDate(0, 1, 0)).Return(nil)
	store.On("InsertHistory", mock.Anything, mock.MatchedBy(func(h *History) bool {
		return h.Action == ActionDowngraded
	})).Return(nil)
	store.On("ListDueCancellations", mock.Anything, testNow).Return([]*Subscription{}, nil)

	err := svc.ApplyDueChanges(context.Background())
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestApplyDueChangesDropsRetiredPlan(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	sub := activeSub(current, plan.CycleMonthly)
	pendingID := "legacy-gold"
	effective := testNow.Add(-time.Hour)
	sub.PendingPlanID = &pendingID
	sub.PendingChangeEffectiveDate = &effective

	store.On("ListDuePendingChanges", mock.Anything, testNow).Return([]*Subscription{sub}, nil)
	catalog.On("GetByPlanID", mock.Anything, "legacy-gold").Return(nil, plan.ErrPlanNotFound)
	store.On("ClearPendingChange", mock.Anything, sub.ID).Return(nil)
	store.On("ListDueCancellations", mock.Anything, testNow).Return([]*Subscription{}, nil)

	err := svc.ApplyDueChanges(context.Background())
	require.NoError(t, err)
	store.AssertNotCalled(t, "ApplyPendingChange", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestApplyDueChangesExpiresCancellations(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	current := proPlan()
	sub := activeSub(current, plan.CycleMonthly)
	sub.CancelAtPeriodEnd = true

	store.On("ListDuePendingChanges", mock.Anything, testNow).Return([]*Subscription{}, nil)
	store.On("ListDueCancellations", mock.Anything, testNow).Return([]*Subscription{sub}, nil)
	store.On("MarkExpired", mock.Anything, sub.ID, testNow).Return(nil)
	store.On("InsertHistory", mock.Anything, mock.MatchedBy(func(h *History) bool {
		return h.Action == ActionExpired && h.Status == StatusExpired
	})).Return(nil)

	err := svc.ApplyDueChanges(context.Background())
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestApplyDueChangesPropagatesListError(t *testing.T) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	svc := newTestService(store, catalog)

	dbErr := errors.New("connection refused")
	store.On("ListDuePendingChanges", mock.Anything, testNow).Return(nil, dbErr)

	err := svc.ApplyDueChanges(context.Background())
	assert.ErrorIs(t, err, dbErr)
}
