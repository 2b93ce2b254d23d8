package plan

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrPlanNotFound = errors.New("plan not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

type priceRow struct {
	PlanID      string       `db:"plan_id"`
	Currency    string       `db:"currency"`
	Cycle       BillingCycle `db:"cycle"`
	AmountCents int64        `db:"amount_cents"`
}

func (r *Repository) ListPlans(ctx context.Context) ([]Plan, error) {
	plans := []Plan{}
	err := r.db.SelectContext(ctx, &plans, `
		SELECT id, plan_id, level, type, name, description, display_order, trial_days,
		       max_gyms, max_members, features, created_at
		FROM plans
		ORDER BY display_order ASC
	`)
	if err != nil {
		return nil, err
	}

	prices := []priceRow{}
	err = r.db.SelectContext(ctx, &prices, `
		SELECT plan_id, currency, cycle, amount_cents
		FROM plan_prices
	`)
	if err != nil {
		return nil, err
	}

	byPlan := map[string]Pricing{}
	for _, row := range prices {
		pricing, ok := byPlan[row.PlanID]
		if !ok {
			pricing = Pricing{}
			byPlan[row.PlanID] = pricing
		}
		if pricing[row.Currency] == nil {
			pricing[row.Currency] = map[BillingCycle]int64{}
		}
		pricing[row.Currency][row.Cycle] = row.AmountCents
	}

	for i := range plans {
		if pricing, ok := byPlan[plans[i].PlanID]; ok {
			plans[i].Pricing = pricing
		} else {
			plans[i].Pricing = Pricing{}
		}
	}

	return plans, nil
}

func (r *Repository) GetByPlanID(ctx context.Context, planID string) (*Plan, error) {
	p := &Plan{}
	err := r.db.GetContext(ctx, p, `
		SELECT id, plan_id, level, type, name, description, display_order, trial_days,
		       max_gyms, max_members, features, created_at
		FROM plans
		WHERE plan_id = $1
	`, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	prices := []priceRow{}
	err = r.db.SelectContext(ctx, &prices, `
		SELECT plan_id, currency, cycle, amount_cents
		FROM plan_prices
		WHERE plan_id = $1
	`, planID)
	if err != nil {
		return nil, err
	}

	p.Pricing = Pricing{}
	for _, row := range prices {
		if p.Pricing[row.Currency] == nil {
			p.Pricing[row.Currency] = map[BillingCycle]int64{}
		}
		p.Pricing[row.Currency][row.Cycle] = row.AmountCents
	}

	return p, nil
}
