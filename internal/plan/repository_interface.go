package plan

import "context"

type Catalog interface {
	ListPlans(ctx context.Context) ([]Plan, error)
	GetByPlanID(ctx context.Context, planID string) (*Plan, error)
}
