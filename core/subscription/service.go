package subscription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/core"
)

var (
	ErrNotFound    = errors.New("subscription not found")
	ErrUnknownPlan = errors.New("unknown plan")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		GetSubscription(ctx context.Context, orgID string) (Subscription, error)
		SaveSubscription(ctx context.Context, sub Subscription) (Subscription, error)
	}

	// UsageCounter reports an organization's current usage.
	UsageCounter interface {
		Usage(ctx context.Context, orgID string) (Usage, error)
	}

	Service struct {
		repo    Repository
		catalog *Catalog
		usage   UsageCounter
	}
)

func NewService(repo Repository, catalog *Catalog) *Service {
	return &Service{repo: repo, catalog: catalog}
}

// SetUsageCounter plugs the usage source used to refuse downgrades.
// Usage spans several domains, so it is wired after construction.
func (svc *Service) SetUsageCounter(uc UsageCounter) {
	svc.usage = uc
}

func (svc *Service) Catalog() *Catalog { return svc.catalog }

// Usage reports the organization's current usage, all zeros when no counter is plugged.
func (svc *Service) Usage(ctx context.Context, orgID string) (Usage, error) {
	if svc.usage == nil {
		return Usage{}, nil
	}
	usage, err := svc.usage.Usage(ctx, orgID)
	return usage, errors.Wrap(err, "computing usage")
}

// Get returns the organization's subscription; organizations without one are on the free plan.
func (svc *Service) Get(ctx context.Context, orgID string) (Subscription, error) {
	sub, err := svc.repo.GetSubscription(ctx, orgID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			now := NowFunc().UTC()
			return Subscription{OrgID: orgID, Plan: PlanFree, Status: StatusActive, CreatedAt: now, UpdatedAt: now}, nil
		}
		return Subscription{}, errors.Wrap(err, "getting subscription")
	}
	return sub, nil
}

func (svc *Service) EffectivePlan(ctx context.Context, orgID string) (Plan, error) {
	sub, err := svc.Get(ctx, orgID)
	if err != nil {
		return Plan{}, err
	}
	return svc.PlanFor(sub), nil
}

// PlanFor resolves the plan a subscription entitles to right now.
func (svc *Service) PlanFor(sub Subscription) Plan {
	if p, ok := svc.catalog.Get(sub.EffectivePlanID(NowFunc())); ok {
		return p
	}
	return svc.catalog.Free()
}

// Start puts a new organization on the free plan.
func (svc *Service) Start(ctx context.Context, orgID string) (Subscription, error) {
	now := NowFunc().UTC()
	return svc.repo.SaveSubscription(ctx, Subscription{
		OrgID:     orgID,
		Plan:      PlanFree,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// ChangePlan records a plan change. Moving to a plan whose limits the current usage exceeds is refused.
func (svc *Service) ChangePlan(ctx context.Context, orgID string, cp ChangePlan) (Subscription, error) {
	plan, ok := svc.catalog.Get(cp.Plan)
	if !ok {
		return Subscription{}, core.NewValidationError(ErrUnknownPlan, core.FieldError{Field: "plan", Error: ErrUnknownPlan.Error()})
	}
	if cp.Status == "" {
		cp.Status = StatusActive
	} else if !cp.Status.Valid() {
		return Subscription{}, core.NewValidationError(nil, core.FieldError{Field: "status", Error: "invalid status"})
	}

	if svc.usage != nil {
		usage, err := svc.usage.Usage(ctx, orgID)
		if err != nil {
			return Subscription{}, errors.Wrap(err, "computing usage")
		}
		if over := plan.Exceeded(usage); len(over) > 0 {
			return Subscription{}, core.NewValidationError(nil, core.FieldError{
				Field: "plan",
				Error: fmt.Sprintf("current usage exceeds the %s plan: %s", plan.Name, strings.Join(over, ", ")),
			})
		}
	}

	sub, err := svc.Get(ctx, orgID)
	if err != nil {
		return Subscription{}, err
	}
	sub.Plan = plan.ID
	sub.Status = cp.Status
	sub.CurrentPeriodEnd = cp.CurrentPeriodEnd
	sub.UpdatedAt = NowFunc().UTC()
	return svc.repo.SaveSubscription(ctx, sub)
}
