package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/subscription"
	"github.com/trezcool/wellbeing/core/survey"
	"github.com/trezcool/wellbeing/testutil"
)

func TestCatalog(t *testing.T) {
	catalog := testutil.LoadCatalog(t)

	plans := catalog.Plans()
	require.Len(t, plans, 3)
	assert.Equal(t, subscription.PlanFree, plans[0].ID)
	assert.Equal(t, subscription.PlanFree, catalog.Free().ID)

	pro, ok := catalog.Get(subscription.PlanPro)
	require.True(t, ok)
	assert.True(t, pro.Has(subscription.FeatureExport))
	assert.False(t, pro.Has(subscription.FeatureTeamReports))

	_, err := subscription.ParseCatalog([]byte("plans: [{id: pro, name: Pro}]"))
	assert.Error(t, err, "a free plan is required")
}

func TestPlan_limits(t *testing.T) {
	free := testutil.LoadCatalog(t).Free()

	assert.NoError(t, subscription.RequireRoom(0, 1000, "things"))
	assert.NoError(t, subscription.RequireRoom(2, 1, "things"))
	err := subscription.RequireRoom(2, 2, "things")
	assert.True(t, core.IsForbidden(err))
	assert.Equal(t, "plan limit reached: at most 2 things", err.Error())

	err = free.RequireFeature(subscription.FeatureActionPlans)
	assert.True(t, core.IsForbidden(err))
	assert.Equal(t, "the Free plan does not include action plans", err.Error())

	assert.Empty(t, free.Exceeded(subscription.Usage{Members: 10, ActiveSurveys: 1}))
	assert.Equal(t, []string{"max_members", "max_active_surveys"}, free.Exceeded(subscription.Usage{Members: 11, ActiveSurveys: 2}))
}

func TestSubscription_EffectivePlanID(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		sub  subscription.Subscription
		want subscription.PlanID
	}{
		{"active", subscription.Subscription{Plan: subscription.PlanPro, Status: subscription.StatusActive}, subscription.PlanPro},
		{"trialing", subscription.Subscription{Plan: subscription.PlanPro, Status: subscription.StatusTrialing, CurrentPeriodEnd: &future}, subscription.PlanPro},
		{"period over", subscription.Subscription{Plan: subscription.PlanPro, Status: subscription.StatusActive, CurrentPeriodEnd: &past}, subscription.PlanFree},
		{"past due", subscription.Subscription{Plan: subscription.PlanPro, Status: subscription.StatusPastDue}, subscription.PlanFree},
		{"canceled", subscription.Subscription{Plan: subscription.PlanEnterprise, Status: subscription.StatusCanceled}, subscription.PlanFree},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.EffectivePlanID(now))
		})
	}
}

func TestService_ChangePlan(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	org, owner := env.CreateOrg(t, "Acme", subscription.PlanPro)

	plan, err := env.Subs.EffectivePlan(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.PlanPro, plan.ID)

	var verr *core.ValidationError
	_, err = env.Subs.ChangePlan(ctx, org.ID, subscription.ChangePlan{Plan: "gold"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, subscription.ErrUnknownPlan, verr.Err)

	_, err = env.Subs.ChangePlan(ctx, org.ID, subscription.ChangePlan{Plan: subscription.PlanFree, Status: "lol"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Fields[0].Field)

	// 2 open surveys do not fit the free plan
	for _, name := range []string{"Q1", "Q2"} {
		_, err = env.Surveys.CreateTemplate(ctx, org.ID, owner.ID, plan, survey.NewTemplate{Name: name, SurveyDate: time.Now()})
		require.NoError(t, err)
	}
	_, err = env.Subs.ChangePlan(ctx, org.ID, subscription.ChangePlan{Plan: subscription.PlanFree})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields[0].Error, "max_active_surveys")

	sub, err := env.Subs.ChangePlan(ctx, org.ID, subscription.ChangePlan{Plan: subscription.PlanEnterprise, Status: subscription.StatusTrialing})
	require.NoError(t, err)
	assert.Equal(t, subscription.PlanEnterprise, sub.Plan)
	assert.Equal(t, subscription.StatusTrialing, sub.Status)
}

func TestService_Get_defaultsToFree(t *testing.T) {
	env := testutil.NewEnv(t)

	sub, err := env.Subs.Get(context.Background(), "no-such-org")
	require.NoError(t, err)
	assert.Equal(t, subscription.PlanFree, sub.Plan)
	assert.Equal(t, subscription.StatusActive, sub.Status)
}
