package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/organization"
	"github.com/trezcool/wellbeing/core/subscription"
	"github.com/trezcool/wellbeing/core/user"
)

var (
	freePlan = subscription.Plan{ID: subscription.PlanFree, Name: "Free"}
	proPlan  = subscription.Plan{
		ID:   subscription.PlanPro,
		Name: "Pro",
		Features: []subscription.Feature{
			subscription.FeatureCustomQuestions, subscription.FeatureActionPlans, subscription.FeatureExport,
		},
	}
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		role    organization.Role
		plan    subscription.Plan
		granted []Permission
		denied  []Permission
	}{
		{
			name: "unknown role", role: "lol", plan: proPlan,
			denied: []Permission{ViewOrg},
		},
		{
			name: "member", role: organization.RoleMember, plan: proPlan,
			granted: []Permission{ViewOrg},
			denied:  []Permission{ManageSurveys, ViewResults, ManageMembers},
		},
		{
			name: "manager on free", role: organization.RoleManager, plan: freePlan,
			granted: []Permission{ViewOrg, ManageSurveys, ViewResults, ManageTeams},
			denied:  []Permission{ManageActionPlans, ManageCustomQuestions, ManageMembers, ExportResults},
		},
		{
			name: "manager on pro", role: organization.RoleManager, plan: proPlan,
			granted: []Permission{ManageActionPlans, ManageCustomQuestions},
			denied:  []Permission{ExportResults, ManageMembers},
		},
		{
			name: "admin on pro", role: organization.RoleAdmin, plan: proPlan,
			granted: []Permission{ManageMembers, ExportResults, ManageOrg},
			denied:  []Permission{DeleteOrg, ManageBilling},
		},
		{
			name: "owner on free", role: organization.RoleOwner, plan: freePlan,
			granted: []Permission{DeleteOrg, ManageBilling, ManageMembers},
			denied:  []Permission{ExportResults},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perms := Resolve(tt.role, tt.plan)
			for _, p := range tt.granted {
				assert.True(t, perms.Has(p), "expected %s", p)
			}
			for _, p := range tt.denied {
				assert.False(t, perms.Has(p), "unexpected %s", p)
			}
		})
	}
}

func TestBlocked(t *testing.T) {
	assert.Equal(t, []Permission{ExportResults, ManageActionPlans, ManageCustomQuestions}, Blocked(organization.RoleOwner, freePlan))
	assert.Equal(t, []Permission{ManageActionPlans, ManageCustomQuestions}, Blocked(organization.RoleManager, freePlan))
	assert.Empty(t, Blocked(organization.RoleMember, freePlan))
	assert.Empty(t, Blocked(organization.RoleOwner, proPlan))
}

func TestContext_Require(t *testing.T) {
	ctx := Context{
		Member:      organization.Member{Role: organization.RoleManager},
		Plan:        freePlan,
		Permissions: Resolve(organization.RoleManager, freePlan),
	}
	assert.NoError(t, ctx.Require(ManageSurveys))

	err := ctx.Require(ManageActionPlans)
	require.Error(t, err)
	assert.True(t, core.IsForbidden(err))
	assert.Contains(t, err.Error(), "action plans")

	err = ctx.Require(ManageMembers)
	require.Error(t, err)
	assert.Equal(t, "permission denied", err.Error())
}

type fakeOrgs struct {
	org     organization.Organization
	members map[string]organization.Member
}

func (f fakeOrgs) Get(_ context.Context, id string) (organization.Organization, error) {
	if id != f.org.ID {
		return organization.Organization{}, organization.ErrNotFound
	}
	return f.org, nil
}

func (f fakeOrgs) GetMember(_ context.Context, _, userID string) (organization.Member, error) {
	if m, ok := f.members[userID]; ok {
		return m, nil
	}
	return organization.Member{}, organization.ErrNotMember
}

type fakePlans struct {
	catalog *subscription.Catalog
	plan    subscription.PlanID
}

func (f fakePlans) EffectivePlan(context.Context, string) (subscription.Plan, error) {
	p, _ := f.catalog.Get(f.plan)
	return p, nil
}

func (f fakePlans) Catalog() *subscription.Catalog { return f.catalog }

func TestResolver(t *testing.T) {
	catalog, err := subscription.ParseCatalog([]byte(`
plans:
  - id: free
    name: Free
  - id: pro
    name: Pro
    features: [custom_questions, action_plans, export]
`))
	require.NoError(t, err)

	admin := user.User{ID: "admin", Roles: []string{user.RolePlatformAdmin}}
	manager := user.User{ID: "manager"}
	outsider := user.User{ID: "outsider"}
	orgs := fakeOrgs{
		org: organization.Organization{ID: "org"},
		members: map[string]organization.Member{
			"manager": {OrgID: "org", UserID: "manager", Role: organization.RoleManager},
		},
	}
	r := &Resolver{orgs: orgs, plans: fakePlans{catalog: catalog, plan: subscription.PlanFree}, testingEnabled: true}
	bg := context.Background()

	t.Run("member", func(t *testing.T) {
		ac, err := r.Resolve(bg, manager, "org", Override{})
		require.NoError(t, err)
		assert.False(t, ac.Testing)
		assert.Equal(t, subscription.PlanFree, ac.Plan.ID)
		assert.True(t, ac.Can(ManageSurveys))
		assert.False(t, ac.Can(ManageActionPlans))
	})
	t.Run("unknown org", func(t *testing.T) {
		_, err := r.Resolve(bg, manager, "lol", Override{})
		assert.Equal(t, organization.ErrNotFound, err)
	})
	t.Run("outsider", func(t *testing.T) {
		_, err := r.Resolve(bg, outsider, "org", Override{})
		assert.Equal(t, organization.ErrNotMember, err)
	})
	t.Run("override ignored for non admins", func(t *testing.T) {
		ac, err := r.Resolve(bg, manager, "org", Override{Plan: subscription.PlanPro, Role: organization.RoleOwner})
		require.NoError(t, err)
		assert.False(t, ac.Testing)
		assert.Equal(t, organization.RoleManager, ac.Member.Role)
		assert.Equal(t, subscription.PlanFree, ac.Plan.ID)
	})
	t.Run("admin previews as owner on pro", func(t *testing.T) {
		ac, err := r.Resolve(bg, admin, "org", Override{Plan: subscription.PlanPro, Role: organization.RoleOwner})
		require.NoError(t, err)
		assert.True(t, ac.Testing)
		assert.Equal(t, organization.RoleOwner, ac.Member.Role)
		assert.True(t, ac.Can(ExportResults))
	})
	t.Run("plan only override still needs membership", func(t *testing.T) {
		_, err := r.Resolve(bg, admin, "org", Override{Plan: subscription.PlanPro})
		assert.Equal(t, organization.ErrNotMember, err)
	})
	t.Run("check override", func(t *testing.T) {
		assert.NoError(t, r.CheckOverride(manager, Override{}))
		assert.True(t, core.IsForbidden(r.CheckOverride(manager, Override{Plan: subscription.PlanPro})))
		assert.NoError(t, r.CheckOverride(admin, Override{Plan: subscription.PlanPro, Role: organization.RoleAdmin}))

		err := r.CheckOverride(admin, Override{Plan: "gold", Role: "king"})
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.Fields, 2)

		disabled := &Resolver{orgs: orgs, plans: r.plans, testingEnabled: false}
		assert.True(t, core.IsForbidden(disabled.CheckOverride(admin, Override{Plan: subscription.PlanPro})))
	})
}

func TestResolver_ResolveWrite(t *testing.T) {
	catalog, err := subscription.ParseCatalog([]byte(`
plans:
  - id: free
    name: Free
  - id: pro
    name: Pro
    features: [custom_questions, action_plans, export]
`))
	require.NoError(t, err)

	admin := user.User{ID: "admin", Roles: []string{user.RolePlatformAdmin}}
	stranger := user.User{ID: "stranger", Roles: []string{user.RolePlatformAdmin}}
	orgs := fakeOrgs{
		org: organization.Organization{ID: "org"},
		members: map[string]organization.Member{
			"admin": {OrgID: "org", UserID: "admin", Role: organization.RoleAdmin},
		},
	}
	r := &Resolver{orgs: orgs, plans: fakePlans{catalog: catalog, plan: subscription.PlanFree}, testingEnabled: true}
	bg := context.Background()

	tests := []struct {
		name      string
		usr       user.User
		override  Override
		wantErr   error
		wantRole  organization.Role
		wantCan   []Permission
		wantCant  []Permission
		wantTests bool
	}{
		{
			name: "no override", usr: admin,
			wantRole: organization.RoleAdmin, wantCan: []Permission{ManageMembers}, wantCant: []Permission{ManageCustomQuestions},
		},
		{
			name: "simulated owner on pro keeps the real role & plan", usr: admin,
			override: Override{Role: organization.RoleOwner, Plan: subscription.PlanPro},
			wantRole: organization.RoleAdmin, wantCan: []Permission{ManageMembers},
			wantCant: []Permission{DeleteOrg, ManageBilling, ManageCustomQuestions, ExportResults}, wantTests: true,
		},
		{
			name: "simulated member narrows the role", usr: admin,
			override: Override{Role: organization.RoleMember},
			wantRole: organization.RoleMember, wantCan: []Permission{ViewOrg},
			wantCant: []Permission{ManageMembers, ManageSurveys}, wantTests: true,
		},
		{
			name: "non members cannot write", usr: stranger,
			override: Override{Role: organization.RoleOwner, Plan: subscription.PlanPro},
			wantErr:  organization.ErrNotMember,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac, err := r.ResolveWrite(bg, tt.usr, "org", tt.override)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTests, ac.Testing)
			assert.Equal(t, tt.wantRole, ac.Member.Role)
			assert.Equal(t, subscription.PlanFree, ac.Plan.ID)
			for _, perm := range tt.wantCan {
				assert.True(t, ac.Can(perm), perm)
			}
			for _, perm := range tt.wantCant {
				assert.Error(t, ac.Require(perm), perm)
			}
		})
	}
}
