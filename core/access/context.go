package access

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/organization"
	"github.com/trezcool/wellbeing/core/subscription"
	"github.com/trezcool/wellbeing/core/user"
)

var ErrTestingModeDisabled = errors.New("testing mode is disabled")

// Override simulates a plan and/or a role for its holder. Empty fields are not overridden.
type Override struct {
	Plan subscription.PlanID `json:"plan,omitempty"`
	Role organization.Role   `json:"role,omitempty"`
}

func (o Override) IsZero() bool { return o.Plan == "" && o.Role == "" }

// Context is the resolved access of a user to an organization.
type Context struct {
	Org         organization.Organization `json:"organization"`
	Member      organization.Member       `json:"member"`
	Plan        subscription.Plan         `json:"plan"`
	Permissions Permissions               `json:"-"`
	Testing     bool                      `json:"testing"`
}

func (c Context) Can(perm Permission) bool { return c.Permissions.Has(perm) }

// Require returns a forbidden error when the context lacks perm, naming the plan when that is the reason.
func (c Context) Require(perm Permission) error {
	if c.Can(perm) {
		return nil
	}
	if feature, gated := planGates[perm]; gated && c.Member.Role.AtLeast(roleGrants[perm]) {
		if err := c.Plan.RequireFeature(feature); err != nil {
			return err
		}
	}
	return core.NewForbiddenError("permission denied")
}

type (
	memberSource interface {
		Get(ctx context.Context, id string) (organization.Organization, error)
		GetMember(ctx context.Context, orgID, userID string) (organization.Member, error)
	}

	planSource interface {
		EffectivePlan(ctx context.Context, orgID string) (subscription.Plan, error)
		Catalog() *subscription.Catalog
	}

	// Resolver builds access Contexts from the organization & subscription services.
	Resolver struct {
		orgs           memberSource
		plans          planSource
		testingEnabled bool
	}
)

func NewResolver(orgs *organization.Service, plans *subscription.Service, conf *core.Config) *Resolver {
	return &Resolver{orgs: orgs, plans: plans, testingEnabled: conf.TestingModeEnabled}
}

// CheckOverride validates an override requested by usr.
func (r *Resolver) CheckOverride(usr user.User, o Override) error {
	if o.IsZero() {
		return nil
	}
	if !r.testingEnabled {
		return core.NewForbiddenError(ErrTestingModeDisabled.Error())
	}
	if !usr.IsPlatformAdmin() {
		return core.NewForbiddenError("only platform admins can use testing mode")
	}
	var flds []core.FieldError
	if o.Plan != "" {
		if _, ok := r.plans.Catalog().Get(o.Plan); !ok {
			flds = append(flds, core.FieldError{Field: "plan", Error: subscription.ErrUnknownPlan.Error()})
		}
	}
	if o.Role != "" && !o.Role.Valid() {
		flds = append(flds, core.FieldError{Field: "role", Error: organization.ErrInvalidRole.Error()})
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// Resolve fetches usr's role in orgID and the organization's plan, then applies o.
// Without an override, non-members get organization.ErrNotMember.
// An override role stands in for the real membership, which lets platform admins preview any organization.
func (r *Resolver) Resolve(ctx context.Context, usr user.User, orgID string, o Override) (Context, error) {
	org, err := r.orgs.Get(ctx, orgID)
	if err != nil {
		return Context{}, err
	}

	testing := !o.IsZero() && r.testingEnabled && usr.IsPlatformAdmin()

	member, err := r.orgs.GetMember(ctx, orgID, usr.ID)
	if err != nil {
		if errors.Cause(err) != organization.ErrNotMember || !(testing && o.Role != "") {
			return Context{}, err
		}
		member = organization.Member{OrgID: orgID, UserID: usr.ID, Name: usr.Name, Email: usr.Email}
	}

	plan, err := r.plans.EffectivePlan(ctx, orgID)
	if err != nil {
		return Context{}, errors.Wrap(err, "resolving plan")
	}

	if testing {
		if o.Role != "" {
			member.Role = o.Role
		}
		if o.Plan != "" {
			if p, ok := r.plans.Catalog().Get(o.Plan); ok {
				plan = p
			}
		}
	}

	return Context{
		Org:         org,
		Member:      member,
		Plan:        plan,
		Permissions: Resolve(member.Role, plan),
		Testing:     testing,
	}, nil
}

// ResolveWrite resolves usr's access for a mutation. Testing mode only ever narrows access here:
// the real membership & plan apply, and the override can only take permissions away.
func (r *Resolver) ResolveWrite(ctx context.Context, usr user.User, orgID string, o Override) (Context, error) {
	acc, err := r.Resolve(ctx, usr, orgID, Override{})
	if err != nil {
		return Context{}, err
	}
	sim, err := r.Resolve(ctx, usr, orgID, o)
	if err != nil {
		return Context{}, err
	}
	if !sim.Testing {
		return acc, nil
	}

	if acc.Member.Role.Outranks(sim.Member.Role) {
		acc.Member.Role = sim.Member.Role
	}
	for perm := range acc.Permissions {
		if !sim.Permissions.Has(perm) {
			delete(acc.Permissions, perm)
		}
	}
	acc.Testing = true
	return acc, nil
}
