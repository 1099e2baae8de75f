// Package access resolves what a caller may do inside an organization, from their role and the
// organization's plan, optionally overridden by testing mode.
package access

import (
	"sort"

	"github.com/trezcool/wellbeing/core/organization"
	"github.com/trezcool/wellbeing/core/subscription"
)

type Permission string

const (
	ViewOrg               Permission = "view_org"
	ManageOrg             Permission = "manage_org"
	DeleteOrg             Permission = "delete_org"
	ManageMembers         Permission = "manage_members"
	ManageTeams           Permission = "manage_teams"
	ManageSurveys         Permission = "manage_surveys"
	ViewResults           Permission = "view_results"
	ManageActionPlans     Permission = "manage_action_plans"
	ManageCustomQuestions Permission = "manage_custom_questions"
	ExportResults         Permission = "export_results"
	ManageBilling         Permission = "manage_billing"
)

// minimum role granting each permission
var roleGrants = map[Permission]organization.Role{
	ViewOrg:               organization.RoleMember,
	ManageOrg:             organization.RoleAdmin,
	DeleteOrg:             organization.RoleOwner,
	ManageMembers:         organization.RoleAdmin,
	ManageTeams:           organization.RoleManager,
	ManageSurveys:         organization.RoleManager,
	ViewResults:           organization.RoleManager,
	ManageActionPlans:     organization.RoleManager,
	ManageCustomQuestions: organization.RoleManager,
	ExportResults:         organization.RoleAdmin,
	ManageBilling:         organization.RoleOwner,
}

// plan feature required on top of the role
var planGates = map[Permission]subscription.Feature{
	ManageActionPlans:     subscription.FeatureActionPlans,
	ManageCustomQuestions: subscription.FeatureCustomQuestions,
	ExportResults:         subscription.FeatureExport,
}

// Permissions is the resolved set of permissions of a caller in an organization.
type Permissions map[Permission]bool

func (p Permissions) Has(perm Permission) bool { return p[perm] }

// List returns the granted permissions, sorted.
func (p Permissions) List() []Permission {
	list := make([]Permission, 0, len(p))
	for perm, ok := range p {
		if ok {
			list = append(list, perm)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

// Resolve computes the permissions granted by role under plan.
func Resolve(role organization.Role, plan subscription.Plan) Permissions {
	perms := make(Permissions, len(roleGrants))
	if !role.Valid() {
		return perms
	}
	for perm, minRole := range roleGrants {
		if !role.AtLeast(minRole) {
			continue
		}
		if feature, gated := planGates[perm]; gated && !plan.Has(feature) {
			continue
		}
		perms[perm] = true
	}
	return perms
}

// Blocked lists the permissions role would hold but plan withholds, so clients can offer upgrades.
func Blocked(role organization.Role, plan subscription.Plan) []Permission {
	var blocked []Permission
	for perm, feature := range planGates {
		if role.AtLeast(roleGrants[perm]) && !plan.Has(feature) {
			blocked = append(blocked, perm)
		}
	}
	sort.Slice(blocked, func(i, j int) bool { return blocked[i] < blocked[j] })
	return blocked
}
