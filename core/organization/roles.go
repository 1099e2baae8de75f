package organization

import "github.com/pkg/errors"

// Role is a member's role within an Organization.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

var (
	ErrInvalidRole = errors.New("invalid role")

	roleRanks = map[Role]int{
		RoleOwner:   40,
		RoleAdmin:   30,
		RoleManager: 20,
		RoleMember:  10,
	}

	// AllRoles is ordered from the highest rank down.
	AllRoles = []Role{RoleOwner, RoleAdmin, RoleManager, RoleMember}
)

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank is 0 for unknown roles.
func (r Role) Rank() int { return roleRanks[r] }

func (r Role) Outranks(other Role) bool { return r.Rank() > other.Rank() }

func (r Role) AtLeast(other Role) bool { return r.Rank() >= other.Rank() }

// CanManage reports whether a member with role r may change or remove a member with role target.
// Owners may manage anyone; everybody else only strictly lower roles.
func (r Role) CanManage(target Role) bool {
	return r == RoleOwner || r.Outranks(target)
}

// CanGrant reports whether a member with role r may hand out role.
func (r Role) CanGrant(role Role) bool {
	return role.Valid() && r.AtLeast(role) && r.AtLeast(RoleManager)
}
