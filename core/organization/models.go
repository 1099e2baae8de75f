package organization

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/wellbeing/core"
)

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership is an Organization seen from one of its members.
type Membership struct {
	Organization Organization `json:"organization"`
	Role         Role         `json:"role"`
	TeamID       *string      `json:"team_id"`
}

type Member struct {
	OrgID    string    `json:"org_id"`
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Role     Role      `json:"role"`
	TeamID   *string   `json:"team_id"`
	JoinedAt time.Time `json:"joined_at"`
}

type Team struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRevoked  InvitationStatus = "revoked"
	InvitationExpired  InvitationStatus = "expired"
)

type Invitation struct {
	ID         string           `json:"id"`
	OrgID      string           `json:"org_id"`
	Email      string           `json:"email"`
	Role       Role             `json:"role"`
	TeamID     *string          `json:"team_id"`
	TokenHash  string           `json:"-"`
	InvitedBy  string           `json:"invited_by"`
	Status     InvitationStatus `json:"status"`
	ExpiresAt  time.Time        `json:"expires_at"`
	CreatedAt  time.Time        `json:"created_at"`
	AcceptedAt *time.Time       `json:"accepted_at"`
}

// EffectiveStatus reports pending invitations past their expiry as expired.
func (inv Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if inv.Status == InvitationPending && !now.Before(inv.ExpiresAt) {
		return InvitationExpired
	}
	return inv.Status
}

// PendingInvitation is an invitation addressed to the current user.
type PendingInvitation struct {
	Invitation
	OrgName string `json:"org_name"`
}

// NewOrganization contains information needed to create a new Organization.
type NewOrganization struct {
	Name string `json:"name" validate:"required,max=120"`
}

func (no *NewOrganization) Validate(validate *validator.Validate) error {
	no.Name = core.CleanString(no.Name)
	return validate.Struct(no)
}

type UpdateOrganization struct {
	Name string `json:"name" validate:"required,max=120"`
}

func (uo *UpdateOrganization) Validate(validate *validator.Validate) error {
	uo.Name = core.CleanString(uo.Name)
	return validate.Struct(uo)
}

// UpdateMember defines what may be changed on a Member. Nil fields are left untouched;
// an empty TeamID removes the member from their team.
type UpdateMember struct {
	Role   *Role   `json:"role" validate:"omitempty,orgrole"`
	TeamID *string `json:"team_id"`
}

func (um *UpdateMember) Validate(validate *validator.Validate) error {
	return validate.Struct(um)
}

type NewTeam struct {
	Name        string `json:"name" validate:"required,max=80"`
	Description string `json:"description" validate:"max=500"`
}

func (nt *NewTeam) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Description = core.CleanString(nt.Description)
	return validate.Struct(nt)
}

type NewInvitation struct {
	Email  string  `json:"email" validate:"required,email"`
	Role   Role    `json:"role" validate:"required,orgrole"`
	TeamID *string `json:"team_id"`
}

func (ni *NewInvitation) Validate(validate *validator.Validate) error {
	ni.Email = core.CleanString(ni.Email, true /* lower */)
	return validate.Struct(ni)
}

type MemberFilter struct {
	Search string
	Role   Role
	TeamID string
}

func (mf *MemberFilter) Clean() {
	mf.Search = core.CleanString(mf.Search)
}

// Match reports whether m satisfies every set field of the filter.
func (mf MemberFilter) Match(m Member) bool {
	if mf.Search != "" {
		s := strings.ToLower(mf.Search)
		if !strings.Contains(strings.ToLower(m.Name), s) && !strings.Contains(strings.ToLower(m.Email), s) {
			return false
		}
	}
	if mf.Role != "" && m.Role != mf.Role {
		return false
	}
	if mf.TeamID != "" && (m.TeamID == nil || *m.TeamID != mf.TeamID) {
		return false
	}
	return true
}

var slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns an organization name into its URL friendly form.
func Slugify(name string) string {
	slug := slugInvalidChars.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	if slug == "" {
		slug = "org"
	}
	return slug
}
