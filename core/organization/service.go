package organization

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/subscription"
	"github.com/trezcool/wellbeing/core/user"
)

var (
	// errors
	ErrNotFound           = errors.New("organization not found")
	ErrNotMember          = errors.New("not a member of this organization")
	ErrTeamNotFound       = errors.New("team not found")
	ErrTeamExists         = errors.New("a team with this name already exists")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrAlreadyMember      = errors.New("this user is already a member")
	ErrAlreadyInvited     = errors.New("a pending invitation already exists for this email")
	ErrInvitationInvalid  = errors.New("invitation is no longer valid")
	ErrInvitationEmail    = errors.New("invitation was sent to another email address")
	ErrLastOwner          = errors.New("an organization needs at least one owner")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		SlugExists(ctx context.Context, slug string) (bool, error)
		// CreateOrganization stores org along with its first member.
		CreateOrganization(ctx context.Context, org Organization, owner Member) (Organization, error)
		GetOrganization(ctx context.Context, id string) (Organization, error)
		QueryOrganizations(ctx context.Context, search string) ([]Organization, error)
		ListMemberships(ctx context.Context, userID string) ([]Membership, error)
		UpdateOrganization(ctx context.Context, org Organization) (Organization, error)
		DeleteOrganization(ctx context.Context, id string) error

		GetMember(ctx context.Context, orgID, userID string) (Member, error)
		QueryMembers(ctx context.Context, orgID string, filter MemberFilter, page core.Pagination) ([]Member, int, error)
		CountMembers(ctx context.Context, orgID string, role Role) (int, error) // all roles when role is empty
		FindMemberByEmail(ctx context.Context, orgID, email string) (Member, error)
		UpdateMember(ctx context.Context, m Member) (Member, error)
		RemoveMember(ctx context.Context, orgID, userID string) error

		TeamNameExists(ctx context.Context, orgID, name string, excludedID string) (bool, error)
		CreateTeam(ctx context.Context, t Team) (Team, error)
		GetTeam(ctx context.Context, orgID, id string) (Team, error)
		ListTeams(ctx context.Context, orgID string) ([]Team, error)
		UpdateTeam(ctx context.Context, t Team) (Team, error)
		// DeleteTeam also detaches the team's members and invitations.
		DeleteTeam(ctx context.Context, orgID, id string) error

		CreateInvitation(ctx context.Context, inv Invitation) (Invitation, error)
		GetInvitation(ctx context.Context, orgID, id string) (Invitation, error)
		GetInvitationByTokenHash(ctx context.Context, hash string) (Invitation, error)
		ListInvitations(ctx context.Context, orgID string) ([]Invitation, error)
		ListPendingInvitationsByEmail(ctx context.Context, email string, now time.Time) ([]PendingInvitation, error)
		CountPendingInvitations(ctx context.Context, orgID string, now time.Time) (int, error)
		UpdateInvitation(ctx context.Context, inv Invitation) (Invitation, error)
		// AcceptInvitation marks inv accepted and adds m, atomically.
		AcceptInvitation(ctx context.Context, inv Invitation, m Member) (Member, error)
	}

	Service struct {
		repo    Repository
		subs    *subscription.Service
		mailSvc core.EmailService
		conf    *core.Config
	}
)

func NewService(repo Repository, subs *subscription.Service, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, subs: subs, mailSvc: mailSvc, conf: conf}
}

// Organizations

// Create creates an organization owned by creator, on the free plan.
func (svc *Service) Create(ctx context.Context, creator user.User, no NewOrganization) (Organization, error) {
	slug, err := svc.uniqueSlug(ctx, no.Name)
	if err != nil {
		return Organization{}, err
	}

	now := NowFunc().UTC()
	org := Organization{
		Name:      no.Name,
		Slug:      slug,
		CreatedBy: creator.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	owner := Member{
		UserID:   creator.ID,
		Name:     creator.Name,
		Email:    creator.Email,
		Role:     RoleOwner,
		JoinedAt: now,
	}
	if org, err = svc.repo.CreateOrganization(ctx, org, owner); err != nil {
		return Organization{}, errors.Wrap(err, "creating organization")
	}
	if _, err = svc.subs.Start(ctx, org.ID); err != nil {
		return Organization{}, errors.Wrap(err, "starting subscription")
	}
	return org, nil
}

func (svc *Service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := Slugify(name)
	slug := base
	for i := 2; ; i++ {
		exists, err := svc.repo.SlugExists(ctx, slug)
		if err != nil {
			return "", errors.Wrap(err, "checking slug")
		}
		if !exists {
			return slug, nil
		}
		slug = base + "-" + strconv.Itoa(i)
	}
}

func (svc *Service) Get(ctx context.Context, id string) (Organization, error) {
	return svc.repo.GetOrganization(ctx, id)
}

func (svc *Service) Query(ctx context.Context, search string) ([]Organization, error) {
	return svc.repo.QueryOrganizations(ctx, core.CleanString(search))
}

func (svc *Service) ListForUser(ctx context.Context, userID string) ([]Membership, error) {
	return svc.repo.ListMemberships(ctx, userID)
}

func (svc *Service) Update(ctx context.Context, id string, uo UpdateOrganization) (Organization, error) {
	org, err := svc.repo.GetOrganization(ctx, id)
	if err != nil {
		return Organization{}, err
	}
	org.Name = uo.Name
	org.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateOrganization(ctx, org)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteOrganization(ctx, id)
}

// Members

// MemberRole fetches the role of userID in orgID, ErrNotMember if they do not belong to it.
func (svc *Service) MemberRole(ctx context.Context, orgID, userID string) (Role, error) {
	m, err := svc.GetMember(ctx, orgID, userID)
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

func (svc *Service) GetMember(ctx context.Context, orgID, userID string) (Member, error) {
	return svc.repo.GetMember(ctx, orgID, userID)
}

func (svc *Service) QueryMembers(ctx context.Context, orgID string, filter MemberFilter, page core.Pagination) ([]Member, core.PageMeta, error) {
	filter.Clean()
	page.Clean()
	members, total, err := svc.repo.QueryMembers(ctx, orgID, filter, page)
	if err != nil {
		return nil, core.PageMeta{}, errors.Wrap(err, "querying members")
	}
	return members, core.NewPageMeta(page, total), nil
}

// UpdateMember changes the role and/or team of target on behalf of actor.
// Actors can only manage members they outrank (owners manage everyone), never grant a role above
// their own, and the last owner cannot be demoted.
func (svc *Service) UpdateMember(ctx context.Context, orgID string, actor Member, targetID string, um UpdateMember) (Member, error) {
	target, err := svc.repo.GetMember(ctx, orgID, targetID)
	if err != nil {
		return Member{}, err
	}

	if um.Role != nil && *um.Role != target.Role {
		if target.UserID == actor.UserID {
			return Member{}, core.NewForbiddenError("you cannot change your own role")
		}
		if !actor.Role.CanManage(target.Role) {
			return Member{}, core.NewForbiddenError("you cannot manage a member with this role")
		}
		if !actor.Role.CanGrant(*um.Role) {
			return Member{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: "not enough rights to set this role"})
		}
		if target.Role == RoleOwner {
			if err = svc.checkNotLastOwner(ctx, orgID); err != nil {
				return Member{}, err
			}
		}
		target.Role = *um.Role
	} else if target.UserID != actor.UserID && !actor.Role.CanManage(target.Role) {
		return Member{}, core.NewForbiddenError("you cannot manage a member with this role")
	}

	if um.TeamID != nil {
		if *um.TeamID == "" {
			target.TeamID = nil
		} else {
			if _, err = svc.repo.GetTeam(ctx, orgID, *um.TeamID); err != nil {
				if errors.Cause(err) == ErrTeamNotFound {
					return Member{}, core.NewValidationError(err, core.FieldError{Field: "team_id", Error: err.Error()})
				}
				return Member{}, err
			}
			teamID := *um.TeamID
			target.TeamID = &teamID
		}
	}
	return svc.repo.UpdateMember(ctx, target)
}

// RemoveMember removes target from the organization on behalf of actor.
func (svc *Service) RemoveMember(ctx context.Context, orgID string, actor Member, targetID string) error {
	if targetID == actor.UserID {
		return core.NewForbiddenError("use leave to remove yourself")
	}
	target, err := svc.repo.GetMember(ctx, orgID, targetID)
	if err != nil {
		return err
	}
	if !actor.Role.CanManage(target.Role) {
		return core.NewForbiddenError("you cannot manage a member with this role")
	}
	if target.Role == RoleOwner {
		if err = svc.checkNotLastOwner(ctx, orgID); err != nil {
			return err
		}
	}
	return svc.repo.RemoveMember(ctx, orgID, targetID)
}

// Leave removes userID from the organization, unless they are its last owner.
func (svc *Service) Leave(ctx context.Context, orgID, userID string) error {
	m, err := svc.repo.GetMember(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if m.Role == RoleOwner {
		if err = svc.checkNotLastOwner(ctx, orgID); err != nil {
			return err
		}
	}
	return svc.repo.RemoveMember(ctx, orgID, userID)
}

func (svc *Service) checkNotLastOwner(ctx context.Context, orgID string) error {
	owners, err := svc.repo.CountMembers(ctx, orgID, RoleOwner)
	if err != nil {
		return errors.Wrap(err, "counting owners")
	}
	if owners <= 1 {
		return core.NewForbiddenError(ErrLastOwner.Error())
	}
	return nil
}

// SeatsUsed counts members plus pending invitations, which both take a seat of the plan.
func (svc *Service) SeatsUsed(ctx context.Context, orgID string) (int, error) {
	members, err := svc.repo.CountMembers(ctx, orgID, "")
	if err != nil {
		return 0, errors.Wrap(err, "counting members")
	}
	pending, err := svc.repo.CountPendingInvitations(ctx, orgID, NowFunc())
	if err != nil {
		return 0, errors.Wrap(err, "counting invitations")
	}
	return members + pending, nil
}

// Teams

func (svc *Service) CreateTeam(ctx context.Context, orgID string, nt NewTeam) (Team, error) {
	if err := svc.checkTeamName(ctx, orgID, nt.Name, ""); err != nil {
		return Team{}, err
	}
	now := NowFunc().UTC()
	return svc.repo.CreateTeam(ctx, Team{
		OrgID:       orgID,
		Name:        nt.Name,
		Description: nt.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) checkTeamName(ctx context.Context, orgID, name, excludedID string) error {
	exists, err := svc.repo.TeamNameExists(ctx, orgID, name, excludedID)
	if err != nil {
		return errors.Wrap(err, "checking team name")
	}
	if exists {
		return core.NewValidationError(ErrTeamExists, core.FieldError{Field: "name", Error: ErrTeamExists.Error()})
	}
	return nil
}

func (svc *Service) GetTeam(ctx context.Context, orgID, id string) (Team, error) {
	return svc.repo.GetTeam(ctx, orgID, id)
}

func (svc *Service) ListTeams(ctx context.Context, orgID string) ([]Team, error) {
	return svc.repo.ListTeams(ctx, orgID)
}

func (svc *Service) UpdateTeam(ctx context.Context, orgID, id string, nt NewTeam) (Team, error) {
	team, err := svc.repo.GetTeam(ctx, orgID, id)
	if err != nil {
		return Team{}, err
	}
	if err = svc.checkTeamName(ctx, orgID, nt.Name, id); err != nil {
		return Team{}, err
	}
	team.Name = nt.Name
	team.Description = nt.Description
	team.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateTeam(ctx, team)
}

func (svc *Service) DeleteTeam(ctx context.Context, orgID, id string) error {
	if _, err := svc.repo.GetTeam(ctx, orgID, id); err != nil {
		return err
	}
	return svc.repo.DeleteTeam(ctx, orgID, id)
}

// Invitations

// Invite invites email to join the organization with the given role.
// The returned token is only ever available here; the invitation keeps its hash.
func (svc *Service) Invite(ctx context.Context, org Organization, actor Member, plan subscription.Plan, ni NewInvitation) (Invitation, string, error) {
	if !actor.Role.CanGrant(ni.Role) {
		return Invitation{}, "", core.NewValidationError(nil, core.FieldError{Field: "role", Error: "not enough rights to set this role"})
	}

	if _, err := svc.repo.FindMemberByEmail(ctx, org.ID, ni.Email); err == nil {
		return Invitation{}, "", core.NewValidationError(ErrAlreadyMember, core.FieldError{Field: "email", Error: ErrAlreadyMember.Error()})
	} else if errors.Cause(err) != ErrNotMember {
		return Invitation{}, "", errors.Wrap(err, "finding member by email")
	}

	now := NowFunc()
	invitations, err := svc.repo.ListInvitations(ctx, org.ID)
	if err != nil {
		return Invitation{}, "", errors.Wrap(err, "listing invitations")
	}
	for _, inv := range invitations {
		if inv.Email == ni.Email && inv.EffectiveStatus(now) == InvitationPending {
			return Invitation{}, "", core.NewValidationError(ErrAlreadyInvited, core.FieldError{Field: "email", Error: ErrAlreadyInvited.Error()})
		}
	}

	seats, err := svc.SeatsUsed(ctx, org.ID)
	if err != nil {
		return Invitation{}, "", err
	}
	if err = subscription.RequireRoom(plan.Limits.MaxMembers, seats, "members"); err != nil {
		return Invitation{}, "", err
	}

	if ni.TeamID != nil && *ni.TeamID != "" {
		if _, err = svc.repo.GetTeam(ctx, org.ID, *ni.TeamID); err != nil {
			if errors.Cause(err) == ErrTeamNotFound {
				return Invitation{}, "", core.NewValidationError(err, core.FieldError{Field: "team_id", Error: err.Error()})
			}
			return Invitation{}, "", err
		}
	} else {
		ni.TeamID = nil
	}

	token, err := newInvitationToken()
	if err != nil {
		return Invitation{}, "", errors.Wrap(err, "generating invitation token")
	}
	inv, err := svc.repo.CreateInvitation(ctx, Invitation{
		OrgID:     org.ID,
		Email:     ni.Email,
		Role:      ni.Role,
		TeamID:    ni.TeamID,
		TokenHash: HashInvitationToken(token),
		InvitedBy: actor.UserID,
		Status:    InvitationPending,
		ExpiresAt: now.Add(svc.conf.InvitationTimeoutDelta).UTC(),
		CreatedAt: now.UTC(),
	})
	if err != nil {
		return Invitation{}, "", errors.Wrap(err, "creating invitation")
	}

	svc.sendInvitationMail(org, actor, inv, token)
	return inv, token, nil
}

func (svc *Service) sendInvitationMail(org Organization, actor Member, inv Invitation, token string) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: inv.Email}},
		Subject:      fmt.Sprintf("You have been invited to join %s", org.Name),
		TemplateName: "invitation",
		TemplateData: map[string]interface{}{
			"OrgName":   org.Name,
			"Inviter":   actor.Name,
			"Role":      string(inv.Role),
			"ExpiresAt": inv.ExpiresAt.Format("2 January 2006"),
			"URL":       svc.conf.FrontendBaseURL + "/invitations/accept?token=" + url.QueryEscape(token),
		},
	})
}

func (svc *Service) ListInvitations(ctx context.Context, orgID string) ([]Invitation, error) {
	invitations, err := svc.repo.ListInvitations(ctx, orgID)
	if err != nil {
		return nil, err
	}
	now := NowFunc()
	for i := range invitations {
		invitations[i].Status = invitations[i].EffectiveStatus(now)
	}
	return invitations, nil
}

func (svc *Service) RevokeInvitation(ctx context.Context, orgID, id string) (Invitation, error) {
	inv, err := svc.repo.GetInvitation(ctx, orgID, id)
	if err != nil {
		return Invitation{}, err
	}
	if inv.EffectiveStatus(NowFunc()) != InvitationPending {
		return Invitation{}, core.NewValidationError(ErrInvitationInvalid)
	}
	inv.Status = InvitationRevoked
	return svc.repo.UpdateInvitation(ctx, inv)
}

func (svc *Service) PendingInvitationsFor(ctx context.Context, email string) ([]PendingInvitation, error) {
	return svc.repo.ListPendingInvitationsByEmail(ctx, core.CleanString(email, true /* lower */), NowFunc())
}

// AcceptInvitation makes usr a member of the organization the token invites them to.
func (svc *Service) AcceptInvitation(ctx context.Context, usr user.User, token string) (Member, error) {
	inv, err := svc.repo.GetInvitationByTokenHash(ctx, HashInvitationToken(token))
	if err != nil {
		if errors.Cause(err) == ErrInvitationNotFound {
			return Member{}, core.NewValidationError(ErrInvitationInvalid)
		}
		return Member{}, errors.Wrap(err, "finding invitation")
	}
	now := NowFunc()
	if inv.EffectiveStatus(now) != InvitationPending {
		return Member{}, core.NewValidationError(ErrInvitationInvalid)
	}
	if !strings.EqualFold(inv.Email, usr.Email) {
		return Member{}, core.NewForbiddenError(ErrInvitationEmail.Error())
	}
	if _, err = svc.repo.GetMember(ctx, inv.OrgID, usr.ID); err == nil {
		return Member{}, core.NewValidationError(ErrAlreadyMember)
	} else if errors.Cause(err) != ErrNotMember {
		return Member{}, errors.Wrap(err, "finding member")
	}

	acceptedAt := now.UTC()
	inv.Status = InvitationAccepted
	inv.AcceptedAt = &acceptedAt
	m := Member{
		OrgID:    inv.OrgID,
		UserID:   usr.ID,
		Name:     usr.Name,
		Email:    usr.Email,
		Role:     inv.Role,
		TeamID:   inv.TeamID,
		JoinedAt: acceptedAt,
	}
	return svc.repo.AcceptInvitation(ctx, inv, m)
}

func newInvitationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func HashInvitationToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
