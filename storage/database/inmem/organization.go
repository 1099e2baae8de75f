package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/organization"
)

type orgRepository struct {
	db *DB
}

var _ organization.Repository = (*orgRepository)(nil) // interface compliance check

func NewOrganizationRepository(db *DB) *orgRepository {
	return &orgRepository{db: db}
}

// member returns a copy of m with the user's current name & email.
func (repo *orgRepository) member(m *organization.Member) organization.Member {
	cp := *m
	cp.TeamID = copyStrPtr(m.TeamID)
	if usr, ok := repo.db.users[m.UserID]; ok {
		cp.Name = usr.Name
		cp.Email = usr.Email
	}
	return cp
}

func (repo *orgRepository) SlugExists(_ context.Context, slug string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, org := range repo.db.orgs {
		if org.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (repo *orgRepository) CreateOrganization(_ context.Context, org organization.Organization, owner organization.Member) (organization.Organization, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	org.ID = newID()
	repo.db.orgs[org.ID] = &org
	owner.OrgID = org.ID
	repo.db.members[org.ID] = map[string]*organization.Member{owner.UserID: &owner}
	return org, nil
}

func (repo *orgRepository) GetOrganization(_ context.Context, id string) (organization.Organization, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if org, ok := repo.db.orgs[id]; ok {
		return *org, nil
	}
	return organization.Organization{}, organization.ErrNotFound
}

func (repo *orgRepository) QueryOrganizations(_ context.Context, search string) ([]organization.Organization, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	search = strings.ToLower(search)
	orgs := make([]organization.Organization, 0, len(repo.db.orgs))
	for _, org := range repo.db.orgs {
		if search == "" || strings.Contains(strings.ToLower(org.Name), search) || strings.Contains(org.Slug, search) {
			orgs = append(orgs, *org)
		}
	}
	sort.Slice(orgs, func(i, j int) bool { return strings.ToLower(orgs[i].Name) < strings.ToLower(orgs[j].Name) })
	return orgs, nil
}

func (repo *orgRepository) ListMemberships(_ context.Context, userID string) ([]organization.Membership, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var mships []organization.Membership
	for orgID, members := range repo.db.members {
		if m, ok := members[userID]; ok {
			mships = append(mships, organization.Membership{
				Organization: *repo.db.orgs[orgID],
				Role:         m.Role,
				TeamID:       copyStrPtr(m.TeamID),
			})
		}
	}
	sort.Slice(mships, func(i, j int) bool {
		return strings.ToLower(mships[i].Organization.Name) < strings.ToLower(mships[j].Organization.Name)
	})
	return mships, nil
}

func (repo *orgRepository) UpdateOrganization(_ context.Context, org organization.Organization) (organization.Organization, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.orgs[org.ID]; !ok {
		return organization.Organization{}, organization.ErrNotFound
	}
	repo.db.orgs[org.ID] = &org
	return org, nil
}

// DeleteOrganization removes the organization & everything it owns.
func (repo *orgRepository) DeleteOrganization(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.orgs[id]; !ok {
		return organization.ErrNotFound
	}
	delete(repo.db.orgs, id)
	delete(repo.db.members, id)
	delete(repo.db.subscriptions, id)
	for tid, t := range repo.db.teams {
		if t.OrgID == id {
			delete(repo.db.teams, tid)
		}
	}
	for iid, inv := range repo.db.invitations {
		if inv.OrgID == id {
			delete(repo.db.invitations, iid)
		}
	}
	for sid, tmpl := range repo.db.templates {
		if tmpl.OrgID == id {
			repo.db.deleteTemplate(sid)
		}
	}
	for qid, q := range repo.db.questions {
		if q.OrgID == id {
			delete(repo.db.questions, qid)
		}
	}
	return nil
}

// Members

func (repo *orgRepository) GetMember(_ context.Context, orgID, userID string) (organization.Member, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if m, ok := repo.db.members[orgID][userID]; ok {
		return repo.member(m), nil
	}
	return organization.Member{}, organization.ErrNotMember
}

func (repo *orgRepository) QueryMembers(_ context.Context, orgID string, filter organization.MemberFilter, page core.Pagination) ([]organization.Member, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	members := make([]organization.Member, 0, len(repo.db.members[orgID]))
	for _, m := range repo.db.members[orgID] {
		if mem := repo.member(m); filter.Match(mem) {
			members = append(members, mem)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		a, b := strings.ToLower(members[i].Name), strings.ToLower(members[j].Name)
		if a == b {
			return members[i].Email < members[j].Email
		}
		return a < b
	})
	start, end := page.Window(len(members))
	return members[start:end], len(members), nil
}

func (repo *orgRepository) CountMembers(_ context.Context, orgID string, role organization.Role) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if role == "" {
		return len(repo.db.members[orgID]), nil
	}
	var n int
	for _, m := range repo.db.members[orgID] {
		if m.Role == role {
			n++
		}
	}
	return n, nil
}

func (repo *orgRepository) FindMemberByEmail(_ context.Context, orgID, email string) (organization.Member, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, m := range repo.db.members[orgID] {
		if mem := repo.member(m); strings.EqualFold(mem.Email, email) {
			return mem, nil
		}
	}
	return organization.Member{}, organization.ErrNotMember
}

func (repo *orgRepository) UpdateMember(_ context.Context, m organization.Member) (organization.Member, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.members[m.OrgID][m.UserID]
	if !ok {
		return organization.Member{}, organization.ErrNotMember
	}
	orig.Role = m.Role
	orig.TeamID = copyStrPtr(m.TeamID)
	return repo.member(orig), nil
}

func (repo *orgRepository) RemoveMember(_ context.Context, orgID, userID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.members[orgID][userID]; !ok {
		return organization.ErrNotMember
	}
	delete(repo.db.members[orgID], userID)
	for _, d := range repo.db.descriptors {
		if d.OrgID == orgID && d.AssignedTo != nil && *d.AssignedTo == userID {
			d.AssignedTo = nil
		}
	}
	return nil
}

// Teams

func (repo *orgRepository) TeamNameExists(_ context.Context, orgID, name string, excludedID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, t := range repo.db.teams {
		if t.OrgID == orgID && t.ID != excludedID && strings.EqualFold(t.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *orgRepository) CreateTeam(_ context.Context, t organization.Team) (organization.Team, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t.ID = newID()
	repo.db.teams[t.ID] = &t
	return t, nil
}

func (repo *orgRepository) GetTeam(_ context.Context, orgID, id string) (organization.Team, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.teams[id]; ok && t.OrgID == orgID {
		return *t, nil
	}
	return organization.Team{}, organization.ErrTeamNotFound
}

func (repo *orgRepository) ListTeams(_ context.Context, orgID string) ([]organization.Team, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	teams := make([]organization.Team, 0)
	for _, t := range repo.db.teams {
		if t.OrgID == orgID {
			teams = append(teams, *t)
		}
	}
	sort.Slice(teams, func(i, j int) bool { return strings.ToLower(teams[i].Name) < strings.ToLower(teams[j].Name) })
	return teams, nil
}

func (repo *orgRepository) UpdateTeam(_ context.Context, t organization.Team) (organization.Team, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if orig, ok := repo.db.teams[t.ID]; !ok || orig.OrgID != t.OrgID {
		return organization.Team{}, organization.ErrTeamNotFound
	}
	repo.db.teams[t.ID] = &t
	return t, nil
}

func (repo *orgRepository) DeleteTeam(_ context.Context, orgID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if t, ok := repo.db.teams[id]; !ok || t.OrgID != orgID {
		return organization.ErrTeamNotFound
	}
	delete(repo.db.teams, id)

	inTeam := func(teamID *string) bool { return teamID != nil && *teamID == id }
	for _, m := range repo.db.members[orgID] {
		if inTeam(m.TeamID) {
			m.TeamID = nil
		}
	}
	for _, inv := range repo.db.invitations {
		if inTeam(inv.TeamID) {
			inv.TeamID = nil
		}
	}
	for sid, resps := range repo.db.responses {
		for i := range resps {
			if inTeam(resps[i].TeamID) {
				repo.db.responses[sid][i].TeamID = nil
			}
		}
	}
	return nil
}

// Invitations

func (repo *orgRepository) CreateInvitation(_ context.Context, inv organization.Invitation) (organization.Invitation, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	inv.ID = newID()
	repo.db.invitations[inv.ID] = &inv
	return inv, nil
}

func (repo *orgRepository) GetInvitation(_ context.Context, orgID, id string) (organization.Invitation, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if inv, ok := repo.db.invitations[id]; ok && inv.OrgID == orgID {
		return *inv, nil
	}
	return organization.Invitation{}, organization.ErrInvitationNotFound
}

func (repo *orgRepository) GetInvitationByTokenHash(_ context.Context, hash string) (organization.Invitation, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, inv := range repo.db.invitations {
		if inv.TokenHash == hash {
			return *inv, nil
		}
	}
	return organization.Invitation{}, organization.ErrInvitationNotFound
}

func (repo *orgRepository) ListInvitations(_ context.Context, orgID string) ([]organization.Invitation, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	invs := make([]organization.Invitation, 0)
	for _, inv := range repo.db.invitations {
		if inv.OrgID == orgID {
			invs = append(invs, *inv)
		}
	}
	sort.Slice(invs, func(i, j int) bool { return invs[i].CreatedAt.After(invs[j].CreatedAt) })
	return invs, nil
}

func (repo *orgRepository) ListPendingInvitationsByEmail(_ context.Context, email string, now time.Time) ([]organization.PendingInvitation, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	pending := make([]organization.PendingInvitation, 0)
	for _, inv := range repo.db.invitations {
		if strings.EqualFold(inv.Email, email) && inv.EffectiveStatus(now) == organization.InvitationPending {
			pending = append(pending, organization.PendingInvitation{Invitation: *inv, OrgName: repo.db.orgs[inv.OrgID].Name})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.After(pending[j].CreatedAt) })
	return pending, nil
}

func (repo *orgRepository) CountPendingInvitations(_ context.Context, orgID string, now time.Time) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var n int
	for _, inv := range repo.db.invitations {
		if inv.OrgID == orgID && inv.EffectiveStatus(now) == organization.InvitationPending {
			n++
		}
	}
	return n, nil
}

func (repo *orgRepository) UpdateInvitation(_ context.Context, inv organization.Invitation) (organization.Invitation, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if orig, ok := repo.db.invitations[inv.ID]; !ok || orig.OrgID != inv.OrgID {
		return organization.Invitation{}, organization.ErrInvitationNotFound
	}
	repo.db.invitations[inv.ID] = &inv
	return inv, nil
}

func (repo *orgRepository) AcceptInvitation(_ context.Context, inv organization.Invitation, m organization.Member) (organization.Member, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.invitations[inv.ID]
	if !ok {
		return organization.Member{}, organization.ErrInvitationNotFound
	}
	if orig.Status != organization.InvitationPending {
		return organization.Member{}, organization.ErrInvitationInvalid
	}
	if _, ok = repo.db.members[m.OrgID][m.UserID]; ok {
		return organization.Member{}, organization.ErrAlreadyMember
	}

	repo.db.invitations[inv.ID] = &inv
	if repo.db.members[m.OrgID] == nil {
		repo.db.members[m.OrgID] = make(map[string]*organization.Member)
	}
	repo.db.members[m.OrgID][m.UserID] = &m
	return repo.member(&m), nil
}
