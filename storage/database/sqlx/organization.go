package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/organization"
)

const (
	orgColumns        = `id, name, slug, created_by, created_at, updated_at`
	teamColumns       = `id, org_id, name, description, created_at, updated_at`
	invitationColumns = `id, org_id, email, role, team_id, token_hash, invited_by, status, expires_at, created_at, accepted_at`
	memberSelect      = `
		SELECT m.org_id, m.user_id, u.name, u.email, m.role, m.team_id, m.joined_at
		FROM membership m JOIN "user" u ON u.id = m.user_id`
)

type (
	orgRow struct {
		ID        string         `db:"id"`
		Name      string         `db:"name"`
		Slug      string         `db:"slug"`
		CreatedBy sql.NullString `db:"created_by"`
		CreatedAt time.Time      `db:"created_at"`
		UpdatedAt time.Time      `db:"updated_at"`
	}

	memberRow struct {
		OrgID    string         `db:"org_id"`
		UserID   string         `db:"user_id"`
		Name     string         `db:"name"`
		Email    string         `db:"email"`
		Role     string         `db:"role"`
		TeamID   sql.NullString `db:"team_id"`
		JoinedAt time.Time      `db:"joined_at"`
	}

	membershipRow struct {
		orgRow
		Role   string         `db:"role"`
		TeamID sql.NullString `db:"team_id"`
	}

	teamRow struct {
		ID          string    `db:"id"`
		OrgID       string    `db:"org_id"`
		Name        string    `db:"name"`
		Description string    `db:"description"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}

	invitationRow struct {
		ID         string         `db:"id"`
		OrgID      string         `db:"org_id"`
		Email      string         `db:"email"`
		Role       string         `db:"role"`
		TeamID     sql.NullString `db:"team_id"`
		TokenHash  string         `db:"token_hash"`
		InvitedBy  sql.NullString `db:"invited_by"`
		Status     string         `db:"status"`
		ExpiresAt  time.Time      `db:"expires_at"`
		CreatedAt  time.Time      `db:"created_at"`
		AcceptedAt sql.NullTime   `db:"accepted_at"`
	}

	pendingInvitationRow struct {
		invitationRow
		OrgName string `db:"org_name"`
	}
)

func (r orgRow) organization() organization.Organization {
	return organization.Organization{
		ID:        r.ID,
		Name:      r.Name,
		Slug:      r.Slug,
		CreatedBy: r.CreatedBy.String,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (r memberRow) member() organization.Member {
	return organization.Member{
		OrgID:    r.OrgID,
		UserID:   r.UserID,
		Name:     r.Name,
		Email:    r.Email,
		Role:     organization.Role(r.Role),
		TeamID:   strPtr(r.TeamID),
		JoinedAt: r.JoinedAt.UTC(),
	}
}

func (r teamRow) team() organization.Team {
	return organization.Team{
		ID:          r.ID,
		OrgID:       r.OrgID,
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (r invitationRow) invitation() organization.Invitation {
	return organization.Invitation{
		ID:         r.ID,
		OrgID:      r.OrgID,
		Email:      r.Email,
		Role:       organization.Role(r.Role),
		TeamID:     strPtr(r.TeamID),
		TokenHash:  r.TokenHash,
		InvitedBy:  r.InvitedBy.String,
		Status:     organization.InvitationStatus(r.Status),
		ExpiresAt:  r.ExpiresAt.UTC(),
		CreatedAt:  r.CreatedAt.UTC(),
		AcceptedAt: timePtr(r.AcceptedAt),
	}
}

type orgRepository struct {
	db *sqlx.DB
}

var _ organization.Repository = (*orgRepository)(nil) // interface compliance check

func NewOrganizationRepository(db *sqlx.DB) *orgRepository {
	return &orgRepository{db: db}
}

func (repo *orgRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM organization WHERE slug = $1)`, slug)
	return exists, errors.Wrap(err, "checking slug")
}

func insertMember(ctx context.Context, tx *sqlx.Tx, m organization.Member) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO membership (org_id, user_id, role, team_id, joined_at) VALUES ($1, $2, $3, $4, $5)`,
		m.OrgID, m.UserID, string(m.Role), nullString(m.TeamID), m.JoinedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return organization.ErrAlreadyMember
		}
		return errors.Wrap(err, "inserting member")
	}
	return nil
}

func (repo *orgRepository) CreateOrganization(ctx context.Context, org organization.Organization, owner organization.Member) (organization.Organization, error) {
	org.ID = uuid.New().String()
	owner.OrgID = org.ID
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO organization (`+orgColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
			org.ID, org.Name, org.Slug, nullString(&org.CreatedBy), org.CreatedAt.UTC(), org.UpdatedAt.UTC())
		if err != nil {
			return errors.Wrap(err, "inserting organization")
		}
		return insertMember(ctx, tx, owner)
	})
	if err != nil {
		return organization.Organization{}, err
	}
	return org, nil
}

func (repo *orgRepository) GetOrganization(ctx context.Context, id string) (organization.Organization, error) {
	if !isUUID(id) {
		return organization.Organization{}, organization.ErrNotFound
	}
	var row orgRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+orgColumns+` FROM organization WHERE id = $1`, id); err != nil {
		return organization.Organization{}, trapNoRows(err, organization.ErrNotFound, "getting organization")
	}
	return row.organization(), nil
}

func (repo *orgRepository) QueryOrganizations(ctx context.Context, search string) ([]organization.Organization, error) {
	var w where
	if search != "" {
		pattern := likePattern(search)
		w.add("(name ILIKE ? OR slug ILIKE ?)", pattern, pattern)
	}
	var rows []orgRow
	q := repo.db.Rebind(`SELECT ` + orgColumns + ` FROM organization` + w.String() + ` ORDER BY LOWER(name)`)
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying organizations")
	}
	orgs := make([]organization.Organization, 0, len(rows))
	for _, r := range rows {
		orgs = append(orgs, r.organization())
	}
	return orgs, nil
}

func (repo *orgRepository) ListMemberships(ctx context.Context, userID string) ([]organization.Membership, error) {
	if !isUUID(userID) {
		return nil, nil
	}
	var rows []membershipRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT o.id, o.name, o.slug, o.created_by, o.created_at, o.updated_at, m.role, m.team_id
		FROM membership m JOIN organization o ON o.id = m.org_id
		WHERE m.user_id = $1
		ORDER BY LOWER(o.name)`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing memberships")
	}
	mships := make([]organization.Membership, 0, len(rows))
	for _, r := range rows {
		mships = append(mships, organization.Membership{
			Organization: r.organization(),
			Role:         organization.Role(r.Role),
			TeamID:       strPtr(r.TeamID),
		})
	}
	return mships, nil
}

func (repo *orgRepository) UpdateOrganization(ctx context.Context, org organization.Organization) (organization.Organization, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE organization SET name = $1, slug = $2, updated_at = $3 WHERE id = $4`,
		org.Name, org.Slug, org.UpdatedAt.UTC(), org.ID)
	if err != nil {
		return organization.Organization{}, errors.Wrap(err, "updating organization")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return organization.Organization{}, organization.ErrNotFound
	}
	return org, nil
}

// DeleteOrganization relies on ON DELETE CASCADE for everything the organization owns.
func (repo *orgRepository) DeleteOrganization(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM organization WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting organization")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return organization.ErrNotFound
	}
	return nil
}

// Members

func (repo *orgRepository) GetMember(ctx context.Context, orgID, userID string) (organization.Member, error) {
	if !isUUID(orgID, userID) {
		return organization.Member{}, organization.ErrNotMember
	}
	var row memberRow
	if err := repo.db.GetContext(ctx, &row, memberSelect+` WHERE m.org_id = $1 AND m.user_id = $2`, orgID, userID); err != nil {
		return organization.Member{}, trapNoRows(err, organization.ErrNotMember, "getting member")
	}
	return row.member(), nil
}

func (repo *orgRepository) QueryMembers(ctx context.Context, orgID string, filter organization.MemberFilter, page core.Pagination) ([]organization.Member, int, error) {
	var w where
	w.add("m.org_id = ?", orgID)
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		w.add("(u.name ILIKE ? OR u.email ILIKE ?)", pattern, pattern)
	}
	if filter.Role != "" {
		w.add("m.role = ?", string(filter.Role))
	}
	if filter.TeamID != "" {
		if !isUUID(filter.TeamID) {
			return []organization.Member{}, 0, nil
		}
		w.add("m.team_id = ?", filter.TeamID)
	}

	var total int
	countQ := repo.db.Rebind(`SELECT COUNT(*) FROM membership m JOIN "user" u ON u.id = m.user_id` + w.String())
	if err := repo.db.GetContext(ctx, &total, countQ, w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting members")
	}

	args := append(w.args, page.Limit(), page.Offset())
	q := repo.db.Rebind(memberSelect + w.String() + ` ORDER BY LOWER(u.name), u.email LIMIT ? OFFSET ?`)
	var rows []memberRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying members")
	}
	members := make([]organization.Member, 0, len(rows))
	for _, r := range rows {
		members = append(members, r.member())
	}
	return members, total, nil
}

func (repo *orgRepository) CountMembers(ctx context.Context, orgID string, role organization.Role) (int, error) {
	var w where
	w.add("org_id = ?", orgID)
	if role != "" {
		w.add("role = ?", string(role))
	}
	var n int
	err := repo.db.GetContext(ctx, &n, repo.db.Rebind(`SELECT COUNT(*) FROM membership`+w.String()), w.args...)
	return n, errors.Wrap(err, "counting members")
}

func (repo *orgRepository) FindMemberByEmail(ctx context.Context, orgID, email string) (organization.Member, error) {
	var row memberRow
	err := repo.db.GetContext(ctx, &row, memberSelect+` WHERE m.org_id = $1 AND LOWER(u.email) = LOWER($2)`, orgID, email)
	if err != nil {
		return organization.Member{}, trapNoRows(err, organization.ErrNotMember, "finding member")
	}
	return row.member(), nil
}

func (repo *orgRepository) UpdateMember(ctx context.Context, m organization.Member) (organization.Member, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE membership SET role = $1, team_id = $2 WHERE org_id = $3 AND user_id = $4`,
		string(m.Role), nullString(m.TeamID), m.OrgID, m.UserID)
	if err != nil {
		return organization.Member{}, errors.Wrap(err, "updating member")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return organization.Member{}, organization.ErrNotMember
	}
	return repo.GetMember(ctx, m.OrgID, m.UserID)
}

// RemoveMember also unassigns the member's action plan items.
func (repo *orgRepository) RemoveMember(ctx context.Context, orgID, userID string) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM membership WHERE org_id = $1 AND user_id = $2`, orgID, userID)
		if err != nil {
			return errors.Wrap(err, "removing member")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return organization.ErrNotMember
		}
		_, err = tx.ExecContext(ctx, `UPDATE descriptor SET assigned_to = NULL WHERE org_id = $1 AND assigned_to = $2`, orgID, userID)
		return errors.Wrap(err, "unassigning descriptors")
	})
}

// Teams

func (repo *orgRepository) TeamNameExists(ctx context.Context, orgID, name string, excludedID string) (bool, error) {
	var w where
	w.add("org_id = ?", orgID)
	w.add("LOWER(name) = LOWER(?)", name)
	if excludedID != "" {
		w.add("id <> ?", excludedID)
	}
	var exists bool
	err := repo.db.GetContext(ctx, &exists, repo.db.Rebind(`SELECT EXISTS (SELECT 1 FROM team`+w.String()+`)`), w.args...)
	return exists, errors.Wrap(err, "checking team name")
}

func (repo *orgRepository) CreateTeam(ctx context.Context, t organization.Team) (organization.Team, error) {
	t.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO team (`+teamColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.OrgID, t.Name, t.Description, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return organization.Team{}, organization.ErrTeamExists
		}
		return organization.Team{}, errors.Wrap(err, "inserting team")
	}
	return t, nil
}

func (repo *orgRepository) GetTeam(ctx context.Context, orgID, id string) (organization.Team, error) {
	if !isUUID(orgID, id) {
		return organization.Team{}, organization.ErrTeamNotFound
	}
	var row teamRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+teamColumns+` FROM team WHERE org_id = $1 AND id = $2`, orgID, id); err != nil {
		return organization.Team{}, trapNoRows(err, organization.ErrTeamNotFound, "getting team")
	}
	return row.team(), nil
}

func (repo *orgRepository) ListTeams(ctx context.Context, orgID string) ([]organization.Team, error) {
	var rows []teamRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+teamColumns+` FROM team WHERE org_id = $1 ORDER BY LOWER(name)`, orgID); err != nil {
		return nil, errors.Wrap(err, "listing teams")
	}
	teams := make([]organization.Team, 0, len(rows))
	for _, r := range rows {
		teams = append(teams, r.team())
	}
	return teams, nil
}

func (repo *orgRepository) UpdateTeam(ctx context.Context, t organization.Team) (organization.Team, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE team SET name = $1, description = $2, updated_at = $3 WHERE org_id = $4 AND id = $5`,
		t.Name, t.Description, t.UpdatedAt.UTC(), t.OrgID, t.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return organization.Team{}, organization.ErrTeamExists
		}
		return organization.Team{}, errors.Wrap(err, "updating team")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return organization.Team{}, organization.ErrTeamNotFound
	}
	return t, nil
}

// DeleteTeam relies on ON DELETE SET NULL to detach members, invitations & responses.
func (repo *orgRepository) DeleteTeam(ctx context.Context, orgID, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM team WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return errors.Wrap(err, "deleting team")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return organization.ErrTeamNotFound
	}
	return nil
}

// Invitations

func (repo *orgRepository) CreateInvitation(ctx context.Context, inv organization.Invitation) (organization.Invitation, error) {
	inv.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO invitation (`+invitationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		inv.ID, inv.OrgID, inv.Email, string(inv.Role), nullString(inv.TeamID), inv.TokenHash,
		nullString(&inv.InvitedBy), string(inv.Status), inv.ExpiresAt.UTC(), inv.CreatedAt.UTC(), nullTime(inv.AcceptedAt))
	if err != nil {
		return organization.Invitation{}, errors.Wrap(err, "inserting invitation")
	}
	return inv, nil
}

func (repo *orgRepository) GetInvitation(ctx context.Context, orgID, id string) (organization.Invitation, error) {
	if !isUUID(orgID, id) {
		return organization.Invitation{}, organization.ErrInvitationNotFound
	}
	var row invitationRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+invitationColumns+` FROM invitation WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return organization.Invitation{}, trapNoRows(err, organization.ErrInvitationNotFound, "getting invitation")
	}
	return row.invitation(), nil
}

func (repo *orgRepository) GetInvitationByTokenHash(ctx context.Context, hash string) (organization.Invitation, error) {
	var row invitationRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+invitationColumns+` FROM invitation WHERE token_hash = $1`, hash)
	if err != nil {
		return organization.Invitation{}, trapNoRows(err, organization.ErrInvitationNotFound, "getting invitation")
	}
	return row.invitation(), nil
}

func (repo *orgRepository) ListInvitations(ctx context.Context, orgID string) ([]organization.Invitation, error) {
	var rows []invitationRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT `+invitationColumns+` FROM invitation WHERE org_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, errors.Wrap(err, "listing invitations")
	}
	invs := make([]organization.Invitation, 0, len(rows))
	for _, r := range rows {
		invs = append(invs, r.invitation())
	}
	return invs, nil
}

func (repo *orgRepository) ListPendingInvitationsByEmail(ctx context.Context, email string, now time.Time) ([]organization.PendingInvitation, error) {
	var rows []pendingInvitationRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT i.id, i.org_id, i.email, i.role, i.team_id, i.token_hash, i.invited_by, i.status,
			i.expires_at, i.created_at, i.accepted_at, o.name AS org_name
		FROM invitation i JOIN organization o ON o.id = i.org_id
		WHERE LOWER(i.email) = LOWER($1) AND i.status = $2 AND i.expires_at > $3
		ORDER BY i.created_at DESC`, email, string(organization.InvitationPending), now.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "listing pending invitations")
	}
	pending := make([]organization.PendingInvitation, 0, len(rows))
	for _, r := range rows {
		pending = append(pending, organization.PendingInvitation{Invitation: r.invitation(), OrgName: r.OrgName})
	}
	return pending, nil
}

func (repo *orgRepository) CountPendingInvitations(ctx context.Context, orgID string, now time.Time) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM invitation WHERE org_id = $1 AND status = $2 AND expires_at > $3`,
		orgID, string(organization.InvitationPending), now.UTC())
	return n, errors.Wrap(err, "counting pending invitations")
}

func updateInvitation(ctx context.Context, exec sqlx.ExecerContext, inv organization.Invitation, onlyPending bool) (int64, error) {
	q := `UPDATE invitation SET role = $1, team_id = $2, status = $3, expires_at = $4, accepted_at = $5
		WHERE org_id = $6 AND id = $7`
	args := []interface{}{string(inv.Role), nullString(inv.TeamID), string(inv.Status), inv.ExpiresAt.UTC(),
		nullTime(inv.AcceptedAt), inv.OrgID, inv.ID}
	if onlyPending {
		q += ` AND status = $8`
		args = append(args, string(organization.InvitationPending))
	}
	res, err := exec.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "updating invitation")
	}
	return res.RowsAffected()
}

func (repo *orgRepository) UpdateInvitation(ctx context.Context, inv organization.Invitation) (organization.Invitation, error) {
	n, err := updateInvitation(ctx, repo.db, inv, false)
	if err != nil {
		return organization.Invitation{}, err
	}
	if n == 0 {
		return organization.Invitation{}, organization.ErrInvitationNotFound
	}
	return inv, nil
}

func (repo *orgRepository) AcceptInvitation(ctx context.Context, inv organization.Invitation, m organization.Member) (organization.Member, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		n, err := updateInvitation(ctx, tx, inv, true)
		if err != nil {
			return err
		}
		if n == 0 {
			return organization.ErrInvitationInvalid
		}
		return insertMember(ctx, tx, m)
	})
	if err != nil {
		return organization.Member{}, err
	}
	return repo.GetMember(ctx, m.OrgID, m.UserID)
}
