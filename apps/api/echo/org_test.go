package echoapi_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/wellbeing/apps/api/echo"
	"github.com/trezcool/wellbeing/core/access"
	"github.com/trezcool/wellbeing/core/organization"
	"github.com/trezcool/wellbeing/core/subscription"
	"github.com/trezcool/wellbeing/testutil"
)

func Test_orgApi_create(t *testing.T) {
	app, env := setup(t)
	usr := testutil.CreateUser(t, env.UserRepo, "Founder", "founder@test.com", "", nil, true)
	token := getToken(t, env.Conf, usr)

	tests := []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: "/v1/orgs", body: []byte(`{"name":"Acme"}`),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "name required", method: http.MethodPost, path: "/v1/orgs", token: token, body: []byte(`{"name":"  "}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": "this field is required"}),
		},
		{name: "no memberships yet", path: "/v1/orgs", token: token, wantCode: http.StatusOK, wantData: marchallList(t)},
	}
	runHTTPTests(t, app, tests)

	var org organization.Organization
	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, "/v1/orgs", token, organization.NewOrganization{Name: "Acme Corp"}, &org))
	assert.Equal(t, "acme-corp", org.Slug)
	assert.Equal(t, usr.ID, org.CreatedBy)

	var memberships []organization.Membership
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, "/v1/orgs", token, nil, &memberships))
	require.Len(t, memberships, 1)
	assert.Equal(t, organization.RoleOwner, memberships[0].Role)

	var sub SubscriptionResponse
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, "/v1/orgs/"+org.ID+"/subscription", token, nil, &sub))
	assert.Equal(t, subscription.PlanFree, sub.Subscription.Plan)
	assert.Equal(t, subscription.PlanFree, sub.EffectivePlan.ID)
	assert.Equal(t, 1, sub.Usage.Members)
}

func Test_orgApi_roles(t *testing.T) {
	app, env := setup(t)
	org, owner := env.CreateOrg(t, "Acme", subscription.PlanFree)
	admin := env.AddMember(t, org.ID, "Ada Admin", organization.RoleAdmin)
	manager := env.AddMember(t, org.ID, "Manny Manager", organization.RoleManager)
	member := env.AddMember(t, org.ID, "Mo Member", organization.RoleMember)
	outsider := testutil.CreateUser(t, env.UserRepo, "Outsider", "outsider@test.com", "", nil, true)

	orgPath := "/v1/orgs/" + org.ID
	ownerToken := getToken(t, env.Conf, owner)
	adminToken := getToken(t, env.Conf, admin)
	managerToken := getToken(t, env.Conf, manager)
	memberToken := getToken(t, env.Conf, member)

	tests := []httpTest{
		{
			name: "outsider", path: orgPath, token: getToken(t, env.Conf, outsider),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: organization.ErrNotMember.Error()}),
		},
		{
			name: "unknown organization", path: "/v1/orgs/nope", token: ownerToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: organization.ErrNotFound.Error()}),
		},
		{name: "member views", path: orgPath, token: memberToken, wantCode: http.StatusOK},
		{
			name: "member cannot rename", method: http.MethodPut, path: orgPath, token: memberToken, body: []byte(`{"name":"X"}`),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
		{
			name: "admin cannot delete", method: http.MethodDelete, path: orgPath, token: adminToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
		{
			name: "manager cannot promote", method: http.MethodPut, path: orgPath + "/members/" + member.ID, token: managerToken,
			body: []byte(`{"role":"admin"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
		{
			name: "invalid role", method: http.MethodPut, path: orgPath + "/members/" + member.ID, token: adminToken,
			body: []byte(`{"role":"boss"}`), wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"role": "invalid role"}),
		},
		{
			name: "last owner cannot leave", method: http.MethodPost, path: orgPath + "/leave", token: ownerToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: organization.ErrLastOwner.Error()}),
		},
		{
			name: "admin cannot remove owner", method: http.MethodDelete, path: orgPath + "/members/" + owner.ID, token: adminToken,
			wantCode: http.StatusForbidden,
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("permissions", func(t *testing.T) {
		var perms PermissionsResponse
		require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, orgPath+"/permissions", managerToken, nil, &perms))
		assert.Equal(t, organization.RoleManager, perms.Role)
		assert.Equal(t, subscription.PlanFree, perms.Plan)
		assert.False(t, perms.Testing)
		assert.Equal(t, []access.Permission{access.ManageActionPlans, access.ManageCustomQuestions}, perms.Blocked)
		assert.Contains(t, perms.Permissions, access.ManageSurveys)
	})

	t.Run("promote & search", func(t *testing.T) {
		var m organization.Member
		code := do(t, app, http.MethodPut, orgPath+"/members/"+member.ID, adminToken, map[string]string{"role": "manager"}, &m)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, organization.RoleManager, m.Role)

		var page struct {
			Items []organization.Member `json:"items"`
			Total int                   `json:"total"`
		}
		q := url.Values{"role": {"manager"}, "ordering": {"name"}}
		require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, orgPath+"/members?"+q.Encode(), memberToken, nil, &page))
		assert.Equal(t, 2, page.Total)

		require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, orgPath+"/members?search=ada", memberToken, nil, &page))
		require.Len(t, page.Items, 1)
		assert.Equal(t, admin.ID, page.Items[0].UserID)
	})

	t.Run("remove & leave", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, do(t, app, http.MethodDelete, orgPath+"/members/"+member.ID, adminToken, nil, nil))
		assert.Equal(t, http.StatusNotFound, do(t, app, http.MethodGet, orgPath, memberToken, nil, nil))

		require.Equal(t, http.StatusNoContent, do(t, app, http.MethodPost, orgPath+"/leave", managerToken, nil, nil))
		assert.Equal(t, http.StatusNotFound, do(t, app, http.MethodGet, orgPath, managerToken, nil, nil))
	})

	t.Run("owner renames & deletes", func(t *testing.T) {
		var renamed organization.Organization
		require.Equal(t, http.StatusOK, do(t, app, http.MethodPut, orgPath, ownerToken, map[string]string{"name": "Acme Ltd"}, &renamed))
		assert.Equal(t, "Acme Ltd", renamed.Name)

		require.Equal(t, http.StatusNoContent, do(t, app, http.MethodDelete, orgPath, ownerToken, nil, nil))
		assert.Equal(t, http.StatusNotFound, do(t, app, http.MethodGet, orgPath, ownerToken, nil, nil))
	})
}

func Test_orgApi_teams(t *testing.T) {
	app, env := setup(t)
	org, owner := env.CreateOrg(t, "Acme", subscription.PlanFree)
	member := env.AddMember(t, org.ID, "Mo Member", organization.RoleMember)
	teamsPath := "/v1/orgs/" + org.ID + "/teams"
	ownerToken := getToken(t, env.Conf, owner)

	var team organization.Team
	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, teamsPath, ownerToken, organization.NewTeam{Name: "Ops"}, &team))

	tests := []httpTest{
		{
			name: "duplicate name", method: http.MethodPost, path: teamsPath, token: ownerToken, body: []byte(`{"name":"Ops"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": organization.ErrTeamExists.Error()}),
		},
		{
			name: "member cannot create", method: http.MethodPost, path: teamsPath, token: getToken(t, env.Conf, member),
			body: []byte(`{"name":"Dev"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
		{name: "member lists", path: teamsPath, token: getToken(t, env.Conf, member), wantCode: http.StatusOK, wantData: marchallList(t, team)},
		{
			name: "unknown team", path: teamsPath + "/nope", token: ownerToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: organization.ErrTeamNotFound.Error()}),
		},
	}
	runHTTPTests(t, app, tests)

	// assign, then delete the team: the member is detached
	var m organization.Member
	require.Equal(t, http.StatusOK, do(t, app, http.MethodPut, "/v1/orgs/"+org.ID+"/members/"+member.ID, ownerToken, map[string]string{"team_id": team.ID}, &m))
	require.NotNil(t, m.TeamID)

	require.Equal(t, http.StatusNoContent, do(t, app, http.MethodDelete, teamsPath+"/"+team.ID, ownerToken, nil, nil))
	m, err := env.Orgs.GetMember(ctxBG, org.ID, member.ID)
	require.NoError(t, err)
	assert.Nil(t, m.TeamID)
}

func Test_orgApi_invitations(t *testing.T) {
	app, env := setup(t)
	org, owner := env.CreateOrg(t, "Acme", subscription.PlanFree)
	manager := env.AddMember(t, org.ID, "Manny Manager", organization.RoleManager)
	invitee := testutil.CreateUser(t, env.UserRepo, "Invitee", "invitee@test.com", "", nil, true)
	stranger := testutil.CreateUser(t, env.UserRepo, "Stranger", "stranger@test.com", "", nil, true)

	invPath := "/v1/orgs/" + org.ID + "/invitations"
	ownerToken := getToken(t, env.Conf, owner)
	inviteeToken := getToken(t, env.Conf, invitee)
	env.Mail.Reset()

	var inv organization.Invitation
	body := organization.NewInvitation{Email: "Invitee@Test.com", Role: organization.RoleManager}
	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, invPath, ownerToken, body, &inv))
	assert.Equal(t, "invitee@test.com", inv.Email)
	assert.Equal(t, organization.InvitationPending, inv.Status)

	tests := []httpTest{
		{
			name: "manager cannot invite", method: http.MethodPost, path: invPath, token: getToken(t, env.Conf, manager),
			body: marchallObj(t, body), wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
		{
			name: "already invited", method: http.MethodPost, path: invPath, token: ownerToken, body: marchallObj(t, body),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"email": organization.ErrAlreadyInvited.Error()}),
		},
		{
			name: "already member", method: http.MethodPost, path: invPath, token: ownerToken,
			body:     marchallObj(t, organization.NewInvitation{Email: manager.Email, Role: organization.RoleMember}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"email": organization.ErrAlreadyMember.Error()}),
		},
		{name: "owner lists", path: invPath, token: ownerToken, wantCode: http.StatusOK, wantData: marchallList(t, inv)},
	}
	runHTTPTests(t, app, tests)

	var mine []organization.PendingInvitation
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, "/v1/invitations", inviteeToken, nil, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, "Acme", mine[0].OrgName)

	msgs := env.Mail.SentMessages()
	require.Len(t, msgs, 1)
	link, err := url.Parse(msgs[0].TemplateData.(map[string]interface{})["URL"].(string))
	require.NoError(t, err)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)

	accept := AcceptInvitationRequest{Token: token}
	assert.Equal(t, http.StatusForbidden, do(t, app, http.MethodPost, "/v1/invitations/accept", getToken(t, env.Conf, stranger), accept, nil))
	assert.Equal(t, http.StatusBadRequest, do(t, app, http.MethodPost, "/v1/invitations/accept", inviteeToken, AcceptInvitationRequest{Token: "nope"}, nil))

	var m organization.Member
	require.Equal(t, http.StatusOK, do(t, app, http.MethodPost, "/v1/invitations/accept", inviteeToken, accept, &m))
	assert.Equal(t, organization.RoleManager, m.Role)
	assert.Equal(t, http.StatusOK, do(t, app, http.MethodGet, "/v1/orgs/"+org.ID, inviteeToken, nil, nil))

	// accepted invitations cannot be revoked
	assert.Equal(t, http.StatusBadRequest, do(t, app, http.MethodDelete, invPath+"/"+inv.ID, ownerToken, nil, nil))
	assert.Equal(t, http.StatusNotFound, do(t, app, http.MethodDelete, invPath+"/nope", ownerToken, nil, nil))
}

func Test_orgApi_subscription(t *testing.T) {
	app, env := setup(t)
	org, owner := env.CreateOrg(t, "Acme", subscription.PlanFree)
	admin := env.AddMember(t, org.ID, "Ada Admin", organization.RoleAdmin)
	subPath := "/v1/orgs/" + org.ID + "/subscription"
	ownerToken := getToken(t, env.Conf, owner)

	tests := []httpTest{
		{name: "plans are public", path: "/v1/plans", wantCode: http.StatusOK},
		{
			name: "admin cannot change plan", method: http.MethodPut, path: subPath, token: getToken(t, env.Conf, admin),
			body: []byte(`{"plan":"pro"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
		{
			name: "unknown plan", method: http.MethodPut, path: subPath, token: ownerToken, body: []byte(`{"plan":"gold"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"plan": "unknown plan"}),
		},
		{
			name: "invalid status", method: http.MethodPut, path: subPath, token: ownerToken, body: []byte(`{"plan":"pro","status":"paused"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"status": "invalid status"}),
		},
	}
	runHTTPTests(t, app, tests)

	var sub SubscriptionResponse
	require.Equal(t, http.StatusOK, do(t, app, http.MethodPut, subPath, ownerToken, subscription.ChangePlan{Plan: subscription.PlanPro}, &sub))
	assert.Equal(t, subscription.PlanPro, sub.Subscription.Plan)
	assert.Equal(t, subscription.PlanPro, sub.EffectivePlan.ID)
	assert.Equal(t, 2, sub.Usage.Members)

	var plans []subscription.Plan
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, "/v1/plans", "", nil, &plans))
	require.Len(t, plans, 3)
	assert.Equal(t, subscription.PlanFree, plans[0].ID)
}
