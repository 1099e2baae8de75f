package echoapi_test

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/wellbeing/apps/api/echo"
	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/access"
	"github.com/trezcool/wellbeing/core/organization"
	"github.com/trezcool/wellbeing/core/subscription"
	"github.com/trezcool/wellbeing/core/user"
	"github.com/trezcool/wellbeing/testutil"
)

const strongPwd = "Wellb3ing!Pass"

func Test_userApi_register(t *testing.T) {
	app, env := setup(t)
	testutil.CreateUser(t, env.UserRepo, "Taken", "taken@test.com", strongPwd, nil, true)

	newUser := func(email, pwd string, roles ...string) user.NewUser {
		return user.NewUser{Name: "Jane Doe", Email: email, Password: pwd, PasswordConfirm: pwd, Roles: roles}
	}

	tests := []httpTest{
		{
			name: "email taken", method: http.MethodPost, path: "/v1/users/register",
			body:     marchallObj(t, newUser("TAKEN@test.com", strongPwd)),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": user.ErrUserExists.Error()}),
		},
		{
			name: "roles refused", method: http.MethodPost, path: "/v1/users/register",
			body:     marchallObj(t, newUser("jane@test.com", strongPwd, user.RolePlatformAdmin)),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{
			name: "weak password", method: http.MethodPost, path: "/v1/users/register",
			body:     marchallObj(t, newUser("jane@test.com", "12345678")),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "missing fields", method: http.MethodPost, path: "/v1/users/register",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name":             "this field is required",
				"email":            "this field is required",
				"password":         "this field is required",
				"password_confirm": "this field is required",
			}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("ok", func(t *testing.T) {
		var resp RegisterResponse
		code := do(t, app, http.MethodPost, "/v1/users/register", "", newUser(" Jane@Test.com ", strongPwd), &resp)
		require.Equal(t, http.StatusCreated, code)
		assert.Equal(t, "jane@test.com", resp.User.Email)
		assert.Empty(t, resp.User.Roles)
		assert.NotEmpty(t, resp.Token)

		var me MeResponse
		require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, "/v1/users/me", resp.Token, nil, &me))
		assert.Equal(t, resp.User.ID, me.User.ID)
		assert.Nil(t, me.TestingMode)
	})
}

func Test_userApi_login(t *testing.T) {
	app, env := setup(t)
	testutil.CreateUser(t, env.UserRepo, "Active", "active@test.com", strongPwd, nil, true)
	testutil.CreateUser(t, env.UserRepo, "Gone", "gone@test.com", strongPwd, nil, false)

	login := func(email, pwd string) []byte {
		return marchallObj(t, LoginRequest{Email: email, Password: pwd})
	}

	tests := []httpTest{
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/users/login", body: login("who@test.com", strongPwd),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login", body: login("active@test.com", "nope"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/login", body: login("gone@test.com", strongPwd),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "missing password", method: http.MethodPost, path: "/v1/users/login", body: login("active@test.com", ""),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"password": "this field is required"}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("ok", func(t *testing.T) {
		var resp LoginResponse
		code := do(t, app, http.MethodPost, "/v1/users/login", "", LoginRequest{Email: "ACTIVE@test.com", Password: strongPwd}, &resp)
		require.Equal(t, http.StatusOK, code)
		require.NotEmpty(t, resp.Token)

		usr, err := env.Users.GetByEmail(ctxBG, "active@test.com")
		require.NoError(t, err)
		assert.False(t, usr.LastLogin.IsZero())

		var refreshed LoginResponse
		require.Equal(t, http.StatusOK, do(t, app, http.MethodPost, "/v1/users/token-refresh", resp.Token, nil, &refreshed))
		assert.NotEmpty(t, refreshed.Token)
	})
}

func Test_userApi_query(t *testing.T) {
	app, env := setup(t)

	path := func(search, ordering string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != nil {
			v.Add("is_active", map[bool]string{true: "true", false: "false"}[*isActive])
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }
	page := func(users ...user.User) []byte {
		if users == nil {
			users = []user.User{}
		}
		return marchallObj(t, PageResponse{
			Items:    users,
			PageMeta: core.NewPageMeta(core.NewPagination(1, 0), len(users)),
		})
	}

	now := time.Now().UTC()
	usr1 := testutil.CreateUser(t, env.UserRepo, "User One", "one@test.com", "", nil, true, now.Add(1*time.Hour))
	usr2 := testutil.CreateUser(t, env.UserRepo, "King", "king@test.com", "", nil, true, now.Add(2*time.Hour))
	support := testutil.CreateUser(t, env.UserRepo, "Support", "support@test.com", "", []string{user.RolePlatformSupport}, true, now.Add(3*time.Hour))
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin@test.com", "", []string{user.RolePlatformAdmin}, true, now.Add(4*time.Hour))
	naughty := testutil.CreateUser(t, env.UserRepo, "N Dog", "ndog@test.com", "", nil, false, now.Add(5*time.Hour))

	adminToken := getToken(t, env.Conf, admin)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Staff required", path: "/v1/users", token: getToken(t, env.Conf, usr1),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
		{
			name: "Support allowed", path: "/v1/users", token: getToken(t, env.Conf, support),
			wantCode: http.StatusOK, wantData: page(naughty, admin, support, usr2, usr1),
		},
		{name: "Get all", path: "/v1/users", token: adminToken, wantCode: http.StatusOK, wantData: page(naughty, admin, support, usr2, usr1)},
		{name: "search (unknown)", path: path("lol", "", nil), token: adminToken, wantCode: http.StatusOK, wantData: page()},
		{name: "search=KIN", path: path("KIN", "", nil), token: adminToken, wantCode: http.StatusOK, wantData: page(usr2)},
		{
			name: "role=platform:", path: path("", "", nil, user.RolePlatform), token: adminToken,
			wantCode: http.StatusOK, wantData: page(admin, support),
		},
		{name: "is_active=false", path: path("", "", bPtr(false)), token: adminToken, wantCode: http.StatusOK, wantData: page(naughty)},
		{
			name: "order by name", path: path("", "name", nil), token: adminToken,
			wantCode: http.StatusOK, wantData: page(admin, usr2, naughty, support, usr1),
		},
		{
			name: "order by is_active,-created_at", path: path("", "is_active,-created_at", nil), token: adminToken,
			wantCode: http.StatusOK, wantData: page(naughty, admin, support, usr2, usr1),
		},
	}
	runHTTPTests(t, app, tests)
}

func Test_userApi_detail(t *testing.T) {
	app, env := setup(t)
	usr := testutil.CreateUser(t, env.UserRepo, "Plain", "plain@test.com", "", nil, true)
	other := testutil.CreateUser(t, env.UserRepo, "Other", "other@test.com", "", nil, true)
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin@test.com", "", []string{user.RolePlatformAdmin}, true)

	usrToken := getToken(t, env.Conf, usr)
	adminToken := getToken(t, env.Conf, admin)

	tests := []httpTest{
		{name: "own profile", path: "/v1/users/" + usr.ID, token: usrToken, wantCode: http.StatusOK, wantData: marchallObj(t, usr)},
		{
			name: "someone else", path: "/v1/users/" + other.ID, token: usrToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "admin sees all", path: "/v1/users/" + other.ID, token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, other)},
		{
			name: "only admins change roles", method: http.MethodPut, path: "/v1/users/" + usr.ID, token: usrToken,
			body:     marchallObj(t, map[string]interface{}{"roles": []string{user.RolePlatformAdmin}}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
		{
			name: "no self deletion", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: adminToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
		{
			name: "delete needs admin", method: http.MethodDelete, path: "/v1/users/" + usr.ID, token: usrToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("rename", func(t *testing.T) {
		var got user.User
		code := do(t, app, http.MethodPut, "/v1/users/"+usr.ID, usrToken, map[string]string{"name": " Renamed "}, &got)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, usr.Email, got.Email)
	})

	t.Run("admin deletes", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, do(t, app, http.MethodDelete, "/v1/users/"+other.ID, adminToken, nil, nil))
		_, err := env.Users.GetByID(ctxBG, other.ID)
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	app, env := setup(t)
	testutil.CreateUser(t, env.UserRepo, "Forgetful", "forgetful@test.com", strongPwd, nil, true)

	var resp SuccessResponse
	code := do(t, app, http.MethodPost, "/v1/users/password-reset", "", PasswordResetRequest{Email: "forgetful@test.com"}, &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, resp.Success, "If the email address supplied")

	// unknown emails get the same answer
	var resp2 SuccessResponse
	code = do(t, app, http.MethodPost, "/v1/users/password-reset", "", PasswordResetRequest{Email: "who@test.com"}, &resp2)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, resp, resp2)

	msgs := env.Mail.SentMessages()
	require.Len(t, msgs, 1)
	resetURL := msgs[0].TemplateData.(map[string]interface{})["URL"].(string)
	parts := strings.Split(strings.TrimPrefix(resetURL, env.Conf.FrontendBaseURL+"/password-reset/"), "/")
	require.Len(t, parts, 2)

	newPwd := "An0ther!Secret"
	confirm := user.ResetUserPassword{UID: parts[0], Token: parts[1], Password: newPwd, PasswordConfirm: newPwd}
	require.Equal(t, http.StatusOK, do(t, app, http.MethodPost, "/v1/users/password-reset-confirm", "", confirm, nil))

	var login LoginResponse
	code = do(t, app, http.MethodPost, "/v1/users/login", "", LoginRequest{Email: "forgetful@test.com", Password: newPwd}, &login)
	assert.Equal(t, http.StatusOK, code)

	confirm.Token = "1-nope"
	var errs map[string]string
	require.Equal(t, http.StatusBadRequest, do(t, app, http.MethodPost, "/v1/users/password-reset-confirm", "", confirm, &errs))
	assert.Contains(t, errs, "token")
}

func Test_userApi_testingMode(t *testing.T) {
	app, env := setup(t)
	org, _ := env.CreateOrg(t, "Acme", subscription.PlanFree)
	usr := testutil.CreateUser(t, env.UserRepo, "Plain", "plain@test.com", "", nil, true)
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin@test.com", "", []string{user.RolePlatformAdmin}, true)
	adminToken := getToken(t, env.Conf, admin)
	permsPath := "/v1/orgs/" + org.ID + "/permissions"

	tests := []httpTest{
		{
			name: "admins only", method: http.MethodPut, path: "/v1/users/testing-mode", token: getToken(t, env.Conf, usr),
			body:     marchallObj(t, access.Override{Plan: subscription.PlanPro}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "only platform admins can use testing mode"}),
		},
		{
			name: "unknown plan", method: http.MethodPut, path: "/v1/users/testing-mode", token: adminToken,
			body:     marchallObj(t, access.Override{Plan: "gold"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"plan": subscription.ErrUnknownPlan.Error()}),
		},
		{
			name: "non member without override", path: permsPath, token: adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: organization.ErrNotMember.Error()}),
		},
	}
	runHTTPTests(t, app, tests)

	var resp TestingModeResponse
	override := access.Override{Plan: subscription.PlanPro, Role: organization.RoleManager}
	require.Equal(t, http.StatusOK, do(t, app, http.MethodPut, "/v1/users/testing-mode", adminToken, override, &resp))
	assert.Equal(t, override, resp.Override)

	var me MeResponse
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, "/v1/users/me", resp.Token, nil, &me))
	require.NotNil(t, me.TestingMode)
	assert.Equal(t, override, *me.TestingMode)

	var perms PermissionsResponse
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, permsPath, resp.Token, nil, &perms))
	assert.True(t, perms.Testing)
	assert.Equal(t, organization.RoleManager, perms.Role)
	assert.Equal(t, subscription.PlanPro, perms.Plan)
	assert.Contains(t, perms.Permissions, access.ManageCustomQuestions)
	assert.NotContains(t, perms.Permissions, access.ManageMembers)

	// refreshing keeps the override, clearing drops it
	var refreshed LoginResponse
	require.Equal(t, http.StatusOK, do(t, app, http.MethodPost, "/v1/users/token-refresh", resp.Token, nil, &refreshed))
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, permsPath, refreshed.Token, nil, &perms))
	assert.True(t, perms.Testing)

	var cleared LoginResponse
	require.Equal(t, http.StatusOK, do(t, app, http.MethodDelete, "/v1/users/testing-mode", refreshed.Token, nil, &cleared))
	assert.Equal(t, http.StatusNotFound, do(t, app, http.MethodGet, permsPath, cleared.Token, nil, nil))
}
