package echoapi_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/wellbeing/apps/api/echo"
	"github.com/trezcool/wellbeing/core/access"
	"github.com/trezcool/wellbeing/core/organization"
	"github.com/trezcool/wellbeing/core/subscription"
	"github.com/trezcool/wellbeing/core/survey"
	"github.com/trezcool/wellbeing/core/user"
	"github.com/trezcool/wellbeing/testutil"
)

func allAnswers(score int) map[int]int {
	answers := make(map[int]int, len(survey.StandardQuestions))
	for _, q := range survey.StandardQuestions {
		answers[q.Number] = score
	}
	return answers
}

func publicToken(t *testing.T, s SurveyResponse) string {
	t.Helper()
	i := strings.LastIndex(s.PublicURL, "/s/")
	require.NotEqual(t, -1, i, "unexpected public url %q", s.PublicURL)
	return s.PublicURL[i+len("/s/"):]
}

func Test_surveyApi_templates(t *testing.T) {
	app, env := setup(t)
	org, owner := env.CreateOrg(t, "Acme", subscription.PlanFree)
	member := env.AddMember(t, org.ID, "Mo Member", organization.RoleMember)
	surveysPath := "/v1/orgs/" + org.ID + "/surveys"
	ownerToken := getToken(t, env.Conf, owner)

	var s SurveyResponse
	nt := survey.NewTemplate{Name: "Q1 check-in", SurveyDate: time.Now().UTC()}
	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, surveysPath, ownerToken, nt, &s))
	assert.Equal(t, survey.StatusOpen, s.Status)
	assert.Equal(t, env.Conf.FrontendBaseURL+"/s/"+s.PublicToken, s.PublicURL)

	tests := []httpTest{
		{
			name: "member cannot view", path: surveysPath, token: getToken(t, env.Conf, member),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
		{
			name: "name required", method: http.MethodPost, path: surveysPath, token: ownerToken,
			body:     marchallObj(t, survey.NewTemplate{SurveyDate: time.Now()}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": "this field is required"}),
		},
		{
			name: "one active survey on free", method: http.MethodPost, path: surveysPath, token: ownerToken,
			body:     marchallObj(t, survey.NewTemplate{Name: "Another", SurveyDate: time.Now()}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "plan limit reached: at most 1 active surveys"}),
		},
		{
			name: "unknown survey", path: surveysPath + "/nope", token: ownerToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: survey.ErrNotFound.Error()}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("query", func(t *testing.T) {
		var page struct {
			Items []SurveyResponse `json:"items"`
			Total int              `json:"total"`
		}
		require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, surveysPath+"?status=open", ownerToken, nil, &page))
		require.Equal(t, 1, page.Total)
		assert.Equal(t, s.ID, page.Items[0].ID)

		require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, surveysPath+"?status=closed", ownerToken, nil, &page))
		assert.Equal(t, 0, page.Total)
	})

	t.Run("update", func(t *testing.T) {
		var updated SurveyResponse
		body := map[string]string{"name": "Q1 wellbeing check-in"}
		require.Equal(t, http.StatusOK, do(t, app, http.MethodPut, surveysPath+"/"+s.ID, ownerToken, body, &updated))
		assert.Equal(t, "Q1 wellbeing check-in", updated.Name)
		assert.Equal(t, s.PublicToken, updated.PublicToken)
	})

	t.Run("close, reopen & rotate", func(t *testing.T) {
		var closed SurveyResponse
		require.Equal(t, http.StatusOK, do(t, app, http.MethodPost, surveysPath+"/"+s.ID+"/close", ownerToken, nil, &closed))
		assert.Equal(t, survey.StatusClosed, closed.Status)

		// a closed survey frees its slot
		var other SurveyResponse
		require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, surveysPath, ownerToken, survey.NewTemplate{Name: "Other", SurveyDate: time.Now()}, &other))
		assert.Equal(t, http.StatusForbidden, do(t, app, http.MethodPost, surveysPath+"/"+s.ID+"/reopen", ownerToken, ReopenRequest{}, nil))

		require.Equal(t, http.StatusNoContent, do(t, app, http.MethodDelete, surveysPath+"/"+other.ID, ownerToken, nil, nil))
		var reopened SurveyResponse
		require.Equal(t, http.StatusOK, do(t, app, http.MethodPost, surveysPath+"/"+s.ID+"/reopen", ownerToken, ReopenRequest{}, &reopened))
		assert.Equal(t, survey.StatusOpen, reopened.Status)

		var rotated SurveyResponse
		require.Equal(t, http.StatusOK, do(t, app, http.MethodPost, surveysPath+"/"+s.ID+"/rotate-link", ownerToken, nil, &rotated))
		assert.NotEqual(t, s.PublicToken, rotated.PublicToken)
		assert.Equal(t, http.StatusNotFound, do(t, app, http.MethodGet, "/v1/public/surveys/"+s.PublicToken, "", nil, nil))
		assert.Equal(t, http.StatusOK, do(t, app, http.MethodGet, "/v1/public/surveys/"+rotated.PublicToken, "", nil, nil))
	})

	t.Run("distribute", func(t *testing.T) {
		env.Mail.Reset()
		var resp DistributeResponse
		body := survey.Distribution{Emails: []string{"One@test.com", "two@test.com"}, Message: "Please take 5 minutes"}
		require.Equal(t, http.StatusOK, do(t, app, http.MethodPost, surveysPath+"/"+s.ID+"/distribute", ownerToken, body, &resp))
		assert.Equal(t, 2, resp.Sent)

		msgs := env.Mail.SentMessages()
		require.Len(t, msgs, 2)
		assert.Equal(t, "one@test.com", msgs[0].To[0].Address)

		var errs map[string]string
		body = survey.Distribution{Emails: []string{"not-an-email"}}
		require.Equal(t, http.StatusBadRequest, do(t, app, http.MethodPost, surveysPath+"/"+s.ID+"/distribute", ownerToken, body, &errs))
		assert.Contains(t, errs, "emails[0]")
	})
}

func Test_surveyApi_responses(t *testing.T) {
	app, env := setup(t)
	org, owner := env.CreateOrg(t, "Acme", subscription.PlanFree)
	surveysPath := "/v1/orgs/" + org.ID + "/surveys"
	ownerToken := getToken(t, env.Conf, owner)

	var s SurveyResponse
	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, surveysPath, ownerToken, survey.NewTemplate{Name: "Pulse", SurveyDate: time.Now()}, &s))
	publicPath := "/v1/public/surveys/" + publicToken(t, s)

	var ps survey.PublicSurvey
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, publicPath, "", nil, &ps))
	assert.Equal(t, "Acme", ps.OrgName)
	assert.Len(t, ps.Questions, len(survey.StandardQuestions))

	t.Run("invalid answers", func(t *testing.T) {
		answers := allAnswers(3)
		answers[1] = 9
		delete(answers, 2)
		var errs map[string]string
		require.Equal(t, http.StatusBadRequest, do(t, app, http.MethodPost, publicPath, "", survey.NewResponse{Answers: answers}, &errs))
		assert.Equal(t, "must be between 1 and 5", errs["answers.1"])
		assert.Equal(t, "this question is required", errs["answers.2"])
	})

	var sub SubmitResponse
	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, publicPath, "", survey.NewResponse{Answers: allAnswers(4)}, &sub))
	assert.NotEmpty(t, sub.ID)

	t.Run("report suppressed below the threshold", func(t *testing.T) {
		var rep survey.Report
		require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, surveysPath+"/"+s.ID+"/report", ownerToken, nil, &rep))
		assert.Equal(t, 1, rep.Responses)
		assert.Equal(t, env.Conf.ReportMinResponses, rep.MinResponses)
		assert.True(t, rep.Suppressed)
		assert.Nil(t, rep.Overall)
	})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, publicPath, "", survey.NewResponse{Answers: allAnswers(2)}, nil))
	}

	t.Run("report", func(t *testing.T) {
		var rep survey.Report
		require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, surveysPath+"/"+s.ID+"/report", ownerToken, nil, &rep))
		assert.Equal(t, 3, rep.Responses)
		assert.False(t, rep.Suppressed)
		require.NotNil(t, rep.Overall)
		assert.Len(t, rep.Categories, len(survey.Categories))
	})

	t.Run("team reports need enterprise", func(t *testing.T) {
		team, err := env.Orgs.CreateTeam(ctxBG, org.ID, organization.NewTeam{Name: "Ops"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, do(t, app, http.MethodGet, surveysPath+"/"+s.ID+"/report?team="+team.ID, ownerToken, nil, nil))
		var e httpErr
		require.Equal(t, http.StatusForbidden, do(t, app, http.MethodGet, surveysPath+"/"+s.ID+"/responses?team="+team.ID, ownerToken, nil, &e))
		assert.Equal(t, "the Free plan does not include team reports", e.Error)
	})

	t.Run("list responses", func(t *testing.T) {
		var page struct {
			Items []survey.Response `json:"items"`
			Total int               `json:"total"`
		}
		require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, surveysPath+"/"+s.ID+"/responses", ownerToken, nil, &page))
		assert.Equal(t, 3, page.Total)
	})

	t.Run("export needs the plan feature", func(t *testing.T) {
		var e httpErr
		require.Equal(t, http.StatusForbidden, do(t, app, http.MethodGet, surveysPath+"/"+s.ID+"/export", ownerToken, nil, &e))
		assert.Contains(t, e.Error, "the Free plan does not include")
	})

	t.Run("closed surveys", func(t *testing.T) {
		require.Equal(t, http.StatusOK, do(t, app, http.MethodPost, surveysPath+"/"+s.ID+"/close", ownerToken, nil, nil))
		tests := []httpTest{
			{
				name: "view", path: publicPath,
				wantCode: http.StatusGone, wantData: marchallObj(t, httpErr{Error: survey.ErrClosed.Error()}),
			},
			{
				name: "submit", method: http.MethodPost, path: publicPath, body: marchallObj(t, survey.NewResponse{Answers: allAnswers(3)}),
				wantCode: http.StatusGone, wantData: marchallObj(t, httpErr{Error: survey.ErrClosed.Error()}),
			},
			{
				name: "unknown token", path: "/v1/public/surveys/nope",
				wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: survey.ErrNotFound.Error()}),
			},
		}
		runHTTPTests(t, app, tests)
	})
}

func Test_surveyApi_responses_anonymity(t *testing.T) {
	app, env := setup(t)
	org, owner := env.CreateOrg(t, "Acme", subscription.PlanEnterprise)
	surveysPath := "/v1/orgs/" + org.ID + "/surveys"
	ownerToken := getToken(t, env.Conf, owner)

	ops, err := env.Orgs.CreateTeam(ctxBG, org.ID, organization.NewTeam{Name: "Ops"})
	require.NoError(t, err)
	var s SurveyResponse
	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, surveysPath, ownerToken, survey.NewTemplate{Name: "Pulse", SurveyDate: time.Now()}, &s))
	publicPath := "/v1/public/surveys/" + publicToken(t, s)
	responsesPath := surveysPath + "/" + s.ID + "/responses"

	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, publicPath, "", survey.NewResponse{Answers: allAnswers(1), TeamID: &ops.ID}, nil))

	var e httpErr
	require.Equal(t, http.StatusForbidden, do(t, app, http.MethodGet, responsesPath, ownerToken, nil, &e))
	assert.Contains(t, e.Error, "not enough responses")
	require.Equal(t, http.StatusForbidden, do(t, app, http.MethodGet, responsesPath+"?team="+ops.ID, ownerToken, nil, &e))
	assert.Contains(t, e.Error, "not enough responses")
	assert.Equal(t, http.StatusNotFound, do(t, app, http.MethodGet, responsesPath+"?team=nope", ownerToken, nil, nil))

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, publicPath, "", survey.NewResponse{Answers: allAnswers(4)}, nil))
	}
	var page struct {
		Items []survey.Response `json:"items"`
		Total int               `json:"total"`
	}
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, responsesPath, ownerToken, nil, &page))
	assert.Equal(t, 3, page.Total)
	// the team on its own is still below the threshold
	assert.Equal(t, http.StatusForbidden, do(t, app, http.MethodGet, responsesPath+"?team="+ops.ID, ownerToken, nil, nil))
}

func Test_surveyApi_testingModeWrites(t *testing.T) {
	app, env := setup(t)
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin@test.com", "", []string{user.RolePlatformAdmin}, true)
	org, err := env.Orgs.Create(ctxBG, admin, organization.NewOrganization{Name: "Acme"})
	require.NoError(t, err)
	other, _ := env.CreateOrg(t, "Globex", subscription.PlanFree)

	token := getToken(t, env.Conf, admin, access.Override{Role: organization.RoleOwner, Plan: subscription.PlanEnterprise})
	surveysPath := "/v1/orgs/" + org.ID + "/surveys"
	otherPath := "/v1/orgs/" + other.ID

	var perms PermissionsResponse
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, "/v1/orgs/"+org.ID+"/permissions", token, nil, &perms))
	assert.True(t, perms.Testing)
	assert.Equal(t, subscription.PlanEnterprise, perms.Plan)

	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, surveysPath, token, survey.NewTemplate{Name: "Q1", SurveyDate: time.Now()}, nil))

	tests := []httpTest{
		{
			name: "real active survey limit", method: http.MethodPost, path: surveysPath, token: token,
			body:     marchallObj(t, survey.NewTemplate{Name: "Q2", SurveyDate: time.Now()}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "plan limit reached: at most 1 active surveys"}),
		},
		{
			name: "real plan features", method: http.MethodPost, path: "/v1/orgs/" + org.ID + "/questions", token: token,
			body:     marchallObj(t, survey.NewCustomQuestion{Text: "Day?", Kind: survey.KindMultipleChoice, Options: []string{"Mon", "Fri"}}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "the Free plan does not include custom questions"}),
		},
		{
			name: "preview of another org", path: otherPath + "/permissions", token: token,
			wantCode: http.StatusOK,
		},
		{
			name: "no deleting another org", method: http.MethodDelete, path: otherPath, token: token,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: organization.ErrNotMember.Error()}),
		},
		{
			name: "no billing in another org", method: http.MethodPut, path: otherPath + "/subscription", token: token,
			body:     marchallObj(t, subscription.ChangePlan{Plan: subscription.PlanEnterprise}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: organization.ErrNotMember.Error()}),
		},
	}
	runHTTPTests(t, app, tests)

	sub, err := env.Subs.Get(ctxBG, other.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.PlanFree, sub.Plan)
}

func Test_surveyApi_export(t *testing.T) {
	app, env := setup(t)
	org, owner := env.CreateOrg(t, "Acme", subscription.PlanPro)
	surveysPath := "/v1/orgs/" + org.ID + "/surveys"
	ownerToken := getToken(t, env.Conf, owner)

	var s SurveyResponse
	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, surveysPath, ownerToken, survey.NewTemplate{Name: "Pulse", SurveyDate: time.Now()}, &s))
	publicPath := "/v1/public/surveys/" + publicToken(t, s)
	exportPath := surveysPath + "/" + s.ID + "/export"

	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, publicPath, "", survey.NewResponse{Answers: allAnswers(3)}, nil))
	var e httpErr
	require.Equal(t, http.StatusForbidden, do(t, app, http.MethodGet, exportPath, ownerToken, nil, &e))
	assert.Contains(t, e.Error, "not enough responses")

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, publicPath, "", survey.NewResponse{Answers: allAnswers(5)}, nil))
	}

	exportDay := time.Date(2031, 1, 15, 10, 0, 0, 0, time.UTC)
	survey.NowFunc = func() time.Time { return exportDay }
	defer func() { survey.NowFunc = time.Now }()

	req, rec := newAuthRequest(http.MethodGet, exportPath, ownerToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="survey-`+s.ID+`-20310115.csv"`, rec.Header().Get("Content-Disposition"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 4) // header + 3 responses
}

func Test_surveyApi_customQuestions(t *testing.T) {
	app, env := setup(t)
	free, freeOwner := env.CreateOrg(t, "Free Co", subscription.PlanFree)
	pro, proOwner := env.CreateOrg(t, "Pro Co", subscription.PlanPro)
	manager := env.AddMember(t, pro.ID, "Manny Manager", organization.RoleManager)

	nq := survey.NewCustomQuestion{Text: "How was onboarding?", Kind: survey.KindMultipleChoice, Options: []string{"Good", "Bad"}}
	proPath := "/v1/orgs/" + pro.ID + "/questions"
	managerToken := getToken(t, env.Conf, manager)

	tests := []httpTest{
		{
			name: "free plan", method: http.MethodPost, path: "/v1/orgs/" + free.ID + "/questions", token: getToken(t, env.Conf, freeOwner),
			body:     marchallObj(t, nq),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "the Free plan does not include custom questions"}),
		},
		{
			name: "too few options", method: http.MethodPost, path: proPath, token: managerToken,
			body:     marchallObj(t, survey.NewCustomQuestion{Text: "Yes?", Kind: survey.KindMultipleChoice, Options: []string{"Yes"}}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"options": "multiple choice questions need between 2 and 10 options"}),
		},
		{name: "standard questions", path: proPath + "/standard", token: managerToken, wantCode: http.StatusOK},
	}
	runHTTPTests(t, app, tests)

	var q survey.CustomQuestion
	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, proPath, managerToken, nq, &q))

	var s SurveyResponse
	nt := survey.NewTemplate{Name: "Onboarding", SurveyDate: time.Now(), CustomQuestionIDs: []string{q.ID}}
	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, "/v1/orgs/"+pro.ID+"/surveys", getToken(t, env.Conf, proOwner), nt, &s))
	publicPath := "/v1/public/surveys/" + publicToken(t, s)

	var ps survey.PublicSurvey
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, publicPath, "", nil, &ps))
	require.Len(t, ps.CustomQuestions, 1)

	bad := survey.NewResponse{Answers: allAnswers(3), CustomAnswers: []survey.CustomAnswer{{QuestionID: q.ID, Choice: "Meh"}}}
	var errs map[string]string
	require.Equal(t, http.StatusBadRequest, do(t, app, http.MethodPost, publicPath, "", bad, &errs))
	assert.Equal(t, "invalid choice", errs["custom_answers[0]"])

	good := survey.NewResponse{Answers: allAnswers(3), CustomAnswers: []survey.CustomAnswer{{QuestionID: q.ID, Choice: "Good"}}}
	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, publicPath, "", good, nil))

	// used by a survey: archive, don't delete
	var e httpErr
	require.Equal(t, http.StatusBadRequest, do(t, app, http.MethodDelete, proPath+"/"+q.ID, managerToken, nil, &e))
	archived := true
	var updated survey.CustomQuestion
	require.Equal(t, http.StatusOK, do(t, app, http.MethodPut, proPath+"/"+q.ID, managerToken, survey.UpdateCustomQuestion{Archived: &archived}, &updated))
	assert.True(t, updated.Archived)

	var qs []survey.CustomQuestion
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, proPath, managerToken, nil, &qs))
	assert.Empty(t, qs)
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, proPath+"?archived=true", managerToken, nil, &qs))
	assert.Len(t, qs, 1)
}

func Test_surveyApi_descriptors(t *testing.T) {
	app, env := setup(t)
	org, owner := env.CreateOrg(t, "Acme", subscription.PlanPro)
	manager := env.AddMember(t, org.ID, "Manny Manager", organization.RoleManager)
	member := env.AddMember(t, org.ID, "Mo Member", organization.RoleMember)
	ownerToken := getToken(t, env.Conf, owner)
	managerToken := getToken(t, env.Conf, manager)

	var s SurveyResponse
	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, "/v1/orgs/"+org.ID+"/surveys", ownerToken, survey.NewTemplate{Name: "Pulse", SurveyDate: time.Now()}, &s))
	descPath := "/v1/orgs/" + org.ID + "/surveys/" + s.ID + "/descriptors"

	nd := survey.NewDescriptor{Category: survey.CategoryDemands, Title: "Review workloads", AssignedTo: &manager.ID}
	var d survey.Descriptor
	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, descPath, managerToken, nd, &d))
	assert.Equal(t, survey.DescriptorNotStarted, d.Status)

	outsider := testutil.CreateUser(t, env.UserRepo, "Outsider", "outsider@test.com", "", nil, true)
	tests := []httpTest{
		{
			name: "member cannot view", path: descPath, token: getToken(t, env.Conf, member),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
		{
			name: "invalid category", method: http.MethodPost, path: descPath, token: managerToken,
			body:     marchallObj(t, survey.NewDescriptor{Category: "mood", Title: "X"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "assignee must be a member", method: http.MethodPost, path: descPath, token: managerToken,
			body:     marchallObj(t, survey.NewDescriptor{Category: survey.CategoryControl, Title: "X", AssignedTo: &outsider.ID}),
			wantCode: http.StatusBadRequest,
		},
		{name: "list", path: descPath + "?status=not_started", token: managerToken, wantCode: http.StatusOK, wantData: marchallList(t, d)},
		{name: "filtered out", path: descPath + "?status=completed", token: managerToken, wantCode: http.StatusOK, wantData: marchallList(t)},
	}
	runHTTPTests(t, app, tests)

	completed := survey.DescriptorCompleted
	var updated survey.Descriptor
	require.Equal(t, http.StatusOK, do(t, app, http.MethodPut, descPath+"/"+d.ID, managerToken, survey.UpdateDescriptor{Status: &completed}, &updated))
	assert.Equal(t, survey.DescriptorCompleted, updated.Status)

	require.Equal(t, http.StatusNoContent, do(t, app, http.MethodDelete, descPath+"/"+d.ID, managerToken, nil, nil))
	assert.Equal(t, http.StatusNotFound, do(t, app, http.MethodGet, descPath+"/"+d.ID, managerToken, nil, nil))
}
