package survey

import (
	"context"
	"fmt"
	"net/mail"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"

	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/organization"
	"github.com/trezcool/wellbeing/core/subscription"
)

var (
	// errors
	ErrNotFound               = errors.New("survey not found")
	ErrClosed                 = errors.New("this survey is closed")
	ErrCustomQuestionNotFound = errors.New("custom question not found")
	ErrQuestionInUse          = errors.New("this question is used by a survey, archive it instead")
	ErrDescriptorNotFound     = errors.New("action plan item not found")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateTemplate(ctx context.Context, t Template) (Template, error)
		GetTemplate(ctx context.Context, orgID, id string) (Template, error)
		GetTemplateByToken(ctx context.Context, token string) (Template, error)
		QueryTemplates(ctx context.Context, orgID string, filter TemplateFilter, ordering []core.DBOrdering, page core.Pagination, now time.Time) ([]Template, int, error)
		CountActiveTemplates(ctx context.Context, orgID string, now time.Time) (int, error)
		UpdateTemplate(ctx context.Context, t Template) (Template, error)
		// DeleteTemplate also deletes the survey's responses & descriptors.
		DeleteTemplate(ctx context.Context, orgID, id string) error

		CreateResponse(ctx context.Context, r Response) (Response, error)
		CountResponses(ctx context.Context, surveyID string) (int, error)
		// ListResponses lists responses oldest first, restricted to teamID when set.
		ListResponses(ctx context.Context, surveyID, teamID string) ([]Response, error)

		CreateCustomQuestion(ctx context.Context, q CustomQuestion) (CustomQuestion, error)
		GetCustomQuestion(ctx context.Context, orgID, id string) (CustomQuestion, error)
		ListCustomQuestions(ctx context.Context, orgID string, includeArchived bool) ([]CustomQuestion, error)
		CountCustomQuestions(ctx context.Context, orgID string) (int, error) // archived ones excluded
		CustomQuestionInUse(ctx context.Context, orgID, id string) (bool, error)
		UpdateCustomQuestion(ctx context.Context, q CustomQuestion) (CustomQuestion, error)
		DeleteCustomQuestion(ctx context.Context, orgID, id string) error

		CreateDescriptor(ctx context.Context, d Descriptor) (Descriptor, error)
		GetDescriptor(ctx context.Context, surveyID, id string) (Descriptor, error)
		ListDescriptors(ctx context.Context, surveyID string) ([]Descriptor, error)
		UpdateDescriptor(ctx context.Context, d Descriptor) (Descriptor, error)
		DeleteDescriptor(ctx context.Context, surveyID, id string) error
	}

	orgSource interface {
		Get(ctx context.Context, id string) (organization.Organization, error)
		GetMember(ctx context.Context, orgID, userID string) (organization.Member, error)
		GetTeam(ctx context.Context, orgID, id string) (organization.Team, error)
		ListTeams(ctx context.Context, orgID string) ([]organization.Team, error)
	}

	planSource interface {
		EffectivePlan(ctx context.Context, orgID string) (subscription.Plan, error)
	}

	Service struct {
		repo     Repository
		orgs     orgSource
		plans    planSource
		mailSvc  core.EmailService
		validate *validator.Validate
		conf     *core.Config
	}
)

func NewService(
	repo Repository,
	orgs *organization.Service,
	plans *subscription.Service,
	mailSvc core.EmailService,
	validate *validator.Validate,
	conf *core.Config,
) *Service {
	return &Service{repo: repo, orgs: orgs, plans: plans, mailSvc: mailSvc, validate: validate, conf: conf}
}

// Templates

func (svc *Service) CreateTemplate(ctx context.Context, orgID, creatorID string, plan subscription.Plan, nt NewTemplate) (Template, error) {
	now := NowFunc().UTC()
	tmpl := Template{
		OrgID:             orgID,
		Name:              nt.Name,
		Description:       nt.Description,
		SurveyDate:        nt.SurveyDate.UTC(),
		CloseDate:         utcPtr(nt.CloseDate),
		PublicToken:       ksuid.New().String(),
		CustomQuestionIDs: nt.CustomQuestionIDs,
		CreatedBy:         creatorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if tmpl.CustomQuestionIDs == nil {
		tmpl.CustomQuestionIDs = []string{}
	}

	if !tmpl.IsClosed(now) {
		if err := svc.requireActiveRoom(ctx, orgID, plan, now); err != nil {
			return Template{}, err
		}
	}
	if err := svc.checkCustomQuestions(ctx, orgID, plan, tmpl.CustomQuestionIDs, nil); err != nil {
		return Template{}, err
	}

	tmpl, err := svc.repo.CreateTemplate(ctx, tmpl)
	if err != nil {
		return Template{}, errors.Wrap(err, "creating survey")
	}
	return tmpl, nil
}

func (svc *Service) requireActiveRoom(ctx context.Context, orgID string, plan subscription.Plan, now time.Time) error {
	active, err := svc.repo.CountActiveTemplates(ctx, orgID, now)
	if err != nil {
		return errors.Wrap(err, "counting active surveys")
	}
	return subscription.RequireRoom(plan.Limits.MaxActiveSurveys, active, "active surveys")
}

// checkCustomQuestions makes sure ids are custom questions of the organization.
// Archived questions are only accepted when already in previous.
func (svc *Service) checkCustomQuestions(ctx context.Context, orgID string, plan subscription.Plan, ids, previous []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := plan.RequireFeature(subscription.FeatureCustomQuestions); err != nil {
		return err
	}
	known := make(map[string]bool, len(previous))
	for _, id := range previous {
		known[id] = true
	}
	for i, id := range ids {
		q, err := svc.repo.GetCustomQuestion(ctx, orgID, id)
		if err != nil {
			if errors.Cause(err) == ErrCustomQuestionNotFound {
				return core.NewValidationError(err, core.FieldError{
					Field: "custom_question_ids[" + strconv.Itoa(i) + "]",
					Error: err.Error(),
				})
			}
			return errors.Wrap(err, "getting custom question")
		}
		if q.Archived && !known[id] {
			return core.NewValidationError(nil, core.FieldError{
				Field: "custom_question_ids[" + strconv.Itoa(i) + "]",
				Error: "this question is archived",
			})
		}
	}
	return nil
}

func (svc *Service) GetTemplate(ctx context.Context, orgID, id string) (Template, error) {
	tmpl, err := svc.repo.GetTemplate(ctx, orgID, id)
	if err != nil {
		return Template{}, err
	}
	if tmpl.ResponseCount, err = svc.repo.CountResponses(ctx, tmpl.ID); err != nil {
		return Template{}, errors.Wrap(err, "counting responses")
	}
	return tmpl, nil
}

func (svc *Service) QueryTemplates(ctx context.Context, orgID string, filter TemplateFilter, ordering []core.DBOrdering, page core.Pagination) ([]Template, core.PageMeta, error) {
	filter.Clean()
	page.Clean()
	ordering = core.FilterOrderings(ordering, TemplateOrderingFields)
	tmpls, total, err := svc.repo.QueryTemplates(ctx, orgID, filter, ordering, page, NowFunc().UTC())
	if err != nil {
		return nil, core.PageMeta{}, errors.Wrap(err, "querying surveys")
	}
	for i := range tmpls {
		if tmpls[i].ResponseCount, err = svc.repo.CountResponses(ctx, tmpls[i].ID); err != nil {
			return nil, core.PageMeta{}, errors.Wrap(err, "counting responses")
		}
	}
	return tmpls, core.NewPageMeta(page, total), nil
}

func (svc *Service) UpdateTemplate(ctx context.Context, orgID, id string, plan subscription.Plan, ut UpdateTemplate) (Template, error) {
	tmpl, err := svc.repo.GetTemplate(ctx, orgID, id)
	if err != nil {
		return Template{}, err
	}
	now := NowFunc().UTC()
	wasClosed := tmpl.IsClosed(now)

	if ut.Name != nil {
		tmpl.Name = *ut.Name
	}
	if ut.Description != nil {
		tmpl.Description = *ut.Description
	}
	if ut.SurveyDate != nil {
		tmpl.SurveyDate = ut.SurveyDate.UTC()
	}
	if ut.CloseDate != nil {
		tmpl.CloseDate = utcPtr(ut.CloseDate)
	}
	if err = checkCloseDate(tmpl.SurveyDate, tmpl.CloseDate); err != nil {
		return Template{}, err
	}
	if ut.CustomQuestionIDs != nil {
		if err = svc.checkCustomQuestions(ctx, orgID, plan, *ut.CustomQuestionIDs, tmpl.CustomQuestionIDs); err != nil {
			return Template{}, err
		}
		tmpl.CustomQuestionIDs = *ut.CustomQuestionIDs
	}
	if wasClosed && !tmpl.IsClosed(now) {
		if err = svc.requireActiveRoom(ctx, orgID, plan, now); err != nil {
			return Template{}, err
		}
	}

	tmpl.UpdatedAt = now
	return svc.saveTemplate(ctx, tmpl)
}

// CloseTemplate stops a survey from accepting responses, effective immediately.
func (svc *Service) CloseTemplate(ctx context.Context, orgID, id string) (Template, error) {
	tmpl, err := svc.repo.GetTemplate(ctx, orgID, id)
	if err != nil {
		return Template{}, err
	}
	now := NowFunc().UTC()
	if tmpl.IsClosed(now) {
		return svc.GetTemplate(ctx, orgID, id)
	}
	tmpl.CloseDate = &now
	tmpl.UpdatedAt = now
	return svc.saveTemplate(ctx, tmpl)
}

// ReopenTemplate makes a closed survey accept responses again, until closeDate when set.
func (svc *Service) ReopenTemplate(ctx context.Context, orgID, id string, plan subscription.Plan, closeDate *time.Time) (Template, error) {
	tmpl, err := svc.repo.GetTemplate(ctx, orgID, id)
	if err != nil {
		return Template{}, err
	}
	now := NowFunc().UTC()
	if closeDate != nil && !closeDate.After(now) {
		return Template{}, core.NewValidationError(nil, core.FieldError{Field: "close_date", Error: "close date must be in the future"})
	}
	if tmpl.IsClosed(now) {
		if err = svc.requireActiveRoom(ctx, orgID, plan, now); err != nil {
			return Template{}, err
		}
	}
	tmpl.CloseDate = utcPtr(closeDate)
	if err = checkCloseDate(tmpl.SurveyDate, tmpl.CloseDate); err != nil {
		return Template{}, err
	}
	tmpl.UpdatedAt = now
	return svc.saveTemplate(ctx, tmpl)
}

// RotatePublicToken invalidates the survey's public link and issues a new one.
func (svc *Service) RotatePublicToken(ctx context.Context, orgID, id string) (Template, error) {
	tmpl, err := svc.repo.GetTemplate(ctx, orgID, id)
	if err != nil {
		return Template{}, err
	}
	tmpl.PublicToken = ksuid.New().String()
	tmpl.UpdatedAt = NowFunc().UTC()
	return svc.saveTemplate(ctx, tmpl)
}

func (svc *Service) saveTemplate(ctx context.Context, tmpl Template) (Template, error) {
	tmpl, err := svc.repo.UpdateTemplate(ctx, tmpl)
	if err != nil {
		return Template{}, errors.Wrap(err, "updating survey")
	}
	if tmpl.ResponseCount, err = svc.repo.CountResponses(ctx, tmpl.ID); err != nil {
		return Template{}, errors.Wrap(err, "counting responses")
	}
	return tmpl, nil
}

func (svc *Service) DeleteTemplate(ctx context.Context, orgID, id string) error {
	if _, err := svc.repo.GetTemplate(ctx, orgID, id); err != nil {
		return err
	}
	return svc.repo.DeleteTemplate(ctx, orgID, id)
}

// PublicURL is the link respondents use to answer the survey.
func (svc *Service) PublicURL(tmpl Template) string {
	return svc.conf.FrontendBaseURL + "/s/" + tmpl.PublicToken
}

type Distribution struct {
	Emails  []string `json:"emails" validate:"required,min=1,max=500,unique,dive,required,email"`
	Message string   `json:"message" validate:"max=1000"`
}

func (d *Distribution) Validate(validate *validator.Validate) error {
	for i, email := range d.Emails {
		d.Emails[i] = core.CleanString(email, true /* lower */)
	}
	d.Message = core.CleanString(d.Message)
	return validate.Struct(d)
}

// Distribute emails the survey's public link to every address of d, one message each.
func (svc *Service) Distribute(ctx context.Context, orgID, id string, sender organization.Member, d Distribution) (int, error) {
	tmpl, err := svc.repo.GetTemplate(ctx, orgID, id)
	if err != nil {
		return 0, err
	}
	if tmpl.IsClosed(NowFunc()) {
		return 0, core.NewValidationError(ErrClosed, core.FieldError{Field: "survey", Error: ErrClosed.Error()})
	}
	org, err := svc.orgs.Get(ctx, orgID)
	if err != nil {
		return 0, err
	}

	data := map[string]interface{}{
		"OrgName":    org.Name,
		"SurveyName": tmpl.Name,
		"Sender":     sender.Name,
		"Message":    d.Message,
		"URL":        svc.PublicURL(tmpl),
		"CloseDate":  "",
	}
	if tmpl.CloseDate != nil {
		data["CloseDate"] = tmpl.CloseDate.Format("2 January 2006")
	}

	msgs := make([]*core.EmailMessage, 0, len(d.Emails))
	for _, email := range d.Emails {
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Address: email}},
			Subject:      fmt.Sprintf("%s: %s", org.Name, tmpl.Name),
			TemplateName: "survey_invitation",
			TemplateData: data,
		})
	}
	svc.mailSvc.SendMessages(msgs...)
	return len(msgs), nil
}

// Public side

type (
	PublicTeam struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// PublicSurvey is what respondents see; it never exposes organization internals.
	PublicSurvey struct {
		Name            string             `json:"name"`
		Description     string             `json:"description"`
		OrgName         string             `json:"org_name"`
		SurveyDate      time.Time          `json:"survey_date"`
		CloseDate       *time.Time         `json:"close_date"`
		Questions       []StandardQuestion `json:"questions"`
		CustomQuestions []CustomQuestion   `json:"custom_questions"`
		Teams           []PublicTeam       `json:"teams"`
	}
)

func (svc *Service) openTemplate(ctx context.Context, token string) (Template, error) {
	tmpl, err := svc.repo.GetTemplateByToken(ctx, token)
	if err != nil {
		return Template{}, err
	}
	if tmpl.IsClosed(NowFunc()) {
		return Template{}, ErrClosed
	}
	return tmpl, nil
}

func (svc *Service) customQuestions(ctx context.Context, tmpl Template) ([]CustomQuestion, error) {
	qs := make([]CustomQuestion, 0, len(tmpl.CustomQuestionIDs))
	for _, id := range tmpl.CustomQuestionIDs {
		q, err := svc.repo.GetCustomQuestion(ctx, tmpl.OrgID, id)
		if err != nil {
			if errors.Cause(err) == ErrCustomQuestionNotFound {
				continue
			}
			return nil, errors.Wrap(err, "getting custom question")
		}
		qs = append(qs, q)
	}
	return qs, nil
}

// PublicSurvey returns the open survey behind token.
func (svc *Service) PublicSurvey(ctx context.Context, token string) (PublicSurvey, error) {
	tmpl, err := svc.openTemplate(ctx, token)
	if err != nil {
		return PublicSurvey{}, err
	}
	org, err := svc.orgs.Get(ctx, tmpl.OrgID)
	if err != nil {
		return PublicSurvey{}, err
	}
	cqs, err := svc.customQuestions(ctx, tmpl)
	if err != nil {
		return PublicSurvey{}, err
	}
	teams, err := svc.orgs.ListTeams(ctx, tmpl.OrgID)
	if err != nil {
		return PublicSurvey{}, errors.Wrap(err, "listing teams")
	}
	pteams := make([]PublicTeam, 0, len(teams))
	for _, t := range teams {
		pteams = append(pteams, PublicTeam{ID: t.ID, Name: t.Name})
	}
	return PublicSurvey{
		Name:            tmpl.Name,
		Description:     tmpl.Description,
		OrgName:         org.Name,
		SurveyDate:      tmpl.SurveyDate,
		CloseDate:       tmpl.CloseDate,
		Questions:       StandardQuestions,
		CustomQuestions: cqs,
		Teams:           pteams,
	}, nil
}

// Submit records an anonymous response to the open survey behind token.
func (svc *Service) Submit(ctx context.Context, token string, nr NewResponse) (Response, error) {
	tmpl, err := svc.openTemplate(ctx, token)
	if err != nil {
		return Response{}, err
	}

	var flds []core.FieldError
	flds = append(flds, checkAnswers(nr.Answers)...)

	cqs, err := svc.customQuestions(ctx, tmpl)
	if err != nil {
		return Response{}, err
	}
	flds = append(flds, checkCustomAnswers(cqs, nr.CustomAnswers)...)

	if nr.TeamID != nil && *nr.TeamID != "" {
		if _, err = svc.orgs.GetTeam(ctx, tmpl.OrgID, *nr.TeamID); err != nil {
			if errors.Cause(err) != organization.ErrTeamNotFound {
				return Response{}, errors.Wrap(err, "getting team")
			}
			flds = append(flds, core.FieldError{Field: "team_id", Error: err.Error()})
		}
	} else {
		nr.TeamID = nil
	}
	if len(flds) > 0 {
		return Response{}, core.NewValidationError(nil, flds...)
	}

	plan, err := svc.plans.EffectivePlan(ctx, tmpl.OrgID)
	if err != nil {
		return Response{}, errors.Wrap(err, "resolving plan")
	}
	count, err := svc.repo.CountResponses(ctx, tmpl.ID)
	if err != nil {
		return Response{}, errors.Wrap(err, "counting responses")
	}
	if err = subscription.RequireRoom(plan.Limits.MaxResponsesPerSurvey, count, "responses per survey"); err != nil {
		return Response{}, err
	}

	customAnswers := nr.CustomAnswers
	if customAnswers == nil {
		customAnswers = []CustomAnswer{}
	}
	resp, err := svc.repo.CreateResponse(ctx, Response{
		SurveyID:      tmpl.ID,
		OrgID:         tmpl.OrgID,
		TeamID:        nr.TeamID,
		Answers:       nr.Answers,
		CustomAnswers: customAnswers,
		SubmittedAt:   NowFunc().UTC(),
	})
	if err != nil {
		return Response{}, errors.Wrap(err, "creating response")
	}
	return resp, nil
}

// checkAnswers requires an answer within [MinScore, MaxScore] for every standard question, and nothing else.
func checkAnswers(answers map[int]int) []core.FieldError {
	var flds []core.FieldError
	for _, q := range StandardQuestions {
		answer, ok := answers[q.Number]
		field := "answers." + strconv.Itoa(q.Number)
		switch {
		case !ok:
			flds = append(flds, core.FieldError{Field: field, Error: "this question is required"})
		case answer < MinScore || answer > MaxScore:
			flds = append(flds, core.FieldError{Field: field, Error: fmt.Sprintf("must be between %d and %d", MinScore, MaxScore)})
		}
	}
	for num := range answers {
		if _, ok := GetStandardQuestion(num); !ok {
			flds = append(flds, core.FieldError{Field: "answers." + strconv.Itoa(num), Error: "unknown question"})
		}
	}
	return flds
}

func checkCustomAnswers(qs []CustomQuestion, answers []CustomAnswer) []core.FieldError {
	byID := make(map[string]CustomQuestion, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	var flds []core.FieldError
	seen := make(map[string]bool, len(answers))
	for i, a := range answers {
		field := "custom_answers[" + strconv.Itoa(i) + "]"
		q, ok := byID[a.QuestionID]
		if !ok {
			flds = append(flds, core.FieldError{Field: field, Error: "unknown question"})
			continue
		}
		if seen[a.QuestionID] {
			flds = append(flds, core.FieldError{Field: field, Error: "question answered more than once"})
			continue
		}
		seen[a.QuestionID] = true

		switch q.Kind {
		case KindFreeText:
			if a.Choice != "" {
				flds = append(flds, core.FieldError{Field: field, Error: "free text questions take a text answer"})
			} else if len(a.Text) > maxFreeTextAnswer {
				flds = append(flds, core.FieldError{Field: field, Error: fmt.Sprintf("must be at most %d characters", maxFreeTextAnswer)})
			}
		case KindMultipleChoice:
			if a.Text != "" || !q.HasOption(a.Choice) {
				flds = append(flds, core.FieldError{Field: field, Error: "invalid choice"})
			}
		}
	}
	return flds
}

// ListResponses lists a survey's responses, restricted to teamID when set.
// Same rules as Report: team filtering needs the team_reports plan feature,
// and nothing is listed below the anonymity threshold.
func (svc *Service) ListResponses(
	ctx context.Context, orgID, surveyID, teamID string, plan subscription.Plan, page core.Pagination,
) ([]Response, core.PageMeta, error) {
	if _, err := svc.repo.GetTemplate(ctx, orgID, surveyID); err != nil {
		return nil, core.PageMeta{}, err
	}
	if teamID != "" {
		if err := plan.RequireFeature(subscription.FeatureTeamReports); err != nil {
			return nil, core.PageMeta{}, err
		}
		if _, err := svc.orgs.GetTeam(ctx, orgID, teamID); err != nil {
			return nil, core.PageMeta{}, err
		}
	}
	page.Clean()
	resps, err := svc.repo.ListResponses(ctx, surveyID, teamID)
	if err != nil {
		return nil, core.PageMeta{}, errors.Wrap(err, "listing responses")
	}
	if len(resps) == 0 || len(resps) < svc.conf.ReportMinResponses {
		return nil, core.PageMeta{}, errNotEnoughResponses(svc.conf.ReportMinResponses)
	}
	start, end := page.Window(len(resps))
	return resps[start:end], core.NewPageMeta(page, len(resps)), nil
}

// Custom questions

func (svc *Service) CreateCustomQuestion(ctx context.Context, orgID, creatorID string, plan subscription.Plan, nq NewCustomQuestion) (CustomQuestion, error) {
	if err := plan.RequireFeature(subscription.FeatureCustomQuestions); err != nil {
		return CustomQuestion{}, err
	}
	if err := svc.requireQuestionRoom(ctx, orgID, plan); err != nil {
		return CustomQuestion{}, err
	}

	now := NowFunc().UTC()
	opts := nq.Options
	if opts == nil {
		opts = []string{}
	}
	q, err := svc.repo.CreateCustomQuestion(ctx, CustomQuestion{
		OrgID:     orgID,
		Text:      nq.Text,
		Kind:      nq.Kind,
		Options:   opts,
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return CustomQuestion{}, errors.Wrap(err, "creating custom question")
	}
	return q, nil
}

func (svc *Service) requireQuestionRoom(ctx context.Context, orgID string, plan subscription.Plan) error {
	count, err := svc.repo.CountCustomQuestions(ctx, orgID)
	if err != nil {
		return errors.Wrap(err, "counting custom questions")
	}
	return subscription.RequireRoom(plan.Limits.MaxCustomQuestions, count, "custom questions")
}

func (svc *Service) GetCustomQuestion(ctx context.Context, orgID, id string) (CustomQuestion, error) {
	return svc.repo.GetCustomQuestion(ctx, orgID, id)
}

func (svc *Service) ListCustomQuestions(ctx context.Context, orgID string, includeArchived bool) ([]CustomQuestion, error) {
	return svc.repo.ListCustomQuestions(ctx, orgID, includeArchived)
}

func (svc *Service) UpdateCustomQuestion(ctx context.Context, orgID, id string, plan subscription.Plan, uq UpdateCustomQuestion) (CustomQuestion, error) {
	if err := plan.RequireFeature(subscription.FeatureCustomQuestions); err != nil {
		return CustomQuestion{}, err
	}
	q, err := svc.repo.GetCustomQuestion(ctx, orgID, id)
	if err != nil {
		return CustomQuestion{}, err
	}
	if err = uq.Validate(svc.validate, q); err != nil {
		return CustomQuestion{}, err
	}

	if uq.Text != nil {
		q.Text = *uq.Text
	}
	if uq.Options != nil {
		q.Options = *uq.Options
	}
	if uq.Archived != nil && *uq.Archived != q.Archived {
		if !*uq.Archived {
			if err = svc.requireQuestionRoom(ctx, orgID, plan); err != nil {
				return CustomQuestion{}, err
			}
		}
		q.Archived = *uq.Archived
	}
	q.UpdatedAt = NowFunc().UTC()
	if q, err = svc.repo.UpdateCustomQuestion(ctx, q); err != nil {
		return CustomQuestion{}, errors.Wrap(err, "updating custom question")
	}
	return q, nil
}

func (svc *Service) DeleteCustomQuestion(ctx context.Context, orgID, id string) error {
	if _, err := svc.repo.GetCustomQuestion(ctx, orgID, id); err != nil {
		return err
	}
	inUse, err := svc.repo.CustomQuestionInUse(ctx, orgID, id)
	if err != nil {
		return errors.Wrap(err, "checking custom question usage")
	}
	if inUse {
		return core.NewValidationError(ErrQuestionInUse, core.FieldError{Field: "id", Error: ErrQuestionInUse.Error()})
	}
	return svc.repo.DeleteCustomQuestion(ctx, orgID, id)
}

// Action plans

func (svc *Service) CreateDescriptor(ctx context.Context, orgID, surveyID, creatorID string, nd NewDescriptor) (Descriptor, error) {
	if _, err := svc.repo.GetTemplate(ctx, orgID, surveyID); err != nil {
		return Descriptor{}, err
	}
	assignee, err := svc.checkAssignee(ctx, orgID, nd.AssignedTo)
	if err != nil {
		return Descriptor{}, err
	}

	now := NowFunc().UTC()
	d, err := svc.repo.CreateDescriptor(ctx, Descriptor{
		OrgID:      orgID,
		SurveyID:   surveyID,
		Category:   nd.Category,
		Title:      nd.Title,
		Status:     nd.Status,
		Deadline:   utcPtr(nd.Deadline),
		AssignedTo: assignee,
		Actions:    nd.Actions,
		Notes:      nd.Notes,
		CreatedBy:  creatorID,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return Descriptor{}, errors.Wrap(err, "creating descriptor")
	}
	return d, nil
}

// checkAssignee makes sure userID, when set, is a member of the organization.
func (svc *Service) checkAssignee(ctx context.Context, orgID string, userID *string) (*string, error) {
	if userID == nil || *userID == "" {
		return nil, nil
	}
	if _, err := svc.orgs.GetMember(ctx, orgID, *userID); err != nil {
		if errors.Cause(err) == organization.ErrNotMember {
			return nil, core.NewValidationError(err, core.FieldError{Field: "assigned_to", Error: err.Error()})
		}
		return nil, errors.Wrap(err, "getting member")
	}
	return userID, nil
}

func (svc *Service) GetDescriptor(ctx context.Context, orgID, surveyID, id string) (Descriptor, error) {
	if _, err := svc.repo.GetTemplate(ctx, orgID, surveyID); err != nil {
		return Descriptor{}, err
	}
	return svc.repo.GetDescriptor(ctx, surveyID, id)
}

func (svc *Service) ListDescriptors(ctx context.Context, orgID, surveyID string, filter DescriptorFilter) ([]Descriptor, error) {
	if _, err := svc.repo.GetTemplate(ctx, orgID, surveyID); err != nil {
		return nil, err
	}
	ds, err := svc.repo.ListDescriptors(ctx, surveyID)
	if err != nil {
		return nil, errors.Wrap(err, "listing descriptors")
	}
	kept := make([]Descriptor, 0, len(ds))
	for _, d := range ds {
		if filter.Match(d) {
			kept = append(kept, d)
		}
	}
	return kept, nil
}

func (svc *Service) UpdateDescriptor(ctx context.Context, orgID, surveyID, id string, ud UpdateDescriptor) (Descriptor, error) {
	d, err := svc.GetDescriptor(ctx, orgID, surveyID, id)
	if err != nil {
		return Descriptor{}, err
	}

	if ud.Category != nil {
		d.Category = *ud.Category
	}
	if ud.Title != nil {
		d.Title = *ud.Title
	}
	if ud.Status != nil {
		d.Status = *ud.Status
	}
	if ud.Deadline != nil {
		d.Deadline = utcPtr(ud.Deadline)
	}
	if ud.AssignedTo != nil {
		if d.AssignedTo, err = svc.checkAssignee(ctx, orgID, ud.AssignedTo); err != nil {
			return Descriptor{}, err
		}
	}
	if ud.Actions != nil {
		d.Actions = core.CleanString(*ud.Actions)
	}
	if ud.Notes != nil {
		d.Notes = core.CleanString(*ud.Notes)
	}
	d.UpdatedAt = NowFunc().UTC()

	if d, err = svc.repo.UpdateDescriptor(ctx, d); err != nil {
		return Descriptor{}, errors.Wrap(err, "updating descriptor")
	}
	return d, nil
}

func (svc *Service) DeleteDescriptor(ctx context.Context, orgID, surveyID, id string) error {
	if _, err := svc.GetDescriptor(ctx, orgID, surveyID, id); err != nil {
		return err
	}
	return svc.repo.DeleteDescriptor(ctx, surveyID, id)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
