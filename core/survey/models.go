package survey

import (
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/wellbeing/core"
)

const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Template is a distributable wellbeing questionnaire: the standard questions plus optional custom ones.
type Template struct {
	ID                string     `json:"id"`
	OrgID             string     `json:"org_id"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	SurveyDate        time.Time  `json:"survey_date"`
	CloseDate         *time.Time `json:"close_date"`
	PublicToken       string     `json:"public_token"`
	CustomQuestionIDs []string   `json:"custom_question_ids"`
	CreatedBy         string     `json:"created_by"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	ResponseCount     int        `json:"response_count"`
}

// IsClosed reports whether the survey stopped accepting responses at now.
func (t Template) IsClosed(now time.Time) bool {
	return t.CloseDate != nil && !now.Before(*t.CloseDate)
}

func (t Template) Status(now time.Time) string {
	if t.IsClosed(now) {
		return StatusClosed
	}
	return StatusOpen
}

type NewTemplate struct {
	Name              string     `json:"name" validate:"required,max=150"`
	Description       string     `json:"description" validate:"max=2000"`
	SurveyDate        time.Time  `json:"survey_date" validate:"required"`
	CloseDate         *time.Time `json:"close_date"`
	CustomQuestionIDs []string   `json:"custom_question_ids" validate:"omitempty,unique,dive,required"`
}

func (nt *NewTemplate) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Description = core.CleanString(nt.Description)
	if err := validate.Struct(nt); err != nil {
		return err
	}
	return checkCloseDate(nt.SurveyDate, nt.CloseDate)
}

// UpdateTemplate defines what may be changed on a Template; nil fields are left untouched.
type UpdateTemplate struct {
	Name              *string    `json:"name" validate:"omitempty,min=1,max=150"`
	Description       *string    `json:"description" validate:"omitempty,max=2000"`
	SurveyDate        *time.Time `json:"survey_date"`
	CloseDate         *time.Time `json:"close_date"`
	CustomQuestionIDs *[]string  `json:"custom_question_ids" validate:"omitempty,unique,dive,required"`
}

func (ut *UpdateTemplate) Validate(validate *validator.Validate) error {
	if ut.Name != nil {
		name := core.CleanString(*ut.Name)
		ut.Name = &name
	}
	if ut.Description != nil {
		desc := core.CleanString(*ut.Description)
		ut.Description = &desc
	}
	return validate.Struct(ut)
}

func checkCloseDate(surveyDate time.Time, closeDate *time.Time) error {
	if closeDate != nil && !closeDate.After(surveyDate) {
		return core.NewValidationError(nil, core.FieldError{Field: "close_date", Error: "close date must be after the survey date"})
	}
	return nil
}

type TemplateFilter struct {
	Search    string
	Status    string // open | closed
	CreatedBy string
}

func (tf *TemplateFilter) Clean() {
	tf.Search = core.CleanString(tf.Search)
	tf.Status = core.CleanString(tf.Status, true /* lower */)
	if tf.Status != StatusOpen && tf.Status != StatusClosed {
		tf.Status = ""
	}
}

// Match reports whether t satisfies every set field of the filter at now.
func (tf TemplateFilter) Match(t Template, now time.Time) bool {
	if tf.Search != "" {
		s := strings.ToLower(tf.Search)
		if !strings.Contains(strings.ToLower(t.Name), s) && !strings.Contains(strings.ToLower(t.Description), s) {
			return false
		}
	}
	if tf.Status != "" && t.Status(now) != tf.Status {
		return false
	}
	if tf.CreatedBy != "" && t.CreatedBy != tf.CreatedBy {
		return false
	}
	return true
}

// TemplateOrderingFields maps API ordering names to columns.
var TemplateOrderingFields = map[string]string{
	"name":        "name",
	"survey_date": "survey_date",
	"close_date":  "close_date",
	"created_at":  "created_at",
}

// Custom questions

type QuestionKind string

const (
	KindFreeText       QuestionKind = "free_text"
	KindMultipleChoice QuestionKind = "multiple_choice"

	maxFreeTextAnswer = 2000
	minChoices        = 2
	maxChoices        = 10
)

type CustomQuestion struct {
	ID        string       `json:"id"`
	OrgID     string       `json:"org_id"`
	Text      string       `json:"text"`
	Kind      QuestionKind `json:"kind"`
	Options   []string     `json:"options"`
	Archived  bool         `json:"archived"`
	CreatedBy string       `json:"created_by"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (q CustomQuestion) HasOption(choice string) bool {
	for _, opt := range q.Options {
		if opt == choice {
			return true
		}
	}
	return false
}

type NewCustomQuestion struct {
	Text    string       `json:"text" validate:"required,max=500"`
	Kind    QuestionKind `json:"kind" validate:"required,oneof=free_text multiple_choice"`
	Options []string     `json:"options" validate:"omitempty,unique,dive,required,max=200"`
}

func (nq *NewCustomQuestion) Validate(validate *validator.Validate) error {
	nq.Text = core.CleanString(nq.Text)
	nq.Options = cleanOptions(nq.Options)
	if err := validate.Struct(nq); err != nil {
		return err
	}
	return checkOptions(nq.Kind, nq.Options)
}

type UpdateCustomQuestion struct {
	Text     *string   `json:"text" validate:"omitempty,min=1,max=500"`
	Options  *[]string `json:"options" validate:"omitempty,unique,dive,required,max=200"`
	Archived *bool     `json:"archived"`
}

func (uq *UpdateCustomQuestion) Validate(validate *validator.Validate, orig CustomQuestion) error {
	if uq.Text != nil {
		text := core.CleanString(*uq.Text)
		uq.Text = &text
	}
	if uq.Options != nil {
		opts := cleanOptions(*uq.Options)
		uq.Options = &opts
	}
	if err := validate.Struct(uq); err != nil {
		return err
	}
	if uq.Options != nil {
		return checkOptions(orig.Kind, *uq.Options)
	}
	return nil
}

func cleanOptions(opts []string) []string {
	if opts == nil {
		return nil
	}
	cleaned := make([]string, 0, len(opts))
	for _, opt := range opts {
		cleaned = append(cleaned, core.CleanString(opt))
	}
	return cleaned
}

func checkOptions(kind QuestionKind, opts []string) error {
	switch kind {
	case KindMultipleChoice:
		if len(opts) < minChoices || len(opts) > maxChoices {
			return core.NewValidationError(nil, core.FieldError{Field: "options", Error: "multiple choice questions need between 2 and 10 options"})
		}
	case KindFreeText:
		if len(opts) > 0 {
			return core.NewValidationError(nil, core.FieldError{Field: "options", Error: "free text questions cannot have options"})
		}
	}
	return nil
}

// Responses

type CustomAnswer struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"text,omitempty"`
	Choice     string `json:"choice,omitempty"`
}

// Response is an anonymous submission to a survey.
// Answers maps standard question numbers to raw 1..5 answers.
type Response struct {
	ID            string         `json:"id"`
	SurveyID      string         `json:"survey_id"`
	OrgID         string         `json:"org_id"`
	TeamID        *string        `json:"team_id"`
	Answers       map[int]int    `json:"answers"`
	CustomAnswers []CustomAnswer `json:"custom_answers"`
	SubmittedAt   time.Time      `json:"submitted_at"`
}

type NewResponse struct {
	TeamID        *string        `json:"team_id"`
	Answers       map[int]int    `json:"answers" validate:"required"`
	CustomAnswers []CustomAnswer `json:"custom_answers"`
}

// Action plans

type DescriptorStatus string

const (
	DescriptorNotStarted DescriptorStatus = "not_started"
	DescriptorInProgress DescriptorStatus = "in_progress"
	DescriptorCompleted  DescriptorStatus = "completed"
)

// Descriptor is an action plan line item following up on a survey's results.
type Descriptor struct {
	ID         string           `json:"id"`
	OrgID      string           `json:"org_id"`
	SurveyID   string           `json:"survey_id"`
	Category   Category         `json:"category"`
	Title      string           `json:"title"`
	Status     DescriptorStatus `json:"status"`
	Deadline   *time.Time       `json:"deadline"`
	AssignedTo *string          `json:"assigned_to"`
	Actions    string           `json:"actions"`
	Notes      string           `json:"notes"`
	CreatedBy  string           `json:"created_by"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (d Descriptor) IsOverdue(now time.Time) bool {
	return d.Status != DescriptorCompleted && d.Deadline != nil && now.After(*d.Deadline)
}

type NewDescriptor struct {
	Category   Category         `json:"category" validate:"required,category"`
	Title      string           `json:"title" validate:"required,max=200"`
	Status     DescriptorStatus `json:"status" validate:"omitempty,oneof=not_started in_progress completed"`
	Deadline   *time.Time       `json:"deadline"`
	AssignedTo *string          `json:"assigned_to"`
	Actions    string           `json:"actions" validate:"max=5000"`
	Notes      string           `json:"notes" validate:"max=5000"`
}

func (nd *NewDescriptor) Validate(validate *validator.Validate) error {
	nd.Title = core.CleanString(nd.Title)
	nd.Actions = core.CleanString(nd.Actions)
	nd.Notes = core.CleanString(nd.Notes)
	if nd.Status == "" {
		nd.Status = DescriptorNotStarted
	}
	return validate.Struct(nd)
}

// UpdateDescriptor defines what may be changed on a Descriptor; nil fields are left untouched.
// An empty AssignedTo unassigns it.
type UpdateDescriptor struct {
	Category   *Category         `json:"category" validate:"omitempty,category"`
	Title      *string           `json:"title" validate:"omitempty,min=1,max=200"`
	Status     *DescriptorStatus `json:"status" validate:"omitempty,oneof=not_started in_progress completed"`
	Deadline   *time.Time        `json:"deadline"`
	AssignedTo *string           `json:"assigned_to"`
	Actions    *string           `json:"actions" validate:"omitempty,max=5000"`
	Notes      *string           `json:"notes" validate:"omitempty,max=5000"`
}

func (ud *UpdateDescriptor) Validate(validate *validator.Validate) error {
	if ud.Title != nil {
		title := core.CleanString(*ud.Title)
		ud.Title = &title
	}
	return validate.Struct(ud)
}

type DescriptorFilter struct {
	Status     DescriptorStatus
	AssignedTo string
}

func (df DescriptorFilter) Match(d Descriptor) bool {
	if df.Status != "" && d.Status != df.Status {
		return false
	}
	if df.AssignedTo != "" && (d.AssignedTo == nil || *d.AssignedTo != df.AssignedTo) {
		return false
	}
	return true
}

// SortTemplates sorts templates in place by the given orderings, newest first when none apply.
func SortTemplates(tmpls []Template, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(tmpls, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareTemplates(tmpls[i], tmpls[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compareTemplates(a, b Template, field string) int {
	switch field {
	case "name":
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case "survey_date":
		return compareTimes(a.SurveyDate, b.SurveyDate)
	case "close_date":
		// open-ended surveys close last
		switch {
		case a.CloseDate == nil && b.CloseDate == nil:
			return 0
		case a.CloseDate == nil:
			return 1
		case b.CloseDate == nil:
			return -1
		}
		return compareTimes(*a.CloseDate, *b.CloseDate)
	default:
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
