package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/survey"
)

const (
	templateColumns   = `id, org_id, name, description, survey_date, close_date, public_token, custom_question_ids, created_by, created_at, updated_at`
	responseColumns   = `id, survey_id, org_id, team_id, answers, custom_answers, submitted_at`
	questionColumns   = `id, org_id, text, kind, options, archived, created_by, created_at, updated_at`
	descriptorColumns = `id, org_id, survey_id, category, title, status, deadline, assigned_to, actions, notes, created_by, created_at, updated_at`
)

type (
	templateRow struct {
		ID                string         `db:"id"`
		OrgID             string         `db:"org_id"`
		Name              string         `db:"name"`
		Description       string         `db:"description"`
		SurveyDate        time.Time      `db:"survey_date"`
		CloseDate         sql.NullTime   `db:"close_date"`
		PublicToken       string         `db:"public_token"`
		CustomQuestionIDs pq.StringArray `db:"custom_question_ids"`
		CreatedBy         sql.NullString `db:"created_by"`
		CreatedAt         time.Time      `db:"created_at"`
		UpdatedAt         time.Time      `db:"updated_at"`
	}

	responseRow struct {
		ID            string         `db:"id"`
		SurveyID      string         `db:"survey_id"`
		OrgID         string         `db:"org_id"`
		TeamID        sql.NullString `db:"team_id"`
		Answers       []byte         `db:"answers"`
		CustomAnswers []byte         `db:"custom_answers"`
		SubmittedAt   time.Time      `db:"submitted_at"`
	}

	questionRow struct {
		ID        string         `db:"id"`
		OrgID     string         `db:"org_id"`
		Text      string         `db:"text"`
		Kind      string         `db:"kind"`
		Options   pq.StringArray `db:"options"`
		Archived  bool           `db:"archived"`
		CreatedBy sql.NullString `db:"created_by"`
		CreatedAt time.Time      `db:"created_at"`
		UpdatedAt time.Time      `db:"updated_at"`
	}

	descriptorRow struct {
		ID         string         `db:"id"`
		OrgID      string         `db:"org_id"`
		SurveyID   string         `db:"survey_id"`
		Category   string         `db:"category"`
		Title      string         `db:"title"`
		Status     string         `db:"status"`
		Deadline   sql.NullTime   `db:"deadline"`
		AssignedTo sql.NullString `db:"assigned_to"`
		Actions    string         `db:"actions"`
		Notes      string         `db:"notes"`
		CreatedBy  sql.NullString `db:"created_by"`
		CreatedAt  time.Time      `db:"created_at"`
		UpdatedAt  time.Time      `db:"updated_at"`
	}
)

func (r templateRow) template() survey.Template {
	ids := []string(r.CustomQuestionIDs)
	if ids == nil {
		ids = []string{}
	}
	return survey.Template{
		ID:                r.ID,
		OrgID:             r.OrgID,
		Name:              r.Name,
		Description:       r.Description,
		SurveyDate:        r.SurveyDate.UTC(),
		CloseDate:         timePtr(r.CloseDate),
		PublicToken:       r.PublicToken,
		CustomQuestionIDs: ids,
		CreatedBy:         r.CreatedBy.String,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func (r responseRow) response() (survey.Response, error) {
	resp := survey.Response{
		ID:          r.ID,
		SurveyID:    r.SurveyID,
		OrgID:       r.OrgID,
		TeamID:      strPtr(r.TeamID),
		SubmittedAt: r.SubmittedAt.UTC(),
	}
	if err := json.Unmarshal(r.Answers, &resp.Answers); err != nil {
		return survey.Response{}, errors.Wrap(err, "decoding answers")
	}
	if err := json.Unmarshal(r.CustomAnswers, &resp.CustomAnswers); err != nil {
		return survey.Response{}, errors.Wrap(err, "decoding custom answers")
	}
	return resp, nil
}

func (r questionRow) question() survey.CustomQuestion {
	opts := []string(r.Options)
	if opts == nil {
		opts = []string{}
	}
	return survey.CustomQuestion{
		ID:        r.ID,
		OrgID:     r.OrgID,
		Text:      r.Text,
		Kind:      survey.QuestionKind(r.Kind),
		Options:   opts,
		Archived:  r.Archived,
		CreatedBy: r.CreatedBy.String,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (r descriptorRow) descriptor() survey.Descriptor {
	return survey.Descriptor{
		ID:         r.ID,
		OrgID:      r.OrgID,
		SurveyID:   r.SurveyID,
		Category:   survey.Category(r.Category),
		Title:      r.Title,
		Status:     survey.DescriptorStatus(r.Status),
		Deadline:   timePtr(r.Deadline),
		AssignedTo: strPtr(r.AssignedTo),
		Actions:    r.Actions,
		Notes:      r.Notes,
		CreatedBy:  r.CreatedBy.String,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

type surveyRepository struct {
	db *sqlx.DB
}

var _ survey.Repository = (*surveyRepository)(nil) // interface compliance check

func NewSurveyRepository(db *sqlx.DB) *surveyRepository {
	return &surveyRepository{db: db}
}

// Templates

func (repo *surveyRepository) CreateTemplate(ctx context.Context, t survey.Template) (survey.Template, error) {
	t.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO survey (`+templateColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.OrgID, t.Name, t.Description, t.SurveyDate.UTC(), nullTime(t.CloseDate), t.PublicToken,
		pq.Array(t.CustomQuestionIDs), nullString(&t.CreatedBy), t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return survey.Template{}, errors.Wrap(err, "inserting survey")
	}
	return t, nil
}

func (repo *surveyRepository) GetTemplate(ctx context.Context, orgID, id string) (survey.Template, error) {
	if !isUUID(orgID, id) {
		return survey.Template{}, survey.ErrNotFound
	}
	var row templateRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+templateColumns+` FROM survey WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return survey.Template{}, trapNoRows(err, survey.ErrNotFound, "getting survey")
	}
	return row.template(), nil
}

func (repo *surveyRepository) GetTemplateByToken(ctx context.Context, token string) (survey.Template, error) {
	var row templateRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+templateColumns+` FROM survey WHERE public_token = $1`, token)
	if err != nil {
		return survey.Template{}, trapNoRows(err, survey.ErrNotFound, "getting survey by token")
	}
	return row.template(), nil
}

func (repo *surveyRepository) QueryTemplates(ctx context.Context, orgID string, filter survey.TemplateFilter, ordering []core.DBOrdering, page core.Pagination, now time.Time) ([]survey.Template, int, error) {
	var w where
	w.add("org_id = ?", orgID)
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		w.add("(name ILIKE ? OR description ILIKE ?)", pattern, pattern)
	}
	switch filter.Status {
	case survey.StatusOpen:
		w.add("(close_date IS NULL OR close_date > ?)", now.UTC())
	case survey.StatusClosed:
		w.add("close_date <= ?", now.UTC())
	}
	if filter.CreatedBy != "" {
		if !isUUID(filter.CreatedBy) {
			return []survey.Template{}, 0, nil
		}
		w.add("created_by = ?", filter.CreatedBy)
	}

	var total int
	if err := repo.db.GetContext(ctx, &total, repo.db.Rebind(`SELECT COUNT(*) FROM survey`+w.String()), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting surveys")
	}

	order := orderBy(ordering, "created_at DESC")
	order = strings.Replace(order, "close_date ASC", "close_date ASC NULLS LAST", 1)
	order = strings.Replace(order, "close_date DESC", "close_date DESC NULLS FIRST", 1)
	args := append(w.args, page.Limit(), page.Offset())
	q := repo.db.Rebind(`SELECT ` + templateColumns + ` FROM survey` + w.String() + order + ` LIMIT ? OFFSET ?`)
	var rows []templateRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying surveys")
	}
	tmpls := make([]survey.Template, 0, len(rows))
	for _, r := range rows {
		tmpls = append(tmpls, r.template())
	}
	return tmpls, total, nil
}

func (repo *surveyRepository) CountActiveTemplates(ctx context.Context, orgID string, now time.Time) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM survey WHERE org_id = $1 AND (close_date IS NULL OR close_date > $2)`, orgID, now.UTC())
	return n, errors.Wrap(err, "counting active surveys")
}

func (repo *surveyRepository) UpdateTemplate(ctx context.Context, t survey.Template) (survey.Template, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE survey SET
			name = $1, description = $2, survey_date = $3, close_date = $4, public_token = $5,
			custom_question_ids = $6, updated_at = $7
		WHERE org_id = $8 AND id = $9`,
		t.Name, t.Description, t.SurveyDate.UTC(), nullTime(t.CloseDate), t.PublicToken,
		pq.Array(t.CustomQuestionIDs), t.UpdatedAt.UTC(), t.OrgID, t.ID)
	if err != nil {
		return survey.Template{}, errors.Wrap(err, "updating survey")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return survey.Template{}, survey.ErrNotFound
	}
	return t, nil
}

// DeleteTemplate relies on ON DELETE CASCADE for responses & descriptors.
func (repo *surveyRepository) DeleteTemplate(ctx context.Context, orgID, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM survey WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return errors.Wrap(err, "deleting survey")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return survey.ErrNotFound
	}
	return nil
}

// Responses

func (repo *surveyRepository) CreateResponse(ctx context.Context, r survey.Response) (survey.Response, error) {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return survey.Response{}, errors.Wrap(err, "encoding answers")
	}
	customAnswers, err := json.Marshal(r.CustomAnswers)
	if err != nil {
		return survey.Response{}, errors.Wrap(err, "encoding custom answers")
	}

	r.ID = uuid.New().String()
	_, err = repo.db.ExecContext(ctx,
		`INSERT INTO response (`+responseColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.SurveyID, r.OrgID, nullString(r.TeamID), answers, customAnswers, r.SubmittedAt.UTC())
	if err != nil {
		return survey.Response{}, errors.Wrap(err, "inserting response")
	}
	return r, nil
}

func (repo *surveyRepository) CountResponses(ctx context.Context, surveyID string) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM response WHERE survey_id = $1`, surveyID)
	return n, errors.Wrap(err, "counting responses")
}

func (repo *surveyRepository) ListResponses(ctx context.Context, surveyID, teamID string) ([]survey.Response, error) {
	var w where
	w.add("survey_id = ?", surveyID)
	if teamID != "" {
		if !isUUID(teamID) {
			return []survey.Response{}, nil
		}
		w.add("team_id = ?", teamID)
	}
	var rows []responseRow
	q := repo.db.Rebind(`SELECT ` + responseColumns + ` FROM response` + w.String() + ` ORDER BY submitted_at`)
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "listing responses")
	}
	resps := make([]survey.Response, 0, len(rows))
	for _, row := range rows {
		r, err := row.response()
		if err != nil {
			return nil, err
		}
		resps = append(resps, r)
	}
	return resps, nil
}

// Custom questions

func (repo *surveyRepository) CreateCustomQuestion(ctx context.Context, q survey.CustomQuestion) (survey.CustomQuestion, error) {
	q.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO custom_question (`+questionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		q.ID, q.OrgID, q.Text, string(q.Kind), pq.Array(q.Options), q.Archived, nullString(&q.CreatedBy),
		q.CreatedAt.UTC(), q.UpdatedAt.UTC())
	if err != nil {
		return survey.CustomQuestion{}, errors.Wrap(err, "inserting custom question")
	}
	return q, nil
}

func (repo *surveyRepository) GetCustomQuestion(ctx context.Context, orgID, id string) (survey.CustomQuestion, error) {
	if !isUUID(orgID, id) {
		return survey.CustomQuestion{}, survey.ErrCustomQuestionNotFound
	}
	var row questionRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+questionColumns+` FROM custom_question WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return survey.CustomQuestion{}, trapNoRows(err, survey.ErrCustomQuestionNotFound, "getting custom question")
	}
	return row.question(), nil
}

func (repo *surveyRepository) ListCustomQuestions(ctx context.Context, orgID string, includeArchived bool) ([]survey.CustomQuestion, error) {
	q := `SELECT ` + questionColumns + ` FROM custom_question WHERE org_id = $1`
	if !includeArchived {
		q += ` AND NOT archived`
	}
	var rows []questionRow
	if err := repo.db.SelectContext(ctx, &rows, q+` ORDER BY created_at`, orgID); err != nil {
		return nil, errors.Wrap(err, "listing custom questions")
	}
	qs := make([]survey.CustomQuestion, 0, len(rows))
	for _, r := range rows {
		qs = append(qs, r.question())
	}
	return qs, nil
}

func (repo *surveyRepository) CountCustomQuestions(ctx context.Context, orgID string) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM custom_question WHERE org_id = $1 AND NOT archived`, orgID)
	return n, errors.Wrap(err, "counting custom questions")
}

func (repo *surveyRepository) CustomQuestionInUse(ctx context.Context, orgID, id string) (bool, error) {
	var inUse bool
	err := repo.db.GetContext(ctx, &inUse,
		`SELECT EXISTS (SELECT 1 FROM survey WHERE org_id = $1 AND $2 = ANY(custom_question_ids))`, orgID, id)
	return inUse, errors.Wrap(err, "checking custom question usage")
}

func (repo *surveyRepository) UpdateCustomQuestion(ctx context.Context, q survey.CustomQuestion) (survey.CustomQuestion, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE custom_question SET text = $1, options = $2, archived = $3, updated_at = $4 WHERE org_id = $5 AND id = $6`,
		q.Text, pq.Array(q.Options), q.Archived, q.UpdatedAt.UTC(), q.OrgID, q.ID)
	if err != nil {
		return survey.CustomQuestion{}, errors.Wrap(err, "updating custom question")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return survey.CustomQuestion{}, survey.ErrCustomQuestionNotFound
	}
	return q, nil
}

func (repo *surveyRepository) DeleteCustomQuestion(ctx context.Context, orgID, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM custom_question WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return errors.Wrap(err, "deleting custom question")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return survey.ErrCustomQuestionNotFound
	}
	return nil
}

// Descriptors

func (repo *surveyRepository) CreateDescriptor(ctx context.Context, d survey.Descriptor) (survey.Descriptor, error) {
	d.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO descriptor (`+descriptorColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		d.ID, d.OrgID, d.SurveyID, string(d.Category), d.Title, string(d.Status), nullTime(d.Deadline),
		nullString(d.AssignedTo), d.Actions, d.Notes, nullString(&d.CreatedBy), d.CreatedAt.UTC(), d.UpdatedAt.UTC())
	if err != nil {
		return survey.Descriptor{}, errors.Wrap(err, "inserting descriptor")
	}
	return d, nil
}

func (repo *surveyRepository) GetDescriptor(ctx context.Context, surveyID, id string) (survey.Descriptor, error) {
	if !isUUID(surveyID, id) {
		return survey.Descriptor{}, survey.ErrDescriptorNotFound
	}
	var row descriptorRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+descriptorColumns+` FROM descriptor WHERE survey_id = $1 AND id = $2`, surveyID, id)
	if err != nil {
		return survey.Descriptor{}, trapNoRows(err, survey.ErrDescriptorNotFound, "getting descriptor")
	}
	return row.descriptor(), nil
}

func (repo *surveyRepository) ListDescriptors(ctx context.Context, surveyID string) ([]survey.Descriptor, error) {
	var rows []descriptorRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT `+descriptorColumns+` FROM descriptor WHERE survey_id = $1 ORDER BY created_at`, surveyID)
	if err != nil {
		return nil, errors.Wrap(err, "listing descriptors")
	}
	ds := make([]survey.Descriptor, 0, len(rows))
	for _, r := range rows {
		ds = append(ds, r.descriptor())
	}
	return ds, nil
}

func (repo *surveyRepository) UpdateDescriptor(ctx context.Context, d survey.Descriptor) (survey.Descriptor, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE descriptor SET
			category = $1, title = $2, status = $3, deadline = $4, assigned_to = $5,
			actions = $6, notes = $7, updated_at = $8
		WHERE survey_id = $9 AND id = $10`,
		string(d.Category), d.Title, string(d.Status), nullTime(d.Deadline), nullString(d.AssignedTo),
		d.Actions, d.Notes, d.UpdatedAt.UTC(), d.SurveyID, d.ID)
	if err != nil {
		return survey.Descriptor{}, errors.Wrap(err, "updating descriptor")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return survey.Descriptor{}, survey.ErrDescriptorNotFound
	}
	return d, nil
}

func (repo *surveyRepository) DeleteDescriptor(ctx context.Context, surveyID, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM descriptor WHERE survey_id = $1 AND id = $2`, surveyID, id)
	if err != nil {
		return errors.Wrap(err, "deleting descriptor")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return survey.ErrDescriptorNotFound
	}
	return nil
}
