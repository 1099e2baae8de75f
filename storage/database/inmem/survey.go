package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/survey"
)

type surveyRepository struct {
	db *DB
}

var _ survey.Repository = (*surveyRepository)(nil) // interface compliance check

func NewSurveyRepository(db *DB) *surveyRepository {
	return &surveyRepository{db: db}
}

func copyTemplate(t survey.Template) survey.Template {
	t.CustomQuestionIDs = copyStrings(t.CustomQuestionIDs)
	if t.CloseDate != nil {
		cd := *t.CloseDate
		t.CloseDate = &cd
	}
	return t
}

func copyResponse(r survey.Response) survey.Response {
	r.TeamID = copyStrPtr(r.TeamID)
	answers := make(map[int]int, len(r.Answers))
	for k, v := range r.Answers {
		answers[k] = v
	}
	r.Answers = answers
	r.CustomAnswers = append(make([]survey.CustomAnswer, 0, len(r.CustomAnswers)), r.CustomAnswers...)
	return r
}

func copyQuestion(q survey.CustomQuestion) survey.CustomQuestion {
	q.Options = copyStrings(q.Options)
	return q
}

func copyDescriptor(d survey.Descriptor) survey.Descriptor {
	d.AssignedTo = copyStrPtr(d.AssignedTo)
	if d.Deadline != nil {
		dl := *d.Deadline
		d.Deadline = &dl
	}
	return d
}

// deleteTemplate must be called with the write lock held.
func (db *DB) deleteTemplate(id string) {
	delete(db.templates, id)
	delete(db.responses, id)
	for did, d := range db.descriptors {
		if d.SurveyID == id {
			delete(db.descriptors, did)
		}
	}
}

// Templates

func (repo *surveyRepository) CreateTemplate(_ context.Context, t survey.Template) (survey.Template, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t.ID = newID()
	t = copyTemplate(t)
	repo.db.templates[t.ID] = &t
	return copyTemplate(t), nil
}

func (repo *surveyRepository) GetTemplate(_ context.Context, orgID, id string) (survey.Template, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.templates[id]; ok && t.OrgID == orgID {
		return copyTemplate(*t), nil
	}
	return survey.Template{}, survey.ErrNotFound
}

func (repo *surveyRepository) GetTemplateByToken(_ context.Context, token string) (survey.Template, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, t := range repo.db.templates {
		if t.PublicToken == token {
			return copyTemplate(*t), nil
		}
	}
	return survey.Template{}, survey.ErrNotFound
}

func (repo *surveyRepository) QueryTemplates(_ context.Context, orgID string, filter survey.TemplateFilter, ordering []core.DBOrdering, page core.Pagination, now time.Time) ([]survey.Template, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tmpls := make([]survey.Template, 0)
	for _, t := range repo.db.templates {
		if t.OrgID == orgID && filter.Match(*t, now) {
			tmpls = append(tmpls, copyTemplate(*t))
		}
	}
	survey.SortTemplates(tmpls, ordering)
	start, end := page.Window(len(tmpls))
	return tmpls[start:end], len(tmpls), nil
}

func (repo *surveyRepository) CountActiveTemplates(_ context.Context, orgID string, now time.Time) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var n int
	for _, t := range repo.db.templates {
		if t.OrgID == orgID && !t.IsClosed(now) {
			n++
		}
	}
	return n, nil
}

func (repo *surveyRepository) UpdateTemplate(_ context.Context, t survey.Template) (survey.Template, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if orig, ok := repo.db.templates[t.ID]; !ok || orig.OrgID != t.OrgID {
		return survey.Template{}, survey.ErrNotFound
	}
	t = copyTemplate(t)
	repo.db.templates[t.ID] = &t
	return copyTemplate(t), nil
}

func (repo *surveyRepository) DeleteTemplate(_ context.Context, orgID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if t, ok := repo.db.templates[id]; !ok || t.OrgID != orgID {
		return survey.ErrNotFound
	}
	repo.db.deleteTemplate(id)
	return nil
}

// Responses

func (repo *surveyRepository) CreateResponse(_ context.Context, r survey.Response) (survey.Response, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.templates[r.SurveyID]; !ok {
		return survey.Response{}, survey.ErrNotFound
	}
	r.ID = newID()
	repo.db.responses[r.SurveyID] = append(repo.db.responses[r.SurveyID], copyResponse(r))
	return r, nil
}

func (repo *surveyRepository) CountResponses(_ context.Context, surveyID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return len(repo.db.responses[surveyID]), nil
}

func (repo *surveyRepository) ListResponses(_ context.Context, surveyID, teamID string) ([]survey.Response, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	resps := make([]survey.Response, 0, len(repo.db.responses[surveyID]))
	for _, r := range repo.db.responses[surveyID] {
		if teamID == "" || (r.TeamID != nil && *r.TeamID == teamID) {
			resps = append(resps, copyResponse(r))
		}
	}
	return resps, nil
}

// Custom questions

func (repo *surveyRepository) CreateCustomQuestion(_ context.Context, q survey.CustomQuestion) (survey.CustomQuestion, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	q.ID = newID()
	q = copyQuestion(q)
	repo.db.questions[q.ID] = &q
	return copyQuestion(q), nil
}

func (repo *surveyRepository) GetCustomQuestion(_ context.Context, orgID, id string) (survey.CustomQuestion, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if q, ok := repo.db.questions[id]; ok && q.OrgID == orgID {
		return copyQuestion(*q), nil
	}
	return survey.CustomQuestion{}, survey.ErrCustomQuestionNotFound
}

func (repo *surveyRepository) ListCustomQuestions(_ context.Context, orgID string, includeArchived bool) ([]survey.CustomQuestion, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	qs := make([]survey.CustomQuestion, 0)
	for _, q := range repo.db.questions {
		if q.OrgID == orgID && (includeArchived || !q.Archived) {
			qs = append(qs, copyQuestion(*q))
		}
	}
	sort.Slice(qs, func(i, j int) bool { return qs[i].CreatedAt.Before(qs[j].CreatedAt) })
	return qs, nil
}

func (repo *surveyRepository) CountCustomQuestions(_ context.Context, orgID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var n int
	for _, q := range repo.db.questions {
		if q.OrgID == orgID && !q.Archived {
			n++
		}
	}
	return n, nil
}

func (repo *surveyRepository) CustomQuestionInUse(_ context.Context, orgID, id string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, t := range repo.db.templates {
		if t.OrgID != orgID {
			continue
		}
		for _, qid := range t.CustomQuestionIDs {
			if qid == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (repo *surveyRepository) UpdateCustomQuestion(_ context.Context, q survey.CustomQuestion) (survey.CustomQuestion, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if orig, ok := repo.db.questions[q.ID]; !ok || orig.OrgID != q.OrgID {
		return survey.CustomQuestion{}, survey.ErrCustomQuestionNotFound
	}
	q = copyQuestion(q)
	repo.db.questions[q.ID] = &q
	return copyQuestion(q), nil
}

func (repo *surveyRepository) DeleteCustomQuestion(_ context.Context, orgID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if q, ok := repo.db.questions[id]; !ok || q.OrgID != orgID {
		return survey.ErrCustomQuestionNotFound
	}
	delete(repo.db.questions, id)
	return nil
}

// Descriptors

func (repo *surveyRepository) CreateDescriptor(_ context.Context, d survey.Descriptor) (survey.Descriptor, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	d.ID = newID()
	d = copyDescriptor(d)
	repo.db.descriptors[d.ID] = &d
	return copyDescriptor(d), nil
}

func (repo *surveyRepository) GetDescriptor(_ context.Context, surveyID, id string) (survey.Descriptor, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if d, ok := repo.db.descriptors[id]; ok && d.SurveyID == surveyID {
		return copyDescriptor(*d), nil
	}
	return survey.Descriptor{}, survey.ErrDescriptorNotFound
}

func (repo *surveyRepository) ListDescriptors(_ context.Context, surveyID string) ([]survey.Descriptor, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ds := make([]survey.Descriptor, 0)
	for _, d := range repo.db.descriptors {
		if d.SurveyID == surveyID {
			ds = append(ds, copyDescriptor(*d))
		}
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i].CreatedAt.Before(ds[j].CreatedAt) })
	return ds, nil
}

func (repo *surveyRepository) UpdateDescriptor(_ context.Context, d survey.Descriptor) (survey.Descriptor, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if orig, ok := repo.db.descriptors[d.ID]; !ok || orig.SurveyID != d.SurveyID {
		return survey.Descriptor{}, survey.ErrDescriptorNotFound
	}
	d = copyDescriptor(d)
	repo.db.descriptors[d.ID] = &d
	return copyDescriptor(d), nil
}

func (repo *surveyRepository) DeleteDescriptor(_ context.Context, surveyID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if d, ok := repo.db.descriptors[id]; !ok || d.SurveyID != surveyID {
		return survey.ErrDescriptorNotFound
	}
	delete(repo.db.descriptors, id)
	return nil
}
