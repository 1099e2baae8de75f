package survey

import (
	"context"
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/subscription"
)

type (
	CategoryScore struct {
		Category Category `json:"category"`
		Label    string   `json:"label"`
		Mean     float64  `json:"mean"`
	}

	QuestionScore struct {
		Number   int      `json:"number"`
		Text     string   `json:"text"`
		Category Category `json:"category"`
		Negative bool     `json:"negative"`
		Mean     float64  `json:"mean"` // of scores, after reverse scoring
		// Distribution counts raw answers: Distribution[0] is the number of 1s.
		Distribution []int `json:"distribution"`
	}

	ChoiceCount struct {
		Choice string `json:"choice"`
		Count  int    `json:"count"`
	}

	CustomQuestionSummary struct {
		QuestionID string        `json:"question_id"`
		Text       string        `json:"text"`
		Kind       QuestionKind  `json:"kind"`
		Answered   int           `json:"answered"`
		Choices    []ChoiceCount `json:"choices,omitempty"`
		Texts      []string      `json:"texts,omitempty"`
	}

	// Report aggregates a survey's responses. Below MinResponses it is Suppressed and carries no scores.
	Report struct {
		SurveyID        string                  `json:"survey_id"`
		SurveyName      string                  `json:"survey_name"`
		TeamID          *string                 `json:"team_id"`
		Responses       int                     `json:"responses"`
		MinResponses    int                     `json:"min_responses"`
		Suppressed      bool                    `json:"suppressed"`
		Overall         *float64                `json:"overall"`
		Categories      []CategoryScore         `json:"categories"`
		Questions       []QuestionScore         `json:"questions"`
		CustomQuestions []CustomQuestionSummary `json:"custom_questions"`
	}
)

// Report builds the survey's report, restricted to teamID when set.
// Team reports need the team_reports plan feature.
func (svc *Service) Report(ctx context.Context, orgID, surveyID, teamID string, plan subscription.Plan) (Report, error) {
	tmpl, err := svc.repo.GetTemplate(ctx, orgID, surveyID)
	if err != nil {
		return Report{}, err
	}
	if teamID != "" {
		if err = plan.RequireFeature(subscription.FeatureTeamReports); err != nil {
			return Report{}, err
		}
		if _, err = svc.orgs.GetTeam(ctx, orgID, teamID); err != nil {
			return Report{}, err
		}
	}

	resps, err := svc.repo.ListResponses(ctx, surveyID, teamID)
	if err != nil {
		return Report{}, errors.Wrap(err, "listing responses")
	}
	cqs, err := svc.customQuestions(ctx, tmpl)
	if err != nil {
		return Report{}, err
	}

	rep := BuildReport(tmpl, cqs, resps, svc.conf.ReportMinResponses)
	if teamID != "" {
		rep.TeamID = &teamID
	}
	return rep, nil
}

// BuildReport aggregates resps. Means are rounded to 2 decimals.
func BuildReport(tmpl Template, cqs []CustomQuestion, resps []Response, minResponses int) Report {
	rep := Report{
		SurveyID:        tmpl.ID,
		SurveyName:      tmpl.Name,
		Responses:       len(resps),
		MinResponses:    minResponses,
		Categories:      []CategoryScore{},
		Questions:       []QuestionScore{},
		CustomQuestions: []CustomQuestionSummary{},
	}
	if len(resps) == 0 || len(resps) < minResponses {
		rep.Suppressed = true
		return rep
	}

	catSums := make(map[Category]float64, len(Categories))
	catCounts := make(map[Category]int, len(Categories))
	var total float64
	var count int

	for _, q := range StandardQuestions {
		qs := QuestionScore{
			Number:       q.Number,
			Text:         q.Text,
			Category:     q.Category,
			Negative:     q.Negative,
			Distribution: make([]int, MaxScore-MinScore+1),
		}
		var sum float64
		var n int
		for _, r := range resps {
			answer, ok := r.Answers[q.Number]
			if !ok || answer < MinScore || answer > MaxScore {
				continue
			}
			qs.Distribution[answer-MinScore]++
			score := float64(q.Score(answer))
			sum += score
			n++
		}
		if n > 0 {
			qs.Mean = round2(sum / float64(n))
		}
		catSums[q.Category] += sum
		catCounts[q.Category] += n
		total += sum
		count += n
		rep.Questions = append(rep.Questions, qs)
	}

	for _, cat := range Categories {
		cs := CategoryScore{Category: cat, Label: cat.Label()}
		if catCounts[cat] > 0 {
			cs.Mean = round2(catSums[cat] / float64(catCounts[cat]))
		}
		rep.Categories = append(rep.Categories, cs)
	}
	if count > 0 {
		overall := round2(total / float64(count))
		rep.Overall = &overall
	}

	for _, q := range cqs {
		rep.CustomQuestions = append(rep.CustomQuestions, summarize(q, resps))
	}
	return rep
}

func summarize(q CustomQuestion, resps []Response) CustomQuestionSummary {
	sum := CustomQuestionSummary{QuestionID: q.ID, Text: q.Text, Kind: q.Kind}
	counts := make(map[string]int, len(q.Options))
	for _, r := range resps {
		for _, a := range r.CustomAnswers {
			if a.QuestionID != q.ID {
				continue
			}
			switch q.Kind {
			case KindFreeText:
				if a.Text == "" {
					continue
				}
				sum.Texts = append(sum.Texts, a.Text)
			case KindMultipleChoice:
				if a.Choice == "" {
					continue
				}
				counts[a.Choice]++
			}
			sum.Answered++
		}
	}

	if q.Kind == KindMultipleChoice {
		sum.Choices = make([]ChoiceCount, 0, len(q.Options))
		for _, opt := range q.Options {
			sum.Choices = append(sum.Choices, ChoiceCount{Choice: opt, Count: counts[opt]})
		}
	}
	// sorted, so submission order is not revealed
	sort.Strings(sum.Texts)
	return sum
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// errNotEnoughResponses is returned when listing or exporting responses of a survey whose report would be suppressed.
func errNotEnoughResponses(minResponses int) error {
	return core.NewForbiddenError("not enough responses to protect respondents' anonymity (at least " + itoa(minResponses) + " needed)")
}
