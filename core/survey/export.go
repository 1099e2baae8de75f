package survey

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/core/subscription"
)

// ExportCSV writes the survey's responses to w as CSV, one row per response.
// Exports need the export plan feature & as many responses as a report.
func (svc *Service) ExportCSV(ctx context.Context, orgID, surveyID string, plan subscription.Plan, w io.Writer) error {
	if err := plan.RequireFeature(subscription.FeatureExport); err != nil {
		return err
	}
	tmpl, err := svc.repo.GetTemplate(ctx, orgID, surveyID)
	if err != nil {
		return err
	}
	resps, err := svc.repo.ListResponses(ctx, surveyID, "")
	if err != nil {
		return errors.Wrap(err, "listing responses")
	}
	if len(resps) == 0 || len(resps) < svc.conf.ReportMinResponses {
		return errNotEnoughResponses(svc.conf.ReportMinResponses)
	}
	cqs, err := svc.customQuestions(ctx, tmpl)
	if err != nil {
		return err
	}
	teams, err := svc.orgs.ListTeams(ctx, orgID)
	if err != nil {
		return errors.Wrap(err, "listing teams")
	}
	teamNames := make(map[string]string, len(teams))
	for _, t := range teams {
		teamNames[t.ID] = t.Name
	}
	return WriteCSV(w, cqs, resps, teamNames)
}

// WriteCSV writes raw answers, then per-category scores, then custom answers.
func WriteCSV(w io.Writer, cqs []CustomQuestion, resps []Response, teamNames map[string]string) error {
	cw := csv.NewWriter(w)

	header := []string{"submitted_at", "team"}
	for _, q := range StandardQuestions {
		header = append(header, "q"+itoa(q.Number))
	}
	for _, cat := range Categories {
		header = append(header, string(cat))
	}
	for _, q := range cqs {
		header = append(header, q.Text)
	}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "writing header")
	}

	for _, r := range resps {
		team := ""
		if r.TeamID != nil {
			team = teamNames[*r.TeamID]
		}
		row := []string{r.SubmittedAt.UTC().Format(time.RFC3339), team}

		catSums := make(map[Category]int, len(Categories))
		catCounts := make(map[Category]int, len(Categories))
		for _, q := range StandardQuestions {
			answer, ok := r.Answers[q.Number]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, itoa(answer))
			catSums[q.Category] += q.Score(answer)
			catCounts[q.Category]++
		}
		for _, cat := range Categories {
			if catCounts[cat] == 0 {
				row = append(row, "")
				continue
			}
			mean := round2(float64(catSums[cat]) / float64(catCounts[cat]))
			row = append(row, strconv.FormatFloat(mean, 'f', 2, 64))
		}

		answers := make(map[string]CustomAnswer, len(r.CustomAnswers))
		for _, a := range r.CustomAnswers {
			answers[a.QuestionID] = a
		}
		for _, q := range cqs {
			a := answers[q.ID]
			if q.Kind == KindMultipleChoice {
				row = append(row, a.Choice)
			} else {
				row = append(row, a.Text)
			}
		}

		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "writing row")
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}

func itoa(i int) string { return strconv.Itoa(i) }
