package subscription

import (
	"fmt"
	"io/fs"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/wellbeing/core"
)

type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanPro        PlanID = "pro"
	PlanEnterprise PlanID = "enterprise"
)

type Feature string

const (
	FeatureCustomQuestions Feature = "custom_questions"
	FeatureActionPlans     Feature = "action_plans"
	FeatureExport          Feature = "export"
	FeatureTeamReports     Feature = "team_reports"
)

// Limits are upper bounds on an organization's usage; 0 means unlimited.
type Limits struct {
	MaxMembers            int `yaml:"max_members" json:"max_members"`
	MaxActiveSurveys      int `yaml:"max_active_surveys" json:"max_active_surveys"`
	MaxResponsesPerSurvey int `yaml:"max_responses_per_survey" json:"max_responses_per_survey"`
	MaxCustomQuestions    int `yaml:"max_custom_questions" json:"max_custom_questions"`
}

type Plan struct {
	ID           PlanID    `yaml:"id" json:"id"`
	Name         string    `yaml:"name" json:"name"`
	PriceMonthly int       `yaml:"price_monthly" json:"price_monthly"` // cents
	Limits       Limits    `yaml:"limits" json:"limits"`
	Features     []Feature `yaml:"features" json:"features"`
}

func (p Plan) Has(f Feature) bool {
	for _, feat := range p.Features {
		if feat == f {
			return true
		}
	}
	return false
}

// RequireFeature returns a forbidden error when the plan does not include f.
func (p Plan) RequireFeature(f Feature) error {
	if p.Has(f) {
		return nil
	}
	return core.NewForbiddenError(fmt.Sprintf("the %s plan does not include %s", p.Name, featureLabels[f]))
}

// RequireRoom returns a forbidden error when adding one more item to current would exceed limit.
func RequireRoom(limit, current int, what string) error {
	if limit == 0 || current < limit {
		return nil
	}
	return core.NewForbiddenError(fmt.Sprintf("plan limit reached: at most %d %s", limit, what))
}

// Exceeded lists the limits of p that usage is above.
func (p Plan) Exceeded(u Usage) []string {
	var over []string
	check := func(limit, current int, name string) {
		if limit != 0 && current > limit {
			over = append(over, name)
		}
	}
	check(p.Limits.MaxMembers, u.Members, "max_members")
	check(p.Limits.MaxActiveSurveys, u.ActiveSurveys, "max_active_surveys")
	check(p.Limits.MaxCustomQuestions, u.CustomQuestions, "max_custom_questions")
	return over
}

var featureLabels = map[Feature]string{
	FeatureCustomQuestions: "custom questions",
	FeatureActionPlans:     "action plans",
	FeatureExport:          "exports",
	FeatureTeamReports:     "team reports",
}

// Catalog holds the plans on offer, in display order.
type Catalog struct {
	plans []Plan
	byID  map[PlanID]Plan
}

type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

func LoadCatalog(fsys fs.FS, name string) (*Catalog, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.Wrap(err, "reading plan catalog")
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "parsing plan catalog")
	}

	c := &Catalog{byID: make(map[PlanID]Plan, len(file.Plans))}
	for _, p := range file.Plans {
		if p.ID == "" {
			return nil, errors.New("plan catalog: plan without id")
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, errors.Errorf("plan catalog: duplicate plan %q", p.ID)
		}
		for _, f := range p.Features {
			if _, known := featureLabels[f]; !known {
				return nil, errors.Errorf("plan catalog: plan %q has unknown feature %q", p.ID, f)
			}
		}
		c.plans = append(c.plans, p)
		c.byID[p.ID] = p
	}
	if _, ok := c.byID[PlanFree]; !ok {
		return nil, errors.Errorf("plan catalog: missing %q plan", PlanFree)
	}
	return c, nil
}

func (c *Catalog) Get(id PlanID) (Plan, bool) {
	p, ok := c.byID[id]
	return p, ok
}

func (c *Catalog) Plans() []Plan {
	plans := make([]Plan, len(c.plans))
	copy(plans, c.plans)
	return plans
}

func (c *Catalog) Free() Plan { return c.byID[PlanFree] }
