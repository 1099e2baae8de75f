package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/wellbeing/core/organization"
	"github.com/trezcool/wellbeing/core/subscription"
	"github.com/trezcool/wellbeing/core/survey"
	"github.com/trezcool/wellbeing/core/user"
)

// DB is a process-local store implementing every repository. It backs tests & local demos.
type DB struct {
	mu sync.RWMutex

	users         map[string]*user.User
	orgs          map[string]*organization.Organization
	members       map[string]map[string]*organization.Member // {orgID: {userID: member}}
	teams         map[string]*organization.Team
	invitations   map[string]*organization.Invitation
	subscriptions map[string]*subscription.Subscription
	templates     map[string]*survey.Template
	responses     map[string][]survey.Response // {surveyID: responses}
	questions     map[string]*survey.CustomQuestion
	descriptors   map[string]*survey.Descriptor
}

func Open() *DB {
	return &DB{
		users:         make(map[string]*user.User),
		orgs:          make(map[string]*organization.Organization),
		members:       make(map[string]map[string]*organization.Member),
		teams:         make(map[string]*organization.Team),
		invitations:   make(map[string]*organization.Invitation),
		subscriptions: make(map[string]*subscription.Subscription),
		templates:     make(map[string]*survey.Template),
		responses:     make(map[string][]survey.Response),
		questions:     make(map[string]*survey.CustomQuestion),
		descriptors:   make(map[string]*survey.Descriptor),
	}
}

func newID() string {
	return uuid.New().String()
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}

func copyStrPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
