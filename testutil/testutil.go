// Package testutil wires in-memory services & fixtures shared by tests.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap/zaptest"

	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/access"
	"github.com/trezcool/wellbeing/core/organization"
	"github.com/trezcool/wellbeing/core/subscription"
	"github.com/trezcool/wellbeing/core/survey"
	"github.com/trezcool/wellbeing/core/user"
	appfs "github.com/trezcool/wellbeing/fs"
	emailsvc "github.com/trezcool/wellbeing/services/email"
	logsvc "github.com/trezcool/wellbeing/services/logger"
	"github.com/trezcool/wellbeing/storage/database"
	inmemdb "github.com/trezcool/wellbeing/storage/database/inmem"
)

// NewLogger returns a logger writing to t, with Rollbar disabled.
func NewLogger(t testing.TB) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(zaptest.NewLogger(t), core.NewTestConfig())
	logger.Enable(false)
	return logger
}

// NewValidator returns a validator with every domain validator registered.
func NewValidator(catalog *subscription.Catalog) (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	organization.InitValidators(validate, translator)
	subscription.InitValidators(validate, translator, catalog)
	survey.InitValidators(validate, translator)
	return validate, translator
}

func LoadCatalog(t testing.TB) *subscription.Catalog {
	catalog, err := subscription.LoadCatalog(appfs.FS, appfs.PlanCatalog)
	if err != nil {
		t.Fatalf("LoadCatalog() failed: %v", err)
	}
	return catalog
}

// Env is a fully wired set of services over an in-memory database.
type Env struct {
	Conf       *core.Config
	Validate   *validator.Validate
	Translator ut.Translator
	Logger     *logsvc.RollbarLogger
	Mail       *emailsvc.ConsoleServiceMock
	DB         *inmemdb.DB
	UserRepo   user.Repository

	Users   *user.Service
	Subs    *subscription.Service
	Orgs    *organization.Service
	Surveys *survey.Service
	Access  *access.Resolver
}

func NewEnv(t testing.TB) *Env {
	t.Helper()
	if err := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true); err != nil {
		t.Fatalf("ParseEmailTemplates() failed: %v", err)
	}

	catalog := LoadCatalog(t)
	env := &Env{
		Conf:   core.NewTestConfig(),
		Logger: NewLogger(t),
		DB:     inmemdb.Open(),
	}
	env.Validate, env.Translator = NewValidator(catalog)
	env.Mail = emailsvc.NewConsoleServiceMock(env.Conf, env.Logger)
	env.UserRepo = inmemdb.NewUserRepository(env.DB)
	surveyRepo := inmemdb.NewSurveyRepository(env.DB)

	env.Users = user.NewService(env.UserRepo, env.Mail, env.Conf)
	env.Subs = subscription.NewService(inmemdb.NewSubscriptionRepository(env.DB), catalog)
	env.Orgs = organization.NewService(inmemdb.NewOrganizationRepository(env.DB), env.Subs, env.Mail, env.Conf)
	env.Surveys = survey.NewService(surveyRepo, env.Orgs, env.Subs, env.Mail, env.Validate, env.Conf)
	env.Subs.SetUsageCounter(survey.NewUsageCounter(env.Orgs, surveyRepo))
	env.Access = access.NewResolver(env.Orgs, env.Subs, env.Conf)
	return env
}

func CreateUser(
	t testing.TB,
	repo user.Repository,
	name, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateOrg creates an organization owned by a new user, on plan.
func (env *Env) CreateOrg(t testing.TB, name string, plan subscription.PlanID) (organization.Organization, user.User) {
	t.Helper()
	ctx := context.Background()
	owner := CreateUser(t, env.UserRepo, name+" Owner", Slug(name)+".owner@test.com", "", nil, true)
	org, err := env.Orgs.Create(ctx, owner, organization.NewOrganization{Name: name})
	if err != nil {
		t.Fatalf("CreateOrg() failed: %v", err)
	}
	if plan != subscription.PlanFree {
		if _, err = env.Subs.ChangePlan(ctx, org.ID, subscription.ChangePlan{Plan: plan}); err != nil {
			t.Fatalf("CreateOrg() failed: %v", err)
		}
	}
	return org, owner
}

// AddMember creates a user and makes it a member of orgID with role.
func (env *Env) AddMember(t testing.TB, orgID, name string, role organization.Role) user.User {
	t.Helper()
	usr := CreateUser(t, env.UserRepo, name, Slug(name)+"@test.com", "", nil, true)
	repo := inmemdb.NewOrganizationRepository(env.DB)
	inv := organization.Invitation{
		OrgID:     orgID,
		Email:     usr.Email,
		Role:      role,
		Status:    organization.InvitationPending,
		TokenHash: organization.HashInvitationToken(usr.ID),
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	inv, err := repo.CreateInvitation(context.Background(), inv)
	if err != nil {
		t.Fatalf("AddMember() failed: %v", err)
	}
	if _, err = env.Orgs.AcceptInvitation(context.Background(), usr, usr.ID); err != nil {
		t.Fatalf("AddMember() failed: %v", err)
	}
	return usr
}

func (env *Env) Plan(t testing.TB, id subscription.PlanID) subscription.Plan {
	t.Helper()
	plan, ok := env.Subs.Catalog().Get(id)
	if !ok {
		t.Fatalf("unknown plan %q", id)
	}
	return plan
}

func Slug(s string) string { return organization.Slugify(s) }

// PrepareDB connects to the database of TEST_DATABASE_URL, migrates it & empties every table.
// Tests are skipped when the variable is not set.
func PrepareDB(t testing.TB) *sqlx.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	_, err = db.Exec(`TRUNCATE descriptor, response, survey, custom_question, subscription,
		invitation, membership, team, organization, "user" CASCADE`)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}
