// Package di wires the API dependencies with a dig.Container.
package di

import (
	"context"
	"fmt"
	"log"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/wellbeing/apps/api/echo"
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
	sqlxrepos "github.com/trezcool/wellbeing/storage/database/sqlx"
)

const dbSetupTimeout = 30 * time.Second

type (
	// DBLoggerParam is the logger dedicated to database events.
	DBLoggerParam struct {
		dig.In
		Logger *logsvc.RollbarLogger `name:"dbLogger"`
	}

	// Closer releases whatever the storage backend holds.
	Closer func() error

	serverParams struct {
		dig.In

		Conf       *core.Config
		Logger     *logsvc.RollbarLogger
		Validate   *validator.Validate
		Translator ut.Translator
		UserSvc    *user.Service
		OrgSvc     *organization.Service
		SubSvc     *subscription.Service
		SurveySvc  *survey.Service
		Access     *access.Resolver
		Shutdown   func() `name:"shutdown"`
	}
)

func newLoggerNamed(name string) func(conf *core.Config) (*logsvc.RollbarLogger, error) {
	return func(conf *core.Config) (*logsvc.RollbarLogger, error) {
		zl, err := logsvc.NewZapLogger(name, conf)
		if err != nil {
			return nil, errors.Wrap(err, "building "+name+" logger")
		}
		logger := logsvc.NewRollbarLogger(zl, conf)
		logger.Enable(!conf.Debug)
		return logger, nil
	}
}

func newCoreLogger(logger *logsvc.RollbarLogger) core.Logger { return logger }

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newCatalog() (*subscription.Catalog, error) {
	return subscription.LoadCatalog(appfs.FS, appfs.PlanCatalog)
}

// newValidator registers every domain validator.
func newValidator(catalog *subscription.Catalog) (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	organization.InitValidators(validate, translator)
	subscription.InitValidators(validate, translator, catalog)
	survey.InitValidators(validate, translator)
	return validate, translator
}

func newPostgres(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, Closer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbSetupTimeout)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, nil, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, nil, err
	}
	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	loggerParam.Logger.Info(fmt.Sprintf("database %q ready", conf.Database.Name))
	return db, db.Close, nil
}

func provideSQLRepositories(c *dig.Container) {
	must(c.Provide(newPostgres))
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewOrganizationRepository, dig.As(new(organization.Repository))))
	must(c.Provide(sqlxrepos.NewSubscriptionRepository, dig.As(new(subscription.Repository))))
	must(c.Provide(sqlxrepos.NewSurveyRepository, dig.As(new(survey.Repository))))
}

func provideInmemRepositories(c *dig.Container) {
	must(c.Provide(func() (*inmemdb.DB, Closer) {
		return inmemdb.Open(), func() error { return nil }
	}))
	must(c.Provide(inmemdb.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(inmemdb.NewOrganizationRepository, dig.As(new(organization.Repository))))
	must(c.Provide(inmemdb.NewSubscriptionRepository, dig.As(new(subscription.Repository))))
	must(c.Provide(inmemdb.NewSurveyRepository, dig.As(new(survey.Repository))))
}

// newSurveyService also plugs survey usage into the subscription service.
func newSurveyService(
	repo survey.Repository,
	orgs *organization.Service,
	subs *subscription.Service,
	mailSvc core.EmailService,
	validate *validator.Validate,
	conf *core.Config,
) *survey.Service {
	subs.SetUsageCounter(survey.NewUsageCounter(orgs, repo))
	return survey.NewService(repo, orgs, subs, mailSvc, validate, conf)
}

func newServer(p serverParams) echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Address:        p.Conf.Server.Address,
		SignalShutdown: p.Shutdown,
		Conf:           p.Conf,
		Logger:         p.Logger,
		Validate:       p.Validate,
		Translator:     p.Translator,
		UserSvc:        p.UserSvc,
		OrgSvc:         p.OrgSvc,
		SubSvc:         p.SubSvc,
		SurveySvc:      p.SurveySvc,
		Access:         p.Access,
	})
}

// New returns a dig.Container able to build the API server.
// inmem swaps PostgreSQL for the in-memory store; shutdown is called on unrecoverable server errors.
func New(conf *core.Config, inmem bool, shutdown func()) *dig.Container {
	c := dig.New()

	must(c.Provide(func() *core.Config { return conf }))
	must(c.Provide(func() func() { return shutdown }, dig.Name("shutdown")))
	must(c.Provide(newLoggerNamed("api")))
	must(c.Provide(newLoggerNamed("db"), dig.Name("dbLogger")))
	must(c.Provide(newCoreLogger))
	must(c.Provide(newEmailService))
	must(c.Provide(newCatalog))
	must(c.Provide(newValidator))

	if inmem {
		provideInmemRepositories(c)
	} else {
		provideSQLRepositories(c)
	}

	must(c.Provide(user.NewService))
	must(c.Provide(subscription.NewService))
	must(c.Provide(organization.NewService))
	must(c.Provide(newSurveyService))
	must(c.Provide(access.NewResolver))
	must(c.Provide(newServer))
	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
