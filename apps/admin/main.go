package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/organization"
	"github.com/trezcool/wellbeing/core/subscription"
	"github.com/trezcool/wellbeing/core/survey"
	appfs "github.com/trezcool/wellbeing/fs"
	emailsvc "github.com/trezcool/wellbeing/services/email"
	logsvc "github.com/trezcool/wellbeing/services/logger"
	"github.com/trezcool/wellbeing/storage/database"
	sqlxrepos "github.com/trezcool/wellbeing/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger("admin", conf)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug)
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.Open(ctx, conf)
	cancel()
	if err != nil {
		zl.Fatal("opening database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	cli, err := newCommandLine(conf, db, logger)
	if err != nil {
		zl.Fatal("setting up", zap.Error(err))
	}
	if err = cli.run(os.Args[1:]); err != nil {
		logger.Sync()
		fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		os.Exit(1)
	}
}

func newCommandLine(conf *core.Config, db *sqlx.DB, logger core.Logger) (*commandLine, error) {
	catalog, err := subscription.LoadCatalog(appfs.FS, appfs.PlanCatalog)
	if err != nil {
		return nil, err
	}
	validate, translator := core.NewValidator()
	subscription.InitValidators(validate, translator, catalog)

	mailSvc := emailsvc.NewConsoleService(conf, logger)
	surveyRepo := sqlxrepos.NewSurveyRepository(db)
	subs := subscription.NewService(sqlxrepos.NewSubscriptionRepository(db), catalog)
	orgs := organization.NewService(sqlxrepos.NewOrganizationRepository(db), subs, mailSvc, conf)
	subs.SetUsageCounter(survey.NewUsageCounter(orgs, surveyRepo))

	return &commandLine{
		db:       db.DB,
		usrRepo:  sqlxrepos.NewUserRepository(db),
		orgSvc:   orgs,
		subSvc:   subs,
		validate: validate,
	}, nil
}
