package sqlxrepos_test

import (
	"testing"

	sqlxrepos "github.com/trezcool/wellbeing/storage/database/sqlx"
	"github.com/trezcool/wellbeing/testutil"
)

func TestRepositories(t *testing.T) {
	db := testutil.PrepareDB(t)
	testutil.RunRepositoryTests(t, testutil.Repos{
		Users:   sqlxrepos.NewUserRepository(db),
		Orgs:    sqlxrepos.NewOrganizationRepository(db),
		Subs:    sqlxrepos.NewSubscriptionRepository(db),
		Surveys: sqlxrepos.NewSurveyRepository(db),
	})
}
