package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/core/subscription"
)

type subscriptionRow struct {
	OrgID            string       `db:"org_id"`
	Plan             string       `db:"plan"`
	Status           string       `db:"status"`
	CurrentPeriodEnd sql.NullTime `db:"current_period_end"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

func (r subscriptionRow) subscription() subscription.Subscription {
	return subscription.Subscription{
		OrgID:            r.OrgID,
		Plan:             subscription.PlanID(r.Plan),
		Status:           subscription.Status(r.Status),
		CurrentPeriodEnd: timePtr(r.CurrentPeriodEnd),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type subscriptionRepository struct {
	db *sqlx.DB
}

var _ subscription.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(db *sqlx.DB) *subscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (repo *subscriptionRepository) GetSubscription(ctx context.Context, orgID string) (subscription.Subscription, error) {
	if !isUUID(orgID) {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	var row subscriptionRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT org_id, plan, status, current_period_end, created_at, updated_at
		FROM subscription WHERE org_id = $1`, orgID)
	if err != nil {
		return subscription.Subscription{}, trapNoRows(err, subscription.ErrNotFound, "getting subscription")
	}
	return row.subscription(), nil
}

// SaveSubscription upserts sub; CreatedAt is kept from the first save.
func (repo *subscriptionRepository) SaveSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	var row subscriptionRow
	err := repo.db.GetContext(ctx, &row, `
		INSERT INTO subscription (org_id, plan, status, current_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (org_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = EXCLUDED.updated_at
		RETURNING org_id, plan, status, current_period_end, created_at, updated_at`,
		sub.OrgID, string(sub.Plan), string(sub.Status), nullTime(sub.CurrentPeriodEnd), sub.CreatedAt.UTC(), sub.UpdatedAt.UTC())
	if err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "saving subscription")
	}
	return row.subscription(), nil
}
