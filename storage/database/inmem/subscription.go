package inmemdb

import (
	"context"

	"github.com/trezcool/wellbeing/core/subscription"
)

type subscriptionRepository struct {
	db *DB
}

var _ subscription.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(db *DB) *subscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (repo *subscriptionRepository) GetSubscription(_ context.Context, orgID string) (subscription.Subscription, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sub, ok := repo.db.subscriptions[orgID]; ok {
		return *sub, nil
	}
	return subscription.Subscription{}, subscription.ErrNotFound
}

func (repo *subscriptionRepository) SaveSubscription(_ context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if orig, ok := repo.db.subscriptions[sub.OrgID]; ok {
		sub.CreatedAt = orig.CreatedAt
	}
	repo.db.subscriptions[sub.OrgID] = &sub
	return sub, nil
}
