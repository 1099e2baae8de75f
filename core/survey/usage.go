package survey

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/core/subscription"
)

type seatCounter interface {
	SeatsUsed(ctx context.Context, orgID string) (int, error)
}

// UsageCounter reports an organization's usage across members & surveys.
type UsageCounter struct {
	seats seatCounter
	repo  Repository
}

var _ subscription.UsageCounter = (*UsageCounter)(nil)

func NewUsageCounter(seats seatCounter, repo Repository) *UsageCounter {
	return &UsageCounter{seats: seats, repo: repo}
}

func (uc *UsageCounter) Usage(ctx context.Context, orgID string) (subscription.Usage, error) {
	var (
		u   subscription.Usage
		err error
	)
	if u.Members, err = uc.seats.SeatsUsed(ctx, orgID); err != nil {
		return u, errors.Wrap(err, "counting seats")
	}
	if u.ActiveSurveys, err = uc.repo.CountActiveTemplates(ctx, orgID, NowFunc().UTC()); err != nil {
		return u, errors.Wrap(err, "counting active surveys")
	}
	if u.CustomQuestions, err = uc.repo.CountCustomQuestions(ctx, orgID); err != nil {
		return u, errors.Wrap(err, "counting custom questions")
	}
	return u, nil
}
