package subscription

import (
	"time"

	"github.com/go-playground/validator/v10"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

type Subscription struct {
	OrgID            string     `json:"org_id"`
	Plan             PlanID     `json:"plan"`
	Status           Status     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// EffectivePlanID is the plan the organization is entitled to at now:
// anything not active (or trialing) within its period falls back to free.
func (s Subscription) EffectivePlanID(now time.Time) PlanID {
	if s.Status != StatusActive && s.Status != StatusTrialing {
		return PlanFree
	}
	if s.CurrentPeriodEnd != nil && now.After(*s.CurrentPeriodEnd) {
		return PlanFree
	}
	return s.Plan
}

// Usage is what an organization currently consumes of its plan limits.
type Usage struct {
	Members         int `json:"members"` // includes pending invitations
	ActiveSurveys   int `json:"active_surveys"`
	CustomQuestions int `json:"custom_questions"`
}

type ChangePlan struct {
	Plan             PlanID     `json:"plan" validate:"required,plan"`
	Status           Status     `json:"status" validate:"omitempty,substatus"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
}

func (cp *ChangePlan) Validate(validate *validator.Validate) error {
	return validate.Struct(cp)
}
