package subscription

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/wellbeing/core"
)

var (
	planTag  = "plan"
	planText = "unknown plan"

	statusTag  = "substatus"
	statusText = "invalid status"
)

// InitValidators registers the subscription validators & their translations.
// Plan IDs are checked against catalog.
func InitValidators(validate *validator.Validate, translator ut.Translator, catalog *Catalog) {
	_ = validate.RegisterValidation(planTag, func(fl validator.FieldLevel) bool {
		var id PlanID
		switch v := fl.Field().Interface().(type) {
		case PlanID:
			id = v
		case string:
			id = PlanID(v)
		default:
			return false
		}
		_, ok := catalog.Get(id)
		return ok
	})
	core.RegisterCustomTranslation(validate, translator, planTag, planText)

	_ = validate.RegisterValidation(statusTag, func(fl validator.FieldLevel) bool {
		switch v := fl.Field().Interface().(type) {
		case Status:
			return v.Valid()
		case string:
			return Status(v).Valid()
		}
		return false
	})
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)
}
