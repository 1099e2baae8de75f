package survey

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/wellbeing/core"
)

var (
	categoryTag  = "category"
	categoryText = "invalid category"
)

// InitValidators registers the survey validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(categoryTag, categoryValidation)
	core.RegisterCustomTranslation(validate, translator, categoryTag, categoryText)
}

func categoryValidation(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case Category:
		return v.Valid()
	case string:
		return Category(v).Valid()
	}
	return false
}
