package organization

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/wellbeing/core"
)

var (
	orgRoleTag  = "orgrole"
	orgRoleText = "invalid role"
)

// InitValidators registers the organization validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(orgRoleTag, orgRoleValidation)
	core.RegisterCustomTranslation(validate, translator, orgRoleTag, orgRoleText)
}

func orgRoleValidation(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case Role:
		return v.Valid()
	case string:
		return Role(v).Valid()
	}
	return false
}
