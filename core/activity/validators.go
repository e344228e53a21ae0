package activity

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/pogilapp/server/core"
)

var (
	groupRoleTag  = "grouprole"
	groupRoleText = "invalid role; expected one of facilitator, spokesperson, analyst or qc"
)

// InitValidators registers the activity validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(groupRoleTag, func(fl validator.FieldLevel) bool {
		return IsValidGroupRole(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, groupRoleTag, groupRoleText)
}
