package classroom

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/grouping"
)

var (
	groupSizeTag  = "groupsize"
	groupSizeText = fmt.Sprintf("size must be %d or greater", grouping.MinGroupSize)
)

// InitValidators registers the classroom validation tags.
// It expects core.InitValidators to have run on `validate` first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(groupSizeTag, groupSizeValidation)
	core.RegisterCustomTranslation(validate, translator, groupSizeTag, groupSizeText)
}

// groupSizeValidation accepts sizes a group can actually be built with.
func groupSizeValidation(fl validator.FieldLevel) bool {
	return fl.Field().Int() >= grouping.MinGroupSize
}
