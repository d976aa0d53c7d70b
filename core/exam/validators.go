package exam

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

var (
	examWindowTag  = "examwindow"
	examWindowText = "end time must be after begin time"
)

// InitValidators registers the exam validations. core.InitValidators must have been called first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(newExamStructValidation, NewExam{})
	core.RegisterCustomTranslation(validate, translator, examWindowTag, examWindowText)
}

func newExamStructValidation(sl validator.StructLevel) {
	ne := sl.Current().Interface().(NewExam)
	if ne.BeginTime.IsZero() || ne.EndTime.IsZero() {
		return // reported by `required`
	}
	if !ne.EndTime.After(ne.BeginTime) {
		sl.ReportError(ne.EndTime, "end_time", "EndTime", examWindowTag, "")
	}
}

func windowError() error {
	return core.NewValidationError(nil, core.FieldError{Field: "end_time", Error: examWindowText})
}
