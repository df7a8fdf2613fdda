package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// checkStruct runs the validate tags of s and reports the first failure as
// an ErrValidation.
func checkStruct(s any) error {
	return describe(validate.Struct(s), "")
}

// checkVar validates a single value against tag, naming it field in the error.
func checkVar(field string, value any, tag string) error {
	return describe(validate.Var(value, tag), field)
}

func describe(err error, field string) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return validationError("%v", err)
	}
	fe := verrs[0]
	if field == "" {
		field = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return validationError("%s is required", field)
	case "email":
		return validationError("%s %q is invalid", field, fe.Value())
	case "min":
		return validationError("%s must be at least %s characters", field, fe.Param())
	}
	return validationError("%s failed %s", field, fe.Tag())
}
