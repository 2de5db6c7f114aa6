package service

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// formValidator checks SubmitReturnRequest. Violations are reported in
// struct field order, which is the order clients see them in.
var formValidator = newFormValidator()

func newFormValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(jsonFieldName)
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

	rules := map[string]validator.Func{
		"trimmed_min":   trimmedMin,
		"not_blank":     notBlank,
		"approval_flag": approvalFlag,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register %s validation: %v", tag, err))
		}
	}
	return v
}

// ValidateForm checks a form submission and returns every violated rule in
// a fixed order. An empty return reason counts as absent and takes the
// Unknown default, so only a blank one is rejected.
func ValidateForm(req *SubmitReturnRequest) []string {
	err := formValidator.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}

	violations := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		violations = append(violations, violationMessage(fe))
	}
	return violations
}

func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "trimmed_min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "not_blank":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "approval_flag":
		return fmt.Sprintf("%s must be Yes or No", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// decimalValue lets numeric rules such as gt=0 apply to decimal fields
func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

// trimmedMin counts characters, not bytes, after trimming surrounding space
func trimmedMin(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= n
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// approvalFlag accepts Yes, No or nothing; nothing defaults to No
func approvalFlag(fl validator.FieldLevel) bool {
	flag := strings.TrimSpace(fl.Field().String())
	return flag == "" || validFlag(flag)
}
