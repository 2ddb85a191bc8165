package shared

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct runs the struct tags and reports the first failure as a ValidationError.
func ValidateStruct(v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}
		return &ValidationError{Field: strings.ToLower(fe.Field()), Reason: "failed " + reason}
	}
	return &ValidationError{Reason: err.Error()}
}

// RequirePositive rejects zero and negative decimals.
func RequirePositive(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return Invalid(field, "must be greater than zero, got %s", d.String())
	}
	return nil
}

// RequireNonNegative rejects negative decimals.
func RequireNonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return Invalid(field, "must not be negative, got %s", d.String())
	}
	return nil
}
