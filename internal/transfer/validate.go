package transfer

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError names the first field that failed and the rule it broke.
type ValidationError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %s failed rule %s", e.Field, e.Rule)
}

func Validate(dto any) error {
	err := validate.Struct(dto)
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) && len(vErrs) > 0 {
		return &ValidationError{Field: vErrs[0].Field(), Rule: vErrs[0].Tag()}
	}
	return err
}
