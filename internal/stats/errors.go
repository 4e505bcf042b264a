package stats

import (
	"errors"
	"fmt"
)

// ErrValidation is the root of every input validation failure. Callers
// should test with errors.Is(err, stats.ErrValidation).
var ErrValidation = errors.New("validation error")

// ValidationError reports a rejected input before any computation or
// state mutation took place.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalidf builds a ValidationError for field with a formatted message.
func Invalidf(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}
