package record

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField = errors.New("required field missing")
	ErrInvalidShape = errors.New("decision has the wrong shape")
	ErrNotJSON      = errors.New("decision body is not valid JSON")
)

// ValidationError reports a malformed decision. It is always raised before
// any ledger interaction.
type ValidationError struct {
	Field   string
	Problem string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid decision: %s", e.Problem)
	}
	return fmt.Sprintf("invalid decision: %s: %s", e.Field, e.Problem)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func missing(field string) error {
	return &ValidationError{Field: field, Problem: "is required", Err: ErrMissingField}
}
