package domain

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrUnsupportedType = errors.New("unsupported visualization type")
)

// ValidationError marks a deterministic defect in generated content: the
// provider response could not be parsed, did not match the expected schema,
// or the rendered output failed self-validation. Retrying reproduces the
// same defect, so the job manager never retries these.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError wraps cause (which may be nil) with a reason.
func NewValidationError(reason string, cause error) *ValidationError {
	return &ValidationError{Reason: reason, Err: cause}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
