package services

import "errors"

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidOrExpiredSecret covers a missing, mismatched, consumed or expired secret.
	ErrInvalidOrExpiredSecret = errors.New("invalid or expired reset secret")
	ErrWeakPassword           = errors.New("password below minimum length")
	ErrDeliveryFailure        = errors.New("reset secret delivery failed")
	ErrStorageFailure         = errors.New("reset storage failure")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "required"
	}
	return e.Field + " " + reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
