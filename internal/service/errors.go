package service

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("already exists")
	ErrNotDisplaying     = errors.New("transaction is not displaying")
	ErrInvalidTransition = errors.New("transaction cannot make that transition")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrPaymentLink       = errors.New("payment link could not be created")
)

// ValidationError names the offending field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
