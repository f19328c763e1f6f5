package chillpay

import (
	"errors"
	"fmt"
)

var (
	// ErrUnconfigured means credentials are missing; no call was attempted.
	ErrUnconfigured = errors.New("chillpay: gateway not configured")
	// ErrNotFound means no provider record matched any candidate identifier.
	ErrNotFound = errors.New("chillpay: no matching record")
	// ErrTransient covers network failures and 5xx answers. Safe to retry later.
	ErrTransient = errors.New("chillpay: transient error")
	// ErrRejected covers 4xx answers and malformed responses.
	ErrRejected = errors.New("chillpay: rejected")
)

// GatewayError carries the provider's note alongside the error kind.
// errors.Is matches both the kind and the underlying cause.
type GatewayError struct {
	Kind       error
	Op         string
	Note       string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Kind, e.Op)
	if e.Note != "" {
		msg += ": " + e.Note
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind error, op, note string, statusCode int, cause error) *GatewayError {
	return &GatewayError{Kind: kind, Op: op, Note: note, StatusCode: statusCode, Err: cause}
}

// Note returns the provider note carried by err, or err's message.
func Note(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.Note != "" {
		return gwErr.Note
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// severity orders error kinds when every candidate failed: a transient
// failure outranks a rejection, which outranks a plain miss.
func severity(err error) int {
	switch {
	case errors.Is(err, ErrTransient):
		return 3
	case errors.Is(err, ErrRejected):
		return 2
	case errors.Is(err, ErrNotFound):
		return 1
	}
	return 0
}
