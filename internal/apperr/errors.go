// Package apperr defines the error taxonomy shared across services.
// Validation and auth errors are returned synchronously to callers; remote
// and transient errors are recorded on the publish attempt and surfaced
// through status queries.
package apperr

import (
	"errors"
	"fmt"
)

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func Validation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// RemoteAPIError is a rejection from the Graph API. Terminal for the
// operation that triggered it.
type RemoteAPIError struct {
	Code    int
	Subcode int
	Type    string
	Message string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("graph api error: %s (type: %s, code: %d)", e.Message, e.Type, e.Code)
}

// TransientNetworkError is a timeout or connection failure. Not retried
// within a call; the caller's next poll re-attempts the failed operation.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	var te *TransientNetworkError
	return errors.As(err, &te)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
