// internal/services/errors.go
package services

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrUnauthenticated      = errors.New("authentication required")
	ErrForbidden            = errors.New("permission denied")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// NotFoundError names the missing resource ("group", "product", "listing",
// "order") and matches ErrNotFound.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// invalidRequest keeps the validator's field errors reachable through errors.As.
func invalidRequest(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

func forbidden(action string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, action)
}

func conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
