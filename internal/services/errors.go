package services

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every engine. Handlers classify with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrPermission   = errors.New("permission denied")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")

	// ErrDuplicate marks a repeated settlement; it is also an ErrConflict.
	ErrDuplicate = fmt.Errorf("%w: duplicate settlement", ErrConflict)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func permissionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermission, fmt.Sprintf(format, args...))
}

func invalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
