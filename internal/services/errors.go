package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Failure categories shared by every service. Callers wrap them with detail
// using fmt.Errorf("%w: ...") and test with errors.Is.
var (
	ErrAuthorizationDenied   = errors.New("authorization denied")
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrStateConflict         = errors.New("state conflict")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// Authentication failures. These are reported as 401 rather than as one of
// the categories above.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMFARequired        = errors.New("mfa code required")
	ErrSessionInvalid     = errors.New("session expired or revoked")
)

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStateConflict, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// dbError maps gorm's record-not-found onto ErrNotFound and leaves every
// other error untouched.
func dbError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundf("%s not found", what)
	}
	return err
}
