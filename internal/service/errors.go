// Package service holds the business rules of the marketplace. Every
// operation takes the caller explicitly as an Actor; nothing here reads a
// global signed-in user. Repositories report storage outcomes with their
// own sentinels and this package translates them into the errors below,
// which the HTTP layer maps onto status codes.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/staymarket/internal/model"
	"github.com/iliyamo/staymarket/internal/repository"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("not found")
	ErrUnavailable            = errors.New("service unavailable")
	ErrConflict               = errors.New("conflict")
)

// Conflict refinements. Each matches ErrConflict under errors.Is.
var (
	ErrAppealPending      = fmt.Errorf("%w: an appeal is already pending", ErrConflict)
	ErrAppealApproved     = fmt.Errorf("%w: already a host", ErrConflict)
	ErrAlreadyDecided     = fmt.Errorf("%w: appeal already decided", ErrConflict)
	ErrEmailExists        = fmt.Errorf("%w: email already exists", ErrConflict)
	ErrListingChanged     = fmt.Errorf("%w: listing changed, reload and retry", ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrAuthenticationRequired)
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// translate maps repository errors onto service errors. Unknown errors are
// passed through and surface as internal failures.
func translate(err error) error {
	var te *model.TransitionError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrEmailExists):
		return ErrEmailExists
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict
	case errors.Is(err, repository.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.As(err, &te):
		return fmt.Errorf("%w: %v", ErrConflict, te)
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, ErrNotFound)
}
