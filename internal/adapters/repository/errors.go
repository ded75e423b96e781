package repository

import (
	"errors"
	"regexp"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrNotOwner  = errors.New("not the owner")
	ErrUnchanged = errors.New("unchanged")
	// ErrInvalidLimit is returned for page queries without a positive limit.
	ErrInvalidLimit = errors.New("invalid page limit")
	// ErrPermission is returned when the backend refuses the operation.
	ErrPermission = errors.New("permission denied")
	// ErrFailedPrecondition is returned when the backend lacks something the
	// query needs, such as an index or a migration.
	ErrFailedPrecondition = errors.New("failed precondition")
)

// PreconditionError carries an operator hint for ErrFailedPrecondition.
type PreconditionError struct {
	Hint string
	Err  error
}

func (e *PreconditionError) Error() string {
	if e.Hint == "" {
		return "failed precondition: " + e.Err.Error()
	}
	return "failed precondition: " + e.Err.Error() + " (" + e.Hint + ")"
}

func (e *PreconditionError) Unwrap() []error { return []error{ErrFailedPrecondition, e.Err} }

var hintLink = regexp.MustCompile(`https?://[^\s)]+`)

// IndexHint extracts the link an operator should follow to fix a failed
// precondition. ok is false for other errors.
func IndexHint(err error) (hint string, ok bool) {
	if !errors.Is(err, ErrFailedPrecondition) {
		return "", false
	}
	var pe *PreconditionError
	if errors.As(err, &pe) && pe.Hint != "" {
		if link := hintLink.FindString(pe.Hint); link != "" {
			return link, true
		}
		return pe.Hint, true
	}
	return hintLink.FindString(err.Error()), true
}
