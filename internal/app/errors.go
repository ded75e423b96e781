package service

import (
	"errors"

	"github.com/okian/ideabox/internal/adapters/repository"
	"github.com/okian/ideabox/internal/adapters/session"
	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/internal/domain/ranking"
	"github.com/okian/ideabox/internal/domain/workflow"
)

// Error kinds returned by every operation. Callers test them with errors.Is.
var (
	ErrPermissionDenied   = errors.New("not allowed")
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("invalid input")
	ErrUnauthenticated    = errors.New("sign in required")
	ErrConflict           = errors.New("conflict")
	ErrFailedPrecondition = errors.New("failed precondition")
)

// Error is a classified failure. Message is safe to show to the caller.
type Error struct {
	Kind    error
	Message string
	Details any
	Hint    string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.cause}
}

func newError(kind error, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// classify maps store, session and domain errors onto the error kinds.
// Unknown errors are returned unchanged and treated as internal.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	var ve *workflow.ValidationError
	switch {
	case errors.As(err, &ve):
		return &Error{Kind: ErrValidation, Message: "invalid input", Details: ve.Fields, cause: err}
	case errors.Is(err, workflow.ErrInvalidTransition):
		return &Error{Kind: ErrValidation, Message: "status change not allowed", cause: err}
	case errors.Is(err, workflow.ErrInvalid),
		errors.Is(err, model.ErrUnknownStatus),
		errors.Is(err, model.ErrBadCursor),
		errors.Is(err, ranking.ErrBadPeriod):
		return &Error{Kind: ErrValidation, Message: "invalid input", cause: err}
	case errors.Is(err, repository.ErrNotFound):
		return &Error{Kind: ErrNotFound, Message: "not found", cause: err}
	case errors.Is(err, repository.ErrConflict):
		return &Error{Kind: ErrConflict, Message: "conflict", cause: err}
	case errors.Is(err, repository.ErrNotOwner), errors.Is(err, repository.ErrPermission):
		return &Error{Kind: ErrPermissionDenied, Message: "not allowed", cause: err}
	case errors.Is(err, repository.ErrFailedPrecondition):
		hint, _ := repository.IndexHint(err)
		return &Error{Kind: ErrFailedPrecondition, Message: "the query cannot run yet", Hint: hint, cause: err}
	case errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrExpiredToken),
		errors.Is(err, session.ErrRevoked):
		return &Error{Kind: ErrUnauthenticated, Message: "sign in required", cause: err}
	}
	return err
}

// Kind returns the error kind of err, or nil for internal errors.
func Kind(err error) error {
	for _, k := range []error{
		ErrUnauthenticated, ErrPermissionDenied, ErrValidation,
		ErrNotFound, ErrConflict, ErrFailedPrecondition,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

func kindLabel(err error) string {
	switch Kind(err) {
	case ErrUnauthenticated:
		return "unauthenticated"
	case ErrPermissionDenied:
		return "permission_denied"
	case ErrValidation:
		return "validation"
	case ErrNotFound:
		return "not_found"
	case ErrConflict:
		return "conflict"
	case ErrFailedPrecondition:
		return "failed_precondition"
	}
	return "internal"
}
