package ledger

import (
	"errors"
	"fmt"
)

// Error kinds returned by every ledger operation. Callers classify with errors.Is or KindOf.
var (
	ErrInvalidArgument   = errors.New("ledger: invalid argument")
	ErrNotFound          = errors.New("ledger: not found")
	ErrConflict          = errors.New("ledger: conflict")
	ErrAlreadySettled    = errors.New("ledger: already settled")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrInternal          = errors.New("ledger: internal error")
)

// Kind names an error class for transport layers.
type Kind string

const (
	KindInvalidArgument   Kind = "invalid_argument"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindAlreadySettled    Kind = "already_settled"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindInternal          Kind = "internal"
)

// KindOf classifies err. Unclassified errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadySettled):
		return KindAlreadySettled
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// Invalidf builds an ErrInvalidArgument with detail.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// NotFoundf builds an ErrNotFound with detail.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflictf builds an ErrConflict with detail.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Internal wraps a storage failure. Domain errors pass through untouched.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindInternal || errors.Is(err, ErrInternal) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
