// Package apperr classifies errors crossing the service boundary so
// handlers and retry logic can branch on kind instead of matching
// error strings.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation rejects bad input before any mutation happens.
	KindValidation
	// KindNotFound marks a lookup for a row that does not exist or is
	// owned by another user.
	KindNotFound
	// KindConflict marks a uniqueness violation. During backfill it is
	// benign and suppressed.
	KindConflict
	// KindStorage marks a database or transaction failure. Retryable
	// only before a commit has started.
	KindStorage
	// KindConsistency marks input the streak pass cannot resolve, such
	// as a history that is not strictly ascending by date.
	KindConsistency
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(msg string, err error) error {
	return &Error{Kind: KindConflict, Msg: msg, Err: err}
}

func Storage(msg string, err error) error {
	return &Error{Kind: KindStorage, Msg: msg, Err: err}
}

func Consistencyf(format string, args ...any) error {
	return &Error{Kind: KindConsistency, Msg: fmt.Sprintf(format, args...)}
}

// KindOf walks the wrap chain and returns the first classified kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
