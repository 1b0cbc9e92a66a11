package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindIntegrity
	KindTransient
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindIntegrity:
		return "integrity"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error carries a user-facing message and a Kind that decides how the caller
// reacts: Validation is never retried, Conflict needs fresh data, Integrity is fatal.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return e.Msg + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func E(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap keeps err reachable through errors.Is while tagging it with kind.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...any) error { return E(KindValidation, format, args...) }
func Conflict(format string, args ...any) error   { return E(KindConflict, format, args...) }
func Integrity(format string, args ...any) error  { return E(KindIntegrity, format, args...) }
func NotFound(format string, args ...any) error   { return E(KindNotFound, format, args...) }

// KindOf returns the outermost Kind found in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// Message is the text safe to show a caller. Integrity and unknown failures
// never leak detail.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	switch e.Kind {
	case KindIntegrity, KindUnknown:
		return "internal error"
	case KindTransient:
		return "service temporarily unavailable"
	}
	if e.Msg != "" {
		return e.Msg
	}
	return e.Error()
}
