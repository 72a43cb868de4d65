package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrAmbiguousSnapshot = errors.New("ambiguous snapshot")
	ErrPersistence       = errors.New("persistence failure")
)

// Error carries a taxonomy kind plus enough context for an operator to
// reconcile by hand. Both Kind and Err match with errors.Is.
type Error struct {
	Kind   error
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func Validation(op string, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Op: op, Detail: fmt.Sprintf(format, args...)}
}

func NotFound(op string, format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Op: op, Detail: fmt.Sprintf(format, args...)}
}

func Conflict(op string, format string, args ...any) error {
	return &Error{Kind: ErrConflict, Op: op, Detail: fmt.Sprintf(format, args...)}
}

func AmbiguousSnapshot(op string, format string, args ...any) error {
	return &Error{Kind: ErrAmbiguousSnapshot, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Persistence wraps a storage failure. Errors that already carry a kind
// pass through untouched so a NotFound from inside a transaction stays one.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	return &Error{Kind: ErrPersistence, Op: op, Err: err}
}

// KindOf names the taxonomy kind of err, or "" when it has none.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAmbiguousSnapshot):
		return "ambiguous_snapshot"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	}
	return ""
}
