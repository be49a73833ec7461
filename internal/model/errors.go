package model

import (
	"errors"
	"fmt"
)

// Error classes surfaced to callers. Compare with errors.Is.
var (
	// ErrAccessDenied indicates the caller named a space it is not a member of.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound indicates a lookup for an item or session that is not visible.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates a malformed or incomplete request.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStorageUnavailable indicates the storage backend failed.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// MemoryError wraps a failure with the operation that produced it.
//
// Kind is one of the sentinel errors above. Err, when set, is the
// underlying cause, e.g. a driver error.
type MemoryError struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (e *MemoryError) Error() string {
	s := "mnemosyne: " + e.Op + ": " + e.Kind.Error()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the class and the cause to errors.Is and errors.As.
func (e *MemoryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Invalid returns an ErrInvalidArgument for op.
func Invalid(op, format string, args ...any) error {
	return &MemoryError{Op: op, Kind: ErrInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

// Denied returns an ErrAccessDenied for op.
func Denied(op, format string, args ...any) error {
	return &MemoryError{Op: op, Kind: ErrAccessDenied, Msg: fmt.Sprintf(format, args...)}
}

// NotFound returns an ErrNotFound for op.
func NotFound(op, format string, args ...any) error {
	return &MemoryError{Op: op, Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a storage failure. It returns nil if err is nil, and
// passes through errors that already carry one of the classes above.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var me *MemoryError
	if errors.As(err, &me) {
		return err
	}
	if errors.Is(err, ErrNotFound) {
		return &MemoryError{Op: op, Kind: ErrNotFound, Err: err}
	}
	if errors.Is(err, ErrInvalidArgument) {
		return &MemoryError{Op: op, Kind: ErrInvalidArgument, Err: err}
	}
	return &MemoryError{Op: op, Kind: ErrStorageUnavailable, Err: err}
}

// Code maps err to a stable wire code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}
