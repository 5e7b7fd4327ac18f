package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every failure surfaced by the resampling core matches exactly
// one of these with errors.Is.
var (
	// ErrSchema reports a missing or ambiguous axis role or an unexpected
	// dimension ordering on the payload variable.
	ErrSchema = errors.New("schema error")

	// ErrConfig reports an invalid run configuration (e.g. a granularity that
	// does not divide the reference period).
	ErrConfig = errors.New("config error")

	// ErrStoreIO reports a failed open, create, read or write on the array store.
	ErrStoreIO = errors.New("store I/O error")

	// ErrBoundary reports an attempt to interpolate past the last original
	// time index.
	ErrBoundary = errors.New("boundary error")
)

// NoIndex marks an unset VarID or TimeIndex on an Error.
const NoIndex = -1

// Error carries the kind of a failure plus the identifiers needed to locate it.
type Error struct {
	Kind      error  // One of ErrSchema, ErrConfig, ErrStoreIO, ErrBoundary.
	Op        string // Operation that failed, e.g. "discover", "write cube".
	Var       string // Variable name, if known.
	VarID     int    // Variable id, or NoIndex.
	TimeIndex int    // Time index, or NoIndex.
	Err       error  // Underlying cause, may be nil.
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Op != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Op)
	}
	if e.Var != "" {
		fmt.Fprintf(&sb, " (var %q", e.Var)
		if e.VarID != NoIndex {
			fmt.Fprintf(&sb, " id %d", e.VarID)
		}
		sb.WriteString(")")
	} else if e.VarID != NoIndex {
		fmt.Fprintf(&sb, " (var id %d)", e.VarID)
	}
	if e.TimeIndex != NoIndex {
		fmt.Fprintf(&sb, " at time index %d", e.TimeIndex)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SchemaError builds an ErrSchema failure.
func SchemaError(op, format string, args ...any) *Error {
	return &Error{Kind: ErrSchema, Op: op, VarID: NoIndex, TimeIndex: NoIndex, Err: fmt.Errorf(format, args...)}
}

// ConfigError builds an ErrConfig failure.
func ConfigError(op, format string, args ...any) *Error {
	return &Error{Kind: ErrConfig, Op: op, VarID: NoIndex, TimeIndex: NoIndex, Err: fmt.Errorf(format, args...)}
}

// StoreIOError wraps an array store failure.
func StoreIOError(op string, err error) *Error {
	return &Error{Kind: ErrStoreIO, Op: op, VarID: NoIndex, TimeIndex: NoIndex, Err: err}
}

// BoundaryError reports an out-of-range interpolation request.
func BoundaryError(op string, timeIndex int, format string, args ...any) *Error {
	return &Error{Kind: ErrBoundary, Op: op, VarID: NoIndex, TimeIndex: timeIndex, Err: fmt.Errorf(format, args...)}
}

// WithVar attaches variable identifiers to e and returns it.
func (e *Error) WithVar(name string, id int) *Error {
	e.Var = name
	e.VarID = id
	return e
}

// WithTime attaches a time index to e and returns it.
func (e *Error) WithTime(t int) *Error {
	e.TimeIndex = t
	return e
}
