package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the engine reports to a caller.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "NotFound"
	KindNameConflict        ErrorKind = "NameConflict"
	KindBusy                ErrorKind = "Busy"
	KindSyntaxError         ErrorKind = "SyntaxError"
	KindRuntimeError        ErrorKind = "RuntimeError"
	KindResultMissing       ErrorKind = "ResultMissing"
	KindTimeout             ErrorKind = "Timeout"
	KindEmptyGeometry       ErrorKind = "EmptyGeometry"
	KindRasterizationFailed ErrorKind = "RasterizationFailed"
	KindDisplayUnavailable  ErrorKind = "DisplayUnavailable"
	KindAnalysisUnsupported ErrorKind = "AnalysisUnsupported"
	KindUnsupportedFormat   ErrorKind = "UnsupportedFormat"
	KindExportFailed        ErrorKind = "ExportFailed"

	// Collaborator kinds. Kernels and projectors report these; the engine
	// translates them into one of the kinds above at its boundary.
	KindInvalidOperand   ErrorKind = "InvalidOperand"
	KindProjectionFailed ErrorKind = "ProjectionFailed"

	// KindInvalidArgument is used by transports for malformed requests.
	KindInvalidArgument ErrorKind = "InvalidArgument"
)

// Error is the typed error carried across the engine.
// Two errors match under errors.Is when their kinds are equal.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality, so sentinels match any error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrNameConflict        = &Error{Kind: KindNameConflict}
	ErrBusy                = &Error{Kind: KindBusy}
	ErrSyntax              = &Error{Kind: KindSyntaxError}
	ErrRuntime             = &Error{Kind: KindRuntimeError}
	ErrResultMissing       = &Error{Kind: KindResultMissing}
	ErrTimeout             = &Error{Kind: KindTimeout}
	ErrEmptyGeometry       = &Error{Kind: KindEmptyGeometry}
	ErrRasterizationFailed = &Error{Kind: KindRasterizationFailed}
	ErrDisplayUnavailable  = &Error{Kind: KindDisplayUnavailable}
	ErrAnalysisUnsupported = &Error{Kind: KindAnalysisUnsupported}
	ErrUnsupportedFormat   = &Error{Kind: KindUnsupportedFormat}
	ErrExportFailed        = &Error{Kind: KindExportFailed}
	ErrInvalidOperand      = &Error{Kind: KindInvalidOperand}
	ErrProjectionFailed    = &Error{Kind: KindProjectionFailed}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
)

// Errorf builds a typed error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind of err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
