package errors

import (
	stderrors "errors"
	"strings"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string // Path of the offending field, e.g. "title"
	Key     string // Localization key for Message
	Message string // Client-facing message
}

// Error is the application error type.
type Error struct {
	Kind    Kind
	Key     string       // Localization key for Message
	Message string       // Client-facing message
	Fields  []FieldError // Populated for KindValidation
	Status  int          // Declared HTTP status, honored for KindUnknown
	Cause   error        // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		return strings.Join(parts, "; ")
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Kind)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// EK builds an error of kind with a localization key.
func EK(kind Kind, key string, message string) *Error {
	return &Error{Kind: kind, Key: strings.TrimSpace(key), Message: message}
}

// Wrap builds an error of kind that wraps cause.
func Wrap(kind Kind, key string, message string, cause error) *Error {
	return &Error{Kind: kind, Key: strings.TrimSpace(key), Message: message, Cause: cause}
}

// Validation builds a KindValidation error from the accumulated field errors.
func Validation(fields ...FieldError) *Error {
	cloned := make([]FieldError, len(fields))
	copy(cloned, fields)
	return &Error{Kind: KindValidation, Key: KeyValidationFailed, Fields: cloned}
}

// WithStatus builds an error that carries its own HTTP status, e.g. for
// transport-level failures such as an oversized request body.
func WithStatus(status int, key string, message string) *Error {
	return &Error{Kind: KindUnknown, Key: strings.TrimSpace(key), Message: message, Status: status}
}

// As extracts the application error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if err == nil || !stderrors.As(err, &appErr) {
		return nil, false
	}
	return appErr, true
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindUnknown
}

// HTTPStatus maps an error to an HTTP status code.
func HTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	appErr, ok := As(err)
	if !ok {
		return KindUnknown.HTTPStatus()
	}
	if appErr.Kind == KindUnknown && appErr.Status > 0 {
		return appErr.Status
	}
	return appErr.Kind.HTTPStatus()
}
