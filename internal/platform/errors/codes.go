// Package errors provides typed application errors with HTTP status mapping.
package errors

import "net/http"

// Kind classifies application failures. The set is closed; anything that is
// not one of the kinds below is reported as KindUnknown.
type Kind string

const (
	// KindUnknown represents an unanticipated failure.
	KindUnknown Kind = "unknown"
	// KindValidation represents one or more rejected input fields.
	KindValidation Kind = "validation"
	// KindInvalidID represents a syntactically malformed identifier.
	KindInvalidID Kind = "invalid_id"
	// KindNotFound represents a well-formed identifier that matches nothing.
	KindNotFound Kind = "not_found"
	// KindConflict represents a uniqueness violation in storage.
	KindConflict Kind = "conflict"
)

// HTTPStatus returns the HTTP status for this kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindInvalidID, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Localization keys for the fixed client-facing messages.
const (
	KeyInvalidID        = "error.invalid_id"
	KeyDuplicate        = "error.duplicate"
	KeyNotFound         = "error.not_found"
	KeyRouteNotFound    = "error.route_not_found"
	KeyServerError      = "error.server"
	KeyInvalidJSON      = "error.invalid_json"
	KeyPayloadTooLarge  = "error.payload_too_large"
	KeyBodyNotObject    = "error.body_not_object"
	KeyValidationFailed = "error.validation"
	KeyInvalidFilter    = "error.invalid_filter"
)
