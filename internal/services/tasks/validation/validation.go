// Package validation checks task payloads before they reach storage.
//
// Payloads are validated field by field from their raw JSON values so that a
// wrong type can be told apart from an absent field. All violations are
// collected in one pass, in the order title, description, completed.
package validation

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	apperrors "github.com/louisbranch/taskboard/internal/platform/errors"
	"github.com/louisbranch/taskboard/internal/services/tasks/storage"
)

const (
	// MaxTitleLength is the longest accepted title, in characters.
	MaxTitleLength = 100
	// MaxDescriptionLength is the longest accepted description, in characters.
	MaxDescriptionLength = 500
)

// Field names as they appear in request payloads.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldCompleted   = "completed"
)

// Localization keys for field violations.
const (
	KeyTitleRequired      = "validation.title.required"
	KeyTitleType          = "validation.title.type"
	KeyTitleEmpty         = "validation.title.empty"
	KeyTitleTooLong       = "validation.title.too_long"
	KeyDescriptionType    = "validation.description.type"
	KeyDescriptionTooLong = "validation.description.too_long"
	KeyCompletedType      = "validation.completed.type"
)

// Default English messages.
const (
	msgTitleRequired      = "Title is required"
	msgTitleType          = "Title must be a string"
	msgTitleEmpty         = "Title cannot be empty"
	msgTitleTooLong       = "Title cannot exceed 100 characters"
	msgDescriptionType    = "Description must be a string"
	msgDescriptionTooLong = "Description cannot exceed 500 characters"
	msgCompletedType      = "Completed must be a boolean"
)

// Payload is a decoded request body: field name to raw JSON value.
type Payload map[string]json.RawMessage

// TaskInput is a normalized create payload.
type TaskInput struct {
	Title       string
	Description string
	Completed   bool
}

// TaskPatch is a normalized update payload. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	Completed   *bool
}

// Apply returns task with the patch's present fields applied.
func (p TaskPatch) Apply(task storage.Task) storage.Task {
	if p.Title != nil {
		task.Title = *p.Title
	}
	if p.Description != nil {
		task.Description = *p.Description
	}
	if p.Completed != nil {
		task.Completed = *p.Completed
	}
	return task
}

// ValidateCreate validates a create payload. Unknown fields are ignored.
func ValidateCreate(payload Payload) (TaskInput, []apperrors.FieldError) {
	var (
		input TaskInput
		errs  []apperrors.FieldError
	)

	if raw, ok := payload[FieldTitle]; !ok {
		errs = append(errs, fieldError(FieldTitle, KeyTitleRequired, msgTitleRequired))
	} else if title, fe, ok := titleValue(raw); !ok {
		errs = append(errs, fe)
	} else {
		input.Title = title
	}

	if raw, ok := payload[FieldDescription]; ok {
		if description, fe, ok := descriptionValue(raw); !ok {
			errs = append(errs, fe)
		} else {
			input.Description = description
		}
	}

	if raw, ok := payload[FieldCompleted]; ok {
		if completed, fe, ok := completedValue(raw); !ok {
			errs = append(errs, fe)
		} else {
			input.Completed = completed
		}
	}

	if len(errs) > 0 {
		return TaskInput{}, errs
	}
	return input, nil
}

// ValidateUpdate validates an update payload. Every field is optional; a
// payload with no recognized field yields an empty patch.
func ValidateUpdate(payload Payload) (TaskPatch, []apperrors.FieldError) {
	var (
		patch TaskPatch
		errs  []apperrors.FieldError
	)

	if raw, ok := payload[FieldTitle]; ok {
		if title, fe, ok := titleValue(raw); !ok {
			errs = append(errs, fe)
		} else {
			patch.Title = &title
		}
	}

	if raw, ok := payload[FieldDescription]; ok {
		if description, fe, ok := descriptionValue(raw); !ok {
			errs = append(errs, fe)
		} else {
			patch.Description = &description
		}
	}

	if raw, ok := payload[FieldCompleted]; ok {
		if completed, fe, ok := completedValue(raw); !ok {
			errs = append(errs, fe)
		} else {
			patch.Completed = &completed
		}
	}

	if len(errs) > 0 {
		return TaskPatch{}, errs
	}
	return patch, nil
}

// ValidateTask re-checks a stored or merged task against the record
// constraints.
func ValidateTask(task storage.Task) []apperrors.FieldError {
	var errs []apperrors.FieldError
	title := strings.TrimSpace(task.Title)
	switch {
	case title == "":
		errs = append(errs, fieldError(FieldTitle, KeyTitleEmpty, msgTitleEmpty))
	case utf8.RuneCountInString(title) > MaxTitleLength:
		errs = append(errs, fieldError(FieldTitle, KeyTitleTooLong, msgTitleTooLong))
	}
	if utf8.RuneCountInString(strings.TrimSpace(task.Description)) > MaxDescriptionLength {
		errs = append(errs, fieldError(FieldDescription, KeyDescriptionTooLong, msgDescriptionTooLong))
	}
	return errs
}

func titleValue(raw json.RawMessage) (string, apperrors.FieldError, bool) {
	value, ok := stringValue(raw)
	if !ok {
		return "", fieldError(FieldTitle, KeyTitleType, msgTitleType), false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fieldError(FieldTitle, KeyTitleEmpty, msgTitleEmpty), false
	}
	if utf8.RuneCountInString(value) > MaxTitleLength {
		return "", fieldError(FieldTitle, KeyTitleTooLong, msgTitleTooLong), false
	}
	return value, apperrors.FieldError{}, true
}

func descriptionValue(raw json.RawMessage) (string, apperrors.FieldError, bool) {
	value, ok := stringValue(raw)
	if !ok {
		return "", fieldError(FieldDescription, KeyDescriptionType, msgDescriptionType), false
	}
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) > MaxDescriptionLength {
		return "", fieldError(FieldDescription, KeyDescriptionTooLong, msgDescriptionTooLong), false
	}
	return value, apperrors.FieldError{}, true
}

func completedValue(raw json.RawMessage) (bool, apperrors.FieldError, bool) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return false, fieldError(FieldCompleted, KeyCompletedType, msgCompletedType), false
	}
	b, ok := value.(bool)
	if !ok {
		return false, fieldError(FieldCompleted, KeyCompletedType, msgCompletedType), false
	}
	return b, apperrors.FieldError{}, true
}

// stringValue decodes raw as a JSON string. null and every other JSON type
// are rejected.
func stringValue(raw json.RawMessage) (string, bool) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

func fieldError(field, key, message string) apperrors.FieldError {
	return apperrors.FieldError{Field: field, Key: key, Message: message}
}
