package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/louisbranch/taskboard/internal/platform/errors"
	"github.com/louisbranch/taskboard/internal/platform/httpx"
	"github.com/louisbranch/taskboard/internal/services/tasks/validation"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 100 << 10

const msgServerError = "Server Error"

var errRouteNotFound = apperrors.EK(apperrors.KindNotFound, apperrors.KeyRouteNotFound, "Route not found")

// decodePayload reads a JSON object body. An empty body decodes as {}.
func decodePayload(w http.ResponseWriter, r *http.Request) (validation.Payload, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.WithStatus(http.StatusRequestEntityTooLarge, apperrors.KeyPayloadTooLarge, "Payload too large")
		}
		return nil, apperrors.WithStatus(http.StatusBadRequest, apperrors.KeyInvalidJSON, "Invalid JSON payload")
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return validation.Payload{}, nil
	}
	if !json.Valid(data) {
		return nil, apperrors.WithStatus(http.StatusBadRequest, apperrors.KeyInvalidJSON, "Invalid JSON payload")
	}
	if data[0] != '{' {
		return nil, apperrors.Validation(apperrors.FieldError{
			Key:     apperrors.KeyBodyNotObject,
			Message: "Request body must be a JSON object",
		})
	}

	var payload validation.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, apperrors.WithStatus(http.StatusBadRequest, apperrors.KeyInvalidJSON, "Invalid JSON payload")
	}
	return payload, nil
}

// writeError renders err as the uniform failure body. It is the only place
// that decides status codes and client-facing messages for failures.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		h.logFailure(r, err)
		h.writeServerError(w, r)
		return
	}

	tag := h.localizer.ResolveTag(r)
	switch appErr.Kind {
	case apperrors.KindValidation:
		views := make([]fieldErrorView, 0, len(appErr.Fields))
		for _, field := range appErr.Fields {
			views = append(views, fieldErrorView{
				Field:   field.Field,
				Message: h.localizer.Translate(tag, field.Key, field.Message),
			})
		}
		h.writeJSON(w, r, http.StatusBadRequest, errorResponse{Errors: views})
	case apperrors.KindInvalidID, apperrors.KindNotFound, apperrors.KindConflict:
		h.writeJSON(w, r, appErr.Kind.HTTPStatus(), errorResponse{
			Message: h.localizer.Translate(tag, appErr.Key, appErr.Message),
		})
	default:
		if appErr.Status > 0 && appErr.Message != "" {
			h.writeJSON(w, r, appErr.Status, errorResponse{
				Message: h.localizer.Translate(tag, appErr.Key, appErr.Message),
			})
			return
		}
		h.logFailure(r, err)
		h.writeServerError(w, r)
	}
}

func (h *Handler) writeServerError(w http.ResponseWriter, r *http.Request) {
	tag := h.localizer.ResolveTag(r)
	h.writeJSON(w, r, http.StatusInternalServerError, errorResponse{
		Message: h.localizer.Translate(tag, apperrors.KeyServerError, msgServerError),
	})
}

func (h *Handler) logFailure(r *http.Request, err error) {
	h.logger.Printf("request failed method=%s path=%s request_id=%s err=%v", r.Method, r.URL.Path, httpx.RequestIDFrom(r), err)
}
