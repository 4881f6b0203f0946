package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/history"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
	"github.com/nerrad567/gray-logic-mixer/internal/registry"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeValidation       = "validation_error"
	ErrCodeConnectionFailed = "connection_failed"
	ErrCodeUnavailable      = "service_unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeMixerError maps domain errors onto HTTP statuses. Unknown errors
// are logged and reported as 500 without their text.
func (s *Server) writeMixerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mixer.ErrDeviceNotFound),
		errors.Is(err, mixer.ErrChannelNotFound),
		errors.Is(err, mixer.ErrSceneNotFound),
		errors.Is(err, registry.ErrNotRegistered):
		writeNotFound(w, err.Error())
	case errors.Is(err, mixer.ErrInvalidChannel),
		errors.Is(err, mixer.ErrParameterPath),
		errors.Is(err, mixer.ErrInvalidValue),
		errors.Is(err, mixer.ErrRange),
		errors.Is(err, board.ErrUnknownModel),
		errors.Is(err, history.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, registry.ErrAlreadyRegistered),
		errors.Is(err, registry.ErrPortInUse):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, mixer.ErrConnection):
		writeError(w, http.StatusBadGateway, ErrCodeConnectionFailed, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeInternalError(w, "internal server error")
	}
}
