package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/navikt/zseats/internal/models"
	"github.com/rs/zerolog"
)

// Error codes returned in error bodies
const (
	CodeValidation      = "validation"
	CodeUnauthenticated = "unauthenticated"
	CodeUnauthorized    = "unauthorized"
	CodeNotFound        = "not_found"
	CodeCapacity        = "capacity"
	CodeConflict        = "conflict"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes an error body
func Error(w http.ResponseWriter, status int, code, msg string) {
	JSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// StatusFor maps a service error to its HTTP status and error code
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden, CodeUnauthorized
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, models.ErrCapacity):
		return http.StatusConflict, CodeCapacity
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// ServiceError writes err as an error reply. Internal errors are logged and
// their detail is not sent to the client.
func ServiceError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	switch code {
	case CodeConflict:
		w.Header().Set("Retry-After", "1")
	case CodeInternal:
		logger.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	Error(w, status, code, msg)
}
