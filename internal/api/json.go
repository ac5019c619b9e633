package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/ansuz/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  string `json:"code,omitempty" example:"document_not_found"`
	// Available lists the section slugs that do exist when a section
	// lookup failed, so clients can self-correct.
	Available []string `json:"available_sections,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg, Code: "invalid_argument"}
}

func errorFor(err error) errResponse {
	resp := errResponse{Error: err.Error(), Code: apperr.Code(err)}
	var snf *apperr.SectionNotFoundError
	if errors.As(err, &snf) {
		resp.Available = snf.Available
	}
	return resp
}

// statusFor maps taxonomy errors to HTTP status codes. Anything outside
// the taxonomy is an internal error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrSectionNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvalidAddress),
		errors.Is(err, apperr.ErrInvalidArgument),
		errors.Is(err, apperr.ErrNotATask),
		errors.Is(err, apperr.ErrMaxDepth):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
