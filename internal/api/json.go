package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/growthlab/internal/apperr"
)

const maxJSONBytes = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error   string `json:"error" validate:"required"`
	Details string `json:"details,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// publicMessages are the error strings clients see, most specific first.
var publicMessages = []struct {
	err error
	msg string
}{
	{apperr.ErrTooLarge, "payload too large"},
	{apperr.ErrEmptyFile, "empty file"},
	{apperr.ErrUnsupportedType, "unsupported file type"},
	{apperr.ErrInvalidName, "invalid session name"},
	{apperr.ErrInvalidIndex, "invalid card index"},
	{apperr.ErrLastCard, "cannot delete the only card"},
	{apperr.ErrValidation, "validation failed"},
	{apperr.ErrNotFound, "session not found"},
	{apperr.ErrOutputMissing, "converted image not found"},
	{apperr.ErrConversion, "image conversion failed"},
}

// writeError maps err onto a status code and an {error, details} body.
// Internal errors are logged and never echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	body := errorBody("internal error")
	for _, pm := range publicMessages {
		if errors.Is(err, pm.err) {
			body = errResponse{Error: pm.msg, Details: err.Error()}
			break
		}
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a size-limited JSON body into v and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large"))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid JSON body", Details: err.Error()})
		return false
	}
	if err := v.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "validation failed", Details: err.Error()})
		return false
	}
	return true
}
