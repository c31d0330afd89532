package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
)

// errorBody is the JSON shape of every error response. Kind is the error
// category and is stable, so clients can branch on it.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusFor maps an error category to its HTTP status.
func statusFor(cat apperrors.Category) int {
	switch cat {
	case apperrors.CategoryValidation, apperrors.CategoryDecode, apperrors.CategoryMalformedID:
		return http.StatusBadRequest
	case apperrors.CategoryUnsupportedSource:
		return http.StatusUnsupportedMediaType
	case apperrors.CategoryUnsupportedTarget:
		return http.StatusUnprocessableEntity
	case apperrors.CategoryNotFound:
		return http.StatusNotFound
	case apperrors.CategoryExhausted:
		return http.StatusServiceUnavailable
	case apperrors.CategoryCanceled:
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

// writeError renders err with the status of its category. Messages of
// server-side failures are not echoed to the client.
func writeError(w http.ResponseWriter, logger core.Logger, r *http.Request, err error) {
	cat := apperrors.CategoryOf(err)
	status := statusFor(cat)
	if cat == apperrors.CategoryStorage && apperrors.IsRetryable(err) {
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if status >= 500 {
		logger.Error("http.server_error",
			"request_id", RequestIDFrom(r.Context()),
			"path", r.URL.Path,
			"category", cat,
			"error", err,
		)
		msg = http.StatusText(status)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: string(cat)})
}
