package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"quiz-attempt-service/internal/domain"
)

type errorPayload struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error kind to a status code. Unknown errors are logged and hidden.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, payload := errorResponse(err)
	if status == http.StatusInternalServerError {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, payload)
}

func errorResponse(err error) (int, errorPayload) {
	code := domain.Kind(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrExpired):
		status = http.StatusGone
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthenticated):
		status = http.StatusUnauthorized
	}
	msg := "internal error"
	if status != http.StatusInternalServerError {
		msg = err.Error()
	}
	return status, errorPayload{Code: code, Message: msg}
}
