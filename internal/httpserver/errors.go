package httpserver

import (
	"errors"
	"log"
	"net/http"

	"rentline/internal/domain"
)

// writeError maps domain sentinels onto HTTP statuses so the UI can tell
// "not allowed" from "expired" from "network failure".
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrEditWindowExpired):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		log.Printf("http: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
