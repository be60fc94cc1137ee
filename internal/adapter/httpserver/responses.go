// Package httpserver contains HTTP handlers and middleware.
//
// It provides the REST endpoints for the classification pipeline:
// file submission, status polling, health, and the scaling admin
// surface. HTTP concerns stay here; queue and classifier logic live
// behind the broker and scaling ports.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/file-classifier/internal/domain"
)

// detailEnvelope is the error body shape: {"detail": "..."}.
type detailEnvelope struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, detailEnvelope{Detail: detail})
}

// writeError maps domain sentinels onto status codes. detail overrides the
// error text when the body must carry a specific message.
func writeError(w http.ResponseWriter, err error, detail string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUnsupportedMedia):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrBrokerUnavailable):
		status = http.StatusServiceUnavailable
	}
	if detail == "" {
		detail = err.Error()
	}
	writeDetail(w, status, detail)
}
