package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/octofit/internal/domain"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Type   string                  `json:"type"`
	Code   string                  `json:"code,omitempty"`
	Field  string                  `json:"field,omitempty"`
	Reason string                  `json:"reason,omitempty"`
	Detail string                  `json:"detail,omitempty"`
	Faults []domain.IntegrityFault `json:"faults,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, kind, detail string) {
	writeJSON(w, status, errorBody{Type: kind, Detail: detail})
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		conflict   *domain.ConflictError
		notFound   *domain.NotFoundError
		fault      *domain.IntegrityFault
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Type:   "validation_failed",
			Code:   validation.Code,
			Field:  validation.Field,
			Detail: validation.Message,
		})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorBody{Type: "conflict", Reason: string(conflict.Reason), Detail: conflict.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorBody{Type: "not_found", Detail: notFound.Error()})
	case errors.As(err, &fault):
		writeJSON(w, http.StatusInternalServerError, errorBody{Type: "integrity_fault", Faults: []domain.IntegrityFault{*fault}})
	case errors.Is(err, context.DeadlineExceeded) && r.Context().Err() != nil:
		// The timeout middleware writes the 504 once the handler returns.
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("request timed out")
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// decodeBody reads a JSON body into dst. An empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body: "+err.Error())
		return false
	}
	return true
}

// parseTime accepts RFC 3339, a zone-less timestamp (read as UTC) or a bare
// date, which means midnight UTC.
func parseTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an RFC 3339 timestamp or YYYY-MM-DD date", raw)
}

// queryLimit reads ?limit=; absent or malformed values yield 0 so the
// service default applies.
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
