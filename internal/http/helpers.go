package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"splitledger/internal/core"
)

const headerUserID = "X-User-ID"

var errMissingRequester = errors.New("missing or invalid " + headerUserID + " header")

// requesterID extracts the caller identity from the X-User-ID header.
func requesterID(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(headerUserID)
	if raw == "" {
		return uuid.Nil, errMissingRequester
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errMissingRequester
	}
	return id, nil
}

// pathUUID parses a uuid path parameter; ok is false after the 400 has been
// written.
func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, errMissingRequester):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, core.ErrExpenseNotFound),
		errors.Is(err, core.ErrGroupNotFound),
		errors.Is(err, core.ErrParticipantNotFound):
		status = http.StatusNotFound
		msg = err.Error()
	case errors.Is(err, core.ErrNotAuthorized):
		status = http.StatusForbidden
		msg = err.Error()
	case errors.Is(err, core.ErrAlreadyMember),
		errors.Is(err, core.ErrNotAMember):
		status = http.StatusConflict
		msg = err.Error()
	case errors.Is(err, core.ErrInvalidSplitSum),
		errors.Is(err, core.ErrEmptySplitSet),
		errors.Is(err, core.ErrDuplicateParticipant),
		errors.Is(err, core.ErrNonPositiveAmount),
		errors.Is(err, core.ErrCurrencyMismatch),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrEmptyName):
		status = http.StatusUnprocessableEntity
		msg = err.Error()
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeErrorStatus(w, status, msg)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
