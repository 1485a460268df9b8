package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/missionboard/internal/participation"
	"github.com/dukerupert/missionboard/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type failureResponse struct {
	Error string `json:"error"`
	Title string `json:"title"`
	Kind  string `json:"kind"`
}

// failureStatus maps a failure kind to the HTTP status it is reported with.
func failureStatus(f *participation.Failure) int {
	switch f.Kind {
	case participation.Precondition:
		if errors.Is(f.Err, session.ErrNotLoggedIn) || errors.Is(f.Err, session.ErrExpired) {
			return http.StatusUnauthorized
		}
		return http.StatusConflict
	case participation.Transport:
		return http.StatusBadGateway
	case participation.Rejected:
		return http.StatusUnprocessableEntity
	case participation.Inconsistent:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeOperationError reports an orchestrator error. Failures carry their own
// user-facing text; anything else is logged and hidden.
func writeOperationError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	f, ok := participation.AsFailure(err)
	if !ok {
		logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if f.Kind == participation.Transport || f.Kind == participation.Inconsistent {
		logger.Warn(op, "kind", f.Kind.String(), "error", f)
	}
	writeJSON(w, failureStatus(f), failureResponse{Error: f.Message, Title: f.Title, Kind: f.Kind.String()})
}

// writeSessionError reports a missing or expired session as 401.
func writeSessionError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, session.ErrExpired):
		writeError(w, http.StatusUnauthorized, "Session expired, please log in again")
	case errors.Is(err, session.ErrNotLoggedIn):
		writeError(w, http.StatusUnauthorized, "Login required")
	default:
		return false
	}
	return true
}
