package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/missionboard/internal/mission"
	"github.com/dukerupert/missionboard/internal/missionapi"
	"github.com/dukerupert/missionboard/internal/session"
)

// SessionManager signs the user in and out.
type SessionManager interface {
	Login(ctx context.Context, username, password string) (session.Info, error)
	Signup(ctx context.Context, username, password string) (session.Info, error)
	Logout(ctx context.Context) error
	Info() session.Info
}

// Participation is reset on sign-out and rebuilt on sign-in.
type Participation interface {
	Reconcile(ctx context.Context) (mission.Snapshot, error)
	Clear()
}

type SessionHandler struct {
	sessions      SessionManager
	participation Participation
	logger        *slog.Logger
}

func NewSessionHandler(sm SessionManager, p Participation, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sm, participation: p, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, "login", h.sessions.Login)
}

func (h *SessionHandler) Signup(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, "sign up", h.sessions.Signup)
}

func (h *SessionHandler) authenticate(w http.ResponseWriter, r *http.Request, action string,
	fn func(ctx context.Context, username, password string) (session.Info, error)) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	info, err := fn(r.Context(), req.Username, req.Password)
	if err != nil {
		var apiErr *missionapi.APIError
		switch {
		case errors.Is(err, missionapi.ErrCredentialsRequired):
			writeError(w, http.StatusBadRequest, "username and password are required")
		case errors.Is(err, missionapi.ErrRoleNotAllowed):
			writeError(w, http.StatusForbidden, "this account cannot take part in missions")
		case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
			writeError(w, apiErr.Status, apiErr.Message)
		case errors.As(err, &apiErr):
			writeError(w, http.StatusBadGateway, apiErr.Message)
		default:
			h.logger.Error(action, "error", err)
			writeError(w, http.StatusInternalServerError, action+" failed")
		}
		return
	}

	if _, err := h.participation.Reconcile(r.Context()); err != nil {
		h.logger.Warn("reconcile after "+action, "error", err)
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		h.logger.Error("logout", "error", err)
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	h.participation.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Info())
}
