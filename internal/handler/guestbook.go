package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/missionboard/internal/model"
	"github.com/dukerupert/missionboard/internal/store"
	"github.com/dukerupert/missionboard/internal/websocket"
)

// GuestbookStore persists board notes.
type GuestbookStore interface {
	Create(boardID, content string) (*model.GuestbookEntry, error)
	ListByBoard(boardID string, limit int) ([]model.GuestbookEntry, error)
}

type GuestbookHandler struct {
	store  GuestbookStore
	boards Snapshots
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewGuestbookHandler(gs GuestbookStore, boards Snapshots, hub *websocket.Hub, logger *slog.Logger) *GuestbookHandler {
	return &GuestbookHandler{store: gs, boards: boards, hub: hub, logger: logger}
}

func (h *GuestbookHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type guestbookRequest struct {
	Content string `json:"content"`
}

func (h *GuestbookHandler) Create(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardID")
	if _, ok := h.boards.Board(boardID); !ok {
		writeError(w, http.StatusNotFound, "board not found")
		return
	}

	var req guestbookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	entry, err := h.store.Create(boardID, req.Content)
	switch {
	case errors.Is(err, store.ErrGuestbookEmpty):
		writeError(w, http.StatusBadRequest, "content is required")
		return
	case errors.Is(err, store.ErrGuestbookTooLong):
		writeError(w, http.StatusBadRequest, "content must be at most "+strconv.Itoa(model.GuestbookMaxRunes)+" characters")
		return
	case err != nil:
		h.logger.Error("create guestbook entry", "board_id", boardID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create guestbook entry")
		return
	}

	h.broadcast(websocket.NewMessage("guestbook_entry", "created", entry.ID, entry).ForBoard(boardID))

	writeJSON(w, http.StatusCreated, entry)
}

func (h *GuestbookHandler) List(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardID")
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.store.ListByBoard(boardID, limit)
	if err != nil {
		h.logger.Error("list guestbook entries", "board_id", boardID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list guestbook entries")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
