package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/missionboard/internal/geo"
	"github.com/dukerupert/missionboard/internal/mission"
	"github.com/dukerupert/missionboard/internal/participation"
)

// BoardService loads boards and reconciles participation.
type BoardService interface {
	LoadBoards(ctx context.Context) ([]mission.Board, error)
	Reconcile(ctx context.Context) (mission.Snapshot, error)
	RefreshBoard(ctx context.Context, boardID string) (mission.Snapshot, error)
}

// Snapshots reads the current boards and participation snapshot.
type Snapshots interface {
	Snapshot() mission.Snapshot
	Boards() []mission.Board
	Board(id string) (mission.Board, bool)
}

type BoardHandler struct {
	service BoardService
	state   Snapshots
	logger  *slog.Logger
}

func NewBoardHandler(service BoardService, state Snapshots, logger *slog.Logger) *BoardHandler {
	return &BoardHandler{service: service, state: state, logger: logger}
}

type boardSummary struct {
	mission.Board
	DistanceMeters *float64 `json:"distanceMeters,omitempty"`
}

// List returns the loaded boards. With latitude and longitude query
// parameters the boards are sorted nearest first.
func (h *BoardHandler) List(w http.ResponseWriter, r *http.Request) {
	boards := h.state.Boards()
	out := make([]boardSummary, 0, len(boards))
	for _, b := range boards {
		out = append(out, boardSummary{Board: b})
	}

	q := r.URL.Query()
	if q.Has("latitude") || q.Has("longitude") {
		lat, err1 := strconv.ParseFloat(q.Get("latitude"), 64)
		lng, err2 := strconv.ParseFloat(q.Get("longitude"), 64)
		if err1 != nil || err2 != nil {
			writeError(w, http.StatusBadRequest, "invalid coordinate")
			return
		}
		here := geo.Coordinate{Latitude: lat, Longitude: lng}
		for i := range out {
			d := geo.Distance(here, out[i].Coordinate)
			out[i].DistanceMeters = &d
		}
		slices.SortStableFunc(out, func(a, b boardSummary) int {
			switch {
			case *a.DistanceMeters < *b.DistanceMeters:
				return -1
			case *a.DistanceMeters > *b.DistanceMeters:
				return 1
			}
			return 0
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Load refetches the catalog and reconciles when signed in.
func (h *BoardHandler) Load(w http.ResponseWriter, r *http.Request) {
	boards, err := h.service.LoadBoards(r.Context())
	if err != nil {
		h.logger.Error("load boards", "error", err)
		writeError(w, http.StatusBadGateway, "failed to load boards")
		return
	}
	if boards == nil {
		boards = []mission.Board{}
	}
	writeJSON(w, http.StatusOK, boards)
}

type boardDetail struct {
	Board      mission.Board                          `json:"board"`
	Activities []mission.ParticipatedActivity         `json:"participatedActivities"`
	Progress   map[string]mission.RepeatVisitProgress `json:"repeatVisitProgressByMissionId"`
}

func (h *BoardHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, ok := h.state.Board(chi.URLParam(r, "boardID"))
	if !ok {
		writeError(w, http.StatusNotFound, "board not found")
		return
	}
	writeJSON(w, http.StatusOK, detailFor(b, h.state.Snapshot()))
}

func detailFor(b mission.Board, snap mission.Snapshot) boardDetail {
	d := boardDetail{
		Board:      b,
		Activities: []mission.ParticipatedActivity{},
		Progress:   map[string]mission.RepeatVisitProgress{},
	}
	for _, a := range snap.Activities {
		if a.BoardID == b.ID {
			d.Activities = append(d.Activities, a)
		}
	}
	for _, m := range b.Missions {
		if m.Type() == mission.TypeStamp {
			d.Progress[m.ID] = snap.StampProgressFor(b.ID, m.ID)
		}
	}
	return d
}

// Refresh reconciles a single board with the ledger.
func (h *BoardHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardID")
	snap, err := h.service.RefreshBoard(r.Context(), boardID)
	if err != nil {
		if errors.Is(err, participation.ErrBoardNotFound) {
			writeError(w, http.StatusNotFound, "board not found")
			return
		}
		if writeSessionError(w, err) {
			return
		}
		h.logger.Error("refresh board", "board_id", boardID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to refresh board")
		return
	}
	b, _ := h.state.Board(boardID)
	writeJSON(w, http.StatusOK, detailFor(b, snap))
}

type activitiesResponse struct {
	Activities []mission.ParticipatedActivity         `json:"participatedActivities"`
	Progress   map[string]mission.RepeatVisitProgress `json:"repeatVisitProgressByMissionId"`
	TotalCoins int                                    `json:"totalCoins"`
}

func activities(snap mission.Snapshot) activitiesResponse {
	resp := activitiesResponse{Activities: snap.Activities, Progress: snap.Progress, TotalCoins: snap.TotalCoins()}
	if resp.Activities == nil {
		resp.Activities = []mission.ParticipatedActivity{}
	}
	if resp.Progress == nil {
		resp.Progress = map[string]mission.RepeatVisitProgress{}
	}
	return resp
}

// Activities returns the participation snapshot with the coin total.
func (h *BoardHandler) Activities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, activities(h.state.Snapshot()))
}

// Reconcile rebuilds the snapshot from the ledger for every board.
func (h *BoardHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Reconcile(r.Context())
	if err != nil {
		if writeSessionError(w, err) {
			return
		}
		h.logger.Error("reconcile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reconcile")
		return
	}
	writeJSON(w, http.StatusOK, activities(snap))
}
