package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/missionboard/internal/mission"
	"github.com/dukerupert/missionboard/internal/participation"
	"github.com/dukerupert/missionboard/internal/session"
)

type stubService struct {
	boards     []mission.Board
	loadErr    error
	snap       mission.Snapshot
	err        error
	refreshed  []string
	reconciled int
	cleared    int
}

func (s *stubService) LoadBoards(context.Context) ([]mission.Board, error) {
	return s.boards, s.loadErr
}

func (s *stubService) Reconcile(context.Context) (mission.Snapshot, error) {
	s.reconciled++
	return s.snap, s.err
}

func (s *stubService) RefreshBoard(_ context.Context, id string) (mission.Snapshot, error) {
	s.refreshed = append(s.refreshed, id)
	return s.snap, s.err
}

func (s *stubService) Clear() { s.cleared++ }

func boardRouter(h *BoardHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/boards", h.List)
	r.Post("/api/boards/load", h.Load)
	r.Get("/api/boards/{boardID}", h.Get)
	r.Post("/api/boards/{boardID}/refresh", h.Refresh)
	r.Get("/api/activities", h.Activities)
	r.Post("/api/activities/reconcile", h.Reconcile)
	return r
}

func sampleSnapshot() mission.Snapshot {
	done := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	snap := mission.EmptySnapshot()
	snap.Activities = []mission.ParticipatedActivity{
		{ID: "attempt-2", BoardID: "7", MissionID: "10", Status: mission.ActivityCompleted, RewardCoins: 10, StartedAt: done, CompletedAt: &done},
		{ID: "attempt-1", BoardID: "8", MissionID: "11", Status: mission.ActivityCompleted, RewardCoins: 25, StartedAt: done, CompletedAt: &done},
	}
	snap.Progress["50"] = mission.RepeatVisitProgress{BoardID: "7", MissionID: "50", CurrentStampCount: 2}
	return snap
}

func TestBoardListSortedByDistance(t *testing.T) {
	h := NewBoardHandler(&stubService{}, &stubState{boards: testBoards()}, discardLogger)

	rec := doJSON(t, boardRouter(h), "GET", "/api/boards?latitude=35.18&longitude=129.07", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[[]struct {
		ID             string   `json:"id"`
		DistanceMeters *float64 `json:"distanceMeters"`
	}](t, rec)
	if len(got) != 2 || got[0].ID != "8" {
		t.Fatalf("boards = %+v, want nearest (8) first", got)
	}
	if got[0].DistanceMeters == nil || *got[0].DistanceMeters > 1000 {
		t.Errorf("distance = %v", got[0].DistanceMeters)
	}
}

func TestBoardListUnsorted(t *testing.T) {
	h := NewBoardHandler(&stubService{}, &stubState{boards: testBoards()}, discardLogger)

	rec := doJSON(t, boardRouter(h), "GET", "/api/boards", nil)
	got := decode[[]map[string]any](t, rec)
	if len(got) != 2 || got[0]["id"] != "7" {
		t.Fatalf("boards = %v", got)
	}
	if _, ok := got[0]["distanceMeters"]; ok {
		t.Error("distance should be omitted without a coordinate")
	}

	rec = doJSON(t, boardRouter(h), "GET", "/api/boards?latitude=abc&longitude=1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad coordinate status = %d", rec.Code)
	}
}

func TestBoardLoad(t *testing.T) {
	svc := &stubService{boards: testBoards()}
	h := NewBoardHandler(svc, &stubState{}, discardLogger)

	rec := doJSON(t, boardRouter(h), "POST", "/api/boards/load", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	svc.loadErr = errors.New("catalog down")
	rec = doJSON(t, boardRouter(h), "POST", "/api/boards/load", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestBoardGet(t *testing.T) {
	h := NewBoardHandler(&stubService{}, &stubState{boards: testBoards(), snap: sampleSnapshot()}, discardLogger)

	rec := doJSON(t, boardRouter(h), "GET", "/api/boards/7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[struct {
		Board      map[string]any                         `json:"board"`
		Activities []mission.ParticipatedActivity         `json:"participatedActivities"`
		Progress   map[string]mission.RepeatVisitProgress `json:"repeatVisitProgressByMissionId"`
	}](t, rec)
	if len(got.Activities) != 1 || got.Activities[0].ID != "attempt-2" {
		t.Errorf("activities = %+v, want only board 7", got.Activities)
	}
	if got.Progress["50"].CurrentStampCount != 2 {
		t.Errorf("progress = %+v", got.Progress)
	}

	rec = doJSON(t, boardRouter(h), "GET", "/api/boards/99", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing board status = %d", rec.Code)
	}
}

func TestBoardRefresh(t *testing.T) {
	svc := &stubService{snap: sampleSnapshot()}
	h := NewBoardHandler(svc, &stubState{boards: testBoards()}, discardLogger)

	rec := doJSON(t, boardRouter(h), "POST", "/api/boards/7/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(svc.refreshed) != 1 || svc.refreshed[0] != "7" {
		t.Errorf("refreshed = %v", svc.refreshed)
	}

	tests := []struct {
		err  error
		code int
	}{
		{participation.ErrBoardNotFound, http.StatusNotFound},
		{session.ErrNotLoggedIn, http.StatusUnauthorized},
		{session.ErrExpired, http.StatusUnauthorized},
		{errors.New("db"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		svc.err = tt.err
		rec := doJSON(t, boardRouter(h), "POST", "/api/boards/7/refresh", nil)
		if rec.Code != tt.code {
			t.Errorf("err %v: status = %d, want %d", tt.err, rec.Code, tt.code)
		}
	}
}

func TestActivities(t *testing.T) {
	h := NewBoardHandler(&stubService{}, &stubState{snap: sampleSnapshot()}, discardLogger)

	rec := doJSON(t, boardRouter(h), "GET", "/api/activities", nil)
	got := decode[activitiesResponse](t, rec)
	if got.TotalCoins != 35 {
		t.Errorf("totalCoins = %d, want 35", got.TotalCoins)
	}
	if len(got.Activities) != 2 {
		t.Errorf("activities = %d", len(got.Activities))
	}
}

func TestActivitiesEmpty(t *testing.T) {
	h := NewBoardHandler(&stubService{}, &stubState{}, discardLogger)

	rec := doJSON(t, boardRouter(h), "GET", "/api/activities", nil)
	got := decode[map[string]any](t, rec)
	if acts, ok := got["participatedActivities"].([]any); !ok || len(acts) != 0 {
		t.Errorf("participatedActivities = %v, want []", got["participatedActivities"])
	}
}

func TestReconcileRoute(t *testing.T) {
	svc := &stubService{snap: sampleSnapshot()}
	h := NewBoardHandler(svc, &stubState{}, discardLogger)

	rec := doJSON(t, boardRouter(h), "POST", "/api/activities/reconcile", nil)
	if rec.Code != http.StatusOK || svc.reconciled != 1 {
		t.Fatalf("status = %d, reconciled = %d", rec.Code, svc.reconciled)
	}

	svc.err = session.ErrNotLoggedIn
	rec = doJSON(t, boardRouter(h), "POST", "/api/activities/reconcile", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
