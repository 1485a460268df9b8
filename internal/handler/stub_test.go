package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/missionboard/internal/geo"
	"github.com/dukerupert/missionboard/internal/mission"
	"github.com/dukerupert/missionboard/internal/participation"
	"github.com/dukerupert/missionboard/internal/upload"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type certifyCall struct {
	op        string
	boardID   string
	missionID string
	coord     *geo.Coordinate
	imageURL  string
}

type stubCertifier struct {
	out   participation.Outcome
	err   error
	calls []certifyCall
}

func (s *stubCertifier) record(c certifyCall) (participation.Outcome, error) {
	s.calls = append(s.calls, c)
	return s.out, s.err
}

func (s *stubCertifier) CertifyQuietTime(_ context.Context, b, m string, c *geo.Coordinate) (participation.Outcome, error) {
	return s.record(certifyCall{op: "quiet", boardID: b, missionID: m, coord: c})
}

func (s *stubCertifier) CertifyReceiptPurchase(_ context.Context, b, m string, c *geo.Coordinate, img string) (participation.Outcome, error) {
	return s.record(certifyCall{op: "receipt", boardID: b, missionID: m, coord: c, imageURL: img})
}

func (s *stubCertifier) CertifyTreasureHunt(_ context.Context, b, m string, c *geo.Coordinate, img string) (participation.Outcome, error) {
	return s.record(certifyCall{op: "treasure", boardID: b, missionID: m, coord: c, imageURL: img})
}

func (s *stubCertifier) CertifyRepeatVisit(_ context.Context, b, m string, c *geo.Coordinate) (participation.Outcome, error) {
	return s.record(certifyCall{op: "stamp", boardID: b, missionID: m, coord: c})
}

func (s *stubCertifier) StartStay(_ context.Context, b, m string, c *geo.Coordinate) (participation.Outcome, error) {
	return s.record(certifyCall{op: "start", boardID: b, missionID: m, coord: c})
}

func (s *stubCertifier) CompleteStay(_ context.Context, id string, c *geo.Coordinate) (participation.Outcome, error) {
	return s.record(certifyCall{op: "complete", boardID: id, coord: c})
}

type stubImages struct {
	enabled  bool
	err      error
	uploaded []string
	deleted  []string
}

func (s *stubImages) Enabled() bool { return s.enabled }

func (s *stubImages) Upload(_ context.Context, prefix string, r io.Reader, contentType string) (upload.Object, error) {
	if s.err != nil {
		return upload.Object{}, s.err
	}
	data, _ := io.ReadAll(r)
	key := prefix + "/img.jpg"
	s.uploaded = append(s.uploaded, string(data))
	return upload.Object{Key: key, URL: "https://cdn.example.com/" + key}, nil
}

func (s *stubImages) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

type stubState struct {
	snap   mission.Snapshot
	boards []mission.Board
}

func (s *stubState) Snapshot() mission.Snapshot { return s.snap }
func (s *stubState) Boards() []mission.Board    { return s.boards }

func (s *stubState) Board(id string) (mission.Board, bool) {
	for _, b := range s.boards {
		if b.ID == id {
			return b, true
		}
	}
	return mission.Board{}, false
}

func testBoards() []mission.Board {
	return []mission.Board{
		{
			ID:         "7",
			Title:      "Corner Cafe",
			Coordinate: geo.Coordinate{Latitude: 37.5665, Longitude: 126.978},
			Missions: []mission.Mission{
				{ID: "10", Title: "Quiet visit", RewardCoins: 10, Rule: mission.QuietTimeRule{}},
				{ID: "50", Title: "Stamp card", RewardCoins: 20, Rule: mission.StampRule{GoalCount: 5}},
			},
		},
		{
			ID:         "8",
			Title:      "Harbor Books",
			Coordinate: geo.Coordinate{Latitude: 35.1796, Longitude: 129.0756},
		},
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}
