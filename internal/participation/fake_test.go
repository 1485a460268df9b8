package participation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/missionboard/internal/geo"
	"github.com/dukerupert/missionboard/internal/mission"
)

// fakeLedger answers mutating calls from a queue of results and records each
// answered attempt in the per-mission history.
type fakeLedger struct {
	mu         sync.Mutex
	nextID     int64
	results    []mission.Attempt
	err        error
	history    map[int64][]mission.Attempt
	historyErr map[int64]error
	calls      []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		history:    map[int64][]mission.Attempt{},
		historyErr: map[int64]error{},
	}
}

func (f *fakeLedger) queue(results ...mission.Attempt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, results...)
}

func (f *fakeLedger) respond(kind string, missionID int64) (mission.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s:%d", kind, missionID))
	if f.err != nil {
		return mission.Attempt{}, f.err
	}
	if len(f.results) == 0 {
		return mission.Attempt{}, errors.New("unexpected call")
	}
	a := f.results[0]
	f.results = f.results[1:]
	if a.AttemptID == 0 {
		f.nextID++
		a.AttemptID = f.nextID
	}
	a.MissionID = missionID
	f.history[missionID] = append(f.history[missionID], a)
	return a, nil
}

func (f *fakeLedger) Attempt(_ context.Context, missionID int64, _, _ string) (mission.Attempt, error) {
	return f.respond("attempt", missionID)
}

func (f *fakeLedger) Checkin(_ context.Context, missionID int64, _ string) (mission.Attempt, error) {
	return f.respond("checkin", missionID)
}

func (f *fakeLedger) Checkout(_ context.Context, missionID int64, _ string) (mission.Attempt, error) {
	return f.respond("checkout", missionID)
}

func (f *fakeLedger) MyAttempts(_ context.Context, missionID int64, _ string) ([]mission.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("history:%d", missionID))
	if err := f.historyErr[missionID]; err != nil {
		return nil, err
	}
	out := make([]mission.Attempt, len(f.history[missionID]))
	copy(out, f.history[missionID])
	return out, nil
}

func (f *fakeLedger) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeTokens struct {
	token string
	err   error
}

func (f fakeTokens) Token(context.Context) (string, error) { return f.token, f.err }

type fakeCatalog struct {
	boards []mission.Board
	err    error
}

func (f fakeCatalog) FetchBoards(context.Context) ([]mission.Board, error) { return f.boards, f.err }

func ptr[T any](v T) *T { return &v }

func ts(t time.Time) *string {
	s := t.UTC().Format(time.RFC3339)
	return &s
}

var boardCoord = geo.Coordinate{Latitude: 37.5665, Longitude: 126.9780}

func testBoard() mission.Board {
	return mission.Board{
		ID:         "7",
		Title:      "Corner Cafe",
		Coordinate: boardCoord,
		Missions: []mission.Mission{
			{ID: "10", Title: "Quiet visit", RewardCoins: 10, Rule: mission.QuietTimeRule{StartHour: ptr(22.0), EndHour: ptr(6.0)}},
			{ID: "20", Title: "Receipt", RewardCoins: 20, Rule: mission.ReceiptRule{ItemName: "Latte"}},
			{ID: "30", Title: "Stay", RewardCoins: 30, Rule: mission.StayRule{MinMinutes: 20}},
			{ID: "40", Title: "Stamps", RewardCoins: 50, Rule: mission.StampRule{GoalCount: 5}},
			{ID: "50", Title: "Treasure", RewardCoins: 15, Rule: mission.TreasureHuntRule{GuideText: "Find the red door"}},
			{ID: "abc", Title: "Broken", RewardCoins: 1, Rule: mission.QuietTimeRule{}},
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	ledger *fakeLedger
	state  *State
	orch   *Orchestrator
	now    time.Time
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	h := &harness{ledger: newFakeLedger(), state: NewState(mission.EmptySnapshot()), now: now}
	h.state.SetBoards([]mission.Board{testBoard()})
	clock := func() time.Time { return h.now }
	rec := NewReconciler(h.ledger, 4, clock, discardLogger())
	h.orch = NewOrchestrator(h.ledger, fakeTokens{token: "tok"}, h.state, rec,
		Config{ProximityMeters: 200, Location: time.UTC, Now: clock}, discardLogger())
	return h
}

func requireFailure(t *testing.T, err error, kind FailureKind) *Failure {
	t.Helper()
	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("err = %v, want *Failure", err)
	}
	if f.Kind != kind {
		t.Fatalf("kind = %v, want %v (%s)", f.Kind, kind, f.Message)
	}
	return f
}
