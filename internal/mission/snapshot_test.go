package mission

import (
	"encoding/json"
	"testing"
	"time"
)

func activity(id, boardID, missionID string, status ActivityStatus, startedHour int) ParticipatedActivity {
	return ParticipatedActivity{
		ID:        id,
		BoardID:   boardID,
		MissionID: missionID,
		Status:    status,
		StartedAt: time.Date(2026, 2, 4, startedHour, 0, 0, 0, time.UTC),
	}
}

func ids(s Snapshot) []string {
	out := make([]string, 0, len(s.Activities))
	for _, a := range s.Activities {
		out = append(out, a.ID)
	}
	return out
}

func equalIDs(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
}

func TestApplyActivityCompletedReplacesStarted(t *testing.T) {
	s := EmptySnapshot()
	s = ApplyActivity(s, activity("attempt-1", "7", "30", ActivityStarted, 9))
	s = ApplyActivity(s, activity("attempt-9", "8", "31", ActivityStarted, 8))

	next := ApplyActivity(s, activity("attempt-2", "7", "30", ActivityCompleted, 10))
	equalIDs(t, ids(next), "attempt-2", "attempt-9")

	// Input snapshot is untouched.
	equalIDs(t, ids(s), "attempt-1", "attempt-9")
}

func TestApplyActivitySingleStartedPerPair(t *testing.T) {
	s := ApplyActivity(EmptySnapshot(), activity("attempt-1", "7", "30", ActivityStarted, 9))
	s = ApplyActivity(s, activity("attempt-3", "7", "30", ActivityStarted, 11))
	equalIDs(t, ids(s), "attempt-3")
}

func TestApplyActivityUpsertsByID(t *testing.T) {
	s := ApplyActivity(EmptySnapshot(), activity("attempt-1", "7", "40", ActivityCompleted, 9))
	s = ApplyActivity(s, activity("attempt-2", "7", "40", ActivityCompleted, 10))
	updated := activity("attempt-1", "7", "40", ActivityCompleted, 9)
	updated.RewardCoins = 50
	s = ApplyActivity(s, updated)

	equalIDs(t, ids(s), "attempt-2", "attempt-1")
	if s.Activities[1].RewardCoins != 50 {
		t.Errorf("rewardCoins = %d, want 50", s.Activities[1].RewardCoins)
	}
	if s.TotalCoins() != 50 {
		t.Errorf("total = %d, want 50", s.TotalCoins())
	}
}

func TestRemoveAndProgressCopyOnWrite(t *testing.T) {
	s := ApplyActivity(EmptySnapshot(), activity("attempt-1", "7", "30", ActivityStarted, 9))
	removed := RemoveActivity(s, "attempt-1")
	if len(removed.Activities) != 0 {
		t.Errorf("expected activity removed, got %v", ids(removed))
	}
	if len(s.Activities) != 1 {
		t.Error("RemoveActivity mutated its input")
	}

	p := SetProgress(s, RepeatVisitProgress{BoardID: "7", MissionID: "40", CurrentStampCount: 2})
	if _, ok := s.Progress["40"]; ok {
		t.Error("SetProgress mutated its input")
	}
	if p.StampProgressFor("7", "40").CurrentStampCount != 2 {
		t.Error("expected progress stored")
	}
	if got := p.StampProgressFor("7", "41"); got.MissionID != "41" || got.CurrentStampCount != 0 {
		t.Errorf("zero progress = %+v", got)
	}
}

func reconcileFixture() []History {
	stamp := stampMission(5)
	return []History{
		{
			Board:   testBoard,
			Mission: stayMission,
			Attempts: []Attempt{
				{AttemptID: 11, Status: StatusPending, CheckinAt: str("2026-02-04T08:00:00Z")},
				{AttemptID: 12, Status: StatusFailed, CheckinAt: str("2026-02-04T09:00:00Z")},
			},
		},
		{
			Board:   testBoard,
			Mission: quietMission,
			Attempts: []Attempt{
				{AttemptID: 21, Status: StatusSuccess, CheckinAt: str("2026-02-04T10:00:00Z")},
				{AttemptID: 21, Status: StatusSuccess, CheckinAt: str("2026-02-04T10:00:00Z")},
			},
		},
		{
			Board:    testBoard,
			Mission:  stamp,
			Attempts: successes(7, 5),
		},
		{
			Board:    Board{ID: "8", Title: "Bakery"},
			Mission:  Mission{ID: "60", Title: "Quiet", Rule: QuietTimeRule{}},
			Attempts: nil,
		},
	}
}

func TestBuildSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := BuildSnapshot(reconcileFixture(), Snapshot{}, now)

	seen := map[string]bool{}
	for _, a := range s.Activities {
		if seen[a.ID] {
			t.Errorf("duplicate activity id %s", a.ID)
		}
		seen[a.ID] = true
	}
	// 1 stay started + 1 quiet + 7 stamps.
	if len(s.Activities) != 9 {
		t.Fatalf("activities = %d, want 9: %v", len(s.Activities), ids(s))
	}
	for i := 1; i < len(s.Activities); i++ {
		if s.Activities[i].StartedAt.After(s.Activities[i-1].StartedAt) {
			t.Errorf("activities not sorted at %d", i)
		}
	}
	if _, ok := s.Activity("attempt-11"); !ok {
		t.Error("expected pending stay attempt as started activity")
	}
	if _, ok := s.Activity("attempt-12"); ok {
		t.Error("expected failed attempt to be skipped")
	}
	p, ok := s.Progress["40"]
	if !ok {
		t.Fatal("expected stamp progress for mission 40")
	}
	if p.CompletedRounds != 1 || p.CurrentStampCount != 2 {
		t.Errorf("progress = %+v", p)
	}
	if len(s.Progress) != 1 {
		t.Errorf("progress entries = %d, want 1", len(s.Progress))
	}
	if got := s.TotalCoins(); got != 10+50 {
		t.Errorf("total coins = %d, want 60", got)
	}
}

func TestBuildSnapshotIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	fixture := reconcileFixture()
	// Attempts without timestamps must still order deterministically.
	fixture = append(fixture, History{
		Board:   testBoard,
		Mission: receiptMission,
		Attempts: []Attempt{
			{AttemptID: 31, Status: StatusSuccess},
			{AttemptID: 32, Status: StatusSuccess},
		},
	})

	first, err := json.Marshal(BuildSnapshot(fixture, Snapshot{}, now))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := json.Marshal(BuildSnapshot(fixture, Snapshot{}, now))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("snapshots differ:\n%s\n%s", first, second)
	}
}

func TestBuildSnapshotKeepsPriorStartTime(t *testing.T) {
	h := History{Board: testBoard, Mission: receiptMission, Attempts: []Attempt{{AttemptID: 31, Status: StatusSuccess}}}
	first := BuildSnapshot([]History{h}, Snapshot{}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	second := BuildSnapshot([]History{h}, first, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))

	got, ok := second.Activity("attempt-31")
	if !ok {
		t.Fatal("expected attempt-31")
	}
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.StartedAt.Equal(want) || got.CompletedAt == nil || !got.CompletedAt.Equal(want) {
		t.Errorf("started %v completed %v, want %v", got.StartedAt, got.CompletedAt, want)
	}
}

func TestBuildSnapshotDropsStaleStarted(t *testing.T) {
	h := History{
		Board:   testBoard,
		Mission: stayMission,
		Attempts: []Attempt{
			{AttemptID: 1, Status: StatusPending, CheckinAt: str("2026-02-04T08:00:00Z")},
			{AttemptID: 2, Status: StatusPending, CheckinAt: str("2026-02-04T09:00:00Z")},
		},
	}
	s := BuildSnapshot([]History{h}, Snapshot{}, time.Time{})
	equalIDs(t, ids(s), "attempt-2")

	h.Attempts = append(h.Attempts, Attempt{AttemptID: 3, Status: StatusSuccess,
		CheckinAt: str("2026-02-04T07:00:00Z"), CheckoutAt: str("2026-02-04T07:30:00Z")})
	s = BuildSnapshot([]History{h}, Snapshot{}, time.Time{})
	equalIDs(t, ids(s), "attempt-3")
}

func TestMergeBoard(t *testing.T) {
	s := EmptySnapshot()
	s = ApplyActivity(s, activity("attempt-1", "7", "10", ActivityCompleted, 9))
	s = ApplyActivity(s, activity("attempt-2", "8", "60", ActivityCompleted, 10))
	s = SetProgress(s, RepeatVisitProgress{BoardID: "7", MissionID: "40", CurrentStampCount: 4})
	s = SetProgress(s, RepeatVisitProgress{BoardID: "8", MissionID: "61", CurrentStampCount: 1})

	fresh := EmptySnapshot()
	fresh = ApplyActivity(fresh, activity("attempt-3", "7", "10", ActivityCompleted, 11))

	merged := MergeBoard(s, "7", []string{"40"}, fresh)
	equalIDs(t, ids(merged), "attempt-3", "attempt-2")
	if _, ok := merged.Progress["40"]; ok {
		t.Error("expected stale stamp progress for board 7 removed")
	}
	if merged.Progress["61"].CurrentStampCount != 1 {
		t.Error("expected other board's progress kept")
	}
	if _, ok := s.Progress["40"]; !ok {
		t.Error("MergeBoard mutated its input")
	}
}

func TestMergeMission(t *testing.T) {
	s := EmptySnapshot()
	s = ApplyActivity(s, activity("attempt-90", "7", "40", ActivityCompleted, 9))
	s = ApplyActivity(s, activity("attempt-91", "7", "10", ActivityCompleted, 10))
	s = SetProgress(s, RepeatVisitProgress{BoardID: "7", MissionID: "40", CurrentStampCount: 4, Estimated: true})

	fresh := BuildSnapshot([]History{{Board: testBoard, Mission: stampMission(5), Attempts: successes(2)}}, Snapshot{}, time.Time{})
	merged := MergeMission(s, "7", "40", fresh)

	equalIDs(t, ids(merged), "attempt-91", "attempt-2", "attempt-1")
	p := merged.Progress["40"]
	if p.CurrentStampCount != 2 || p.Estimated {
		t.Errorf("progress = %+v, want recomputed count 2", p)
	}
}
