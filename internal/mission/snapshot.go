package mission

import (
	"maps"
	"slices"
	"time"
)

// Snapshot is the participation state shown to the user. Snapshots are values:
// every function here returns a new snapshot and never writes to its input.
type Snapshot struct {
	Activities []ParticipatedActivity         `json:"participatedActivities"`
	Progress   map[string]RepeatVisitProgress `json:"repeatVisitProgressByMissionId"`
}

// EmptySnapshot returns a snapshot with non-nil collections.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Activities: []ParticipatedActivity{},
		Progress:   map[string]RepeatVisitProgress{},
	}
}

// Activity looks up an activity by id.
func (s Snapshot) Activity(id string) (ParticipatedActivity, bool) {
	for _, a := range s.Activities {
		if a.ID == id {
			return a, true
		}
	}
	return ParticipatedActivity{}, false
}

// Has reports whether an activity with the given status exists for the pair.
func (s Snapshot) Has(boardID, missionID string, status ActivityStatus) bool {
	return slices.ContainsFunc(s.Activities, func(a ParticipatedActivity) bool {
		return a.BoardID == boardID && a.MissionID == missionID && a.Status == status
	})
}

// StampProgressFor returns the stored progress for a stamp mission, or a zero
// record for the pair.
func (s Snapshot) StampProgressFor(boardID, missionID string) RepeatVisitProgress {
	if p, ok := s.Progress[missionID]; ok {
		return p
	}
	return RepeatVisitProgress{BoardID: boardID, MissionID: missionID}
}

// TotalCoins sums the rewards of completed activities.
func (s Snapshot) TotalCoins() int {
	total := 0
	for _, a := range s.Activities {
		if a.Status == ActivityCompleted {
			total += a.RewardCoins
		}
	}
	return total
}

func sortByStartedDesc(activities []ParticipatedActivity) {
	slices.SortStableFunc(activities, func(a, b ParticipatedActivity) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
}

// ApplyActivity upserts act. Any other started activity for the same pair is
// dropped, so at most one started record exists per pair, and a completed
// activity also replaces the pair's started record.
func ApplyActivity(s Snapshot, act ParticipatedActivity) Snapshot {
	next := make([]ParticipatedActivity, 0, len(s.Activities)+1)
	next = append(next, act)
	for _, a := range s.Activities {
		if a.ID == act.ID {
			continue
		}
		if a.BoardID == act.BoardID && a.MissionID == act.MissionID && a.Status == ActivityStarted {
			continue
		}
		next = append(next, a)
	}
	sortByStartedDesc(next)
	return Snapshot{Activities: next, Progress: s.Progress}
}

// RemoveActivity drops the activity with the given id.
func RemoveActivity(s Snapshot, id string) Snapshot {
	next := slices.DeleteFunc(slices.Clone(s.Activities), func(a ParticipatedActivity) bool {
		return a.ID == id
	})
	return Snapshot{Activities: next, Progress: s.Progress}
}

// SetProgress stores p under its mission id.
func SetProgress(s Snapshot, p RepeatVisitProgress) Snapshot {
	progress := maps.Clone(s.Progress)
	if progress == nil {
		progress = map[string]RepeatVisitProgress{}
	}
	progress[p.MissionID] = p
	return Snapshot{Activities: s.Activities, Progress: progress}
}

// History is the fetched attempt list of one mission.
type History struct {
	Board    Board
	Mission  Mission
	Attempts []Attempt
}

// BuildSnapshot folds attempt histories into a snapshot. Attempts are mapped
// newest first, duplicates by activity id keep their first occurrence, and the
// result is ordered by start time descending. Started records are dropped for
// pairs that already hold a completed record, and only the newest started
// record of a pair survives. An attempt without timestamps keeps the start time
// prior recorded for it, or is stamped with now when prior has none, so
// rebuilding from an unchanged ledger reproduces prior exactly.
func BuildSnapshot(histories []History, prior Snapshot, now time.Time) Snapshot {
	snap := EmptySnapshot()
	seen := make(map[string]bool)
	known := make(map[string]time.Time, len(prior.Activities))
	for _, a := range prior.Activities {
		known[a.ID] = a.StartedAt
	}

	for _, h := range histories {
		var completed bool
		var started bool
		var mapped []ParticipatedActivity
		for _, a := range SortLatestFirst(h.Attempts) {
			fallback, ok := known[ActivityID(a.AttemptID)]
			if !ok {
				fallback = now
			}
			act, ok := MapAttempt(h.Board, h.Mission, a, MapOptions{Now: fallback})
			if !ok {
				continue
			}
			if act.Status == ActivityCompleted {
				completed = true
			}
			mapped = append(mapped, act)
		}
		for _, act := range mapped {
			if seen[act.ID] {
				continue
			}
			if act.Status == ActivityStarted {
				if completed || started {
					continue
				}
				started = true
			}
			seen[act.ID] = true
			snap.Activities = append(snap.Activities, act)
		}

		if _, ok := h.Mission.Rule.(StampRule); ok {
			snap.Progress[h.Mission.ID] = StampProgress(h.Board, h.Mission, h.Attempts)
		}
	}

	sortByStartedDesc(snap.Activities)
	return snap
}

// MergeBoard replaces one board's share of s with fresh, a snapshot built from
// that board's missions only. Activities of other boards are kept; stamp
// progress for the listed stamp missions is replaced.
func MergeBoard(s Snapshot, boardID string, stampMissionIDs []string, fresh Snapshot) Snapshot {
	return merge(s, fresh, stampMissionIDs, func(a ParticipatedActivity) bool {
		return a.BoardID == boardID
	})
}

// MergeMission replaces the activities and stamp progress of a single mission
// with fresh, a snapshot built from that mission's history.
func MergeMission(s Snapshot, boardID, missionID string, fresh Snapshot) Snapshot {
	return merge(s, fresh, []string{missionID}, func(a ParticipatedActivity) bool {
		return a.BoardID == boardID && a.MissionID == missionID
	})
}

func merge(s, fresh Snapshot, progressIDs []string, replaced func(ParticipatedActivity) bool) Snapshot {
	activities := make([]ParticipatedActivity, 0, len(s.Activities)+len(fresh.Activities))
	for _, a := range s.Activities {
		if !replaced(a) {
			activities = append(activities, a)
		}
	}
	activities = append(activities, fresh.Activities...)
	sortByStartedDesc(activities)

	progress := maps.Clone(s.Progress)
	if progress == nil {
		progress = map[string]RepeatVisitProgress{}
	}
	for _, id := range progressIDs {
		delete(progress, id)
	}
	maps.Copy(progress, fresh.Progress)

	return Snapshot{Activities: activities, Progress: progress}
}
