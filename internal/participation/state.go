// Package participation owns the user's participation state and the operations
// that change it: board loading, attempt reconciliation and the mission
// certification flows.
package participation

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dukerupert/missionboard/internal/mission"
)

// Listener is notified with every new snapshot. Listeners run while the state's
// write lock is held, in registration order, and must not call Update.
type Listener func(mission.Snapshot)

// State holds the current boards and participation snapshot. Readers never
// block; writers are serialized and replace the snapshot whole.
type State struct {
	mu        sync.Mutex
	snap      atomic.Pointer[mission.Snapshot]
	boards    atomic.Pointer[[]mission.Board]
	listeners []Listener
}

// NewState creates a state seeded with initial, typically the last persisted
// snapshot.
func NewState(initial mission.Snapshot) *State {
	if initial.Activities == nil || initial.Progress == nil {
		seeded := mission.EmptySnapshot()
		if initial.Activities != nil {
			seeded.Activities = initial.Activities
		}
		if initial.Progress != nil {
			seeded.Progress = initial.Progress
		}
		initial = seeded
	}
	s := &State{}
	s.snap.Store(&initial)
	empty := []mission.Board{}
	s.boards.Store(&empty)
	return s
}

// OnChange registers l for snapshot updates.
func (s *State) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Snapshot returns the current snapshot. Callers must treat it as read-only.
func (s *State) Snapshot() mission.Snapshot {
	return *s.snap.Load()
}

// Update applies fn to the current snapshot and publishes the result.
func (s *State) Update(fn func(mission.Snapshot) mission.Snapshot) mission.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(*s.snap.Load())
	s.snap.Store(&next)
	for _, l := range s.listeners {
		l(next)
	}
	return next
}

// Boards returns the loaded boards.
func (s *State) Boards() []mission.Board {
	return *s.boards.Load()
}

// SetBoards replaces the loaded boards.
func (s *State) SetBoards(boards []mission.Board) {
	cp := slices.Clone(boards)
	if cp == nil {
		cp = []mission.Board{}
	}
	s.boards.Store(&cp)
}

// Board looks up a loaded board by id.
func (s *State) Board(id string) (mission.Board, bool) {
	for _, b := range s.Boards() {
		if b.ID == id {
			return b, true
		}
	}
	return mission.Board{}, false
}
