package participation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukerupert/missionboard/internal/mission"
)

var ErrBoardNotFound = errors.New("board not found")

// BoardSource loads the board catalog.
type BoardSource interface {
	FetchBoards(ctx context.Context) ([]mission.Board, error)
}

// Service loads boards and keeps the snapshot reconciled with the ledger.
type Service struct {
	source     BoardSource
	reconciler *Reconciler
	tokens     TokenSource
	state      *State
	logger     *slog.Logger
}

func NewService(source BoardSource, reconciler *Reconciler, tokens TokenSource, state *State, logger *slog.Logger) *Service {
	return &Service{
		source:     source,
		reconciler: reconciler,
		tokens:     tokens,
		state:      state,
		logger:     logger,
	}
}

// LoadBoards fetches the catalog and rebuilds the whole snapshot from the
// ledger. Without a signed-in user the boards are still loaded and the
// current snapshot is kept.
func (s *Service) LoadBoards(ctx context.Context) ([]mission.Board, error) {
	boards, err := s.source.FetchBoards(ctx)
	if err != nil {
		return nil, err
	}
	s.state.SetBoards(boards)
	s.logger.Info("boards loaded", "count", len(boards))

	if _, err := s.Reconcile(ctx); err != nil {
		s.logger.Info("skipping reconciliation", "reason", err)
	}
	return boards, nil
}

// Reconcile rebuilds the snapshot for every loaded board.
func (s *Service) Reconcile(ctx context.Context) (mission.Snapshot, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return mission.Snapshot{}, err
	}
	snap := s.reconciler.Reconcile(ctx, s.state.Boards(), token, s.state.Snapshot())
	return s.state.Update(func(mission.Snapshot) mission.Snapshot { return snap }), nil
}

// RefreshBoard reconciles a single board and merges the result, leaving other
// boards' activities and stamp progress untouched.
func (s *Service) RefreshBoard(ctx context.Context, boardID string) (mission.Snapshot, error) {
	b, ok := s.state.Board(boardID)
	if !ok {
		return mission.Snapshot{}, ErrBoardNotFound
	}
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return mission.Snapshot{}, err
	}

	fresh := s.reconciler.Reconcile(ctx, []mission.Board{b}, token, s.state.Snapshot())
	var stampIDs []string
	for _, m := range b.Missions {
		if m.Type() == mission.TypeStamp {
			stampIDs = append(stampIDs, m.ID)
		}
	}
	return s.state.Update(func(cur mission.Snapshot) mission.Snapshot {
		return mission.MergeBoard(cur, b.ID, stampIDs, fresh)
	}), nil
}

// Clear drops all participation state, used on logout.
func (s *Service) Clear() {
	s.state.Update(func(mission.Snapshot) mission.Snapshot { return mission.EmptySnapshot() })
}
