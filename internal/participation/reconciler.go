package participation

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/missionboard/internal/mission"
)

// AttemptFetcher returns the caller's attempt history for one mission.
type AttemptFetcher interface {
	MyAttempts(ctx context.Context, missionID int64, token string) ([]mission.Attempt, error)
}

// Reconciler rebuilds participation state from the remote attempt ledger.
type Reconciler struct {
	fetcher AttemptFetcher
	limit   int
	now     func() time.Time
	logger  *slog.Logger
}

// NewReconciler creates a reconciler that fetches at most limit histories at once.
func NewReconciler(fetcher AttemptFetcher, limit int, now func() time.Time, logger *slog.Logger) *Reconciler {
	if limit <= 0 {
		limit = 8
	}
	if now == nil {
		now = time.Now
	}
	return &Reconciler{fetcher: fetcher, limit: limit, now: now, logger: logger}
}

// Histories fetches the attempt history of every mission on boards, in board
// and mission order. A mission whose fetch fails contributes an empty history.
func (r *Reconciler) Histories(ctx context.Context, boards []mission.Board, token string) []mission.History {
	var histories []mission.History
	for _, b := range boards {
		for _, m := range b.Missions {
			histories = append(histories, mission.History{Board: b, Mission: m})
		}
	}

	var g errgroup.Group
	g.SetLimit(r.limit)
	for i := range histories {
		g.Go(func() error {
			h := &histories[i]
			attempts, err := r.fetch(ctx, h.Mission, token)
			if err != nil {
				r.logger.Warn("attempt history unavailable",
					"board_id", h.Board.ID, "mission_id", h.Mission.ID, "error", err)
				return nil
			}
			h.Attempts = attempts
			return nil
		})
	}
	g.Wait()
	return histories
}

func (r *Reconciler) fetch(ctx context.Context, m mission.Mission, token string) ([]mission.Attempt, error) {
	id, err := m.RemoteID()
	if err != nil {
		return nil, err
	}
	return r.fetcher.MyAttempts(ctx, id, token)
}

// Reconcile builds a snapshot for boards from the ledger. prior supplies the
// start times of attempts the ledger reports without timestamps.
func (r *Reconciler) Reconcile(ctx context.Context, boards []mission.Board, token string, prior mission.Snapshot) mission.Snapshot {
	snap := mission.BuildSnapshot(r.Histories(ctx, boards, token), prior, r.now())
	r.logger.Debug("reconciled", "boards", len(boards), "activities", len(snap.Activities))
	return snap
}

// ReconcileMission fetches a single mission's history and builds its share of
// the snapshot. Attempts in known that the ledger does not list yet are folded
// in as well, so a just-recorded attempt is never lost to replication lag.
// Unlike Reconcile it reports the fetch error so callers can choose a fallback.
func (r *Reconciler) ReconcileMission(ctx context.Context, b mission.Board, m mission.Mission, token string, prior mission.Snapshot, known ...mission.Attempt) (mission.Snapshot, error) {
	attempts, err := r.fetch(ctx, m, token)
	if err != nil {
		return mission.Snapshot{}, err
	}
	for _, k := range known {
		if !slices.ContainsFunc(attempts, func(a mission.Attempt) bool { return a.AttemptID == k.AttemptID }) {
			attempts = append(attempts, k)
		}
	}
	h := mission.History{Board: b, Mission: m, Attempts: attempts}
	return mission.BuildSnapshot([]mission.History{h}, prior, r.now()), nil
}
