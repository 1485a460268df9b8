package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/missionboard/internal/geo"
	"github.com/dukerupert/missionboard/internal/mission"
)

// ParticipationStore persists the participation snapshot so the last known
// state is available before the first reconciliation.
type ParticipationStore struct {
	db *sql.DB
}

func NewParticipationStore(db *sql.DB) *ParticipationStore {
	return &ParticipationStore{db: db}
}

const activityCols = `id, board_id, board_title, mission_id, mission_type, mission_title, reward_coins, status,
	started_at, completed_at, required_minutes, image_url, start_lat, start_lng, end_lat, end_lng`

func scanActivity(scanner interface{ Scan(...any) error }) (mission.ParticipatedActivity, error) {
	var a mission.ParticipatedActivity
	var missionType, status string
	var startedAt int64
	var completedAt sql.NullInt64
	var endLat, endLng sql.NullFloat64

	err := scanner.Scan(&a.ID, &a.BoardID, &a.BoardTitle, &a.MissionID, &missionType, &a.MissionTitle,
		&a.RewardCoins, &status, &startedAt, &completedAt, &a.RequiredMinutes, &a.ImageURL,
		&a.StartCoordinate.Latitude, &a.StartCoordinate.Longitude, &endLat, &endLng)
	if err != nil {
		return a, err
	}

	a.MissionType = mission.Type(missionType)
	a.Status = mission.ActivityStatus(status)
	a.StartedAt = fromMillis(startedAt)
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		a.CompletedAt = &t
	}
	if endLat.Valid && endLng.Valid {
		a.EndCoordinate = &geo.Coordinate{Latitude: endLat.Float64, Longitude: endLng.Float64}
	}
	return a, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

// Save replaces the stored snapshot in one transaction.
func (s *ParticipationStore) Save(snap mission.Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM participated_activities`); err != nil {
		return fmt.Errorf("clear activities: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM repeat_visit_progress`); err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}

	for i, a := range snap.Activities {
		var endLat, endLng sql.NullFloat64
		if a.EndCoordinate != nil {
			endLat = sql.NullFloat64{Float64: a.EndCoordinate.Latitude, Valid: true}
			endLng = sql.NullFloat64{Float64: a.EndCoordinate.Longitude, Valid: true}
		}
		_, err := tx.Exec(
			`INSERT INTO participated_activities (position, `+activityCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			i, a.ID, a.BoardID, a.BoardTitle, a.MissionID, string(a.MissionType), a.MissionTitle,
			a.RewardCoins, string(a.Status), a.StartedAt.UnixMilli(), nullMillis(a.CompletedAt),
			a.RequiredMinutes, a.ImageURL, a.StartCoordinate.Latitude, a.StartCoordinate.Longitude,
			endLat, endLng,
		)
		if err != nil {
			return fmt.Errorf("insert activity %s: %w", a.ID, err)
		}
	}

	for _, p := range snap.Progress {
		var estimated int
		if p.Estimated {
			estimated = 1
		}
		_, err := tx.Exec(
			`INSERT INTO repeat_visit_progress (mission_id, board_id, current_stamp_count, completed_rounds, last_stamped_at, estimated)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.MissionID, p.BoardID, p.CurrentStampCount, p.CompletedRounds, nullMillis(p.LastStampedAt), estimated,
		)
		if err != nil {
			return fmt.Errorf("insert progress %s: %w", p.MissionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, empty when nothing was saved.
func (s *ParticipationStore) Load() (mission.Snapshot, error) {
	snap := mission.EmptySnapshot()

	rows, err := s.db.Query(`SELECT ` + activityCols + ` FROM participated_activities ORDER BY position ASC`)
	if err != nil {
		return snap, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return snap, fmt.Errorf("scan activity: %w", err)
		}
		snap.Activities = append(snap.Activities, a)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("iterate activities: %w", err)
	}
	rows.Close()

	prows, err := s.db.Query(`SELECT mission_id, board_id, current_stamp_count, completed_rounds, last_stamped_at, estimated
		FROM repeat_visit_progress`)
	if err != nil {
		return snap, fmt.Errorf("list progress: %w", err)
	}
	defer prows.Close()

	for prows.Next() {
		var p mission.RepeatVisitProgress
		var last sql.NullInt64
		var estimated int
		if err := prows.Scan(&p.MissionID, &p.BoardID, &p.CurrentStampCount, &p.CompletedRounds, &last, &estimated); err != nil {
			return snap, fmt.Errorf("scan progress: %w", err)
		}
		if last.Valid {
			t := fromMillis(last.Int64)
			p.LastStampedAt = &t
		}
		p.Estimated = estimated != 0
		snap.Progress[p.MissionID] = p
	}
	if err := prows.Err(); err != nil {
		return snap, fmt.Errorf("iterate progress: %w", err)
	}
	return snap, nil
}
