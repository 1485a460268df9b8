package mission

import (
	"strconv"
	"time"

	"github.com/dukerupert/missionboard/internal/geo"
)

// ActivityStatus is the local lifecycle state of a participated activity.
type ActivityStatus string

const (
	ActivityStarted   ActivityStatus = "started"
	ActivityCompleted ActivityStatus = "completed"
)

// ParticipatedActivity is the UI-facing projection of one attempt.
type ParticipatedActivity struct {
	ID              string          `json:"id"`
	BoardID         string          `json:"boardId"`
	BoardTitle      string          `json:"boardTitle"`
	MissionID       string          `json:"missionId"`
	MissionType     Type            `json:"missionType"`
	MissionTitle    string          `json:"missionTitle"`
	RewardCoins     int             `json:"rewardCoins"`
	Status          ActivityStatus  `json:"status"`
	StartedAt       time.Time       `json:"startedAt"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	RequiredMinutes int             `json:"requiredMinutes,omitempty"`
	ImageURL        string          `json:"imageUrl,omitempty"`
	StartCoordinate geo.Coordinate  `json:"startCoordinate"`
	EndCoordinate   *geo.Coordinate `json:"endCoordinate,omitempty"`
}

// ActivityID is the stable key derived from the ledger's attempt id.
func ActivityID(attemptID int64) string {
	return "attempt-" + strconv.FormatInt(attemptID, 10)
}

// RepeatVisitProgress is the derived stamp-card state of one stamp mission.
// Estimated is set when the values come from the local fallback rather than
// the full attempt history.
type RepeatVisitProgress struct {
	BoardID           string     `json:"boardId"`
	MissionID         string     `json:"missionId"`
	CurrentStampCount int        `json:"currentStampCount"`
	CompletedRounds   int        `json:"completedRounds"`
	LastStampedAt     *time.Time `json:"lastStampedAt,omitempty"`
	Estimated         bool       `json:"estimated,omitempty"`
}
