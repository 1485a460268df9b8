package mission

import (
	"time"

	"github.com/dukerupert/missionboard/internal/geo"
)

// MapOptions overrides the coordinate and image recorded on a mapped activity.
// Now is the fallback timestamp for attempts that carry none.
type MapOptions struct {
	Coordinate *geo.Coordinate
	ImageURL   string
	Now        time.Time
}

// MapAttempt converts a ledger attempt into a participated activity. It returns
// false for FAILED and RETRY attempts, and for PENDING attempts of any mission
// other than a stay, where PENDING has no local meaning.
func MapAttempt(b Board, m Mission, a Attempt, opts MapOptions) (ParticipatedActivity, bool) {
	var status ActivityStatus
	switch a.Status {
	case StatusSuccess:
		status = ActivityCompleted
	case StatusPending:
		if _, ok := m.Rule.(StayRule); !ok {
			return ParticipatedActivity{}, false
		}
		status = ActivityStarted
	default:
		return ParticipatedActivity{}, false
	}

	rewarded := status == ActivityCompleted
	if _, ok := m.Rule.(StampRule); ok && !a.Rewarded() {
		rewarded = false
	}

	startedAt, ok := a.Timestamp()
	if !ok {
		startedAt = opts.Now
		if startedAt.IsZero() {
			startedAt = time.Now()
		}
	}

	coord := b.Coordinate
	if opts.Coordinate != nil {
		coord = *opts.Coordinate
	}

	act := ParticipatedActivity{
		ID:              ActivityID(a.AttemptID),
		BoardID:         b.ID,
		BoardTitle:      b.Title,
		MissionID:       m.ID,
		MissionType:     m.Type(),
		MissionTitle:    activityTitle(m, rewarded),
		Status:          status,
		StartedAt:       startedAt,
		ImageURL:        opts.ImageURL,
		StartCoordinate: coord,
	}
	if rewarded {
		act.RewardCoins = m.RewardCoins
	}
	if r, ok := m.Rule.(StayRule); ok {
		act.RequiredMinutes = r.MinMinutes
	}
	if status == ActivityCompleted {
		completedAt := startedAt
		if t, ok := a.CheckoutTime(); ok {
			completedAt = t
		}
		end := coord
		act.CompletedAt = &completedAt
		act.EndCoordinate = &end
	}
	return act, true
}

func activityTitle(m Mission, rewarded bool) string {
	switch r := m.Rule.(type) {
	case ReceiptRule:
		if r.ItemName != "" {
			return m.Title + " (" + r.ItemName + ")"
		}
	case TreasureHuntRule:
		if r.GuideText != "" {
			return m.Title + " (" + r.GuideText + ")"
		}
	case StampRule:
		if rewarded {
			return m.Title + " · card completed"
		}
		return m.Title + " · stamp applied"
	case QuietTimeRule, StayRule:
	}
	return m.Title
}
