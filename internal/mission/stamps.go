package mission

import "time"

func stampGoal(m Mission) int {
	if r, ok := m.Rule.(StampRule); ok {
		return r.Goal()
	}
	return DefaultStampGoal
}

// StampProgress derives stamp-card progress from a mission's full attempt history.
//
// Each SUCCESS attempt carrying a reward id closes one card. When no attempt is
// reward-linked (older ledger data) rounds fall back to successes / goal. The
// current count is whatever success remains after completed rounds, clamped
// into [0, goal).
func StampProgress(b Board, m Mission, attempts []Attempt) RepeatVisitProgress {
	goal := stampGoal(m)

	var successes, rewarded int
	var last time.Time
	for _, a := range attempts {
		if a.Status != StatusSuccess && a.Status != StatusPending {
			continue
		}
		if a.Status == StatusSuccess {
			successes++
			if a.Rewarded() {
				rewarded++
			}
		}
		ts, ok := a.CheckoutTime()
		if !ok {
			ts, ok = a.CheckinTime()
		}
		if ok && ts.After(last) {
			last = ts
		}
	}

	rounds := successes / goal
	if rewarded > 0 {
		rounds = rewarded
	}
	current := min(max(successes-rounds*goal, 0), goal-1)

	p := RepeatVisitProgress{
		BoardID:           b.ID,
		MissionID:         m.ID,
		CurrentStampCount: current,
		CompletedRounds:   rounds,
	}
	if !last.IsZero() {
		p.LastStampedAt = &last
	}
	return p
}

// Advance estimates progress after one accepted stamp attempt without the
// attempt history. A reward-linked SUCCESS closes the card and resets the
// count; otherwise the count grows by one, staying below the goal.
func (p RepeatVisitProgress) Advance(m Mission, a Attempt, now time.Time) RepeatVisitProgress {
	goal := stampGoal(m)
	next := p
	next.Estimated = true
	next.LastStampedAt = &now

	if a.Status == StatusSuccess && a.Rewarded() {
		next.CompletedRounds++
		next.CurrentStampCount = 0
		return next
	}
	next.CurrentStampCount = min(p.CurrentStampCount+1, goal-1)
	return next
}
