package mission

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// AttemptStatus is the ledger's verdict on one attempt.
type AttemptStatus string

const (
	StatusPending AttemptStatus = "PENDING"
	StatusSuccess AttemptStatus = "SUCCESS"
	StatusFailed  AttemptStatus = "FAILED"
	StatusRetry   AttemptStatus = "RETRY"
)

// Attempt is one server-recorded try at a mission. It is the only source of
// truth for whether a reward was granted.
type Attempt struct {
	AttemptID  int64         `json:"attemptId"`
	MissionID  int64         `json:"missionId"`
	Status     AttemptStatus `json:"status"`
	RetryHint  *string       `json:"retryHint,omitempty"`
	RewardID   *int64        `json:"rewardId,omitempty"`
	CheckinAt  *string       `json:"checkinAt,omitempty"`
	CheckoutAt *string       `json:"checkoutAt,omitempty"`
}

// Rewarded reports whether the ledger linked a reward to this attempt.
func (a Attempt) Rewarded() bool {
	return a.RewardID != nil
}

// Hint returns the trimmed retry hint, or "".
func (a Attempt) Hint() string {
	if a.RetryHint == nil {
		return ""
	}
	return strings.TrimSpace(*a.RetryHint)
}

// CheckinTime parses the checkin timestamp.
func (a Attempt) CheckinTime() (time.Time, bool) {
	return parseOptional(a.CheckinAt)
}

// CheckoutTime parses the checkout timestamp.
func (a Attempt) CheckoutTime() (time.Time, bool) {
	return parseOptional(a.CheckoutAt)
}

// Timestamp is the checkin time, falling back to the checkout time.
func (a Attempt) Timestamp() (time.Time, bool) {
	if t, ok := a.CheckinTime(); ok {
		return t, true
	}
	return a.CheckoutTime()
}

func parseOptional(s *string) (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	return ParseTimestamp(*s)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 timestamps as well as zone-less ledger
// timestamps, which are interpreted in the local zone.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for i, layout := range timestampLayouts {
		var t time.Time
		var err error
		if i == 0 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func sortKey(a Attempt) int64 {
	if t, ok := a.Timestamp(); ok {
		return t.UnixMilli()
	}
	return 0
}

// SortLatestFirst returns a copy of attempts ordered newest first. Attempts
// without timestamps sort as the epoch; ties break on descending attempt id.
func SortLatestFirst(attempts []Attempt) []Attempt {
	sorted := slices.Clone(attempts)
	slices.SortStableFunc(sorted, func(a, b Attempt) int {
		if c := cmp.Compare(sortKey(b), sortKey(a)); c != 0 {
			return c
		}
		return cmp.Compare(b.AttemptID, a.AttemptID)
	})
	return sorted
}
