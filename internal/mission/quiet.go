package mission

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

var weekdayCodes = [...]string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}

// WeekdayCode returns the backend's three-letter code for d.
func WeekdayCode(d time.Weekday) string {
	return weekdayCodes[d%7]
}

// ParseWeekday parses a backend day code such as "MON".
func ParseWeekday(code string) (time.Weekday, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for i, c := range weekdayCodes {
		if c == code {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// Unconstrained reports whether neither bound of the window is configured.
func (r QuietTimeRule) Unconstrained() bool {
	return r.StartHour == nil && r.EndHour == nil
}

// Eligible reports whether now falls inside the quiet-time window. now is
// evaluated in its own location, so callers pass it already converted to the
// venue's local time. A missing start bound means 0 and a missing end bound 24.
// The day set applies even when neither bound is configured.
func (r QuietTimeRule) Eligible(now time.Time) bool {
	if len(r.Days) > 0 && !slices.Contains(r.Days, now.Weekday()) {
		return false
	}
	if r.Unconstrained() {
		return true
	}

	start, end := 0.0, 24.0
	if r.StartHour != nil {
		start = *r.StartHour
	}
	if r.EndHour != nil {
		end = *r.EndHour
	}

	hour := float64(now.Hour()) + float64(now.Minute())/60
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// Label renders the window for user-facing messages, e.g. "22:00~06:00 (SAT/SUN)".
func (r QuietTimeRule) Label() string {
	if r.Unconstrained() && len(r.Days) == 0 {
		return "any time"
	}
	start, end := 0.0, 24.0
	if r.StartHour != nil {
		start = *r.StartHour
	}
	if r.EndHour != nil {
		end = *r.EndHour
	}
	label := formatHour(start) + "~" + formatHour(end)
	if len(r.Days) > 0 {
		codes := make([]string, 0, len(r.Days))
		for _, d := range r.Days {
			codes = append(codes, WeekdayCode(d))
		}
		label += " (" + strings.Join(codes, "/") + ")"
	}
	return label
}

func formatHour(h float64) string {
	normalized := math.Mod(math.Mod(h, 24)+24, 24)
	if h == 24 {
		normalized = 24
	}
	hour := int(normalized)
	minute := int(math.Round((normalized - float64(hour)) * 60))
	if minute == 60 {
		hour, minute = hour+1, 0
	}
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
