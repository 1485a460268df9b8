// Package mission holds the board and mission model and the pure verification core:
// quiet-time windows, attempt mapping, stamp accounting and snapshot reconciliation.
// Nothing in this package performs I/O.
package mission

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/missionboard/internal/geo"
)

// Type identifies one of the five mission variants.
type Type string

const (
	TypeQuietTime    Type = "quiet_time_visit"
	TypeStay         Type = "stay_duration"
	TypeReceipt      Type = "receipt_purchase"
	TypeTreasureHunt Type = "camera_treasure_hunt"
	TypeStamp        Type = "repeat_visit_stamp"
)

// DefaultStampGoal applies when a stamp mission does not declare a goal count.
const DefaultStampGoal = 5

var ErrInvalidMissionID = errors.New("invalid mission id")

// Rule carries the fields meaningful to a single mission type. The concrete
// types below are the only implementations.
type Rule interface {
	Type() Type
	isRule()
}

// QuietTimeRule gates certification to an hour range, optionally filtered by weekday.
// EndHour < StartHour means the window crosses midnight.
type QuietTimeRule struct {
	StartHour *float64
	EndHour   *float64
	Days      []time.Weekday
}

// StayRule requires a checkin/checkout pair at least MinMinutes apart.
type StayRule struct {
	MinMinutes int
}

// ReceiptRule requires a photographed receipt for the target item.
type ReceiptRule struct {
	ItemName  string
	ItemPrice *int
}

// TreasureHuntRule requires a photo matching the guide.
type TreasureHuntRule struct {
	GuideText     string
	GuideImageURL string
}

// StampRule is a cyclic visit counter; filling GoalCount stamps grants the reward.
type StampRule struct {
	GoalCount int
}

func (QuietTimeRule) Type() Type    { return TypeQuietTime }
func (StayRule) Type() Type         { return TypeStay }
func (ReceiptRule) Type() Type      { return TypeReceipt }
func (TreasureHuntRule) Type() Type { return TypeTreasureHunt }
func (StampRule) Type() Type        { return TypeStamp }

func (QuietTimeRule) isRule()    {}
func (StayRule) isRule()         {}
func (ReceiptRule) isRule()      {}
func (TreasureHuntRule) isRule() {}
func (StampRule) isRule()        {}

// Goal returns the effective stamp goal: DefaultStampGoal when unset, never below 1.
func (r StampRule) Goal() int {
	if r.GoalCount == 0 {
		return DefaultStampGoal
	}
	return max(r.GoalCount, 1)
}

// Mission is a verifiable task exposed by a board. The server is authoritative;
// missions are never modified locally.
type Mission struct {
	ID          string
	Title       string
	Description string
	RewardCoins int
	Rule        Rule
}

// Type returns the mission variant, or "" when no rule is attached.
func (m Mission) Type() Type {
	if m.Rule == nil {
		return ""
	}
	return m.Rule.Type()
}

// RemoteID parses the mission id as the positive integer the backend expects.
func (m Mission) RemoteID() (int64, error) {
	return ParseRemoteID(m.ID)
}

// ParseRemoteID converts a string id into a positive integer id.
func ParseRemoteID(id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidMissionID
	}
	return n, nil
}

// Board is a venue exposing missions at a fixed coordinate.
type Board struct {
	ID          string         `json:"id"`
	Coordinate  geo.Coordinate `json:"coordinate"`
	Emoji       string         `json:"emoji"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Missions    []Mission      `json:"missions"`
}

// Mission looks up a mission on the board by id.
func (b Board) Mission(id string) (Mission, bool) {
	for _, m := range b.Missions {
		if m.ID == id {
			return m, true
		}
	}
	return Mission{}, false
}

type missionJSON struct {
	ID                    string   `json:"id"`
	Type                  Type     `json:"type"`
	Title                 string   `json:"title"`
	Description           string   `json:"description"`
	RewardCoins           int      `json:"rewardCoins"`
	QuietTimeStartHour    *float64 `json:"quietTimeStartHour,omitempty"`
	QuietTimeEndHour      *float64 `json:"quietTimeEndHour,omitempty"`
	QuietTimeDays         []string `json:"quietTimeDays,omitempty"`
	MinDurationMinutes    int      `json:"minDurationMinutes,omitempty"`
	ReceiptItemName       string   `json:"receiptItemName,omitempty"`
	ReceiptItemPrice      *int     `json:"receiptItemPrice,omitempty"`
	TreasureGuideText     string   `json:"treasureGuideText,omitempty"`
	TreasureGuideImageURL string   `json:"treasureGuideImageUrl,omitempty"`
	StampGoalCount        int      `json:"stampGoalCount,omitempty"`
}

// MarshalJSON flattens the rule into type-specific fields for the map UI.
func (m Mission) MarshalJSON() ([]byte, error) {
	out := missionJSON{
		ID:          m.ID,
		Type:        m.Type(),
		Title:       m.Title,
		Description: m.Description,
		RewardCoins: m.RewardCoins,
	}
	switch r := m.Rule.(type) {
	case QuietTimeRule:
		out.QuietTimeStartHour = r.StartHour
		out.QuietTimeEndHour = r.EndHour
		for _, d := range r.Days {
			out.QuietTimeDays = append(out.QuietTimeDays, WeekdayCode(d))
		}
	case StayRule:
		out.MinDurationMinutes = r.MinMinutes
	case ReceiptRule:
		out.ReceiptItemName = r.ItemName
		out.ReceiptItemPrice = r.ItemPrice
	case TreasureHuntRule:
		out.TreasureGuideText = r.GuideText
		out.TreasureGuideImageURL = r.GuideImageURL
	case StampRule:
		out.StampGoalCount = r.Goal()
	}
	return json.Marshal(out)
}
