package missionapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/missionboard/internal/geo"
	"github.com/dukerupert/missionboard/internal/mission"
)

const (
	storesFallback        = "could not load the store list"
	storeMissionsFallback = "could not load store missions"

	defaultReceiptItem   = "designated item"
	defaultTreasureGuide = "Photograph the same scene as the answer image to certify."
	defaultBoardBlurb    = "No store description yet."
)

// Backend mission types.
const (
	backendTimeWindow = "TIME_WINDOW"
	backendDwell      = "DWELL"
	backendReceipt    = "RECEIPT"
	backendInventory  = "INVENTORY"
	backendStamp      = "STAMP"
)

// Store is a venue as listed by the catalog.
type Store struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Address       string  `json:"address"`
	DetailAddress *string `json:"detailAddress"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	ImageURL      *string `json:"imageUrl"`
}

// MissionDefinition is a catalog mission. ConfigJSON is a JSON document whose
// shape depends on Type.
type MissionDefinition struct {
	ID           int64  `json:"id"`
	StoreID      int64  `json:"storeId"`
	Type         string `json:"type"`
	ConfigJSON   string `json:"configJson"`
	RewardAmount int    `json:"rewardAmount"`
	IsActive     *bool  `json:"isActive"`
	Active       *bool  `json:"active"`
}

// Enabled reports whether the definition is live. Missing flags count as active.
func (d MissionDefinition) Enabled() bool {
	if d.IsActive != nil && !*d.IsActive {
		return false
	}
	if d.Active != nil && !*d.Active {
		return false
	}
	return true
}

// ListStores returns every store in the catalog.
func (c *Client) ListStores(ctx context.Context) ([]Store, error) {
	var stores []Store
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/api/stores",
		fallback: storesFallback,
	}, &stores)
	if err != nil {
		return nil, err
	}
	return stores, nil
}

// ListStoreMissions returns the mission definitions of one store.
func (c *Client) ListStoreMissions(ctx context.Context, storeID int64) ([]MissionDefinition, error) {
	var defs []MissionDefinition
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     fmt.Sprintf("/api/stores/%d/missions", storeID),
		fallback: storeMissionsFallback,
	}, &defs)
	if err != nil {
		return nil, err
	}
	return defs, nil
}

// FetchBoards loads the catalog and builds one board per store, in catalog
// order. A store whose missions cannot be fetched is logged and gets an empty
// mission list.
func (c *Client) FetchBoards(ctx context.Context) ([]mission.Board, error) {
	stores, err := c.ListStores(ctx)
	if err != nil {
		return nil, err
	}

	defs := make([][]MissionDefinition, len(stores))
	var g errgroup.Group
	g.SetLimit(c.cfg.CatalogConcurrency)
	for i, s := range stores {
		g.Go(func() error {
			d, err := c.ListStoreMissions(ctx, s.ID)
			if err != nil {
				c.cfg.Logger.Warn("store missions unavailable", "store_id", s.ID, "error", err)
				return nil
			}
			defs[i] = d
			return nil
		})
	}
	g.Wait()

	boards := make([]mission.Board, 0, len(stores))
	for i, s := range stores {
		boards = append(boards, BoardFromStore(s, defs[i]))
	}
	return boards, nil
}

// BoardFromStore maps a store and its definitions onto a board. Inactive and
// unknown definitions are skipped.
func BoardFromStore(s Store, defs []MissionDefinition) mission.Board {
	b := mission.Board{
		ID:          strconv.FormatInt(s.ID, 10),
		Coordinate:  geo.Coordinate{Latitude: s.Lat, Longitude: s.Lng},
		Emoji:       StoreEmoji(s.Name),
		Title:       s.Name,
		Description: storeDescription(s),
		Missions:    make([]mission.Mission, 0, len(defs)),
	}
	for _, d := range defs {
		if !d.Enabled() {
			continue
		}
		if m, ok := MissionFromDefinition(d); ok {
			b.Missions = append(b.Missions, m)
		}
	}
	return b
}

func storeDescription(s Store) string {
	desc := strings.TrimSpace(s.Address)
	if s.DetailAddress != nil {
		if detail := strings.TrimSpace(*s.DetailAddress); detail != "" {
			desc = strings.TrimSpace(desc + " " + detail)
		}
	}
	if desc == "" {
		return defaultBoardBlurb
	}
	return desc
}

// MissionFromDefinition converts a catalog definition into a mission with a
// typed rule. Missing or malformed config fields fall back to defaults.
func MissionFromDefinition(d MissionDefinition) (mission.Mission, bool) {
	cfg := parseConfig(d.ConfigJSON)
	m := mission.Mission{
		ID:          strconv.FormatInt(d.ID, 10),
		RewardCoins: max(d.RewardAmount, 0),
	}

	switch d.Type {
	case backendTimeWindow:
		start := cfg.number("startHour", 14)
		end := cfg.number("endHour", 16)
		rule := mission.QuietTimeRule{StartHour: &start, EndHour: &end, Days: cfg.days("days")}
		m.Title = "Quiet hour visit"
		m.Description = "Visit " + rule.Label() + " to certify."
		m.Rule = rule
	case backendDwell:
		minutes := int(math.Round(cfg.number("durationMinutes", 20)))
		m.Title = fmt.Sprintf("Stay %d+ minutes", minutes)
		m.Description = "Check in and check out to certify how long you stayed."
		m.Rule = mission.StayRule{MinMinutes: minutes}
	case backendReceipt:
		rule := mission.ReceiptRule{ItemName: cfg.text("targetProductKey", defaultReceiptItem)}
		label := rule.ItemName
		if p, ok := cfg.optionalNumber("targetProductPrice"); ok {
			price := int(math.Round(p))
			rule.ItemPrice = &price
			label += fmt.Sprintf(" (%d won)", price)
		}
		m.Title = "Receipt purchase"
		m.Description = "Photograph a receipt for " + label + " to certify."
		m.Rule = rule
	case backendInventory:
		m.Title = "Camera treasure hunt"
		m.Description = defaultTreasureGuide
		m.Rule = mission.TreasureHuntRule{
			GuideText:     defaultTreasureGuide,
			GuideImageURL: cfg.text("answerImageUrl", ""),
		}
	case backendStamp:
		rule := mission.StampRule{GoalCount: int(math.Round(cfg.number("requiredCount", mission.DefaultStampGoal)))}
		m.Title = fmt.Sprintf("Repeat visit stamps (%d)", rule.Goal())
		m.Description = "Certify one visit a day to collect stamps. Fill the card to earn the reward."
		m.Rule = rule
	default:
		return mission.Mission{}, false
	}
	return m, true
}

type config map[string]any

func parseConfig(raw string) config {
	var c config
	if err := json.Unmarshal([]byte(raw), &c); err != nil || c == nil {
		return config{}
	}
	return c
}

func (c config) optionalNumber(key string) (float64, bool) {
	v, ok := c[key].(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func (c config) number(key string, def float64) float64 {
	if v, ok := c.optionalNumber(key); ok {
		return v
	}
	return def
}

func (c config) text(key, def string) string {
	if v, ok := c[key].(string); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func (c config) days(key string) []time.Weekday {
	raw, ok := c[key].([]any)
	if !ok {
		return nil
	}
	var days []time.Weekday
	for _, v := range raw {
		code, ok := v.(string)
		if !ok {
			continue
		}
		if d, ok := mission.ParseWeekday(code); ok {
			days = append(days, d)
		}
	}
	return days
}

var emojiKeywords = []struct {
	emoji    string
	keywords []string
	words    []string
}{
	{emoji: "☕", keywords: []string{"카페", "커피", "cafe", "café", "coffee"}},
	{emoji: "🏪", keywords: []string{"마트", "mart", "편의점"}, words: []string{"cu", "gs", "gs25"}},
	{emoji: "🥐", keywords: []string{"bakery", "베이커리", "빵"}},
	{emoji: "🍜", keywords: []string{"noodle", "ramen", "국수", "라멘"}},
	{emoji: "🍽️", keywords: []string{"식당", "치킨", "restaurant", "kitchen", "chicken"}},
}

// StoreEmoji picks a marker emoji from keywords in the store name.
func StoreEmoji(name string) string {
	lower := strings.ToLower(name)
	fields := strings.Fields(lower)
	for _, e := range emojiKeywords {
		for _, k := range e.keywords {
			if strings.Contains(lower, k) {
				return e.emoji
			}
		}
		for _, w := range e.words {
			for _, f := range fields {
				if f == w {
					return e.emoji
				}
			}
		}
	}
	return "📍"
}
