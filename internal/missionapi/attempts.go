package missionapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dukerupert/missionboard/internal/mission"
)

const (
	attemptFallback  = "mission certification request failed"
	checkinFallback  = "stay check-in failed"
	checkoutFallback = "stay check-out failed"
	historyFallback  = "could not load mission attempt history"
)

type attemptRequest struct {
	ImageURL string `json:"imageUrl,omitempty"`
}

func attemptsPath(missionID int64, suffix string) string {
	return fmt.Sprintf("/api/missions/%d/attempts%s", missionID, suffix)
}

// Attempt records a generic attempt. imageURL is the captured image reference
// for photo missions and may be empty.
func (c *Client) Attempt(ctx context.Context, missionID int64, token, imageURL string) (mission.Attempt, error) {
	var a mission.Attempt
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     attemptsPath(missionID, ""),
		token:    token,
		body:     attemptRequest{ImageURL: imageURL},
		fallback: attemptFallback,
	}, &a)
	return a, err
}

// Checkin starts a stay. The ledger answers PENDING, or SUCCESS when the stay
// needs no duration.
func (c *Client) Checkin(ctx context.Context, missionID int64, token string) (mission.Attempt, error) {
	var a mission.Attempt
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     attemptsPath(missionID, "/checkin"),
		token:    token,
		fallback: checkinFallback,
	}, &a)
	return a, err
}

// Checkout completes the pending stay.
func (c *Client) Checkout(ctx context.Context, missionID int64, token string) (mission.Attempt, error) {
	var a mission.Attempt
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     attemptsPath(missionID, "/checkout"),
		token:    token,
		fallback: checkoutFallback,
	}, &a)
	return a, err
}

// MyAttempts returns the caller's full attempt history for a mission.
func (c *Client) MyAttempts(ctx context.Context, missionID int64, token string) ([]mission.Attempt, error) {
	var attempts []mission.Attempt
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     attemptsPath(missionID, "/me"),
		token:    token,
		fallback: historyFallback,
	}, &attempts)
	if err != nil {
		return nil, err
	}
	return attempts, nil
}
