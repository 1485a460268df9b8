package participation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dukerupert/missionboard/internal/geo"
	"github.com/dukerupert/missionboard/internal/mission"
)

// AttemptAPI is the remote attempt ledger.
type AttemptAPI interface {
	AttemptFetcher
	Attempt(ctx context.Context, missionID int64, token, imageURL string) (mission.Attempt, error)
	Checkin(ctx context.Context, missionID int64, token string) (mission.Attempt, error)
	Checkout(ctx context.Context, missionID int64, token string) (mission.Attempt, error)
}

// TokenSource supplies the bearer token of the signed-in user.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// DefaultProximityMeters is the certification radius around a board.
const DefaultProximityMeters = 200

// Config tunes the orchestrator's local policy.
type Config struct {
	ProximityMeters float64
	// Location is the zone quiet-time windows are evaluated in.
	Location *time.Location
	Now      func() time.Time
}

// Outcome is the user-facing result of a successful operation.
type Outcome struct {
	Title         string                        `json:"title"`
	Message       string                        `json:"message"`
	Activity      *mission.ParticipatedActivity `json:"activity,omitempty"`
	Progress      *mission.RepeatVisitProgress  `json:"progress,omitempty"`
	CardCompleted bool                          `json:"cardCompleted,omitempty"`
}

// Orchestrator runs the certification and stay flows: local preconditions,
// one remote call, then a fold of the result into State. Every failure is a
// *Failure and leaves the snapshot unchanged, except the abandoned-stay purge.
type Orchestrator struct {
	api        AttemptAPI
	tokens     TokenSource
	state      *State
	reconciler *Reconciler
	cfg        Config
	logger     *slog.Logger
}

func NewOrchestrator(api AttemptAPI, tokens TokenSource, state *State, reconciler *Reconciler, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.ProximityMeters <= 0 {
		cfg.ProximityMeters = DefaultProximityMeters
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		api:        api,
		tokens:     tokens,
		state:      state,
		reconciler: reconciler,
		cfg:        cfg,
		logger:     logger,
	}
}

func (o *Orchestrator) now() time.Time {
	return o.cfg.Now()
}

// target is a resolved board and mission with the ledger id.
type target struct {
	board    mission.Board
	mission  mission.Mission
	remoteID int64
}

func (o *Orchestrator) resolve(boardID, missionID string, want mission.Type) (target, error) {
	b, ok := o.state.Board(boardID)
	if !ok {
		return target{}, precondition("Mission unavailable", "This board is not loaded.")
	}
	m, ok := b.Mission(missionID)
	if !ok {
		return target{}, precondition("Mission unavailable", "This mission is not offered on the board.")
	}
	if m.Type() != want {
		return target{}, precondition("Mission unavailable", "This action does not apply to the mission.")
	}
	id, err := m.RemoteID()
	if err != nil {
		f := precondition("Mission unavailable", "The mission id is not valid.")
		f.Err = err
		return target{}, f
	}
	return target{board: b, mission: m, remoteID: id}, nil
}

// near checks that coord is within the proximity radius of b.
func (o *Orchestrator) near(b mission.Board, coord *geo.Coordinate) (geo.Coordinate, error) {
	if coord == nil {
		return geo.Coordinate{}, precondition("Location required", "Turn on location to certify missions.")
	}
	d, ok := geo.Within(*coord, b.Coordinate, o.cfg.ProximityMeters)
	if !ok {
		return geo.Coordinate{}, precondition("Too far away", fmt.Sprintf(
			"You are ~%dm from %s. Move within %dm and try again.",
			int(math.Round(d)), b.Title, int(o.cfg.ProximityMeters)))
	}
	return *coord, nil
}

func (o *Orchestrator) token(ctx context.Context) (string, error) {
	token, err := o.tokens.Token(ctx)
	if err != nil || token == "" {
		return "", &Failure{Kind: Precondition, Title: "Login required", Message: "Log in to take part in missions.", Err: err}
	}
	return token, nil
}

func (o *Orchestrator) notCompleted(t target) error {
	if o.state.Snapshot().Has(t.board.ID, t.mission.ID, mission.ActivityCompleted) {
		return precondition("Already completed", "You have already certified this mission.")
	}
	return nil
}

func coinsMessage(coins int) string {
	return fmt.Sprintf("You earned %d coins.", coins)
}

// CertifyQuietTime certifies a visit inside the mission's quiet-time window.
func (o *Orchestrator) CertifyQuietTime(ctx context.Context, boardID, missionID string, coord *geo.Coordinate) (Outcome, error) {
	t, err := o.resolve(boardID, missionID, mission.TypeQuietTime)
	if err != nil {
		return Outcome{}, err
	}
	at, err := o.near(t.board, coord)
	if err != nil {
		return Outcome{}, err
	}
	rule := t.mission.Rule.(mission.QuietTimeRule)
	if !rule.Eligible(o.now().In(o.cfg.Location)) {
		return Outcome{}, precondition("Outside quiet time", "This mission can be certified "+rule.Label()+".")
	}
	if err := o.notCompleted(t); err != nil {
		return Outcome{}, err
	}

	act, err := o.attemptOnce(ctx, t, at, "", "Certification failed", "Mission certification failed.")
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Title: "Mission completed", Message: coinsMessage(act.RewardCoins), Activity: &act}, nil
}

// CertifyReceiptPurchase certifies a purchase with a photographed receipt.
// imageURL is the uploaded receipt image reference.
func (o *Orchestrator) CertifyReceiptPurchase(ctx context.Context, boardID, missionID string, coord *geo.Coordinate, imageURL string) (Outcome, error) {
	t, err := o.resolve(boardID, missionID, mission.TypeReceipt)
	if err != nil {
		return Outcome{}, err
	}
	at, err := o.near(t.board, coord)
	if err != nil {
		return Outcome{}, err
	}
	rule := t.mission.Rule.(mission.ReceiptRule)
	if rule.ItemName == "" {
		return Outcome{}, precondition("No target item", "The store has not registered the item to purchase yet.")
	}
	if imageURL == "" {
		return Outcome{}, precondition("Photo required", "Attach a photo of your receipt.")
	}
	if err := o.notCompleted(t); err != nil {
		return Outcome{}, err
	}

	act, err := o.attemptOnce(ctx, t, at, imageURL, "Purchase not certified", "Receipt verification failed.")
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Title:    "Purchase certified",
		Message:  fmt.Sprintf("Your %s purchase was confirmed. %s", rule.ItemName, coinsMessage(act.RewardCoins)),
		Activity: &act,
	}, nil
}

// CertifyTreasureHunt certifies a photo matching the treasure hunt guide.
func (o *Orchestrator) CertifyTreasureHunt(ctx context.Context, boardID, missionID string, coord *geo.Coordinate, imageURL string) (Outcome, error) {
	t, err := o.resolve(boardID, missionID, mission.TypeTreasureHunt)
	if err != nil {
		return Outcome{}, err
	}
	at, err := o.near(t.board, coord)
	if err != nil {
		return Outcome{}, err
	}
	if t.mission.Rule.(mission.TreasureHuntRule).GuideText == "" {
		return Outcome{}, precondition("No guide", "The treasure hunt guide has not been registered yet.")
	}
	if imageURL == "" {
		return Outcome{}, precondition("Photo required", "Attach the photo you took.")
	}
	if err := o.notCompleted(t); err != nil {
		return Outcome{}, err
	}

	act, err := o.attemptOnce(ctx, t, at, imageURL, "Treasure hunt not certified", "Image verification failed.")
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Title: "Treasure found", Message: coinsMessage(act.RewardCoins), Activity: &act}, nil
}

// attemptOnce records a single-shot attempt and folds a SUCCESS into state.
func (o *Orchestrator) attemptOnce(ctx context.Context, t target, at geo.Coordinate, imageURL, failTitle, fallback string) (mission.ParticipatedActivity, error) {
	token, err := o.token(ctx)
	if err != nil {
		return mission.ParticipatedActivity{}, err
	}

	a, err := o.api.Attempt(ctx, t.remoteID, token, imageURL)
	if err != nil {
		o.logger.Warn("attempt failed", "mission_id", t.mission.ID, "error", err)
		return mission.ParticipatedActivity{}, transport(failTitle, err)
	}
	o.logger.Info("attempt recorded", "mission_id", t.mission.ID, "attempt_id", a.AttemptID, "status", a.Status)
	if a.Status != mission.StatusSuccess {
		return mission.ParticipatedActivity{}, rejected(failTitle, a, fallback)
	}

	act, ok := mission.MapAttempt(t.board, t.mission, a, mission.MapOptions{Coordinate: &at, ImageURL: imageURL, Now: o.now()})
	if !ok {
		return mission.ParticipatedActivity{}, &Failure{Kind: Rejected, Title: failTitle, Message: "The certification response could not be processed."}
	}
	o.state.Update(func(s mission.Snapshot) mission.Snapshot {
		return mission.ApplyActivity(s, act)
	})
	return act, nil
}

// CertifyRepeatVisit adds a stamp. It may be called on any number of days; the
// ledger decides when a card completes. Progress is recomputed from the
// mission's history, or estimated locally when that fetch fails.
func (o *Orchestrator) CertifyRepeatVisit(ctx context.Context, boardID, missionID string, coord *geo.Coordinate) (Outcome, error) {
	t, err := o.resolve(boardID, missionID, mission.TypeStamp)
	if err != nil {
		return Outcome{}, err
	}
	at, err := o.near(t.board, coord)
	if err != nil {
		return Outcome{}, err
	}
	token, err := o.token(ctx)
	if err != nil {
		return Outcome{}, err
	}

	const failTitle = "Stamp not applied"
	a, err := o.api.Attempt(ctx, t.remoteID, token, "")
	if err != nil {
		o.logger.Warn("stamp attempt failed", "mission_id", t.mission.ID, "error", err)
		return Outcome{}, transport(failTitle, err)
	}
	o.logger.Info("stamp attempt recorded", "mission_id", t.mission.ID, "attempt_id", a.AttemptID, "status", a.Status)
	if a.Status != mission.StatusPending && a.Status != mission.StatusSuccess {
		return Outcome{}, rejected(failTitle, a, "The stamp could not be applied.")
	}

	prev := o.state.Snapshot().StampProgressFor(t.board.ID, t.mission.ID)
	act, mapped := mission.MapAttempt(t.board, t.mission, a, mission.MapOptions{Coordinate: &at, Now: o.now()})

	var next mission.Snapshot
	fresh, err := o.reconciler.ReconcileMission(ctx, t.board, t.mission, token, o.state.Snapshot(), a)
	if err == nil {
		next = o.state.Update(func(s mission.Snapshot) mission.Snapshot {
			return mission.MergeMission(s, t.board.ID, t.mission.ID, fresh)
		})
	} else {
		o.logger.Warn("stamp history unavailable, estimating progress", "mission_id", t.mission.ID, "error", err)
		now := o.now()
		next = o.state.Update(func(s mission.Snapshot) mission.Snapshot {
			s = mission.SetProgress(s, s.StampProgressFor(t.board.ID, t.mission.ID).Advance(t.mission, a, now))
			if mapped {
				s = mission.ApplyActivity(s, act)
			}
			return s
		})
	}

	progress := next.StampProgressFor(t.board.ID, t.mission.ID)
	out := Outcome{Progress: &progress}
	if mapped {
		if stored, ok := next.Activity(act.ID); ok {
			act = stored
		}
		out.Activity = &act
	}

	if progress.CompletedRounds > prev.CompletedRounds {
		coins := t.mission.RewardCoins
		if mapped {
			coins = act.RewardCoins
		}
		out.Title = "Stamp card completed"
		out.CardCompleted = true
		out.Message = "You completed the stamp card."
		if coins > 0 {
			out.Message = coinsMessage(coins)
		}
		return out, nil
	}

	goal := t.mission.Rule.(mission.StampRule).Goal()
	out.Title = "Stamp applied"
	out.Message = fmt.Sprintf("%d/%d stamps collected.", progress.CurrentStampCount, goal)
	return out, nil
}

// StartStay checks in to a stay mission.
func (o *Orchestrator) StartStay(ctx context.Context, boardID, missionID string, coord *geo.Coordinate) (Outcome, error) {
	t, err := o.resolve(boardID, missionID, mission.TypeStay)
	if err != nil {
		return Outcome{}, err
	}
	at, err := o.near(t.board, coord)
	if err != nil {
		return Outcome{}, err
	}
	snap := o.state.Snapshot()
	if snap.Has(t.board.ID, t.mission.ID, mission.ActivityStarted) {
		return Outcome{}, precondition("Already in progress", "This stay has already started. Finish it to complete the mission.")
	}
	if snap.Has(t.board.ID, t.mission.ID, mission.ActivityCompleted) {
		return Outcome{}, precondition("Already completed", "You have already received the reward for this mission.")
	}
	token, err := o.token(ctx)
	if err != nil {
		return Outcome{}, err
	}

	const failTitle = "Could not start stay"
	a, err := o.api.Checkin(ctx, t.remoteID, token)
	if err != nil {
		o.logger.Warn("checkin failed", "mission_id", t.mission.ID, "error", err)
		return Outcome{}, transport(failTitle, err)
	}
	o.logger.Info("checkin recorded", "mission_id", t.mission.ID, "attempt_id", a.AttemptID, "status", a.Status)
	if a.Status != mission.StatusPending && a.Status != mission.StatusSuccess {
		return Outcome{}, rejected(failTitle, a, "Stay check-in failed.")
	}

	act, ok := mission.MapAttempt(t.board, t.mission, a, mission.MapOptions{Coordinate: &at, Now: o.now()})
	if !ok {
		return Outcome{}, &Failure{Kind: Rejected, Title: failTitle, Message: "The check-in response could not be processed."}
	}
	o.state.Update(func(s mission.Snapshot) mission.Snapshot {
		return mission.ApplyActivity(s, act)
	})

	if act.Status == mission.ActivityCompleted {
		return Outcome{Title: "Mission completed", Message: coinsMessage(act.RewardCoins), Activity: &act}, nil
	}
	return Outcome{
		Title:    "Stay started",
		Message:  fmt.Sprintf("Stay at least %d minutes, then finish the stay to earn the reward.", act.RequiredMinutes),
		Activity: &act,
	}, nil
}

// CompleteStay checks out of the stay recorded as activityID. The ledger's
// history is consulted first: an existing SUCCESS is folded in, a missing
// PENDING attempt purges the local record, and a stay shorter than required is
// refused without calling checkout.
func (o *Orchestrator) CompleteStay(ctx context.Context, activityID string, coord *geo.Coordinate) (Outcome, error) {
	started, ok := o.state.Snapshot().Activity(activityID)
	if !ok {
		return Outcome{}, precondition("Stay not found", "No stay in progress was found.")
	}
	if started.Status == mission.ActivityCompleted {
		return Outcome{}, precondition("Already completed", "This activity has already been rewarded.")
	}
	t, err := o.resolve(started.BoardID, started.MissionID, mission.TypeStay)
	if err != nil {
		return Outcome{}, err
	}
	at, err := o.near(t.board, coord)
	if err != nil {
		return Outcome{}, err
	}
	token, err := o.token(ctx)
	if err != nil {
		return Outcome{}, err
	}

	const failTitle = "Could not finish stay"
	attempts, err := o.api.MyAttempts(ctx, t.remoteID, token)
	if err != nil {
		o.logger.Warn("stay history failed", "mission_id", t.mission.ID, "error", err)
		return Outcome{}, transport(failTitle, err)
	}
	ordered := mission.SortLatestFirst(attempts)

	for _, a := range ordered {
		if a.Status != mission.StatusSuccess {
			continue
		}
		act, _ := mission.MapAttempt(t.board, t.mission, a, mission.MapOptions{Coordinate: &at, Now: o.now()})
		o.state.Update(func(s mission.Snapshot) mission.Snapshot {
			return mission.ApplyActivity(s, act)
		})
		return Outcome{Title: "Already completed", Message: "You have already received the reward for this stay.", Activity: &act}, nil
	}

	var pending mission.Attempt
	var checkin time.Time
	found := false
	for _, a := range ordered {
		if a.Status != mission.StatusPending {
			continue
		}
		if ts, ok := a.CheckinTime(); ok {
			pending, checkin, found = a, ts, true
			break
		}
	}
	if !found {
		o.logger.Info("purging abandoned stay", "activity_id", started.ID, "mission_id", t.mission.ID)
		o.state.Update(func(s mission.Snapshot) mission.Snapshot {
			return mission.RemoveActivity(s, started.ID)
		})
		return Outcome{}, &Failure{Kind: Inconsistent, Title: failTitle, Message: "No stay is in progress. Please start again."}
	}

	required := started.RequiredMinutes
	if required <= 0 {
		required = t.mission.Rule.(mission.StayRule).MinMinutes
	}
	if required > 0 {
		elapsed := max(o.now().Sub(checkin), 0)
		remaining := time.Duration(required)*time.Minute - elapsed
		if remaining > 0 {
			return Outcome{}, precondition("Stay too short", fmt.Sprintf(
				"You have stayed %d minutes. At least %d minutes are required. Try again in about %s.",
				int(elapsed/time.Minute), required, FormatRemaining(remaining)))
		}
	}

	a, err := o.api.Checkout(ctx, t.remoteID, token)
	if err != nil {
		o.logger.Warn("checkout failed", "mission_id", t.mission.ID, "attempt_id", pending.AttemptID, "error", err)
		return Outcome{}, transport(failTitle, err)
	}
	o.logger.Info("checkout recorded", "mission_id", t.mission.ID, "attempt_id", a.AttemptID, "status", a.Status)
	if a.Status != mission.StatusSuccess {
		return Outcome{}, rejected(failTitle, a, "Stay check-out failed.")
	}

	act, ok := mission.MapAttempt(t.board, t.mission, a, mission.MapOptions{Coordinate: &at, Now: o.now()})
	if !ok {
		return Outcome{}, &Failure{Kind: Rejected, Title: failTitle, Message: "The check-out response could not be processed."}
	}
	o.state.Update(func(s mission.Snapshot) mission.Snapshot {
		return mission.ApplyActivity(s, act)
	})
	return Outcome{Title: "Mission completed", Message: coinsMessage(act.RewardCoins), Activity: &act}, nil
}

// FormatRemaining renders a wait as "Xm Ys", dropping a zero part.
func FormatRemaining(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	secs = max(secs, 0)
	m, s := secs/60, secs%60
	switch {
	case m <= 0:
		return fmt.Sprintf("%ds", s)
	case s == 0:
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
