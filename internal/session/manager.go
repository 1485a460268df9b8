// Package session holds the signed-in user's bearer token. The token is issued
// by the remote backend and treated as opaque, except that its JWT expiry is
// honored when present.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dukerupert/missionboard/internal/missionapi"
	"github.com/dukerupert/missionboard/internal/model"
)

var (
	ErrNotLoggedIn = errors.New("not logged in")
	ErrExpired     = errors.New("session expired")
)

// Authenticator exchanges credentials for a token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (missionapi.LoginResult, error)
	Signup(ctx context.Context, username, password string) (missionapi.LoginResult, error)
}

// Persister stores the single sealed session row.
type Persister interface {
	Save(s model.Session) error
	Get() (*model.Session, error)
	Delete() error
}

// Info describes the current sign-in without exposing the token.
type Info struct {
	LoggedIn  bool       `json:"loggedIn"`
	Username  string     `json:"username,omitempty"`
	UserID    int64      `json:"userId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type current struct {
	token     string
	username  string
	userID    int64
	expiresAt *time.Time
}

// Manager owns the signed-in session. When a passphrase is configured the
// token survives restarts, encrypted at rest; otherwise it lives in memory only.
type Manager struct {
	mu         sync.RWMutex
	auth       Authenticator
	store      Persister
	passphrase string
	cur        *current
	now        func() time.Time
	logger     *slog.Logger
}

func NewManager(auth Authenticator, store Persister, passphrase string, logger *slog.Logger) *Manager {
	return &Manager{
		auth:       auth,
		store:      store,
		passphrase: passphrase,
		now:        time.Now,
		logger:     logger,
	}
}

// Persistent reports whether tokens are written to the store.
func (m *Manager) Persistent() bool {
	return m.store != nil && m.passphrase != ""
}

// Login signs in and replaces any current session.
func (m *Manager) Login(ctx context.Context, username, password string) (Info, error) {
	res, err := m.auth.Login(ctx, username, password)
	if err != nil {
		return Info{}, err
	}
	info, err := m.begin(res, username)
	if err != nil {
		return Info{}, err
	}
	m.logger.Info("logged in", "user_id", info.UserID)
	return info, nil
}

// Signup creates a USER account and signs in with the token it returns.
func (m *Manager) Signup(ctx context.Context, username, password string) (Info, error) {
	res, err := m.auth.Signup(ctx, username, password)
	if err != nil {
		return Info{}, err
	}
	info, err := m.begin(res, username)
	if err != nil {
		return Info{}, err
	}
	m.logger.Info("signed up", "user_id", info.UserID)
	return info, nil
}

func (m *Manager) begin(res missionapi.LoginResult, username string) (Info, error) {
	c := &current{
		token:     res.Token,
		username:  strings.TrimSpace(username),
		userID:    res.UserID,
		expiresAt: tokenExpiry(res.Token),
	}

	if m.Persistent() {
		sealed, err := seal(m.passphrase, []byte(c.token))
		if err != nil {
			return Info{}, fmt.Errorf("seal token: %w", err)
		}
		if err := m.store.Save(model.Session{
			Username:    c.username,
			UserID:      c.userID,
			SealedToken: sealed,
			ExpiresAt:   c.expiresAt,
			UpdatedAt:   m.now(),
		}); err != nil {
			return Info{}, fmt.Errorf("save session: %w", err)
		}
	}

	m.mu.Lock()
	m.cur = c
	m.mu.Unlock()
	return c.info(), nil
}

// Logout forgets the current session.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.cur = nil
	m.mu.Unlock()

	if m.Persistent() {
		if err := m.store.Delete(); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	m.logger.Info("logged out")
	return nil
}

// Restore loads a persisted session. A missing, undecryptable or expired row
// leaves the manager signed out.
func (m *Manager) Restore(ctx context.Context) error {
	if !m.Persistent() {
		return nil
	}
	row, err := m.store.Get()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if row == nil {
		return nil
	}
	if row.ExpiresAt != nil && !m.now().Before(*row.ExpiresAt) {
		m.logger.Info("stored session expired")
		return m.store.Delete()
	}

	token, err := open(m.passphrase, row.SealedToken)
	if err != nil {
		m.logger.Warn("stored session unreadable", "error", err)
		return m.store.Delete()
	}

	m.mu.Lock()
	m.cur = &current{
		token:     string(token),
		username:  row.Username,
		userID:    row.UserID,
		expiresAt: row.ExpiresAt,
	}
	m.mu.Unlock()
	m.logger.Info("session restored", "user_id", row.UserID)
	return nil
}

// Token returns the bearer token for remote calls.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	c := m.cur
	m.mu.RUnlock()

	if c == nil {
		return "", ErrNotLoggedIn
	}
	if c.expiresAt != nil && !m.now().Before(*c.expiresAt) {
		return "", ErrExpired
	}
	return c.token, nil
}

// Info reports the current sign-in.
func (m *Manager) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return Info{}
	}
	return m.cur.info()
}

func (c *current) info() Info {
	return Info{LoggedIn: true, Username: c.username, UserID: c.userID, ExpiresAt: c.expiresAt}
}

// tokenExpiry reads the exp claim of a JWT without verifying it; the backend
// verifies the signature. Opaque tokens have no expiry.
func tokenExpiry(token string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}
