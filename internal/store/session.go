package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/missionboard/internal/model"
)

// SessionStore keeps the single persisted sign-in row.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Save inserts or replaces the session row.
func (s *SessionStore) Save(sess model.Session) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, username, user_id, sealed_token, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			user_id = excluded.user_id,
			sealed_token = excluded.sealed_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		sess.Username, sess.UserID, sess.SealedToken, nullMillis(sess.ExpiresAt), sess.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get returns the stored session, or nil when there is none.
func (s *SessionStore) Get() (*model.Session, error) {
	var sess model.Session
	var expiresAt sql.NullInt64
	var updatedAt int64
	err := s.db.QueryRow(
		`SELECT username, user_id, sealed_token, expires_at, updated_at FROM sessions WHERE id = 1`,
	).Scan(&sess.Username, &sess.UserID, &sess.SealedToken, &expiresAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if expiresAt.Valid {
		t := fromMillis(expiresAt.Int64)
		sess.ExpiresAt = &t
	}
	sess.UpdatedAt = fromMillis(updatedAt)
	return &sess, nil
}

// Delete removes the stored session.
func (s *SessionStore) Delete() error {
	if _, err := s.db.Exec(`DELETE FROM sessions`); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
