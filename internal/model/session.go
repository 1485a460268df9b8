package model

import "time"

// Session is the persisted sign-in. SealedToken holds the bearer token
// encrypted with the configured passphrase.
type Session struct {
	Username    string     `json:"username"`
	UserID      int64      `json:"user_id"`
	SealedToken []byte     `json:"-"`
	ExpiresAt   *time.Time `json:"expires_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
