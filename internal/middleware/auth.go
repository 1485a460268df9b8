package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/dukerupert/missionboard/internal/session"
)

// TokenSource reports the bearer token of the signed-in user.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RequireSession rejects requests with 401 unless a usable token exists.
func RequireSession(tokens TokenSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := tokens.Token(r.Context()); err != nil {
				msg := "Login required"
				if errors.Is(err, session.ErrExpired) {
					msg = "Session expired, please log in again"
				}
				writeError(w, http.StatusUnauthorized, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
