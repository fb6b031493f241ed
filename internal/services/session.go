package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tuliahq/tulia-backend/internal/database"
)

// Sessions live in Redis under two keys: session:<token> -> user id for
// lookups on every authenticated request, and user_session:<user id> -> token
// so a fresh login can revoke the previous one. Both expire together.
const (
	SessionDuration      = 7 * 24 * time.Hour
	SessionKeyPrefix     = "session:"
	UserSessionKeyPrefix = "user_session:"
)

func sessionKey(token string) string {
	return SessionKeyPrefix + token
}

func userSessionKey(userID string) string {
	return UserSessionKeyPrefix + userID
}

// newSessionToken returns a 32-byte random token, URL-safe base64 encoded so
// it can travel in the Authorization header as-is.
func newSessionToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// CreateSession issues a new session token for the user. A user holds at most
// one session, so any existing one is revoked first and the expiry clock
// starts over from this login.
func CreateSession(userID uuid.UUID) (string, error) {
	InvalidateUserSessions(userID)

	token, err := newSessionToken()
	if err != nil {
		return "", err
	}

	ctx := context.Background()
	if err := database.RedisClient.Set(ctx, sessionKey(token), userID.String(), SessionDuration).Err(); err != nil {
		return "", err
	}
	if err := database.RedisClient.Set(ctx, userSessionKey(userID.String()), token, SessionDuration).Err(); err != nil {
		return "", err
	}

	return token, nil
}

// ValidateSession resolves a session token to its user id. A missing or
// expired token reports ok=false without an error; only a token that maps to
// a malformed user id is an error.
func ValidateSession(token string) (uuid.UUID, bool, error) {
	if token == "" {
		return uuid.Nil, false, nil
	}

	stored, err := database.RedisClient.Get(context.Background(), sessionKey(token)).Result()
	if err != nil {
		return uuid.Nil, false, nil
	}

	userID, err := uuid.Parse(stored)
	if err != nil {
		return uuid.Nil, false, err
	}
	return userID, true, nil
}

// RefreshSession restarts the expiry window on an existing session, extending
// both the token key and the user mapping so they keep expiring together.
func RefreshSession(token string) error {
	if token == "" {
		return fmt.Errorf("session token is empty")
	}

	ctx := context.Background()
	stored, err := database.RedisClient.Get(ctx, sessionKey(token)).Result()
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(stored)
	if err != nil {
		return err
	}

	if err := database.RedisClient.Expire(ctx, sessionKey(token), SessionDuration).Err(); err != nil {
		return err
	}
	return database.RedisClient.Expire(ctx, userSessionKey(userID.String()), SessionDuration).Err()
}

// InvalidateSession logs a session out, removing the user mapping alongside
// the token key when the session still resolves.
func InvalidateSession(token string) error {
	if token == "" {
		return nil
	}

	ctx := context.Background()
	if stored, err := database.RedisClient.Get(ctx, sessionKey(token)).Result(); err == nil && stored != "" {
		database.RedisClient.Del(ctx, userSessionKey(stored))
	}
	return database.RedisClient.Del(ctx, sessionKey(token)).Err()
}

// InvalidateUserSessions revokes the user's current session, if any. Called
// on login to enforce the single-session rule and on password changes.
func InvalidateUserSessions(userID uuid.UUID) error {
	ctx := context.Background()
	if token, err := database.RedisClient.Get(ctx, userSessionKey(userID.String())).Result(); err == nil && token != "" {
		database.RedisClient.Del(ctx, sessionKey(token))
	}
	return database.RedisClient.Del(ctx, userSessionKey(userID.String())).Err()
}
