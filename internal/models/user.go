package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account row in Postgres.
type User struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Username string `json:"username"`
	Email    string `json:"email"`

	ProfilePic   string `json:"profile_pic,omitempty"`
	IsSubscribed bool   `json:"is_subscribed"`
	IsActive     bool   `json:"is_active"`

	// Internal only - never returned in JSON
	PasswordHash string `json:"-"`
}
