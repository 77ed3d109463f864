// Package conversations keeps a persistent, encrypted log of exchanges a user
// chose to save.
package conversations

import (
	"time"

	"github.com/google/uuid"
)

// Turn is one saved exchange in plaintext.
type Turn struct {
	ID        uuid.UUID `json:"id"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// sealedTurn is a Turn as stored.
type sealedTurn struct {
	ID        uuid.UUID
	Query     string
	Response  string
	CreatedAt time.Time
}

// SaveResult reports whether the user's log was created by this save or an
// existing one was appended to.
type SaveResult struct {
	UserID  uuid.UUID `json:"user_id"`
	Created bool      `json:"created"`
}
