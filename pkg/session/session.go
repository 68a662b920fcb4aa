// Package session stores conversation history. Sessions hold ordered
// turns; backends exist for SQLite (single node), Redis (shared, with
// TTL expiry) and memory (tests).
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultRecentTurns is how much history the orchestrator pulls per query.
const DefaultRecentTurns = 10

// Turn is one message in a conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a conversation with its metadata. Turns are ordered oldest
// first.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Turns     []*Turn   `json:"turns,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the session persistence interface.
type Store interface {
	// Create starts a session. An empty sessionID generates a UUID.
	Create(ctx context.Context, userID, sessionID string) (*Session, error)

	// Get fetches a session without its turns.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// AppendTurn adds a turn to an existing session.
	AppendTurn(ctx context.Context, sessionID string, turn *Turn) error

	// Recent returns the last n turns in chronological order.
	Recent(ctx context.Context, sessionID string, n int) ([]*Turn, error)

	// Delete removes a session and its turns. Unknown ids are not an error.
	Delete(ctx context.Context, sessionID string) error

	Close() error
}

// NewSessionID returns a fresh session id.
func NewSessionID() string {
	return uuid.NewString()
}
