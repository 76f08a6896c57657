// Package session holds the durable session identity and the guard that
// admits or terminates inbound messages before any pipeline work starts.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session ties a client to one conversation across reconnects. It lives in
// the durable session store and outlives the process; the only mutation the
// core performs is the activity touch on each admitted message.
type Session struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// New issues a fresh session.
func New() *Session {
	now := time.Now()
	return &Session{
		ID:             uuid.New().String(),
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Touch records client activity.
func (s *Session) Touch(now time.Time) {
	s.LastActivityAt = now
}

// Store is the durable session key-value collaborator.
//
// Read returns (nil, nil) when the id is unknown; callers treat absence the
// same as a missing session. Implementations must be safe for concurrent
// use.
type Store interface {
	Read(ctx context.Context, id string) (*Session, error)
	Write(ctx context.Context, s *Session) error
	Invalidate(ctx context.Context, id string) error
}
