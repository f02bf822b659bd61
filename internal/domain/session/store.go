package session

import (
	"context"
	"errors"
	"time"
)

// Store provides session persistence. Defined in the domain to avoid a
// circular import between this package and its adapters, following the
// same split the rest of this module uses for its outbound ports.
type Store interface {
	// Create stores a new session. Returns ErrSessionExists if id is
	// already present.
	Create(ctx context.Context, s *Session) error
	// Get retrieves a session by ID. Returns ErrSessionNotFound if the
	// session doesn't exist.
	Get(ctx context.Context, id string) (*Session, error)
	// Touch updates LastActivity for id to now, returning ErrSessionNotFound
	// if it doesn't exist.
	Touch(ctx context.Context, id string, now time.Time) error
	// Delete removes a session. A no-op if it doesn't exist.
	Delete(ctx context.Context, id string) error
	// Sweep removes every session for which isExpired returns true and
	// reports how many were evicted.
	Sweep(ctx context.Context, isExpired func(*Session) bool) int
}

var ErrSessionNotFound = errors.New("session: not found")
var ErrSessionExists = errors.New("session: already exists")
