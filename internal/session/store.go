package session

import (
	"context"
	"time"

	"cyberquiz/internal/domain"
)

// Store persists session records. Implementations must make Insert's
// username-uniqueness check atomic with the insert, and must serialize
// Update calls for the same session id so the read-evaluate-write sequence
// never loses an update.
type Store interface {
	// Insert persists a new session. Fails with an already-exists error
	// when the username is taken (compared case-insensitively).
	Insert(ctx context.Context, s *domain.Session) error

	// Get loads a session by id, failing with not-found when absent.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// Update loads the session, applies fn to it, and persists the result
	// as one serialized step. An error from fn aborts the write and is
	// returned unchanged. The persisted session is returned.
	Update(ctx context.Context, id string, fn func(s *domain.Session) error) (*domain.Session, error)

	// DeleteOlderThan removes sessions started before cutoff, returning
	// how many were removed. Backends with native expiry may make this a
	// no-op.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
