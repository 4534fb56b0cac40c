package leaderboard

import (
	"context"
	"log/slog"

	"cyberquiz/internal/domain"
	"cyberquiz/internal/event"
)

// publishLimit caps how many entries ride on a leaderboard.updated event.
const publishLimit = 10

// Store persists the leaderboard. Appends must never overwrite concurrent
// appends; List returns entries ordered by score descending, ties broken by
// time used ascending.
type Store interface {
	Append(ctx context.Context, e domain.LeaderboardEntry) error
	// List returns up to limit entries in rank order; limit <= 0 means all.
	List(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

type Config struct {
	Store    Store
	EventBus *event.Bus
}

// Service ranks completed runs. Storage is unlimited; display truncation is
// the caller's choice via the List limit.
type Service struct {
	store Store
	eb    *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		store: c.Store,
		eb:    c.EventBus,
	}
}

// Submit appends a completed run to the board and announces the new ranking.
func (s *Service) Submit(ctx context.Context, e domain.LeaderboardEntry) error {
	if err := s.store.Append(ctx, e); err != nil {
		return err
	}

	if s.eb != nil {
		entries, err := s.store.List(ctx, publishLimit)
		if err != nil {
			// The append is committed; the announcement is best effort.
			slog.ErrorContext(ctx, "leaderboard: list for publish failed", "error", err)
			return nil
		}

		s.eb.Publish(ctx, domain.EventLeaderboardUpdated{Entries: entries})
	}

	return nil
}

// List returns the board in rank order, up to limit entries (<= 0 for all).
func (s *Service) List(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	return s.store.List(ctx, limit)
}
