// Package memory provides in-process stores, the fallback when no durable
// backend is configured. State does not survive a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"cyberquiz/internal/domain"
	"cyberquiz/internal/errors"
)

// Store keeps sessions in a map. A per-session mutex serializes the
// read-evaluate-write sequence of Update.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*slot
	usernames map[string]string // lower(username) -> session id
}

type slot struct {
	mu      sync.Mutex
	session domain.Session

	// deleted marks a slot the sweeper removed from the maps. A caller
	// that captured the slot before the sweep must not read or write it.
	deleted bool
}

func NewStore() *Store {
	return &Store{
		sessions:  make(map[string]*slot),
		usernames: make(map[string]string),
	}
}

func (s *Store) Insert(_ context.Context, ss *domain.Session) error {
	key := strings.ToLower(ss.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usernames[key]; taken {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("username %q is already taken", ss.Username))
	}

	ss.Version = 1
	s.usernames[key] = ss.SessionID
	s.sessions[ss.SessionID] = &slot{session: *ss}
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.Session, error) {
	sl, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.deleted {
		return nil, errNotFound(id)
	}

	ss := sl.session
	return &ss, nil
}

func (s *Store) Update(_ context.Context, id string, fn func(ss *domain.Session) error) (*domain.Session, error) {
	sl, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	return s.apply(sl, id, fn)
}

func (s *Store) apply(sl *slot, id string, fn func(ss *domain.Session) error) (*domain.Session, error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	// The sweeper may have removed the slot between lookup and here.
	if sl.deleted {
		return nil, errNotFound(id)
	}

	ss := sl.session
	if err := fn(&ss); err != nil {
		return nil, err
	}

	ss.Version++
	sl.session = ss
	return &ss, nil
}

func (s *Store) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sl := range s.sessions {
		sl.mu.Lock()
		expired := sl.session.StartTime.Before(cutoff)
		if expired {
			sl.deleted = true
		}
		username := sl.session.Username
		sl.mu.Unlock()

		if expired {
			delete(s.usernames, strings.ToLower(username))
			delete(s.sessions, id)
			n++
		}
	}

	return n, nil
}

func (s *Store) lookup(id string) (*slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.sessions[id]
	if !ok {
		return nil, errNotFound(id)
	}

	return sl, nil
}

func errNotFound(id string) error {
	return errors.New(errors.CodeNotFound,
		errors.WithMessagef("session not found: %s", id))
}

// Leaderboard keeps the board as a sorted slice.
type Leaderboard struct {
	mu      sync.Mutex
	entries []domain.LeaderboardEntry
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{}
}

func (l *Leaderboard) Append(_ context.Context, e domain.LeaderboardEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	sort.SliceStable(l.entries, func(i, j int) bool {
		if l.entries[i].Score != l.entries[j].Score {
			return l.entries[i].Score > l.entries[j].Score
		}
		return l.entries[i].TimeUsed < l.entries[j].TimeUsed
	})
	return nil
}

func (l *Leaderboard) List(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.entries)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]domain.LeaderboardEntry, n)
	copy(out, l.entries[:n])
	return out, nil
}
