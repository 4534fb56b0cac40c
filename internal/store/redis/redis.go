// Package redis provides Redis-backed stores. Sessions live as JSON values
// with a TTL covering the retention window; the board is a sorted set.
package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cyberquiz/internal/domain"
	"cyberquiz/internal/errors"
)

// maxUpdateRetries bounds the optimistic WATCH loop of Update.
const maxUpdateRetries = 5

type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		ttl:    domain.SessionRetention,
	}
}

func (s *Store) Insert(ctx context.Context, ss *domain.Session) error {
	// The username key is claimed first; SETNX makes check-and-claim one
	// atomic step. It carries the same TTL as the session so names free
	// up when their run is retired.
	ok, err := s.client.SetNX(ctx, s.usernameKey(ss.Username), ss.SessionID, s.ttl).Result()
	if err != nil {
		return errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}
	if !ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("username %q is already taken", ss.Username))
	}

	ss.Version = 1
	if err := s.set(ctx, ss); err != nil {
		return err
	}

	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", id))
	}
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	return unmarshalSession(raw)
}

// Update applies fn under optimistic concurrency control: the session key is
// watched, and the transaction is retried when another writer gets there
// first. fn must therefore be safe to re-run.
func (s *Store) Update(ctx context.Context, id string, fn func(ss *domain.Session) error) (*domain.Session, error) {
	key := s.sessionKey(id)

	var updated *domain.Session

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if stderrors.Is(err, redis.Nil) {
			return errors.New(errors.CodeNotFound,
				errors.WithMessagef("session not found: %s", id))
		}
		if err != nil {
			return err
		}

		ss, err := unmarshalSession(raw)
		if err != nil {
			return err
		}

		if err := fn(ss); err != nil {
			return err
		}
		ss.Version++

		data, err := marshalSession(ss)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		updated = ss
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			var e *errors.Error
			if stderrors.As(err, &e) {
				return nil, err
			}
			return nil, errors.New(errors.CodeUnavailable, errors.WithCause(err))
		}

		return updated, nil
	}

	return nil, errors.New(errors.CodeUnavailable,
		errors.WithMessagef("session update contended: %s", id))
}

// DeleteOlderThan is a no-op: the per-key TTL already enforces retention.
func (s *Store) DeleteOlderThan(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *Store) set(ctx context.Context, ss *domain.Session) error {
	data, err := marshalSession(ss)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.sessionKey(ss.SessionID), data, s.ttl).Err(); err != nil {
		return errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	return nil
}

func (s *Store) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, id)
}

func (s *Store) usernameKey(username string) string {
	return fmt.Sprintf("%s:username:%s", s.prefix, strings.ToLower(username))
}

// storedSession carries Version, which the wire shape of domain.Session hides.
type storedSession struct {
	domain.Session
	Version int64 `json:"version"`
}

func marshalSession(ss *domain.Session) ([]byte, error) {
	data, err := json.Marshal(storedSession{Session: *ss, Version: ss.Version})
	if err != nil {
		return nil, errors.Internal(err)
	}
	return data, nil
}

func unmarshalSession(raw []byte) (*domain.Session, error) {
	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, errors.Internal(err)
	}

	ss := stored.Session
	ss.Version = stored.Version
	return &ss, nil
}

// Leaderboard ranks completed runs in a sorted set. The member is the entry
// JSON; the rank score folds the tiebreak in: higher quiz score first, then
// less time used.
type Leaderboard struct {
	client redis.UniversalClient
	prefix string
}

func NewLeaderboard(client redis.UniversalClient, prefix string) *Leaderboard {
	return &Leaderboard{client: client, prefix: prefix}
}

func (l *Leaderboard) Append(ctx context.Context, e domain.LeaderboardEntry) error {
	member, err := json.Marshal(e)
	if err != nil {
		return errors.Internal(err)
	}

	err = l.client.ZAdd(ctx, l.key(), redis.Z{
		Score:  rankScore(e),
		Member: string(member),
	}).Err()
	if err != nil {
		return errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	return nil
}

func (l *Leaderboard) List(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	members, err := l.client.ZRevRange(ctx, l.key(), 0, stop).Result()
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(members))
	for _, m := range members {
		var e domain.LeaderboardEntry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			return nil, errors.Internal(err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

func (l *Leaderboard) key() string {
	return fmt.Sprintf("%s:leaderboard", l.prefix)
}

// rankScore orders by quiz score descending, then time used ascending.
// Scores are at most 4000 and time used at most 2700, so the two components
// never interfere.
func rankScore(e domain.LeaderboardEntry) float64 {
	return float64(e.Score)*10000 + float64(domain.QuizSeconds-e.TimeUsed)
}
