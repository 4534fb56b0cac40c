// Package postgres provides the durable stores. The answer state machine's
// read-evaluate-write runs inside a transaction holding a row lock, which is
// what makes concurrent submissions for one session safe across instances.
package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cyberquiz/internal/domain"
	"cyberquiz/internal/errors"
)

const (
	opTimeout = 5 * time.Second

	codeUniqueViolation = "23505"
)

// Migrate creates the schema. Idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id       uuid PRIMARY KEY,
	username         text NOT NULL,
	score            int NOT NULL,
	current_question int NOT NULL,
	start_time       timestamptz NOT NULL,
	active           bool NOT NULL,
	completed        bool NOT NULL,
	eliminated       bool NOT NULL,
	grade            text NOT NULL DEFAULT '',
	version          bigint NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS sessions_username_key ON sessions (lower(username));
CREATE INDEX IF NOT EXISTS sessions_start_time_idx ON sessions (start_time);

CREATE TABLE IF NOT EXISTS leaderboard (
	id         bigserial PRIMARY KEY,
	username   text NOT NULL,
	score      int NOT NULL,
	time_used  int NOT NULL,
	grade      text NOT NULL,
	created_at timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS leaderboard_rank_idx ON leaderboard (score DESC, time_used ASC);

CREATE TABLE IF NOT EXISTS questions (
	id      int PRIMARY KEY,
	text    text NOT NULL,
	options jsonb NOT NULL,
	correct int NOT NULL
);`

	if _, err := db.Exec(ctx, ddl); err != nil {
		return errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	return nil
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, ss *domain.Session) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	const stmt = `
INSERT INTO sessions (session_id, username, score, current_question, start_time, active, completed, eliminated, grade, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1);`

	ss.Version = 1
	_, err := s.db.Exec(ctx, stmt,
		ss.SessionID, ss.Username, ss.Score, ss.CurrentQuestion, ss.StartTime,
		ss.Active, ss.Completed, ss.Eliminated, ss.Grade)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("username %q is already taken", ss.Username),
			errors.WithCause(err))
	}
	if err != nil {
		return errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	const stmt = `
SELECT session_id, username, score, current_question, start_time, active, completed, eliminated, grade, version
FROM sessions WHERE session_id = $1;`

	return scanSession(s.db.QueryRow(ctx, stmt, id), id)
}

func (s *Store) Update(ctx context.Context, id string, fn func(ss *domain.Session) error) (ss *domain.Session, err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const sel = `
SELECT session_id, username, score, current_question, start_time, active, completed, eliminated, grade, version
FROM sessions WHERE session_id = $1 FOR UPDATE;`

	ss, err = scanSession(tx.QueryRow(ctx, sel, id), id)
	if err != nil {
		return nil, err
	}

	if err = fn(ss); err != nil {
		return nil, err
	}
	ss.Version++

	const upd = `
UPDATE sessions
SET score = $2, current_question = $3, active = $4, completed = $5, eliminated = $6, grade = $7, version = $8
WHERE session_id = $1;`

	_, err = tx.Exec(ctx, upd,
		ss.SessionID, ss.Score, ss.CurrentQuestion, ss.Active, ss.Completed, ss.Eliminated, ss.Grade, ss.Version)
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	return ss, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE start_time < $1;`, cutoff)
	if err != nil {
		return 0, errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.Row, id string) (*domain.Session, error) {
	var ss domain.Session
	err := row.Scan(&ss.SessionID, &ss.Username, &ss.Score, &ss.CurrentQuestion, &ss.StartTime,
		&ss.Active, &ss.Completed, &ss.Eliminated, &ss.Grade, &ss.Version)

	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", id))
	}
	if err != nil {
		// A backend failure must never masquerade as not-found.
		return nil, errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	ss.StartTime = ss.StartTime.UTC()
	return &ss, nil
}

// Leaderboard is the append-only board table.
type Leaderboard struct {
	db *pgxpool.Pool
}

func NewLeaderboard(db *pgxpool.Pool) *Leaderboard {
	return &Leaderboard{db: db}
}

func (l *Leaderboard) Append(ctx context.Context, e domain.LeaderboardEntry) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	const stmt = `
INSERT INTO leaderboard (username, score, time_used, grade, created_at)
VALUES ($1, $2, $3, $4, $5);`

	if _, err := l.db.Exec(ctx, stmt, e.Username, e.Score, e.TimeUsed, e.Grade, e.CreatedAt); err != nil {
		return errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	return nil
}

func (l *Leaderboard) List(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	const stmt = `
SELECT username, score, time_used, grade, created_at
FROM leaderboard
ORDER BY score DESC, time_used ASC, id ASC
LIMIT $1;`

	lim := any(limit)
	if limit <= 0 {
		lim = nil // LIMIT NULL means no limit
	}

	rows, err := l.db.Query(ctx, stmt, lim)
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	entries, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.LeaderboardEntry, error) {
		var e domain.LeaderboardEntry
		if err := r.Scan(&e.Username, &e.Score, &e.TimeUsed, &e.Grade, &e.CreatedAt); err != nil {
			return domain.LeaderboardEntry{}, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		return e, nil
	})
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	return entries, nil
}
