package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"cyberquiz/internal/domain"
	"cyberquiz/internal/errors"
)

// PostgresBank loads the question set from the questions table and caches it
// in process with a TTL. Concurrent cache misses are collapsed into a single
// query.
type PostgresBank struct {
	db    *pgxpool.Pool
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	mu        sync.RWMutex
	questions []domain.Question
	expiresAt time.Time
}

func NewPostgresBank(db *pgxpool.Pool, ttl time.Duration) *PostgresBank {
	return &PostgresBank{
		db:    db,
		ttl:   ttl,
		clock: time.Now,
	}
}

func (b *PostgresBank) Question(ctx context.Context, index int) (domain.Question, error) {
	questions, err := b.load(ctx)
	if err != nil {
		return domain.Question{}, err
	}

	if index < 0 || index >= len(questions) {
		return domain.Question{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("question not found: index=%d", index))
	}

	return questions[index], nil
}

func (b *PostgresBank) Size(ctx context.Context) (int, error) {
	questions, err := b.load(ctx)
	if err != nil {
		return 0, err
	}

	return len(questions), nil
}

func (b *PostgresBank) load(ctx context.Context) ([]domain.Question, error) {
	now := b.clock()

	b.mu.RLock()
	if b.questions != nil && b.expiresAt.After(now) {
		qs := b.questions
		b.mu.RUnlock()
		return qs, nil
	}
	b.mu.RUnlock()

	result, err, _ := b.sf.Do("questions", func() (any, error) {
		b.mu.RLock()
		if b.questions != nil && b.expiresAt.After(b.clock()) {
			qs := b.questions
			b.mu.RUnlock()
			return qs, nil
		}
		b.mu.RUnlock()

		qs, err := b.query(ctx)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.questions = qs
		b.expiresAt = b.clock().Add(b.ttl)
		b.mu.Unlock()

		return qs, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]domain.Question), nil
}

func (b *PostgresBank) query(ctx context.Context) ([]domain.Question, error) {
	const stmt = `SELECT id, text, options, correct FROM questions ORDER BY id;`

	rows, err := b.db.Query(ctx, stmt)
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	questions, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var (
			q       domain.Question
			rawOpts []byte
		)
		if err := r.Scan(&q.ID, &q.Text, &rawOpts, &q.Correct); err != nil {
			return domain.Question{}, err
		}
		if err := json.Unmarshal(rawOpts, &q.Options); err != nil {
			return domain.Question{}, fmt.Errorf("question %d: options: %w", q.ID, err)
		}
		return q, nil
	})
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	if err := Validate(questions); err != nil {
		return nil, errors.Internal(err)
	}

	return questions, nil
}

// SeedQuestions upserts the given question set into the questions table.
func SeedQuestions(ctx context.Context, db *pgxpool.Pool, questions []domain.Question) error {
	const stmt = `
INSERT INTO questions (id, text, options, correct)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text, options = EXCLUDED.options, correct = EXCLUDED.correct;`

	for _, q := range questions {
		opts, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("marshal options for question %d: %w", q.ID, err)
		}

		if _, err := db.Exec(ctx, stmt, q.ID, q.Text, opts, q.Correct); err != nil {
			return fmt.Errorf("seed question %d: %w", q.ID, err)
		}
	}

	return nil
}
