// Package bank serves the read-only question bank and the client-facing
// question gateway.
package bank

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"cyberquiz/internal/domain"
	"cyberquiz/internal/errors"
	"cyberquiz/internal/shuffle"
)

//go:embed questions.json
var embeddedQuestions []byte

// Bank is a read-only source of questions, indexed 0..Size-1.
type Bank interface {
	// Question returns the question at index, including its answer key.
	// Out-of-range indices fail with a not-found error, which callers use
	// as the "no more questions" signal.
	Question(ctx context.Context, index int) (domain.Question, error)
	Size(ctx context.Context) (int, error)
}

// StaticBank holds the embedded question set in memory.
type StaticBank struct {
	questions []domain.Question
}

// NewStaticBank loads and validates the embedded question set.
func NewStaticBank() (*StaticBank, error) {
	var questions []domain.Question
	if err := json.Unmarshal(embeddedQuestions, &questions); err != nil {
		return nil, fmt.Errorf("bank: unmarshal embedded questions: %w", err)
	}

	if err := Validate(questions); err != nil {
		return nil, fmt.Errorf("bank: %w", err)
	}

	return &StaticBank{questions: questions}, nil
}

func (b *StaticBank) Question(_ context.Context, index int) (domain.Question, error) {
	if index < 0 || index >= len(b.questions) {
		return domain.Question{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("question not found: index=%d", index))
	}

	return b.questions[index], nil
}

func (b *StaticBank) Size(_ context.Context) (int, error) {
	return len(b.questions), nil
}

// All returns the full question set, for seeding a durable backend.
func (b *StaticBank) All() []domain.Question {
	return b.questions
}

// Validate checks the structural invariants of a question set: contiguous
// ids from 0, at least two options each, answer key in range.
func Validate(questions []domain.Question) error {
	for i, q := range questions {
		if q.ID != i {
			return fmt.Errorf("question %d: id %d out of order", i, q.ID)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("question %d: needs at least 2 options, got %d", i, len(q.Options))
		}
		if q.Correct < 0 || q.Correct >= len(q.Options) {
			return fmt.Errorf("question %d: answer key %d out of range", i, q.Correct)
		}
	}

	return nil
}

// Gateway prepares questions for clients: the answer key is stripped and the
// options are reordered with the deterministic per-session shuffle, so the
// stored option order never reaches the wire.
type Gateway struct {
	bank Bank
}

func NewGateway(b Bank) *Gateway {
	return &Gateway{bank: b}
}

// Presentable returns the question at index with options shuffled for the
// given session. The same session and index always produce the same order.
func (g *Gateway) Presentable(ctx context.Context, sessionID string, index int) (domain.PresentableQuestion, error) {
	q, err := g.bank.Question(ctx, index)
	if err != nil {
		return domain.PresentableQuestion{}, err
	}

	perm := shuffle.New(shuffle.Seed(sessionID, index), len(q.Options))

	return domain.PresentableQuestion{
		ID:      q.ID,
		Text:    q.Text,
		Options: perm.Apply(q.Options),
	}, nil
}
