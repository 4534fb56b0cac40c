// Package session owns the quiz run lifecycle: creation, the answer state
// machine, time decay and the terminal transitions.
package session

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"cyberquiz/internal/bank"
	"cyberquiz/internal/domain"
	"cyberquiz/internal/errors"
	"cyberquiz/internal/event"
	"cyberquiz/internal/grade"
	"cyberquiz/internal/leaderboard"
	"cyberquiz/internal/shuffle"
	"cyberquiz/internal/telemetry"
)

const maxUsernameLen = 15

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9 ]+$`)

// reservedWords may not appear anywhere in a username, regardless of case.
var reservedWords = []string{"admin", "root", "system", "moderator", "staff"}

type Config struct {
	Store       Store
	Bank        bank.Bank
	Leaderboard *leaderboard.Service
	EventBus    *event.Bus

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type Service struct {
	store   Store
	bank    bank.Bank
	gateway *bank.Gateway
	board   *leaderboard.Service
	eb      *event.Bus
	now     func() time.Time
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		store:   c.Store,
		bank:    c.Bank,
		gateway: bank.NewGateway(c.Bank),
		board:   c.Leaderboard,
		eb:      c.EventBus,
		now:     now,
	}
}

// Create validates the username and starts a new run.
func (s *Service) Create(ctx context.Context, username string) (*domain.Session, error) {
	name := strings.TrimSpace(username)
	if err := validateUsername(name); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(err)
	}

	ss := &domain.Session{
		SessionID:     id.String(),
		Username:      name,
		Score:         domain.InitialScore,
		StartTime:     s.now().UTC(),
		TimeRemaining: domain.QuizSeconds,
		Active:        true,
	}

	if err := s.store.Insert(ctx, ss); err != nil {
		return nil, err
	}

	telemetry.SessionsCreated.Inc()
	return ss, nil
}

func validateUsername(name string) error {
	switch {
	case name == "":
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("username required"))
	case len(name) > maxUsernameLen:
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("username must be at most %d characters", maxUsernameLen))
	case !usernamePattern.MatchString(name):
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("username may only contain letters, digits and spaces"))
	}

	lower := strings.ToLower(name)
	for _, w := range reservedWords {
		if strings.Contains(lower, w) {
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("username may not contain %q", w))
		}
	}

	return nil
}

// Get loads a session, recomputing the remaining time. A run whose clock has
// expired is transitioned to eliminated before it is returned.
func (s *Service) Get(ctx context.Context, id string) (*domain.Session, error) {
	ss, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ss.TimeRemaining = ss.RemainingSeconds(now)

	if ss.Active && ss.TimeRemaining == 0 {
		// Expire through the store so a concurrent answer submission
		// cannot race the transition.
		return s.store.Update(ctx, id, func(cur *domain.Session) error {
			cur.TimeRemaining = cur.RemainingSeconds(now)
			if cur.Active && cur.TimeRemaining == 0 {
				cur.Active = false
				cur.Eliminated = true
			}
			return nil
		})
	}

	return ss, nil
}

// Question returns the current question for the session, options in the
// session's shuffled order. Finished runs get a not-found, inactive runs a
// failed-precondition.
func (s *Service) Question(ctx context.Context, id string) (domain.PresentableQuestion, error) {
	ss, err := s.Get(ctx, id)
	if err != nil {
		return domain.PresentableQuestion{}, err
	}

	if !ss.Active {
		return domain.PresentableQuestion{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session is not active"))
	}

	return s.gateway.Presentable(ctx, ss.SessionID, ss.CurrentQuestion)
}

// SubmitAnswer evaluates one answer. The whole read-evaluate-write sequence
// runs inside the store's serialized update, so concurrent submissions for
// the same session cannot double-score or skip a terminal check.
//
// answerIndex is a position in the shuffled option order the client was
// shown; the true option index is recovered from the deterministic shuffle.
// The client is never trusted to assert correctness.
func (s *Service) SubmitAnswer(ctx context.Context, id string, questionIndex, answerIndex int) (*domain.AnswerResult, error) {
	var res domain.AnswerResult

	updated, err := s.store.Update(ctx, id, func(ss *domain.Session) error {
		res = domain.AnswerResult{}

		if !ss.Active {
			return errors.New(errors.CodeFailedPrecondition,
				errors.WithMessagef("session is not active"))
		}

		now := s.now()
		ss.TimeRemaining = ss.RemainingSeconds(now)

		// The clock is checked before the answer is looked at: an answer
		// that arrives after expiry is never scored.
		if ss.TimeRemaining == 0 {
			ss.Active = false
			ss.Eliminated = true
			res.Timeout = true
			return nil
		}

		if questionIndex != ss.CurrentQuestion {
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("question index %d does not match current question %d", questionIndex, ss.CurrentQuestion))
		}

		q, err := s.bank.Question(ctx, questionIndex)
		if err != nil {
			return err
		}

		if answerIndex < 0 || answerIndex >= len(q.Options) {
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("answer index %d out of range", answerIndex))
		}

		perm := shuffle.New(shuffle.Seed(ss.SessionID, questionIndex), len(q.Options))
		original := perm[answerIndex]

		if original == q.Correct {
			res.Correct = true
			ss.Score += domain.ScoreStep
			ss.CurrentQuestion = questionIndex + 1

			if ss.CurrentQuestion >= domain.QuestionCount {
				ss.Active = false
				ss.Completed = true
				ss.Grade = grade.Calculate(ss.Score, ss.TimeRemaining)
				res.Completed = true
				res.Grade = ss.Grade
			}
			return nil
		}

		ss.Score -= domain.ScoreStep
		if ss.Score <= 0 {
			ss.Score = 0
			ss.Active = false
			ss.Eliminated = true
			res.Eliminated = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Session = *updated
	s.countAnswer(&res)

	if res.Completed {
		if err := s.submitToLeaderboard(ctx, updated); err != nil {
			// The session is already committed as completed; a retried
			// Get sees the final state even if this response is lost.
			return nil, err
		}
	}

	return &res, nil
}

func (s *Service) submitToLeaderboard(ctx context.Context, ss *domain.Session) error {
	entry := domain.LeaderboardEntry{
		Username:  ss.Username,
		Score:     ss.Score,
		TimeUsed:  domain.QuizSeconds - ss.TimeRemaining,
		Grade:     ss.Grade,
		CreatedAt: s.now().UTC(),
	}

	if err := s.board.Submit(ctx, entry); err != nil {
		return err
	}

	telemetry.RunsCompleted.Inc()

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventRunCompleted{
			Session: *ss,
			Entry:   entry,
		})
	}

	return nil
}

func (s *Service) countAnswer(res *domain.AnswerResult) {
	switch {
	case res.Timeout:
		telemetry.AnswersEvaluated.WithLabelValues("timeout").Inc()
	case res.Correct:
		telemetry.AnswersEvaluated.WithLabelValues("correct").Inc()
	default:
		telemetry.AnswersEvaluated.WithLabelValues("incorrect").Inc()
	}
}

// Sweep deletes sessions past the retention window. Housekeeping only: the
// state machine is correct without it.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	return s.store.DeleteOlderThan(ctx, s.now().Add(-domain.SessionRetention))
}
