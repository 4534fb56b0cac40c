package domain

import "time"

const (
	// QuestionCount is the number of questions in a full run.
	QuestionCount = 60

	// InitialScore is the score a new session starts with.
	InitialScore = 1000

	// ScoreStep is added on a correct answer and subtracted on an incorrect one.
	ScoreStep = 50

	// MaxScore is the theoretical maximum score of a run.
	MaxScore = InitialScore + QuestionCount*ScoreStep

	// QuizDuration is the total time allowed for a run.
	QuizDuration = 45 * time.Minute

	// SessionRetention is how long session records are kept before the sweeper
	// may delete them.
	SessionRetention = 24 * time.Hour
)

// QuizSeconds is QuizDuration expressed in whole seconds.
const QuizSeconds = int(QuizDuration / time.Second)

// Session represents one player's quiz run.
type Session struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`

	Score           int       `json:"score"`
	CurrentQuestion int       `json:"currentQuestion"`
	StartTime       time.Time `json:"startTime"`

	// TimeRemaining is derived from StartTime on every read. The persisted
	// value is only a snapshot, never the source of truth.
	TimeRemaining int `json:"timeRemaining"`

	Active     bool   `json:"active"`
	Completed  bool   `json:"completed"`
	Eliminated bool   `json:"eliminated"`
	Grade      string `json:"grade,omitempty"`

	// Version is bumped on every write, for stores that update optimistically.
	Version int64 `json:"-"`
}

// RemainingSeconds computes the seconds left on the clock at the given instant.
func (s *Session) RemainingSeconds(now time.Time) int {
	elapsed := int(now.Sub(s.StartTime) / time.Second)
	if elapsed >= QuizSeconds {
		return 0
	}
	return QuizSeconds - elapsed
}

// Question is an entry of the question bank, including the answer key.
// The answer key never leaves the server.
type Question struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Correct int      `json:"correct"`
}

// PresentableQuestion is the client-facing shape of a question: options are
// in shuffled order and the answer key is stripped.
type PresentableQuestion struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// AnswerResult summarizes the outcome of a single answer submission.
type AnswerResult struct {
	Correct    bool
	Timeout    bool
	Completed  bool
	Eliminated bool
	Grade      string
	Session    Session
}

// LeaderboardEntry is an immutable record of one completed run.
type LeaderboardEntry struct {
	Username  string    `json:"username"`
	Score     int       `json:"score"`
	TimeUsed  int       `json:"timeUsed"`
	Grade     string    `json:"grade"`
	CreatedAt time.Time `json:"timestamp"`
}
