package domain

const (
	EventNameRunCompleted       = "run.completed"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventRunCompleted struct {
	Session Session
	Entry   LeaderboardEntry
}

func (EventRunCompleted) Name() string { return EventNameRunCompleted }

type EventLeaderboardUpdated struct {
	Entries []LeaderboardEntry
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
