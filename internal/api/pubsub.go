package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cyberquiz/internal/domain"
)

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	LeaderboardEntry struct {
		Username  string    `json:"username"`
		Score     int       `json:"score"`
		TimeUsed  int       `json:"timeUsed"`
		Grade     string    `json:"grade"`
		Timestamp time.Time `json:"timestamp"`
	}
)

// publishLeaderboardUpdated pushes the refreshed top of the board to the
// shared channel, so presentational clients can live-update without polling.
func (a *API) publishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	entries := make([]LeaderboardEntry, 0, len(e.Entries))
	for _, entry := range e.Entries {
		entries = append(entries, LeaderboardEntry{
			Username:  entry.Username,
			Score:     entry.Score,
			TimeUsed:  entry.TimeUsed,
			Grade:     entry.Grade,
			Timestamp: entry.CreatedAt,
		})
	}

	n := Notification{
		Event: e.Name(),
		Data:  entries,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", e.Name(), err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:leaderboard", a.prefix), b).Err()
}
