package memory

import (
	"context"
	"time"
)

const (
	// RoleUser marks a turn written by the Telegram user
	RoleUser = "user"
	// RoleAssistant marks a turn written by the bot
	RoleAssistant = "assistant"

	defaultHistoryLimit = 10
)

// Turn is one message in a user's chat session
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Intent    string    `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionInfo summarizes one user's stored session
type SessionInfo struct {
	UserID     string
	Turns      int
	LastActive time.Time
}

// Store persists chat sessions keyed by user ID.
// History returns turns oldest first.
type Store interface {
	Append(ctx context.Context, userID string, turns ...Turn) error
	History(ctx context.Context, userID string, limit int) ([]Turn, error)
	Clear(ctx context.Context, userID string) error
	Sessions(ctx context.Context) ([]SessionInfo, error)
	// Prune drops turns older than cutoff and returns how many were removed
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

func tail(turns []Turn, limit int) []Turn {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if len(turns) <= limit {
		return turns
	}
	return turns[len(turns)-limit:]
}
