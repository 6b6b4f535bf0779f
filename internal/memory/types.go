package memory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("memory record not found")

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TurnRecord stores a single user or assistant conversational turn.
type TurnRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Fact is a long-term memory extracted from conversation.
type Fact struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// DiaryEntry is a user-written entry with the companion's reflection on it.
type DiaryEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Content    string    `json:"content"`
	Reflection string    `json:"reflection"`
	Mood       string    `json:"mood"`
	CreatedAt  time.Time `json:"created_at"`
}

// Profile is the companion state kept per user.
type Profile struct {
	UserID      string    `json:"user_id"`
	Personality string    `json:"personality"`
	Mode        string    `json:"mode"`
	BondLevel   int       `json:"bond_level"`
	Mood        string    `json:"mood"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists conversational memory and companion state.
// List methods return records in chronological order.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	RecentContext(ctx context.Context, userID string, limit int) ([]TurnRecord, error)

	SaveFact(ctx context.Context, fact Fact) error
	Facts(ctx context.Context, userID string, limit int) ([]Fact, error)

	SaveDiary(ctx context.Context, entry DiaryEntry) error
	DiaryEntries(ctx context.Context, userID string, limit int) ([]DiaryEntry, error)

	// Profile returns ErrNotFound for users without saved state.
	Profile(ctx context.Context, userID string) (Profile, error)
	SaveProfile(ctx context.Context, profile Profile) error

	Ping(ctx context.Context) error
	Close() error
}

func tail[T any](arr []T, limit int) []T {
	if len(arr) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]T, limit)
	copy(out, arr[len(arr)-limit:])
	return out
}
