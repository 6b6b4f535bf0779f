// Package reminders stores user reminders and delivers them when due.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidWhen is returned when a due time cannot be parsed.
	ErrInvalidWhen = errors.New("invalid reminder time")
	// ErrPastDue is returned for due times that have already passed.
	ErrPastDue = errors.New("reminder time is in the past")
	// ErrEmptyText is returned for reminders without text.
	ErrEmptyText = errors.New("reminder text is required")
)

type Reminder struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	DueAt     time.Time `json:"due_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists pending reminders.
type Store interface {
	Add(ctx context.Context, r Reminder) error
	// List returns a user's pending reminders ordered by due time.
	List(ctx context.Context, userID string) ([]Reminder, error)
	// TakeDue removes and returns every reminder due at or before now. A
	// reminder is returned by at most one caller.
	TakeDue(ctx context.Context, now time.Time) ([]Reminder, error)
	Close() error
}

var relativePattern = regexp.MustCompile(`^in\s+(\d+)\s*(s|sec|secs|seconds?|m|min|mins|minutes?|h|hr|hrs|hours?|d|days?)$`)

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseWhen accepts RFC3339, "2006-01-02 15:04" style local timestamps in
// now's location, and relative forms like "in 10m" or "in 2 hours".
func ParseWhen(now time.Time, raw string) (time.Time, error) {
	in := strings.ToLower(strings.TrimSpace(raw))
	if in == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidWhen)
	}
	if m := relativePattern.FindStringSubmatch(in); m != nil {
		unit := unitOf(m[2])
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n <= 0 || n > math.MaxInt64/int64(unit) {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidWhen, raw)
		}
		return now.Add(time.Duration(n) * unit), nil
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(raw), now.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidWhen, raw)
}

func unitOf(u string) time.Duration {
	switch u[0] {
	case 's':
		return time.Second
	case 'h':
		return time.Hour
	case 'd':
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Create validates and stores a reminder for userID.
func Create(ctx context.Context, store Store, now time.Time, userID, text, when string) (Reminder, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reminder{}, ErrEmptyText
	}
	due, err := ParseWhen(now, when)
	if err != nil {
		return Reminder{}, err
	}
	if !due.After(now) {
		return Reminder{}, ErrPastDue
	}
	r := Reminder{
		ID:        uuid.NewString(),
		UserID:    userID,
		Text:      text,
		DueAt:     due.UTC(),
		CreatedAt: now.UTC(),
	}
	if err := store.Add(ctx, r); err != nil {
		return Reminder{}, fmt.Errorf("store reminder: %w", err)
	}
	return r, nil
}
