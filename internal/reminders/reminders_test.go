package reminders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestParseWhen(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"in 10m", base.Add(10 * time.Minute)},
		{"In 2 hours", base.Add(2 * time.Hour)},
		{"in 30 seconds", base.Add(30 * time.Second)},
		{"in 1 day", base.Add(24 * time.Hour)},
		{"2026-03-14T18:30:00Z", time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)},
		{"2026-03-15 07:45", time.Date(2026, 3, 15, 7, 45, 0, 0, time.UTC)},
		{"2026-03-16", time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseWhen(base, tc.in)
		require.NoError(t, err, tc.in)
		assert.True(t, tc.want.Equal(got), "%q: got %v want %v", tc.in, got, tc.want)
	}
}

func TestParseWhenRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "tomorrow-ish", "in 0m", "in ten minutes", "2026-13-40"} {
		_, err := ParseWhen(base, in)
		assert.ErrorIs(t, err, ErrInvalidWhen, in)
	}
}

func TestParseWhenRejectsOverflowingOffsets(t *testing.T) {
	for _, in := range []string{"in 200000 days", "in 9999999999 hours", "in 99999999999999999999 seconds"} {
		_, err := ParseWhen(base, in)
		assert.ErrorIs(t, err, ErrInvalidWhen, in)
	}

	// Large offsets that fit in a time.Duration still parse.
	got, err := ParseWhen(base, "in 100000 days")
	require.NoError(t, err)
	assert.True(t, got.After(base))
}

func TestCreateValidates(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := Create(ctx, store, base, "u1", "  ", "in 5m")
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = Create(ctx, store, base, "u1", "stretch", "2020-01-01 10:00")
	assert.ErrorIs(t, err, ErrPastDue)

	_, err = Create(ctx, store, base, "u1", "stretch", "whenever")
	assert.ErrorIs(t, err, ErrInvalidWhen)

	r, err := Create(ctx, store, base, "u1", " stretch ", "in 5m")
	require.NoError(t, err)
	assert.Equal(t, "stretch", r.Text)
	assert.NotEmpty(t, r.ID)
	assert.True(t, base.Add(5*time.Minute).Equal(r.DueAt))

	list, err := store.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, r.ID, list[0].ID)
}

func TestDescribe(t *testing.T) {
	r := Reminder{Text: "call mom", DueAt: time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)}
	assert.Equal(t, "Reminder set for Sat Mar 14 18:30: call mom", Describe(r, nil))
}
