package reminders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu  sync.Mutex
	got []Reminder
}

func (n *recordingNotifier) NotifyReminder(_ context.Context, r Reminder) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, r)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.got)
}

func TestSchedulerTickDeliversDue(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.Add(ctx, Reminder{ID: "1", UserID: "u1", Text: "tea", DueAt: base}))
	require.NoError(t, store.Add(ctx, Reminder{ID: "2", UserID: "u1", Text: "later", DueAt: base.Add(time.Hour)}))

	n := &recordingNotifier{}
	s := NewScheduler(store, n, zap.NewNop())
	s.now = func() time.Time { return base.Add(time.Minute) }

	assert.Equal(t, 1, s.Tick(ctx))
	require.Equal(t, 1, n.count())
	assert.Equal(t, "tea", n.got[0].Text)
	assert.Zero(t, s.Tick(ctx))
}

func TestSchedulerStartPolls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewInMemoryStore()
	require.NoError(t, store.Add(ctx, Reminder{ID: "1", UserID: "u1", Text: "now", DueAt: time.Now().Add(-time.Second)}))

	n := &recordingNotifier{}
	NewScheduler(store, n, nil).Start(ctx, 10*time.Millisecond)

	require.Eventually(t, func() bool { return n.count() == 1 }, 2*time.Second, 5*time.Millisecond)
}
