package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ent0n29/kindred/internal/audio"
)

func TestSchedulerQueuesBackToBack(t *testing.T) {
	player := &fakePlayer{}
	s := NewScheduler(player, nil)

	a := s.Schedule(bufferOf(time.Second))
	b := s.Schedule(bufferOf(500 * time.Millisecond))
	c := s.Schedule(bufferOf(200 * time.Millisecond))

	assert.Equal(t, time.Duration(0), a.StartAt)
	assert.Equal(t, time.Second, b.StartAt)
	assert.Equal(t, 1500*time.Millisecond, c.StartAt)
	assert.Equal(t, 1700*time.Millisecond, s.NextStart())
	assert.Equal(t, 3, s.Active())
}

func TestSchedulerStartsAtClockWhenBehind(t *testing.T) {
	player := &fakePlayer{}
	s := NewScheduler(player, nil)

	s.Schedule(bufferOf(100 * time.Millisecond))
	player.setNow(2 * time.Second)
	got := s.Schedule(bufferOf(100 * time.Millisecond))

	assert.Equal(t, 2*time.Second, got.StartAt)
}

func TestSchedulerFlushResetsOffset(t *testing.T) {
	player := &fakePlayer{}
	drained := 0
	s := NewScheduler(player, func() { drained++ })

	s.Schedule(bufferOf(time.Second))
	s.Schedule(bufferOf(time.Second))
	require.Equal(t, 2, s.Flush())

	assert.Zero(t, s.Active())
	assert.Zero(t, s.NextStart())
	assert.True(t, player.get(0).stopped)
	assert.True(t, player.get(1).stopped)

	next := s.Schedule(bufferOf(300 * time.Millisecond))
	assert.Equal(t, time.Duration(0), next.StartAt)
	assert.Zero(t, drained, "flush must not count as a natural drain")
}

func TestSchedulerDrainsOnceAfterLastChunk(t *testing.T) {
	player := &fakePlayer{}
	drained := 0
	s := NewScheduler(player, func() { drained++ })

	s.Schedule(bufferOf(time.Second))
	s.Schedule(bufferOf(time.Second))

	player.finish(0)
	assert.Zero(t, drained)
	player.finish(1)
	assert.Equal(t, 1, drained)

	// A late completion for an id that already left the set is ignored.
	s.ended(1)
	assert.Equal(t, 1, drained)
}

func TestSchedulerIgnoresStoppedCompletion(t *testing.T) {
	player := &fakePlayer{}
	drained := 0
	s := NewScheduler(player, func() { drained++ })

	first := s.Schedule(bufferOf(time.Second))
	s.Flush()
	s.Schedule(bufferOf(time.Second))

	s.ended(first.ID)
	assert.Equal(t, 1, s.Active())
	assert.Zero(t, drained)
}

func TestSchedulerDispatchesCompletions(t *testing.T) {
	player := &fakePlayer{}
	var queued []func()
	s := NewScheduler(player, nil)
	s.dispatch = func(fn func()) { queued = append(queued, fn) }

	s.Schedule(bufferOf(time.Second))
	player.finish(0)
	require.Len(t, queued, 1)
	assert.Equal(t, 1, s.Active(), "completion runs only when the owner drains it")

	queued[0]()
	assert.Zero(t, s.Active())
}

func TestSchedulerGaplessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		frames := rapid.SliceOfN(rapid.IntRange(1, 48000), 1, 20).Draw(t, "frames")
		player := &fakePlayer{}
		s := NewScheduler(player, nil)

		var want time.Duration
		for i, n := range frames {
			buf := audio.DecodeInboundChunk(make([]byte, n*2), audio.PlaybackSampleRate, 1)
			got := s.Schedule(buf)
			if got.StartAt != want {
				t.Fatalf("chunk %d starts at %v, want %v", i, got.StartAt, want)
			}
			want += buf.Duration()
		}
		if s.NextStart() != want {
			t.Fatalf("next start %v, want %v", s.NextStart(), want)
		}
	})
}

func TestTimerPlayerCallsOnEnded(t *testing.T) {
	p := NewTimerPlayer()
	ended := make(chan struct{})
	p.Play(bufferOf(10*time.Millisecond), p.Now(), func() { close(ended) })

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("onEnded not called")
	}
}

func TestTimerPlayerStopSuppressesOnEnded(t *testing.T) {
	p := NewTimerPlayer()
	called := make(chan struct{}, 1)
	h := p.Play(bufferOf(50*time.Millisecond), p.Now(), func() { called <- struct{}{} })
	h.Stop()

	select {
	case <-called:
		t.Fatal("onEnded called for stopped handle")
	case <-time.After(150 * time.Millisecond):
	}
}
