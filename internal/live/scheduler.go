package live

import (
	"sync"
	"time"

	"github.com/ent0n29/kindred/internal/audio"
)

// PlaybackHandle is an active scheduled buffer.
type PlaybackHandle interface {
	Stop()
}

// Player renders buffers against an output clock.
type Player interface {
	// Now is the current position of the output clock.
	Now() time.Duration
	// Play starts buf at the given clock offset and calls onEnded when it
	// finishes naturally. onEnded is not called for stopped handles.
	Play(buf *audio.Buffer, at time.Duration, onEnded func()) PlaybackHandle
}

// Scheduled describes where a chunk landed on the output clock.
type Scheduled struct {
	ID       uint64
	StartAt  time.Duration
	Duration time.Duration
}

// Scheduler sequences decoded chunks back to back on a Player's clock.
// It is not safe for concurrent use; completions are routed through dispatch
// so they run on the owner's goroutine.
type Scheduler struct {
	player    Player
	next      time.Duration
	active    map[uint64]PlaybackHandle
	seq       uint64
	onDrained func()
	dispatch  func(func())
}

func NewScheduler(player Player, onDrained func()) *Scheduler {
	return &Scheduler{
		player:    player,
		active:    make(map[uint64]PlaybackHandle),
		onDrained: onDrained,
		dispatch:  func(fn func()) { fn() },
	}
}

// Schedule queues buf to start at max(next offset, clock now).
func (s *Scheduler) Schedule(buf *audio.Buffer) Scheduled {
	startAt := s.next
	if now := s.player.Now(); now > startAt {
		startAt = now
	}
	s.seq++
	id := s.seq
	dur := buf.Duration()
	s.active[id] = s.player.Play(buf, startAt, func() {
		s.dispatch(func() { s.ended(id) })
	})
	s.next = startAt + dur
	return Scheduled{ID: id, StartAt: startAt, Duration: dur}
}

// Flush stops every active chunk and rewinds the next offset to zero so
// the following chunk starts on the current clock. It returns the number of
// chunks stopped.
func (s *Scheduler) Flush() int {
	n := len(s.active)
	for id, h := range s.active {
		h.Stop()
		delete(s.active, id)
	}
	s.next = 0
	return n
}

// Active is the number of chunks scheduled or playing.
func (s *Scheduler) Active() int { return len(s.active) }

// NextStart is the offset the next chunk would be queued behind.
func (s *Scheduler) NextStart() time.Duration { return s.next }

func (s *Scheduler) ended(id uint64) {
	if _, ok := s.active[id]; !ok {
		return
	}
	delete(s.active, id)
	if len(s.active) == 0 && s.onDrained != nil {
		s.onDrained()
	}
}

// TimerPlayer is a wall-clock output clock. It does not render sound; it
// tracks when each chunk would finish on a client that honors the start
// offsets it is given.
type TimerPlayer struct {
	origin time.Time
	now    func() time.Time
}

func NewTimerPlayer() *TimerPlayer {
	return &TimerPlayer{origin: time.Now(), now: time.Now}
}

func (p *TimerPlayer) Now() time.Duration {
	return p.now().Sub(p.origin)
}

func (p *TimerPlayer) Play(buf *audio.Buffer, at time.Duration, onEnded func()) PlaybackHandle {
	h := &timerHandle{}
	delay := at + buf.Duration() - p.Now()
	if delay < 0 {
		delay = 0
	}
	h.timer = time.AfterFunc(delay, func() {
		h.mu.Lock()
		stopped := h.stopped
		h.mu.Unlock()
		if !stopped && onEnded != nil {
			onEnded()
		}
	})
	return h
}

type timerHandle struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (h *timerHandle) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.timer.Stop()
}
