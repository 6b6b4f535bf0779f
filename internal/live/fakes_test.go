package live

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ent0n29/kindred/internal/audio"
)

type fakePlay struct {
	at      time.Duration
	dur     time.Duration
	onEnded func()
	stopped bool
}

type fakePlayer struct {
	mu    sync.Mutex
	now   time.Duration
	plays []*fakePlay
}

func (p *fakePlayer) Now() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

func (p *fakePlayer) setNow(d time.Duration) {
	p.mu.Lock()
	p.now = d
	p.mu.Unlock()
}

func (p *fakePlayer) Play(buf *audio.Buffer, at time.Duration, onEnded func()) PlaybackHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	play := &fakePlay{at: at, dur: buf.Duration(), onEnded: onEnded}
	p.plays = append(p.plays, play)
	return &fakeHandle{player: p, play: play}
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.plays)
}

func (p *fakePlayer) get(i int) fakePlay {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.plays[i]
}

// finish simulates natural completion of the i-th play.
func (p *fakePlayer) finish(i int) {
	p.mu.Lock()
	play := p.plays[i]
	stopped := play.stopped
	p.mu.Unlock()
	if !stopped {
		play.onEnded()
	}
}

type fakeHandle struct {
	player *fakePlayer
	play   *fakePlay
}

func (h *fakeHandle) Stop() {
	h.player.mu.Lock()
	h.play.stopped = true
	h.player.mu.Unlock()
}

type fakeRemote struct {
	mu        sync.Mutex
	events    chan ServerEvent
	gone      chan struct{}
	closeOnce sync.Once
	audio     []audio.WireChunk
	responses [][]ToolResponse
	closed    bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{events: make(chan ServerEvent, 16), gone: make(chan struct{})}
}

func (r *fakeRemote) SendAudio(_ context.Context, chunk audio.WireChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = append(r.audio, chunk)
	return nil
}

func (r *fakeRemote) SendToolResponses(_ context.Context, responses []ToolResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, responses)
	return nil
}

func (r *fakeRemote) Receive(ctx context.Context) (ServerEvent, error) {
	select {
	case <-ctx.Done():
		return ServerEvent{}, ctx.Err()
	case <-r.gone:
		return ServerEvent{}, io.EOF
	case ev := <-r.events:
		return ev, nil
	}
}

func (r *fakeRemote) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.hangUp()
	return nil
}

// hangUp simulates the server ending the session.
func (r *fakeRemote) hangUp() {
	r.closeOnce.Do(func() { close(r.gone) })
}

func (r *fakeRemote) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *fakeRemote) sentResponses() [][]ToolResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]ToolResponse(nil), r.responses...)
}

func (r *fakeRemote) sentAudio() []audio.WireChunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audio.WireChunk(nil), r.audio...)
}

type fakeConnector struct {
	remote *fakeRemote
	err    error
	block  bool
	cfg    RemoteConfig
}

func (c *fakeConnector) Connect(ctx context.Context, cfg RemoteConfig) (Remote, error) {
	c.cfg = cfg
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.remote, nil
}

type fakeCapture struct {
	mu       sync.Mutex
	startErr error
	onBlock  func([]float32)
	stops    int
}

func (c *fakeCapture) Start(_ context.Context, onBlock func([]float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.onBlock = onBlock
	return nil
}

func (c *fakeCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *fakeCapture) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

func (c *fakeCapture) deliver(samples []float32) {
	c.mu.Lock()
	fn := c.onBlock
	c.mu.Unlock()
	fn(samples)
}

type eventLog struct {
	mu     sync.Mutex
	events []any
}

func (l *eventLog) sink(ev any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := ev.(LevelEvent); ok {
		return
	}
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]any(nil), l.events...)
}

func (l *eventLog) transitions() []StatusEvent {
	var out []StatusEvent
	for _, ev := range l.snapshot() {
		if st, ok := ev.(StatusEvent); ok {
			out = append(out, st)
		}
	}
	return out
}

func (l *eventLog) has(match func(any) bool) bool {
	for _, ev := range l.snapshot() {
		if match(ev) {
			return true
		}
	}
	return false
}

// pcmOf returns silent PCM16 mono of the given length at the playback rate.
func pcmOf(d time.Duration) []byte {
	frames := int(d * audio.PlaybackSampleRate / time.Second)
	return make([]byte, frames*2)
}

func bufferOf(d time.Duration) *audio.Buffer {
	return audio.DecodeInboundChunk(pcmOf(d), audio.PlaybackSampleRate, 1)
}
