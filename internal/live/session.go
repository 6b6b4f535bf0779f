package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/kindred/internal/audio"
)

var (
	// ErrSessionOpen is returned by Open while a session is already open.
	ErrSessionOpen = errors.New("live session already open")
	// ErrCapturePermission is returned when microphone access is refused.
	ErrCapturePermission = errors.New("microphone permission denied")
)

const (
	defaultActionStatusTTL = 3 * time.Second
	defaultMeterInterval   = 50 * time.Millisecond

	permissionMessage = "Microphone access was denied. Allow microphone access and try again."
	connectMessage    = "Could not reach the voice service. Please try again."
	remoteMessage     = "The voice connection ended."
)

// Context is the companion state a session is opened with. It is passed in
// explicitly rather than read from shared state.
type Context struct {
	Personality string
	Mode        string
	BondLevel   int
	Mood        string
	Memories    []string
}

// Config configures one Open call.
type Config struct {
	SessionID   string
	UserID      string
	Voice       string
	Instruction string
	Context     Context
	Tools       *Dispatcher
}

// Deps are the collaborators of a Session.
type Deps struct {
	Connector Connector
	Capture   Capture
	// Player defaults to a TimerPlayer created per Open.
	Player          Player
	Sink            Sink
	Logger          *zap.Logger
	Recorder        *audio.Recorder
	ActionStatusTTL time.Duration
	MeterInterval   time.Duration
}

// Session owns at most one open realtime session at a time.
type Session struct {
	deps Deps
	log  *zap.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	remote Remote
	runCtx context.Context

	sendMu sync.Mutex
	level  atomic.Uint64

	// Owned by the loop goroutine once Open returns.
	post       func(func())
	sched      *Scheduler
	transcript TranscriptAggregator
	tools      *Dispatcher
	actionSeq  int
	audioSeq   int
}

func NewSession(deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Sink == nil {
		deps.Sink = func(any) {}
	}
	if deps.ActionStatusTTL <= 0 {
		deps.ActionStatusTTL = defaultActionStatusTTL
	}
	if deps.MeterInterval <= 0 {
		deps.MeterInterval = defaultMeterInterval
	}
	return &Session{
		deps:  deps,
		log:   deps.Logger.With(zap.String("component", "live_session")),
		state: StateIdle,
	}
}

// State reports the current session phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the currently open session has fully torn down. It
// returns nil while idle.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Open starts capture and connects the remote session concurrently. It fails
// with ErrSessionOpen if a session is already open or opening.
func (s *Session) Open(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return ErrSessionOpen
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.runCtx = runCtx
	s.mu.Unlock()

	tasks := make(chan func(), 64)
	s.post = func(fn func()) {
		select {
		case tasks <- fn:
		case <-done:
		}
	}
	s.tools = cfg.Tools
	s.transcript = TranscriptAggregator{}
	s.actionSeq = 0
	s.audioSeq = 0
	player := s.deps.Player
	if player == nil {
		player = NewTimerPlayer()
	}
	s.sched = NewScheduler(player, s.onPlaybackDrained)
	s.sched.dispatch = s.post

	log := s.log.With(zap.String("session_id", cfg.SessionID), zap.String("user_id", cfg.UserID))

	var (
		remote         Remote
		captureStarted bool
	)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		if err := s.deps.Capture.Start(gctx, s.onCaptureBlock); err != nil {
			return fmt.Errorf("start capture: %w", err)
		}
		captureStarted = true
		return nil
	})
	g.Go(func() error {
		r, err := s.deps.Connector.Connect(gctx, RemoteConfig{
			SystemInstruction: cfg.Instruction,
			Voice:             cfg.Voice,
			Tools:             cfg.Tools.Specs(),
		})
		if err != nil {
			return fmt.Errorf("connect remote: %w", err)
		}
		remote = r
		return nil
	})
	err := g.Wait()
	if err == nil && runCtx.Err() != nil {
		err = runCtx.Err()
	}
	if err != nil {
		if captureStarted {
			_ = s.deps.Capture.Stop()
		}
		if remote != nil {
			_ = remote.Close()
		}
		cancel()
		s.reportOpenError(err)
		log.Warn("live session open failed", zap.Error(err))
		s.mu.Lock()
		s.cancel = nil
		s.done = nil
		s.runCtx = nil
		s.mu.Unlock()
		close(done)
		return err
	}

	s.mu.Lock()
	s.remote = remote
	s.mu.Unlock()
	s.setState(StateListening)
	log.Info("live session opened",
		zap.String("personality", cfg.Context.Personality),
		zap.String("mode", cfg.Context.Mode),
		zap.Int("bond_level", cfg.Context.BondLevel),
	)

	inbound := make(chan ServerEvent, 32)
	recvErr := make(chan error, 1)
	go s.receive(runCtx, remote, inbound, recvErr)
	go s.run(runCtx, log, tasks, inbound, recvErr, done)
	return nil
}

// Close tears the session down and waits for teardown to finish. It is safe
// to call repeatedly, concurrently, and while Open is still in progress.
func (s *Session) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (s *Session) reportOpenError(err error) {
	switch {
	case errors.Is(err, ErrCapturePermission):
		s.deps.Sink(ErrorEvent{Code: "mic_permission_denied", Message: permissionMessage, Err: err})
	case errors.Is(err, context.Canceled):
	default:
		s.deps.Sink(ErrorEvent{Code: "connect_failed", Message: connectMessage, Err: err})
	}
}

func (s *Session) receive(ctx context.Context, remote Remote, inbound chan<- ServerEvent, recvErr chan<- error) {
	for {
		ev, err := remote.Receive(ctx)
		if err != nil {
			recvErr <- err
			return
		}
		select {
		case inbound <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) run(ctx context.Context, log *zap.Logger, tasks <-chan func(), inbound <-chan ServerEvent, recvErr <-chan error, done chan struct{}) {
	defer close(done)
	meter := time.NewTicker(s.deps.MeterInterval)
	defer meter.Stop()

	for {
		select {
		case <-ctx.Done():
			s.teardown(log, "closed")
			return
		case fn := <-tasks:
			fn()
		case ev := <-inbound:
			s.handleServerEvent(ctx, log, ev)
		case err := <-recvErr:
			if ctx.Err() != nil {
				s.teardown(log, "closed")
				return
			}
			if errors.Is(err, io.EOF) {
				log.Info("remote session closed")
			} else {
				log.Warn("remote session failed", zap.Error(err))
			}
			s.deps.Sink(ErrorEvent{Code: "remote_closed", Message: remoteMessage, Err: err})
			s.teardown(log, "remote_closed")
			return
		case <-meter.C:
			s.deps.Sink(LevelEvent{Level: math.Float64frombits(s.level.Load())})
		}
	}
}

func (s *Session) teardown(log *zap.Logger, reason string) {
	if err := s.deps.Capture.Stop(); err != nil {
		log.Warn("capture stop failed", zap.Error(err))
	}
	if n := s.sched.Flush(); n > 0 {
		log.Debug("dropped scheduled playback", zap.Int("chunks", n))
	}

	s.mu.Lock()
	remote, cancel := s.remote, s.cancel
	s.remote = nil
	s.mu.Unlock()

	if remote != nil {
		s.sendMu.Lock()
		err := remote.Close()
		s.sendMu.Unlock()
		if err != nil {
			log.Warn("remote close failed", zap.Error(err))
		}
	}
	if err := s.deps.Recorder.Close(); err != nil {
		log.Warn("recording write failed", zap.Error(err))
	}
	if cancel != nil {
		cancel()
	}
	s.level.Store(0)
	s.setState(StateIdle)

	s.mu.Lock()
	s.cancel = nil
	s.done = nil
	s.runCtx = nil
	s.mu.Unlock()
	log.Info("live session closed", zap.String("reason", reason))
}

func (s *Session) handleServerEvent(ctx context.Context, log *zap.Logger, ev ServerEvent) {
	if ev.Interrupted {
		dropped := s.sched.Flush()
		s.deps.Sink(InterruptedEvent{Dropped: dropped})
		s.setState(StateListening)
	}

	if len(ev.ToolCalls) > 0 {
		s.handleToolCalls(ctx, log, ev.ToolCalls)
	}

	if ev.InputTranscript != "" {
		snap := s.transcript.AddUser(ev.InputTranscript)
		s.deps.Sink(TranscriptEvent{Transcript: snap})
		if s.State() == StateListening {
			s.setState(StateThinking)
		}
	}
	if ev.OutputTranscript != "" {
		snap := s.transcript.AddAssistant(ev.OutputTranscript)
		s.deps.Sink(TranscriptEvent{Transcript: snap})
	}

	for _, pcm := range ev.Audio {
		if len(pcm) == 0 {
			continue
		}
		buf := audio.DecodeInboundChunk(pcm, audio.PlaybackSampleRate, 1)
		if buf.Frames() == 0 {
			continue
		}
		placed := s.sched.Schedule(buf)
		s.deps.Recorder.Write(pcm)
		s.audioSeq++
		s.deps.Sink(AudioEvent{
			Seq:        s.audioSeq,
			PCM:        pcm,
			SampleRate: audio.PlaybackSampleRate,
			StartAt:    placed.StartAt,
			Duration:   placed.Duration,
		})
		s.setState(StateSpeaking)
	}

	if ev.TurnComplete {
		s.deps.Sink(TurnEvent{Transcript: s.transcript.Complete()})
		if s.sched.Active() == 0 {
			s.setState(StateListening)
		}
	}
}

func (s *Session) handleToolCalls(ctx context.Context, log *zap.Logger, calls []ToolCall) {
	responses := make([]ToolResponse, 0, len(calls))
	for _, call := range calls {
		resp, status := s.tools.Dispatch(call)
		responses = append(responses, resp)
		s.deps.Sink(ToolEvent{Call: call, Response: resp})
		if status != "" {
			s.showActionStatus(status)
		}
		log.Debug("tool call handled", zap.String("tool", call.Name), zap.String("result", resp.Result))
	}

	s.mu.Lock()
	remote := s.remote
	s.mu.Unlock()
	if remote == nil {
		return
	}
	s.sendMu.Lock()
	err := remote.SendToolResponses(ctx, responses)
	s.sendMu.Unlock()
	if err != nil {
		log.Warn("send tool responses failed", zap.Error(err), zap.Int("count", len(responses)))
	}
}

func (s *Session) showActionStatus(text string) {
	s.actionSeq++
	seq := s.actionSeq
	s.deps.Sink(ActionStatusEvent{Text: text})
	post := s.post
	time.AfterFunc(s.deps.ActionStatusTTL, func() {
		post(func() {
			if s.actionSeq == seq {
				s.deps.Sink(ActionStatusEvent{})
			}
		})
	})
}

func (s *Session) onPlaybackDrained() {
	if s.State() == StateSpeaking {
		s.setState(StateListening)
	}
}

// onCaptureBlock runs on the capture goroutine. It must stay non-blocking
// relative to the capture cadence: encode, send, return.
func (s *Session) onCaptureBlock(samples []float32) {
	s.level.Store(math.Float64bits(audio.InputLevel(samples)))

	s.mu.Lock()
	remote, ctx := s.remote, s.runCtx
	s.mu.Unlock()
	if remote == nil || ctx == nil {
		return
	}
	chunk := audio.EncodeOutboundChunk(samples)
	s.sendMu.Lock()
	err := remote.SendAudio(ctx, chunk)
	s.sendMu.Unlock()
	if err != nil && ctx.Err() == nil {
		s.log.Debug("send audio failed", zap.Error(err))
	}
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		s.deps.Sink(StatusEvent{From: prev, To: next})
	}
}
