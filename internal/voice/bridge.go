package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/kindred/internal/audio"
	"github.com/ent0n29/kindred/internal/companion"
	"github.com/ent0n29/kindred/internal/live"
	"github.com/ent0n29/kindred/internal/observability"
	"github.com/ent0n29/kindred/internal/protocol"
	"github.com/ent0n29/kindred/internal/reliability"
	"github.com/ent0n29/kindred/internal/reminders"
	"github.com/ent0n29/kindred/internal/session"
)

const (
	eventQueueSize = 512
	// criticalEnqueueTimeout bounds how long a live goroutine waits for room
	// in a full queue before a state-bearing event is dropped.
	criticalEnqueueTimeout = 600 * time.Millisecond
	defaultActionStatusTTL = 3 * time.Second
)

type BridgeConfig struct {
	Connector       live.Connector
	Companion       *companion.Service
	Sessions        *session.Manager
	Metrics         *observability.Metrics
	Hub             *Hub
	Logger          *zap.Logger
	ActionStatusTTL time.Duration
	// RecordDir, when set, keeps a WAV of the assistant audio of each session.
	RecordDir string
	// Provider labels provider error metrics.
	Provider string
	// FirstAudioSLO, when positive, logs turns whose first assistant audio
	// arrives later than this.
	FirstAudioSLO time.Duration
}

// Bridge runs live sessions on behalf of browser websocket connections.
type Bridge struct {
	cfg    BridgeConfig
	logger *zap.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Provider == "" {
		cfg.Provider = "live"
	}
	if cfg.ActionStatusTTL <= 0 {
		cfg.ActionStatusTTL = defaultActionStatusTTL
	}
	return &Bridge{
		cfg:    cfg,
		logger: cfg.Logger.With(zap.String("component", "voice_bridge")),
	}
}

// connection is the per-websocket state. Everything except capture and the
// sender is owned by the RunConnection goroutine.
type connection struct {
	b       *Bridge
	s       *session.Session
	log     *zap.Logger
	out     sender
	capture *wsCapture
	live    *live.Session
	events  chan any
	openErr chan error
	opening bool
	reopen  bool
	// ended is closed when the session is ended from outside the connection.
	ended     chan struct{}
	endOnce   sync.Once
	done      chan struct{}
	statusSeq int
	// reminderStatus is set while the visible action status is a reminder.
	reminderStatus bool

	turnID        string
	openStartedAt time.Time
	turnStartedAt time.Time
	firstAudioAt  time.Time
}

type reminderEvent struct {
	reminder reminders.Reminder
}

type statusClearEvent struct {
	seq int
}

// RunConnection serves one websocket connection until ctx is done, inbound
// closes or the session is ended. A live session is opened immediately and
// can be stopped and restarted by client_control messages.
func (b *Bridge) RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error {
	c := &connection{
		b:       b,
		s:       s,
		log:     b.logger.With(zap.String("session_id", s.ID), zap.String("user_id", s.UserID)),
		out:     sender{outbound: outbound, metrics: b.cfg.Metrics},
		capture: newWSCapture(),
		events:  make(chan any, eventQueueSize),
		openErr: make(chan error, 1),
		ended:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	defer close(c.done)
	c.live = live.NewSession(live.Deps{
		Connector:       b.cfg.Connector,
		Capture:         c.capture,
		Sink:            c.enqueue,
		Logger:          b.cfg.Logger,
		Recorder:        audio.NewRecorder(b.cfg.RecordDir, s.ID, audio.PlaybackSampleRate),
		ActionStatusTTL: b.cfg.ActionStatusTTL,
	})
	defer c.shutdown()

	// Cancelling stops an open still in flight; shutdown then closes
	// whatever did open.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if b.cfg.Hub != nil {
		unregister := b.cfg.Hub.Register(s.UserID, s.ID, HubConn{
			Notify: func(r reminders.Reminder) { c.enqueue(reminderEvent{reminder: r}) },
			Close:  c.end,
		})
		defer unregister()
		// The session may have ended between attach and registration.
		if cur, err := b.cfg.Sessions.Get(s.ID); err == nil && cur.Status != session.StatusActive {
			c.end()
		}
	}

	c.out.send(protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: s.ID,
		Code:      "connected",
		Detail:    "awaiting microphone",
	})
	c.startOpen(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.ended:
			c.log.Info("session ended, closing connection")
			c.out.send(protocol.SystemEvent{
				Type:      protocol.TypeSystemEvent,
				SessionID: s.ID,
				Code:      "session_ended",
			})
			return nil
		case raw, ok := <-inbound:
			if !ok {
				return nil
			}
			c.handleClientMessage(ctx, raw)
		case ev := <-c.events:
			c.handleLiveEvent(ctx, ev)
		case err := <-c.openErr:
			c.opening = false
			switch {
			case err == nil:
			case errors.Is(err, live.ErrSessionOpen), errors.Is(err, context.Canceled):
			default:
				c.log.Warn("live session open failed", zap.Error(err))
			}
			if c.reopen {
				c.reopen = false
				c.startOpen(ctx)
			}
		}
	}
}

// shutdown closes the live session and settles the gauges its final status
// events would have updated. Nothing is written to the client any more.
func (c *connection) shutdown() {
	if err := c.live.Close(); err != nil {
		c.log.Warn("live session close failed", zap.Error(err))
	}
	for {
		select {
		case ev := <-c.events:
			if st, ok := ev.(live.StatusEvent); ok {
				c.onStatus(st)
			}
		default:
			return
		}
	}
}

func (c *connection) end() {
	c.endOnce.Do(func() { close(c.ended) })
}

// enqueue is the live.Sink. Meter readings and transcript captions are
// dropped when the queue is full; every other event waits briefly for room
// because it carries state the client and the gauges depend on.
func (c *connection) enqueue(ev any) {
	select {
	case c.events <- ev:
		return
	default:
	}
	switch ev.(type) {
	case live.LevelEvent, live.TranscriptEvent:
		c.b.cfg.Metrics.SessionEvents.WithLabelValues("live_event_drop").Inc()
		return
	}

	timer := time.NewTimer(criticalEnqueueTimeout)
	defer timer.Stop()
	select {
	case c.events <- ev:
	case <-c.done:
	case <-timer.C:
		c.b.cfg.Metrics.SessionEvents.WithLabelValues("live_event_drop_critical").Inc()
		c.log.Warn("dropped live event after queue stayed full", zap.String("event", fmt.Sprintf("%T", ev)))
	}
}

// startOpen opens the live session in the background unless it is already
// open. A request made while an open is in flight is replayed once it ends.
func (c *connection) startOpen(ctx context.Context) {
	if c.opening {
		c.reopen = true
		return
	}
	if c.live.State() != live.StateIdle {
		return
	}
	c.opening = true
	c.openStartedAt = time.Now()
	go func() {
		setup, err := c.b.cfg.Companion.LiveContext(ctx, c.s.UserID)
		if err != nil {
			c.openErr <- err
			return
		}
		voiceName := setup.Voice
		if c.s.Voice != "" {
			voiceName = c.s.Voice
		}
		c.openErr <- c.live.Open(ctx, live.Config{
			SessionID:   c.s.ID,
			UserID:      c.s.UserID,
			Voice:       voiceName,
			Instruction: setup.Instruction,
			Context:     setup.Context,
			Tools:       c.b.cfg.Companion.LiveTools(ctx, c.s.UserID),
		})
	}()
}

func (c *connection) handleClientMessage(ctx context.Context, raw any) {
	switch msg := raw.(type) {
	case protocol.ClientControl:
		switch msg.Action {
		case protocol.ActionMicReady:
			c.capture.SetPermission(true)
		case protocol.ActionMicDenied:
			c.capture.SetPermission(false)
		case protocol.ActionStart:
			c.startOpen(ctx)
		case protocol.ActionStop:
			if err := c.live.Close(); err != nil {
				c.log.Warn("live session close failed", zap.Error(err))
			}
		}
	case protocol.ClientAudioChunk:
		if _, err := c.capture.Push(msg); err != nil {
			c.out.send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: c.s.ID,
				Code:      "bad_audio_chunk",
				Source:    "client",
				Retryable: false,
				Detail:    err.Error(),
			})
			return
		}
		_ = c.b.cfg.Sessions.Touch(c.s.ID)
	default:
		c.log.Debug("ignoring inbound message", zap.String("type", "unknown"))
	}
}

func (c *connection) handleLiveEvent(ctx context.Context, raw any) {
	m := c.b.cfg.Metrics
	sid := c.s.ID

	switch ev := raw.(type) {
	case live.StatusEvent:
		c.onStatus(ev)
		c.out.send(protocol.LiveStatus{
			Type:      protocol.TypeLiveStatus,
			SessionID: sid,
			State:     string(ev.To),
			Previous:  string(ev.From),
		})

	case live.LevelEvent:
		c.out.send(protocol.InputLevel{Type: protocol.TypeInputLevel, SessionID: sid, Level: ev.Level})

	case live.TranscriptEvent:
		if ev.Transcript.User != "" && c.turnStartedAt.IsZero() {
			c.turnStartedAt = time.Now()
			c.turnID = uuid.NewString()
			_ = c.b.cfg.Sessions.StartTurn(sid, c.turnID)
		}
		c.out.send(protocol.Transcript{
			Type:      protocol.TypeTranscript,
			SessionID: sid,
			User:      ev.Transcript.User,
			Assistant: ev.Transcript.Assistant,
		})

	case live.AudioEvent:
		if c.firstAudioAt.IsZero() {
			c.firstAudioAt = time.Now()
			if !c.turnStartedAt.IsZero() {
				latency := c.firstAudioAt.Sub(c.turnStartedAt)
				m.ObserveFirstAudioLatency(latency)
				if slo := c.b.cfg.FirstAudioSLO; slo > 0 && latency > slo {
					m.SessionEvents.WithLabelValues("first_audio_slo_miss").Inc()
					c.log.Info("first audio slower than target",
						zap.Duration("latency", latency),
						zap.Duration("target", slo),
						zap.String("turn_id", c.turnID),
					)
				}
			}
		}
		c.out.send(protocol.AssistantAudioChunk{
			Type:        protocol.TypeAssistantAudio,
			SessionID:   sid,
			Seq:         ev.Seq,
			PCM16Base64: base64.StdEncoding.EncodeToString(ev.PCM),
			SampleRate:  ev.SampleRate,
			StartAtMs:   ev.StartAt.Milliseconds(),
			DurationMs:  ev.Duration.Milliseconds(),
		})

	case live.InterruptedEvent:
		m.PlaybackFlushes.Inc()
		m.ObserveIndicator("interrupted")
		if err := c.b.cfg.Sessions.Interrupt(sid); err != nil && !errors.Is(err, session.ErrNotFound) {
			c.log.Warn("record interruption failed", zap.Error(err))
		}
		c.firstAudioAt = time.Time{}
		c.out.send(protocol.PlaybackFlush{Type: protocol.TypePlaybackFlush, SessionID: sid, Dropped: ev.Dropped})

	case live.ActionStatusEvent:
		if ev.Text == "" && c.reminderStatus {
			// A reminder replaced the tool status; its own clear is pending.
			return
		}
		c.statusSeq++
		c.reminderStatus = false
		c.out.send(protocol.ActionStatus{Type: protocol.TypeActionStatus, SessionID: sid, Text: ev.Text})

	case reminderEvent:
		c.showReminder(ev.reminder)

	case statusClearEvent:
		if ev.seq == c.statusSeq {
			c.reminderStatus = false
			c.out.send(protocol.ActionStatus{Type: protocol.TypeActionStatus, SessionID: sid})
		}

	case live.ToolEvent:
		m.ToolCalls.WithLabelValues(ev.Call.Name, toolOutcome(ev.Response.Result)).Inc()
		c.out.send(protocol.ToolCall{
			Type:      protocol.TypeToolCall,
			SessionID: sid,
			CallID:    ev.Call.ID,
			Name:      ev.Call.Name,
			Args:      ev.Call.Args,
			Result:    ev.Response.Result,
		})

	case live.TurnEvent:
		c.onTurnComplete(ctx, ev.Transcript)

	case live.ErrorEvent:
		if ev.Code != "mic_permission_denied" {
			m.ProviderErrors.WithLabelValues(c.b.cfg.Provider, ev.Code).Inc()
		}
		c.out.send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sid,
			Code:      ev.Code,
			Source:    "live",
			Retryable: reliability.IsRetryableLiveErrorCode(ev.Code),
			Detail:    ev.Message,
		})
	}
}

// showReminder displays a due reminder and clears it after the action
// status TTL unless another status replaced it first.
func (c *connection) showReminder(r reminders.Reminder) {
	c.statusSeq++
	seq := c.statusSeq
	c.reminderStatus = true
	c.out.send(protocol.ActionStatus{
		Type:      protocol.TypeActionStatus,
		SessionID: c.s.ID,
		Text:      "Reminder: " + r.Text,
	})
	c.out.send(protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: c.s.ID,
		Code:      "reminder_due",
		Detail:    r.Text,
	})
	time.AfterFunc(c.b.cfg.ActionStatusTTL, func() {
		c.enqueue(statusClearEvent{seq: seq})
	})
}

func (c *connection) onStatus(ev live.StatusEvent) {
	m := c.b.cfg.Metrics
	m.SessionEvents.WithLabelValues("live_" + string(ev.To)).Inc()
	switch {
	case ev.From == live.StateIdle:
		m.ActiveSessions.Inc()
		if !c.openStartedAt.IsZero() {
			m.ObserveTurnStage(observability.StageOpenToListening, time.Since(c.openStartedAt))
			c.openStartedAt = time.Time{}
		}
	case ev.To == live.StateIdle:
		m.ActiveSessions.Dec()
		c.turnID = ""
		c.turnStartedAt = time.Time{}
		c.firstAudioAt = time.Time{}
	}
}

func (c *connection) onTurnComplete(ctx context.Context, turn live.Transcript) {
	m := c.b.cfg.Metrics
	now := time.Now()
	if !c.firstAudioAt.IsZero() {
		m.ObserveTurnStage(observability.StageFirstAudioToTurnComplete, now.Sub(c.firstAudioAt))
	}
	if !c.turnStartedAt.IsZero() {
		m.ObserveTurnStage(observability.StageTurnTotal, now.Sub(c.turnStartedAt))
	}
	turnID := c.turnID
	if turnID == "" {
		turnID = uuid.NewString()
	}
	c.turnID = ""
	c.turnStartedAt = time.Time{}
	c.firstAudioAt = time.Time{}

	_ = c.b.cfg.Sessions.CompleteTurn(c.s.ID)
	if err := c.b.cfg.Companion.ApplyLiveTurn(ctx, c.s.UserID, c.s.ID, turn); err != nil {
		c.log.Warn("persist live turn failed", zap.Error(err), zap.String("turn_id", turnID))
	}
	c.out.send(protocol.TurnComplete{
		Type:      protocol.TypeTurnComplete,
		SessionID: c.s.ID,
		TurnID:    turnID,
		User:      turn.User,
		Assistant: turn.Assistant,
	})
}

func toolOutcome(result string) string {
	switch result {
	case live.ResultOK:
		return "ok"
	case live.ResultUnknownTool:
		return "unknown_tool"
	default:
		return "reported"
	}
}
