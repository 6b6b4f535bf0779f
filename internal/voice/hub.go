package voice

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/kindred/internal/observability"
	"github.com/ent0n29/kindred/internal/reminders"
)

// Hub tracks the open websocket connections per user so that out-of-band
// events can reach them.
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]map[string]hubConn
	metrics *observability.Metrics
	logger  *zap.Logger
}

// HubConn is what a registered connection exposes to the hub.
type HubConn struct {
	// Notify receives due reminders for the connection's user. It must not
	// block for long.
	Notify func(reminders.Reminder)
	// Close ends the connection and its live session.
	Close func()
}

type hubConn struct {
	sessionID string
	HubConn
}

var _ reminders.Notifier = (*Hub)(nil)

func NewHub(metrics *observability.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		conns:   make(map[string]map[string]hubConn),
		metrics: metrics,
		logger:  logger.With(zap.String("component", "voice_hub")),
	}
}

// Register adds a connection and returns its unregister func.
func (h *Hub) Register(userID, sessionID string, c HubConn) func() {
	key := uuid.NewString()
	h.mu.Lock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[string]hubConn)
	}
	h.conns[userID][key] = hubConn{sessionID: sessionID, HubConn: c}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.conns[userID], key)
		if len(h.conns[userID]) == 0 {
			delete(h.conns, userID)
		}
	}
}

// Connections reports how many connections userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// CloseSession closes every connection attached to sessionID and reports how
// many there were.
func (h *Hub) CloseSession(sessionID string) int {
	h.mu.RLock()
	var targets []func()
	for _, byKey := range h.conns {
		for _, c := range byKey {
			if c.sessionID == sessionID && c.Close != nil {
				targets = append(targets, c.Close)
			}
		}
	}
	h.mu.RUnlock()

	for _, closeConn := range targets {
		closeConn()
	}
	if len(targets) > 0 {
		h.logger.Info("closed connections of ended session",
			zap.String("session_id", sessionID),
			zap.Int("connections", len(targets)),
		)
	}
	return len(targets)
}

// NotifyReminder hands a due reminder to every connection of its user.
func (h *Hub) NotifyReminder(_ context.Context, r reminders.Reminder) {
	h.mu.RLock()
	targets := make([]hubConn, 0, len(h.conns[r.UserID]))
	for _, c := range h.conns[r.UserID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		h.logger.Info("reminder due with no open connection", zap.String("user_id", r.UserID), zap.String("reminder_id", r.ID))
		return
	}
	for _, c := range targets {
		if c.Notify != nil {
			c.Notify(r)
		}
	}
	if h.metrics != nil {
		h.metrics.RemindersDelivered.Inc()
	}
}
