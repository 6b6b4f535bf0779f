package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/kindred/internal/companion"
	"github.com/ent0n29/kindred/internal/config"
	"github.com/ent0n29/kindred/internal/observability"
	"github.com/ent0n29/kindred/internal/protocol"
	"github.com/ent0n29/kindred/internal/session"
)

// Bridge runs one live voice connection.
type Bridge interface {
	RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error
}

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

type Deps struct {
	Sessions  *session.Manager
	Bridge    Bridge
	Companion *companion.Service
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	// Ready maps dependency names to their probes for /readyz.
	Ready map[string]ReadyCheck
	// Provider names the resolved live provider for status endpoints.
	Provider string
}

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	bridge    Bridge
	companion *companion.Service
	metrics   *observability.Metrics
	logger    *zap.Logger
	ready     map[string]ReadyCheck
	provider  string
	limiter   *userLimiter
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		sessions:  deps.Sessions,
		bridge:    deps.Bridge,
		companion: deps.Companion,
		metrics:   deps.Metrics,
		logger:    logger.With(zap.String("component", "httpapi")),
		ready:     deps.Ready,
		provider:  deps.Provider,
		limiter:   newUserLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive a user's microphone session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/onboarding/status", s.handleOnboardingStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/catalog", s.handleCatalog)

	r.Post("/v1/voice/session", s.handleCreateSession)
	r.Post("/v1/voice/session/{id}/end", s.handleEndSession)
	r.Get("/v1/voice/session/ws", s.handleSessionWS)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimited)
		r.Post("/v1/chat", s.handleChat)
		r.Post("/v1/chat/summary", s.handleSummary)
		r.Post("/v1/diary", s.handleWriteDiary)
		r.Post("/v1/images", s.handleImage)
	})
	r.Get("/v1/chat/history", s.handleHistory)
	r.Get("/v1/profile", s.handleGetProfile)
	r.Put("/v1/profile", s.handleUpdateProfile)
	r.Get("/v1/memories", s.handleMemories)
	r.Get("/v1/diary", s.handleListDiary)
	r.Post("/v1/reminders", s.handleCreateReminder)
	r.Get("/v1/reminders", s.handleListReminders)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"live_provider":   s.provider,
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.ready))
	ready := true
	for name, check := range s.ready {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}
	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{
		"status": status,
		"checks": checks,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = userIDOf(r)
	}
	req.Personality = strings.TrimSpace(req.Personality)
	if req.Personality != "" {
		if _, err := s.companion.SetPersonality(r.Context(), req.UserID, req.Personality); err != nil {
			s.respondServiceError(w, err)
			return
		}
	}
	profile, err := s.companion.Profile(r.Context(), req.UserID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	sess := s.sessions.Create(req.UserID, profile.Personality, strings.TrimSpace(req.Voice))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()

	respondJSON(w, http.StatusCreated, session.NewCreateResponse(sess, s.cfg.SessionInactivityTimeout))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if s.bridge == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "live voice is not configured")
		return
	}

	sess, err := s.sessions.Attach(sessionID)
	switch {
	case errors.Is(err, session.ErrEnded):
		respondError(w, http.StatusGone, "session_ended", err.Error())
		return
	case err != nil:
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	log := s.logger.With(zap.String("session_id", sessionID), zap.String("user_id", sess.UserID))
	log.Info("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		defer cancel()
		if err := s.bridge.RunConnection(ctx, sess, inbound, outbound); err != nil {
			log.Warn("live connection failed", zap.Error(err))
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					s.metrics.SessionEvents.WithLabelValues("ws_write_error").Inc()
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("written", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			}
			select {
			case outbound <- errEvent:
			default:
				// Keep websocket writes single-threaded; drop if outbound queue is saturated.
				s.metrics.SessionEvents.WithLabelValues("outbound_drop").Inc()
			}
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
	log.Info("websocket disconnected")
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAudioChunk:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.LiveStatus:
		return m.Type, true
	case protocol.InputLevel:
		return m.Type, true
	case protocol.Transcript:
		return m.Type, true
	case protocol.TurnComplete:
		return m.Type, true
	case protocol.AssistantAudioChunk:
		return m.Type, true
	case protocol.PlaybackFlush:
		return m.Type, true
	case protocol.ActionStatus:
		return m.Type, true
	case protocol.ToolCall:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
