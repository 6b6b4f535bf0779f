package httpapi

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/kindred/internal/companion"
	"github.com/ent0n29/kindred/internal/memory"
	"github.com/ent0n29/kindred/internal/observability"
	"github.com/ent0n29/kindred/internal/reminders"
)

const defaultUserID = "anonymous"

type textRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type profileUpdateRequest struct {
	Personality *string `json:"personality"`
	Mode        *string `json:"mode"`
}

type imageRequest struct {
	UserID string `json:"user_id"`
	Prompt string `json:"prompt"`
}

type imageResponse struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data_base64"`
}

type reminderRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
	When   string `json:"when"`
}

type reminderResponse struct {
	Reminder reminders.Reminder `json:"reminder"`
	Message  string             `json:"message"`
}

// userIDOf resolves the caller from the X-User-ID header or user_id query
// parameter.
func userIDOf(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.URL.Query().Get("user_id")); id != "" {
		return id
	}
	return defaultUserID
}

func bodyUserID(r *http.Request, fromBody string) string {
	if id := strings.TrimSpace(fromBody); id != "" {
		return id
	}
	return userIDOf(r)
}

func limitParam(r *http.Request, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return min(n, 200)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	userID := bodyUserID(r, req.UserID)
	start := timeNow()
	res, err := s.companion.Chat(r.Context(), userID, req.Text)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.metrics.ObserveTurnStage(observability.StageChatReply, timeNow().Sub(start))
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.companion.History(r.Context(), userIDOf(r), limitParam(r, 50))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if turns == nil {
		turns = []memory.TurnRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	summary, err := s.companion.Summarize(r.Context(), bodyUserID(r, req.UserID))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.companion.Profile(r.Context(), userIDOf(r))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	userID := userIDOf(r)
	profile, err := s.companion.Profile(r.Context(), userID)
	if req.Personality != nil && err == nil {
		profile, err = s.companion.SetPersonality(r.Context(), userID, strings.TrimSpace(*req.Personality))
	}
	if req.Mode != nil && err == nil {
		profile, err = s.companion.SetMode(r.Context(), userID, strings.TrimSpace(*req.Mode))
	}
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleMemories(w http.ResponseWriter, r *http.Request) {
	facts, err := s.companion.Memories(r.Context(), userIDOf(r))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if facts == nil {
		facts = []memory.Fact{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": facts})
}

func (s *Server) handleWriteDiary(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	entry, err := s.companion.WriteDiary(r.Context(), bodyUserID(r, req.UserID), req.Text)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleListDiary(w http.ResponseWriter, r *http.Request) {
	entries, err := s.companion.ListDiary(r.Context(), userIDOf(r), limitParam(r, 20))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []memory.DiaryEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "prompt is required")
		return
	}
	img, err := s.companion.GenerateImage(r.Context(), bodyUserID(r, req.UserID), req.Prompt)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, imageResponse{
		MIMEType: img.MIMEType,
		Data:     base64.StdEncoding.EncodeToString(img.Data),
	})
}

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	rem, err := s.companion.AddReminder(r.Context(), bodyUserID(r, req.UserID), req.Text, req.When)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, reminderResponse{Reminder: rem, Message: reminders.Describe(rem, nil)})
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	list, err := s.companion.ListReminders(r.Context(), userIDOf(r))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if list == nil {
		list = []reminders.Reminder{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"reminders": list})
}

// respondServiceError maps companion errors to API errors.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, companion.ErrEmptyMessage),
		errors.Is(err, reminders.ErrEmptyText):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, companion.ErrUnknownPersonality):
		respondError(w, http.StatusBadRequest, "unknown_personality", err.Error())
	case errors.Is(err, companion.ErrUnknownMode):
		respondError(w, http.StatusBadRequest, "unknown_mode", err.Error())
	case errors.Is(err, reminders.ErrInvalidWhen):
		respondError(w, http.StatusBadRequest, "invalid_when", err.Error())
	case errors.Is(err, reminders.ErrPastDue):
		respondError(w, http.StatusBadRequest, "past_due", err.Error())
	case errors.Is(err, companion.ErrPromptBlocked):
		respondError(w, http.StatusUnprocessableEntity, "prompt_blocked", err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.metrics.ProviderErrors.WithLabelValues(s.provider, "request_failed").Inc()
		respondError(w, http.StatusBadGateway, "upstream_error", "the companion could not answer right now")
	}
}
