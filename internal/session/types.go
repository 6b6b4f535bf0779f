package session

import "time"

// CreateRequest is the body of POST /v1/voice/session. Empty fields fall back
// to the user's stored companion profile.
type CreateRequest struct {
	UserID      string `json:"user_id"`
	Personality string `json:"personality"`
	Voice       string `json:"voice"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	Status          Status    `json:"status"`
	Personality     string    `json:"personality"`
	Voice           string    `json:"voice"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}

func NewCreateResponse(s *Session, ttl time.Duration) CreateResponse {
	return CreateResponse{
		SessionID:       s.ID,
		UserID:          s.UserID,
		Status:          s.Status,
		Personality:     s.Personality,
		Voice:           s.Voice,
		StartedAt:       s.StartedAt,
		LastActivityAt:  s.LastActivityAt,
		InactivityTTLMS: ttl.Milliseconds(),
	}
}
