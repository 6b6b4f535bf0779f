package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeClientControl    MessageType = "client_control"

	TypeLiveStatus     MessageType = "live_status"
	TypeInputLevel     MessageType = "input_level"
	TypeTranscript     MessageType = "transcript"
	TypeTurnComplete   MessageType = "turn_complete"
	TypeAssistantAudio MessageType = "assistant_audio_chunk"
	TypePlaybackFlush  MessageType = "playback_flush"
	TypeActionStatus   MessageType = "action_status"
	TypeToolCall       MessageType = "tool_call"
	TypeSystemEvent    MessageType = "system_event"
	TypeErrorEvent     MessageType = "error_event"
)

// Client control actions.
const (
	// ActionMicReady reports that the browser obtained microphone access.
	ActionMicReady = "mic_ready"
	// ActionMicDenied reports that the user refused microphone access.
	ActionMicDenied = "mic_denied"
	ActionStart     = "start"
	ActionStop      = "stop"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientAudioChunk carries one capture block as little-endian float32
// samples.
type ClientAudioChunk struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	Seq        int         `json:"seq"`
	F32Base64  string      `json:"f32_base64"`
	SampleRate int         `json:"sample_rate"`
	TSMs       int64       `json:"ts_ms,omitempty"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Reason    string      `json:"reason,omitempty"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

type LiveStatus struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	State     string      `json:"state"`
	Previous  string      `json:"previous"`
}

type InputLevel struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Level     float64     `json:"level"`
}

// Transcript is the in-progress caption for the current turn.
type Transcript struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	User      string      `json:"user"`
	Assistant string      `json:"assistant"`
}

type TurnComplete struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	User      string      `json:"user"`
	Assistant string      `json:"assistant"`
}

// AssistantAudioChunk is mono PCM16LE. StartAtMs is the offset on the
// session's output clock at which the client should start the chunk.
type AssistantAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	StartAtMs   int64       `json:"start_at_ms"`
	DurationMs  int64       `json:"duration_ms"`
}

// PlaybackFlush tells the client to stop every scheduled chunk.
type PlaybackFlush struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Dropped   int         `json:"dropped"`
}

// ActionStatus is a transient status line; an empty Text clears it.
type ActionStatus struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type ToolCall struct {
	Type      MessageType    `json:"type"`
	SessionID string         `json:"session_id"`
	CallID    string         `json:"call_id"`
	Name      string         `json:"name"`
	Args      map[string]any `json:"args,omitempty"`
	Result    string         `json:"result"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.F32Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		switch msg.Action {
		case ActionMicReady, ActionMicDenied, ActionStart, ActionStop:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
