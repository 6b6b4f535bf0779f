package live

import (
	"context"

	"github.com/ent0n29/kindred/internal/audio"
)

// ToolCall is a function-call request issued by the remote model mid-session.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResponse answers exactly one ToolCall.
type ToolResponse struct {
	ID     string
	Name   string
	Result string
}

// ServerEvent is one inbound message. Any combination of fields may be set.
type ServerEvent struct {
	Interrupted      bool
	ToolCalls        []ToolCall
	InputTranscript  string
	OutputTranscript string
	TurnComplete     bool
	// Audio holds PCM16LE mono frames at audio.PlaybackSampleRate, already
	// base64-decoded by the transport.
	Audio [][]byte
}

// ToolParam describes one string argument of a tool.
type ToolParam struct {
	Name        string
	Description string
	Enum        []string
	Required    bool
}

// ToolSpec is the declaration exposed to the remote model.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ToolParam
}

// RemoteConfig is what the connector needs to open a session.
type RemoteConfig struct {
	SystemInstruction string
	Voice             string
	Tools             []ToolSpec
}

// Remote is an open bidirectional session with the model.
type Remote interface {
	SendAudio(ctx context.Context, chunk audio.WireChunk) error
	SendToolResponses(ctx context.Context, responses []ToolResponse) error
	// Receive blocks for the next server event. It returns io.EOF once the
	// remote side has closed.
	Receive(ctx context.Context) (ServerEvent, error)
	Close() error
}

// Connector opens remote sessions.
type Connector interface {
	Connect(ctx context.Context, cfg RemoteConfig) (Remote, error)
}

// Capture delivers fixed-size microphone blocks at audio.CaptureSampleRate.
type Capture interface {
	// Start requests microphone access and begins delivering blocks to onBlock.
	// Permission failures are reported as ErrCapturePermission.
	Start(ctx context.Context, onBlock func(samples []float32)) error
	// Stop releases the capture stream. Safe to call more than once.
	Stop() error
}
