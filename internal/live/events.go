package live

import "time"

// Sink receives UI-facing events. It is called from the session goroutines
// and must not block.
type Sink func(event any)

type StatusEvent struct {
	From State
	To   State
}

// LevelEvent carries the mic input level, normalized to roughly 0..2.
type LevelEvent struct {
	Level float64
}

// TranscriptEvent publishes the in-progress turn as a live caption.
type TranscriptEvent struct {
	Transcript Transcript
}

// TurnEvent carries the finalized snapshot of a completed turn.
type TurnEvent struct {
	Transcript Transcript
}

// AudioEvent is one decoded chunk placed on the output clock.
type AudioEvent struct {
	Seq        int
	PCM        []byte
	SampleRate int
	StartAt    time.Duration
	Duration   time.Duration
}

// InterruptedEvent reports a flush of the playback queue.
type InterruptedEvent struct {
	Dropped int
}

// ActionStatusEvent is a transient status line. An empty Text clears it.
type ActionStatusEvent struct {
	Text string
}

// ToolEvent records a dispatched tool call and its acknowledgement.
type ToolEvent struct {
	Call     ToolCall
	Response ToolResponse
}

// ErrorEvent reports a session failure. Message is safe to show to users.
type ErrorEvent struct {
	Code    string
	Message string
	Err     error
}
