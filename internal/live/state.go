package live

// State is the user-visible phase of a live session.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateSpeaking  State = "speaking"
	StateThinking  State = "thinking"
)
