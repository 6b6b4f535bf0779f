package live

import (
	"context"
	"io"
	"sync"

	"github.com/ent0n29/kindred/internal/audio"
)

// mockTurnEvery is how many captured chunks make one simulated user utterance.
const mockTurnEvery = 40

// MockConnector is a local fallback used when no realtime model is configured.
// After every mockTurnEvery audio chunks it plays back a scripted turn.
type MockConnector struct{}

func NewMockConnector() *MockConnector { return &MockConnector{} }

func (c *MockConnector) Connect(ctx context.Context, _ RemoteConfig) (Remote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &mockRemote{events: make(chan ServerEvent, 16)}, nil
}

type mockRemote struct {
	mu     sync.Mutex
	events chan ServerEvent
	chunks int
	closed bool
}

func (r *mockRemote) SendAudio(_ context.Context, _ audio.WireChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return io.ErrClosedPipe
	}
	r.chunks++
	if r.chunks%mockTurnEvery != 0 {
		return nil
	}
	turn := []ServerEvent{
		{InputTranscript: "simulated voice input"},
		{OutputTranscript: "I heard you."},
		// Half a second of silence at the playback rate.
		{Audio: [][]byte{make([]byte, audio.PlaybackSampleRate)}},
		{TurnComplete: true},
	}
	for _, ev := range turn {
		select {
		case r.events <- ev:
		default:
		}
	}
	return nil
}

func (r *mockRemote) SendToolResponses(_ context.Context, _ []ToolResponse) error {
	return nil
}

func (r *mockRemote) Receive(ctx context.Context) (ServerEvent, error) {
	select {
	case <-ctx.Done():
		return ServerEvent{}, ctx.Err()
	case ev, ok := <-r.events:
		if !ok {
			return ServerEvent{}, io.EOF
		}
		return ev, nil
	}
}

func (r *mockRemote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.events)
	return nil
}
