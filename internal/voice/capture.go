package voice

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/ent0n29/kindred/internal/audio"
	"github.com/ent0n29/kindred/internal/live"
	"github.com/ent0n29/kindred/internal/protocol"
)

// wsCapture is a live.Capture fed by client_audio_chunk messages. The browser
// owns the microphone; it reports the permission outcome with a client_control
// message before audio starts flowing.
type wsCapture struct {
	mu       sync.Mutex
	granted  bool
	decision chan bool
	onBlock  func([]float32)
}

func newWSCapture() *wsCapture {
	return &wsCapture{decision: make(chan bool, 1)}
}

// SetPermission records the browser's microphone decision. The latest
// decision wins.
func (c *wsCapture) SetPermission(granted bool) {
	c.mu.Lock()
	c.granted = granted
	c.mu.Unlock()
	select {
	case <-c.decision:
	default:
	}
	c.decision <- granted
}

func (c *wsCapture) Start(ctx context.Context, onBlock func([]float32)) error {
	c.mu.Lock()
	granted := c.granted
	c.mu.Unlock()
	for !granted {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ok := <-c.decision:
			if !ok {
				return live.ErrCapturePermission
			}
			granted = true
		}
	}

	c.mu.Lock()
	c.onBlock = onBlock
	c.mu.Unlock()
	return nil
}

func (c *wsCapture) Stop() error {
	c.mu.Lock()
	c.onBlock = nil
	c.mu.Unlock()
	return nil
}

// Push decodes one browser chunk and hands it to the running session. Chunks
// arriving while capture is stopped are discarded.
func (c *wsCapture) Push(msg protocol.ClientAudioChunk) (bool, error) {
	if msg.SampleRate != audio.CaptureSampleRate {
		return false, fmt.Errorf("unsupported sample rate %d, want %d", msg.SampleRate, audio.CaptureSampleRate)
	}
	raw, err := base64.StdEncoding.DecodeString(msg.F32Base64)
	if err != nil {
		return false, fmt.Errorf("decode audio payload: %w", err)
	}
	samples := audio.DecodeFloat32LE(raw)
	if len(samples) == 0 {
		return false, nil
	}

	c.mu.Lock()
	onBlock := c.onBlock
	c.mu.Unlock()
	if onBlock == nil {
		return false, nil
	}
	onBlock(samples)
	return true, nil
}
