package companion

import (
	"context"
	"fmt"
	"strings"
)

// Message is one prior turn passed to the Brain.
type Message struct {
	Role string
	Text string
}

// Image is a generated picture.
type Image struct {
	Data     []byte
	MIMEType string
}

// Brain is the text and image model behind the non-live modes.
type Brain interface {
	Reply(ctx context.Context, system string, history []Message, text string) (string, error)
	// Complete runs a single-shot prompt under a system instruction.
	Complete(ctx context.Context, system, prompt string) (string, error)
	Image(ctx context.Context, prompt string) (Image, error)
}

// MockBrain answers locally so the app works without a model key.
type MockBrain struct{}

func (MockBrain) Reply(_ context.Context, _ string, history []Message, text string) (string, error) {
	text = strings.TrimSpace(text)
	if len(history) == 0 {
		return fmt.Sprintf("Nice to meet you! You said: %q. Tell me more?", text), nil
	}
	return fmt.Sprintf("I hear you. %q stays with me. What else is on your mind?", text), nil
}

func (MockBrain) Complete(_ context.Context, system, prompt string) (string, error) {
	switch system {
	case moodSystem:
		return guessMood(prompt), nil
	case extractSystem:
		return "", nil
	case summarySystem:
		return "We chatted for a bit and I enjoyed it.", nil
	case reflectionSystem:
		return "Thank you for trusting me with this. It sounds like today mattered.", nil
	default:
		return "", nil
	}
}

// mockPNG is a 1x1 transparent PNG.
var mockPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func (MockBrain) Image(context.Context, string) (Image, error) {
	return Image{Data: append([]byte(nil), mockPNG...), MIMEType: "image/png"}, nil
}
