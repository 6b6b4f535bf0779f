package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/ent0n29/kindred/internal/companion"
	"github.com/ent0n29/kindred/internal/memory"
	"github.com/ent0n29/kindred/internal/reliability"
)

const (
	brainAttempts    = 3
	brainBackoffBase = 250 * time.Millisecond
	brainBackoffCap  = 2 * time.Second
)

var _ companion.Brain = (*Brain)(nil)

// Brain answers chat, single-shot and image requests.
type Brain struct {
	client *Client
}

func (c *Client) Brain() *Brain {
	return &Brain{client: c}
}

func (b *Brain) Reply(ctx context.Context, system string, history []companion.Message, text string) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		contents = append(contents, genai.NewContentFromText(m.Text, roleOf(m.Role)))
	}
	contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	return b.generate(ctx, system, contents, nil)
}

func (b *Brain) Complete(ctx context.Context, system, prompt string) (string, error) {
	return b.generate(ctx, system, genai.Text(prompt), genai.Ptr[float32](0.2))
}

func (b *Brain) generate(ctx context.Context, system string, contents []*genai.Content, temperature *float32) (string, error) {
	cfg := &genai.GenerateContentConfig{Temperature: temperature}
	if strings.TrimSpace(system) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	var text string
	err := reliability.Retry(ctx, brainAttempts, brainBackoffBase, brainBackoffCap, isRetryable, func(ctx context.Context) error {
		resp, err := b.client.genai.Models.GenerateContent(ctx, b.client.cfg.ChatModel, contents, cfg)
		if err != nil {
			return err
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate content with %s: %w", b.client.cfg.ChatModel, err)
	}
	return text, nil
}

func (b *Brain) Image(ctx context.Context, prompt string) (companion.Image, error) {
	var img companion.Image
	err := reliability.Retry(ctx, brainAttempts, brainBackoffBase, brainBackoffCap, isRetryable, func(ctx context.Context) error {
		resp, err := b.client.genai.Models.GenerateImages(ctx, b.client.cfg.ImageModel, prompt, &genai.GenerateImagesConfig{
			NumberOfImages: 1,
			OutputMIMEType: "image/png",
		})
		if err != nil {
			return err
		}
		if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
			return errors.New("no image returned")
		}
		out := resp.GeneratedImages[0].Image
		img = companion.Image{Data: out.ImageBytes, MIMEType: out.MIMEType}
		return nil
	})
	if err != nil {
		return companion.Image{}, fmt.Errorf("generate image with %s: %w", b.client.cfg.ImageModel, err)
	}
	if img.MIMEType == "" {
		img.MIMEType = "image/png"
	}
	return img, nil
}

func roleOf(role string) genai.Role {
	if role == memory.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}
