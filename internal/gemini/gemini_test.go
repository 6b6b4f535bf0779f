package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/ent0n29/kindred/internal/live"
	"github.com/ent0n29/kindred/internal/memory"
)

func TestTranslateServerContent(t *testing.T) {
	msg := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{Data: []byte{1, 2}, MIMEType: "audio/pcm;rate=24000"}},
				{Text: "ignored"},
				{InlineData: &genai.Blob{Data: []byte{3}, MIMEType: "image/png"}},
			}},
			InputTranscription:  &genai.Transcription{Text: "hi"},
			OutputTranscription: &genai.Transcription{Text: "hello"},
			TurnComplete:        true,
		},
	}

	ev, ok := translate(msg)
	require.True(t, ok)
	assert.Equal(t, [][]byte{{1, 2}}, ev.Audio)
	assert.Equal(t, "hi", ev.InputTranscript)
	assert.Equal(t, "hello", ev.OutputTranscript)
	assert.True(t, ev.TurnComplete)
	assert.False(t, ev.Interrupted)
}

func TestTranslateToolCall(t *testing.T) {
	msg := &genai.LiveServerMessage{
		ToolCall: &genai.LiveServerToolCall{FunctionCalls: []*genai.FunctionCall{
			{ID: "c1", Name: "changeMode", Args: map[string]any{"mode": "diary"}},
			nil,
		}},
	}
	ev, ok := translate(msg)
	require.True(t, ok)
	assert.Equal(t, []live.ToolCall{{ID: "c1", Name: "changeMode", Args: map[string]any{"mode": "diary"}}}, ev.ToolCalls)
}

func TestTranslateSkipsEmpty(t *testing.T) {
	_, ok := translate(&genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}})
	assert.False(t, ok)
	_, ok = translate(nil)
	assert.False(t, ok)

	ev, ok := translate(&genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{Interrupted: true}})
	assert.True(t, ok)
	assert.True(t, ev.Interrupted)
}

func TestToolDeclarations(t *testing.T) {
	tools := toolDeclarations([]live.ToolSpec{{
		Name:        "changeMode",
		Description: "Switch mode.",
		Params: []live.ToolParam{
			{Name: "mode", Enum: []string{"chat", "diary"}, Required: true},
			{Name: "note"},
		},
	}})
	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 1)
	decl := tools[0].FunctionDeclarations[0]
	assert.Equal(t, "changeMode", decl.Name)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
	assert.Equal(t, []string{"mode"}, decl.Parameters.Required)
	assert.Equal(t, []string{"chat", "diary"}, decl.Parameters.Properties["mode"].Enum)
	assert.Equal(t, genai.TypeString, decl.Parameters.Properties["note"].Type)

	assert.Nil(t, toolDeclarations(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(genai.APIError{Code: 503}))
	assert.True(t, isRetryable(fmt.Errorf("wrapped: %w", genai.APIError{Code: 429})))
	assert.False(t, isRetryable(genai.APIError{Code: 400}))
	assert.False(t, isRetryable(context.Canceled))
	assert.False(t, isRetryable(errors.New("boom")))
	assert.False(t, isRetryable(nil))
}

func TestRoleOf(t *testing.T) {
	assert.Equal(t, genai.RoleModel, roleOf(memory.RoleAssistant))
	assert.Equal(t, genai.RoleUser, roleOf(memory.RoleUser))
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(context.Background(), Config{APIKey: "test-key"}, nil)
	require.NoError(t, err)
	cfg := c.Config()
	assert.Equal(t, defaultLiveModel, cfg.LiveModel)
	assert.Equal(t, defaultChatModel, cfg.ChatModel)
	assert.Equal(t, defaultVoice, cfg.Voice)
	assert.NotNil(t, c.LiveConnector())
	assert.NotNil(t, c.Brain())
}
