package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/ent0n29/kindred/internal/audio"
	"github.com/ent0n29/kindred/internal/live"
)

var _ live.Connector = (*LiveConnector)(nil)

// LiveConnector opens realtime audio sessions against the Live API.
type LiveConnector struct {
	client *Client
}

func (c *Client) LiveConnector() *LiveConnector {
	return &LiveConnector{client: c}
}

func (l *LiveConnector) Connect(ctx context.Context, cfg live.RemoteConfig) (live.Remote, error) {
	voice := strings.TrimSpace(cfg.Voice)
	if voice == "" {
		voice = l.client.cfg.Voice
	}
	conf := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
		Tools:                    toolDeclarations(cfg.Tools),
	}
	if strings.TrimSpace(cfg.SystemInstruction) != "" {
		conf.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}

	session, err := l.client.genai.Live.Connect(ctx, l.client.cfg.LiveModel, conf)
	if err != nil {
		return nil, fmt.Errorf("connect live model %s: %w", l.client.cfg.LiveModel, err)
	}
	l.client.logger.Debug("live session connected", zap.String("model", l.client.cfg.LiveModel), zap.String("voice", voice))
	return &liveRemote{session: session, logger: l.client.logger}, nil
}

type liveRemote struct {
	session   *genai.Session
	logger    *zap.Logger
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (r *liveRemote) SendAudio(_ context.Context, chunk audio.WireChunk) error {
	pcm, err := chunk.PCM()
	if err != nil {
		return fmt.Errorf("decode outbound chunk: %w", err)
	}
	return r.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: chunk.MIMEType},
	})
}

func (r *liveRemote) SendToolResponses(_ context.Context, responses []live.ToolResponse) error {
	if len(responses) == 0 {
		return nil
	}
	out := make([]*genai.FunctionResponse, 0, len(responses))
	for _, resp := range responses {
		out = append(out, &genai.FunctionResponse{
			ID:       resp.ID,
			Name:     resp.Name,
			Response: map[string]any{"result": resp.Result},
		})
	}
	return r.session.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: out})
}

// Receive skips messages that carry nothing for the session, such as setup
// acknowledgements and usage reports.
func (r *liveRemote) Receive(ctx context.Context) (live.ServerEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return live.ServerEvent{}, err
		}
		msg, err := r.session.Receive()
		if err != nil {
			if r.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return live.ServerEvent{}, io.EOF
			}
			return live.ServerEvent{}, fmt.Errorf("receive live message: %w", err)
		}
		if msg.GoAway != nil {
			r.logger.Info("live session going away", zap.Any("time_left", msg.GoAway.TimeLeft))
		}
		if ev, ok := translate(msg); ok {
			return ev, nil
		}
	}
}

func (r *liveRemote) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.closeErr = r.session.Close()
		if errors.Is(r.closeErr, websocket.ErrCloseSent) {
			r.closeErr = nil
		}
	})
	return r.closeErr
}

// translate maps one Live API message onto a ServerEvent. ok is false when
// the message carries nothing the session acts on.
func translate(msg *genai.LiveServerMessage) (live.ServerEvent, bool) {
	var ev live.ServerEvent
	if msg == nil {
		return ev, false
	}
	if sc := msg.ServerContent; sc != nil {
		ev.Interrupted = sc.Interrupted
		ev.TurnComplete = sc.TurnComplete
		if sc.InputTranscription != nil {
			ev.InputTranscript = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			ev.OutputTranscript = sc.OutputTranscription.Text
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
					continue
				}
				if !strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
					continue
				}
				ev.Audio = append(ev.Audio, part.InlineData.Data)
			}
		}
	}
	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			ev.ToolCalls = append(ev.ToolCalls, live.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	ok := ev.Interrupted || ev.TurnComplete || ev.InputTranscript != "" || ev.OutputTranscript != "" ||
		len(ev.Audio) > 0 || len(ev.ToolCalls) > 0
	return ev, ok
}

// toolDeclarations exposes the session tools as function declarations with
// string parameters.
func toolDeclarations(specs []live.ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		params := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(spec.Params)),
		}
		for _, p := range spec.Params {
			params.Properties[p.Name] = &genai.Schema{
				Type:        genai.TypeString,
				Description: p.Description,
				Enum:        p.Enum,
			}
			if p.Required {
				params.Required = append(params.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  params,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
