package channel

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/lexiqai/voice-companion/internal/protocol"
)

// liveSession is the subset of *genai.Session the channel drives
type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type connectFunc func(ctx context.Context, model string, config *genai.LiveConnectConfig) (liveSession, error)

// GenAIDialer connects to the Gemini Live API
type GenAIDialer struct {
	connect   connectFunc
	queueSize int
	logger    zerolog.Logger
}

// NewGenAIDialer creates a dialer using the Gemini API backend
func NewGenAIDialer(ctx context.Context, apiKey string, queueSize int, logger zerolog.Logger) (*GenAIDialer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	connect := func(ctx context.Context, model string, config *genai.LiveConnectConfig) (liveSession, error) {
		session, err := client.Live.Connect(ctx, model, config)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	return newGenAIDialer(connect, queueSize, logger), nil
}

func newGenAIDialer(connect connectFunc, queueSize int, logger zerolog.Logger) *GenAIDialer {
	return &GenAIDialer{
		connect:   connect,
		queueSize: queueSize,
		logger:    logger.With().Str("component", "genai_channel").Logger(),
	}
}

// Connect starts the live session in the background and returns the channel immediately
func (d *GenAIDialer) Connect(ctx context.Context, setup Setup, handlers Handlers) (Channel, error) {
	l := &genaiLink{
		connect: d.connect,
		setup:   setup,
	}
	c := newQueuedChannel(ctx, l, handlers, d.queueSize, d.logger)
	c.start()
	return c, nil
}

// LiveConnectConfig maps a session setup onto the Gemini Live configuration:
// audio responses in the configured voice, transcription of both directions,
// and the host's tools.
func LiveConnectConfig(setup Setup) *genai.LiveConnectConfig {
	config := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}

	if setup.Voice != "" {
		config.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: setup.Voice},
			},
		}
	}
	if setup.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: setup.SystemInstruction}},
		}
	}

	if len(setup.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(setup.Tools))
		for _, t := range setup.Tools {
			decls = append(decls, functionDeclaration(t))
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return config
}

func functionDeclaration(decl protocol.FunctionDeclaration) *genai.FunctionDeclaration {
	props := make(map[string]*genai.Schema, len(decl.Parameters))
	for name, p := range decl.Parameters {
		props[name] = &genai.Schema{
			Type:        schemaType(p.Type),
			Description: p.Description,
		}
	}
	return &genai.FunctionDeclaration{
		Name:        decl.Name,
		Description: decl.Description,
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   decl.Required,
		},
	}
}

func schemaType(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	}
	return genai.TypeString
}

type genaiLink struct {
	connect connectFunc
	setup   Setup

	mu      sync.Mutex
	session liveSession
	closed  bool
}

func (l *genaiLink) open(ctx context.Context) error {
	session, err := l.connect(ctx, l.setup.Model, LiveConnectConfig(l.setup))
	if err != nil {
		return fmt.Errorf("connect live session: %w", err)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		session.Close()
		return ErrClosed
	}
	l.session = session
	l.mu.Unlock()

	for {
		msg, err := session.Receive()
		if err != nil {
			return fmt.Errorf("await setup: %w", err)
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

func (l *genaiLink) writeRealtime(_ context.Context, input protocol.RealtimeInput) error {
	data, err := base64.StdEncoding.DecodeString(input.Media.Data)
	if err != nil {
		return fmt.Errorf("decode outbound audio: %w", err)
	}
	return l.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{
			MIMEType: input.Media.MIMEType,
			Data:     data,
		},
	})
}

func (l *genaiLink) writeToolResponse(_ context.Context, resp protocol.ToolResponse) error {
	fr := resp.FunctionResponses
	return l.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{{
			ID:       fr.ID,
			Name:     fr.Name,
			Response: fr.Response,
		}},
	})
}

func (l *genaiLink) read(_ context.Context) (*protocol.ServerMessage, error) {
	msg, err := l.session.Receive()
	if err != nil {
		return nil, err
	}
	return convertServerMessage(msg), nil
}

func (l *genaiLink) normalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, context.Canceled)
}

func (l *genaiLink) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.session == nil {
		return nil
	}
	return l.session.Close()
}

// convertServerMessage maps a Gemini Live message onto the channel contract.
// Inline audio is re-encoded as base64 text.
func convertServerMessage(msg *genai.LiveServerMessage) *protocol.ServerMessage {
	out := &protocol.ServerMessage{}
	if msg == nil {
		return out
	}

	if msg.SetupComplete != nil {
		out.SetupComplete = &protocol.SetupComplete{}
	}

	if sc := msg.ServerContent; sc != nil {
		content := &protocol.ServerContent{
			TurnComplete: sc.TurnComplete,
			Interrupted:  sc.Interrupted,
		}
		if sc.InputTranscription != nil {
			content.InputTranscription = &protocol.Transcription{Text: sc.InputTranscription.Text}
		}
		if sc.OutputTranscription != nil {
			content.OutputTranscription = &protocol.Transcription{Text: sc.OutputTranscription.Text}
		}
		if sc.ModelTurn != nil {
			turn := &protocol.Content{}
			for _, p := range sc.ModelTurn.Parts {
				if p == nil {
					continue
				}
				part := &protocol.Part{Text: p.Text}
				if p.InlineData != nil {
					part.InlineData = &protocol.Blob{
						MIMEType: p.InlineData.MIMEType,
						Data:     base64.StdEncoding.EncodeToString(p.InlineData.Data),
					}
				}
				turn.Parts = append(turn.Parts, part)
			}
			content.ModelTurn = turn
		}
		out.ServerContent = content
	}

	if tc := msg.ToolCall; tc != nil {
		calls := make([]*protocol.FunctionCall, 0, len(tc.FunctionCalls))
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			calls = append(calls, &protocol.FunctionCall{
				ID:   fc.ID,
				Name: fc.Name,
				Args: fc.Args,
			})
		}
		out.ToolCall = &protocol.ToolCall{FunctionCalls: calls}
	}

	return out
}
