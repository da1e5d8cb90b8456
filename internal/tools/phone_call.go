package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/protocol"
)

const (
	// PhoneCallToolName is the function name the model calls to place a call
	PhoneCallToolName = "makePhoneCall"
	phoneNumberArg    = "phoneNumber"
	missingNumberText = "No phone number was provided."
)

// Dialer places a phone call through the host platform. Dial must return
// promptly; the call itself proceeds in the background.
type Dialer interface {
	Dial(ctx context.Context, number string)
}

// PhoneCallTool asks the host dialer to call a number
type PhoneCallTool struct {
	dialer Dialer
	ctx    context.Context
	logger zerolog.Logger
}

// NewPhoneCallTool creates the makePhoneCall tool. ctx bounds background dial work.
func NewPhoneCallTool(ctx context.Context, dialer Dialer, logger zerolog.Logger) *PhoneCallTool {
	return &PhoneCallTool{
		dialer: dialer,
		ctx:    ctx,
		logger: logger.With().Str("tool", PhoneCallToolName).Logger(),
	}
}

func (p *PhoneCallTool) Declaration() protocol.FunctionDeclaration {
	return protocol.FunctionDeclaration{
		Name:        PhoneCallToolName,
		Description: "Initiates a phone call to a specified phone number. Use this when the user asks to call someone.",
		Parameters: map[string]protocol.Property{
			phoneNumberArg: {
				Type:        "string",
				Description: "The phone number to call, including area code.",
			},
		},
		Required: []string{phoneNumberArg},
	}
}

func (p *PhoneCallTool) Invoke(call *protocol.FunctionCall) map[string]any {
	number, _ := call.Args[phoneNumberArg].(string)
	number = strings.TrimSpace(number)
	if number == "" {
		p.logger.Warn().Str("call_id", call.ID).Msg("Phone call requested without a number")
		return map[string]any{"result": missingNumberText}
	}

	p.dialer.Dial(p.ctx, number)

	return map[string]any{"result": fmt.Sprintf("Calling %s...", number)}
}

// LogDialer records dial requests as tel: URIs when no platform dialer is configured
type LogDialer struct {
	logger zerolog.Logger
}

// NewLogDialer creates a dialer that only logs
func NewLogDialer(logger zerolog.Logger) *LogDialer {
	return &LogDialer{logger: logger.With().Str("component", "log_dialer").Logger()}
}

func (d *LogDialer) Dial(_ context.Context, number string) {
	d.logger.Info().Str("uri", "tel:"+number).Msg("Dial requested")
}
