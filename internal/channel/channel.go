// Package channel connects a live session to the remote inference service.
package channel

import (
	"context"
	"errors"

	"github.com/lexiqai/voice-companion/internal/protocol"
)

var (
	// ErrClosed is returned by sends after the channel was closed
	ErrClosed = errors.New("channel closed")
	// ErrQueueFull is returned when the outbound audio queue is saturated
	ErrQueueFull = errors.New("channel outbound queue full")
)

// Handlers receive channel lifecycle events. They are called from the
// channel's goroutines. Exactly one of OnError or OnClose is called per
// connection unless the owner closes it first, in which case neither is.
type Handlers struct {
	OnOpen    func()
	OnMessage func(msg *protocol.ServerMessage)
	OnError   func(err error)
	OnClose   func()
}

// Channel is an open bidirectional streaming connection. Sends never block.
type Channel interface {
	SendRealtimeInput(input protocol.RealtimeInput) error
	SendToolResponse(resp protocol.ToolResponse) error
	Close() error
}

// Setup configures the remote session
type Setup struct {
	Model             string
	Voice             string
	SystemInstruction string
	InputSampleRate   int
	Tools             []protocol.FunctionDeclaration
}

// Dialer opens channels. Connect returns immediately; the connection is
// established in the background and reported through Handlers.OnOpen.
type Dialer interface {
	Connect(ctx context.Context, setup Setup, handlers Handlers) (Channel, error)
}
