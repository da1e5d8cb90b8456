// Package tools routes tool calls from the live service to host actions.
package tools

import (
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/protocol"
)

// Tool is one host capability the model can invoke
type Tool interface {
	Declaration() protocol.FunctionDeclaration
	// Invoke performs the action and returns the response payload.
	// It must not block on the action's completion.
	Invoke(call *protocol.FunctionCall) map[string]any
}

// Router dispatches function calls by name
type Router struct {
	tools  map[string]Tool
	order  []string
	logger zerolog.Logger
}

// NewRouter creates a router over the given tools
func NewRouter(logger zerolog.Logger, tools ...Tool) *Router {
	r := &Router{
		tools:  make(map[string]Tool),
		logger: logger.With().Str("component", "tools").Logger(),
	}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool, replacing any tool with the same name
func (r *Router) Register(t Tool) {
	name := t.Declaration().Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Declarations returns the declarations of every registered tool in registration order
func (r *Router) Declarations() []protocol.FunctionDeclaration {
	decls := make([]protocol.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.tools[name].Declaration())
	}
	return decls
}

// Handle runs the named tool and returns its response correlated by call ID.
// Unknown tools are logged and produce no response.
func (r *Router) Handle(call *protocol.FunctionCall) (*protocol.FunctionResponse, bool) {
	if call == nil {
		return nil, false
	}

	tool, ok := r.tools[call.Name]
	if !ok {
		r.logger.Warn().
			Str("tool", call.Name).
			Str("call_id", call.ID).
			Msg("Ignoring call to unknown tool")
		return nil, false
	}

	r.logger.Info().
		Str("tool", call.Name).
		Str("call_id", call.ID).
		Msg("Invoking tool")

	return &protocol.FunctionResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: tool.Invoke(call),
	}, true
}
