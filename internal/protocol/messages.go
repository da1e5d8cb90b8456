// Package protocol defines the message contract of the live transcription channel.
// Field names follow the camelCase JSON envelopes exchanged with the live service.
package protocol

// Blob is an inline media payload. Data is base64 text.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is one element of model content
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Content is a sequence of parts produced by the model
type Content struct {
	Parts []*Part `json:"parts,omitempty"`
}

// Transcription is an incremental speech-to-text fragment
type Transcription struct {
	Text string `json:"text"`
}

// ServerContent carries model output and turn signals
type ServerContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
}

// FunctionCall is one tool invocation requested by the model
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolCall groups the function calls of one server message
type ToolCall struct {
	FunctionCalls []*FunctionCall `json:"functionCalls"`
}

// SetupComplete confirms the service accepted the session setup
type SetupComplete struct{}

// ServerMessage is one inbound message. Every field is optional and
// evaluated independently.
type ServerMessage struct {
	SetupComplete *SetupComplete `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	ToolCall      *ToolCall      `json:"toolCall,omitempty"`
}

// AudioData returns the base64 audio chunk carried in the first model part, if any
func (m *ServerMessage) AudioData() (string, bool) {
	if m == nil || m.ServerContent == nil || m.ServerContent.ModelTurn == nil {
		return "", false
	}
	parts := m.ServerContent.ModelTurn.Parts
	if len(parts) == 0 || parts[0] == nil || parts[0].InlineData == nil {
		return "", false
	}
	return parts[0].InlineData.Data, parts[0].InlineData.Data != ""
}

// InputText returns the user speech fragment, if any
func (m *ServerMessage) InputText() (string, bool) {
	if m == nil || m.ServerContent == nil || m.ServerContent.InputTranscription == nil {
		return "", false
	}
	return m.ServerContent.InputTranscription.Text, true
}

// OutputText returns the model speech fragment, if any
func (m *ServerMessage) OutputText() (string, bool) {
	if m == nil || m.ServerContent == nil || m.ServerContent.OutputTranscription == nil {
		return "", false
	}
	return m.ServerContent.OutputTranscription.Text, true
}

// RealtimeInput is an outbound media frame
type RealtimeInput struct {
	Media Blob `json:"media"`
}

// FunctionResponse answers one FunctionCall, correlated by ID
type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// ToolResponse is an outbound tool result
type ToolResponse struct {
	FunctionResponses FunctionResponse `json:"functionResponses"`
}

// ClientMessage is the outbound envelope used by JSON transports.
// Exactly one field is set.
type ClientMessage struct {
	Setup         *SetupMessage  `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *ToolResponse  `json:"toolResponse,omitempty"`
}

// SetupMessage opens a relay session
type SetupMessage struct {
	Model             string                `json:"model"`
	Voice             string                `json:"voice,omitempty"`
	SystemInstruction string                `json:"systemInstruction,omitempty"`
	InputSampleRate   int                   `json:"inputSampleRate"`
	Tools             []FunctionDeclaration `json:"tools,omitempty"`
}

// FunctionDeclaration describes a tool the model may call
type FunctionDeclaration struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Parameters  map[string]Property `json:"parameters,omitempty"`
	Required    []string            `json:"required,omitempty"`
}

// Property describes one string-typed tool argument
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}
