package engine

import (
	"errors"
)

// ErrControllerClosed is returned when the controller's loop is not running
var ErrControllerClosed = errors.New("live controller is not running")

// State is the lifecycle state of the live session
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
	StateErrored    State = "errored"
)

// Active reports whether a session holds resources in this state
func (s State) Active() bool {
	return s == StateConnecting || s == StateOpen
}

// NoticeKind classifies a user-facing notice
type NoticeKind string

const (
	NoticeDeviceFailure NoticeKind = "device_failure"
	NoticeChannelError  NoticeKind = "channel_error"
	NoticeStartFailure  NoticeKind = "start_failure"
)

// User-facing notice texts
const (
	deviceFailureText = "Microphone unavailable. Check that a microphone is connected and access is allowed, then try again."
	channelErrorText  = "Connection error: The live service is temporarily unavailable. Please try again or type your message."
	startFailureText  = "Could not start voice mode."
)

// Notice is a message for the user about a session that ended abnormally
type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
}

// Session outcomes recorded in metrics
const (
	outcomeStopped      = "stopped"
	outcomeClosed       = "closed"
	outcomeReplaced     = "replaced"
	outcomeShutdown     = "shutdown"
	outcomeChannelError = "channel_error"
	outcomeDeviceError  = "device_error"
	outcomeStartError   = "start_error"
)
