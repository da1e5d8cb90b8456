package engine

import (
	"github.com/lexiqai/voice-companion/internal/playback"
	"github.com/lexiqai/voice-companion/internal/protocol"
)

// event is anything the controller loop processes. Events raised by a
// session carry it so the loop can drop those that outlive it.
type event interface{}

type startRequest struct {
	reply chan error
}

type stopRequest struct {
	reply chan struct{}
}

type muteRequest struct {
	muted bool
}

type channelOpened struct {
	session *Session
}

type channelMessage struct {
	session *Session
	msg     *protocol.ServerMessage
}

type channelFailed struct {
	session *Session
	err     error
}

type channelClosed struct {
	session *Session
}

type captureFrame struct {
	session *Session
	frame   []float32
}

type playbackEnded struct {
	session *Session
	id      playback.HandleID
}
