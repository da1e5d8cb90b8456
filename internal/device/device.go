// Package device provides the microphone and speaker collaborators of a live session.
package device

import (
	"context"
	"errors"
)

// ErrDeviceUnavailable is returned when an audio device cannot be acquired
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// CaptureOpener acquires a microphone for one session
type CaptureOpener interface {
	// OpenCapture starts a mono input stream. onFrame receives exactly
	// frameSize samples per call, from the device's own goroutine.
	OpenCapture(ctx context.Context, sampleRate, frameSize int, onFrame func(frame []float32)) (Capture, error)
}

// Capture is an acquired, running microphone stream
type Capture interface {
	Close() error
}

// PlaybackOpener acquires the speaker output for one session
type PlaybackOpener interface {
	OpenPlayback(ctx context.Context, sampleRate int) (Playback, error)
}

// Playback is an output timeline on which buffers are started at absolute times
type Playback interface {
	// CurrentTime returns the output clock in seconds since the playback was opened
	CurrentTime() float64
	// Schedule starts samples at output time at. onEnded fires once, from the
	// device goroutine, when the voice finishes naturally. It never fires for a
	// voice that was stopped.
	Schedule(samples []float32, at float64, onEnded func()) (Voice, error)
	Close() error
}

// Voice is one scheduled buffer on a Playback
type Voice interface {
	Stop()
}
