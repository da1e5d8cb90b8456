package audio

import (
	"sync"
)

// Framer slices an arbitrary stream of samples into fixed-size frames.
// Capture devices deliver periods of whatever size the backend picks;
// the channel expects frames of exactly the configured size.
type Framer struct {
	frameSize int
	pending   []float32
	emit      func(frame []float32)
	mu        sync.Mutex
}

// NewFramer creates a framer that calls emit with each complete frame.
// Each emitted frame is a fresh slice owned by the receiver.
func NewFramer(frameSize int, emit func(frame []float32)) *Framer {
	return &Framer{
		frameSize: frameSize,
		pending:   make([]float32, 0, frameSize),
		emit:      emit,
	}
}

// Write appends samples and emits every frame that becomes complete
func (f *Framer) Write(samples []float32) int {
	f.mu.Lock()
	var ready [][]float32
	for len(samples) > 0 {
		space := f.frameSize - len(f.pending)
		n := len(samples)
		if n > space {
			n = space
		}
		f.pending = append(f.pending, samples[:n]...)
		samples = samples[n:]

		if len(f.pending) == f.frameSize {
			ready = append(ready, f.pending)
			f.pending = make([]float32, 0, f.frameSize)
		}
	}
	f.mu.Unlock()

	for _, frame := range ready {
		f.emit(frame)
	}
	return len(ready)
}

// Buffered returns the number of samples waiting for a full frame
func (f *Framer) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Reset drops any partial frame
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = f.pending[:0]
}
