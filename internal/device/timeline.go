package device

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"

	"github.com/lexiqai/voice-companion/internal/audio"
)

// ErrTimelineClosed is returned when scheduling on a closed timeline
var ErrTimelineClosed = errors.New("playback timeline closed")

// Timeline mixes scheduled voices into a PCM16LE mono stream.
// The number of samples read so far is the output clock.
type Timeline struct {
	sampleRate int
	position   int64 // samples handed to the device
	voices     map[*timelineVoice]struct{}
	closed     bool
	mu         sync.Mutex
}

type timelineVoice struct {
	timeline *Timeline
	start    int64
	samples  []float32
	onEnded  func()
}

// NewTimeline creates a timeline running at sampleRate
func NewTimeline(sampleRate int) *Timeline {
	return &Timeline{
		sampleRate: sampleRate,
		voices:     make(map[*timelineVoice]struct{}),
	}
}

// SampleRate returns the rate the timeline renders at
func (t *Timeline) SampleRate() int {
	return t.sampleRate
}

// CurrentTime returns the output clock in seconds
func (t *Timeline) CurrentTime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.position) / float64(t.sampleRate)
}

// Schedule adds a voice starting at output time at. Samples must already be
// at the timeline's rate. A start time in the past plays immediately.
func (t *Timeline) Schedule(samples []float32, at float64, onEnded func()) (Voice, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTimelineClosed
	}

	start := int64(math.Round(at * float64(t.sampleRate)))
	if start < t.position {
		start = t.position
	}
	v := &timelineVoice{
		timeline: t,
		start:    start,
		samples:  samples,
		onEnded:  onEnded,
	}
	t.voices[v] = struct{}{}
	return v, nil
}

// Stop removes the voice without firing onEnded
func (v *timelineVoice) Stop() {
	v.timeline.mu.Lock()
	delete(v.timeline.voices, v)
	v.timeline.mu.Unlock()
}

// Read renders the next len(p)/2 samples. It always fills whole samples and
// returns silence when nothing is scheduled.
func (t *Timeline) Read(p []byte) (int, error) {
	n := len(p) / 2

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.EOF
	}

	from := t.position
	to := from + int64(n)
	mix := make([]float32, n)
	var ended []func()

	for v := range t.voices {
		end := v.start + int64(len(v.samples))
		lo := max(v.start, from)
		hi := min(end, to)
		for pos := lo; pos < hi; pos++ {
			mix[pos-from] += v.samples[pos-v.start]
		}
		if end <= to {
			delete(t.voices, v)
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
		}
	}
	t.position = to
	t.mu.Unlock()

	for i, sample := range audio.FloatToInt16(mix) {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(sample))
	}

	for _, fn := range ended {
		fn()
	}
	return n * 2, nil
}

// Active returns the number of voices still scheduled
func (t *Timeline) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.voices)
}

// Close stops every voice and ends the stream
func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.voices = make(map[*timelineVoice]struct{})
	return nil
}
