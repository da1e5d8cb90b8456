package playback

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/audio"
	"github.com/lexiqai/voice-companion/internal/device"
)

// HandleID identifies one scheduled buffer within a scheduler
type HandleID uint64

// Scheduled describes a buffer that was placed on the output timeline
type Scheduled struct {
	ID       HandleID
	Start    float64
	Duration float64
}

// Scheduler places decoded buffers back-to-back on an output timeline and
// tracks every buffer still playing. It is owned by the session event loop
// and is not safe for concurrent use.
type Scheduler struct {
	output     device.Playback
	sampleRate int
	clock      float64
	active     map[HandleID]device.Voice
	nextID     HandleID
	onEnded    func(HandleID)
	logger     zerolog.Logger
}

// NewScheduler creates a scheduler for chunks at sampleRate.
// onEnded is called from the device goroutine when a buffer finishes naturally;
// the owner must route it back to Complete on its own loop.
func NewScheduler(output device.Playback, sampleRate int, onEnded func(HandleID), logger zerolog.Logger) *Scheduler {
	if onEnded == nil {
		onEnded = func(HandleID) {}
	}
	return &Scheduler{
		output:     output,
		sampleRate: sampleRate,
		active:     make(map[HandleID]device.Voice),
		onEnded:    onEnded,
		logger:     logger.With().Str("component", "playback").Logger(),
	}
}

// Enqueue decodes a base64 PCM16 chunk and schedules it at
// max(now, clock). A malformed chunk is rejected without touching the clock.
func (s *Scheduler) Enqueue(data string) (Scheduled, error) {
	buf, err := audio.DecodePCM16(data, s.sampleRate)
	if err != nil {
		return Scheduled{}, err
	}
	return s.Schedule(buf)
}

// Schedule places an already decoded buffer on the timeline
func (s *Scheduler) Schedule(buf *audio.Buffer) (Scheduled, error) {
	start := max(s.output.CurrentTime(), s.clock)
	duration := buf.Duration()

	s.nextID++
	id := s.nextID
	voice, err := s.output.Schedule(buf.Samples, start, func() { s.onEnded(id) })
	if err != nil {
		return Scheduled{}, fmt.Errorf("schedule buffer: %w", err)
	}

	s.active[id] = voice
	s.clock = start + duration

	return Scheduled{ID: id, Start: start, Duration: duration}, nil
}

// Complete removes a naturally finished buffer from the active set.
// Returns false if the handle was already removed by an interruption.
func (s *Scheduler) Complete(id HandleID) bool {
	if _, ok := s.active[id]; !ok {
		return false
	}
	delete(s.active, id)
	return true
}

// Interrupt stops every active buffer, clears the set and resets the clock.
// Returns the number of buffers stopped.
func (s *Scheduler) Interrupt() int {
	stopped := len(s.active)
	for id, voice := range s.active {
		voice.Stop()
		delete(s.active, id)
	}
	s.clock = 0

	if stopped > 0 {
		s.logger.Debug().Int("stopped", stopped).Msg("Playback interrupted")
	}
	return stopped
}

// Active returns the number of buffers scheduled or playing
func (s *Scheduler) Active() int {
	return len(s.active)
}

// Clock returns the next free slot on the output timeline in seconds
func (s *Scheduler) Clock() float64 {
	return s.clock
}
