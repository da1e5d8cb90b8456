package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/audio"
	"github.com/lexiqai/voice-companion/internal/channel"
	"github.com/lexiqai/voice-companion/internal/device"
	"github.com/lexiqai/voice-companion/internal/observability"
	"github.com/lexiqai/voice-companion/internal/playback"
	"github.com/lexiqai/voice-companion/internal/protocol"
	"github.com/lexiqai/voice-companion/internal/transcript"
)

// Session holds every resource of one live conversation. Only the controller
// loop touches it; handles are set to nil once released.
type Session struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	logger    zerolog.Logger
	metrics   *observability.SessionMetrics
	startedAt time.Time

	// Fixed for the session's lifetime
	inputRate  int
	frameSize  int
	outputRate int

	channel     channel.Channel
	capture     device.Capture
	output      device.Playback
	scheduler   *playback.Scheduler
	transcripts *transcript.Aggregator
	encoder     *audio.FrameEncoder
	vad         *audio.VADDetector // nil unless local barge-in is enabled
}

// ID returns the session identifier used in logs and metrics
func (s *Session) ID() string {
	return s.id
}

// release runs every teardown step. Each step is guarded so a failing or
// panicking release does not prevent the others.
func (s *Session) release() {
	// Unblocks device and channel goroutines waiting to post to the loop
	s.cancel()

	if s.capture != nil {
		s.step("stop capture", s.capture.Close)
		s.capture = nil
	}
	if s.channel != nil {
		s.step("close channel", s.channel.Close)
		s.channel = nil
	}
	if s.scheduler != nil {
		s.step("stop playback", func() error {
			s.scheduler.Interrupt()
			return nil
		})
	}
	if s.output != nil {
		s.step("close output", s.output.Close)
		s.output = nil
	}
	if s.transcripts != nil {
		s.transcripts.Reset()
	}
	if s.vad != nil {
		s.vad.Reset()
	}
}

func (s *Session) step(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("step", name).
				Interface("panic", r).
				Msg("Teardown step panicked")
		}
	}()

	if err := fn(); err != nil {
		s.logger.Warn().Err(err).Str("step", name).Msg("Teardown step failed")
	}
}

// sendFrame encodes and queues one captured frame
func (s *Session) sendFrame(frame []float32) {
	if s.channel == nil {
		return
	}

	packet := s.encoder.Encode(frame)
	err := s.channel.SendRealtimeInput(protocol.RealtimeInput{
		Media: protocol.Blob{MIMEType: packet.MIMEType, Data: packet.Data},
	})
	switch {
	case err == nil:
		s.metrics.RecordFrameSent(packet.PCMBytes)
	case errors.Is(err, channel.ErrQueueFull):
		s.metrics.RecordFrameDropped()
		s.logger.Debug().Msg("Send queue full, dropping frame")
	case errors.Is(err, channel.ErrClosed):
		// Teardown follows from the channel's terminal callback
	default:
		s.logger.Warn().Err(err).Msg("Failed to queue frame")
	}
}
