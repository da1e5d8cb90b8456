package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/audio"
)

// MalgoCapture opens the default microphone through miniaudio
type MalgoCapture struct {
	logger zerolog.Logger
}

// NewMalgoCapture creates a capture opener
func NewMalgoCapture(logger zerolog.Logger) *MalgoCapture {
	return &MalgoCapture{
		logger: logger.With().Str("component", "malgo_capture").Logger(),
	}
}

// OpenCapture initializes a capture context and device for one session.
// Both are released by the returned Capture's Close.
func (m *MalgoCapture) OpenCapture(ctx context.Context, sampleRate, frameSize int, onFrame func(frame []float32)) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init capture context: %v", ErrDeviceUnavailable, err)
	}

	framer := audio.NewFramer(frameSize, onFrame)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, frameCount uint32) {
			samples := make([]float32, frameCount)
			for i := range samples {
				bits := binary.LittleEndian.Uint32(pInputSamples[i*4:])
				samples[i] = math.Float32frombits(bits)
			}
			framer.Write(samples)
		},
	}

	dev, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, fmt.Errorf("%w: init microphone: %v", ErrDeviceUnavailable, err)
	}

	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, fmt.Errorf("%w: start microphone: %v", ErrDeviceUnavailable, err)
	}

	m.logger.Info().
		Int("sample_rate", sampleRate).
		Int("frame_size", frameSize).
		Msg("Microphone capture started")

	return &malgoStream{
		ctx:    malgoCtx,
		device: dev,
		framer: framer,
	}, nil
}

type malgoStream struct {
	ctx       *malgo.AllocatedContext
	device    *malgo.Device
	framer    *audio.Framer
	closeOnce sync.Once
}

// Close stops the device before releasing the context so no callback
// runs against freed memory.
func (s *malgoStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if stopErr := s.device.Stop(); stopErr != nil {
			err = fmt.Errorf("stop microphone: %w", stopErr)
		}
		s.device.Uninit()
		s.framer.Reset()
		if uninitErr := s.ctx.Uninit(); uninitErr != nil && err == nil {
			err = fmt.Errorf("release capture context: %w", uninitErr)
		}
		s.ctx.Free()
	})
	return err
}
