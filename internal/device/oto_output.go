package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/audio"
)

// oto allows a single context per process, so it is created on first use and
// shared by every session. Its rate is fixed by the first open.
var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoRate    int
	otoErr     error
)

func sharedOtoContext(sampleRate int) (*oto.Context, int, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoContext = ctx
		otoRate = sampleRate
	})
	return otoContext, otoRate, otoErr
}

// OtoOutput opens speaker playback through oto
type OtoOutput struct {
	deviceRate int // 0 means run the device at the stream rate
	logger     zerolog.Logger
}

// NewOtoOutput creates a playback opener. deviceRate overrides the speaker rate
// when the hardware cannot run at the stream's output rate.
func NewOtoOutput(deviceRate int, logger zerolog.Logger) *OtoOutput {
	return &OtoOutput{
		deviceRate: deviceRate,
		logger:     logger.With().Str("component", "oto_output").Logger(),
	}
}

// OpenPlayback starts a player fed by a fresh timeline
func (o *OtoOutput) OpenPlayback(ctx context.Context, sampleRate int) (Playback, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rate := o.deviceRate
	if rate <= 0 {
		rate = sampleRate
	}
	otoCtx, rate, err := sharedOtoContext(rate)
	if err != nil {
		return nil, fmt.Errorf("%w: speaker: %v", ErrDeviceUnavailable, err)
	}

	timeline := NewTimeline(rate)
	player := otoCtx.NewPlayer(timeline)
	player.Play()

	o.logger.Info().
		Int("stream_rate", sampleRate).
		Int("device_rate", rate).
		Msg("Speaker playback opened")

	return &otoPlayback{
		timeline:   timeline,
		player:     player,
		streamRate: sampleRate,
	}, nil
}

type otoPlayback struct {
	timeline   *Timeline
	player     *oto.Player
	streamRate int
	closeOnce  sync.Once
}

func (p *otoPlayback) CurrentTime() float64 {
	return p.timeline.CurrentTime()
}

func (p *otoPlayback) Schedule(samples []float32, at float64, onEnded func()) (Voice, error) {
	samples = audio.Resample(samples, p.streamRate, p.timeline.SampleRate())
	return p.timeline.Schedule(samples, at, onEnded)
}

func (p *otoPlayback) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.player.Pause()
		p.timeline.Close()
		err = p.player.Close()
	})
	return err
}
