// Package engine runs the live voice session: it owns the microphone, the
// channel to the live service, playback and transcripts, and tears all of
// them down on stop, close or error.
package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/audio"
	"github.com/lexiqai/voice-companion/internal/channel"
	"github.com/lexiqai/voice-companion/internal/config"
	"github.com/lexiqai/voice-companion/internal/device"
	"github.com/lexiqai/voice-companion/internal/observability"
	"github.com/lexiqai/voice-companion/internal/playback"
	"github.com/lexiqai/voice-companion/internal/protocol"
	"github.com/lexiqai/voice-companion/internal/tools"
	"github.com/lexiqai/voice-companion/internal/transcript"
)

const eventQueueSize = 256

// Callbacks deliver session output to the host. They run on the controller
// loop and must not call Start or Stop.
type Callbacks struct {
	OnTranscript func(update transcript.Update)
	OnNotice     func(notice Notice)
	OnState      func(state State)
}

// Deps are the collaborators of the controller
type Deps struct {
	Dialer      channel.Dialer
	Capture     device.CaptureOpener
	Playback    device.PlaybackOpener
	Tools       *tools.Router
	Instruction string
	Callbacks   Callbacks
	Logger      zerolog.Logger
}

// Controller owns at most one live session. All session state is mutated on
// a single loop goroutine started by Run; the public methods post requests to it.
type Controller struct {
	cfg    *config.Config
	deps   Deps
	logger zerolog.Logger

	events  chan event
	done    chan struct{}
	running atomic.Bool
	state   atomic.Value // State

	// Loop-owned
	runCtx  context.Context
	session *Session
	muted   bool
}

// New creates a controller. Run must be called before Start.
func New(cfg *config.Config, deps Deps) *Controller {
	c := &Controller{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With().Str("component", "engine").Logger(),
		events: make(chan event, eventQueueSize),
		done:   make(chan struct{}),
	}
	c.state.Store(StateIdle)
	return c
}

// Run processes events until ctx is cancelled, then tears down any session
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("live controller already running")
	}
	defer close(c.done)

	c.runCtx = ctx
	c.logger.Info().Msg("Live controller started")

	for {
		select {
		case <-ctx.Done():
			if c.session != nil {
				c.teardown(c.session, outcomeShutdown, StateClosed)
			}
			c.logger.Info().Msg("Live controller stopped")
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// Start begins a new live session, tearing down any active one first.
// It returns once the channel is connecting; OnState reports when it opens.
func (c *Controller) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	if !c.post(ctx, startRequest{reply: reply}) {
		return ErrControllerClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop tears the active session down and returns when it is released.
// Stopping without an active session does nothing.
func (c *Controller) Stop() {
	reply := make(chan struct{})
	if !c.post(context.Background(), stopRequest{reply: reply}) {
		return
	}
	select {
	case <-reply:
	case <-c.done:
	}
}

// SetOutputMuted silences model audio. Muting interrupts current playback;
// transcripts keep flowing.
func (c *Controller) SetOutputMuted(muted bool) {
	c.post(context.Background(), muteRequest{muted: muted})
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	return c.state.Load().(State)
}

// Ready reports the state for the readiness endpoint. The controller is
// ready while its loop runs.
func (c *Controller) Ready() (string, bool) {
	select {
	case <-c.done:
		return string(c.State()), false
	default:
	}
	return string(c.State()), c.running.Load()
}

// post hands an event to the loop. It gives up if the loop has exited or ctx ends.
func (c *Controller) post(ctx context.Context, ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// postFrom hands a session event to the loop. It gives up once the session
// is torn down so device and channel goroutines never block on a dead session.
func (c *Controller) postFrom(s *Session, ev event) {
	c.post(s.ctx, ev)
}

func (c *Controller) setState(state State) {
	if c.State() == state {
		return
	}
	c.state.Store(state)
	c.logger.Info().Str("state", string(state)).Msg("Live session state changed")
	if c.deps.Callbacks.OnState != nil {
		c.deps.Callbacks.OnState(state)
	}
}

func (c *Controller) notify(kind NoticeKind, text string, err error) {
	if c.deps.Callbacks.OnNotice != nil {
		c.deps.Callbacks.OnNotice(Notice{Kind: kind, Message: text, Err: err})
	}
}

// current reports whether s is the live session. Events from older sessions are dropped.
func (c *Controller) current(s *Session) bool {
	return s != nil && s == c.session
}

func (c *Controller) handle(ev event) {
	switch e := ev.(type) {
	case startRequest:
		e.reply <- c.startSession()

	case stopRequest:
		if c.session != nil {
			c.teardown(c.session, outcomeStopped, StateClosed)
		}
		close(e.reply)

	case muteRequest:
		c.setMuted(e.muted)

	case channelOpened:
		if c.current(e.session) {
			c.handleOpen(e.session)
		}

	case channelMessage:
		if c.current(e.session) {
			c.handleMessage(e.session, e.msg)
		}

	case channelFailed:
		if c.current(e.session) {
			e.session.logger.Error().Err(e.err).Msg("Live channel failed")
			c.notify(NoticeChannelError, channelErrorText, e.err)
			c.teardown(e.session, outcomeChannelError, StateErrored)
		}

	case channelClosed:
		if c.current(e.session) {
			c.teardown(e.session, outcomeClosed, StateClosed)
		}

	case captureFrame:
		if c.current(e.session) && c.State() == StateOpen {
			c.handleFrame(e.session, e.frame)
		}

	case playbackEnded:
		if c.current(e.session) && e.session.scheduler != nil {
			e.session.scheduler.Complete(e.id)
		}
	}
}

// startSession acquires the output device and starts connecting the channel.
// The microphone is acquired once the channel confirms it is open.
func (c *Controller) startSession() error {
	if c.session != nil {
		c.teardown(c.session, outcomeReplaced, StateClosed)
	}

	id := observability.NewSessionID()
	ctx, cancel := context.WithCancel(c.runCtx)
	s := &Session{
		id:         id,
		ctx:        ctx,
		cancel:     cancel,
		logger:     observability.WithSessionID(c.deps.Logger, id),
		metrics:    observability.NewSessionMetrics(id),
		startedAt:  time.Now(),
		inputRate:  c.cfg.InputSampleRate,
		frameSize:  c.cfg.InputFrameSize,
		outputRate: c.cfg.OutputSampleRate,
	}
	s.encoder = audio.NewFrameEncoder(s.inputRate)
	s.transcripts = transcript.NewAggregator(func(u transcript.Update) {
		c.emitTranscript(s, u)
	}, s.logger)
	if c.cfg.LocalBargeIn {
		s.vad = audio.NewVADDetector(&audio.VADConfig{
			EnergyThreshold: c.cfg.VADEnergyThreshold,
			SilenceFrames:   c.cfg.VADSilenceFrames,
		})
	}

	c.session = s
	s.metrics.RecordStart()
	c.setState(StateConnecting)
	s.logger.Info().
		Int("input_rate", s.inputRate).
		Int("frame_size", s.frameSize).
		Int("output_rate", s.outputRate).
		Msg("Starting live session")

	output, err := c.deps.Playback.OpenPlayback(ctx, s.outputRate)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to open speaker")
		c.notify(NoticeDeviceFailure, deviceFailureText, err)
		c.teardown(s, outcomeDeviceError, StateErrored)
		return err
	}
	s.output = output
	s.scheduler = playback.NewScheduler(output, s.outputRate, func(id playback.HandleID) {
		c.postFrom(s, playbackEnded{session: s, id: id})
	}, s.logger)

	setup := channel.Setup{
		Model:             c.cfg.LiveModel,
		Voice:             c.cfg.LiveVoice,
		SystemInstruction: c.deps.Instruction,
		InputSampleRate:   s.inputRate,
	}
	if c.deps.Tools != nil {
		setup.Tools = c.deps.Tools.Declarations()
	}

	ch, err := c.deps.Dialer.Connect(ctx, setup, channel.Handlers{
		OnOpen:    func() { c.postFrom(s, channelOpened{session: s}) },
		OnMessage: func(msg *protocol.ServerMessage) { c.postFrom(s, channelMessage{session: s, msg: msg}) },
		OnError:   func(err error) { c.postFrom(s, channelFailed{session: s, err: err}) },
		OnClose:   func() { c.postFrom(s, channelClosed{session: s}) },
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to start live channel")
		c.notify(NoticeStartFailure, startFailureText, err)
		c.teardown(s, outcomeStartError, StateErrored)
		return err
	}
	s.channel = ch
	return nil
}

func (c *Controller) handleOpen(s *Session) {
	if c.State() != StateConnecting {
		return
	}
	c.setState(StateOpen)

	capture, err := c.deps.Capture.OpenCapture(s.ctx, s.inputRate, s.frameSize, func(frame []float32) {
		c.postFrom(s, captureFrame{session: s, frame: frame})
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to acquire microphone")
		c.notify(NoticeDeviceFailure, deviceFailureText, err)
		c.teardown(s, outcomeDeviceError, StateErrored)
		return
	}
	s.capture = capture
	s.logger.Info().Msg("Live session open, streaming microphone")
}

func (c *Controller) handleFrame(s *Session, frame []float32) {
	if s.vad != nil {
		res := s.vad.ProcessFrame(audio.FloatToInt16(frame))
		if res.SpeechStarted && s.scheduler != nil && s.scheduler.Active() > 0 {
			s.scheduler.Interrupt()
			s.metrics.RecordInterruption("local")
			s.logger.Info().Msg("User speech detected, interrupting playback")
		}
	}
	s.sendFrame(frame)
}

// handleMessage applies one inbound message. Fields are evaluated
// independently: tool calls, audio, transcripts, turn completion, interruption.
func (c *Controller) handleMessage(s *Session, msg *protocol.ServerMessage) {
	if msg.ToolCall != nil {
		for _, call := range msg.ToolCall.FunctionCalls {
			c.handleToolCall(s, call)
		}
	}

	if data, ok := msg.AudioData(); ok {
		c.handleAudio(s, data)
	}

	if text, ok := msg.InputText(); ok {
		s.transcripts.Append(transcript.SpeakerUser, text)
	}
	if text, ok := msg.OutputText(); ok {
		s.transcripts.Append(transcript.SpeakerModel, text)
	}

	content := msg.ServerContent
	if content == nil {
		return
	}
	if content.TurnComplete {
		s.transcripts.Finalize(transcript.SpeakerUser)
		s.transcripts.Finalize(transcript.SpeakerModel)
	}
	if content.Interrupted {
		stopped := s.scheduler.Interrupt()
		s.transcripts.Discard(transcript.SpeakerModel)
		s.metrics.RecordInterruption("server")
		s.logger.Info().Int("stopped", stopped).Msg("Model interrupted")
	}
}

func (c *Controller) handleAudio(s *Session, data string) {
	if c.muted {
		return
	}

	scheduled, err := s.scheduler.Enqueue(data)
	if err != nil {
		if errors.Is(err, audio.ErrMalformedAudio) {
			s.metrics.RecordDecodeFailure()
		}
		s.logger.Warn().Err(err).Msg("Dropping inbound audio chunk")
		return
	}
	s.metrics.RecordPlaybackScheduled(int(scheduled.Duration*float64(s.outputRate)) * 2)
}

func (c *Controller) handleToolCall(s *Session, call *protocol.FunctionCall) {
	if call == nil || c.deps.Tools == nil {
		return
	}

	resp, ok := c.deps.Tools.Handle(call)
	if !ok {
		s.metrics.RecordToolCall(call.Name, "unknown")
		return
	}

	if err := s.channel.SendToolResponse(protocol.ToolResponse{FunctionResponses: *resp}); err != nil {
		s.metrics.RecordToolCall(call.Name, "send_failed")
		s.logger.Warn().Err(err).Str("call_id", call.ID).Msg("Failed to queue tool response")
		return
	}
	s.metrics.RecordToolCall(call.Name, "ok")
}

func (c *Controller) setMuted(muted bool) {
	if c.muted == muted {
		return
	}
	c.muted = muted
	c.logger.Info().Bool("muted", muted).Msg("Output mute changed")

	s := c.session
	if muted && s != nil && s.scheduler != nil && s.scheduler.Active() > 0 {
		s.scheduler.Interrupt()
		s.metrics.RecordInterruption("mute")
	}
}

func (c *Controller) emitTranscript(s *Session, u transcript.Update) {
	if u.Final {
		s.metrics.RecordTurnFinalized(string(u.Speaker))
	}
	if c.deps.Callbacks.OnTranscript != nil {
		c.deps.Callbacks.OnTranscript(u)
	}
}

// teardown releases s and leaves the controller without a session in the
// given final state. Safe to call for a session already released.
func (c *Controller) teardown(s *Session, outcome string, final State) {
	if s == nil {
		return
	}
	s.release()
	s.metrics.RecordEnd(outcome)
	s.logger.Info().
		Str("outcome", outcome).
		Dur("duration", time.Since(s.startedAt)).
		Msg("Live session ended")

	if c.session == s {
		c.session = nil
		c.setState(final)
	}
}
