package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_companion_active_sessions",
		Help: "Number of live voice sessions currently open",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_companion_sessions_total",
		Help: "Total number of live sessions by outcome",
	}, []string{"outcome"}) // outcome: stopped, closed, replaced, shutdown, channel_error, device_error, start_error

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_companion_session_duration_seconds",
		Help:    "Duration of live sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	// Capture metrics
	framesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_companion_frames_sent_total",
		Help: "Total number of encoded microphone frames handed to the channel",
	})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_companion_frames_dropped_total",
		Help: "Total number of microphone frames dropped because the send queue was full",
	})

	// Playback metrics
	playbackScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_companion_playback_buffers_total",
		Help: "Total number of audio buffers scheduled for playback",
	})

	decodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_companion_decode_failures_total",
		Help: "Total number of inbound audio chunks dropped because they could not be decoded",
	})

	interruptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_companion_interruptions_total",
		Help: "Total number of playback interruptions",
	}, []string{"source"}) // source: server, local, mute

	// Tool metrics
	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_companion_tool_calls_total",
		Help: "Total number of tool calls received",
	}, []string{"tool", "status"}) // status: ok, unknown, send_failed

	// Transcript metrics
	transcriptTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_companion_transcript_turns_total",
		Help: "Total number of finalized transcript turns",
	}, []string{"speaker"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_companion_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_companion_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_companion_audio_bytes_total",
		Help: "Total PCM audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// SessionMetrics tracks metrics for a single live session
type SessionMetrics struct {
	sessionID string
	startTime time.Time
	started   bool
	ended     bool
	mu        sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordStart records that the session channel opened
func (m *SessionMetrics) RecordStart() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true
	m.startTime = time.Now()
	activeSessions.Inc()
}

// RecordEnd records the end of a session. Only the first call counts.
func (m *SessionMetrics) RecordEnd(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ended {
		return
	}
	m.ended = true
	sessionsTotal.WithLabelValues(outcome).Inc()

	if m.started {
		activeSessions.Dec()
		sessionDuration.Observe(time.Since(m.startTime).Seconds())
	}
}

// RecordFrameSent records an encoded frame handed to the channel
func (m *SessionMetrics) RecordFrameSent(pcmBytes int) {
	framesSent.Inc()
	audioBytesProcessed.WithLabelValues("out").Add(float64(pcmBytes))
}

// RecordFrameDropped records a frame the channel refused
func (m *SessionMetrics) RecordFrameDropped() {
	framesDropped.Inc()
}

// RecordPlaybackScheduled records a buffer scheduled for playback
func (m *SessionMetrics) RecordPlaybackScheduled(pcmBytes int) {
	playbackScheduled.Inc()
	audioBytesProcessed.WithLabelValues("in").Add(float64(pcmBytes))
}

// RecordDecodeFailure records an inbound chunk that was dropped
func (m *SessionMetrics) RecordDecodeFailure() {
	decodeFailures.Inc()
}

// RecordInterruption records a playback interruption
func (m *SessionMetrics) RecordInterruption(source string) {
	interruptions.WithLabelValues(source).Inc()
}

// RecordToolCall records a tool call outcome
func (m *SessionMetrics) RecordToolCall(tool, status string) {
	toolCalls.WithLabelValues(tool, status).Inc()
}

// RecordTurnFinalized records a finalized transcript turn
func (m *SessionMetrics) RecordTurnFinalized(speaker string) {
	transcriptTurns.WithLabelValues(speaker).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
