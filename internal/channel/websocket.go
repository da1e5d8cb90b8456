package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/protocol"
	"github.com/lexiqai/voice-companion/internal/resilience"
)

const wsWriteTimeout = 5 * time.Second

// WebSocketDialer connects to a relay that speaks the JSON message envelopes
// of the live service over a websocket.
type WebSocketDialer struct {
	url       string
	header    http.Header
	queueSize int
	retry     *resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
	dialer    *websocket.Dialer
	logger    zerolog.Logger
}

// NewWebSocketDialer creates a dialer for the relay at url
func NewWebSocketDialer(url string, queueSize int, retry *resilience.RetryConfig, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *WebSocketDialer {
	return &WebSocketDialer{
		url:       url,
		header:    http.Header{},
		queueSize: queueSize,
		retry:     retry,
		breaker:   breaker,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "ws_channel").Logger(),
	}
}

// Connect starts dialing in the background and returns the channel immediately
func (d *WebSocketDialer) Connect(ctx context.Context, setup Setup, handlers Handlers) (Channel, error) {
	l := &wsLink{
		dialer: d,
		setup:  setup,
	}
	c := newQueuedChannel(ctx, l, handlers, d.queueSize, d.logger)
	c.start()
	return c, nil
}

type wsLink struct {
	dialer *WebSocketDialer
	setup  Setup

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (l *wsLink) open(ctx context.Context) error {
	d := l.dialer

	var conn *websocket.Conn
	err := resilience.Retry(ctx, func(ctx context.Context) error {
		return d.breaker.Call(func() error {
			c, resp, err := d.dialer.DialContext(ctx, d.url, d.header)
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}
			if err != nil {
				return err
			}
			conn = c
			return nil
		})
	}, d.retry, resilience.IsRetryableNetworkError)
	if err != nil {
		return fmt.Errorf("dial live relay: %w", err)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	l.conn = conn
	l.mu.Unlock()

	if err := l.writeJSON(protocol.ClientMessage{Setup: &protocol.SetupMessage{
		Model:             l.setup.Model,
		Voice:             l.setup.Voice,
		SystemInstruction: l.setup.SystemInstruction,
		InputSampleRate:   l.setup.InputSampleRate,
		Tools:             l.setup.Tools,
	}}); err != nil {
		return fmt.Errorf("send setup: %w", err)
	}

	// Nothing is delivered to the session before the relay confirms setup
	for {
		msg, err := l.read(ctx)
		if err != nil {
			return fmt.Errorf("await setup: %w", err)
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

func (l *wsLink) writeJSON(msg protocol.ClientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := l.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l *wsLink) writeRealtime(_ context.Context, input protocol.RealtimeInput) error {
	return l.writeJSON(protocol.ClientMessage{RealtimeInput: &input})
}

func (l *wsLink) writeToolResponse(_ context.Context, resp protocol.ToolResponse) error {
	return l.writeJSON(protocol.ClientMessage{ToolResponse: &resp})
}

func (l *wsLink) read(_ context.Context) (*protocol.ServerMessage, error) {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			return nil, err
		}

		var msg protocol.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			l.dialer.logger.Warn().Err(err).Msg("Skipping unparseable server message")
			continue
		}
		return &msg, nil
	}
}

func (l *wsLink) normalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func (l *wsLink) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.conn == nil {
		return nil
	}

	_ = l.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return l.conn.Close()
}
