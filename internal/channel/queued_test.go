package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/protocol"
)

var errNormalClose = errors.New("remote closed")

// fakeLink records writes and serves reads from a channel
type fakeLink struct {
	openGate chan struct{}
	openErr  error
	inbound  chan *protocol.ServerMessage
	readErr  chan error

	mu      sync.Mutex
	writes  []string
	closes  int
	written chan struct{}
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		openGate: make(chan struct{}),
		inbound:  make(chan *protocol.ServerMessage, 8),
		readErr:  make(chan error, 1),
		written:  make(chan struct{}, 32),
	}
}

func (l *fakeLink) open(ctx context.Context) error {
	select {
	case <-l.openGate:
		return l.openErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *fakeLink) record(s string) {
	l.mu.Lock()
	l.writes = append(l.writes, s)
	l.mu.Unlock()
	l.written <- struct{}{}
}

func (l *fakeLink) writeRealtime(_ context.Context, input protocol.RealtimeInput) error {
	l.record("audio:" + input.Media.Data)
	return nil
}

func (l *fakeLink) writeToolResponse(_ context.Context, resp protocol.ToolResponse) error {
	l.record("tool:" + resp.FunctionResponses.ID)
	return nil
}

func (l *fakeLink) read(ctx context.Context) (*protocol.ServerMessage, error) {
	select {
	case msg := <-l.inbound:
		return msg, nil
	case err := <-l.readErr:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *fakeLink) normalClose(err error) bool {
	return errors.Is(err, errNormalClose)
}

func (l *fakeLink) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes++
	return nil
}

func (l *fakeLink) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.writes...)
}

type events struct {
	open     chan struct{}
	messages chan *protocol.ServerMessage
	errs     chan error
	closes   chan struct{}
}

func newEvents() (*events, Handlers) {
	ev := &events{
		open:     make(chan struct{}, 4),
		messages: make(chan *protocol.ServerMessage, 8),
		errs:     make(chan error, 4),
		closes:   make(chan struct{}, 4),
	}
	return ev, Handlers{
		OnOpen:    func() { ev.open <- struct{}{} },
		OnMessage: func(m *protocol.ServerMessage) { ev.messages <- m },
		OnError:   func(err error) { ev.errs <- err },
		OnClose:   func() { ev.closes <- struct{}{} },
	}
}

func waitFor[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func audioInput(data string) protocol.RealtimeInput {
	return protocol.RealtimeInput{Media: protocol.Blob{MIMEType: "audio/pcm;rate=16000", Data: data}}
}

func toolResponse(id string) protocol.ToolResponse {
	return protocol.ToolResponse{FunctionResponses: protocol.FunctionResponse{ID: id, Name: "makePhoneCall"}}
}

func TestQueuedChannel_QueuesUntilOpenAndPrioritizesTools(t *testing.T) {
	link := newFakeLink()
	ev, handlers := newEvents()
	c := newQueuedChannel(context.Background(), link, handlers, 8, zerolog.Nop())
	c.start()
	defer c.Close()

	if err := c.SendRealtimeInput(audioInput("a1")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	c.SendRealtimeInput(audioInput("a2"))
	c.SendToolResponse(toolResponse("t1"))

	close(link.openGate)
	waitFor(t, ev.open, "open")
	for i := 0; i < 3; i++ {
		waitFor(t, link.written, "write")
	}

	writes := link.snapshot()
	expected := []string{"tool:t1", "audio:a1", "audio:a2"}
	for i := range expected {
		if writes[i] != expected[i] {
			t.Errorf("Write %d: expected %s, got %s", i, expected[i], writes[i])
		}
	}
}

func TestQueuedChannel_QueueFull(t *testing.T) {
	link := newFakeLink()
	_, handlers := newEvents()
	c := newQueuedChannel(context.Background(), link, handlers, 1, zerolog.Nop())
	c.start()
	defer c.Close()

	if err := c.SendRealtimeInput(audioInput("a1")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := c.SendRealtimeInput(audioInput("a2")); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	if err := c.SendToolResponse(toolResponse("t1")); err != nil {
		t.Errorf("Expected tool response to use its own queue, got %v", err)
	}
}

func TestQueuedChannel_DeliversMessages(t *testing.T) {
	link := newFakeLink()
	ev, handlers := newEvents()
	c := newQueuedChannel(context.Background(), link, handlers, 8, zerolog.Nop())
	c.start()
	defer c.Close()

	close(link.openGate)
	waitFor(t, ev.open, "open")

	link.inbound <- &protocol.ServerMessage{ServerContent: &protocol.ServerContent{TurnComplete: true}}
	msg := waitFor(t, ev.messages, "message")
	if !msg.ServerContent.TurnComplete {
		t.Error("Expected turnComplete message")
	}
}

func TestQueuedChannel_RemoteCloseReportsOnce(t *testing.T) {
	link := newFakeLink()
	ev, handlers := newEvents()
	c := newQueuedChannel(context.Background(), link, handlers, 8, zerolog.Nop())
	c.start()

	close(link.openGate)
	waitFor(t, ev.open, "open")

	link.readErr <- errNormalClose
	waitFor(t, ev.closes, "close")
	c.wait()

	if len(ev.errs) != 0 {
		t.Errorf("Expected no error callback, got %d", len(ev.errs))
	}
	if err := c.SendRealtimeInput(audioInput("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after remote close, got %v", err)
	}
	c.Close()
	if len(ev.closes) != 0 {
		t.Error("Expected Close not to report again")
	}
}

func TestQueuedChannel_ReadErrorReportsError(t *testing.T) {
	link := newFakeLink()
	ev, handlers := newEvents()
	c := newQueuedChannel(context.Background(), link, handlers, 8, zerolog.Nop())
	c.start()

	close(link.openGate)
	waitFor(t, ev.open, "open")

	link.readErr <- errors.New("connection reset")
	err := waitFor(t, ev.errs, "error")
	if err == nil || err.Error() != "connection reset" {
		t.Errorf("Expected connection reset, got %v", err)
	}
	c.wait()

	if len(ev.closes) != 0 {
		t.Error("Expected no close callback after error")
	}
}

func TestQueuedChannel_OpenFailure(t *testing.T) {
	link := newFakeLink()
	link.openErr = errors.New("handshake failed")
	ev, handlers := newEvents()
	c := newQueuedChannel(context.Background(), link, handlers, 8, zerolog.Nop())
	c.start()

	close(link.openGate)
	waitFor(t, ev.errs, "error")
	c.wait()

	if len(ev.open) != 0 {
		t.Error("Expected no open callback")
	}
}

func TestQueuedChannel_CloseIsSilent(t *testing.T) {
	link := newFakeLink()
	ev, handlers := newEvents()
	c := newQueuedChannel(context.Background(), link, handlers, 8, zerolog.Nop())
	c.start()

	close(link.openGate)
	waitFor(t, ev.open, "open")

	c.Close()
	c.Close()
	c.wait()

	if len(ev.errs) != 0 || len(ev.closes) != 0 {
		t.Errorf("Expected no terminal callbacks, got %d errors and %d closes", len(ev.errs), len(ev.closes))
	}
	if link.closes != 1 {
		t.Errorf("Expected link closed once, got %d", link.closes)
	}
	if err := c.SendToolResponse(toolResponse("t1")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestQueuedChannel_CloseBeforeOpen(t *testing.T) {
	link := newFakeLink()
	ev, handlers := newEvents()
	c := newQueuedChannel(context.Background(), link, handlers, 8, zerolog.Nop())
	c.start()

	c.Close()
	c.wait()

	if len(ev.open) != 0 || len(ev.errs) != 0 || len(ev.closes) != 0 {
		t.Error("Expected no callbacks when closed while connecting")
	}
}
