package channel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/protocol"
)

// toolQueueSize bounds pending tool responses. They are rare and small.
const toolQueueSize = 16

// link is one transport's view of a live connection
type link interface {
	// open dials, sends the setup and waits for the service to confirm it
	open(ctx context.Context) error
	writeRealtime(ctx context.Context, input protocol.RealtimeInput) error
	writeToolResponse(ctx context.Context, resp protocol.ToolResponse) error
	read(ctx context.Context) (*protocol.ServerMessage, error)
	// normalClose reports whether a read error is an orderly close by the peer
	normalClose(err error) bool
	close() error
}

// queuedChannel runs a link: one goroutine opens it and then reads, one
// writer drains the outbound queues. Tool responses always go before audio.
type queuedChannel struct {
	link     link
	handlers Handlers
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	audio chan protocol.RealtimeInput
	tools chan protocol.ToolResponse

	closed    atomic.Bool
	terminal  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newQueuedChannel(ctx context.Context, l link, handlers Handlers, queueSize int, logger zerolog.Logger) *queuedChannel {
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &queuedChannel{
		link:     l,
		handlers: handlers,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		audio:    make(chan protocol.RealtimeInput, queueSize),
		tools:    make(chan protocol.ToolResponse, toolQueueSize),
	}
}

// start opens the link in the background
func (c *queuedChannel) start() {
	c.wg.Add(1)
	go c.run()
}

func (c *queuedChannel) run() {
	defer c.wg.Done()

	if err := c.link.open(c.ctx); err != nil {
		c.fail(err)
		return
	}
	if c.closed.Load() {
		return
	}

	c.logger.Info().Msg("Live channel open")
	if c.handlers.OnOpen != nil {
		c.handlers.OnOpen()
	}

	c.wg.Add(1)
	go c.writeLoop()

	c.readLoop()
}

func (c *queuedChannel) readLoop() {
	for {
		msg, err := c.link.read(c.ctx)
		if err != nil {
			if c.link.normalClose(err) {
				c.finish()
			} else {
				c.fail(err)
			}
			return
		}
		if c.closed.Load() {
			return
		}
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(msg)
		}
	}
}

func (c *queuedChannel) writeLoop() {
	defer c.wg.Done()

	for {
		// Hard priority: drain tool responses before any audio frame.
		select {
		case resp := <-c.tools:
			if err := c.link.writeToolResponse(c.ctx, resp); err != nil {
				c.fail(err)
				return
			}
			continue
		default:
		}

		select {
		case <-c.ctx.Done():
			return
		case resp := <-c.tools:
			if err := c.link.writeToolResponse(c.ctx, resp); err != nil {
				c.fail(err)
				return
			}
		case input := <-c.audio:
			if err := c.link.writeRealtime(c.ctx, input); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

// fail reports a transport error once, unless the owner already closed the channel
func (c *queuedChannel) fail(err error) {
	c.terminate(func() {
		c.logger.Error().Err(err).Msg("Live channel error")
		if c.handlers.OnError != nil {
			c.handlers.OnError(err)
		}
	})
}

// finish reports an orderly remote close once
func (c *queuedChannel) finish() {
	c.terminate(func() {
		c.logger.Info().Msg("Live channel closed by remote")
		if c.handlers.OnClose != nil {
			c.handlers.OnClose()
		}
	})
}

func (c *queuedChannel) terminate(report func()) {
	c.terminal.Do(func() {
		if c.closed.Swap(true) {
			return
		}
		c.cancel()
		_ = c.link.close()
		report()
	})
}

func (c *queuedChannel) SendRealtimeInput(input protocol.RealtimeInput) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case c.audio <- input:
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *queuedChannel) SendToolResponse(resp protocol.ToolResponse) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case c.tools <- resp:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close tears the connection down without reporting OnError or OnClose.
// It does not wait for in-flight callbacks, which may still be running.
func (c *queuedChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.terminal.Do(func() {})
		c.cancel()
		err = c.link.close()
	})
	return err
}

// wait blocks until the reader and writer goroutines exit
func (c *queuedChannel) wait() {
	c.wg.Wait()
}
