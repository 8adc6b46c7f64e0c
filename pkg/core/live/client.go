package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/antron/pkg/core"
)

// StreamClientOptions tunes a StreamClient.
type StreamClientOptions struct {
	ConnectTimeout time.Duration
	EventBuffer    int
	Logger         *slog.Logger
}

// StreamClient owns one streaming connection to the remote model.
//
// Send is fire-and-forget: inputs issued before the connection opens are
// queued and flushed in order once it does. Writes are serialized on a
// single goroutine. Inbound traffic is delivered on Events as typed
// events, with ClosedEvent last. There is no automatic reconnect.
type StreamClient struct {
	transport Transport
	cfg       ConnectConfig
	timeout   time.Duration
	logger    *slog.Logger

	events chan Event
	wake   chan struct{}
	quit   chan struct{}

	mu            sync.Mutex
	stream        Stream
	pending       []RealtimeInput
	started       bool
	opened        bool
	closed        bool
	cancelConnect context.CancelFunc

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewStreamClient(transport Transport, cfg ConnectConfig, opts StreamClientOptions) *StreamClient {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &StreamClient{
		transport: transport,
		cfg:       cfg,
		timeout:   opts.ConnectTimeout,
		logger:    opts.Logger,
		events:    make(chan Event, opts.EventBuffer),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
}

// Events returns the inbound event channel. It is closed after the
// final event. Events emitted after Close may be dropped.
func (c *StreamClient) Events() <-chan Event {
	return c.events
}

// Open starts connecting in the background. It is a no-op after the
// first call or after Close.
func (c *StreamClient) Open(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	connectCtx, cancel := context.WithTimeout(ctx, c.timeout)
	c.cancelConnect = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(connectCtx, cancel)
}

// Send queues an input for delivery. Inputs sent after Close are dropped.
func (c *StreamClient) Send(in RealtimeInput) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, in)
	opened := c.opened
	c.mu.Unlock()

	if opened {
		c.signal()
	}
}

// Pending returns the number of inputs not yet handed to the stream.
func (c *StreamClient) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close tears down the connection and waits for the client's goroutines.
// It is safe to call more than once.
func (c *StreamClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.pending = nil
		stream := c.stream
		cancel := c.cancelConnect
		started := c.started
		c.mu.Unlock()

		close(c.quit)
		if cancel != nil {
			cancel()
		}
		if stream != nil {
			err = stream.Close()
		}
		if !started {
			close(c.events)
		}
	})
	c.wg.Wait()
	return err
}

type connectResult struct {
	stream Stream
	err    error
}

func (c *StreamClient) run(ctx context.Context, cancel context.CancelFunc) {
	defer c.wg.Done()
	defer close(c.events)

	stream, err := c.connect(ctx)
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if c.isClosed() {
			c.emit(&ClosedEvent{})
			return
		}
		msg := "connect failed"
		if timedOut {
			msg = "connect timed out"
		}
		c.emit(&ClosedEvent{Err: core.NewTransportError(msg, err)})
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = stream.Close()
		c.emit(&ClosedEvent{})
		return
	}
	c.stream = stream
	c.opened = true
	queued := len(c.pending)
	c.mu.Unlock()

	c.logger.Debug("live stream opened", "model", c.cfg.Model, "queued_inputs", queued)
	c.emit(&OpenedEvent{})

	c.wg.Add(1)
	go c.writeLoop(stream)
	c.signal()

	c.readLoop(stream)
}

// connect enforces the timeout even if the transport ignores ctx.
func (c *StreamClient) connect(ctx context.Context) (Stream, error) {
	ch := make(chan connectResult, 1)
	go func() {
		stream, err := c.transport.Connect(ctx, c.cfg)
		ch <- connectResult{stream: stream, err: err}
	}()

	select {
	case res := <-ch:
		if res.err == nil && res.stream == nil {
			return nil, errors.New("transport returned no stream")
		}
		return res.stream, res.err
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.stream != nil {
				_ = res.stream.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (c *StreamClient) readLoop(stream Stream) {
	for {
		msg, err := stream.Receive()
		if err != nil {
			if c.isClosed() || errors.Is(err, io.EOF) {
				c.emit(&ClosedEvent{})
				return
			}
			c.emit(&ClosedEvent{Err: core.NewTransportError("stream receive failed", err)})
			return
		}

		for _, blob := range msg.Audio {
			if len(blob.Data) == 0 {
				continue
			}
			if !c.emit(&AudioEvent{Data: blob.Data, MIMEType: blob.MIMEType}) {
				return
			}
		}
		if msg.Interrupted {
			if !c.emit(&InterruptedEvent{}) {
				return
			}
		}
		if msg.TurnComplete {
			if !c.emit(&TurnCompleteEvent{}) {
				return
			}
		}
	}
}

func (c *StreamClient) writeLoop(stream Stream) {
	defer c.wg.Done()
	for {
		select {
		case <-c.quit:
			return
		case <-c.wake:
		}

		c.mu.Lock()
		batch := c.pending
		c.pending = nil
		c.mu.Unlock()

		for _, in := range batch {
			if c.isClosed() {
				return
			}
			if err := stream.Send(in); err != nil {
				c.logger.Debug("live stream send failed", "error", err)
			}
		}
	}
}

func (c *StreamClient) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *StreamClient) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.quit:
		return false
	}
}

func (c *StreamClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
