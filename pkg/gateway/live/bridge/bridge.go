// Package bridge turns a /v1/live WebSocket into the devices and the
// speaker of a live session. The browser captures microphone and camera
// and plays the audio it is sent; the server keeps the output clock.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/antron/pkg/core/live"
	"github.com/vango-go/antron/pkg/gateway/live/protocol"
)

var errClosed = errors.New("live bridge closed")

// Conn is the subset of *websocket.Conn the bridge drives.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Config struct {
	MaxAudioFrameBytes int
	PingInterval       time.Duration
	WriteTimeout       time.Duration
	OutboundQueueSize  int
	// MaxPendingSamples caps microphone audio buffered ahead of the reader.
	MaxPendingSamples int
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.OutboundQueueSize <= 0 {
		c.OutboundQueueSize = 256
	}
	if c.MaxPendingSamples <= 0 {
		c.MaxPendingSamples = 2 * live.InputSampleRateHz
	}
	return c
}

// Bridge owns one WebSocket for the lifetime of a live connection.
type Bridge struct {
	conn   Conn
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	priority   chan []byte
	normal     chan []byte
	writerDone chan struct{}
	closeOnce  sync.Once

	mu     sync.Mutex
	mic    *micTrack
	camera *cameraTrack
}

func New(conn Conn, cfg Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		conn:       conn,
		cfg:        cfg,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		priority:   make(chan []byte, 32),
		normal:     make(chan []byte, cfg.OutboundQueueSize),
		writerDone: make(chan struct{}),
	}
	go func() {
		defer close(b.writerDone)
		if err := b.writeLoop(); err != nil {
			b.logger.Debug("live writer stopped", "error", err)
			b.cancel()
			_ = b.conn.Close()
		}
	}()
	return b
}

// Run reads client frames until the client stops, the socket closes, or
// Shutdown is called. A clean close returns nil.
func (b *Bridge) Run() error {
	readTimeout := 3 * b.cfg.PingInterval
	_ = b.conn.SetReadDeadline(time.Now().Add(readTimeout))
	b.conn.SetPongHandler(func(string) error {
		return b.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		messageType, data, err := b.conn.ReadMessage()
		if err != nil {
			if b.ctx.Err() != nil || errors.Is(err, io.EOF) ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		_ = b.conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch messageType {
		case websocket.BinaryMessage:
			samples, err := protocol.DecodeAudioFrame(data, b.cfg.MaxAudioFrameBytes)
			if err != nil {
				b.sendDecodeError(err)
				continue
			}
			if mic := b.currentMic(); mic != nil {
				mic.push(samples)
			}
		case websocket.TextMessage:
			msg, err := protocol.DecodeClientMessage(data)
			if err != nil {
				b.sendDecodeError(err)
				continue
			}
			switch m := msg.(type) {
			case protocol.ClientStop:
				return nil
			case protocol.ClientVideoFrame:
				jpegData, err := m.Bytes()
				if err != nil {
					b.sendDecodeError(err)
					continue
				}
				if cam := b.currentCamera(); cam != nil {
					if err := cam.push(jpegData); err != nil {
						_ = b.SendError(protocol.CodeBadRequest, "video_frame is not a decodable jpeg")
					}
				}
			}
		}
	}
}

func (b *Bridge) sendDecodeError(err error) {
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		_ = b.SendError(de.Code, de.Error())
		return
	}
	_ = b.SendError(protocol.CodeBadRequest, err.Error())
}

// SendState publishes a session snapshot.
func (b *Bridge) SendState(s live.LiveState) {
	if err := b.enqueue(protocol.StateFrom(s), true); err != nil {
		b.logger.Debug("drop live state", "status", s.Status, "error", err)
	}
}

func (b *Bridge) SendError(code, message string) error {
	return b.enqueue(protocol.ErrorFrom(code, message), true)
}

// Shutdown asks the bridge to stop without waiting. Safe from any
// goroutine, including session callbacks.
func (b *Bridge) Shutdown() {
	b.cancel()
}

// Done is closed once Shutdown has been requested.
func (b *Bridge) Done() <-chan struct{} {
	return b.ctx.Done()
}

// Close stops capture, flushes pending control frames and closes the
// socket. It blocks until the writer exits.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.cancel()
		b.mu.Lock()
		mic, cam := b.mic, b.camera
		b.mu.Unlock()
		if mic != nil {
			mic.Stop()
		}
		if cam != nil {
			cam.Stop()
		}
		<-b.writerDone
		_ = b.conn.Close()
	})
}

func (b *Bridge) enqueue(frame any, priority bool) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if b.ctx.Err() != nil {
		return errClosed
	}
	ch := b.normal
	if priority {
		ch = b.priority
	}
	select {
	case ch <- data:
		return nil
	case <-b.ctx.Done():
		return errClosed
	}
}

func (b *Bridge) writeLoop() error {
	ping := time.NewTicker(b.cfg.PingInterval)
	defer ping.Stop()

	for {
		// Control frames always go ahead of queued audio.
		select {
		case data := <-b.priority:
			if err := b.write(data); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-b.ctx.Done():
			b.flushPriority()
			_ = b.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(b.cfg.WriteTimeout))
			_ = b.conn.Close()
			return nil
		case <-ping.C:
			if err := b.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(b.cfg.WriteTimeout)); err != nil {
				return err
			}
		case data := <-b.priority:
			if err := b.write(data); err != nil {
				return err
			}
		case data := <-b.normal:
			if err := b.write(data); err != nil {
				return err
			}
		}
	}
}

func (b *Bridge) flushPriority() {
	deadline := time.Now().Add(100 * time.Millisecond)
	for i := 0; i < 8 && time.Now().Before(deadline); i++ {
		select {
		case data := <-b.priority:
			if err := b.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (b *Bridge) write(data []byte) error {
	_ = b.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

func (b *Bridge) currentMic() *micTrack {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mic
}

func (b *Bridge) currentCamera() *cameraTrack {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.camera
}
