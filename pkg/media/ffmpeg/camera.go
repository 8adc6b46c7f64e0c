package ffmpeg

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"sync"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// maxFrameBytes bounds a single MJPEG frame; larger input is discarded.
const maxFrameBytes = 8 << 20

// nextJPEG extracts the first complete JPEG from buf. It returns the
// frame, the bytes following it, and whether a frame was found. Bytes
// before the first start marker are dropped.
func nextJPEG(buf []byte) (frame, rest []byte, ok bool) {
	start := bytes.Index(buf, jpegSOI)
	if start < 0 {
		// Keep a trailing 0xFF in case it begins a marker.
		if n := len(buf); n > 0 && buf[n-1] == 0xFF {
			return nil, buf[n-1:], false
		}
		return nil, nil, false
	}
	end := bytes.Index(buf[start+2:], jpegEOI)
	if end < 0 {
		return nil, buf[start:], false
	}
	end += start + 2 + len(jpegEOI)
	return buf[start:end], buf[end:], true
}

// CameraTrack decodes the MJPEG stream of a capture process and keeps the
// most recent frame.
type CameraTrack struct {
	stop   func()
	logger *slog.Logger

	mu     sync.Mutex
	latest image.Image
	err    error
	done   chan struct{}

	stopOnce sync.Once
}

func newCameraTrack(r io.Reader, stop func(), logger *slog.Logger) *CameraTrack {
	c := &CameraTrack{stop: stop, logger: logger, done: make(chan struct{})}
	go c.readLoop(r)
	return c
}

func (c *CameraTrack) readLoop(r io.Reader) {
	defer close(c.done)
	br := bufio.NewReaderSize(r, 256*1024)
	chunk := make([]byte, 64*1024)
	var pending []byte
	for {
		n, err := br.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)
			for {
				frame, rest, ok := nextJPEG(pending)
				if !ok {
					pending = append(pending[:0], rest...)
					break
				}
				c.decode(frame)
				pending = append(pending[:0], rest...)
			}
			if len(pending) > maxFrameBytes {
				c.logger.Warn("discarding oversized camera frame", "bytes", len(pending))
				pending = pending[:0]
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.setErr(err)
			}
			return
		}
	}
}

func (c *CameraTrack) decode(frame []byte) {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		c.logger.Debug("dropping undecodable camera frame", "error", err)
		return
	}
	c.mu.Lock()
	c.latest = img
	c.mu.Unlock()
}

func (c *CameraTrack) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// Ready reports whether a frame has been decoded.
func (c *CameraTrack) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest != nil && !c.latest.Bounds().Empty()
}

// Snapshot returns the most recent frame.
func (c *CameraTrack) Snapshot() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		if c.err != nil {
			return nil, c.err
		}
		return nil, fmt.Errorf("no camera frame yet")
	}
	return c.latest, nil
}

func (c *CameraTrack) Stop() {
	c.stopOnce.Do(func() {
		if c.stop != nil {
			c.stop()
		}
	})
}
