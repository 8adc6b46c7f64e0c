package bridge

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"sync"

	"github.com/vango-go/antron/pkg/core"
	"github.com/vango-go/antron/pkg/core/live"
)

var errNoFrame = errors.New("no camera frame yet")

// Acquire hands out tracks fed by the socket. It fails once the bridge
// is shutting down.
func (b *Bridge) Acquire(ctx context.Context, c live.Constraints) (*live.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.ctx.Err() != nil {
		return nil, core.NewDeviceError("client disconnected", errClosed)
	}

	stream := &live.MediaStream{}
	b.mu.Lock()
	if c.Audio {
		b.mic = newMicTrack(b.cfg.MaxPendingSamples)
		stream.Audio = b.mic
	}
	if c.Video {
		b.camera = &cameraTrack{}
		stream.Video = b.camera
	}
	b.mu.Unlock()
	return stream, nil
}

type micTrack struct {
	mu         sync.Mutex
	cond       *sync.Cond
	pending    []float32
	maxPending int
	stopped    bool
}

func newMicTrack(maxPending int) *micTrack {
	t := &micTrack{maxPending: maxPending}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// push appends samples, dropping the oldest beyond maxPending.
func (t *micTrack) push(samples []float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.pending = append(t.pending, samples...)
	if over := len(t.pending) - t.maxPending; t.maxPending > 0 && over > 0 {
		t.pending = append(t.pending[:0], t.pending[over:]...)
	}
	t.cond.Broadcast()
}

func (t *micTrack) Read(p []float32) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.pending) == 0 && !t.stopped {
		t.cond.Wait()
	}
	if t.stopped {
		return 0, io.EOF
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *micTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.pending = nil
	t.mu.Unlock()
	t.cond.Broadcast()
}

type cameraTrack struct {
	mu      sync.Mutex
	latest  image.Image
	stopped bool
}

func (t *cameraTrack) push(data []byte) error {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	t.mu.Lock()
	if !t.stopped {
		t.latest = img
	}
	t.mu.Unlock()
	return nil
}

func (t *cameraTrack) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest == nil {
		return false
	}
	b := t.latest.Bounds()
	return b.Dx() > 0 && b.Dy() > 0
}

func (t *cameraTrack) Snapshot() (image.Image, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest == nil {
		return nil, errNoFrame
	}
	return t.latest, nil
}

func (t *cameraTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.latest = nil
	t.mu.Unlock()
}
