package ffmpeg

import (
	"bufio"
	"errors"
	"io"
	"sync"

	"github.com/vango-go/antron/pkg/core/live"
)

// MicTrack reads mono float32 samples from an ffmpeg capture process.
type MicTrack struct {
	r    io.Reader
	stop func()

	mu      sync.Mutex
	buf     []byte
	stopped bool
}

func newMicTrack(r io.Reader, stop func()) *MicTrack {
	return &MicTrack{r: bufio.NewReaderSize(r, 64*1024), stop: stop}
}

// Read fills p with whole samples. It returns io.EOF after Stop or when
// the capture process exits.
func (m *MicTrack) Read(p []float32) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	need := len(p) * 4
	if cap(m.buf) < need {
		m.buf = make([]byte, need)
	}
	buf := m.buf[:need]

	// Block for at least one sample; a sample never straddles two reads.
	n, err := io.ReadAtLeast(m.r, buf, 4)
	if err == nil && n%4 != 0 {
		var rest int
		rest, err = io.ReadFull(m.r, buf[n:n+4-n%4])
		n += rest
	}
	samples := live.DecodeFloat32LE(buf[:n])
	copy(p, samples)

	if err != nil {
		if m.isStopped() || errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		if len(samples) > 0 {
			return len(samples), nil
		}
		return 0, err
	}
	return len(samples), nil
}

func (m *MicTrack) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Stop terminates capture and unblocks Read.
func (m *MicTrack) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()
	if m.stop != nil {
		m.stop()
	}
}
