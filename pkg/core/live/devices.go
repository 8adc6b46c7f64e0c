package live

import (
	"context"
	"image"
	"time"
)

// Constraints selects which tracks to acquire.
type Constraints struct {
	Audio bool
	Video bool
}

// MediaDevices grants access to capture hardware.
type MediaDevices interface {
	Acquire(ctx context.Context, c Constraints) (*MediaStream, error)
}

// MediaStream is the set of tracks granted by one Acquire call.
// Video is nil when no camera was requested.
type MediaStream struct {
	Audio AudioTrack
	Video VideoTrack
}

// Stop releases every track in the stream.
func (m *MediaStream) Stop() {
	if m == nil {
		return
	}
	if m.Audio != nil {
		m.Audio.Stop()
	}
	if m.Video != nil {
		m.Video.Stop()
	}
}

// AudioTrack yields mono float32 samples at InputSampleRateHz.
// Read blocks until samples are available; Stop must unblock it.
type AudioTrack interface {
	Read(p []float32) (int, error)
	Stop()
}

// VideoTrack exposes the most recent camera frame.
type VideoTrack interface {
	// Ready reports whether a frame with known dimensions is available.
	Ready() bool
	Snapshot() (image.Image, error)
	Stop()
}

// Voice is one scheduled audio buffer on an output context.
type Voice interface {
	Stop()
}

// OutputContext is the playback sink and its monotonic clock.
//
// Play schedules chunk to start at the given clock time. onEnded fires
// once the buffer finishes or is stopped, and must not be invoked
// synchronously from within Play.
type OutputContext interface {
	Now() time.Duration
	Play(chunk AudioChunk, at time.Duration, onEnded func()) (Voice, error)
	Close() error
}
