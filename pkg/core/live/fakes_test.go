package live

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/antron/pkg/core/types"
)

var errTrackStopped = errors.New("track stopped")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fakeOutput is a manual-clock OutputContext.
type fakeOutput struct {
	mu      sync.Mutex
	now     time.Duration
	plays   []*fakePlay
	closed  int
	playErr error
}

type fakePlay struct {
	chunk   AudioChunk
	at      time.Duration
	onEnded func()
	stopped bool
}

func (o *fakeOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) Play(chunk AudioChunk, at time.Duration, onEnded func()) (Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.playErr != nil {
		return nil, o.playErr
	}
	p := &fakePlay{chunk: chunk, at: at, onEnded: onEnded}
	o.plays = append(o.plays, p)
	return &fakeVoice{out: o, play: p}, nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}

func (o *fakeOutput) set(now time.Duration) {
	o.mu.Lock()
	o.now = now
	o.mu.Unlock()
}

func (o *fakeOutput) play(i int) *fakePlay {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.plays[i]
}

func (o *fakeOutput) playCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.plays)
}

func (o *fakeOutput) closeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// finish fires the end callback of play i, as the sink would.
func (o *fakeOutput) finish(i int) {
	p := o.play(i)
	p.onEnded()
}

type fakeVoice struct {
	out  *fakeOutput
	play *fakePlay
}

func (v *fakeVoice) Stop() {
	v.out.mu.Lock()
	v.play.stopped = true
	v.out.mu.Unlock()
}

// fakeStream is an in-memory Stream.
type fakeStream struct {
	mu      sync.Mutex
	sent    []RealtimeInput
	inbox   chan ServerMessage
	errc    chan error
	closed  chan struct{}
	once    sync.Once
	sendErr error
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		inbox:  make(chan ServerMessage, 16),
		errc:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (s *fakeStream) Send(in RealtimeInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, in)
	return s.sendErr
}

func (s *fakeStream) Receive() (ServerMessage, error) {
	select {
	case msg := <-s.inbox:
		return msg, nil
	case err := <-s.errc:
		return ServerMessage{}, err
	case <-s.closed:
		return ServerMessage{}, io.EOF
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeStream) sentInputs() []RealtimeInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RealtimeInput, len(s.sent))
	copy(out, s.sent)
	return out
}

// fakeTransport hands out one fakeStream. A non-nil gate holds Connect
// until it is closed or ctx ends.
type fakeTransport struct {
	stream *fakeStream
	err    error
	gate   chan struct{}

	mu    sync.Mutex
	cfgs  []ConnectConfig
	calls int
}

func (f *fakeTransport) Connect(ctx context.Context, cfg ConnectConfig) (Stream, error) {
	f.mu.Lock()
	f.calls++
	f.cfgs = append(f.cfgs, cfg)
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTransport) lastConfig() ConnectConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfgs[len(f.cfgs)-1]
}

// fakeAudioTrack yields queued sample slices until stopped.
type fakeAudioTrack struct {
	ch      chan []float32
	stopped chan struct{}
	once    sync.Once
}

func newFakeAudioTrack() *fakeAudioTrack {
	return &fakeAudioTrack{ch: make(chan []float32, 16), stopped: make(chan struct{})}
}

func (a *fakeAudioTrack) Read(p []float32) (int, error) {
	select {
	case s, ok := <-a.ch:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, s), nil
	case <-a.stopped:
		return 0, errTrackStopped
	}
}

func (a *fakeAudioTrack) Stop() {
	a.once.Do(func() { close(a.stopped) })
}

func (a *fakeAudioTrack) isStopped() bool {
	select {
	case <-a.stopped:
		return true
	default:
		return false
	}
}

type fakeVideoTrack struct {
	mu      sync.Mutex
	ready   bool
	img     image.Image
	stopped bool
}

func (v *fakeVideoTrack) Ready() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ready && !v.stopped
}

func (v *fakeVideoTrack) Snapshot() (image.Image, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.img == nil {
		return nil, errors.New("no frame")
	}
	return v.img, nil
}

func (v *fakeVideoTrack) Stop() {
	v.mu.Lock()
	v.stopped = true
	v.mu.Unlock()
}

type fakeDevices struct {
	media *MediaStream
	err   error

	mu  sync.Mutex
	got []Constraints
}

func (d *fakeDevices) Acquire(ctx context.Context, c Constraints) (*MediaStream, error) {
	d.mu.Lock()
	d.got = append(d.got, c)
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.media, nil
}

type staticVoice types.VoiceName

func (v staticVoice) Voice() types.VoiceName { return types.VoiceName(v) }
