package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/vango-go/antron/pkg/core/live"
)

var errSpeakerClosed = errors.New("speaker closed")

// sink receives PCM in playback order. Flush discards audio the player
// has buffered but not yet played.
type sink interface {
	Write(chunk live.AudioChunk) error
	Flush() error
	Close() error
}

// Speaker is a live.OutputContext backed by ffplay. Its clock is wall
// time since creation. Each buffer is written to ffplay when its start
// time arrives, so ffplay never holds more than the current buffer.
type Speaker struct {
	sink   sink
	logger *slog.Logger
	epoch  time.Time
	now    func() time.Time

	mu     sync.Mutex
	voices map[*voice]struct{}
	closed bool
}

// NewSpeaker returns an ffplay-backed output. ffplay starts on the first
// buffer.
func NewSpeaker(cfg Config, logger *slog.Logger) *Speaker {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return newSpeaker(&ffplaySink{cfg: cfg, logger: logger}, logger, time.Now)
}

func newSpeaker(s sink, logger *slog.Logger, now func() time.Time) *Speaker {
	return &Speaker{
		sink:   s,
		logger: logger.With("component", "speaker"),
		epoch:  now(),
		now:    now,
		voices: make(map[*voice]struct{}),
	}
}

func (s *Speaker) Now() time.Duration {
	return s.now().Sub(s.epoch)
}

// Play writes chunk to the player at clock time at.
func (s *Speaker) Play(chunk live.AudioChunk, at time.Duration, onEnded func()) (live.Voice, error) {
	if chunk.SampleRateHz <= 0 || chunk.Channels <= 0 {
		return nil, fmt.Errorf("invalid audio format %d Hz x %d", chunk.SampleRateHz, chunk.Channels)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSpeakerClosed
	}
	v := &voice{s: s, chunk: chunk, onEnded: onEnded}
	s.voices[v] = struct{}{}

	delay := at - s.Now()
	if delay < 0 {
		delay = 0
	}
	v.mu.Lock()
	v.timer = time.AfterFunc(delay, v.begin)
	v.mu.Unlock()
	return v, nil
}

// Close stops every voice and the player.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	voices := s.voices
	s.voices = make(map[*voice]struct{})
	s.mu.Unlock()

	for v := range voices {
		v.cancel()
	}
	return s.sink.Close()
}

func (s *Speaker) forget(v *voice) {
	s.mu.Lock()
	delete(s.voices, v)
	s.mu.Unlock()
}

type voice struct {
	s       *Speaker
	chunk   live.AudioChunk
	onEnded func()

	mu      sync.Mutex
	timer   *time.Timer
	started bool
	done    bool
}

func (v *voice) begin() {
	v.mu.Lock()
	if v.done {
		v.mu.Unlock()
		return
	}
	v.started = true
	v.mu.Unlock()

	if err := v.s.sink.Write(v.chunk); err != nil {
		v.s.logger.Warn("speaker write failed", "error", err)
		v.finish()
		return
	}

	v.mu.Lock()
	if !v.done {
		v.timer = time.AfterFunc(v.chunk.Duration(), v.finish)
	}
	v.mu.Unlock()
}

// finish marks the voice ended and reports it once.
func (v *voice) finish() {
	v.mu.Lock()
	if v.done {
		v.mu.Unlock()
		return
	}
	v.done = true
	v.mu.Unlock()

	v.s.forget(v)
	if v.onEnded != nil {
		v.onEnded()
	}
}

// cancel ends the voice and reports whether it was sounding.
func (v *voice) cancel() bool {
	v.mu.Lock()
	if v.done {
		v.mu.Unlock()
		return false
	}
	v.done = true
	if v.timer != nil {
		v.timer.Stop()
	}
	playing := v.started
	v.mu.Unlock()

	v.s.forget(v)
	if v.onEnded != nil {
		go v.onEnded()
	}
	return playing
}

// Stop cancels a pending buffer, or cuts the player if it is sounding.
func (v *voice) Stop() {
	if v.cancel() {
		if err := v.s.sink.Flush(); err != nil {
			v.s.logger.Warn("speaker flush failed", "error", err)
		}
	}
}

// ffplaySink feeds one ffplay process over stdin. The process is
// restarted when the format changes or on Flush.
type ffplaySink struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	rate     int
	channels int
}

func (f *ffplaySink) Write(chunk live.AudioChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cmd != nil && (f.rate != chunk.SampleRateHz || f.channels != chunk.Channels) {
		f.closeLocked()
	}
	if f.cmd == nil {
		if err := f.startLocked(chunk.SampleRateHz, chunk.Channels); err != nil {
			return err
		}
	}
	if _, err := f.stdin.Write(chunk.PCM); err != nil {
		f.closeLocked()
		return fmt.Errorf("write to ffplay: %w", err)
	}
	return nil
}

// Flush kills the player; the next Write starts a fresh one.
func (f *ffplaySink) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
	return nil
}

func (f *ffplaySink) Close() error {
	return f.Flush()
}

func (f *ffplaySink) startLocked(rate, channels int) error {
	cmd := exec.Command(f.cfg.FFplayPath, ffplayArgs(f.cfg, rate, channels)...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		// SDL may otherwise pick a silent dummy backend.
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = &logWriter{logger: f.logger, cmd: f.cfg.FFplayPath}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start ffplay: %w", err)
	}
	go func() { _ = cmd.Wait() }()

	f.cmd, f.stdin = cmd, stdin
	f.rate, f.channels = rate, channels
	return nil
}

func (f *ffplaySink) closeLocked() {
	if f.stdin != nil {
		_ = f.stdin.Close()
	}
	if f.cmd != nil && f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
	}
	f.cmd, f.stdin = nil, nil
}
