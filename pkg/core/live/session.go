package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/antron/pkg/core"
	"github.com/vango-go/antron/pkg/core/types"
)

var (
	// ErrSessionActive is returned by Start when a session is not idle.
	ErrSessionActive = errors.New("live session already active")
	// ErrSessionStopped is returned by Start when Stop won the race.
	ErrSessionStopped = errors.New("live session stopped during start")
)

// VoiceSource reports the voice selected when a session opens.
type VoiceSource interface {
	Voice() types.VoiceName
}

// Dependencies are the external boundaries a Session drives.
type Dependencies struct {
	Transport Transport
	Devices   MediaDevices
	NewOutput func() (OutputContext, error)
	Voice     VoiceSource
	Logger    *slog.Logger

	// OnStateChange receives every state snapshot. It must not call Stop.
	OnStateChange func(LiveState)
}

// StartOptions selects optional tracks for one session.
type StartOptions struct {
	Camera bool
}

// Session is the live audio/video session lifecycle.
//
// Every resource of a running session hangs off a liveRun bound to a
// lifetime token. Teardown invalidates the token first, so late
// callbacks from capture, playback or the stream are dropped.
type Session struct {
	cfg    SessionConfig
	deps   Dependencies
	logger *slog.Logger

	mu      sync.Mutex
	state   LiveState
	token   uint64
	run     *liveRun
	closing *liveRun

	notifyMu sync.Mutex
}

type liveRun struct {
	token  uint64
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// video tracks the camera loop alone; it must exit before the
	// camera track is released.
	video sync.WaitGroup
	done  chan struct{}

	media     *MediaStream
	output    OutputContext
	client    *StreamClient
	scheduler *Scheduler
}

func NewSession(cfg SessionConfig, deps Dependencies) *Session {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Session{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		logger: deps.Logger.With("component", "live"),
		state:  LiveState{Status: StatusIdle},
	}
}

// State returns a snapshot of the session.
func (s *Session) State() LiveState {
	s.mu.Lock()
	snap := s.state
	var sched *Scheduler
	if s.run != nil {
		sched = s.run.scheduler
	}
	s.mu.Unlock()

	if sched != nil {
		snap.NextStart = sched.NextStart()
	}
	return snap
}

// Start acquires devices and begins connecting. It returns once the
// capture loops are running; the status becomes active when the stream
// opens. Device failure is fatal; there is no audio-only fallback.
func (s *Session) Start(ctx context.Context, opts StartOptions) error {
	if s.deps.Transport == nil || s.deps.Devices == nil || s.deps.NewOutput == nil {
		return errors.New("live session is missing dependencies")
	}

	s.mu.Lock()
	if s.run != nil || s.state.Status != StatusIdle {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.token++
	runCtx, cancel := context.WithCancel(context.Background())
	run := &liveRun{token: s.token, ctx: runCtx, cancel: cancel, done: make(chan struct{})}
	s.run = run
	s.state = LiveState{Status: StatusConnecting}
	snap := s.state
	s.mu.Unlock()
	s.publish(snap)

	acquireCtx, stopAcquire := context.WithCancel(ctx)
	unlink := context.AfterFunc(runCtx, stopAcquire)
	media, err := s.deps.Devices.Acquire(acquireCtx, Constraints{Audio: true, Video: opts.Camera})
	unlink()
	stopAcquire()
	if err == nil && (media == nil || media.Audio == nil) {
		media.Stop()
		err = errors.New("no audio track granted")
	}
	if err != nil {
		if !s.current(run.token) {
			return ErrSessionStopped
		}
		derr := core.NewDeviceError("media device acquisition failed", err)
		s.teardown(run.token, derr)
		return derr
	}
	if !s.attach(run, func() { run.media = media }) {
		media.Stop()
		return ErrSessionStopped
	}

	output, err := s.deps.NewOutput()
	if err != nil {
		perr := core.NewPlaybackError("open output context", err)
		s.teardown(run.token, perr)
		return perr
	}
	if !s.attach(run, func() { run.output = output }) {
		_ = output.Close()
		return ErrSessionStopped
	}

	voice := types.DefaultVoice
	if s.deps.Voice != nil {
		if v := s.deps.Voice.Voice(); v.Valid() {
			voice = v
		}
	}
	client := NewStreamClient(s.deps.Transport, ConnectConfig{
		Model:             s.cfg.Model,
		Voice:             voice,
		SystemInstruction: s.cfg.Instruction(voice),
	}, StreamClientOptions{
		ConnectTimeout: s.cfg.ConnectTimeout,
		Logger:         s.logger,
	})
	scheduler := NewScheduler(output, s.cfg.PlaybackTolerance, func(speaking bool) {
		s.setAISpeaking(run.token, speaking)
	})

	s.mu.Lock()
	if s.run != run {
		s.mu.Unlock()
		_ = client.Close()
		return ErrSessionStopped
	}
	run.client = client
	run.scheduler = scheduler
	s.state.CameraActive = media.Video != nil
	run.wg.Add(2)
	if media.Video != nil {
		run.video.Add(1)
	}
	snap = s.state
	s.mu.Unlock()
	s.publish(snap)

	s.logger.Info("live session starting", "model", s.cfg.Model, "voice", voice, "camera", media.Video != nil)

	client.Open(runCtx)
	go s.eventLoop(run)
	go s.audioLoop(run)
	if media.Video != nil {
		go s.videoLoop(run)
	}
	return nil
}

// Stop tears the session down. It is safe from any state and any number
// of times, and returns once the session is idle.
func (s *Session) Stop() {
	s.mu.Lock()
	run, closing := s.run, s.closing
	s.mu.Unlock()
	if run == nil {
		if closing != nil {
			<-closing.done
		}
		return
	}
	s.teardown(run.token, nil)
	<-run.done
}

// teardown releases every resource of the run bound to token. cause, if
// non-nil, is recorded and surfaced as an error status before the
// session returns to idle.
func (s *Session) teardown(token uint64, cause error) {
	s.mu.Lock()
	run := s.run
	if run == nil || run.token != token {
		s.mu.Unlock()
		return
	}
	s.run = nil
	s.closing = run
	s.token++
	var failed *LiveState
	if cause != nil {
		s.state.Status = StatusError
		s.state.LastError = cause
		snap := s.state
		failed = &snap
	}
	s.mu.Unlock()

	if failed != nil {
		s.logger.Warn("live session failed", "error", cause)
		s.publish(*failed)
	}

	// Capture loops stop before any device track does. The audio loop
	// may be blocked in Read, which only Stop unblocks, so it is waited
	// on after the tracks are released.
	run.cancel()
	run.video.Wait()
	if run.client != nil {
		if err := run.client.Close(); err != nil {
			s.logger.Debug("close live stream", "error", err)
		}
	}
	if run.scheduler != nil {
		run.scheduler.Interrupt()
	}
	if run.media != nil {
		run.media.Stop()
	}
	if run.output != nil {
		if err := run.output.Close(); err != nil {
			s.logger.Debug("close output context", "error", err)
		}
	}
	run.wg.Wait()

	s.mu.Lock()
	s.state = LiveState{Status: StatusIdle, LastError: s.state.LastError}
	if s.closing == run {
		s.closing = nil
	}
	snap := s.state
	s.mu.Unlock()
	s.publish(snap)
	close(run.done)

	s.logger.Info("live session stopped")
}

// teardownAsync is used from the run's own goroutines, which teardown waits on.
func (s *Session) teardownAsync(token uint64, cause error) {
	go s.teardown(token, cause)
}

func (s *Session) eventLoop(run *liveRun) {
	defer run.wg.Done()
	for ev := range run.client.Events() {
		if !s.current(run.token) {
			continue
		}
		switch e := ev.(type) {
		case *OpenedEvent:
			s.setStatus(run.token, StatusActive)
			s.logger.Info("live session active")
		case *AudioEvent:
			s.playAudio(run, e)
		case *InterruptedEvent:
			run.scheduler.Interrupt()
		case *TurnCompleteEvent:
		case *ClosedEvent:
			s.teardownAsync(run.token, e.Err)
		}
	}
}

func (s *Session) playAudio(run *liveRun, e *AudioEvent) {
	rate := SampleRateFromMIME(e.MIMEType, s.cfg.OutputSampleRateHz)
	chunk, err := DecodePCM16(e.Data, rate, defaultOutputChannelCount)
	if err != nil {
		s.logger.Warn("dropping undecodable audio", "error", core.NewPlaybackError("decode model audio", err), "bytes", len(e.Data))
		run.scheduler.Silence()
		s.setUserSpeaking(run.token, false)
		return
	}
	if _, err := run.scheduler.Schedule(chunk); err != nil {
		s.logger.Warn("dropping unplayable audio", "error", core.NewPlaybackError("schedule model audio", err))
		run.scheduler.Silence()
	}
}

func (s *Session) audioLoop(run *liveRun) {
	defer run.wg.Done()

	track := run.media.Audio
	framer := NewAudioFramer(s.cfg.AudioFrameSamples)
	detector := SpeakingDetector{Threshold: s.cfg.SpeakingThreshold}
	buf := make([]float32, s.cfg.AudioFrameSamples)

	for {
		n, err := track.Read(buf)
		if run.ctx.Err() != nil || !s.current(run.token) {
			return
		}
		if n > 0 {
			for _, frame := range framer.Push(buf[:n]) {
				s.setUserSpeaking(run.token, detector.IsSpeaking(frame))
				run.client.Send(RealtimeInput{Audio: &Blob{MIMEType: MIMEAudioPCM16k, Data: EncodePCM16(frame)}})
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("microphone track ended")
				s.teardownAsync(run.token, nil)
				return
			}
			s.teardownAsync(run.token, core.NewDeviceError("microphone read failed", err))
			return
		}
	}
}

func (s *Session) videoLoop(run *liveRun) {
	defer run.video.Done()

	track := run.media.Video
	encoder := NewFrameEncoder(s.cfg.FrameWidth, s.cfg.FrameHeight, s.cfg.JPEGQuality)
	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-run.ctx.Done():
			return
		case <-ticker.C:
		}
		if !s.current(run.token) {
			return
		}
		if !track.Ready() {
			continue
		}
		if !s.current(run.token) {
			return
		}
		img, err := track.Snapshot()
		if err != nil {
			s.logger.Debug("camera snapshot failed", "error", err)
			continue
		}
		data, err := encoder.Encode(img)
		if err != nil {
			s.logger.Debug("camera frame encode failed", "error", err)
			continue
		}
		if !s.current(run.token) {
			return
		}
		run.client.Send(RealtimeInput{Video: &Blob{MIMEType: MIMEImageJPEG, Data: data}})
	}
}

func (s *Session) attach(run *liveRun, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != run {
		return false
	}
	fn()
	return true
}

func (s *Session) current(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil && s.run.token == token
}

func (s *Session) setStatus(token uint64, status Status) {
	s.update(token, func(st *LiveState) bool {
		if st.Status == status {
			return false
		}
		st.Status = status
		return true
	})
}

func (s *Session) setAISpeaking(token uint64, speaking bool) {
	s.update(token, func(st *LiveState) bool {
		if st.AISpeaking == speaking {
			return false
		}
		st.AISpeaking = speaking
		return true
	})
}

func (s *Session) setUserSpeaking(token uint64, speaking bool) {
	s.update(token, func(st *LiveState) bool {
		if st.UserSpeaking == speaking {
			return false
		}
		st.UserSpeaking = speaking
		return true
	})
}

func (s *Session) update(token uint64, fn func(*LiveState) bool) {
	s.mu.Lock()
	if s.run == nil || s.run.token != token {
		s.mu.Unlock()
		return
	}
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	snap := s.state
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Session) publish(snap LiveState) {
	if s.deps.OnStateChange == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.deps.OnStateChange(snap)
}
