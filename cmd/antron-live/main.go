// Command antron-live runs a live voice session against the local
// microphone, camera and speaker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/vango-go/antron/internal/dotenv"
	"github.com/vango-go/antron/pkg/core"
	"github.com/vango-go/antron/pkg/core/live"
	"github.com/vango-go/antron/pkg/core/providers/gemini"
	"github.com/vango-go/antron/pkg/core/types"
	"github.com/vango-go/antron/pkg/gateway/config"
	"github.com/vango-go/antron/pkg/media/ffmpeg"
	"github.com/vango-go/antron/pkg/orchestrator"
)

type options struct {
	camera      bool
	listDevices bool
	say         string
	voice       string
	debug       bool
	media       ffmpeg.Config
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	opt := options{media: ffmpeg.DefaultConfig()}
	fs := flag.NewFlagSet("antron-live", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opt.camera, "camera", false, "Stream camera frames alongside audio")
	fs.BoolVar(&opt.listDevices, "list-devices", false, "List capture devices via ffmpeg and exit")
	fs.StringVar(&opt.say, "say", "", "Speak this text with the selected voice and exit")
	fs.StringVar(&opt.voice, "voice", string(types.DefaultVoice), "Voice: Kore, Puck, Charon, Fenrir or Zephyr")
	fs.BoolVar(&opt.debug, "debug", false, "Enable debug logging")
	fs.StringVar(&opt.media.FFmpegPath, "ffmpeg-path", opt.media.FFmpegPath, "Path to ffmpeg")
	fs.StringVar(&opt.media.FFplayPath, "ffplay-path", opt.media.FFplayPath, "Path to ffplay")
	fs.StringVar(&opt.media.InputFormat, "input-format", opt.media.InputFormat, "ffmpeg capture demuxer")
	fs.StringVar(&opt.media.MicDevice, "mic-device", opt.media.MicDevice, "Microphone device passed to ffmpeg -i")
	fs.StringVar(&opt.media.CameraDevice, "camera-device", opt.media.CameraDevice, "Camera device passed to ffmpeg -i")
	fs.IntVar(&opt.media.Volume, "volume", opt.media.Volume, "ffplay startup volume 0-100")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if _, err := types.ParseVoice(opt.voice); err != nil {
		return options{}, err
	}
	return opt, nil
}

type staticVoice types.VoiceName

func (v staticVoice) Voice() types.VoiceName { return types.VoiceName(v) }

// stateReporter prints status transitions. Publishing after close is a no-op.
type stateReporter struct {
	mu     sync.Mutex
	ch     chan live.LiveState
	closed bool
}

func newStateReporter() *stateReporter {
	return &stateReporter{ch: make(chan live.LiveState, 32)}
}

func (r *stateReporter) publish(s live.LiveState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- s:
	default:
	}
}

func (r *stateReporter) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
}

// run prints each change until the channel closes.
func (r *stateReporter) run(w io.Writer) {
	var last string
	for s := range r.ch {
		line := describeState(s)
		if line == last {
			continue
		}
		last = line
		fmt.Fprintln(w, line)
	}
}

func describeState(s live.LiveState) string {
	parts := []string{"[" + string(s.Status) + "]"}
	if s.CameraActive {
		parts = append(parts, "camera")
	}
	if s.UserSpeaking {
		parts = append(parts, "you: speaking")
	}
	if s.AISpeaking {
		parts = append(parts, "antron: speaking")
	}
	if msg := s.ErrorMessage(); msg != "" {
		parts = append(parts, "error: "+msg)
	}
	return strings.Join(parts, " ")
}

// runSession runs one live session until ctx ends or the session returns
// to idle on its own.
func runSession(ctx context.Context, sess *live.Session, ended <-chan error, camera bool) error {
	if err := sess.Start(ctx, live.StartOptions{Camera: camera}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		sess.Stop()
		return nil
	case err := <-ended:
		sess.Stop()
		return err
	}
}

// speak voices text once and waits for playback to finish.
func speak(ctx context.Context, synth *orchestrator.Synthesizer, out live.OutputContext, text string, voice types.VoiceName) error {
	resp, err := synth.Synthesize(ctx, text, voice)
	if err != nil {
		return err
	}
	chunk, err := live.DecodePCM16(resp.PCM, resp.SampleRateHz, 1)
	if err != nil {
		return core.NewPlaybackError("decode speech", err)
	}
	done := make(chan struct{})
	var once sync.Once
	v, err := out.Play(chunk, out.Now(), func() { once.Do(func() { close(done) }) })
	if err != nil {
		return core.NewPlaybackError("play speech", err)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		v.Stop()
		return nil
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opt, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	level := slog.LevelInfo
	if opt.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if opt.listDevices {
		return ffmpeg.ListDevices(opt.media, stdout)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	provider, err := gemini.New(ctx, cfg.ResolvedAPIKey(),
		gemini.WithBaseURL(cfg.GeminiBaseURL),
		gemini.WithAPIVersion(cfg.GeminiAPIVersion),
	)
	if err != nil {
		return err
	}
	voice, _ := types.ParseVoice(opt.voice)

	if opt.say != "" {
		speaker := ffmpeg.NewSpeaker(opt.media, logger)
		defer speaker.Close()
		return speak(ctx, orchestrator.NewSynthesizer(provider, cfg.SpeechModel), speaker, opt.say, voice)
	}

	reporter := newStateReporter()
	ended := make(chan error, 1)
	sessCfg := live.DefaultSessionConfig()
	sessCfg.Model = cfg.LiveModel
	sessCfg.ConnectTimeout = cfg.LiveConnectTimeout
	sess := live.NewSession(sessCfg, live.Dependencies{
		Transport: provider,
		Devices:   ffmpeg.NewDevices(opt.media, logger),
		NewOutput: func() (live.OutputContext, error) { return ffmpeg.NewSpeaker(opt.media, logger), nil },
		Voice:     staticVoice(voice),
		Logger:    logger,
		OnStateChange: func(s live.LiveState) {
			reporter.publish(s)
			var endErr error
			switch s.Status {
			case live.StatusError:
				endErr = s.LastError
			case live.StatusIdle:
			default:
				return
			}
			select {
			case ended <- endErr:
			default:
			}
		},
	})

	fmt.Fprintf(stdout, "antron live: model=%s voice=%s camera=%v (ctrl-c to stop)\n", sessCfg.Model, voice, opt.camera)

	var g errgroup.Group
	g.Go(func() error {
		reporter.run(stdout)
		return nil
	})
	g.Go(func() error {
		defer reporter.close()
		return runSession(ctx, sess, ended, opt.camera)
	})
	return g.Wait()
}

func main() {
	if err := dotenv.LoadFiles(dotenv.DefaultFiles...); err != nil {
		fmt.Fprintf(os.Stderr, "antron-live: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "antron-live: %v\n", err)
		os.Exit(1)
	}
}
