package ffmpeg

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/vango-go/antron/pkg/core/live"
)

// Devices acquires the microphone and camera through ffmpeg.
type Devices struct {
	cfg    Config
	logger *slog.Logger
}

var _ live.MediaDevices = (*Devices)(nil)

func NewDevices(cfg Config, logger *slog.Logger) *Devices {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Devices{cfg: cfg.withDefaults(), logger: logger.With("component", "devices")}
}

// Acquire starts the requested capture processes. The processes outlive
// ctx; they end when the returned tracks are stopped.
func (d *Devices) Acquire(ctx context.Context, c live.Constraints) (*live.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream := &live.MediaStream{}
	if c.Audio {
		mic, err := startProcess(context.Background(), d.logger, d.cfg.FFmpegPath, micArgs(d.cfg)...)
		if err != nil {
			return nil, err
		}
		stream.Audio = newMicTrack(mic.stdout, mic.stop)
	}
	if c.Video {
		cam, err := startProcess(context.Background(), d.logger, d.cfg.FFmpegPath, cameraArgs(d.cfg)...)
		if err != nil {
			stream.Stop()
			return nil, err
		}
		stream.Video = newCameraTrack(cam.stdout, cam.stop, d.logger)
	}
	if err := ctx.Err(); err != nil {
		stream.Stop()
		return nil, err
	}
	return stream, nil
}

// ListDevices prints the capture devices ffmpeg can see for the
// configured input format.
func ListDevices(cfg Config, w io.Writer) error {
	cfg = cfg.withDefaults()
	cmd := exec.Command(cfg.FFmpegPath, "-hide_banner", "-f", cfg.InputFormat, "-list_devices", "true", "-i", "")
	cmd.Stdout = w
	cmd.Stderr = w
	if w == nil {
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	}
	if err := cmd.Run(); err != nil {
		// ffmpeg exits non-zero after printing the list.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return err
	}
	return nil
}
