// Package ffmpeg provides local capture and playback for live sessions by
// running ffmpeg (microphone, camera) and ffplay (speaker) as child
// processes speaking raw PCM or MJPEG over pipes.
package ffmpeg

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/vango-go/antron/pkg/core/live"
)

// Config locates the binaries and capture devices.
type Config struct {
	FFmpegPath string
	FFplayPath string

	// InputFormat is the ffmpeg capture demuxer (avfoundation, pulse,
	// alsa, v4l2, dshow). Empty selects one for the current OS.
	InputFormat string
	// MicDevice and CameraDevice are passed to -i verbatim.
	MicDevice    string
	CameraDevice string
	// CameraFormat overrides InputFormat for the camera on systems where
	// audio and video use different demuxers (pulse + v4l2).
	CameraFormat string
	// CameraFPS is how often the camera emits a frame.
	CameraFPS int

	// Volume is ffplay's startup volume, 0-100.
	Volume   int
	LogLevel string
}

// DefaultConfig returns settings for the current platform.
func DefaultConfig() Config {
	cfg := Config{
		FFmpegPath: "ffmpeg",
		FFplayPath: "ffplay",
		CameraFPS:  2,
		Volume:     80,
		LogLevel:   "error",
	}
	switch runtime.GOOS {
	case "darwin":
		cfg.InputFormat = "avfoundation"
		// none:<audio> avoids opening the camera for the microphone.
		cfg.MicDevice = "none:0"
		cfg.CameraDevice = "0:none"
	case "windows":
		cfg.InputFormat = "dshow"
		cfg.MicDevice = "audio=default"
		cfg.CameraDevice = "video=default"
	default:
		cfg.InputFormat = "pulse"
		cfg.MicDevice = "default"
		cfg.CameraFormat = "v4l2"
		cfg.CameraDevice = "/dev/video0"
	}
	return cfg
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.FFmpegPath) == "" {
		c.FFmpegPath = d.FFmpegPath
	}
	if strings.TrimSpace(c.FFplayPath) == "" {
		c.FFplayPath = d.FFplayPath
	}
	if strings.TrimSpace(c.InputFormat) == "" {
		c.InputFormat = d.InputFormat
		if c.CameraFormat == "" {
			c.CameraFormat = d.CameraFormat
		}
	}
	if strings.TrimSpace(c.MicDevice) == "" {
		c.MicDevice = d.MicDevice
	}
	if strings.TrimSpace(c.CameraDevice) == "" {
		c.CameraDevice = d.CameraDevice
	}
	if c.CameraFPS <= 0 {
		c.CameraFPS = d.CameraFPS
	}
	if c.Volume <= 0 || c.Volume > 100 {
		c.Volume = d.Volume
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = d.LogLevel
	}
	return c
}

// micArgs captures mono float32 samples at the live input rate.
func micArgs(c Config) []string {
	return []string{
		"-hide_banner",
		"-loglevel", c.LogLevel,
		"-f", c.InputFormat,
		"-i", c.MicDevice,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", live.InputSampleRateHz),
		"-f", "f32le",
		"-",
	}
}

// cameraArgs emits a stream of concatenated JPEG frames.
func cameraArgs(c Config) []string {
	format := c.CameraFormat
	if format == "" {
		format = c.InputFormat
	}
	args := []string{
		"-hide_banner",
		"-loglevel", c.LogLevel,
		"-f", format,
	}
	if format == "avfoundation" {
		// avfoundation rejects the default rate on most built-in cameras.
		args = append(args, "-framerate", "30")
	}
	return append(args,
		"-i", c.CameraDevice,
		"-vf", fmt.Sprintf("fps=%d", c.CameraFPS),
		"-f", "mjpeg",
		"-q:v", "5",
		"-",
	)
}

// ffplayArgs plays s16le PCM read from stdin. ffplay takes -ch_layout
// rather than -ac.
func ffplayArgs(c Config, sampleRateHz, channels int) []string {
	layout := "mono"
	if channels == 2 {
		layout = "stereo"
	}
	return []string{
		"-hide_banner",
		"-loglevel", c.LogLevel,
		"-nostats",
		"-volume", fmt.Sprintf("%d", c.Volume),
		"-nodisp",
		"-f", "s16le",
		"-ch_layout", layout,
		"-ar", fmt.Sprintf("%d", sampleRateHz),
		"-i", "-",
	}
}
