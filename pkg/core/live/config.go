package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/vango-go/antron/pkg/core/types"
)

// Status is the externally visible phase of a live session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusError      Status = "error"
)

// Defaults for capture, playback and connection behaviour.
const (
	DefaultModel              = "gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultAudioFrameSamples  = 4096 // ~256ms at 16kHz
	DefaultSpeakingThreshold  = 0.05
	DefaultFrameInterval      = 600 * time.Millisecond
	DefaultFrameWidth         = 480
	DefaultFrameHeight        = 360
	DefaultJPEGQuality        = 50
	DefaultPlaybackTolerance  = 100 * time.Millisecond
	DefaultConnectTimeout     = 15 * time.Second
	DefaultSystemInstruction  = "ANTRON v13.2 Sovereign Active. Persona: Melodic-Robotic. Mandate: Analysis and Grounding. Voice Signature: %s. Bi-idhnillah."
	DefaultEventBufferSize    = 64
	defaultOutputChannelCount = 1
)

// SessionConfig holds all configuration for a live session.
type SessionConfig struct {
	// Model is the native-audio model used for the streaming session.
	Model string `json:"model"`

	// SystemInstruction is a format string; %s receives the active voice.
	SystemInstruction string `json:"system_instruction"`

	// AudioFrameSamples is the number of 16kHz samples per outbound frame.
	AudioFrameSamples int `json:"audio_frame_samples"`

	// SpeakingThreshold is the peak amplitude above which the user counts as speaking.
	SpeakingThreshold float64 `json:"speaking_threshold"`

	// FrameInterval is the camera sampling period.
	FrameInterval time.Duration `json:"frame_interval"`
	FrameWidth    int           `json:"frame_width"`
	FrameHeight   int           `json:"frame_height"`
	JPEGQuality   int           `json:"jpeg_quality"`

	// OutputSampleRateHz is assumed when inbound audio carries no rate parameter.
	OutputSampleRateHz int `json:"output_sample_rate_hz"`

	// PlaybackTolerance is how close to the end of the queue a finished
	// buffer must be for the assistant to count as done speaking.
	PlaybackTolerance time.Duration `json:"playback_tolerance"`

	// ConnectTimeout bounds how long the session may stay connecting.
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Model:              DefaultModel,
		SystemInstruction:  DefaultSystemInstruction,
		AudioFrameSamples:  DefaultAudioFrameSamples,
		SpeakingThreshold:  DefaultSpeakingThreshold,
		FrameInterval:      DefaultFrameInterval,
		FrameWidth:         DefaultFrameWidth,
		FrameHeight:        DefaultFrameHeight,
		JPEGQuality:        DefaultJPEGQuality,
		OutputSampleRateHz: OutputSampleRateHz,
		PlaybackTolerance:  DefaultPlaybackTolerance,
		ConnectTimeout:     DefaultConnectTimeout,
	}
}

// withDefaults fills zero fields from DefaultSessionConfig.
func (c SessionConfig) withDefaults() SessionConfig {
	d := DefaultSessionConfig()
	if strings.TrimSpace(c.Model) == "" {
		c.Model = d.Model
	}
	if strings.TrimSpace(c.SystemInstruction) == "" {
		c.SystemInstruction = d.SystemInstruction
	}
	if c.AudioFrameSamples <= 0 {
		c.AudioFrameSamples = d.AudioFrameSamples
	}
	if c.SpeakingThreshold <= 0 {
		c.SpeakingThreshold = d.SpeakingThreshold
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = d.FrameInterval
	}
	if c.FrameWidth <= 0 {
		c.FrameWidth = d.FrameWidth
	}
	if c.FrameHeight <= 0 {
		c.FrameHeight = d.FrameHeight
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = d.JPEGQuality
	}
	if c.OutputSampleRateHz <= 0 {
		c.OutputSampleRateHz = d.OutputSampleRateHz
	}
	if c.PlaybackTolerance <= 0 {
		c.PlaybackTolerance = d.PlaybackTolerance
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	return c
}

// Instruction renders the system instruction for voice.
func (c SessionConfig) Instruction(voice types.VoiceName) string {
	if !strings.Contains(c.SystemInstruction, "%s") {
		return c.SystemInstruction
	}
	return fmt.Sprintf(c.SystemInstruction, voice)
}

// LiveState is a snapshot of session status and flags.
type LiveState struct {
	Status       Status        `json:"status"`
	CameraActive bool          `json:"camera_active"`
	AISpeaking   bool          `json:"ai_speaking"`
	UserSpeaking bool          `json:"user_speaking"`
	NextStart    time.Duration `json:"next_start"`
	LastError    error         `json:"-"`
}

// ErrorMessage returns LastError as text, or "".
func (s LiveState) ErrorMessage() string {
	if s.LastError == nil {
		return ""
	}
	return s.LastError.Error()
}
