package live

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// InputSampleRateHz is the microphone capture rate sent upstream.
	InputSampleRateHz = 16000
	// OutputSampleRateHz is the rate of model audio played back.
	OutputSampleRateHz = 24000

	// MIMEAudioPCM16k labels outbound microphone frames.
	MIMEAudioPCM16k = "audio/pcm;rate=16000"
	// MIMEImageJPEG labels outbound camera frames.
	MIMEImageJPEG = "image/jpeg"
)

var errOddPCMLength = errors.New("pcm16 payload has odd length")

// EncodePCM16 converts float samples in [-1, 1] to signed 16-bit
// little-endian PCM. Samples outside the range are clamped first.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) {
			v = 0
		}
		v = math.Max(-1, math.Min(1, v)) * 32768
		if v > math.MaxInt16 {
			v = math.MaxInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// PeakAmplitude returns the maximum absolute sample value.
func PeakAmplitude(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		abs := math.Abs(float64(s))
		if abs > peak {
			peak = abs
		}
	}
	return peak
}

// SpeakingDetector flags frames whose peak exceeds Threshold.
type SpeakingDetector struct {
	Threshold float64
}

// IsSpeaking uses a strict comparison: a peak equal to Threshold is silence.
// Samples are float32, so the threshold is compared at that precision.
func (d SpeakingDetector) IsSpeaking(samples []float32) bool {
	return PeakAmplitude(samples) > float64(float32(d.Threshold))
}

// AudioFramer slices a continuous sample stream into fixed-size frames.
type AudioFramer struct {
	mu      sync.Mutex
	size    int
	pending []float32
}

func NewAudioFramer(frameSamples int) *AudioFramer {
	if frameSamples <= 0 {
		frameSamples = DefaultAudioFrameSamples
	}
	return &AudioFramer{size: frameSamples, pending: make([]float32, 0, frameSamples)}
}

// Push appends samples and returns every complete frame now available.
// Returned frames do not alias the input.
func (f *AudioFramer) Push(samples []float32) [][]float32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending = append(f.pending, samples...)
	var frames [][]float32
	for len(f.pending) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.pending[:f.size])
		frames = append(frames, frame)
		f.pending = f.pending[f.size:]
	}
	return frames
}

// Buffered returns the number of samples waiting for a full frame.
func (f *AudioFramer) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// AudioChunk is one decoded buffer of model audio.
type AudioChunk struct {
	PCM          []byte // s16le, interleaved
	SampleRateHz int
	Channels     int
}

// Frames is the number of samples per channel.
func (c AudioChunk) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.PCM) / (2 * c.Channels)
}

// Duration is the playback length of the chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRateHz <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRateHz)
}

// DecodePCM16 validates raw model audio and wraps it as a chunk.
func DecodePCM16(data []byte, sampleRateHz, channels int) (AudioChunk, error) {
	if sampleRateHz <= 0 {
		return AudioChunk{}, fmt.Errorf("invalid sample rate %d", sampleRateHz)
	}
	if channels <= 0 {
		return AudioChunk{}, fmt.Errorf("invalid channel count %d", channels)
	}
	if len(data)%2 != 0 {
		return AudioChunk{}, errOddPCMLength
	}
	if len(data)%(2*channels) != 0 {
		return AudioChunk{}, fmt.Errorf("pcm16 payload of %d bytes is not a whole number of %d-channel frames", len(data), channels)
	}
	return AudioChunk{PCM: data, SampleRateHz: sampleRateHz, Channels: channels}, nil
}

// SampleRateFromMIME extracts the rate parameter of an "audio/pcm;rate=N"
// MIME type, returning fallback when absent or malformed.
func SampleRateFromMIME(mimeType string, fallback int) int {
	for _, param := range strings.Split(mimeType, ";")[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "rate") {
			continue
		}
		rate, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || rate <= 0 {
			return fallback
		}
		return rate
	}
	return fallback
}

// DecodeFloat32LE converts little-endian float32 bytes to samples.
// A trailing partial sample is ignored.
func DecodeFloat32LE(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
