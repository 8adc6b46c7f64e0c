package core

import (
	"context"

	"github.com/vango-go/antron/pkg/core/types"
)

// TextRequest is a single-turn grounded text generation call.
type TextRequest struct {
	Model          string
	System         string
	Prompt         string
	Attachment     *types.Attachment
	Temperature    *float32
	ThinkingBudget *int32
	Tools          []types.FunctionDecl
	GoogleSearch   bool
}

// TextResponse is the normalized outcome of a TextRequest.
type TextResponse struct {
	Text      string
	ToolCalls []types.ToolCall
	Sources   []types.Source
}

// ImageRequest asks an image model to render a prompt.
type ImageRequest struct {
	Model       string
	Prompt      string
	AspectRatio string
}

// ImageResponse carries the first inline image returned, if any.
type ImageResponse struct {
	Data     []byte
	MIMEType string
	Text     string
}

// SpeechRequest asks a TTS model to voice text with a prebuilt voice.
type SpeechRequest struct {
	Model string
	Text  string
	Voice types.VoiceName
}

// SpeechResponse is mono signed 16-bit little-endian PCM.
type SpeechResponse struct {
	PCM          []byte
	SampleRateHz int
}

type TextGenerator interface {
	GenerateText(ctx context.Context, req *TextRequest) (*TextResponse, error)
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error)
}

type SpeechSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, req *SpeechRequest) (*SpeechResponse, error)
}

// Provider is the interface the remote inference service must implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "gemini").
	Name() string

	TextGenerator
	ImageGenerator
	SpeechSynthesizer
}
