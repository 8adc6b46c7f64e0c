package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/vango-go/antron/pkg/core"
	"github.com/vango-go/antron/pkg/core/types"
)

// DefaultSpeechModel voices replies.
const DefaultSpeechModel = "gemini-2.5-flash-preview-tts"

// Synthesizer voices text with a prebuilt voice.
type Synthesizer struct {
	backend core.SpeechSynthesizer
	model   string
}

// NewSynthesizer returns a Synthesizer. An empty model selects
// DefaultSpeechModel.
func NewSynthesizer(backend core.SpeechSynthesizer, model string) *Synthesizer {
	if strings.TrimSpace(model) == "" {
		model = DefaultSpeechModel
	}
	return &Synthesizer{backend: backend, model: model}
}

// Synthesize returns mono PCM16 for text. An invalid voice falls back to
// the default one.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice types.VoiceName) (*core.SpeechResponse, error) {
	if s == nil || s.backend == nil {
		return nil, fmt.Errorf("speech backend is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, core.NewInvalidRequestErrorWithParam("text is required", "text")
	}
	if !voice.Valid() {
		voice = types.DefaultVoice
	}
	return s.backend.SynthesizeSpeech(ctx, &core.SpeechRequest{
		Model: s.model,
		Text:  speechPrompt(voice, text),
		Voice: voice,
	})
}

func speechPrompt(voice types.VoiceName, text string) string {
	return fmt.Sprintf("Vocal Signature %s activated: %s", voice, text)
}
