package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/antron/pkg/core"
	"github.com/vango-go/antron/pkg/core/types"
)

// SpeechSynthesizer voices text. *orchestrator.Synthesizer implements it.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, voice types.VoiceName) (*core.SpeechResponse, error)
}

type speechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// SpeechHandler returns raw mono s16le PCM. The voice defaults to the
// active voice.
type SpeechHandler struct {
	Synth   SpeechSynthesizer
	App     ChatApp
	Timeout time.Duration
}

func (h SpeechHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	voice := types.DefaultVoice
	if h.App != nil {
		voice = h.App.Voice()
	}
	if strings.TrimSpace(req.Voice) != "" {
		v, err := types.ParseVoice(req.Voice)
		if err != nil {
			writeError(w, r, core.NewInvalidRequestErrorWithParam(err.Error(), "voice"))
			return
		}
		voice = v
	}

	ctx := r.Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	resp, err := h.Synth.Synthesize(ctx, req.Text, voice)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", fmt.Sprintf("audio/pcm;rate=%d", resp.SampleRateHz))
	w.Header().Set("X-Sample-Rate", strconv.Itoa(resp.SampleRateHz))
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.PCM)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.PCM)
}
