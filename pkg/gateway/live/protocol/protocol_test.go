package protocol

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/antron/pkg/core/live"
)

func TestDecodeClientMessage_VideoFrame(t *testing.T) {
	raw := []byte(`{"type":"video_frame","data_b64":"` + base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8}) + `"}`)
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	frame, ok := msg.(ClientVideoFrame)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientVideoFrame", msg)
	}
	data, err := frame.Bytes()
	if err != nil || len(data) != 2 || data[0] != 0xff {
		t.Fatalf("Bytes()=%v, %v", data, err)
	}
}

func TestDecodeClientMessage_Stop(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":" stop "}`))
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	if _, ok := msg.(ClientStop); !ok {
		t.Fatalf("decoded type = %T", msg)
	}
}

func TestDecodeClientMessage_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code string
	}{
		{"not json", `{`, CodeBadRequest},
		{"missing type", `{}`, CodeBadRequest},
		{"empty frame", `{"type":"video_frame"}`, CodeBadRequest},
		{"unknown", `{"type":"hello"}`, CodeUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(tt.raw))
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("err=%v, want *DecodeError", err)
			}
			if de.Code != tt.code {
				t.Fatalf("code=%q want %q", de.Code, tt.code)
			}
		})
	}
}

func TestClientVideoFrame_BadBase64(t *testing.T) {
	if _, err := (ClientVideoFrame{DataB64: "%%%"}).Bytes(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeAudioFrame(t *testing.T) {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint32(raw, math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(raw[4:], math.Float32bits(-1))

	samples, err := DecodeAudioFrame(raw, 64)
	if err != nil {
		t.Fatalf("DecodeAudioFrame: %v", err)
	}
	if len(samples) != 2 || samples[0] != 0.5 || samples[1] != -1 {
		t.Fatalf("samples=%v", samples)
	}

	if _, err := DecodeAudioFrame(raw[:6], 64); err == nil {
		t.Fatalf("expected partial sample error")
	}
	if _, err := DecodeAudioFrame(raw, 4); err == nil {
		t.Fatalf("expected size error")
	}
	if _, err := DecodeAudioFrame(nil, 4); err == nil {
		t.Fatalf("expected empty error")
	}
}

func TestServerFrames_JSON(t *testing.T) {
	chunk := live.AudioChunk{PCM: make([]byte, 4800), SampleRateHz: 24000, Channels: 1}
	b, err := json.Marshal(AudioFrom("a_1", chunk, 1500*time.Millisecond))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"type":"audio"`, `"id":"a_1"`, `"start_ms":1500`, `"duration_ms":100`, `"sample_rate_hz":24000`} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %s in %s", want, s)
		}
	}

	state := StateFrom(live.LiveState{Status: live.StatusError, LastError: errors.New("boom"), AISpeaking: true})
	if state.Type != TypeState || state.Status != "error" || state.Error != "boom" || !state.AISpeaking {
		t.Fatalf("state=%+v", state)
	}
	if e := ErrorFrom(CodeBusy, "x"); e.Type != TypeError || e.Code != CodeBusy {
		t.Fatalf("error=%+v", e)
	}
}
