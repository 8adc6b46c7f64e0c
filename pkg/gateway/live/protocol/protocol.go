// Package protocol defines the /v1/live WebSocket frames.
//
// Binary client frames carry microphone audio as float32 little-endian
// samples at 16 kHz mono. Every other frame is a JSON object with a
// "type" field.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vango-go/antron/pkg/core/live"
)

const (
	TypeVideoFrame = "video_frame"
	TypeStop       = "stop"

	TypeState     = "state"
	TypeAudio     = "audio"
	TypeAudioStop = "audio_stop"
	TypeError     = "error"
)

// Error codes sent in ServerError frames.
const (
	CodeBadRequest  = "bad_request"
	CodeUnsupported = "unsupported"
	CodeBusy        = "busy"
	CodeDraining    = "draining"
	CodeSession     = "session_error"
	CodeTimeout     = "session_timeout"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: CodeBadRequest, Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: CodeUnsupported, Message: message, Param: param}
}

// ClientVideoFrame is one base64 JPEG camera frame.
type ClientVideoFrame struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64"`
}

// Bytes decodes the frame payload.
func (f ClientVideoFrame) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(f.DataB64)
	if err != nil {
		return nil, badRequest("video_frame.data_b64 is not valid base64", "data_b64")
	}
	return data, nil
}

// ClientStop ends the session.
type ClientStop struct {
	Type string `json:"type"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case TypeVideoFrame:
		var msg ClientVideoFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid video_frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("video_frame.data_b64 is required", "data_b64")
		}
		return msg, nil
	case TypeStop:
		return ClientStop{Type: TypeStop}, nil
	default:
		return nil, unsupported("unsupported message type", "type")
	}
}

// DecodeAudioFrame validates a binary microphone frame.
func DecodeAudioFrame(data []byte, maxBytes int) ([]float32, error) {
	if len(data) == 0 {
		return nil, badRequest("empty audio frame", "")
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, badRequest(fmt.Sprintf("audio frame exceeds %d bytes", maxBytes), "")
	}
	if len(data)%4 != 0 {
		return nil, badRequest("audio frame is not a whole number of float32 samples", "")
	}
	return live.DecodeFloat32LE(data), nil
}

type ServerState struct {
	Type         string `json:"type"`
	Status       string `json:"status"`
	CameraActive bool   `json:"camera_active"`
	AISpeaking   bool   `json:"ai_speaking"`
	UserSpeaking bool   `json:"user_speaking"`
	Error        string `json:"error,omitempty"`
}

func StateFrom(s live.LiveState) ServerState {
	return ServerState{
		Type:         TypeState,
		Status:       string(s.Status),
		CameraActive: s.CameraActive,
		AISpeaking:   s.AISpeaking,
		UserSpeaking: s.UserSpeaking,
		Error:        s.ErrorMessage(),
	}
}

// ServerAudio is one scheduled buffer of s16le model audio. StartMS is
// on the server's output clock, which starts at zero per session.
type ServerAudio struct {
	Type         string `json:"type"`
	ID           string `json:"id"`
	StartMS      int64  `json:"start_ms"`
	DurationMS   int64  `json:"duration_ms"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
	DataB64      string `json:"data_b64"`
}

func AudioFrom(id string, chunk live.AudioChunk, at time.Duration) ServerAudio {
	return ServerAudio{
		Type:         TypeAudio,
		ID:           id,
		StartMS:      at.Milliseconds(),
		DurationMS:   chunk.Duration().Milliseconds(),
		SampleRateHz: chunk.SampleRateHz,
		Channels:     chunk.Channels,
		DataB64:      base64.StdEncoding.EncodeToString(chunk.PCM),
	}
}

// ServerAudioStop tells the client to silence buffers immediately.
type ServerAudioStop struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ErrorFrom(code, message string) ServerError {
	return ServerError{Type: TypeError, Code: code, Message: message}
}
