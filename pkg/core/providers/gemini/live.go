package gemini

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/vango-go/antron/pkg/core/live"
)

// liveConnector opens genai live sessions. It exists so tests can stand
// in for the SDK.
type liveConnector interface {
	Connect(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error)
}

type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type sdkLive struct {
	live *genai.Live
}

func (s sdkLive) Connect(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error) {
	session, err := s.live.Connect(ctx, model, cfg)
	if err != nil {
		return nil, err
	}
	return session, nil
}

var _ live.Transport = (*Provider)(nil)

// Connect opens a native-audio live session.
func (p *Provider) Connect(ctx context.Context, cfg live.ConnectConfig) (live.Stream, error) {
	if p.live == nil {
		return nil, errors.New("gemini: live sessions are not configured")
	}
	model := stripProviderPrefix(cfg.Model)
	if model == "" {
		model = live.DefaultModel
	}
	session, err := p.live.Connect(ctx, model, buildLiveConfig(cfg))
	if err != nil {
		return nil, mapError(err)
	}
	return &liveStream{session: session}, nil
}

func buildLiveConfig(cfg live.ConnectConfig) *genai.LiveConnectConfig {
	out := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig:       speechConfig(cfg.Voice),
	}
	if strings.TrimSpace(cfg.SystemInstruction) != "" {
		out.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	return out
}

// liveStream adapts a genai session to live.Stream.
type liveStream struct {
	session liveSession
}

func (s *liveStream) Send(in live.RealtimeInput) error {
	var msg genai.LiveRealtimeInput
	switch {
	case in.Audio != nil:
		msg.Audio = &genai.Blob{MIMEType: in.Audio.MIMEType, Data: in.Audio.Data}
	case in.Video != nil:
		msg.Video = &genai.Blob{MIMEType: in.Video.MIMEType, Data: in.Video.Data}
	default:
		return nil
	}
	return s.session.SendRealtimeInput(msg)
}

func (s *liveStream) Receive() (live.ServerMessage, error) {
	for {
		msg, err := s.session.Receive()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, io.EOF) {
				return live.ServerMessage{}, io.EOF
			}
			return live.ServerMessage{}, err
		}
		if out, ok := translateServerMessage(msg); ok {
			return out, nil
		}
	}
}

func (s *liveStream) Close() error {
	return s.session.Close()
}

// translateServerMessage keeps model audio and turn signals. Messages
// carrying neither, such as setup acknowledgements, are skipped.
func translateServerMessage(msg *genai.LiveServerMessage) (live.ServerMessage, bool) {
	if msg == nil || msg.ServerContent == nil {
		return live.ServerMessage{}, false
	}
	sc := msg.ServerContent
	out := live.ServerMessage{
		Interrupted:  sc.Interrupted,
		TurnComplete: sc.TurnComplete,
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			out.Audio = append(out.Audio, live.Blob{
				MIMEType: part.InlineData.MIMEType,
				Data:     part.InlineData.Data,
			})
		}
	}
	if len(out.Audio) == 0 && !out.Interrupted && !out.TurnComplete {
		return live.ServerMessage{}, false
	}
	return out, true
}
