package live

import (
	"context"

	"github.com/vango-go/antron/pkg/core/types"
)

// ConnectConfig is the per-session setup sent when a stream opens.
type ConnectConfig struct {
	Model             string
	Voice             types.VoiceName
	SystemInstruction string
}

// Blob is a MIME-typed binary payload.
type Blob struct {
	MIMEType string
	Data     []byte
}

// RealtimeInput carries exactly one of Audio or Video.
type RealtimeInput struct {
	Audio *Blob
	Video *Blob
}

// ServerMessage is one inbound frame, reduced to what playback needs.
type ServerMessage struct {
	Audio        []Blob
	Interrupted  bool
	TurnComplete bool
}

// Transport opens bidirectional streams to the remote model.
type Transport interface {
	Connect(ctx context.Context, cfg ConnectConfig) (Stream, error)
}

// Stream is an open connection. Send and Receive may be called
// concurrently with each other but not with themselves. Close unblocks
// Receive.
type Stream interface {
	Send(in RealtimeInput) error
	Receive() (ServerMessage, error)
	Close() error
}
