package live

// Event is the interface for all streaming client events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// OpenedEvent is emitted once the connection is established.
type OpenedEvent struct{}

func (e *OpenedEvent) EventType() string { return "opened" }

// AudioEvent carries one inbound audio payload.
type AudioEvent struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mime_type"`
}

func (e *AudioEvent) EventType() string { return "audio" }

// InterruptedEvent signals that the model stopped its current output
// because the user started speaking.
type InterruptedEvent struct{}

func (e *InterruptedEvent) EventType() string { return "interrupted" }

// TurnCompleteEvent marks the end of a model turn.
type TurnCompleteEvent struct{}

func (e *TurnCompleteEvent) EventType() string { return "turn.complete" }

// ClosedEvent is always the last event. Err is nil for a local close.
type ClosedEvent struct {
	Err error `json:"-"`
}

func (e *ClosedEvent) EventType() string { return "closed" }
