package types

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultSessionTitle is used when a session is created from an empty query.
const DefaultSessionTitle = "Mandate Engagement"

// sessionTitleRunes bounds titles derived from the first query.
const sessionTitleRunes = 20

// ChatSession is one conversation thread. Messages are append-only.
type ChatSession struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Messages   []Message `json:"messages"`
	Pinned     bool      `json:"isPinned,omitempty"`
	LastUpdate int64     `json:"lastUpdate"` // unix ms
}

// Message is a single entry in a session. Once appended it is never mutated.
type Message struct {
	ID         string      `json:"id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	Timestamp  int64       `json:"timestamp"` // unix ms
	Attachment *Attachment `json:"attachment,omitempty"`

	// Assistant-only metadata.
	Orchestration    *OrchestrationResult `json:"orchestration,omitempty"`
	UsedModel        string               `json:"usedModel,omitempty"`
	NodeDistribution map[string]int       `json:"nodeDistribution,omitempty"`
	Sources          []Source             `json:"groundingSources,omitempty"`
	ImageResponse    string               `json:"imageResponse,omitempty"` // data URI
}

// Attachment is user-supplied binary content carried inline as base64.
type Attachment struct {
	Base64   string `json:"base64"`
	MIMEType string `json:"mimeType"`
	Name     string `json:"name"`
}

// OrchestrationResult is the structured outcome of one assistant turn.
type OrchestrationResult struct {
	SimulatedResponses []SimulatedResponse `json:"simulatedResponses"`
	FinalSynthesis     string              `json:"finalSynthesis"`
	EstimatedTime      string              `json:"estimatedTime"`
	ToolCalls          []ToolCall          `json:"toolCalls,omitempty"`
}

// SimulatedResponse is a cosmetic per-node summary shown alongside a reply.
type SimulatedResponse struct {
	Model   string `json:"model"`
	Summary string `json:"summary"`
}

// Source is a grounding reference returned by search-backed generation.
type Source struct {
	URI    string `json:"uri"`
	Title  string `json:"title,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// NewSessionTitle derives a session title from the first query.
func NewSessionTitle(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return DefaultSessionTitle
	}
	if utf8.RuneCountInString(query) <= sessionTitleRunes {
		return query
	}
	runes := []rune(query)
	return string(runes[:sessionTitleRunes])
}

// Last returns the most recent message, if any.
func (s ChatSession) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// NewAttachment encodes raw bytes as an inline attachment.
// An empty mimeType is sniffed from the content.
func NewAttachment(name, mimeType string, data []byte) Attachment {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = http.DetectContentType(data)
	}
	return Attachment{
		Base64:   base64.StdEncoding.EncodeToString(data),
		MIMEType: mimeType,
		Name:     name,
	}
}

// AttachmentFromFile reads path and returns it as an attachment.
func AttachmentFromFile(path string) (Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("read attachment: %w", err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	return NewAttachment(filepath.Base(path), mimeType, data), nil
}

// Bytes decodes the attachment payload.
func (a Attachment) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(a.Base64)
	if err != nil {
		return nil, fmt.Errorf("decode attachment %q: %w", a.Name, err)
	}
	return data, nil
}

// DataURI renders data as a data: URI.
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
