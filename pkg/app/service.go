// Package app holds the assistant's application state and the operations
// that change it.
//
// State is explicit and owned by a Service. Every session mutation writes
// the full session list through the store before returning.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/antron/pkg/core/types"
	"github.com/vango-go/antron/pkg/orchestrator"
	"github.com/vango-go/antron/pkg/store"
)

var (
	ErrEmptyQuery      = errors.New("query or attachment is required")
	ErrSessionNotFound = errors.New("session not found")
)

// Synthesizer answers one turn.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, attachment *types.Attachment) (*orchestrator.Result, error)
}

// State is a snapshot of the application state.
type State struct {
	Theme           types.Theme
	ActiveVoice     types.VoiceName
	ActiveSessionID string
	Sessions        []types.ChatSession
}

// Dependencies wires a Service.
type Dependencies struct {
	Store        store.Store
	Orchestrator Synthesizer
	Logger       *slog.Logger

	// Now and NewID default to the wall clock and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

// Service serializes state changes. Turns are synthesized outside the
// state lock, so reads stay responsive while a reply is pending.
type Service struct {
	store  store.Store
	orch   Synthesizer
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu    sync.Mutex
	state State
}

// New loads the persisted sessions and returns a Service with the default
// theme and voice. The most recent saved session, if any, is active.
func New(ctx context.Context, deps Dependencies) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	s := &Service{
		store:  deps.Store,
		orch:   deps.Orchestrator,
		logger: deps.Logger,
		now:    deps.Now,
		newID:  deps.NewID,
		state: State{
			Theme:       types.DefaultTheme,
			ActiveVoice: types.DefaultVoice,
		},
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.logger = s.logger.With("component", "app")
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString() }
	}

	sessions, err := deps.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	s.state.Sessions = sessions
	if len(sessions) > 0 {
		s.state.ActiveSessionID = sessions[0].ID
	}
	return s, nil
}

// Turn is the outcome of Send.
type Turn struct {
	Session   types.ChatSession
	User      types.Message
	Assistant types.Message
	// Err is the synthesis failure replaced by the recovery message.
	Err error
}

// Send appends the user's message to the active session (creating one if
// needed), asks the orchestrator for a reply and appends it. Synthesis
// failures never surface as errors: the reply becomes the recovery
// message and Turn.Err records the cause. A setVoiceSignature tool call
// switches the active voice.
func (s *Service) Send(ctx context.Context, query string, attachment *types.Attachment) (*Turn, error) {
	query = strings.TrimSpace(query)
	if query == "" && attachment == nil {
		return nil, ErrEmptyQuery
	}

	s.mu.Lock()
	sessionID := s.state.ActiveSessionID
	if s.indexOf(sessionID) < 0 {
		now := s.nowMillis()
		sessionID = s.newID()
		session := types.ChatSession{
			ID:         sessionID,
			Title:      types.NewSessionTitle(query),
			Messages:   []types.Message{},
			LastUpdate: now,
		}
		s.state.Sessions = append([]types.ChatSession{session}, s.state.Sessions...)
		s.state.ActiveSessionID = sessionID
	}
	user := types.Message{
		ID:         s.newID(),
		Role:       types.RoleUser,
		Content:    query,
		Timestamp:  s.nowMillis(),
		Attachment: attachment,
	}
	if _, err := s.appendLocked(ctx, sessionID, user); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	turn := &Turn{User: user}
	res, err := s.orch.Synthesize(ctx, query, attachment)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.logger.Error("turn failed", "session_id", sessionID, "error", err)
		turn.Err = err
		turn.Assistant = types.Message{
			ID:        s.newID(),
			Role:      types.RoleAssistant,
			Content:   orchestrator.RecoveryMessage,
			Timestamp: s.nowMillis(),
		}
	} else {
		turn.Assistant = res.AssistantMessage(s.newID(), s.nowMillis())
		if voice, ok := orchestrator.RequestedVoice(res.Orchestration.ToolCalls); ok {
			s.logger.Info("voice signature changed", "voice", voice)
			s.state.ActiveVoice = voice
		}
	}

	// Persist against a context that outlives a cancelled request so the
	// reply is not lost.
	session, err := s.appendLocked(context.WithoutCancel(ctx), sessionID, turn.Assistant)
	if err != nil {
		return nil, err
	}
	turn.Session = session
	return turn, nil
}

// appendLocked appends msg to the session and persists. The session is
// recreated at the head of the list if it vanished meanwhile.
func (s *Service) appendLocked(ctx context.Context, sessionID string, msg types.Message) (types.ChatSession, error) {
	i := s.indexOf(sessionID)
	if i < 0 {
		s.state.Sessions = append([]types.ChatSession{{
			ID:       sessionID,
			Title:    types.NewSessionTitle(msg.Content),
			Messages: []types.Message{},
		}}, s.state.Sessions...)
		i = 0
	}
	session := &s.state.Sessions[i]
	session.Messages = append(session.Messages, msg)
	session.LastUpdate = msg.Timestamp
	if err := s.persistLocked(ctx); err != nil {
		return types.ChatSession{}, err
	}
	return cloneSession(*session), nil
}

func (s *Service) persistLocked(ctx context.Context) error {
	if err := s.store.Save(ctx, s.state.Sessions); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}

// SelectSession makes id the active session.
func (s *Service) SelectSession(id string) (types.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return types.ChatSession{}, ErrSessionNotFound
	}
	s.state.ActiveSessionID = id
	return cloneSession(s.state.Sessions[i]), nil
}

// NewChat clears the active session. The next Send creates a new one.
func (s *Service) NewChat() {
	s.mu.Lock()
	s.state.ActiveSessionID = ""
	s.mu.Unlock()
}

// TogglePin flips the pinned flag of a session and persists.
func (s *Service) TogglePin(ctx context.Context, id string) (types.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return types.ChatSession{}, ErrSessionNotFound
	}
	s.state.Sessions[i].Pinned = !s.state.Sessions[i].Pinned
	if err := s.persistLocked(ctx); err != nil {
		s.state.Sessions[i].Pinned = !s.state.Sessions[i].Pinned
		return types.ChatSession{}, err
	}
	return cloneSession(s.state.Sessions[i]), nil
}

// SetVoice selects the voice used by speech synthesis and the next live
// session.
func (s *Service) SetVoice(v types.VoiceName) error {
	if !v.Valid() {
		return fmt.Errorf("unknown voice %q", v)
	}
	s.mu.Lock()
	s.state.ActiveVoice = v
	s.mu.Unlock()
	return nil
}

func (s *Service) SetTheme(t types.Theme) error {
	if !t.Valid() {
		return fmt.Errorf("unknown theme %q", t)
	}
	s.mu.Lock()
	s.state.Theme = t
	s.mu.Unlock()
	return nil
}

// Voice returns the active voice.
func (s *Service) Voice() types.VoiceName {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ActiveVoice
}

func (s *Service) Theme() types.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Theme
}

// Sessions returns the session list, most recently created first.
func (s *Service) Sessions() []types.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ChatSession, len(s.state.Sessions))
	for i, session := range s.state.Sessions {
		out[i] = cloneSession(session)
	}
	return out
}

// ActiveSession returns the active session, if any.
func (s *Service) ActiveSession() (types.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(s.state.ActiveSessionID)
	if i < 0 {
		return types.ChatSession{}, false
	}
	return cloneSession(s.state.Sessions[i]), true
}

// Snapshot returns a copy of the full state.
func (s *Service) Snapshot() State {
	sessions := s.Sessions()
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Sessions = sessions
	return st
}

func (s *Service) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.state.Sessions {
		if s.state.Sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) nowMillis() int64 {
	return s.now().UnixMilli()
}

func cloneSession(session types.ChatSession) types.ChatSession {
	session.Messages = append([]types.Message(nil), session.Messages...)
	if session.Messages == nil {
		session.Messages = []types.Message{}
	}
	return session
}
