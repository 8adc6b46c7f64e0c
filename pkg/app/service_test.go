package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/antron/pkg/core/types"
	"github.com/vango-go/antron/pkg/orchestrator"
	"github.com/vango-go/antron/pkg/store"
)

type memStore struct {
	mu      sync.Mutex
	data    []types.ChatSession
	saves   int
	saveErr error
}

func (m *memStore) Load(ctx context.Context) ([]types.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.ChatSession{}, m.data...), nil
}

func (m *memStore) Save(ctx context.Context, sessions []types.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.data = nil
	for _, s := range sessions {
		m.data = append(m.data, cloneSession(s))
	}
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) snapshot() []types.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.ChatSession{}, m.data...)
}

type fakeOrchestrator struct {
	res     *orchestrator.Result
	err     error
	queries []string
	// during runs inside Synthesize, while the state lock is released.
	during func()
}

func (f *fakeOrchestrator) Synthesize(ctx context.Context, query string, attachment *types.Attachment) (*orchestrator.Result, error) {
	f.queries = append(f.queries, query)
	if f.during != nil {
		f.during()
	}
	return f.res, f.err
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestService(t *testing.T, st store.Store, orch Synthesizer) *Service {
	t.Helper()
	n := 0
	clock := &testClock{t: time.UnixMilli(1_700_000_000_000)}
	svc, err := New(context.Background(), Dependencies{
		Store:        st,
		Orchestrator: orch,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:          clock.Now,
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func reply(text string, calls ...types.ToolCall) *orchestrator.Result {
	return &orchestrator.Result{
		Orchestration: types.OrchestrationResult{FinalSynthesis: text, EstimatedTime: "0.05s", ToolCalls: calls},
		UsedModel:     "Speed Node",
	}
}

func TestNew_Defaults(t *testing.T) {
	st := &memStore{data: []types.ChatSession{{ID: "old", Title: "Old", Messages: []types.Message{}}}}
	svc := newTestService(t, st, &fakeOrchestrator{})

	snap := svc.Snapshot()
	if snap.Theme != types.ThemeIslamic || snap.ActiveVoice != types.VoiceKore || snap.ActiveSessionID != "old" {
		t.Fatalf("snapshot=%+v", snap)
	}
	if len(snap.Sessions) != 1 || snap.Sessions[0].ID != "old" {
		t.Fatalf("sessions=%+v", snap.Sessions)
	}
	if active, ok := svc.ActiveSession(); !ok || active.ID != "old" {
		t.Fatalf("active=%+v ok=%v", active, ok)
	}
}

func TestNew_EmptyStoreHasNoActiveSession(t *testing.T) {
	svc := newTestService(t, &memStore{}, &fakeOrchestrator{})
	if _, ok := svc.ActiveSession(); ok {
		t.Fatalf("expected no active session")
	}
}

func TestSend_AfterRestartContinuesLatestSession(t *testing.T) {
	st := &memStore{data: []types.ChatSession{
		{ID: "latest", Title: "Latest", Messages: []types.Message{}},
		{ID: "older", Title: "Older", Messages: []types.Message{}},
	}}
	svc := newTestService(t, st, &fakeOrchestrator{res: reply("ok")})

	turn, err := svc.Send(context.Background(), "continue", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if turn.Session.ID != "latest" || turn.Session.Title != "Latest" || len(turn.Session.Messages) != 2 {
		t.Fatalf("session=%+v", turn.Session)
	}
	if got := svc.Sessions(); len(got) != 2 {
		t.Fatalf("no session should be created: %+v", got)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(context.Background(), Dependencies{Orchestrator: &fakeOrchestrator{}}); err == nil {
		t.Fatalf("expected store error")
	}
	if _, err := New(context.Background(), Dependencies{Store: &memStore{}}); err == nil {
		t.Fatalf("expected orchestrator error")
	}
}

func TestSend_CreatesSessionAndPersists(t *testing.T) {
	st := &memStore{data: []types.ChatSession{{ID: "old", Title: "Old", Messages: []types.Message{}}}}
	svc := newTestService(t, st, &fakeOrchestrator{res: reply("Wa alaikum salam.")})
	svc.NewChat()

	turn, err := svc.Send(context.Background(), "  Assalamu alaikum, how are you today?  ", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if turn.Err != nil {
		t.Fatalf("turn.Err=%v", turn.Err)
	}
	if turn.Session.Title != "Assalamu alaikum, ho" {
		t.Fatalf("title=%q", turn.Session.Title)
	}
	if len(turn.Session.Messages) != 2 {
		t.Fatalf("messages=%+v", turn.Session.Messages)
	}
	user, asst := turn.Session.Messages[0], turn.Session.Messages[1]
	if user.Role != types.RoleUser || user.Content != "Assalamu alaikum, how are you today?" {
		t.Fatalf("user=%+v", user)
	}
	if asst.Role != types.RoleAssistant || asst.Content != "Wa alaikum salam." || asst.UsedModel != "Speed Node" {
		t.Fatalf("assistant=%+v", asst)
	}
	if asst.Timestamp <= user.Timestamp || turn.Session.LastUpdate != asst.Timestamp {
		t.Fatalf("timestamps user=%d assistant=%d last=%d", user.Timestamp, asst.Timestamp, turn.Session.LastUpdate)
	}

	sessions := svc.Sessions()
	if len(sessions) != 2 || sessions[0].ID != turn.Session.ID || sessions[1].ID != "old" {
		t.Fatalf("new session must be prepended: %+v", sessions)
	}
	if active, ok := svc.ActiveSession(); !ok || active.ID != turn.Session.ID {
		t.Fatalf("active=%+v ok=%v", active, ok)
	}

	persisted := st.snapshot()
	if st.saves != 2 {
		t.Fatalf("saves=%d, want 2", st.saves)
	}
	if len(persisted) != 2 || len(persisted[0].Messages) != 2 {
		t.Fatalf("persisted=%+v", persisted)
	}
}

func TestSend_AppendsToActiveSession(t *testing.T) {
	orch := &fakeOrchestrator{res: reply("ok")}
	svc := newTestService(t, &memStore{}, orch)

	first, err := svc.Send(context.Background(), "one", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	second, err := svc.Send(context.Background(), "two", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if first.Session.ID != second.Session.ID || len(second.Session.Messages) != 4 {
		t.Fatalf("second=%+v", second.Session)
	}
	if second.Session.Title != "one" {
		t.Fatalf("title=%q", second.Session.Title)
	}
	if len(svc.Sessions()) != 1 {
		t.Fatalf("sessions=%d", len(svc.Sessions()))
	}
}

func TestSend_EmptyQuery(t *testing.T) {
	svc := newTestService(t, &memStore{}, &fakeOrchestrator{res: reply("ok")})
	if _, err := svc.Send(context.Background(), "   ", nil); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("err=%v", err)
	}

	att := types.NewAttachment("a.png", "image/png", []byte{1})
	turn, err := svc.Send(context.Background(), "", &att)
	if err != nil {
		t.Fatalf("attachment-only Send: %v", err)
	}
	if turn.Session.Title != types.DefaultSessionTitle {
		t.Fatalf("title=%q", turn.Session.Title)
	}
	if turn.User.Attachment == nil || turn.User.Attachment.Name != "a.png" {
		t.Fatalf("user=%+v", turn.User)
	}
}

func TestSend_FailureBecomesRecoveryMessage(t *testing.T) {
	cause := errors.New("boom")
	svc := newTestService(t, &memStore{}, &fakeOrchestrator{err: cause})

	turn, err := svc.Send(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !errors.Is(turn.Err, cause) {
		t.Fatalf("turn.Err=%v", turn.Err)
	}
	if turn.Assistant.Content != orchestrator.RecoveryMessage || turn.Assistant.Orchestration != nil {
		t.Fatalf("assistant=%+v", turn.Assistant)
	}
	if len(turn.Session.Messages) != 2 {
		t.Fatalf("messages=%d", len(turn.Session.Messages))
	}
}

func TestSend_VoiceToolCall(t *testing.T) {
	call := types.ToolCall{Name: orchestrator.ToolSetVoiceSignature, Args: map[string]any{"voice": "Fenrir"}}
	svc := newTestService(t, &memStore{}, &fakeOrchestrator{res: reply("switching", call)})

	if _, err := svc.Send(context.Background(), "use fenrir", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if svc.Voice() != types.VoiceFenrir {
		t.Fatalf("voice=%q", svc.Voice())
	}
}

func TestSend_StoreFailure(t *testing.T) {
	st := &memStore{saveErr: errors.New("disk full")}
	svc := newTestService(t, st, &fakeOrchestrator{res: reply("ok")})
	if _, err := svc.Send(context.Background(), "hi", nil); err == nil {
		t.Fatalf("expected save error")
	}
}

func TestSend_NewChatDuringTurn(t *testing.T) {
	orch := &fakeOrchestrator{res: reply("late")}
	svc := newTestService(t, &memStore{}, orch)
	orch.during = svc.NewChat

	turn, err := svc.Send(context.Background(), "first", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(turn.Session.Messages) != 2 {
		t.Fatalf("reply must land in the original session: %+v", turn.Session)
	}
	if _, ok := svc.ActiveSession(); ok {
		t.Fatalf("NewChat must leave no active session")
	}
}

func TestSelectAndNewChat(t *testing.T) {
	st := &memStore{data: []types.ChatSession{
		{ID: "a", Title: "A", Messages: []types.Message{}},
		{ID: "b", Title: "B", Messages: []types.Message{}},
	}}
	orch := &fakeOrchestrator{res: reply("ok")}
	svc := newTestService(t, st, orch)

	if _, err := svc.SelectSession("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err=%v", err)
	}
	got, err := svc.SelectSession("b")
	if err != nil || got.ID != "b" {
		t.Fatalf("select=%+v err=%v", got, err)
	}
	turn, err := svc.Send(context.Background(), "into b", nil)
	if err != nil || turn.Session.ID != "b" {
		t.Fatalf("turn=%+v err=%v", turn, err)
	}

	svc.NewChat()
	turn, err = svc.Send(context.Background(), "fresh", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if turn.Session.ID == "a" || turn.Session.ID == "b" {
		t.Fatalf("expected a new session, got %q", turn.Session.ID)
	}
	if ids := svc.Sessions(); ids[0].ID != turn.Session.ID || len(ids) != 3 {
		t.Fatalf("sessions=%+v", ids)
	}
}

func TestTogglePin(t *testing.T) {
	st := &memStore{data: []types.ChatSession{{ID: "a", Title: "A", Messages: []types.Message{}}}}
	svc := newTestService(t, st, &fakeOrchestrator{})

	got, err := svc.TogglePin(context.Background(), "a")
	if err != nil || !got.Pinned {
		t.Fatalf("pin=%+v err=%v", got, err)
	}
	if !st.snapshot()[0].Pinned {
		t.Fatalf("pin not persisted")
	}
	got, _ = svc.TogglePin(context.Background(), "a")
	if got.Pinned {
		t.Fatalf("expected unpinned")
	}
	if _, err := svc.TogglePin(context.Background(), "zz"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err=%v", err)
	}

	st.saveErr = errors.New("disk full")
	if _, err := svc.TogglePin(context.Background(), "a"); err == nil {
		t.Fatalf("expected save error")
	}
	if svc.Sessions()[0].Pinned {
		t.Fatalf("failed toggle must roll back")
	}
}

func TestSettings(t *testing.T) {
	svc := newTestService(t, &memStore{}, &fakeOrchestrator{})

	if err := svc.SetVoice(types.VoiceCharon); err != nil {
		t.Fatalf("SetVoice: %v", err)
	}
	if svc.Voice() != types.VoiceCharon {
		t.Fatalf("voice=%q", svc.Voice())
	}
	if err := svc.SetVoice("Nobody"); err == nil {
		t.Fatalf("expected voice error")
	}
	if err := svc.SetTheme(types.ThemeDark); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	if err := svc.SetTheme("NEON"); err == nil {
		t.Fatalf("expected theme error")
	}
	if svc.Theme() != types.ThemeDark {
		t.Fatalf("theme=%q", svc.Theme())
	}
}

func TestSessions_ReturnsCopies(t *testing.T) {
	svc := newTestService(t, &memStore{}, &fakeOrchestrator{res: reply("ok")})
	if _, err := svc.Send(context.Background(), "hi", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	list := svc.Sessions()
	list[0].Messages[0].Content = "mutated"
	list[0].Title = "mutated"
	if got := svc.Sessions()[0]; got.Title == "mutated" || got.Messages[0].Content == "mutated" {
		t.Fatalf("state leaked: %+v", got)
	}
}
