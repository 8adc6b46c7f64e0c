package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-go/antron/pkg/app"
	"github.com/vango-go/antron/pkg/core"
	"github.com/vango-go/antron/pkg/core/types"
	"github.com/vango-go/antron/pkg/orchestrator"
	"github.com/vango-go/antron/pkg/store"
)

type fakeOrchestrator struct {
	reply string
	err   error
	calls []string
}

func (f *fakeOrchestrator) Synthesize(ctx context.Context, query string, attachment *types.Attachment) (*orchestrator.Result, error) {
	f.calls = append(f.calls, query)
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.Result{
		Orchestration: types.OrchestrationResult{FinalSynthesis: f.reply},
		UsedModel:     "Gemini 3 Pro",
	}, nil
}

func newTestApp(t *testing.T, orch *fakeOrchestrator) *app.Service {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	svc, err := app.New(context.Background(), app.Dependencies{Store: st, Orchestrator: orch})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	return svc
}

func newAppMux(svc ChatApp, synth SpeechSynthesizer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /v1/sessions", SessionsHandler{App: svc})
	mux.Handle("POST /v1/sessions/new", NewChatHandler{App: svc})
	mux.Handle("POST /v1/sessions/{id}/select", SelectSessionHandler{App: svc})
	mux.Handle("POST /v1/sessions/{id}/pin", PinSessionHandler{App: svc})
	mux.Handle("POST /v1/chat", ChatHandler{App: svc})
	mux.Handle("GET /v1/settings", SettingsHandler{App: svc})
	mux.Handle("PUT /v1/settings", SettingsHandler{App: svc})
	mux.Handle("POST /v1/speech", SpeechHandler{App: svc, Synth: synth})
	return mux
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal %q: %v", rr.Body.String(), err)
	}
	return out
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) core.ErrorType {
	t.Helper()
	env := decodeBody[struct {
		Error core.Error `json:"error"`
	}](t, rr)
	return env.Error.Type
}

func TestChatHandler_CreatesSessionAndReplies(t *testing.T) {
	orch := &fakeOrchestrator{reply: "Wa alaikum assalam"}
	mux := newAppMux(newTestApp(t, orch), nil)

	rr := do(t, mux, http.MethodPost, "/v1/chat", `{"query":"Assalamu alaikum"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	resp := decodeBody[chatResponse](t, rr)
	if resp.Message.Content != "Wa alaikum assalam" || resp.Message.Role != types.RoleAssistant {
		t.Fatalf("message=%+v", resp.Message)
	}
	if resp.UserMessage.Content != "Assalamu alaikum" || resp.Recovered {
		t.Fatalf("user=%+v recovered=%v", resp.UserMessage, resp.Recovered)
	}
	if len(resp.Session.Messages) != 2 || resp.Session.Title != "Assalamu alaikum" {
		t.Fatalf("session=%+v", resp.Session)
	}

	list := decodeBody[sessionsResponse](t, do(t, mux, http.MethodGet, "/v1/sessions", ""))
	if len(list.Sessions) != 1 || list.ActiveSessionID != resp.Session.ID {
		t.Fatalf("sessions=%+v", list)
	}
}

func TestChatHandler_FailureBecomesRecoveryMessage(t *testing.T) {
	orch := &fakeOrchestrator{err: core.NewInferenceError("exhausted", errors.New("503"))}
	mux := newAppMux(newTestApp(t, orch), nil)

	rr := do(t, mux, http.MethodPost, "/v1/chat", `{"query":"hello"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	resp := decodeBody[chatResponse](t, rr)
	if !resp.Recovered || !strings.Contains(resp.Message.Content, "recovering logic path") {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestChatHandler_RejectsBadInput(t *testing.T) {
	mux := newAppMux(newTestApp(t, &fakeOrchestrator{reply: "x"}), nil)

	tests := []struct {
		name string
		body string
	}{
		{"empty", `{"query":"   "}`},
		{"no body", ``},
		{"unknown field", `{"query":"hi","model":"x"}`},
		{"attachment without mime", `{"query":"hi","attachment":{"base64":"aGk=","name":"a.txt"}}`},
		{"attachment bad base64", `{"query":"hi","attachment":{"base64":"!!","mimeType":"text/plain"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, mux, http.MethodPost, "/v1/chat", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
			}
			if typ := errorType(t, rr); typ != core.ErrInvalidRequest {
				t.Fatalf("type=%q", typ)
			}
		})
	}
}

func TestChatHandler_AttachmentOnly(t *testing.T) {
	orch := &fakeOrchestrator{reply: "a picture of a mosque"}
	mux := newAppMux(newTestApp(t, orch), nil)

	data := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	rr := do(t, mux, http.MethodPost, "/v1/chat", `{"attachment":{"base64":"`+data+`","mimeType":"image/png","name":"m.png"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	resp := decodeBody[chatResponse](t, rr)
	if resp.Session.Title != types.DefaultSessionTitle {
		t.Fatalf("title=%q", resp.Session.Title)
	}
	if resp.UserMessage.Attachment == nil || resp.UserMessage.Attachment.MIMEType != "image/png" {
		t.Fatalf("attachment=%+v", resp.UserMessage.Attachment)
	}
}

func TestSessionHandlers_SelectPinNew(t *testing.T) {
	svc := newTestApp(t, &fakeOrchestrator{reply: "ok"})
	mux := newAppMux(svc, nil)

	first := decodeBody[chatResponse](t, do(t, mux, http.MethodPost, "/v1/chat", `{"query":"first"}`))
	rr := do(t, mux, http.MethodPost, "/v1/sessions/new", "")
	if rr.Code != http.StatusOK || decodeBody[sessionsResponse](t, rr).ActiveSessionID != "" {
		t.Fatalf("new chat: status=%d body=%q", rr.Code, rr.Body.String())
	}
	second := decodeBody[chatResponse](t, do(t, mux, http.MethodPost, "/v1/chat", `{"query":"second"}`))
	if second.Session.ID == first.Session.ID {
		t.Fatalf("expected a new session")
	}

	rr = do(t, mux, http.MethodPost, "/v1/sessions/"+first.Session.ID+"/select", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("select status=%d", rr.Code)
	}
	if got := decodeBody[sessionResponse](t, rr).Session.ID; got != first.Session.ID {
		t.Fatalf("selected=%q", got)
	}
	if svc.Snapshot().ActiveSessionID != first.Session.ID {
		t.Fatalf("active=%q", svc.Snapshot().ActiveSessionID)
	}

	rr = do(t, mux, http.MethodPost, "/v1/sessions/"+first.Session.ID+"/pin", "")
	if rr.Code != http.StatusOK || !decodeBody[sessionResponse](t, rr).Session.Pinned {
		t.Fatalf("pin status=%d body=%q", rr.Code, rr.Body.String())
	}

	for _, path := range []string{"/v1/sessions/nope/select", "/v1/sessions/nope/pin"} {
		rr = do(t, mux, http.MethodPost, path, "")
		if rr.Code != http.StatusNotFound || errorType(t, rr) != core.ErrNotFound {
			t.Fatalf("%s: status=%d body=%q", path, rr.Code, rr.Body.String())
		}
	}
}

func TestSessionsHandler_EmptyListIsArray(t *testing.T) {
	mux := newAppMux(newTestApp(t, &fakeOrchestrator{}), nil)
	rr := do(t, mux, http.MethodGet, "/v1/sessions", "")
	if !strings.Contains(rr.Body.String(), `"sessions":[]`) {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestSettingsHandler(t *testing.T) {
	svc := newTestApp(t, &fakeOrchestrator{})
	mux := newAppMux(svc, nil)

	got := decodeBody[settingsResponse](t, do(t, mux, http.MethodGet, "/v1/settings", ""))
	if got.Voice != types.VoiceKore || got.Theme != types.ThemeIslamic || len(got.Voices) != 5 {
		t.Fatalf("settings=%+v", got)
	}

	rr := do(t, mux, http.MethodPut, "/v1/settings", `{"voice":"charon","theme":"dark"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	got = decodeBody[settingsResponse](t, rr)
	if got.Voice != types.VoiceCharon || got.Theme != types.ThemeDark {
		t.Fatalf("settings=%+v", got)
	}

	// A bad theme leaves the voice untouched too.
	rr = do(t, mux, http.MethodPut, "/v1/settings", `{"voice":"Puck","theme":"neon"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
	if svc.Voice() != types.VoiceCharon {
		t.Fatalf("voice=%q", svc.Voice())
	}
}

type fakeSpeech struct {
	voice types.VoiceName
	text  string
	err   error
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text string, voice types.VoiceName) (*core.SpeechResponse, error) {
	f.voice, f.text = voice, text
	if f.err != nil {
		return nil, f.err
	}
	return &core.SpeechResponse{PCM: []byte{1, 0, 2, 0}, SampleRateHz: 24000}, nil
}

func TestSpeechHandler(t *testing.T) {
	svc := newTestApp(t, &fakeOrchestrator{})
	if err := svc.SetVoice(types.VoiceZephyr); err != nil {
		t.Fatalf("SetVoice: %v", err)
	}
	synth := &fakeSpeech{}
	mux := newAppMux(svc, synth)

	rr := do(t, mux, http.MethodPost, "/v1/speech", `{"text":"Bismillah"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "audio/pcm;rate=24000" {
		t.Fatalf("content-type=%q", ct)
	}
	if rr.Body.Len() != 4 || synth.voice != types.VoiceZephyr || synth.text != "Bismillah" {
		t.Fatalf("body=%v voice=%q text=%q", rr.Body.Bytes(), synth.voice, synth.text)
	}

	do(t, mux, http.MethodPost, "/v1/speech", `{"text":"x","voice":"fenrir"}`)
	if synth.voice != types.VoiceFenrir {
		t.Fatalf("voice=%q", synth.voice)
	}

	rr = do(t, mux, http.MethodPost, "/v1/speech", `{"text":"x","voice":"Alloy"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}

	synth.err = core.NewInvalidRequestErrorWithParam("text is required", "text")
	rr = do(t, mux, http.MethodPost, "/v1/speech", `{"text":""}`)
	if rr.Code != http.StatusBadRequest || errorType(t, rr) != core.ErrInvalidRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}
