package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/antron/pkg/app"
	"github.com/vango-go/antron/pkg/core"
	"github.com/vango-go/antron/pkg/core/types"
)

// ChatApp is the application state the HTTP surface drives.
// *app.Service implements it.
type ChatApp interface {
	Send(ctx context.Context, query string, attachment *types.Attachment) (*app.Turn, error)
	Snapshot() app.State
	SelectSession(id string) (types.ChatSession, error)
	NewChat()
	TogglePin(ctx context.Context, id string) (types.ChatSession, error)
	SetVoice(v types.VoiceName) error
	SetTheme(t types.Theme) error
	Voice() types.VoiceName
}

type sessionsResponse struct {
	ActiveSessionID string              `json:"active_session_id"`
	Sessions        []types.ChatSession `json:"sessions"`
}

func sessionsFrom(s app.State) sessionsResponse {
	out := sessionsResponse{ActiveSessionID: s.ActiveSessionID, Sessions: s.Sessions}
	if out.Sessions == nil {
		out.Sessions = []types.ChatSession{}
	}
	return out
}

type sessionResponse struct {
	Session types.ChatSession `json:"session"`
}

// SessionsHandler lists sessions newest first.
type SessionsHandler struct {
	App ChatApp
}

func (h SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionsFrom(h.App.Snapshot()))
}

// NewChatHandler clears the active session; the next chat turn starts a
// fresh one.
type NewChatHandler struct {
	App ChatApp
}

func (h NewChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.App.NewChat()
	writeJSON(w, http.StatusOK, sessionsFrom(h.App.Snapshot()))
}

type SelectSessionHandler struct {
	App ChatApp
}

func (h SelectSessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session, err := h.App.SelectSession(r.PathValue("id"))
	if err != nil {
		writeError(w, r, sessionError(err))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: session})
}

type PinSessionHandler struct {
	App ChatApp
}

func (h PinSessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session, err := h.App.TogglePin(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, sessionError(err))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: session})
}

func sessionError(err error) error {
	if errors.Is(err, app.ErrSessionNotFound) {
		return core.NewNotFoundError("session not found")
	}
	return err
}

type chatRequest struct {
	Query      string            `json:"query"`
	Attachment *types.Attachment `json:"attachment,omitempty"`
}

type chatResponse struct {
	Session     types.ChatSession `json:"session"`
	UserMessage types.Message     `json:"user_message"`
	Message     types.Message     `json:"message"`
	// Recovered is set when the reply is the recovery message.
	Recovered bool `json:"recovered,omitempty"`
}

// ChatHandler runs one conversational turn. Synthesis failures come back
// as a normal assistant message, never as an HTTP error.
type ChatHandler struct {
	App     ChatApp
	Timeout time.Duration
	Logger  *slog.Logger
}

func (h ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if att := req.Attachment; att != nil {
		if strings.TrimSpace(att.MIMEType) == "" {
			writeError(w, r, core.NewInvalidRequestErrorWithParam("attachment.mimeType is required", "attachment.mimeType"))
			return
		}
		if _, err := att.Bytes(); err != nil || att.Base64 == "" {
			writeError(w, r, core.NewInvalidRequestErrorWithParam("attachment.base64 must be valid base64", "attachment.base64"))
			return
		}
	}

	ctx := r.Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	turn, err := h.App.Send(ctx, req.Query, req.Attachment)
	if err != nil {
		if errors.Is(err, app.ErrEmptyQuery) {
			err = core.NewInvalidRequestErrorWithParam("query or attachment is required", "query")
		}
		writeError(w, r, err)
		return
	}
	if turn.Err != nil && h.Logger != nil {
		h.Logger.Warn("chat turn recovered", "request_id", requestIDFromContext(r.Context()), "session_id", turn.Session.ID, "error", turn.Err)
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Session:     turn.Session,
		UserMessage: turn.User,
		Message:     turn.Assistant,
		Recovered:   turn.Err != nil,
	})
}

type settingsRequest struct {
	Voice *string `json:"voice,omitempty"`
	Theme *string `json:"theme,omitempty"`
}

type settingsResponse struct {
	Voice  types.VoiceName   `json:"voice"`
	Theme  types.Theme       `json:"theme"`
	Voices []types.VoiceName `json:"voices"`
}

// SettingsHandler reads (GET) and updates (PUT) voice and theme.
type SettingsHandler struct {
	App ChatApp
}

func (h SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut {
		var req settingsRequest
		if err := decodeJSONBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		// Validate both before applying either.
		var (
			voice types.VoiceName
			theme types.Theme
			err   error
		)
		if req.Voice != nil {
			if voice, err = types.ParseVoice(*req.Voice); err != nil {
				writeError(w, r, core.NewInvalidRequestErrorWithParam(err.Error(), "voice"))
				return
			}
		}
		if req.Theme != nil {
			if theme, err = types.ParseTheme(*req.Theme); err != nil {
				writeError(w, r, core.NewInvalidRequestErrorWithParam(err.Error(), "theme"))
				return
			}
		}
		if voice != "" {
			if err := h.App.SetVoice(voice); err != nil {
				writeError(w, r, core.NewInvalidRequestErrorWithParam(err.Error(), "voice"))
				return
			}
		}
		if theme != "" {
			if err := h.App.SetTheme(theme); err != nil {
				writeError(w, r, core.NewInvalidRequestErrorWithParam(err.Error(), "theme"))
				return
			}
		}
	}

	snap := h.App.Snapshot()
	writeJSON(w, http.StatusOK, settingsResponse{
		Voice:  snap.ActiveVoice,
		Theme:  snap.Theme,
		Voices: types.Voices,
	})
}
