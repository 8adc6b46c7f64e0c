package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-go/antron/pkg/core"
	"github.com/vango-go/antron/pkg/core/live"
	"github.com/vango-go/antron/pkg/gateway/config"
	"github.com/vango-go/antron/pkg/gateway/lifecycle"
	"github.com/vango-go/antron/pkg/gateway/live/bridge"
	"github.com/vango-go/antron/pkg/gateway/live/protocol"
	"github.com/vango-go/antron/pkg/gateway/live/sessions"
	"github.com/vango-go/antron/pkg/gateway/mw"
)

// LiveHandler handles /v1/live websocket sessions. The socket is the
// session's microphone, camera and speaker; the model stream comes from
// Transport.
type LiveHandler struct {
	Config       config.Config
	Transport    live.Transport
	Voice        live.VoiceSource
	Logger       *slog.Logger
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())
	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrOverloaded, Message: "server is draining", Code: protocol.CodeDraining}, 529)
		return
	}
	if !h.originAllowed(r) {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrPermission, Message: "origin is not allowed", Param: "Origin"}, http.StatusForbidden)
		return
	}
	if h.LiveSessions.Count() >= h.Config.LiveMaxSessions {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrRateLimit, Message: "a live session is already running", Code: protocol.CodeBusy}, http.StatusTooManyRequests)
		return
	}
	camera, _ := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get("camera")))

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	readLimit := h.Config.LiveMaxJSONMessageBytes
	if n := int64(h.Config.LiveMaxAudioFrameBytes); n > readLimit {
		readLimit = n
	}
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}

	sessionID := "live_" + uuid.NewString()
	logger := h.logger().With("session_id", sessionID, "request_id", reqID)
	b := bridge.New(conn, bridge.Config{
		MaxAudioFrameBytes: h.Config.LiveMaxAudioFrameBytes,
		PingInterval:       h.Config.LiveWSPingInterval,
		WriteTimeout:       h.Config.LiveWSWriteTimeout,
	}, logger)

	unregister, ok := h.LiveSessions.TryRegister(sessionID, sessions.Handle{
		Cancel: b.Shutdown,
		Warn:   b.SendError,
	}, h.Config.LiveMaxSessions)
	if !ok {
		_ = b.SendError(protocol.CodeBusy, "a live session is already running")
		b.Close()
		return
	}
	defer func() {
		b.Close()
		unregister()
	}()

	cfg := live.DefaultSessionConfig()
	cfg.Model = h.Config.LiveModel
	cfg.ConnectTimeout = h.Config.LiveConnectTimeout
	sess := live.NewSession(cfg, live.Dependencies{
		Transport: h.Transport,
		Devices:   b,
		NewOutput: b.NewOutput,
		Voice:     h.Voice,
		Logger:    logger,
		OnStateChange: func(s live.LiveState) {
			b.SendState(s)
			switch s.Status {
			case live.StatusError:
				_ = b.SendError(protocol.CodeSession, s.ErrorMessage())
				b.Shutdown()
			case live.StatusIdle:
				b.Shutdown()
			}
		},
	})

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.Config.LiveMaxSessionDuration)
	defer cancel()
	stopTimer := context.AfterFunc(ctx, func() {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			_ = b.SendError(protocol.CodeTimeout, "maximum live session duration reached")
		}
		b.Shutdown()
	})
	defer stopTimer()

	if err := sess.Start(ctx, live.StartOptions{Camera: camera}); err != nil {
		logger.Warn("live session failed to start", "error", err)
		_ = b.SendError(protocol.CodeSession, err.Error())
		return
	}
	logger.Info("live session started", "camera", camera, "model", cfg.Model)

	if err := b.Run(); err != nil {
		logger.Warn("live connection ended with error", "error", err)
	}
	sess.Stop()
	logger.Info("live session ended")
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	return mw.OriginAllowed(h.Config.CORSAllowedOrigins, origin)
}

func (h LiveHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
