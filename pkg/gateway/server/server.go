package server

import (
	"log/slog"
	"net/http"

	"github.com/vango-go/antron/pkg/core/live"
	"github.com/vango-go/antron/pkg/gateway/config"
	"github.com/vango-go/antron/pkg/gateway/handlers"
	"github.com/vango-go/antron/pkg/gateway/lifecycle"
	"github.com/vango-go/antron/pkg/gateway/live/sessions"
	"github.com/vango-go/antron/pkg/gateway/mw"
	"github.com/vango-go/antron/pkg/gateway/ratelimit"
)

// Dependencies are the application services behind the HTTP surface.
type Dependencies struct {
	App    handlers.ChatApp
	Speech handlers.SpeechSynthesizer
	// LiveTransport enables /v1/live when set.
	LiveTransport live.Transport
	// Store is pinged by /readyz when set.
	Store handlers.Pinger

	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
	Logger       *slog.Logger
}

type Server struct {
	cfg    config.Config
	deps   Dependencies
	logger *slog.Logger
	mux    *http.ServeMux
}

func New(cfg config.Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = &lifecycle.Lifecycle{}
	}
	if deps.LiveSessions == nil {
		deps.LiveSessions = sessions.NewTracker()
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Lifecycle: s.deps.Lifecycle,
		Store:     s.deps.Store,
	})

	// Chat and speech turns get separate per-client budgets.
	turnLimits := ratelimit.Config{
		RPS:           s.cfg.TurnRPS,
		Burst:         s.cfg.TurnBurst,
		MaxConcurrent: s.cfg.TurnMaxConcurrent,
	}

	app := s.deps.App
	if app != nil {
		s.mux.Handle("GET /v1/sessions", handlers.SessionsHandler{App: app})
		s.mux.Handle("POST /v1/sessions/new", handlers.NewChatHandler{App: app})
		s.mux.Handle("POST /v1/sessions/{id}/select", handlers.SelectSessionHandler{App: app})
		s.mux.Handle("POST /v1/sessions/{id}/pin", handlers.PinSessionHandler{App: app})
		s.mux.Handle("POST /v1/chat", mw.RateLimit(ratelimit.New(turnLimits), handlers.ChatHandler{
			App:     app,
			Timeout: s.cfg.HandlerTimeout,
			Logger:  s.logger.With("component", "chat"),
		}))
		settings := handlers.SettingsHandler{App: app}
		s.mux.Handle("GET /v1/settings", settings)
		s.mux.Handle("PUT /v1/settings", settings)
	}
	if s.deps.Speech != nil {
		s.mux.Handle("POST /v1/speech", mw.RateLimit(ratelimit.New(turnLimits), handlers.SpeechHandler{
			Synth:   s.deps.Speech,
			App:     app,
			Timeout: s.cfg.HandlerTimeout,
		}))
	}
	if s.deps.LiveTransport != nil {
		var voice live.VoiceSource
		if app != nil {
			voice = app
		}
		s.mux.Handle("GET /v1/live", handlers.LiveHandler{
			Config:       s.cfg,
			Transport:    s.deps.LiveTransport,
			Voice:        voice,
			Logger:       s.logger.With("component", "live_ws"),
			Lifecycle:    s.deps.Lifecycle,
			LiveSessions: s.deps.LiveSessions,
		})
	}

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

// LiveSessions returns the tracker used for graceful shutdown.
func (s *Server) LiveSessions() *sessions.Tracker { return s.deps.LiveSessions }

// Lifecycle returns the draining state shared with /readyz.
func (s *Server) Lifecycle() *lifecycle.Lifecycle { return s.deps.Lifecycle }

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.MaxBody(s.cfg.MaxBodyBytes, h)
	h = mw.APIVersion(h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
