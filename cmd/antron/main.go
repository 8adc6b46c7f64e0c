package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vango-go/antron/internal/dotenv"
	"github.com/vango-go/antron/pkg/app"
	"github.com/vango-go/antron/pkg/core"
	"github.com/vango-go/antron/pkg/core/live"
	"github.com/vango-go/antron/pkg/core/providers/gemini"
	"github.com/vango-go/antron/pkg/gateway/config"
	"github.com/vango-go/antron/pkg/gateway/handlers"
	"github.com/vango-go/antron/pkg/gateway/live/protocol"
	gatewayserver "github.com/vango-go/antron/pkg/gateway/server"
	"github.com/vango-go/antron/pkg/orchestrator"
	"github.com/vango-go/antron/pkg/store"
)

// backend is everything the server needs from the model provider.
type backend interface {
	orchestrator.Backend
	core.SpeechSynthesizer
	live.Transport
}

type serverDeps struct {
	loadConfig   func() (config.Config, error)
	openStore    func(context.Context, store.Config) (store.Store, error)
	newBackend   func(context.Context, config.Config) (backend, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
	// ready, when set, receives the bound listen address.
	ready func(addr string)
}

func defaultServerDeps() serverDeps {
	return serverDeps{
		loadConfig: config.LoadFromEnv,
		openStore:  store.Open,
		newBackend: newGeminiBackend,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func newHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.UpstreamConnectTimeout,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.UpstreamResponseHeaderTimeout,
		},
	}
}

func newGeminiBackend(ctx context.Context, cfg config.Config) (backend, error) {
	return gemini.New(ctx, cfg.ResolvedAPIKey(),
		gemini.WithHTTPClient(newHTTPClient(cfg)),
		gemini.WithBaseURL(cfg.GeminiBaseURL),
		gemini.WithAPIVersion(cfg.GeminiAPIVersion),
	)
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runServer(ctx context.Context, logger *slog.Logger, level *slog.LevelVar, deps serverDeps) error {
	if deps.loadConfig == nil || deps.openStore == nil || deps.newBackend == nil {
		return errors.New("missing server dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if level != nil {
		if lvl, err := config.ParseLogLevel(cfg.LogLevel); err == nil {
			level.Set(lvl)
		}
	}

	st, err := deps.openStore(ctx, cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	be, err := deps.newBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init backend: %w", err)
	}

	orch := orchestrator.New(be, orchestrator.Config{
		PrimaryModel:  cfg.PrimaryModel,
		FallbackModel: cfg.FallbackModel,
		ImageModel:    cfg.ImageModel,
		MaxAttempts:   cfg.MaxAttempts,
		RetryDelay:    cfg.RetryDelay,
	}, orchestrator.WithLogger(logger))

	svc, err := app.New(ctx, app.Dependencies{Store: st, Orchestrator: orch, Logger: logger})
	if err != nil {
		return err
	}

	gwDeps := gatewayserver.Dependencies{
		App:           svc,
		Speech:        orchestrator.NewSynthesizer(be, cfg.SpeechModel),
		LiveTransport: be,
		Logger:        logger,
	}
	if p, ok := st.(handlers.Pinger); ok {
		gwDeps.Store = p
	}
	gw := gatewayserver.New(cfg, gwDeps)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("starting server",
		"addr", ln.Addr().String(),
		"store_driver", cfg.StoreDriver,
		"sessions", len(svc.Sessions()),
	)
	if deps.ready != nil {
		deps.ready(ln.Addr().String())
	}

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case sig := <-sigCh:
			logger.Info("shutdown signal received", "signal", sig.String())
		}
		return shutdown(logger, cfg, gw, httpSrv)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

// shutdown drains readiness, warns live clients, then stops accepting
// requests. Live sessions get the grace period to end before they are
// cancelled.
func shutdown(logger *slog.Logger, cfg config.Config, gw *gatewayserver.Server, httpSrv *http.Server) error {
	gw.Lifecycle().SetDraining(true)
	tracker := gw.LiveSessions()
	if open := tracker.Sessions(); len(open) > 0 {
		n := tracker.WarnAll(protocol.CodeDraining, "server is shutting down")
		logger.Info("warned live sessions",
			"count", len(open),
			"delivered", n,
			"oldest_age", time.Since(open[0].Started).Round(time.Second))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !tracker.Wait(waitCtx) {
		logger.Warn("cancelling live sessions", "count", tracker.CancelAll())
	}
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps serverDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if err := dotenv.LoadFiles(dotenv.DefaultFiles...); err != nil {
		fmt.Fprintf(stderr, "antron: %v\n", err)
		return 1
	}

	if err := runServer(ctx, logger, level, deps); err != nil {
		fmt.Fprintf(stderr, "antron: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultServerDeps()))
}
