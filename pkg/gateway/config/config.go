package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/vango-go/antron/pkg/store"
)

type Config struct {
	Addr     string `env:"ANTRON_ADDR" envDefault:":8080"`
	LogLevel string `env:"ANTRON_LOG_LEVEL" envDefault:"info"`

	// GeminiAPIKey falls back to APIKey when unset.
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	APIKey           string `env:"API_KEY"`
	GeminiBaseURL    string `env:"ANTRON_GEMINI_BASE_URL"`
	GeminiAPIVersion string `env:"ANTRON_GEMINI_API_VERSION"`

	PrimaryModel  string        `env:"ANTRON_PRIMARY_MODEL" envDefault:"gemini-3-pro-preview"`
	FallbackModel string        `env:"ANTRON_FALLBACK_MODEL" envDefault:"gemini-3-flash-preview"`
	ImageModel    string        `env:"ANTRON_IMAGE_MODEL" envDefault:"gemini-2.5-flash-image"`
	SpeechModel   string        `env:"ANTRON_SPEECH_MODEL" envDefault:"gemini-2.5-flash-preview-tts"`
	LiveModel     string        `env:"ANTRON_LIVE_MODEL" envDefault:"gemini-2.5-flash-native-audio-preview-12-2025"`
	MaxAttempts   int           `env:"ANTRON_MAX_ATTEMPTS" envDefault:"3"`
	RetryDelay    time.Duration `env:"ANTRON_RETRY_DELAY" envDefault:"0s"`

	// Session store.
	StoreDriver string `env:"ANTRON_STORE_DRIVER" envDefault:"file"`
	StoreDSN    string `env:"ANTRON_STORE_DSN" envDefault:".antron"`
	StoreKey    string `env:"ANTRON_STORE_KEY" envDefault:"antron_v13_sessions"`

	// CORS; empty disables it.
	CORSOrigins []string `env:"ANTRON_CORS_ORIGINS" envSeparator:","`
	// CORSAllowedOrigins is derived from CORSOrigins.
	CORSAllowedOrigins map[string]struct{}

	MaxBodyBytes int64 `env:"ANTRON_MAX_BODY_BYTES" envDefault:"16777216"`

	// Per-client limits on /v1/chat and /v1/speech. Zero disables each.
	TurnRPS           float64 `env:"ANTRON_TURN_RPS" envDefault:"1"`
	TurnBurst         int     `env:"ANTRON_TURN_BURST" envDefault:"5"`
	TurnMaxConcurrent int     `env:"ANTRON_TURN_MAX_CONCURRENT" envDefault:"1"`

	// Live WebSocket bridge (/v1/live).
	LiveConnectTimeout      time.Duration `env:"ANTRON_LIVE_CONNECT_TIMEOUT" envDefault:"15s"`
	LiveMaxAudioFrameBytes  int           `env:"ANTRON_LIVE_MAX_AUDIO_FRAME_BYTES" envDefault:"65536"`
	LiveMaxJSONMessageBytes int64         `env:"ANTRON_LIVE_MAX_JSON_MESSAGE_BYTES" envDefault:"4194304"`
	LiveWSPingInterval      time.Duration `env:"ANTRON_LIVE_WS_PING_INTERVAL" envDefault:"20s"`
	LiveWSWriteTimeout      time.Duration `env:"ANTRON_LIVE_WS_WRITE_TIMEOUT" envDefault:"5s"`
	LiveMaxSessionDuration  time.Duration `env:"ANTRON_LIVE_MAX_DURATION" envDefault:"2h"`
	LiveMaxSessions         int           `env:"ANTRON_LIVE_MAX_SESSIONS" envDefault:"1"`

	// Operational defaults
	ReadHeaderTimeout   time.Duration `env:"ANTRON_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ReadTimeout         time.Duration `env:"ANTRON_READ_TIMEOUT" envDefault:"30s"`
	HandlerTimeout      time.Duration `env:"ANTRON_TOTAL_REQUEST_TIMEOUT" envDefault:"3m"`
	ShutdownGracePeriod time.Duration `env:"ANTRON_SHUTDOWN_GRACE_PERIOD" envDefault:"30s"`

	UpstreamConnectTimeout        time.Duration `env:"ANTRON_CONNECT_TIMEOUT" envDefault:"5s"`
	UpstreamResponseHeaderTimeout time.Duration `env:"ANTRON_RESPONSE_HEADER_TIMEOUT" envDefault:"2m"`
}

func LoadFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.CORSAllowedOrigins = make(map[string]struct{})
	for _, origin := range cfg.CORSOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ResolvedAPIKey()) == "" {
		return fmt.Errorf("GEMINI_API_KEY or API_KEY must be set")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.StoreDriver)) {
	case store.DriverFile, store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("ANTRON_STORE_DRIVER must be one of file|sqlite|postgres")
	}
	if strings.EqualFold(c.StoreDriver, store.DriverPostgres) && strings.TrimSpace(c.StoreDSN) == "" {
		return fmt.Errorf("ANTRON_STORE_DSN must be set when ANTRON_STORE_DRIVER=postgres")
	}
	if strings.TrimSpace(c.PrimaryModel) == "" {
		return fmt.Errorf("ANTRON_PRIMARY_MODEL must not be empty")
	}
	if strings.TrimSpace(c.FallbackModel) == "" {
		return fmt.Errorf("ANTRON_FALLBACK_MODEL must not be empty")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("ANTRON_MAX_ATTEMPTS must be > 0")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("ANTRON_RETRY_DELAY must be >= 0")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("ANTRON_MAX_BODY_BYTES must be > 0")
	}
	if c.TurnRPS < 0 || c.TurnBurst < 0 || c.TurnMaxConcurrent < 0 {
		return fmt.Errorf("ANTRON_TURN_RPS, ANTRON_TURN_BURST and ANTRON_TURN_MAX_CONCURRENT must be >= 0")
	}
	if c.LiveConnectTimeout <= 0 {
		return fmt.Errorf("ANTRON_LIVE_CONNECT_TIMEOUT must be > 0")
	}
	if c.LiveMaxAudioFrameBytes <= 0 {
		return fmt.Errorf("ANTRON_LIVE_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if c.LiveMaxJSONMessageBytes <= 0 {
		return fmt.Errorf("ANTRON_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if c.LiveWSPingInterval <= 0 {
		return fmt.Errorf("ANTRON_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if c.LiveWSWriteTimeout <= 0 {
		return fmt.Errorf("ANTRON_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if c.LiveMaxSessionDuration <= 0 {
		return fmt.Errorf("ANTRON_LIVE_MAX_DURATION must be > 0")
	}
	if c.LiveMaxSessions <= 0 {
		return fmt.Errorf("ANTRON_LIVE_MAX_SESSIONS must be > 0")
	}
	if c.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("ANTRON_READ_HEADER_TIMEOUT must be > 0")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("ANTRON_READ_TIMEOUT must be > 0")
	}
	if c.HandlerTimeout <= 0 {
		return fmt.Errorf("ANTRON_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("ANTRON_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if c.UpstreamConnectTimeout <= 0 {
		return fmt.Errorf("ANTRON_CONNECT_TIMEOUT must be > 0")
	}
	if c.UpstreamResponseHeaderTimeout <= 0 {
		return fmt.Errorf("ANTRON_RESPONSE_HEADER_TIMEOUT must be > 0")
	}
	return nil
}

// ResolvedAPIKey prefers GEMINI_API_KEY over API_KEY.
func (c Config) ResolvedAPIKey() string {
	if key := strings.TrimSpace(c.GeminiAPIKey); key != "" {
		return key
	}
	return strings.TrimSpace(c.APIKey)
}

// StoreConfig returns the session store settings.
func (c Config) StoreConfig() store.Config {
	return store.Config{Driver: c.StoreDriver, DSN: c.StoreDSN, Key: c.StoreKey}
}

// ParseLogLevel accepts debug, info, warn and error.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("ANTRON_LOG_LEVEL must be one of debug|info|warn|error")
	}
	return level, nil
}
