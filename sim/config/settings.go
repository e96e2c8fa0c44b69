package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// WebSocketSettings configures the simulation transport.
type WebSocketSettings struct {
	// URL is the base WebSocket server URL (scheme://host:port).
	URL string
}

// AuthSettings configures REST authentication.
type AuthSettings struct {
	// APIKey identifies the caller when requesting tokens.
	APIKey string
	// ServerURL is the base URL of the auth and data REST services.
	ServerURL string
}

// SessionSettings configures defaults applied to new simulation sessions.
type SessionSettings struct {
	DefaultInitialCapital     float64
	DefaultDataProvider       string
	DefaultCommissionPerShare float64
	DefaultSlippageBPS        int
	SessionTimeout            time.Duration
	MaxRetryAttempts          int
}

// ServerSettings groups server endpoints.
type ServerSettings struct {
	WebSocket WebSocketSettings
}

// Settings is the complete client configuration, loaded from the
// environment and an optional .env file.
type Settings struct {
	Server  ServerSettings
	Auth    AuthSettings
	Session SessionSettings
}

func defaults() *Settings {
	return &Settings{
		Server: ServerSettings{
			WebSocket: WebSocketSettings{URL: "ws://127.0.0.1:8003"},
		},
		Auth: AuthSettings{
			APIKey:    "",
			ServerURL: "http://127.0.0.1:8001",
		},
		Session: SessionSettings{
			DefaultInitialCapital:     100000.00,
			DefaultDataProvider:       "polygon",
			DefaultCommissionPerShare: 0.005,
			DefaultSlippageBPS:        5,
			SessionTimeout:            30 * time.Second,
			MaxRetryAttempts:          3,
		},
	}
}

// Load reads settings from the environment, preceded by the .env file named
// by ENV (default ".env") when it exists. Process environment variables take
// precedence over .env entries.
func Load() (*Settings, error) {
	envFile := os.Getenv("ENV")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	s := defaults()

	s.Server.WebSocket.URL = envOr("SERVER__WEBSOCKET__URL", s.Server.WebSocket.URL)
	s.Auth.APIKey = envOr("AUTH__API_KEY", s.Auth.APIKey)
	s.Auth.ServerURL = envOr("AUTH__SERVER_URL", s.Auth.ServerURL)

	var err error
	if s.Session.DefaultInitialCapital, err = envFloat("SESSION__DEFAULT_INITIAL_CAPITAL", s.Session.DefaultInitialCapital); err != nil {
		return nil, err
	}
	s.Session.DefaultDataProvider = envOr("SESSION__DEFAULT_DATA_PROVIDER", s.Session.DefaultDataProvider)
	if s.Session.DefaultCommissionPerShare, err = envFloat("SESSION__DEFAULT_COMMISSION_PER_SHARE", s.Session.DefaultCommissionPerShare); err != nil {
		return nil, err
	}
	if s.Session.DefaultSlippageBPS, err = envInt("SESSION__DEFAULT_SLIPPAGE_BPS", s.Session.DefaultSlippageBPS); err != nil {
		return nil, err
	}

	timeoutSecs, err := envInt("SESSION__SESSION_TIMEOUT_SECONDS", int(s.Session.SessionTimeout/time.Second))
	if err != nil {
		return nil, err
	}
	s.Session.SessionTimeout = time.Duration(timeoutSecs) * time.Second

	if s.Session.MaxRetryAttempts, err = envInt("SESSION__MAX_RETRY_ATTEMPTS", s.Session.MaxRetryAttempts); err != nil {
		return nil, err
	}

	return s, nil
}

// SimulateURL returns the full trading WebSocket endpoint.
func (s *Settings) SimulateURL() string {
	return joinWS(s.Server.WebSocket.URL, "/ws/simulate")
}

// HealthURL returns the health-check WebSocket endpoint.
func (s *Settings) HealthURL() string {
	return joinWS(s.Server.WebSocket.URL, "/ws/health")
}

func joinWS(base, path string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, path) {
		return base
	}
	return base + path
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return f, nil
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return n, nil
}
