package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/simutrador-go/sim/client"
	"github.com/wricardo/simutrador-go/sim/config"
	"github.com/wricardo/simutrador-go/sim/protocol"
	"github.com/wricardo/simutrador-go/validate"
)

// Service performs session lifecycle operations over a connected client.
type Service struct {
	client   *client.Client
	defaults config.SessionSettings
	timeout  time.Duration
	log      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// NewService builds a Service that applies the settings' session defaults.
func NewService(c *client.Client, settings *config.Settings, opts ...Option) *Service {
	s := &Service{
		client:   c,
		defaults: settings.Session,
		timeout:  settings.Session.SessionTimeout,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParams describes a new session. Zero-valued cost fields fall back
// to the configured defaults.
type CreateParams struct {
	Symbols   []string
	StartDate time.Time
	EndDate   time.Time

	InitialCapital     float64
	DataProvider       string
	CommissionPerShare float64
	SlippageBps        int
	Metadata           map[string]any
}

// Create registers a new session and returns what the server knows about it.
func (s *Service) Create(ctx context.Context, p CreateParams) (*protocol.SessionInfo, error) {
	req := protocol.CreateSessionRequest{
		Symbols:            p.Symbols,
		StartDate:          p.StartDate.Format(time.RFC3339),
		EndDate:            p.EndDate.Format(time.RFC3339),
		InitialCapital:     p.InitialCapital,
		DataProvider:       p.DataProvider,
		CommissionPerShare: p.CommissionPerShare,
		SlippageBps:        p.SlippageBps,
		Metadata:           p.Metadata,
	}
	if req.InitialCapital == 0 {
		req.InitialCapital = s.defaults.DefaultInitialCapital
	}
	if req.DataProvider == "" {
		req.DataProvider = s.defaults.DefaultDataProvider
	}
	if req.CommissionPerShare == 0 {
		req.CommissionPerShare = s.defaults.DefaultCommissionPerShare
	}
	if req.SlippageBps == 0 {
		req.SlippageBps = s.defaults.DefaultSlippageBPS
	}

	if err := validate.CreateSession(req); err != nil {
		return nil, fmt.Errorf("invalid create_session request: %w", err)
	}

	s.log.Info().Int("symbols", len(req.Symbols)).Msg("Creating session")

	ctx, cancel := s.bound(ctx)
	defer cancel()

	env, err := s.client.Call(ctx, protocol.TypeCreateSession, req)
	if err != nil {
		return nil, err
	}

	var info protocol.SessionInfo
	if err := env.DecodeData(&info); err != nil {
		return nil, fmt.Errorf("malformed create_session reply: %w", err)
	}
	return &info, nil
}

// Get fetches the status of one session.
func (s *Service) Get(ctx context.Context, sessionID string) (*protocol.SessionInfo, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	env, err := s.client.Call(ctx, protocol.TypeGetSession, protocol.SessionRef{SessionID: sessionID})
	if err != nil {
		return nil, err
	}

	var info protocol.SessionInfo
	if err := env.DecodeData(&info); err != nil {
		return nil, fmt.Errorf("malformed get_session reply: %w", err)
	}
	return &info, nil
}

// List returns the caller's sessions.
func (s *Service) List(ctx context.Context) ([]protocol.SessionInfo, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	env, err := s.client.Call(ctx, protocol.TypeListSessions, struct{}{})
	if err != nil {
		return nil, err
	}

	var list protocol.SessionList
	if err := env.DecodeData(&list); err != nil {
		return nil, fmt.Errorf("malformed list_sessions reply: %w", err)
	}
	return list.Sessions, nil
}

// Delete removes a session.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	s.log.Info().Str("session_id", sessionID).Msg("Deleting session")

	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.client.Call(ctx, protocol.TypeDeleteSession, protocol.SessionRef{SessionID: sessionID})
	return err
}

// bound caps the operation at the configured session timeout. The caller's
// own deadline still applies when it is earlier.
func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
