package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wricardo/simutrador-go/sim/client"
	"github.com/wricardo/simutrador-go/sim/protocol"
	"github.com/wricardo/simutrador-go/sim/store"
)

// Runner drives one Strategy through simulation sessions on a shared client.
// Run blocks until the session ends; to trade several sessions concurrently,
// create one Runner per strategy instance on the same client.
type Runner struct {
	client *client.Client
	strat  Strategy
	log    zerolog.Logger

	bindOnce sync.Once
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner's logger. Defaults to a disabled logger.
func WithLogger(log zerolog.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// NewRunner binds a strategy to a client.
func NewRunner(c *client.Client, strat Strategy, opts ...RunnerOption) *Runner {
	r := &Runner{
		client: c,
		strat:  strat,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result summarizes a completed simulation run.
type Result struct {
	SessionID string
	End       *protocol.SimulationEnd
	Store     *store.Store
	Ticks     int
	Fills     int
}

// Run starts a simulation and feeds the strategy until simulation_end.
//
// The sequence is: connect (no-op when already connected), wait for the
// server greeting, start the simulation, subscribe to the session's streams
// before any of them can produce a frame, ingest the warmup history, then
// loop. Stream subscriptions are released before Run returns.
func (r *Runner) Run(ctx context.Context, req protocol.StartSimulationRequest) (*Result, error) {
	if err := r.client.Connect(ctx); err != nil {
		return nil, err
	}
	if err := r.client.WaitReady(ctx); err != nil {
		return nil, err
	}
	r.bindOnce.Do(func() {
		if binder, ok := r.strat.(ClientBinder); ok {
			binder.BindClient(r.client)
		}
	})

	sessionID, err := r.client.StartSimulation(ctx, req)
	if err != nil {
		return nil, err
	}
	r.log.Info().Str("session_id", sessionID).Strs("symbols", req.Symbols).Msg("Simulation started")

	ticks, err := r.client.Subscribe(sessionID, protocol.StreamTick)
	if err != nil {
		return nil, err
	}
	defer ticks.Cancel()

	fills, err := r.client.Subscribe(sessionID, protocol.StreamExecutionReport)
	if err != nil {
		return nil, err
	}
	defer fills.Cancel()

	accounts, err := r.client.Subscribe(sessionID, protocol.StreamAccountSnapshot)
	if err != nil {
		return nil, err
	}
	defer accounts.Cancel()

	history, err := r.client.WaitForHistorySnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		SessionID: sessionID,
		Store:     store.FromHistory(history),
	}
	if err := r.strat.OnSessionStart(ctx, sessionID, res.Store); err != nil {
		return nil, fmt.Errorf("strategy OnSessionStart failed: %w", err)
	}

	type endResult struct {
		end *protocol.SimulationEnd
		err error
	}
	endc := make(chan endResult, 1)
	go func() {
		end, err := r.client.WaitForSimulationEnd(ctx, sessionID)
		endc <- endResult{end: end, err: err}
	}()

	for {
		select {
		case env, ok := <-ticks.Ch():
			if !ok {
				return nil, streamErr("tick", ticks.Err())
			}
			if err := r.handleTick(ctx, sessionID, env, res); err != nil {
				return nil, err
			}
		case env, ok := <-fills.Ch():
			if !ok {
				return nil, streamErr("execution_report", fills.Err())
			}
			r.handleFill(ctx, sessionID, env, res)
		case env, ok := <-accounts.Ch():
			if !ok {
				return nil, streamErr("account_snapshot", accounts.Err())
			}
			r.handleAccount(ctx, sessionID, env, res)
		case end := <-endc:
			if end.err != nil {
				return nil, fmt.Errorf("simulation did not end cleanly: %w", end.err)
			}
			// Frames dispatched before simulation_end may still sit in
			// the stream buffers. Deliver them before the end callback.
			if err := r.drainStreams(ctx, sessionID, ticks, fills, accounts, res); err != nil {
				return nil, err
			}
			res.End = end.end
			r.strat.OnSessionEnd(ctx, sessionID, end.end, res.Store)
			r.log.Info().
				Str("session_id", sessionID).
				Int("ticks", res.Ticks).
				Int("fills", res.Fills).
				Msg("Simulation ended")
			return res, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// drainStreams consumes whatever the stream buffers still hold without
// blocking for new frames.
func (r *Runner) drainStreams(ctx context.Context, sessionID string, ticks, fills, accounts *client.Subscription, res *Result) error {
	tickCh, fillCh, acctCh := ticks.Ch(), fills.Ch(), accounts.Ch()
	for {
		select {
		case env, ok := <-tickCh:
			if !ok {
				tickCh = nil
				continue
			}
			if err := r.handleTick(ctx, sessionID, env, res); err != nil {
				return err
			}
		case env, ok := <-fillCh:
			if !ok {
				fillCh = nil
				continue
			}
			r.handleFill(ctx, sessionID, env, res)
		case env, ok := <-acctCh:
			if !ok {
				acctCh = nil
				continue
			}
			r.handleAccount(ctx, sessionID, env, res)
		default:
			return nil
		}
	}
}

func (r *Runner) handleTick(ctx context.Context, sessionID string, env *protocol.Envelope, res *Result) error {
	var tick protocol.Tick
	if err := env.DecodeData(&tick); err != nil {
		r.log.Warn().Err(err).Str("session_id", sessionID).Msg("Skipping undecodable tick")
		return nil
	}
	res.Store.ApplyTick(&tick)
	res.Ticks++
	if err := r.strat.OnTick(ctx, sessionID, &tick, res.Store); err != nil {
		return fmt.Errorf("strategy OnTick failed: %w", err)
	}
	return nil
}

func (r *Runner) handleFill(ctx context.Context, sessionID string, env *protocol.Envelope, res *Result) {
	var fill protocol.ExecutionReport
	if err := env.DecodeData(&fill); err != nil {
		r.log.Warn().Err(err).Str("session_id", sessionID).Msg("Skipping undecodable execution report")
		return
	}
	res.Fills++
	r.strat.OnFill(ctx, sessionID, &fill, res.Store)
}

func (r *Runner) handleAccount(ctx context.Context, sessionID string, env *protocol.Envelope, res *Result) {
	var account protocol.AccountSnapshot
	if err := env.DecodeData(&account); err != nil {
		r.log.Warn().Err(err).Str("session_id", sessionID).Msg("Skipping undecodable account snapshot")
		return
	}
	r.strat.OnAccountSnapshot(ctx, sessionID, &account, res.Store)
}

func streamErr(kind string, err error) error {
	if err == nil {
		err = fmt.Errorf("stream cancelled")
	}
	return fmt.Errorf("%s stream ended: %w", kind, err)
}
