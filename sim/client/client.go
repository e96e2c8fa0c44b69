package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wricardo/simutrador-go/observability"
	"github.com/wricardo/simutrador-go/sim/protocol"
)

// defaultSubscriptionBuffer is how many undelivered stream items a
// subscription holds before newer items are dropped.
const defaultSubscriptionBuffer = 256

// Transport is the minimal connection the multiplexer drives. Exactly one
// goroutine (the client's reader loop) calls ReadMessage; WriteMessage and
// Close must be safe for concurrent use.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// DialFunc produces a connected transport, typically a WebSocket that has
// already been authenticated.
type DialFunc func(ctx context.Context) (Transport, error)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithSubscriptionBuffer sets the per-stream buffer size.
func WithSubscriptionBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.bufSize = n
		}
	}
}

// Client multiplexes one WebSocket connection across any number of
// concurrent simulation sessions. A single reader goroutine owns the
// transport and routes every inbound frame to the pending call, lifecycle
// waiter or stream subscription it belongs to; callers never touch the
// socket directly.
type Client struct {
	log     zerolog.Logger
	dial    DialFunc
	bufSize int

	mu         sync.Mutex
	transport  Transport
	readerDone chan struct{}

	pending *callRegistry
	table   *sessionTable

	ready     chan struct{}
	readyOnce sync.Once

	done         chan struct{}
	shutdownOnce sync.Once
	closeOnce    sync.Once
	closeErr     error
}

// New builds a Client that will connect using dial. The client is inert
// until Connect succeeds.
func New(dial DialFunc, opts ...Option) *Client {
	c := &Client{
		log:     zerolog.Nop(),
		dial:    dial,
		bufSize: defaultSubscriptionBuffer,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pending = newCallRegistry()
	c.table = newSessionTable(c.bufSize)

	observability.RegisterMetrics()
	return c
}

// Connect dials the server and starts the reader loop. Calling Connect on
// an already-connected client is a no-op. A client whose connection has
// ended cannot be reused.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport != nil {
		return nil
	}

	t, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.transport = t
	c.readerDone = make(chan struct{})
	go c.readLoop(t, c.readerDone)

	c.log.Info().Msg("Connected to simulation server")
	return nil
}

// WaitReady blocks until the server sends its connection_ready greeting.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the connection ends for any reason.
func (c *Client) Done() <-chan struct{} { return c.done }

// Call sends a request frame and blocks until the correlated reply arrives
// or ctx is done. The pending call is registered before the frame is
// written, so a fast reply can never race past its waiter. When ctx ends
// first, the call is deregistered and a late reply is discarded.
func (c *Client) Call(ctx context.Context, msgType protocol.MessageType, payload any) (*protocol.Envelope, error) {
	t := c.currentTransport()
	if t == nil {
		return nil, ErrNotConnected
	}

	requestID := uuid.NewString()
	pc, err := c.pending.register(requestID, msgType)
	if err != nil {
		return nil, err
	}
	observability.CallStarted()
	defer func() {
		observability.CallFinished(string(msgType), time.Since(pc.started))
	}()

	env, err := protocol.NewEnvelope(msgType, requestID, payload)
	if err != nil {
		c.pending.deregister(requestID)
		return nil, err
	}
	raw, err := env.Encode()
	if err != nil {
		c.pending.deregister(requestID)
		return nil, err
	}

	if err := t.WriteMessage(raw); err != nil {
		c.pending.deregister(requestID)
		return nil, fmt.Errorf("failed to send %s request: %w", msgType, err)
	}

	c.log.Debug().
		Str("type", string(msgType)).
		Str("request_id", requestID).
		Msg("Request sent")

	select {
	case <-pc.done:
		return pc.result()
	case <-ctx.Done():
		if !c.pending.deregister(requestID) {
			// Resolved while the deadline fired; the outcome is ready.
			<-pc.done
			return pc.result()
		}
		return nil, ctx.Err()
	}
}

// AwaitSessionEvent blocks until the named one-shot event arrives for the
// session. The event value is retained, so awaiting after arrival returns
// immediately.
func (c *Client) AwaitSessionEvent(ctx context.Context, sessionID string, event protocol.SessionEvent) (*protocol.Envelope, error) {
	w, err := c.table.waiter(sessionID, event)
	if err != nil {
		return nil, err
	}

	select {
	case <-w.done:
		return w.env, w.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe attaches the single consumer for one stream kind of one
// session. Items that arrive before Subscribe are dropped, so subscribe
// before the server starts streaming.
func (c *Client) Subscribe(sessionID string, kind protocol.StreamKind) (*Subscription, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown stream kind %q", kind)
	}
	return c.table.subscribe(sessionID, kind)
}

// SessionFailure returns the stored error for a session that received
// session_error, or nil.
func (c *Client) SessionFailure(sessionID string) *SessionError {
	return c.table.sessionFailure(sessionID)
}

// Close tears down the connection and fails everything still outstanding
// with ErrConnectionClosed. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		t := c.transport
		readerDone := c.readerDone
		c.mu.Unlock()

		if t != nil {
			c.closeErr = t.Close()
			<-readerDone
		} else {
			c.shutdown(ErrConnectionClosed)
		}
		c.log.Info().Msg("Connection closed")
	})
	return c.closeErr
}

func (c *Client) currentTransport() Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport
}

// shutdown fails all pending work with reason. Idempotent; runs from the
// reader loop on transport errors and from Close when never connected.
func (c *Client) shutdown(reason error) {
	c.shutdownOnce.Do(func() {
		c.pending.close(reason)
		c.table.closeAll(reason)
		close(c.done)
	})
}

// readLoop is the sole reader of the transport. It decodes each frame and
// hands it to the dispatcher; an undecodable frame is logged and skipped
// rather than killing the connection.
func (c *Client) readLoop(t Transport, done chan struct{}) {
	defer close(done)

	for {
		raw, err := t.ReadMessage()
		if err != nil {
			c.log.Debug().Err(err).Msg("Reader loop ending")
			t.Close()
			c.shutdown(ErrConnectionClosed)
			return
		}

		env, derr := protocol.Decode(raw)
		if derr != nil {
			observability.RecordDecodeError()
			c.log.Warn().Err(derr).Msg("Skipping undecodable frame")
			continue
		}

		c.dispatch(env)
	}
}

// dispatch routes one inbound frame. It runs only on the reader goroutine,
// never blocks and never performs I/O, so a slow consumer on one session
// cannot stall another.
func (c *Client) dispatch(env *protocol.Envelope) {
	observability.RecordFrame(string(env.Type))

	switch env.Type {
	case protocol.TypeConnectionReady:
		c.readyOnce.Do(func() { close(c.ready) })
		c.log.Debug().Msg("Connection ready")
		return
	case protocol.TypeSessionError:
		c.dispatchSessionError(env)
		return
	}

	if env.RequestID != "" {
		if pc, ok := c.pending.take(env.RequestID); ok {
			var dup error
			if env.Type.IsErrorReply() {
				code, msg := env.ErrorInfo()
				dup = pc.complete(nil, &ServerError{Code: code, Message: msg})
			} else {
				dup = pc.complete(env, nil)
			}
			if dup != nil {
				c.fatal(dup)
			}
			return
		}
		// No pending call: fall through in case the frame is also a
		// session event, otherwise it is a late reply and gets dropped.
	}

	if ev, ok := protocol.SessionEventFor(env.Type); ok {
		sid := env.SessionScope()
		if sid == "" {
			c.drop(env, "no_session")
			return
		}
		if delivered, reason := c.table.resolveEvent(sid, ev, env); !delivered {
			c.drop(env, reason)
		}
		return
	}

	if kind, ok := protocol.StreamKindFor(env.Type); ok {
		sid := env.SessionScope()
		if sid == "" {
			c.drop(env, "no_session")
			return
		}
		if delivered, reason := c.table.push(sid, kind, env); !delivered {
			c.drop(env, reason)
		}
		return
	}

	c.drop(env, "unmatched")
}

// dispatchSessionError fails the named session and, when the frame is also
// correlated to a request, fails that pending call with the same error.
func (c *Client) dispatchSessionError(env *protocol.Envelope) {
	code, msg := env.ErrorInfo()
	sid := env.SessionScope()
	serr := &SessionError{SessionID: sid, Code: code, Message: msg}

	if sid != "" {
		if c.table.failSession(sid, serr) {
			c.log.Warn().
				Str("session_id", sid).
				Str("code", code).
				Msg("Session failed")
		}
	}

	if env.RequestID != "" {
		if pc, ok := c.pending.take(env.RequestID); ok {
			if dup := pc.complete(nil, serr); dup != nil {
				c.fatal(dup)
			}
		}
	}

	if sid == "" && env.RequestID == "" {
		c.drop(env, "unscoped_session_error")
	}
}

// fatal handles an invariant breach inside the dispatcher by failing the
// whole connection rather than continuing with corrupt correlation state.
func (c *Client) fatal(err error) {
	c.log.Error().Err(err).Msg("Protocol invariant violated, closing connection")
	if t := c.currentTransport(); t != nil {
		t.Close()
	}
	c.shutdown(err)
}

func (c *Client) drop(env *protocol.Envelope, reason string) {
	observability.RecordDroppedFrame(reason)
	c.log.Debug().
		Str("type", string(env.Type)).
		Str("reason", reason).
		Msg("Dropped frame")
}
