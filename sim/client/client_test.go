package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/simutrador-go/sim/protocol"
)

// fakeTransport is an in-memory Transport driven directly by tests: frames
// pushed to it are read by the client's reader loop, and frames the client
// writes are recorded for inspection.
type fakeTransport struct {
	mu       sync.Mutex
	sent     [][]byte
	writeErr error

	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case raw := <-f.in:
		return raw, nil
	case <-f.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) setWriteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// push delivers a server frame to the reader loop.
func (f *fakeTransport) push(t *testing.T, frame string) {
	t.Helper()
	select {
	case f.in <- []byte(frame):
	case <-time.After(time.Second):
		t.Fatal("Timed out pushing frame to transport")
	}
}

// waitSent blocks until the client has written at least n frames.
func (f *fakeTransport) waitSent(t *testing.T, n int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		if len(f.sent) >= n {
			out := make([][]byte, len(f.sent))
			copy(out, f.sent)
			f.mu.Unlock()
			return out
		}
		f.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %d sent frames", n)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func decodeFrame(t *testing.T, raw []byte) *protocol.Envelope {
	t.Helper()
	env, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("Failed to decode sent frame: %v", err)
	}
	return env
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	c := New(func(ctx context.Context) (Transport, error) { return ft, nil }, opts...)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, ft
}

// flush guarantees every previously pushed frame has been dispatched, using
// the fact that the reader loop processes frames sequentially.
func flush(t *testing.T, c *Client, ft *fakeTransport) {
	t.Helper()
	ft.push(t, `{"type":"connection_ready"}`)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.WaitReady(ctx); err != nil {
		t.Fatalf("Failed to flush dispatcher: %v", err)
	}
}

type callOutcome struct {
	env *protocol.Envelope
	err error
}

func startCall(c *Client, ctx context.Context, msgType protocol.MessageType, payload any) <-chan callOutcome {
	out := make(chan callOutcome, 1)
	go func() {
		env, err := c.Call(ctx, msgType, payload)
		out <- callOutcome{env, err}
	}()
	return out
}

func awaitOutcome(t *testing.T, ch <-chan callOutcome) callOutcome {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for call to finish")
		return callOutcome{}
	}
}

func TestCallResolvesOnMatchingReply(t *testing.T) {
	c, ft := newTestClient(t)

	done := startCall(c, context.Background(), protocol.TypeStartSimulation,
		protocol.StartSimulationRequest{Symbols: []string{"AAPL"}})

	frames := ft.waitSent(t, 1)
	req := decodeFrame(t, frames[0])
	if req.Type != protocol.TypeStartSimulation {
		t.Errorf("Expected start_simulation frame, got %s", req.Type)
	}
	if req.RequestID == "" {
		t.Fatal("Request frame missing request_id")
	}

	ft.push(t, fmt.Sprintf(
		`{"type":"session_created","request_id":%q,"data":{"session_id":"sess-1"}}`,
		req.RequestID))

	res := awaitOutcome(t, done)
	if res.err != nil {
		t.Fatalf("Call failed: %v", res.err)
	}
	if res.env.Type != protocol.TypeSessionCreated {
		t.Errorf("Expected session_created reply, got %s", res.env.Type)
	}
	if got := c.pending.size(); got != 0 {
		t.Errorf("Expected empty registry after resolution, got %d entries", got)
	}
}

func TestCallFailsOnErrorReply(t *testing.T) {
	c, ft := newTestClient(t)

	done := startCall(c, context.Background(), protocol.TypeStartSimulation,
		protocol.StartSimulationRequest{Symbols: []string{"AAPL"}})

	req := decodeFrame(t, ft.waitSent(t, 1)[0])
	ft.push(t, fmt.Sprintf(
		`{"type":"error","request_id":%q,"data":{"error_code":"INVALID_REQUEST","message":"bad symbols"}}`,
		req.RequestID))

	res := awaitOutcome(t, done)
	if res.err == nil {
		t.Fatal("Expected call to fail on error reply")
	}
	var serverErr *ServerError
	if !errors.As(res.err, &serverErr) {
		t.Fatalf("Expected ServerError, got %T: %v", res.err, res.err)
	}
	if serverErr.Code != "INVALID_REQUEST" {
		t.Errorf("Expected code INVALID_REQUEST, got %s", serverErr.Code)
	}
}

func TestCallTimeoutDeregistersAndLateReplyIsIgnored(t *testing.T) {
	c, ft := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Call(ctx, protocol.TypeListSessions, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if got := c.pending.size(); got != 0 {
		t.Fatalf("Expected registry empty after timeout, got %d entries", got)
	}

	// A late reply for the abandoned call must be discarded quietly.
	req := decodeFrame(t, ft.waitSent(t, 1)[0])
	ft.push(t, fmt.Sprintf(
		`{"type":"session_list","request_id":%q,"data":{"sessions":[]}}`,
		req.RequestID))
	flush(t, c, ft)

	// The connection stays usable.
	done := startCall(c, context.Background(), protocol.TypeListSessions, nil)
	second := decodeFrame(t, ft.waitSent(t, 2)[1])
	ft.push(t, fmt.Sprintf(
		`{"type":"session_list","request_id":%q,"data":{"sessions":[]}}`,
		second.RequestID))
	if res := awaitOutcome(t, done); res.err != nil {
		t.Fatalf("Follow-up call failed: %v", res.err)
	}
}

func TestCallRequiresConnection(t *testing.T) {
	c := New(func(ctx context.Context) (Transport, error) {
		return newFakeTransport(), nil
	})

	if _, err := c.Call(context.Background(), protocol.TypeListSessions, nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Expected ErrNotConnected, got %v", err)
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	dials := 0
	ft := newFakeTransport()
	c := New(func(ctx context.Context) (Transport, error) {
		dials++
		return ft, nil
	})
	t.Cleanup(func() { c.Close() })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("First connect failed: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Second connect failed: %v", err)
	}
	if dials != 1 {
		t.Errorf("Expected a single dial, got %d", dials)
	}
}

func TestWaitReadyGate(t *testing.T) {
	c, ft := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := c.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline before greeting, got %v", err)
	}

	ft.push(t, `{"type":"connection_ready"}`)

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := c.WaitReady(ctx2); err != nil {
		t.Fatalf("WaitReady failed after greeting: %v", err)
	}
}

func TestAwaitSessionEventValueIsRetained(t *testing.T) {
	c, ft := newTestClient(t)

	ft.push(t, `{"type":"history_snapshot","data":{"session_id":"s1","timeframe":"1min","candles":{"AAPL":[{"date":"2024-01-02T09:30:00Z","open":187.15,"high":187.40,"low":186.90,"close":187.20,"volume":1200000}]}}}`)
	flush(t, c, ft)

	// The event arrived before anyone waited; the value must be retained.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snapshot, err := c.WaitForHistorySnapshot(ctx, "s1")
	if err != nil {
		t.Fatalf("Failed to await retained snapshot: %v", err)
	}
	if snapshot.SessionID != "s1" {
		t.Errorf("Expected session s1, got %s", snapshot.SessionID)
	}
	if len(snapshot.Candles["AAPL"]) != 1 {
		t.Fatalf("Expected one AAPL candle, got %d", len(snapshot.Candles["AAPL"]))
	}
	if snapshot.Candles["AAPL"][0].Close != 187.20 {
		t.Errorf("Expected close 187.20, got %v", snapshot.Candles["AAPL"][0].Close)
	}

	// Awaiting again returns the same retained value.
	again, err := c.WaitForHistorySnapshot(ctx, "s1")
	if err != nil {
		t.Fatalf("Second await failed: %v", err)
	}
	if again.Timeframe != snapshot.Timeframe {
		t.Errorf("Retained snapshot changed between awaits")
	}
}

func TestDuplicateOneShotEventIsDropped(t *testing.T) {
	c, ft := newTestClient(t)

	ft.push(t, `{"type":"simulation_end","data":{"session_id":"s1","reason":"completed"}}`)
	ft.push(t, `{"type":"simulation_end","data":{"session_id":"s1","reason":"duplicate"}}`)
	flush(t, c, ft)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	end, err := c.WaitForSimulationEnd(ctx, "s1")
	if err != nil {
		t.Fatalf("Failed to await simulation end: %v", err)
	}
	if end.Reason != "completed" {
		t.Errorf("Expected first event to win, got reason %s", end.Reason)
	}
}

func TestStreamOrderingAndSessionIsolation(t *testing.T) {
	c, ft := newTestClient(t)

	sub1, err := c.Subscribe("s1", protocol.StreamTick)
	if err != nil {
		t.Fatalf("Failed to subscribe s1: %v", err)
	}
	sub2, err := c.Subscribe("s2", protocol.StreamTick)
	if err != nil {
		t.Fatalf("Failed to subscribe s2: %v", err)
	}

	tick := func(session string, seq int) string {
		return fmt.Sprintf(
			`{"type":"tick","data":{"session_id":%q,"timestamp":"2024-01-02T09:3%d:00Z","candles":{"AAPL":{"date":"2024-01-02T09:3%d:00Z","open":1,"high":1,"low":1,"close":1,"volume":%d}}}}`,
			session, seq, seq, seq)
	}
	ft.push(t, tick("s1", 0))
	ft.push(t, tick("s2", 0))
	ft.push(t, tick("s1", 1))
	ft.push(t, tick("s2", 1))
	ft.push(t, tick("s1", 2))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		env, err := sub1.Next(ctx)
		if err != nil {
			t.Fatalf("s1 tick %d failed: %v", i, err)
		}
		var tk protocol.Tick
		if err := env.DecodeData(&tk); err != nil {
			t.Fatalf("Failed to decode tick: %v", err)
		}
		if tk.SessionID != "s1" {
			t.Errorf("s1 stream delivered tick for %s", tk.SessionID)
		}
		if got := tk.Candles["AAPL"].Volume; got != float64(i) {
			t.Errorf("s1 tick %d out of order: volume %v", i, got)
		}
	}
	for i := 0; i < 2; i++ {
		env, err := sub2.Next(ctx)
		if err != nil {
			t.Fatalf("s2 tick %d failed: %v", i, err)
		}
		var tk protocol.Tick
		if err := env.DecodeData(&tk); err != nil {
			t.Fatalf("Failed to decode tick: %v", err)
		}
		if got := tk.Candles["AAPL"].Volume; got != float64(i) {
			t.Errorf("s2 tick %d out of order: volume %v", i, got)
		}
	}
}

func TestStreamDropsItemsWithoutSubscriber(t *testing.T) {
	c, ft := newTestClient(t)

	// No subscriber yet: this tick must be dropped, not retained.
	ft.push(t, `{"type":"tick","data":{"session_id":"s1","candles":{"AAPL":{"open":1,"high":1,"low":1,"close":1,"volume":1}}}}`)
	flush(t, c, ft)

	sub, err := c.Subscribe("s1", protocol.StreamTick)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	ft.push(t, `{"type":"tick","data":{"session_id":"s1","candles":{"AAPL":{"open":2,"high":2,"low":2,"close":2,"volume":2}}}}`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	env, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Failed to receive tick: %v", err)
	}
	var tk protocol.Tick
	if err := env.DecodeData(&tk); err != nil {
		t.Fatalf("Failed to decode tick: %v", err)
	}
	if tk.Candles["AAPL"].Volume != 2 {
		t.Errorf("Expected only the post-subscribe tick, got volume %v", tk.Candles["AAPL"].Volume)
	}
}

func TestStreamBufferFullDropsNewest(t *testing.T) {
	c, ft := newTestClient(t, WithSubscriptionBuffer(2))

	sub, err := c.Subscribe("s1", protocol.StreamTick)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	for i := 1; i <= 3; i++ {
		ft.push(t, fmt.Sprintf(
			`{"type":"tick","data":{"session_id":"s1","candles":{"AAPL":{"open":1,"high":1,"low":1,"close":1,"volume":%d}}}}`, i))
	}
	flush(t, c, ft)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 1; i <= 2; i++ {
		env, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Failed to receive tick %d: %v", i, err)
		}
		var tk protocol.Tick
		if err := env.DecodeData(&tk); err != nil {
			t.Fatalf("Failed to decode tick: %v", err)
		}
		if tk.Candles["AAPL"].Volume != float64(i) {
			t.Errorf("Expected oldest ticks to survive, got volume %v at position %d", tk.Candles["AAPL"].Volume, i)
		}
	}

	// The third tick was dropped, so the stream is now empty.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	if _, err := sub.Next(shortCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected empty stream after overflow drop, got %v", err)
	}
}

func TestSubscribeIsSingleConsumer(t *testing.T) {
	c, _ := newTestClient(t)

	sub, err := c.Subscribe("s1", protocol.StreamTick)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	if _, err := c.Subscribe("s1", protocol.StreamTick); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("Expected ErrAlreadySubscribed, got %v", err)
	}

	// Other kinds and other sessions are independent.
	if _, err := c.Subscribe("s1", protocol.StreamExecutionReport); err != nil {
		t.Errorf("Execution report subscription failed: %v", err)
	}
	if _, err := c.Subscribe("s2", protocol.StreamTick); err != nil {
		t.Errorf("Other-session subscription failed: %v", err)
	}

	// Cancelling frees the slot.
	sub.Cancel()
	if _, err := c.Subscribe("s1", protocol.StreamTick); err != nil {
		t.Errorf("Resubscribe after cancel failed: %v", err)
	}
}

func TestSubscriptionCancelDrainsThenEnds(t *testing.T) {
	c, ft := newTestClient(t)

	sub, err := c.Subscribe("s1", protocol.StreamTick)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	ft.push(t, `{"type":"tick","data":{"session_id":"s1","candles":{"AAPL":{"open":1,"high":1,"low":1,"close":1,"volume":1}}}}`)
	flush(t, c, ft)

	sub.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := sub.Next(ctx); err != nil {
		t.Fatalf("Expected buffered tick before end of stream, got %v", err)
	}
	if _, err := sub.Next(ctx); !errors.Is(err, ErrStreamEnded) {
		t.Fatalf("Expected ErrStreamEnded after drain, got %v", err)
	}
}

func TestSubscribeRejectsUnknownKind(t *testing.T) {
	c, _ := newTestClient(t)
	if _, err := c.Subscribe("s1", protocol.StreamKind("candles")); err == nil {
		t.Fatal("Expected error for unknown stream kind")
	}
}

func TestSessionErrorIsScopedToOneSession(t *testing.T) {
	c, ft := newTestClient(t)

	sub1, err := c.Subscribe("s1", protocol.StreamTick)
	if err != nil {
		t.Fatalf("Failed to subscribe s1: %v", err)
	}
	sub2, err := c.Subscribe("s2", protocol.StreamTick)
	if err != nil {
		t.Fatalf("Failed to subscribe s2: %v", err)
	}

	endOutcome := make(chan error, 1)
	go func() {
		_, err := c.WaitForSimulationEnd(context.Background(), "s1")
		endOutcome <- err
	}()

	ft.push(t, `{"type":"session_error","data":{"session_id":"s1","error_code":"DATA_GAP","message":"missing candles"}}`)

	select {
	case err := <-endOutcome:
		var serr *SessionError
		if !errors.As(err, &serr) {
			t.Fatalf("Expected SessionError, got %v", err)
		}
		if serr.Code != "DATA_GAP" || serr.SessionID != "s1" {
			t.Errorf("Unexpected session error: %+v", serr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Waiter on failed session never woke up")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// The failed session's stream ends with the same error.
	if _, err := sub1.Next(ctx); err == nil {
		t.Fatal("Expected s1 stream to end after session error")
	} else {
		var serr *SessionError
		if !errors.As(err, &serr) {
			t.Errorf("Expected SessionError from s1 stream, got %v", err)
		}
	}

	// Resubscribing to the failed session reports the stored failure.
	if _, err := c.Subscribe("s1", protocol.StreamTick); err == nil {
		t.Error("Expected subscribe on failed session to fail")
	}
	if c.SessionFailure("s1") == nil {
		t.Error("Expected stored failure for s1")
	}

	// The sibling session is untouched.
	ft.push(t, `{"type":"tick","data":{"session_id":"s2","candles":{"AAPL":{"open":1,"high":1,"low":1,"close":1,"volume":7}}}}`)
	env, err := sub2.Next(ctx)
	if err != nil {
		t.Fatalf("s2 stream broken by s1 failure: %v", err)
	}
	var tk protocol.Tick
	if err := env.DecodeData(&tk); err != nil {
		t.Fatalf("Failed to decode s2 tick: %v", err)
	}
	if tk.Candles["AAPL"].Volume != 7 {
		t.Errorf("Unexpected s2 tick: %+v", tk)
	}
	if c.SessionFailure("s2") != nil {
		t.Error("s2 unexpectedly marked failed")
	}

	ft.push(t, `{"type":"simulation_end","data":{"session_id":"s2","reason":"completed"}}`)
	if _, err := c.WaitForSimulationEnd(ctx, "s2"); err != nil {
		t.Errorf("s2 simulation end failed: %v", err)
	}
}

func TestSessionErrorFailsCorrelatedCall(t *testing.T) {
	c, ft := newTestClient(t)

	done := startCall(c, context.Background(), protocol.TypeStartSimulation,
		protocol.StartSimulationRequest{Symbols: []string{"AAPL"}})

	req := decodeFrame(t, ft.waitSent(t, 1)[0])
	ft.push(t, fmt.Sprintf(
		`{"type":"session_error","request_id":%q,"data":{"session_id":"s9","error_code":"REJECTED","message":"symbol not available"}}`,
		req.RequestID))

	res := awaitOutcome(t, done)
	var serr *SessionError
	if !errors.As(res.err, &serr) {
		t.Fatalf("Expected SessionError, got %v", res.err)
	}
	if serr.SessionID != "s9" || serr.Code != "REJECTED" {
		t.Errorf("Unexpected session error: %+v", serr)
	}
}

func TestConnectionCloseFailsEverything(t *testing.T) {
	c, ft := newTestClient(t)

	sub, err := c.Subscribe("s1", protocol.StreamTick)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	// One buffered tick that must still be readable after the close.
	ft.push(t, `{"type":"tick","data":{"session_id":"s1","candles":{"AAPL":{"open":1,"high":1,"low":1,"close":1,"volume":1}}}}`)
	flush(t, c, ft)

	callDone := startCall(c, context.Background(), protocol.TypeListSessions, nil)
	ft.waitSent(t, 1)

	waiterDone := make(chan error, 1)
	go func() {
		_, err := c.WaitForSimulationEnd(context.Background(), "s2")
		waiterDone <- err
	}()

	// Server goes away.
	ft.Close()

	if res := awaitOutcome(t, callDone); !errors.Is(res.err, ErrConnectionClosed) {
		t.Errorf("Expected pending call to fail with ErrConnectionClosed, got %v", res.err)
	}

	select {
	case err := <-waiterDone:
		if !errors.Is(err, ErrConnectionClosed) {
			t.Errorf("Expected waiter to fail with ErrConnectionClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Waiter never woke after connection close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Buffered items drain before the terminal error.
	if _, err := sub.Next(ctx); err != nil {
		t.Fatalf("Expected buffered tick after close, got %v", err)
	}
	if _, err := sub.Next(ctx); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed after drain, got %v", err)
	}

	// Everything after the close fails fast.
	if _, err := c.Call(ctx, protocol.TypeListSessions, nil); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected post-close call to fail, got %v", err)
	}
	if _, err := c.Subscribe("s3", protocol.StreamTick); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected post-close subscribe to fail, got %v", err)
	}
	if _, err := c.AwaitSessionEvent(ctx, "s4", protocol.EventSimulationEnd); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected post-close await to fail, got %v", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected reconnect to be rejected, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c, _ := newTestClient(t)

	if err := c.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}

	select {
	case <-c.Done():
	default:
		t.Error("Done channel not closed after Close")
	}
}

func TestConcurrentCallsResolveIndependently(t *testing.T) {
	c, ft := newTestClient(t)

	const calls = 8
	outcomes := make([]<-chan callOutcome, calls)
	for i := 0; i < calls; i++ {
		outcomes[i] = startCall(c, context.Background(), protocol.TypeGetSession,
			protocol.SessionRef{SessionID: fmt.Sprintf("s%d", i)})
	}

	frames := ft.waitSent(t, calls)
	byIndex := make(map[int]string, calls)
	for _, raw := range frames {
		env := decodeFrame(t, raw)
		var ref protocol.SessionRef
		if err := env.DecodeData(&ref); err != nil {
			t.Fatalf("Failed to decode request payload: %v", err)
		}
		var idx int
		if _, err := fmt.Sscanf(ref.SessionID, "s%d", &idx); err != nil {
			t.Fatalf("Unexpected session ref %q", ref.SessionID)
		}
		byIndex[idx] = env.RequestID
	}

	// Reply in reverse order to prove correlation does not rely on FIFO.
	for i := calls - 1; i >= 0; i-- {
		ft.push(t, fmt.Sprintf(
			`{"type":"session_info","request_id":%q,"data":{"session_id":"s%d","status":"running"}}`,
			byIndex[i], i))
	}

	for i := 0; i < calls; i++ {
		res := awaitOutcome(t, outcomes[i])
		if res.err != nil {
			t.Fatalf("Call %d failed: %v", i, res.err)
		}
		var info protocol.SessionInfo
		if err := res.env.DecodeData(&info); err != nil {
			t.Fatalf("Failed to decode reply %d: %v", i, err)
		}
		if expected := fmt.Sprintf("s%d", i); info.SessionID != expected {
			t.Errorf("Call %d got reply for %s", i, info.SessionID)
		}
	}
}

func TestUndecodableFrameIsSkipped(t *testing.T) {
	c, ft := newTestClient(t)

	ft.push(t, `this is not json`)
	ft.push(t, `{"no_type":"here"}`)
	flush(t, c, ft)

	// The reader loop survived both bad frames.
	done := startCall(c, context.Background(), protocol.TypeListSessions, nil)
	req := decodeFrame(t, ft.waitSent(t, 1)[0])
	ft.push(t, fmt.Sprintf(
		`{"type":"session_list","request_id":%q,"data":{"sessions":[]}}`, req.RequestID))
	if res := awaitOutcome(t, done); res.err != nil {
		t.Fatalf("Call after bad frames failed: %v", res.err)
	}
}

func TestCallerCancellationLeavesOtherCallsAlive(t *testing.T) {
	c, ft := newTestClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := startCall(c, ctx, protocol.TypeGetSession, protocol.SessionRef{SessionID: "s1"})
	surviving := startCall(c, context.Background(), protocol.TypeGetSession, protocol.SessionRef{SessionID: "s2"})

	frames := ft.waitSent(t, 2)
	cancel()

	if res := awaitOutcome(t, cancelled); !errors.Is(res.err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", res.err)
	}

	// Resolve the surviving call by matching its session ref.
	for _, raw := range frames {
		env := decodeFrame(t, raw)
		var ref protocol.SessionRef
		if err := env.DecodeData(&ref); err != nil {
			continue
		}
		if ref.SessionID == "s2" {
			ft.push(t, fmt.Sprintf(
				`{"type":"session_info","request_id":%q,"data":{"session_id":"s2","status":"running"}}`,
				env.RequestID))
		}
	}

	if res := awaitOutcome(t, surviving); res.err != nil {
		t.Fatalf("Surviving call failed: %v", res.err)
	}
}
