package client

import (
	"context"
	"sync"

	"github.com/wricardo/simutrador-go/sim/protocol"
)

// eventWaiter is a write-once cell for a one-shot lifecycle event. The value
// is retained, so a waiter that shows up after the event still gets it.
type eventWaiter struct {
	done     chan struct{}
	resolved bool
	env      *protocol.Envelope
	err      error
}

// resolveLocked fills the cell. Callers hold the owning table's mutex.
func (w *eventWaiter) resolveLocked(env *protocol.Envelope, err error) bool {
	if w.resolved {
		return false
	}
	w.resolved = true
	w.env = env
	w.err = err
	close(w.done)
	return true
}

// Subscription delivers one stream kind for one session in arrival order.
// It is single-consumer: exactly one goroutine should receive from it.
type Subscription struct {
	sessionID string
	kind      protocol.StreamKind
	ch        chan *protocol.Envelope
	table     *sessionTable

	// closed and err are guarded by table.mu. Consumers read err only
	// after ch is closed, which publishes the write.
	closed bool
	err    error
}

// SessionID returns the session this subscription belongs to.
func (s *Subscription) SessionID() string { return s.sessionID }

// Kind returns the stream kind being delivered.
func (s *Subscription) Kind() protocol.StreamKind { return s.kind }

// Ch exposes the delivery channel for select-based consumers. After the
// channel is closed and drained, Err explains why the stream ended.
func (s *Subscription) Ch() <-chan *protocol.Envelope { return s.ch }

// Next blocks until the next item arrives, the stream ends, or ctx is done.
// Buffered items are drained before the terminal error is reported.
func (s *Subscription) Next(ctx context.Context) (*protocol.Envelope, error) {
	select {
	case env, ok := <-s.ch:
		if !ok {
			return nil, s.err
		}
		return env, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err reports why the stream ended. Valid after Ch is closed.
func (s *Subscription) Err() error { return s.err }

// Cancel detaches the subscription. Items already buffered remain readable;
// after draining, Next reports ErrStreamEnded.
func (s *Subscription) Cancel() {
	t := s.table
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.sessions[s.sessionID]; ok && st.subs[s.kind] == s {
		delete(st.subs, s.kind)
	}
	t.closeSubLocked(s, ErrStreamEnded)
}

// sessionState tracks one session's lifecycle waiters, live streams and
// terminal error.
type sessionState struct {
	id      string
	waiters map[protocol.SessionEvent]*eventWaiter
	subs    map[protocol.StreamKind]*Subscription
	failed  *SessionError
}

func newSessionState(id string) *sessionState {
	waiters := make(map[protocol.SessionEvent]*eventWaiter, len(protocol.SessionEvents))
	for _, ev := range protocol.SessionEvents {
		waiters[ev] = &eventWaiter{done: make(chan struct{})}
	}
	return &sessionState{
		id:      id,
		waiters: waiters,
		subs:    make(map[protocol.StreamKind]*Subscription),
	}
}

// sessionTable owns every session's state for one connection. All mutation
// happens under one mutex; the dispatcher never blocks while holding it
// because stream delivery is a non-blocking send.
type sessionTable struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
	bufSize  int
	closed   bool
	reason   error
}

func newSessionTable(bufSize int) *sessionTable {
	return &sessionTable{
		sessions: make(map[string]*sessionState),
		bufSize:  bufSize,
	}
}

func (t *sessionTable) getOrCreateLocked(id string) *sessionState {
	st, ok := t.sessions[id]
	if !ok {
		st = newSessionState(id)
		t.sessions[id] = st
	}
	return st
}

// waiter returns the write-once cell for (session, event), creating the
// session state on first touch so waiters and events can arrive in either
// order.
func (t *sessionTable) waiter(id string, ev protocol.SessionEvent) (*eventWaiter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.sessions[id]
	if !ok {
		if t.closed {
			return nil, t.reason
		}
		st = t.getOrCreateLocked(id)
	}
	return st.waiters[ev], nil
}

// resolveEvent fills the one-shot cell for (session, event). The returned
// reason is non-empty when the frame was dropped instead.
func (t *sessionTable) resolveEvent(id string, ev protocol.SessionEvent, env *protocol.Envelope) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false, "closed"
	}
	st := t.getOrCreateLocked(id)
	if st.failed != nil {
		return false, "session_failed"
	}
	if !st.waiters[ev].resolveLocked(env, nil) {
		return false, "already_resolved"
	}
	return true, ""
}

// push delivers a stream item without blocking. The returned reason is
// non-empty when the item was dropped.
func (t *sessionTable) push(id string, kind protocol.StreamKind, env *protocol.Envelope) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false, "closed"
	}
	st := t.getOrCreateLocked(id)
	if st.failed != nil {
		return false, "session_failed"
	}
	sub, ok := st.subs[kind]
	if !ok {
		return false, "no_subscriber"
	}
	select {
	case sub.ch <- env:
		return true, ""
	default:
		return false, "buffer_full"
	}
}

// subscribe attaches the single consumer for (session, kind).
func (t *sessionTable) subscribe(id string, kind protocol.StreamKind) (*Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, t.reason
	}
	st := t.getOrCreateLocked(id)
	if st.failed != nil {
		return nil, st.failed
	}
	if _, exists := st.subs[kind]; exists {
		return nil, ErrAlreadySubscribed
	}

	sub := &Subscription{
		sessionID: id,
		kind:      kind,
		ch:        make(chan *protocol.Envelope, t.bufSize),
		table:     t,
	}
	st.subs[kind] = sub
	return sub, nil
}

// failSession marks the session failed, fails its unresolved waiters and
// ends its streams. Other sessions are untouched. Reports false when the
// session had already failed.
func (t *sessionTable) failSession(id string, serr *SessionError) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.getOrCreateLocked(id)
	if st.failed != nil {
		return false
	}
	st.failed = serr

	for _, w := range st.waiters {
		w.resolveLocked(nil, serr)
	}
	for kind, sub := range st.subs {
		t.closeSubLocked(sub, serr)
		delete(st.subs, kind)
	}
	return true
}

// closeAll fails everything on the table with reason and rejects any later
// waiter or subscription.
func (t *sessionTable) closeAll(reason error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	t.reason = reason

	for _, st := range t.sessions {
		for _, w := range st.waiters {
			w.resolveLocked(nil, reason)
		}
		for kind, sub := range st.subs {
			t.closeSubLocked(sub, reason)
			delete(st.subs, kind)
		}
	}
}

func (t *sessionTable) closeSubLocked(s *Subscription, reason error) {
	if s.closed {
		return
	}
	s.closed = true
	s.err = reason
	close(s.ch)
}

// sessionFailure returns the stored error for a failed session, if any.
func (t *sessionTable) sessionFailure(id string) *SessionError {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.sessions[id]; ok {
		return st.failed
	}
	return nil
}
