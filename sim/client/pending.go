package client

import (
	"sync"
	"time"

	"github.com/wricardo/simutrador-go/sim/protocol"
)

// pendingCall is a single-assignment slot for one request/response exchange.
// The dispatcher fills it exactly once; the caller waits on done.
type pendingCall struct {
	requestID string
	msgType   protocol.MessageType
	started   time.Time

	done chan struct{}

	mu       sync.Mutex
	resolved bool
	env      *protocol.Envelope
	err      error
}

// complete stores the outcome and wakes the caller. A second call reports
// ErrDuplicateResolve and leaves the first outcome intact.
func (p *pendingCall) complete(env *protocol.Envelope, err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolved {
		return ErrDuplicateResolve
	}
	p.resolved = true
	p.env = env
	p.err = err
	close(p.done)
	return nil
}

// result returns the stored outcome. Valid only after done is closed.
func (p *pendingCall) result() (*protocol.Envelope, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.env, p.err
}

// callRegistry correlates request ids with their pending calls. Entries are
// removed the moment they resolve, so a late or duplicate reply finds
// nothing to act on.
type callRegistry struct {
	mu     sync.Mutex
	calls  map[string]*pendingCall
	closed bool
	reason error
}

func newCallRegistry() *callRegistry {
	return &callRegistry{calls: make(map[string]*pendingCall)}
}

// register creates a pending call for requestID. Registration happens
// before the request frame is written, so the reply can never race past
// its waiter.
func (r *callRegistry) register(requestID string, msgType protocol.MessageType) (*pendingCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, r.reason
	}

	pc := &pendingCall{
		requestID: requestID,
		msgType:   msgType,
		started:   time.Now(),
		done:      make(chan struct{}),
	}
	r.calls[requestID] = pc
	return pc, nil
}

// take removes and returns the pending call for requestID, if any. The
// caller owns resolution after a successful take.
func (r *callRegistry) take(requestID string) (*pendingCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pc, ok := r.calls[requestID]
	if ok {
		delete(r.calls, requestID)
	}
	return pc, ok
}

// deregister abandons a call the caller no longer waits for, typically on
// timeout or cancellation. It reports false when the call already resolved.
func (r *callRegistry) deregister(requestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.calls[requestID]; !ok {
		return false
	}
	delete(r.calls, requestID)
	return true
}

// close fails every outstanding call with reason and rejects future
// registrations.
func (r *callRegistry) close(reason error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.reason = reason
	pending := r.calls
	r.calls = make(map[string]*pendingCall)
	r.mu.Unlock()

	for _, pc := range pending {
		pc.complete(nil, reason)
	}
}

// size reports how many calls are still outstanding.
func (r *callRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
