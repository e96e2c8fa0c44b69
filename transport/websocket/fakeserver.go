package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FakeServer is an in-process stand-in for the trading server, used by
// tests across the repo. It upgrades incoming HTTP requests, records every
// frame clients send, and lets the test push frames back or install a
// scripted responder. It works at the frame level so tests own the
// envelope semantics.
type FakeServer struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   []*websocket.Conn
	writeMu sync.Mutex

	inbound chan []byte

	// greeting frames are sent to each connection right after the upgrade,
	// the way the real server pushes connection_ready or health_status.
	greeting [][]byte

	// respond, when set, maps each inbound frame to zero or more reply
	// frames sent on the same connection.
	respond func(raw []byte) [][]byte
}

// NewFakeServer returns a server ready to be wrapped by httptest.NewServer.
func NewFakeServer() *FakeServer {
	return &FakeServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		inbound: make(chan []byte, 64),
	}
}

// Respond installs a scripted responder. Must be called before any client
// connects.
func (s *FakeServer) Respond(fn func(raw []byte) [][]byte) {
	s.respond = fn
}

// GreetWith sets frames sent to every new connection immediately after the
// upgrade. Must be called before any client connects.
func (s *FakeServer) GreetWith(frames ...[]byte) {
	s.greeting = frames
}

// ServeHTTP upgrades the request and reads frames until the client goes away.
func (s *FakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, ws)
	s.mu.Unlock()

	for _, frame := range s.greeting {
		s.writeMu.Lock()
		ws.WriteMessage(websocket.TextMessage, frame)
		s.writeMu.Unlock()
	}

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}

		select {
		case s.inbound <- raw:
		default:
		}

		if s.respond != nil {
			for _, reply := range s.respond(raw) {
				s.writeMu.Lock()
				ws.WriteMessage(websocket.TextMessage, reply)
				s.writeMu.Unlock()
			}
		}
	}
}

// Push sends a frame to every connected client.
func (s *FakeServer) Push(frame []byte) error {
	s.mu.Lock()
	conns := make([]*websocket.Conn, len(s.conns))
	copy(conns, s.conns)
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, ws := range conns {
		if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			return err
		}
	}
	return nil
}

// NextInbound returns the next frame a client sent, or false on timeout.
func (s *FakeServer) NextInbound(timeout time.Duration) ([]byte, bool) {
	select {
	case raw := <-s.inbound:
		return raw, true
	case <-time.After(timeout):
		return nil, false
	}
}

// CloseAll force-closes every client connection from the server side.
func (s *FakeServer) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.conns {
		ws.Close()
	}
	s.conns = nil
}
