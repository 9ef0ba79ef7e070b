package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle stage of an accepted connection.
type State int32

const (
	StateListening State = iota
	StateAccepted
	StateHandshaking
	StateEstablished
	StateHandshakeFailed
	StateReading
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateAccepted:
		return "accepted"
	case StateHandshaking:
		return "handshaking"
	case StateEstablished:
		return "established"
	case StateHandshakeFailed:
		return "handshake_failed"
	case StateReading:
		return "reading"
	default:
		return "unknown"
	}
}

// Session describes one accepted connection.
type Session struct {
	ID         uuid.UUID
	RemoteAddr net.Addr
	LocalAddr  net.Addr
	AcceptedAt time.Time

	state atomic.Int32
	conn  *tls.Conn
}

func newSession(raw net.Conn) *Session {
	s := &Session{
		ID:         uuid.Must(uuid.NewV7()),
		RemoteAddr: raw.RemoteAddr(),
		LocalAddr:  raw.LocalAddr(),
		AcceptedAt: time.Now(),
	}
	s.setState(StateAccepted)
	return s
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Remote returns the remote address as a string, empty when unknown.
func (s *Session) Remote() string {
	if s.RemoteAddr == nil {
		return ""
	}
	return s.RemoteAddr.String()
}

// PeerCertificate returns the leaf certificate the client presented during the handshake,
// or nil when it presented none or the handshake has not completed.
func (s *Session) PeerCertificate() *x509.Certificate {
	if s.conn == nil {
		return nil
	}

	state := s.conn.ConnectionState()
	if !state.HandshakeComplete || len(state.PeerCertificates) == 0 {
		return nil
	}
	return state.PeerCertificates[0]
}

// registry tracks established sessions until http.Server reports their connection closed.
// Requests only hold a sessionHandle, so a lookup after the connection is gone finds nothing.
type registry struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*Session
	byConn map[net.Conn]*Session
}

func newRegistry() *registry {
	return &registry{
		byID:   make(map[uuid.UUID]*Session),
		byConn: make(map[net.Conn]*Session),
	}
}

func (r *registry) add(conn net.Conn, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[s.ID] = s
	r.byConn[conn] = s
}

// remove unregisters the session owning conn and returns it, nil if conn is unknown.
func (r *registry) remove(conn net.Conn) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byConn[conn]
	if !ok {
		return nil
	}
	delete(r.byConn, conn)
	delete(r.byID, s.ID)
	return s
}

func (r *registry) byConnection(conn net.Conn) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byConn[conn]
}

func (r *registry) lookup(id uuid.UUID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id]
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type sessionHandleKey struct{}

// sessionHandle is the only reference a request keeps to its connection.
type sessionHandle struct {
	reg *registry
	id  uuid.UUID
}

func withSessionHandle(ctx context.Context, h sessionHandle) context.Context {
	return context.WithValue(ctx, sessionHandleKey{}, h)
}

// SessionFromRequest returns the session of the connection that produced r. It reports
// false when r did not come through a Server or the connection has since closed.
func SessionFromRequest(r *http.Request) (*Session, bool) {
	h, ok := r.Context().Value(sessionHandleKey{}).(sessionHandle)
	if !ok || h.reg == nil {
		return nil, false
	}

	s := h.reg.lookup(h.id)
	return s, s != nil
}

// PeerCertificate returns the client certificate of the connection that produced r.
// It returns nil when the client presented none or the connection no longer exists.
func PeerCertificate(r *http.Request) *x509.Certificate {
	s, ok := SessionFromRequest(r)
	if !ok {
		return nil
	}
	return s.PeerCertificate()
}
