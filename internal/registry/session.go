package registry

import (
	"sync"
	"time"

	"parley/pkg/protocol"
)

// Conn is the transport side of a session. The registry indexes live
// sessions by it and routing code writes outbound frames through it.
// Implementations must tolerate Send after Close.
type Conn interface {
	Send(data []byte) error
	Close() error
	RemoteAddr() string
}

// Session is one registered user: a name bound to a transport handle plus
// presence state. The registry owns the session; everything else holds
// non-owning references obtained from lookups or snapshots.
type Session struct {
	ID         string
	Name       string
	RemoteAddr string
	Conn       Conn

	mu           sync.Mutex
	status       string
	lastActivity time.Time
	connectedAt  time.Time
}

func newSession(id, name string, conn Conn, now time.Time) *Session {
	return &Session{
		ID:           id,
		Name:         name,
		RemoteAddr:   conn.RemoteAddr(),
		Conn:         conn,
		status:       protocol.StatusActive,
		lastActivity: now,
		connectedAt:  now,
	}
}

// Status returns the current presence status wire literal.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus overwrites the presence status. Callers validate the literal
// first; the session stores whatever it is given.
func (s *Session) SetStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Touch records inbound activity at the given instant. Touching never
// changes status; a demoted session stays INACTIVO until an explicit
// change_status.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// LastActivity returns the instant of the most recent inbound frame or
// explicit status change.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// ConnectedAt returns when the session registered.
func (s *Session) ConnectedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectedAt
}

// DemoteIfIdle atomically moves an ACTIVO session to INACTIVO when its last
// activity is older than timeout at instant now. It reports whether the
// demotion happened. BUSY and already-INACTIVO sessions are never touched.
func (s *Session) DemoteIfIdle(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != protocol.StatusActive {
		return false
	}
	if now.Sub(s.lastActivity) <= timeout {
		return false
	}
	s.status = protocol.StatusInactive
	return true
}
