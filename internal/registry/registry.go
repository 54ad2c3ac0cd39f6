package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the in-memory table of live sessions, indexed by display name
// for routing and by transport handle for close and error callbacks. Both
// indices are kept consistent under one lock.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Session
	byConn map[Conn]*Session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*Session),
		byConn: make(map[Conn]*Session),
	}
}

// Register atomically creates a session for name on conn. It fails with
// ErrAlreadyRegistered when the transport already carries a session (that
// session is left untouched) and with ErrNameTaken when another live session
// holds the name. New sessions start ACTIVO with last activity now.
func (r *Registry) Register(name string, conn Conn) (*Session, error) {
	if conn == nil {
		return nil, ErrNilConn
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byConn[conn]; exists {
		return nil, ErrAlreadyRegistered
	}
	if _, exists := r.byName[name]; exists {
		return nil, ErrNameTaken
	}

	sess := newSession(uuid.New().String(), name, conn, time.Now())
	r.byName[name] = sess
	r.byConn[conn] = sess
	return sess, nil
}

// LookupName returns the live session holding name.
func (r *Registry) LookupName(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byName[name]
	return sess, ok
}

// LookupConn returns the session bound to conn, if any.
func (r *Registry) LookupConn(conn Conn) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byConn[conn]
	return sess, ok
}

// Remove drops the session bound to conn from both indices and returns it.
// Removing an unknown conn is a no-op returning false, which makes repeated
// disconnects produce at most one departure fan-out upstream.
func (r *Registry) Remove(conn Conn) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.byConn[conn]
	if !ok {
		return nil, false
	}
	delete(r.byConn, conn)
	delete(r.byName, sess.Name)
	return sess, true
}

// Names returns a point-in-time copy of all registered names. Callers send
// frames against the copy, never under the registry lock.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// Sessions returns a point-in-time copy of all live sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.byConn))
	for _, sess := range r.byConn {
		sessions = append(sessions, sess)
	}
	return sessions
}

// ForEach invokes fn for every session in a snapshot taken once, so fn may
// send frames or mutate session state without holding the registry lock.
func (r *Registry) ForEach(fn func(*Session)) {
	for _, sess := range r.Sessions() {
		fn(sess)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// Stats returns session counters keyed for the ops endpoints: total plus a
// bucket per presence status.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.byConn))
	for _, sess := range r.byConn {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	stats := map[string]int{"total": len(sessions)}
	for _, sess := range sessions {
		stats[sess.Status()]++
	}
	return stats
}
