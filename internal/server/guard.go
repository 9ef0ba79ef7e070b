package server

import "sync"

// guard gates the continuations that run after accept and handshake return.
// Once closed, acquire fails and the continuation must drop its connection without
// any other effect. close waits for continuations already holding the guard.
type guard struct {
	mu     sync.RWMutex
	closed bool
}

// acquire returns a release func and true while the guard is open. The caller must not
// call close before releasing.
func (g *guard) acquire() (func(), bool) {
	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return nil, false
	}
	return g.mu.RUnlock, true
}

// close marks the guard closed and reports whether this call closed it.
func (g *guard) close() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}
	g.closed = true
	return true
}
