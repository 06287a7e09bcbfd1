package chat

import "sync"

// SessionGate admits at most one in-flight turn per session. Admission is
// try-only: a busy session is rejected immediately rather than queued.
type SessionGate struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewSessionGate() *SessionGate {
	return &SessionGate{active: map[string]struct{}{}}
}

// TryAdmit claims the session. It returns false when a turn for the same
// session is already running.
func (g *SessionGate) TryAdmit(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[sessionID]; busy {
		return false
	}
	g.active[sessionID] = struct{}{}
	return true
}

// Release frees the session. Releasing an unclaimed session is a no-op.
func (g *SessionGate) Release(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, sessionID)
}
