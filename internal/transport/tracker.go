package transport

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Tracker keeps the set of live chat connections so the server can report
// them and close them on shutdown.
type Tracker struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]*websocket.Conn)}
}

// Register adds a connection keyed by session ID.
func (t *Tracker) Register(sessionID string, conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, exists := t.active[sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	t.active[sessionID] = conn
	slog.Info("Chat session registered", "session_id", sessionID)
}

// Unregister removes a connection if it is still the registered one.
func (t *Tracker) Unregister(sessionID string, conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, exists := t.active[sessionID]; exists && current == conn {
		delete(t.active, sessionID)
		slog.Info("Chat session unregistered", "session_id", sessionID)
	}
}

// Count returns the number of live connections.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.active)
}

// CloseAll terminates every live connection.
func (t *Tracker) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, conn := range t.active {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(t.active, id)
		slog.Info("Chat session closed", "session_id", id)
	}
}
