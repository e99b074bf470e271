package fakeserver

import (
	"sort"
	"sync"

	"github.com/omochice/fcchat/pkg/protocol"
)

// Hub tracks the sessions connected to a Server. Both the TCP and the
// WebSocket listener of a Server share one Hub.
type Hub struct {
	sessions map[*Session]bool
	mu       sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[*Session]bool),
	}
}

// Register adds a session to the hub.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = true
}

// Unregister removes a session from the hub.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s)
}

// SessionCount returns number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Sessions returns the connected sessions in connection order.
func (h *Hub) Sessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Broadcast sends p to every connected session.
func (h *Hub) Broadcast(p *protocol.Packet) {
	for _, s := range h.Sessions() {
		_ = s.Send(p)
	}
}

// CloseAll drops every connected session.
func (h *Hub) CloseAll() {
	for _, s := range h.Sessions() {
		s.Close()
	}
}
