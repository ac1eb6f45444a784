// Package ws pushes ledger events to connected clients.
package ws

import (
	"encoding/json"
	"sync"

	"lifescore_backend/internal/domain"
	"lifescore_backend/internal/logger"
	"lifescore_backend/internal/service"
)

// Hub keeps the open connections of every user. A user may have several
// (one per tab or device); each gets every event.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

var _ service.Notifier = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.UserID] = set
	}
	set[c] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	logger.Debug("ws client registered", "user_id", c.UserID, "connections", n)
}

// Unregister removes the client and closes its send channel. Calling it
// twice is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.UserID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
	close(c.Send)
	logger.Debug("ws client unregistered", "user_id", c.UserID)
}

// Notify queues ev for every connection of userID. Slow clients whose
// buffer is full miss the event rather than block the ledger.
func (h *Hub) Notify(userID string, ev domain.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		logger.Error("ws event marshal failed", "type", ev.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.Send <- msg:
		default:
			logger.Warn("ws send buffer full, dropping event", "user_id", userID, "type", ev.Type)
		}
	}
}

// Connections reports how many clients userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
