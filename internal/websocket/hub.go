package websocket

import (
	"encoding/json"
	"sync"
)

// BalanceUpdate is pushed to a user's open sockets whenever a
// settlement touches their wallet.
type BalanceUpdate struct {
	Email         string `json:"email"`
	Balance       string `json:"balance"`
	FrozenBalance string `json:"frozen_balance"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(email string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[email] == nil {
		h.clients[email] = make(map[*Client]struct{})
	}
	h.clients[email][client] = struct{}{}
}

func (h *Hub) Unregister(email string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[email] == nil {
		return
	}
	delete(h.clients[email], client)
	if len(h.clients[email]) == 0 {
		delete(h.clients, email)
	}
}

func (h *Hub) BroadcastBalance(email string, update BalanceUpdate) {
	payload, _ := json.Marshal(update)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[email] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
