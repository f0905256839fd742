// Package realtime pushes ride events to connected WebSocket clients.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"rapidride/internal/observability"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

type outbound struct {
	Event     string `json:"event"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Hub indexes open sessions by session id and by account id.
type Hub struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	byAccount map[string]map[string]*Session
	handler   EventHandler
	logger    *slog.Logger
	now       func() time.Time
}

// NewHub creates a new Hub. handler receives inbound client events and may be nil.
func NewHub(handler EventHandler, logger *slog.Logger) *Hub {
	return &Hub{
		sessions:  make(map[string]*Session),
		byAccount: make(map[string]map[string]*Session),
		handler:   handler,
		logger:    logger,
		now:       time.Now,
	}
}

// SetHandler replaces the inbound event handler.
func (h *Hub) SetHandler(handler EventHandler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

func (h *Hub) eventHandler() EventHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	if h.byAccount[s.client.AccountID] == nil {
		h.byAccount[s.client.AccountID] = make(map[string]*Session)
	}
	h.byAccount[s.client.AccountID][s.id] = s
	h.mu.Unlock()

	observability.SocketConnections.Inc()
	h.logger.Debug("session registered", "session_id", s.id, "account_id", s.client.AccountID, "role", s.client.Role)
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.id]
	if ok {
		delete(h.sessions, s.id)
		if byID := h.byAccount[s.client.AccountID]; byID != nil {
			delete(byID, s.id)
			if len(byID) == 0 {
				delete(h.byAccount, s.client.AccountID)
			}
		}
		close(s.send)
	}
	h.mu.Unlock()

	if ok {
		observability.SocketConnections.Dec()
		h.logger.Debug("session unregistered", "session_id", s.id, "account_id", s.client.AccountID)
	}
}

func (h *Hub) encode(event string, payload any) ([]byte, error) {
	return json.Marshal(outbound{
		Event:     event,
		Data:      payload,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// SendToAccounts delivers an event to every session of the given accounts
// and returns how many sessions it was queued on.
func (h *Hub) SendToAccounts(event string, payload any, accountIDs ...string) int {
	if len(accountIDs) == 0 {
		return 0
	}
	data, err := h.encode(event, payload)
	if err != nil {
		h.logger.Error("failed to encode event", "event", event, "error", err)
		return 0
	}

	seen := make(map[string]struct{}, len(accountIDs))
	var slow []*Session
	sent := 0

	h.mu.RLock()
	for _, id := range accountIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		for _, s := range h.byAccount[id] {
			if s.enqueue(data) {
				sent++
			} else {
				slow = append(slow, s)
			}
		}
	}
	h.mu.RUnlock()

	h.dropSlow(slow)
	return sent
}

func (h *Hub) sendToSession(s *Session, event string, payload any) {
	data, err := h.encode(event, payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	_, open := h.sessions[s.id]
	ok := open && s.enqueue(data)
	h.mu.RUnlock()
	if open && !ok {
		h.dropSlow([]*Session{s})
	}
}

// dropSlow disconnects sessions whose send buffer is full.
func (h *Hub) dropSlow(slow []*Session) {
	for _, s := range slow {
		h.logger.Warn("dropping slow session", "session_id", s.id, "account_id", s.client.AccountID)
		h.unregister(s)
	}
}

// SessionCount returns the number of open sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
