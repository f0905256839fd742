package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"rapidride/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client identifies the account behind a session.
type Client struct {
	SessionID string
	AccountID string
	Role      domain.Role
}

// EventHandler handles events sent by clients.
// A returned error is reported back to the sending session as an "error" event.
type EventHandler interface {
	HandleSocketEvent(ctx context.Context, c Client, event string, data json.RawMessage) error
}

// Session is one WebSocket connection.
type Session struct {
	id     string
	client Client
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

func newSession(hub *Hub, conn *websocket.Conn, client Client) *Session {
	return &Session{
		id:     client.SessionID,
		client: client,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    hub,
	}
}

// enqueue queues data without blocking. Callers hold the hub read lock.
func (s *Session) enqueue(data []byte) bool {
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) readPump(ctx context.Context) {
	defer func() {
		s.hub.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.logger.Warn("websocket read error", "session_id", s.id, "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			s.hub.sendToSession(s, "error", errorPayload{Message: "malformed event"})
			continue
		}
		s.dispatch(ctx, env)
	}
}

type errorPayload struct {
	Message string `json:"message"`
}

func (s *Session) dispatch(ctx context.Context, env Envelope) {
	handler := s.hub.eventHandler()
	if handler == nil {
		return
	}
	if err := handler.HandleSocketEvent(ctx, s.client, env.Event, env.Data); err != nil {
		s.hub.sendToSession(s, "error", errorPayload{Message: err.Error()})
	}
}
