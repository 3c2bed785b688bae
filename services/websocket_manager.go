package services

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"clinic-portal/models"
)

// Event types pushed to dashboards.
const (
	EventConnected      = "connected"
	EventSessionRevoked = "session_revoked"
)

// WebSocketConnection represents a single dashboard connection
type WebSocketConnection struct {
	ID          string
	Conn        *websocket.Conn
	Variant     models.Variant
	PrincipalID string
	SessionID   string
	Send        chan []byte
}

// EventPayload represents the structure of WebSocket messages
type EventPayload struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type sessionEvent struct {
	principalKey string
	sessionID    string
	payload      EventPayload
}

// SessionHub fans session events out to the open dashboards of a principal.
type SessionHub struct {
	// principal key -> connection ID -> connection
	connections map[string]map[string]*WebSocketConnection
	mu          sync.RWMutex
	events      chan sessionEvent
	closed      bool
	done        chan struct{}
}

func NewSessionHub() *SessionHub {
	h := &SessionHub{
		connections: make(map[string]map[string]*WebSocketConnection),
		events:      make(chan sessionEvent, 100),
		done:        make(chan struct{}),
	}
	go h.handleEvents()
	return h
}

// Close stops the event loop after it has delivered the queued events.
// Events published afterwards are dropped. Safe to call more than once.
func (h *SessionHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.events)
	h.mu.Unlock()

	<-h.done
}

func principalKey(variant models.Variant, principalID string) string {
	return string(variant) + ":" + principalID
}

// Register adds a connection to the hub.
func (h *SessionHub) Register(conn *WebSocketConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := principalKey(conn.Variant, conn.PrincipalID)
	if h.connections[key] == nil {
		h.connections[key] = make(map[string]*WebSocketConnection)
	}
	h.connections[key][conn.ID] = conn

	slog.Info("WebSocket connection registered",
		"variant", conn.Variant,
		"principalID", conn.PrincipalID,
		"connections", len(h.connections[key]))
}

// Unregister removes a connection and closes its send channel.
func (h *SessionHub) Unregister(conn *WebSocketConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := principalKey(conn.Variant, conn.PrincipalID)
	conns, ok := h.connections[key]
	if !ok {
		return
	}
	if _, ok := conns[conn.ID]; !ok {
		return
	}
	close(conn.Send)
	delete(conns, conn.ID)
	if len(conns) == 0 {
		delete(h.connections, key)
	}

	slog.Info("WebSocket connection unregistered",
		"variant", conn.Variant,
		"principalID", conn.PrincipalID)
}

// NotifySessionRevoked tells the dashboards holding sessionID that it is gone.
func (h *SessionHub) NotifySessionRevoked(variant models.Variant, principalID, sessionID string) {
	h.publish(sessionEvent{
		principalKey: principalKey(variant, principalID),
		sessionID:    sessionID,
		payload:      EventPayload{Type: EventSessionRevoked, SessionID: sessionID},
	})
}

// NotifyAllRevoked tells every dashboard of the principal to drop its session.
func (h *SessionHub) NotifyAllRevoked(variant models.Variant, principalID string) {
	h.publish(sessionEvent{
		principalKey: principalKey(variant, principalID),
		payload:      EventPayload{Type: EventSessionRevoked},
	})
}

func (h *SessionHub) publish(ev sessionEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	select {
	case h.events <- ev:
	default:
		slog.Warn("Session event queue full, dropping event", "type", ev.payload.Type)
	}
}

func (h *SessionHub) handleEvents() {
	defer close(h.done)

	for ev := range h.events {
		ev.payload.Timestamp = time.Now().Unix()
		data, err := json.Marshal(ev.payload)
		if err != nil {
			slog.Error("Failed to marshal WebSocket message", "error", err)
			continue
		}

		h.mu.RLock()
		for _, conn := range h.connections[ev.principalKey] {
			if ev.sessionID != "" && conn.SessionID != ev.sessionID {
				continue
			}
			select {
			case conn.Send <- data:
			default:
				slog.Warn("WebSocket connection buffer full", "principalID", conn.PrincipalID)
			}
		}
		h.mu.RUnlock()
	}
}

// ConnectionCount returns the number of open connections of a principal.
func (h *SessionHub) ConnectionCount(variant models.Variant, principalID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[principalKey(variant, principalID)])
}
