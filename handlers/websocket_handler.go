package handlers

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"clinic-portal/middleware"
	"clinic-portal/services"
)

const (
	wsPingInterval = 54 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocketMessage represents an incoming WebSocket message
type WebSocketMessage struct {
	Type string `json:"type"`
}

// WebSocketUpgrade upgrades HTTP connection to WebSocket
func WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleWebSocket registers an authenticated dashboard with the hub so it is
// told when its session is revoked.
func HandleWebSocket(hub *services.SessionHub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		id, ok := c.Locals(middleware.IdentityLocal).(*services.Identity)
		if !ok || id == nil {
			slog.Error("WebSocket connection without identity")
			c.Close()
			return
		}

		conn := &services.WebSocketConnection{
			ID:          uuid.NewString(),
			Conn:        c,
			Variant:     id.Session.Variant,
			PrincipalID: id.Session.PrincipalID,
			SessionID:   id.Session.ID,
			Send:        make(chan []byte, 16),
		}

		hub.Register(conn)
		defer hub.Unregister(conn)

		welcome := services.EventPayload{
			Type:      services.EventConnected,
			SessionID: id.Session.ID,
			Timestamp: time.Now().Unix(),
		}
		if data, err := json.Marshal(welcome); err == nil {
			c.WriteMessage(websocket.TextMessage, data)
		}

		go handleWebSocketSend(conn)
		handleWebSocketReceive(conn)
	}
}

// handleWebSocketSend writes hub events and keepalive pings. A revocation is
// the last message a connection receives.
func handleWebSocketSend(conn *services.WebSocketConnection) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Error("Failed to write WebSocket message", "error", err)
				return
			}

			var ev services.EventPayload
			if json.Unmarshal(message, &ev) == nil && ev.Type == services.EventSessionRevoked {
				conn.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session revoked"))
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocketReceive drains client frames until the connection closes.
// Clients only send application-level pings.
func handleWebSocketReceive(conn *services.WebSocketConnection) {
	conn.Conn.SetReadLimit(4 * 1024)
	conn.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		_, data, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			return
		}
		conn.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var msg WebSocketMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Failed to parse WebSocket message", "error", err)
			continue
		}

		if msg.Type == "ping" {
			pong, _ := json.Marshal(services.EventPayload{Type: "pong", Timestamp: time.Now().Unix()})
			select {
			case conn.Send <- pong:
			default:
			}
		} else {
			slog.Warn("Unknown WebSocket message type", "type", msg.Type, "principalID", conn.PrincipalID)
		}
	}
}
