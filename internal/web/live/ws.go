package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is public and read-only
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is the WebSocket envelope for a frame
type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServeWS upgrades the request and streams hub frames as JSON text messages.
// Anything the browser sends is ignored.
func ServeWS(w http.ResponseWriter, r *http.Request, hub *Hub) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := NewClient(TransportWebSocket)
	if !hub.Register(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go writePump(conn, client)
	readPump(conn, hub, client)
}

// readPump drains the connection so control frames are processed, and
// unregisters the client when the browser goes away
func readPump(conn *websocket.Conn, hub *Hub, client *Client) {
	defer func() {
		hub.Unregister(client)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.logger.Debug("websocket closed unexpectedly",
					slog.String("client_id", client.id),
					slog.String("error", err.Error()))
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	if err := writeFrame(conn, Frame{Event: EventConnected, Data: []byte(`{"status":"connected"}`)}); err != nil {
		return
	}

	for {
		select {
		case frame, ok := <-client.send:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := writeFrame(conn, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, frame Frame) error {
	payload := json.RawMessage(frame.Data)
	if !json.Valid(payload) {
		quoted, err := json.Marshal(string(frame.Data))
		if err != nil {
			return err
		}
		payload = quoted
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsMessage{Type: frame.Event, Payload: payload})
}
