package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"casaingest/progress"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard runs on a different origin than the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn serializes writes: the bus relay and the read loop both send
// frames.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) writeRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// handleProgressWS streams progress events for one task. Events arrive
// over the bus already encoded, so they are relayed as-is.
func (s *Server) handleProgressWS(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Warning: websocket upgrade for %s: %v", taskID, err)
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	ack := map[string]any{
		"type":    progress.EventConnected,
		"task_id": taskID,
		"message": "Connected to progress updates",
	}
	if err := conn.writeJSON(ack); err != nil {
		return
	}

	unsubscribe, err := s.bus.Subscribe(progress.Subject(taskID), func(data []byte) {
		if err := conn.writeRaw(data); err != nil {
			log.Printf("Warning: relay progress for %s: %v", taskID, err)
		}
	})
	if err != nil {
		conn.writeJSON(map[string]any{
			"type":    "error",
			"message": "Progress updates unavailable",
		})
		return
	}
	defer unsubscribe()

	// Read loop: the protocol is server-to-client, but malformed client
	// frames get an explicit error reply.
	for {
		_, msg, err := raw.ReadMessage()
		if err != nil {
			return
		}
		if !json.Valid(msg) {
			conn.writeJSON(map[string]any{
				"type":    "error",
				"message": "Invalid JSON format",
			})
		}
	}
}
