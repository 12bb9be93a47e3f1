package ws

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writer serializes writes; gorilla connections allow one concurrent writer.
type writer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *writer) send(kind string, data any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	msg := outgoingMessage{Type: kind, Data: data, Timestamp: time.Now().Unix()}
	if err := w.conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", kind, err)
	}
}

func (w *writer) sendError(message string, status int) {
	w.send("error", map[string]any{"message": message, "status": status})
}

func (w *writer) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}
