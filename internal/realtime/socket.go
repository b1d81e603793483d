package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// GorillaSocket adapts a gorilla websocket connection to the Socket
// interface. Gorilla connections support one concurrent writer, and
// although the hub serializes pushes, the close path can race a write,
// so the adapter keeps its own write mutex.
type GorillaSocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

// NewGorillaSocket wraps an upgraded connection.
func NewGorillaSocket(conn *websocket.Conn, writeTimeout time.Duration) *GorillaSocket {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &GorillaSocket{conn: conn, writeTimeout: writeTimeout}
}

func (s *GorillaSocket) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

func (s *GorillaSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.conn.Close()
}
