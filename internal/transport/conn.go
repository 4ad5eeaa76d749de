package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is the outbound half of a live connection. Implementations must be
// safe for concurrent Emit calls: fan-out reaches a recipient's connection
// from other users' send paths.
type Conn interface {
	Emit(event string, payload any) error
	Close() error
}

// wsConn wraps a gorilla websocket connection with a write lock; gorilla
// allows at most one concurrent writer.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

// Emit serializes the payload into an event envelope and writes it
func (c *wsConn) Emit(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteJSON(Envelope{Event: event, Payload: raw}); err != nil {
		return fmt.Errorf("failed to write %s event: %w", event, err)
	}
	return nil
}

// Close closes the underlying websocket
func (c *wsConn) Close() error {
	return c.ws.Close()
}
