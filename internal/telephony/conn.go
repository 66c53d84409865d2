package telephony

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteTimeout = 2 * time.Second

// Conn wraps the provider WebSocket connection. Writes are serialized because
// the bridge forwards agent audio from a different goroutine than the one
// reading caller audio.
type Conn struct {
	ws        *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an upgraded provider WebSocket.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// ReadMessage returns the next raw frame from the provider.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// SendMedia forwards one agent audio frame tagged with the stream identifier.
func (c *Conn) SendMedia(streamSid, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(MediaFrame(streamSid, payload))
}

// Close sends a normal closure frame and closes the socket. Safe to call from
// either side of the bridge; only the first call does anything.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteTimeout))
		c.mu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
