// Package realtime is a WebSocket client for the hosted realtime speech
// service: it sends JSON client events (session.update, audio append/commit,
// response.create) and delivers parsed server events on a channel.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// DefaultURL is the production realtime endpoint.
	DefaultURL = "wss://api.openai.com/v1/realtime"

	defaultHandshakeTimeout = 10 * time.Second
	eventBuffer             = 100
)

// DialConfig carries everything needed to open an upstream connection.
type DialConfig struct {
	URL              string
	Model            string
	APIKey           string
	HandshakeTimeout time.Duration
}

// Conn is one upstream realtime connection. Writes are serialized; reads run
// on a background goroutine feeding Events().
type Conn struct {
	ws        *websocket.Conn
	mu        sync.Mutex
	events    chan ServerEvent
	closeCh   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Dial opens the upstream connection. There is no retry: a failed dial tears
// the session down and is surfaced only via logs.
func Dial(ctx context.Context, cfg DialConfig) (*Conn, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}

	url := fmt.Sprintf("%s?model=%s", cfg.URL, cfg.Model)

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime: dial failed: %w", err)
	}

	c := &Conn{
		ws:      ws,
		events:  make(chan ServerEvent, eventBuffer),
		closeCh: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events returns the server event stream. The channel is closed when the
// connection drops or Close is called.
func (c *Conn) Events() <-chan ServerEvent {
	return c.events
}

// UpdateSession sends the session configuration. Must be acknowledged with a
// session.updated event before audio may be appended.
func (c *Conn) UpdateSession(cfg SessionConfig) error {
	return c.send(struct {
		EventID string        `json:"event_id"`
		Type    string        `json:"type"`
		Session SessionConfig `json:"session"`
	}{newEventID(), "session.update", cfg})
}

// AppendAudio appends one base64 audio frame to the input buffer.
func (c *Conn) AppendAudio(payload string) error {
	return c.send(struct {
		EventID string `json:"event_id"`
		Type    string `json:"type"`
		Audio   string `json:"audio"`
	}{newEventID(), "input_audio_buffer.append", payload})
}

// Commit asks the service to process previously appended audio. The service
// rejects commits on an empty buffer, so callers must track appended bytes.
func (c *Conn) Commit() error {
	return c.send(struct {
		EventID string `json:"event_id"`
		Type    string `json:"type"`
	}{newEventID(), "input_audio_buffer.commit"})
}

// CreateResponse asks the agent to take a turn.
func (c *Conn) CreateResponse() error {
	return c.send(struct {
		EventID string `json:"event_id"`
		Type    string `json:"type"`
	}{newEventID(), "response.create"})
}

// Close sends a normal closure frame and closes the socket. Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.mu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		c.mu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) send(event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(event)
}

func (c *Conn) readLoop() {
	defer close(c.events)

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				slog.Debug("[Realtime] read loop ended", "error", err)
			}
			return
		}

		ev, err := ParseServerEvent(message)
		if err != nil {
			// Malformed upstream frame: drop, log only.
			slog.Debug("[Realtime] dropping unparseable message", "error", err, "len", len(message))
			continue
		}

		select {
		case <-c.closeCh:
			return
		case c.events <- ev:
		}
	}
}

func newEventID() string {
	return "evt_" + uuid.New().String()[:12]
}
