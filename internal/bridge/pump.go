package bridge

import (
	"context"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/sebas/voicegate/internal/config"
	"github.com/sebas/voicegate/internal/events"
	"github.com/sebas/voicegate/internal/realtime"
	"github.com/sebas/voicegate/internal/telephony"
)

// Open runs one bridged call to completion. It owns both sockets: the
// accepted provider connection and the upstream connection it dials. A failed
// upstream dial tears the call down immediately; there is no retry.
func Open(ctx context.Context, cfg *config.Config, mgr *Manager, pub events.Publisher, wsConn *websocket.Conn) {
	down := telephony.NewConn(wsConn)
	s := NewSession(cfg, down, pub)

	mgr.Add(s)
	defer mgr.Remove(s.ID)

	up, err := realtime.Dial(ctx, realtime.DialConfig{
		URL:    cfg.RealtimeURL,
		Model:  cfg.Model,
		APIKey: cfg.OpenAIAPIKey,
	})
	if err != nil {
		slog.Error("[Bridge] upstream dial failed", "session_id", s.ID, "error", err)
		s.Teardown("upstream dial failed")
		return
	}

	if err := s.AttachUpstream(up); err != nil {
		slog.Error("[Bridge] upstream configuration failed", "session_id", s.ID, "error", err)
		s.Teardown("upstream configuration failed")
		return
	}

	// Upstream pump: the events channel closes when the service disconnects.
	go func() {
		for ev := range up.Events() {
			s.HandleUpstream(ev)
		}
		s.Teardown("upstream closed")
	}()

	// Downstream pump on the handler goroutine.
	for {
		data, err := down.ReadMessage()
		if err != nil {
			break
		}
		s.HandleDownstream(data)
	}
	s.Teardown("downstream closed")
}
