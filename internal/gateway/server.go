// Package gateway is the HTTP/WebSocket boundary: it admits provider media
// stream upgrades on the designated path, destroys upgrade attempts anywhere
// else, serves the liveness endpoints, and hosts the call origination and
// recording callback hooks.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sebas/voicegate/internal/bridge"
	"github.com/sebas/voicegate/internal/config"
	"github.com/sebas/voicegate/internal/events"
	"github.com/sebas/voicegate/internal/recording"
)

// Server is the voicegate HTTP/WebSocket front end.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	upgrader   websocket.Upgrader
	sessions   *bridge.Manager
	publisher  events.Publisher
	recordings *recording.Pipeline
	startTime  time.Time
}

// NewServer wires the routes. The recording pipeline may be nil when the
// workflow is not configured.
func NewServer(cfg *config.Config, sessions *bridge.Manager, pub events.Publisher, rec *recording.Pipeline) *Server {
	s := &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions:   sessions,
		publisher:  pub,
		recordings: rec,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc(cfg.StreamPath, s.handleStream)
	mux.HandleFunc("/incoming-call", s.handleIncomingCall)
	mux.HandleFunc("/outbound-call", s.handleOutboundCall)
	mux.HandleFunc("/recording-status", s.handleRecordingStatus)

	s.httpServer = &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: mux,
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	slog.Info("[Gateway] listening", "address", s.httpServer.Addr, "stream_path", s.cfg.StreamPath)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains active calls.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.sessions.CloseAll()
	return err
}

// handleRoot serves the liveness payload at "/" and disposes of everything
// else: upgrade attempts to unknown paths get their socket destroyed without
// a handshake, plain requests get a JSON 404.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		s.writeLiveness(w)
		return
	}

	if websocket.IsWebSocketUpgrade(r) {
		slog.Warn("[Gateway] rejecting upgrade", "path", r.URL.Path, "remote", r.RemoteAddr)
		s.destroySocket(w)
		return
	}

	slog.Debug("[Gateway] not found", "path", r.URL.Path, "method", r.Method)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "not found"})
}

// destroySocket hijacks the raw connection and resets it, skipping any HTTP
// or WebSocket goodbye.
func (s *Server) destroySocket(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetLinger(0)
	}
	_ = conn.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeLiveness(w)
}

func (s *Server) writeLiveness(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":           true,
		"service":      "voicegate",
		"uptime_s":     int(time.Since(s.startTime).Seconds()),
		"active_calls": s.sessions.Count(),
	})
}

// handleStream admits a provider media stream and runs the bridged call to
// completion on this goroutine.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[Gateway] upgrade failed", "path", r.URL.Path, "remote", r.RemoteAddr, "error", err)
		return
	}
	slog.Info("[Gateway] stream admitted", "path", r.URL.Path, "remote", r.RemoteAddr)

	bridge.Open(r.Context(), s.cfg, s.sessions, s.publisher, conn)
}
