// Package ws serves the chat over WebSocket using JSON frames that mirror
// the browser client's events.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/vovakirdan/tui-campuschat/internal/matchmaking"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Sender accepts coordinator messages.
type Sender interface {
	Send(msg matchmaking.CoordinatorMessage)
}

// ServerConfig holds configuration for the WebSocket server.
type ServerConfig struct {
	// Address is the host:port to listen on (e.g., ":3001").
	Address string

	// Path is the URL path of the WebSocket endpoint.
	Path string

	// AllowedOrigins restricts browser origins. Empty allows any origin.
	AllowedOrigins []string

	// EventBuffer is the per-connection outbound event buffer.
	EventBuffer int
}

// DefaultServerConfig returns a config with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:     ":3001",
		Path:        "/ws",
		EventBuffer: 64,
	}
}

// Server upgrades HTTP requests to WebSocket connections and feeds them to the coordinator.
type Server struct {
	config      ServerConfig
	coordinator Sender
	upgrader    websocket.Upgrader
	httpServer  *http.Server
	logger      *log.Logger
}

// NewServer creates a WebSocket server.
func NewServer(cfg ServerConfig, coordinator Sender, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "campuschat-ws",
		})
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}

	s := &Server{
		config:      cfg,
		coordinator: coordinator,
		logger:      logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.serveWS)
	return mux
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	return lo.Contains(s.config.AllowedOrigins, r.Header.Get("Origin"))
}

// serveWS handles one client for the lifetime of its connection.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	cs := matchmaking.NewChannelSession(matchmaking.SessionID(uuid.NewString()), s.config.EventBuffer)
	s.logger.Info("session started", "session", cs.ID(), "remote", r.RemoteAddr)
	s.coordinator.Send(matchmaking.ConnectMsg{Session: cs})

	go s.writePump(conn, cs)
	s.readPump(conn, cs)

	s.coordinator.Send(matchmaking.SessionDisconnectedMsg{SessionID: cs.ID()})
	cs.Close()
	s.logger.Info("session ended", "session", cs.ID(), "remote", r.RemoteAddr)
}

// readPump decodes inbound frames until the connection fails.
func (s *Server) readPump(conn *websocket.Conn, cs *matchmaking.ChannelSession) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("read failed", "session", cs.ID(), "error", err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Debug("malformed frame", "session", cs.ID(), "error", err)
			cs.Send(matchmaking.ErrorEvent{Message: "Malformed message"})
			continue
		}

		msg, err := decodeFrame(cs.ID(), f)
		if err != nil {
			s.logger.Debug("rejected frame", "session", cs.ID(), "error", err)
			cs.Send(matchmaking.ErrorEvent{Message: "Unsupported message"})
			continue
		}
		s.coordinator.Send(msg)
	}
}

// writePump is the only writer on conn. It closes the connection once the
// session is done, flushing whatever the coordinator queued last.
func (s *Server) writePump(conn *websocket.Conn, cs *matchmaking.ChannelSession) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case evt := <-cs.Events():
			if err := s.writeEvent(conn, evt); err != nil {
				s.logger.Debug("write failed", "session", cs.ID(), "error", err)
				cs.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cs.Close()
				return
			}
		case <-cs.Done():
			for _, evt := range cs.Pending() {
				if err := s.writeEvent(conn, evt); err != nil {
					return
				}
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, evt matchmaking.SessionEvent) error {
	f, err := encodeEvent(evt)
	if err != nil {
		s.logger.Warn("dropping event", "error", err)
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.logger.Info("starting WebSocket server", "address", s.config.Address, "path", s.config.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("websocket server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down WebSocket server...")
	return s.Shutdown()
}

// Shutdown gracefully stops the server. Hijacked WebSocket connections are
// not tracked by net/http and are left to their clients.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server's listen address string.
func (s *Server) Addr() string {
	return s.config.Address
}
