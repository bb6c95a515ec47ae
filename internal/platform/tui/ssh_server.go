// Package tui provides the terminal chat client served over SSH via Wish.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/google/uuid"

	"github.com/vovakirdan/tui-campuschat/internal/matchmaking"
	"github.com/vovakirdan/tui-campuschat/internal/storage"
)

// closeGrace is how long a force-closed client keeps its screen before the
// SSH connection is dropped, so a displacement notice can be read.
const closeGrace = 3 * time.Second

type contextKey struct{}

var chatSessionKey = contextKey{}

// SSHServerConfig holds configuration for the SSH server.
type SSHServerConfig struct {
	// Address is the host:port to listen on (e.g., ":23234").
	Address string

	// HostKeyPath is the path to the host key file.
	// If empty, a key will be auto-generated at ~/.campuschat/host_key.
	HostKeyPath string

	// IdleTimeout is how long to wait before closing idle connections.
	IdleTimeout time.Duration

	// EventBuffer is the per-session outbound event buffer.
	EventBuffer int
}

// DefaultSSHServerConfig returns a config with sensible defaults.
func DefaultSSHServerConfig() SSHServerConfig {
	return SSHServerConfig{
		Address:     ":23234",
		IdleTimeout: 30 * time.Minute,
		EventBuffer: 64,
	}
}

// SSHServer wraps a Wish SSH server that feeds chat clients into the coordinator.
type SSHServer struct {
	config      SSHServerConfig
	server      *ssh.Server
	coordinator *matchmaking.Coordinator
	history     ConversationLister
	logger      *log.Logger
}

// NewSSHServer creates a new SSH server with the given configuration.
// store may be nil, in which case the history screen stays empty.
func NewSSHServer(cfg SSHServerConfig, coordinator *matchmaking.Coordinator, store *storage.Store, logger *log.Logger) (*SSHServer, error) {
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "campuschat-ssh",
		})
	}

	srv := &SSHServer{
		config:      cfg,
		coordinator: coordinator,
		logger:      logger,
	}
	if store != nil {
		srv.history = store
	}

	// Resolve host key path
	hostKeyPath := cfg.HostKeyPath
	if hostKeyPath == "" {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return nil, fmt.Errorf("cannot get home directory: %w", homeErr)
		}
		hostKeyPath = filepath.Join(home, ".campuschat", "host_key")
	}

	// Ensure host key directory exists
	hostKeyDir := filepath.Dir(hostKeyPath)
	if mkdirErr := os.MkdirAll(hostKeyDir, 0o700); mkdirErr != nil {
		return nil, fmt.Errorf("cannot create host key directory: %w", mkdirErr)
	}

	// Middlewares run last to first: logging wraps session setup wraps the UI.
	opts := []ssh.Option{
		wish.WithAddress(cfg.Address),
		wish.WithHostKeyPath(hostKeyPath),
		wish.WithIdleTimeout(cfg.IdleTimeout),
		wish.WithMiddleware(
			bubbletea.Middleware(srv.teaHandler),
			srv.chatSessionMiddleware,
			srv.loggingMiddleware,
		),
	}

	server, err := wish.NewServer(opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot create SSH server: %w", err)
	}

	srv.server = server
	return srv, nil
}

// chatSessionMiddleware attaches a coordinator session to every SSH session
// and reports the disconnect when the SSH session ends.
func (s *SSHServer) chatSessionMiddleware(next ssh.Handler) ssh.Handler {
	return func(sshSession ssh.Session) {
		cs := matchmaking.NewChannelSession(matchmaking.SessionID(uuid.NewString()), s.config.EventBuffer)
		sshSession.Context().SetValue(chatSessionKey, cs)
		s.coordinator.Send(matchmaking.ConnectMsg{Session: cs})

		go s.watchForceClose(sshSession, cs)

		next(sshSession)

		s.coordinator.Send(matchmaking.SessionDisconnectedMsg{SessionID: cs.ID()})
		cs.Close()
	}
}

// watchForceClose drops the SSH connection after the coordinator closed the
// session, giving the UI a moment to show why.
func (s *SSHServer) watchForceClose(sshSession ssh.Session, cs *matchmaking.ChannelSession) {
	select {
	case <-sshSession.Context().Done():
		return
	case <-cs.Done():
	}

	select {
	case <-sshSession.Context().Done():
	case <-time.After(closeGrace):
		s.logger.Debug("closing force-closed session", "session", cs.ID())
		_ = sshSession.Close()
	}
}

// teaHandler creates a Bubble Tea chat client for each SSH session.
func (s *SSHServer) teaHandler(sshSession ssh.Session) (tea.Model, []tea.ProgramOption) {
	pty, _, ok := sshSession.Pty()
	if !ok {
		s.logger.Warn("no PTY requested", "user", sshSession.User())
		return nil, nil
	}

	cs, ok := sshSession.Context().Value(chatSessionKey).(*matchmaking.ChannelSession)
	if !ok {
		s.logger.Error("missing chat session", "user", sshSession.User())
		return nil, nil
	}

	model := NewChatModel(s.coordinator, cs, s.coordinator.Labels(), s.history, pty.Window.Width, pty.Window.Height)

	return model, []tea.ProgramOption{
		tea.WithAltScreen(),
	}
}

// loggingMiddleware logs SSH session events.
func (s *SSHServer) loggingMiddleware(next ssh.Handler) ssh.Handler {
	return func(sshSession ssh.Session) {
		s.logger.Info("session started",
			"user", sshSession.User(),
			"remote", sshSession.RemoteAddr().String(),
		)
		next(sshSession)
		s.logger.Info("session ended",
			"user", sshSession.User(),
			"remote", sshSession.RemoteAddr().String(),
		)
	}
}

// ListenAndServe starts the SSH server and blocks until ctx is cancelled.
func (s *SSHServer) ListenAndServe(ctx context.Context) error {
	s.logger.Info("starting SSH server", "address", s.config.Address)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("ssh server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down SSH server...")
	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *SSHServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Addr returns the server's listen address string.
func (s *SSHServer) Addr() string {
	return s.config.Address
}
