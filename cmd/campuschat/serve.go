package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/tui-campuschat/internal/matchmaking"
	"github.com/vovakirdan/tui-campuschat/internal/platform/tui"
	"github.com/vovakirdan/tui-campuschat/internal/platform/ws"
	"github.com/vovakirdan/tui-campuschat/internal/storage"
)

var (
	flagSSHAddr     string
	flagWSAddr      string
	flagHostKey     string
	flagServeDBPath string
	flagIdleTimeout int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat servers",
	Long: `Start the SSH server (terminal chat client) and the WebSocket server
(browser clients). Both feed the same matchmaking coordinator, so a terminal
user can be paired with a browser user.

Flags override the config file. Pass an empty address to disable a server.

Host key handling:
  - If --host-key is provided, uses that key file
  - Otherwise, auto-generates a key at ~/.campuschat/host_key

Examples:
  campuschat serve                        # SSH on :23234, WebSocket on :3001
  campuschat serve --ssh :2222            # Listen for SSH on port 2222
  campuschat serve --ws ""                # SSH only
  campuschat serve --db ./chats.db        # Use specific conversation log

Users can connect with:
  ssh localhost -p 23234`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagSSHAddr, "ssh", "", "SSH server address (host:port, empty disables)")
	serveCmd.Flags().StringVar(&flagWSAddr, "ws", "", "WebSocket server address (host:port, empty disables)")
	serveCmd.Flags().StringVar(&flagHostKey, "host-key", "", "Path to host key file (auto-generated if not specified)")
	serveCmd.Flags().StringVar(&flagServeDBPath, "db", "", "Path to conversation log database")
	serveCmd.Flags().IntVar(&flagIdleTimeout, "idle-timeout", 0, "Idle timeout in minutes before disconnecting SSH clients")
}

func runServe(cmd *cobra.Command, _ []string) {
	cfg := loadConfig()

	flags := cmd.Flags()
	if flags.Changed("ssh") {
		cfg.SSH.Address = flagSSHAddr
	}
	if flags.Changed("ws") {
		cfg.WebSocket.Address = flagWSAddr
	}
	if flags.Changed("host-key") {
		cfg.SSH.HostKeyPath = flagHostKey
	}
	if flags.Changed("db") {
		cfg.Storage.DBPath = flagServeDBPath
	}
	if flags.Changed("idle-timeout") {
		cfg.SSH.IdleTimeout = time.Duration(flagIdleTimeout) * time.Minute
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log.Level)

	policy, err := cfg.Policy()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating identity policy: %v\n", err)
		os.Exit(1)
	}

	coordinator := matchmaking.NewCoordinator(cfg.Coordinator(), policy, matchmaking.NewSessionRegistry())
	coordinator.SetLogger(logger.WithPrefix("coordinator"))

	// Conversation log is optional; the chat works without it
	var store *storage.Store
	if cfg.Storage.Enabled {
		store, err = storage.Open(cfg.Storage.DBPath)
		if err != nil {
			logger.Warn("could not open conversation log", "path", cfg.Storage.DBPath, "error", err)
			store = nil
		} else {
			coordinator.SetConversationSaver(store)
			defer store.Close()
		}
	}

	coordinator.Start()
	defer coordinator.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var servers []func(context.Context) error

	if cfg.SSH.Address != "" {
		sshCfg := tui.DefaultSSHServerConfig()
		sshCfg.Address = cfg.SSH.Address
		sshCfg.HostKeyPath = cfg.SSH.HostKeyPath
		sshCfg.EventBuffer = cfg.Session.EventBuffer
		if cfg.SSH.IdleTimeout > 0 {
			sshCfg.IdleTimeout = cfg.SSH.IdleTimeout
		}
		sshServer, err := tui.NewSSHServer(sshCfg, coordinator, store, logger.WithPrefix("ssh"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating SSH server: %v\n", err)
			os.Exit(1)
		}
		servers = append(servers, sshServer.ListenAndServe)
		fmt.Printf("SSH chat on %s\n", sshServer.Addr())
	}

	if cfg.WebSocket.Address != "" {
		wsCfg := ws.DefaultServerConfig()
		wsCfg.Address = cfg.WebSocket.Address
		wsCfg.Path = cfg.WebSocket.Path
		wsCfg.AllowedOrigins = cfg.WebSocket.AllowedOrigins
		wsCfg.EventBuffer = cfg.Session.EventBuffer
		wsServer := ws.NewServer(wsCfg, coordinator, logger.WithPrefix("ws"))
		servers = append(servers, wsServer.ListenAndServe)
		fmt.Printf("WebSocket chat on %s%s\n", wsServer.Addr(), wsCfg.Path)
	}

	fmt.Println("Press Ctrl+C to stop")

	// The first server to fail takes the others down with it
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(servers))
	for _, serve := range servers {
		go func() {
			err := serve(ctx)
			cancel()
			errCh <- err
		}()
	}

	failed := false
	for range servers {
		if err := <-errCh; err != nil {
			logger.Error("server error", "error", err)
			failed = true
		}
	}

	if failed {
		coordinator.Stop()
		if store != nil {
			store.Close()
		}
		os.Exit(1)
	}
}
