package config

import (
	_ "embed"
	"time"

	"github.com/vovakirdan/tui-campuschat/internal/identity"
)

//go:embed defaults/campuschat.yaml
var defaultConfigYAML []byte

// DefaultConfig returns the built-in server configuration.
func DefaultConfig() Config {
	return Config{
		SSH: SSHConfig{
			Address:     ":23234",
			IdleTimeout: 30 * time.Minute,
		},
		WebSocket: WebSocketConfig{
			Address: ":3001",
			Path:    "/ws",
		},
		Storage: StorageConfig{
			Enabled: true,
			DBPath:  "~/.campuschat/conversations.db",
		},
		Identity: IdentityConfig{
			Policy:   identity.PolicySuffix,
			Suffixes: append([]string(nil), identity.DefaultSuffixes...),
		},
		Attributes: AttributesConfig{
			A: "male",
			B: "female",
		},
		Session: SessionConfig{
			EventBuffer:   64,
			QueueSize:     256,
			StatsInterval: time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
