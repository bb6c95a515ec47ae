package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load loads the server configuration.
// Search order: customPath -> ~/.campuschat/config.yaml -> ./configs/campuschat.yaml -> embedded default
// Fields missing from a file keep their default values.
func Load(customPath string) (Config, error) {
	cfg := DefaultConfig()

	// Try custom path first
	if customPath != "" {
		data, err := os.ReadFile(customPath)
		if err != nil {
			return cfg, fmt.Errorf("config: failed to read %s: %w", customPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: failed to parse %s: %w", customPath, err)
		}
		return cfg, nil
	}

	// Try user config directory
	if userCfgPath := userConfigPath("config.yaml"); userCfgPath != "" {
		if data, err := os.ReadFile(userCfgPath); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err == nil {
				return cfg, nil
			}
			cfg = DefaultConfig()
		}
	}

	// Try local configs directory
	if data, err := os.ReadFile("configs/campuschat.yaml"); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err == nil {
			return cfg, nil
		}
		cfg = DefaultConfig()
	}

	// Use embedded default YAML
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		return DefaultConfig(), nil // Fallback to hardcoded if embed fails
	}
	return cfg, nil
}

// userConfigPath returns the path to a user config file, or empty if home is unavailable.
func userConfigPath(filename string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".campuschat", filename)
}

// envOverrides lists the environment variables that override file settings.
// Unset variables leave the loaded value alone.
type envOverrides struct {
	SSHAddress      string `env:"CAMPUSCHAT_SSH_ADDR"`
	HostKeyPath     string `env:"CAMPUSCHAT_HOST_KEY"`
	IdleTimeout     string `env:"CAMPUSCHAT_IDLE_TIMEOUT"`
	WSAddress       string `env:"CAMPUSCHAT_WS_ADDR"`
	WSPath          string `env:"CAMPUSCHAT_WS_PATH"`
	AllowedOrigins  string `env:"CAMPUSCHAT_ALLOWED_ORIGINS"`
	DBPath          string `env:"CAMPUSCHAT_DB"`
	StorageEnabled  string `env:"CAMPUSCHAT_STORAGE_ENABLED"`
	Policy          string `env:"CAMPUSCHAT_IDENTITY_POLICY"`
	Suffixes        string `env:"CAMPUSCHAT_IDENTITY_SUFFIXES"`
	NotifyDisplaced string `env:"CAMPUSCHAT_NOTIFY_DISPLACED"`
	RequeuePartner  string `env:"CAMPUSCHAT_REQUEUE_PARTNER"`
	LogLevel        string `env:"CAMPUSCHAT_LOG_LEVEL"`
}

// ApplyEnv overrides cfg from CAMPUSCHAT_* environment variables.
// If envFile is set it is loaded first; variables already set in the
// environment take precedence over the file.
func ApplyEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("config: failed to load env file %s: %w", envFile, err)
		}
	}

	var o envOverrides
	if _, err := env.UnmarshalFromEnviron(&o); err != nil {
		return fmt.Errorf("config: failed to read environment: %w", err)
	}

	setString(&cfg.SSH.Address, o.SSHAddress)
	setString(&cfg.SSH.HostKeyPath, o.HostKeyPath)
	setString(&cfg.WebSocket.Address, o.WSAddress)
	setString(&cfg.WebSocket.Path, o.WSPath)
	setString(&cfg.Storage.DBPath, o.DBPath)
	setString(&cfg.Identity.Policy, o.Policy)
	setString(&cfg.Log.Level, o.LogLevel)

	if o.AllowedOrigins != "" {
		cfg.WebSocket.AllowedOrigins = splitList(o.AllowedOrigins)
	}
	if o.Suffixes != "" {
		cfg.Identity.Suffixes = splitList(o.Suffixes)
	}

	if o.IdleTimeout != "" {
		d, err := time.ParseDuration(o.IdleTimeout)
		if err != nil {
			return fmt.Errorf("config: CAMPUSCHAT_IDLE_TIMEOUT: %w", err)
		}
		cfg.SSH.IdleTimeout = d
	}

	for _, b := range []struct {
		name string
		raw  string
		dst  *bool
	}{
		{"CAMPUSCHAT_STORAGE_ENABLED", o.StorageEnabled, &cfg.Storage.Enabled},
		{"CAMPUSCHAT_NOTIFY_DISPLACED", o.NotifyDisplaced, &cfg.Session.NotifyDisplaced},
		{"CAMPUSCHAT_REQUEUE_PARTNER", o.RequeuePartner, &cfg.Session.RequeuePartner},
	} {
		if b.raw == "" {
			continue
		}
		v, err := strconv.ParseBool(b.raw)
		if err != nil {
			return fmt.Errorf("config: %s: %w", b.name, err)
		}
		*b.dst = v
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
