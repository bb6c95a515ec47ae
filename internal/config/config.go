// Package config provides YAML-based server configuration loading for the
// chat server, with environment overrides and validation.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vovakirdan/tui-campuschat/internal/identity"
	"github.com/vovakirdan/tui-campuschat/internal/matchmaking"
)

// Config contains all configuration for the chat server.
type Config struct {
	SSH        SSHConfig        `yaml:"ssh"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Storage    StorageConfig    `yaml:"storage"`
	Identity   IdentityConfig   `yaml:"identity"`
	Attributes AttributesConfig `yaml:"attributes"`
	Session    SessionConfig    `yaml:"session"`
	Log        LogConfig        `yaml:"log"`
}

// SSHConfig defines the terminal transport. An empty address disables it.
type SSHConfig struct {
	Address     string        `yaml:"address" validate:"omitempty,hostname_port"`
	HostKeyPath string        `yaml:"host_key_path"` // Auto-generated at ~/.campuschat/host_key if empty
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// WebSocketConfig defines the browser transport. An empty address disables it.
type WebSocketConfig struct {
	Address        string   `yaml:"address" validate:"omitempty,hostname_port"`
	Path           string   `yaml:"path" validate:"required,startswith=/"`
	AllowedOrigins []string `yaml:"allowed_origins"` // Empty allows any origin
}

// StorageConfig defines the conversation log.
type StorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path" validate:"required_if=Enabled true"`
}

// IdentityConfig selects the identity policy.
type IdentityConfig struct {
	Policy   string   `yaml:"policy" validate:"required"`
	Suffixes []string `yaml:"suffixes" validate:"dive,required"`
}

// AttributesConfig names the two attribute values on the wire and in the UI.
type AttributesConfig struct {
	A string `yaml:"a" validate:"required,nefield=B"`
	B string `yaml:"b" validate:"required"`
}

// SessionConfig tunes the coordinator.
type SessionConfig struct {
	EventBuffer     int           `yaml:"event_buffer" validate:"min=1"`
	QueueSize       int           `yaml:"queue_size" validate:"min=1"`
	NotifyDisplaced bool          `yaml:"notify_displaced"`
	RequeuePartner  bool          `yaml:"requeue_partner"`
	StatsInterval   time.Duration `yaml:"stats_interval"` // 0 disables periodic stats logging
}

// LogConfig defines logging output.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-section rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.SSH.Address == "" && c.WebSocket.Address == "" {
		return errors.New("config: at least one of ssh.address or websocket.address must be set")
	}
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Policy builds the configured identity policy.
func (c Config) Policy() (identity.Policy, error) {
	return identity.Create(c.Identity.Policy, identity.Options{Suffixes: c.Identity.Suffixes})
}

// Labels returns the attribute labels.
func (c Config) Labels() matchmaking.AttributeLabels {
	return matchmaking.AttributeLabels{A: c.Attributes.A, B: c.Attributes.B}
}

// Coordinator returns the coordinator settings derived from this config.
func (c Config) Coordinator() matchmaking.CoordinatorConfig {
	return matchmaking.CoordinatorConfig{
		Labels:          c.Labels(),
		QueueSize:       c.Session.QueueSize,
		NotifyDisplaced: c.Session.NotifyDisplaced,
		RequeuePartner:  c.Session.RequeuePartner,
		StatsInterval:   c.Session.StatsInterval,
	}
}
