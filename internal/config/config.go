// Package config holds the bridge daemon's configuration: agent and
// listener endpoints, transport selection and the timing tunables. The
// stability window, artifact retention and backoff constants are design
// defaults, not wire-protocol contracts, so they live here rather than
// hardcoded in the components.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Transport selection values.
const (
	TransportWebSocket = "websocket"
	TransportHTTP      = "http"
)

// Config is the daemon's configuration, persisted as JSON.
type Config struct {
	DeviceID string `json:"device_id"`

	// AgentHost/AgentPort locate the agent process (ws:// for the
	// duplex transport, http:// for the one-shot fallback).
	AgentHost string `json:"agent_host"`
	AgentPort int    `json:"agent_port"`

	// ListenAddr is the local listener accepting inbound envelopes.
	ListenAddr string `json:"listen_addr"`

	// Transport selects "websocket" (canonical duplex) or "http"
	// (degenerate one-shot).
	Transport string `json:"transport"`

	WorkspaceFolders []string `json:"workspace_folders"`

	// ScratchDir overrides the comparison artifact location; empty
	// selects the system temp directory.
	ScratchDir string `json:"scratch_dir,omitempty"`

	// Timing tunables, all optional.
	StabilityWindowMS int `json:"stability_window_ms"`
	RetentionSeconds  int `json:"retention_seconds"`
	BackoffBaseMS     int `json:"backoff_base_ms"`
	BackoffMaxMS      int `json:"backoff_max_ms"`
	QueueLimit        int `json:"queue_limit"`
}

// Defaults mirroring the original deployment: agent on 3030, extension
// listener on 3031.
const (
	defaultAgentHost  = "127.0.0.1"
	defaultAgentPort  = 3030
	defaultListenAddr = "127.0.0.1:3031"
)

// Load reads the configuration from disk, creating a default one on
// first run, then applies environment overrides.
func Load() (*Config, error) {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return createDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.fillDefaults()
	cfg.applyEnvironmentOverrides()
	return &cfg, nil
}

// Save writes the configuration to disk.
func (c *Config) Save() error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0o600)
}

func createDefaultConfig() (*Config, error) {
	cfg := &Config{DeviceID: generateDeviceID()}
	cfg.fillDefaults()
	cfg.applyEnvironmentOverrides()

	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) fillDefaults() {
	if c.DeviceID == "" {
		c.DeviceID = generateDeviceID()
	}
	if c.AgentHost == "" {
		c.AgentHost = defaultAgentHost
	}
	if c.AgentPort == 0 {
		c.AgentPort = defaultAgentPort
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.Transport == "" {
		c.Transport = TransportWebSocket
	}
	if c.StabilityWindowMS <= 0 {
		c.StabilityWindowMS = 300
	}
	if c.RetentionSeconds <= 0 {
		c.RetentionSeconds = 300
	}
	if c.BackoffBaseMS <= 0 {
		c.BackoffBaseMS = 1000
	}
	if c.BackoffMaxMS <= 0 {
		c.BackoffMaxMS = 30000
	}
	if c.QueueLimit <= 0 {
		c.QueueLimit = 32
	}
}

// applyEnvironmentOverrides lets a deployment redirect the endpoints
// without touching the config file.
func (c *Config) applyEnvironmentOverrides() {
	if v := os.Getenv("BRIDGE_AGENT_HOST"); v != "" {
		c.AgentHost = v
	}
	if v := os.Getenv("BRIDGE_AGENT_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			c.AgentPort = port
		}
	}
	if v := os.Getenv("BRIDGE_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("BRIDGE_TRANSPORT"); v == TransportWebSocket || v == TransportHTTP {
		c.Transport = v
	}
	if v := os.Getenv("BRIDGE_SCRATCH_DIR"); v != "" {
		c.ScratchDir = v
	}
}

// AgentWebSocketURL is the duplex endpoint.
func (c *Config) AgentWebSocketURL() string {
	return fmt.Sprintf("ws://%s:%d", c.AgentHost, c.AgentPort)
}

// AgentHTTPURL is the one-shot endpoint.
func (c *Config) AgentHTTPURL() string {
	return fmt.Sprintf("http://%s:%d/", c.AgentHost, c.AgentPort)
}

// AgentHealthURL is the availability probe endpoint.
func (c *Config) AgentHealthURL() string {
	return fmt.Sprintf("http://%s:%d/health", c.AgentHost, c.AgentPort)
}

// StabilityWindow returns the selection stability window.
func (c *Config) StabilityWindow() time.Duration {
	return time.Duration(c.StabilityWindowMS) * time.Millisecond
}

// Retention returns the artifact retention window.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

// BackoffBase returns the first reconnect delay.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMS) * time.Millisecond
}

// BackoffMax returns the reconnect delay cap.
func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMS) * time.Millisecond
}

func getConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".bridge", "config.json")
}

func generateDeviceID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "editor"
	}
	return hostname + "-" + uuid.New().String()[:8]
}
