package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolateHome points the config path at a throwaway directory.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home) // Windows
	return home
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	home := isolateHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DeviceID == "" {
		t.Errorf("missing device id")
	}
	if cfg.AgentPort != 3030 || cfg.ListenAddr != "127.0.0.1:3031" {
		t.Errorf("unexpected defaults: port=%d listen=%s", cfg.AgentPort, cfg.ListenAddr)
	}
	if cfg.Transport != TransportWebSocket {
		t.Errorf("transport = %q", cfg.Transport)
	}
	if cfg.StabilityWindow() != 300*time.Millisecond {
		t.Errorf("stability window = %v", cfg.StabilityWindow())
	}
	if cfg.Retention() != 5*time.Minute {
		t.Errorf("retention = %v", cfg.Retention())
	}
	if cfg.BackoffBase() != time.Second || cfg.BackoffMax() != 30*time.Second {
		t.Errorf("backoff = %v/%v", cfg.BackoffBase(), cfg.BackoffMax())
	}

	if _, err := os.Stat(filepath.Join(home, ".bridge", "config.json")); err != nil {
		t.Errorf("config not persisted: %v", err)
	}
}

func TestLoadPreservesDeviceIDAcrossRuns(t *testing.T) {
	isolateHome(t)

	first, err := Load()
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	second, err := Load()
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if first.DeviceID != second.DeviceID {
		t.Errorf("device id changed: %q -> %q", first.DeviceID, second.DeviceID)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	isolateHome(t)
	t.Setenv("BRIDGE_AGENT_HOST", "10.0.0.5")
	t.Setenv("BRIDGE_AGENT_PORT", "4040")
	t.Setenv("BRIDGE_TRANSPORT", TransportHTTP)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AgentWebSocketURL() != "ws://10.0.0.5:4040" {
		t.Errorf("ws url = %q", cfg.AgentWebSocketURL())
	}
	if cfg.AgentHTTPURL() != "http://10.0.0.5:4040/" {
		t.Errorf("http url = %q", cfg.AgentHTTPURL())
	}
	if cfg.AgentHealthURL() != "http://10.0.0.5:4040/health" {
		t.Errorf("health url = %q", cfg.AgentHealthURL())
	}
	if cfg.Transport != TransportHTTP {
		t.Errorf("transport = %q", cfg.Transport)
	}
}

func TestBogusTransportOverrideIgnored(t *testing.T) {
	isolateHome(t)
	t.Setenv("BRIDGE_TRANSPORT", "carrier-pigeon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport != TransportWebSocket {
		t.Errorf("transport = %q, want default", cfg.Transport)
	}
}
