package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaults verifies zero values are filled with operational defaults.
func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.ClientID != "camlink" {
		t.Errorf("expected default client id, got %q", cfg.ClientID)
	}
	if got := cfg.Link.HeartbeatInterval(); got != 3*time.Second {
		t.Errorf("expected 3s heartbeat interval, got %v", got)
	}
	if got := cfg.Link.ReconnectDelay(); got != 2*time.Second {
		t.Errorf("expected 2s reconnect delay, got %v", got)
	}
	if got := cfg.Link.ConnectTimeout(); got != 20*time.Second {
		t.Errorf("expected 20s connect timeout, got %v", got)
	}
	if got := cfg.Link.StallWindow(); got != 10*time.Minute {
		t.Errorf("expected 10m stall window, got %v", got)
	}
}

// TestLoadFromFile verifies YAML parsing with partial overrides.
func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
client_id: "field-tablet"
link:
  reconnect_delay_s: 5
mqtt:
  enabled: true
  broker: "10.0.0.9:1883"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ClientID != "field-tablet" {
		t.Errorf("expected client id override, got %q", cfg.ClientID)
	}
	if got := cfg.Link.ReconnectDelay(); got != 5*time.Second {
		t.Errorf("expected 5s reconnect delay, got %v", got)
	}
	// Untouched fields keep their defaults.
	if got := cfg.Link.StallWindow(); got != 10*time.Minute {
		t.Errorf("expected default stall window, got %v", got)
	}
	if cfg.MQTT.Topics.Events != "camlink/events" {
		t.Errorf("expected default events topic, got %q", cfg.MQTT.Topics.Events)
	}
}

// TestLoadMissingFile verifies a clear error for an absent path.
func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

// TestValidateRejectsNonsense covers the fail-fast checks.
func TestValidateRejectsNonsense(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative_delay", func(c *Config) { c.Link.ReconnectDelayS = -1 }},
		{"heartbeat_exceeds_stall", func(c *Config) {
			c.Link.HeartbeatIntervalS = 700
			c.Link.StallWindowS = 600
		}},
		{"mqtt_without_broker", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.Broker = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
