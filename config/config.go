// Package config loads and validates the camlink YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete camlink configuration.
type Config struct {
	// ClientID identifies this client in Register messages and MQTT sessions
	ClientID string     `yaml:"client_id"`
	Link     LinkConfig `yaml:"link"`
	MQTT     MQTTConfig `yaml:"mqtt"`
}

// LinkConfig contains connection state machine timings.
type LinkConfig struct {
	HeartbeatIntervalS int `yaml:"heartbeat_interval_s"` // liveness message interval (default: 3)
	ReconnectDelayS    int `yaml:"reconnect_delay_s"`    // delay before a reconnect attempt (default: 2)
	ConnectTimeoutS    int `yaml:"connect_timeout_s"`    // websocket dial timeout (default: 20)
	StallWindowS       int `yaml:"stall_window_s"`       // silent-link recovery window (default: 600)
}

// MQTTConfig contains optional diagnostic event broker settings.
type MQTTConfig struct {
	Enabled bool       `yaml:"enabled"`
	Broker  string     `yaml:"broker"`
	Topics  MQTTTopics `yaml:"topics"`
}

// MQTTTopics contains topic templates.
type MQTTTopics struct {
	Events string `yaml:"events"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses a YAML configuration file, applies defaults for
// unset values, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "camlink"
	}
	if c.Link.HeartbeatIntervalS == 0 {
		c.Link.HeartbeatIntervalS = 3
	}
	if c.Link.ReconnectDelayS == 0 {
		c.Link.ReconnectDelayS = 2
	}
	if c.Link.ConnectTimeoutS == 0 {
		c.Link.ConnectTimeoutS = 20
	}
	if c.Link.StallWindowS == 0 {
		c.Link.StallWindowS = 600
	}
	if c.MQTT.Topics.Events == "" {
		c.MQTT.Topics.Events = "camlink/events"
	}
}

// Validate checks the configuration for values the state machine cannot
// operate with. Fail-fast: called from Load before anything connects.
func Validate(cfg *Config) error {
	if cfg.Link.HeartbeatIntervalS < 0 || cfg.Link.ReconnectDelayS < 0 ||
		cfg.Link.ConnectTimeoutS < 0 || cfg.Link.StallWindowS < 0 {
		return fmt.Errorf("link timings must not be negative")
	}
	if cfg.Link.HeartbeatIntervalS >= cfg.Link.StallWindowS {
		return fmt.Errorf("heartbeat interval (%ds) must be shorter than stall window (%ds)",
			cfg.Link.HeartbeatIntervalS, cfg.Link.StallWindowS)
	}
	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt enabled but no broker configured")
	}
	return nil
}

// HeartbeatInterval returns the heartbeat interval as a duration.
func (c LinkConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalS) * time.Second
}

// ReconnectDelay returns the reconnect delay as a duration.
func (c LinkConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayS) * time.Second
}

// ConnectTimeout returns the dial timeout as a duration.
func (c LinkConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutS) * time.Second
}

// StallWindow returns the stall recovery window as a duration.
func (c LinkConfig) StallWindow() time.Duration {
	return time.Duration(c.StallWindowS) * time.Second
}
