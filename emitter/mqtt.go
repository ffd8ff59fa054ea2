package emitter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/trailcam/camlink/config"
)

// MQTTSink publishes diagnostic events to an MQTT broker.
//
// Delivery is best-effort: events raised while the broker is unreachable
// are dropped, never queued, and never propagate an error to the link that
// raised them.
type MQTTSink struct {
	cfg      config.MQTTConfig
	clientID string
	client   mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	dropped   uint64
}

// NewMQTTSink creates a sink for the given broker settings. Call Connect
// before use.
func NewMQTTSink(cfg config.MQTTConfig, clientID string) *MQTTSink {
	return &MQTTSink{cfg: cfg, clientID: clientID}
}

// Connect establishes the broker connection with automatic reconnection.
func (s *MQTTSink) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", s.cfg.Broker))
	opts.SetClientID(s.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		slog.Info("emitter: mqtt connection established",
			"broker", s.cfg.Broker,
			"client_id", s.clientID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", s.cfg.Broker)
	}

	s.client = mqtt.NewClient(opts)

	slog.Info("emitter: connecting to mqtt broker", "broker", s.cfg.Broker)

	token := s.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("emitter: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	return nil
}

// Emit publishes the event as JSON to <topics.events>/<host>, QoS 0.
// Drops the event if the broker is not connected.
func (s *MQTTSink) Emit(ev Event) {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()

	if !connected {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("emitter: failed to marshal event", "kind", ev.Kind, "error", err)
		return
	}

	topic := EventTopic(s.cfg.Topics.Events, ev.Host)
	token := s.client.Publish(topic, 0, false, payload)

	// Fire-and-forget with a short grace period; a slow broker must not
	// stall the link goroutines raising events.
	go s.settle(token, topic)
}

// settle waits for one publish to resolve and records its outcome: only a
// delivery the broker acknowledged within the grace period counts as
// published, everything else counts as dropped.
func (s *MQTTSink) settle(token mqtt.Token, topic string) {
	if !token.WaitTimeout(2 * time.Second) {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		slog.Warn("emitter: mqtt publish timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		slog.Warn("emitter: mqtt publish failed", "topic", topic, "error", err)
		return
	}
	s.mu.Lock()
	s.published++
	s.mu.Unlock()
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

// EventTopic builds the per-host event topic.
func EventTopic(base, host string) string {
	return fmt.Sprintf("%s/%s", base, host)
}
