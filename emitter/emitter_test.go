package emitter

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/trailcam/camlink/config"
)

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: "127.0.0.1:1883",
		Topics: config.MQTTTopics{Events: "camlink/events"},
	}
}

// TestEventJSONShape pins the payload shape published to brokers.
func TestEventJSONShape(t *testing.T) {
	ev := Event{
		Kind:   EventDecodeError,
		Host:   "192.168.50.1:8080",
		Detail: "pixel section length mismatch",
		Time:   time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["kind"] != "decode_error" {
		t.Errorf("expected kind decode_error, got %v", decoded["kind"])
	}
	if decoded["host"] != "192.168.50.1:8080" {
		t.Errorf("unexpected host %v", decoded["host"])
	}
}

// TestEventTopic verifies per-host topic construction.
func TestEventTopic(t *testing.T) {
	got := EventTopic("camlink/events", "192.168.50.1:8080")
	want := "camlink/events/192.168.50.1:8080"
	if got != want {
		t.Errorf("topic: got %q, want %q", got, want)
	}
}

// TestMultiFansOut verifies every sink sees every event, in order.
type recordingSink struct{ events []Event }

func (r *recordingSink) Emit(ev Event) { r.events = append(r.events, ev) }

func TestMultiFansOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	sink := Multi{a, b}

	sink.Emit(Event{Kind: EventConnect, Host: "h1"})
	sink.Emit(Event{Kind: EventStall, Host: "h1"})

	for name, r := range map[string]*recordingSink{"a": a, "b": b} {
		if len(r.events) != 2 {
			t.Fatalf("sink %s saw %d events, expected 2", name, len(r.events))
		}
		if r.events[0].Kind != EventConnect || r.events[1].Kind != EventStall {
			t.Errorf("sink %s saw events out of order: %v", name, r.events)
		}
	}
}

// TestMQTTSinkDropsWhenDisconnected verifies Emit is a silent no-op before
// the broker connection is up.
func TestMQTTSinkDropsWhenDisconnected(t *testing.T) {
	s := NewMQTTSink(testMQTTConfig(), "camlink-test")
	s.Emit(Event{Kind: EventConnect, Host: "h1"}) // must not panic or block

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dropped != 1 {
		t.Errorf("expected 1 dropped event, got %d", s.dropped)
	}
	if s.published != 0 {
		t.Errorf("expected 0 published events, got %d", s.published)
	}
}

// stubToken resolves a publish with a canned outcome.
type stubToken struct {
	timeout bool
	err     error
}

func (t *stubToken) Wait() bool                     { return !t.timeout }
func (t *stubToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *stubToken) Done() <-chan struct{}          { return nil }
func (t *stubToken) Error() error                   { return t.err }

// TestMQTTSinkCountsPublishOutcome verifies a publish is counted only once
// its token resolves: acknowledged publishes increment published, errored
// and timed-out ones increment dropped.
func TestMQTTSinkCountsPublishOutcome(t *testing.T) {
	cases := []struct {
		name          string
		token         *stubToken
		wantPublished uint64
		wantDropped   uint64
	}{
		{"acknowledged", &stubToken{}, 1, 0},
		{"broker_error", &stubToken{err: errors.New("broker rejected publish")}, 0, 1},
		{"timed_out", &stubToken{timeout: true}, 0, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewMQTTSink(testMQTTConfig(), "camlink-test")
			s.settle(tc.token, "camlink/events/h1")

			s.mu.RLock()
			defer s.mu.RUnlock()
			if s.published != tc.wantPublished {
				t.Errorf("published: got %d, want %d", s.published, tc.wantPublished)
			}
			if s.dropped != tc.wantDropped {
				t.Errorf("dropped: got %d, want %d", s.dropped, tc.wantDropped)
			}
		})
	}
}
