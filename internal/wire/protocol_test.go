package wire

import (
	"encoding/json"
	"testing"
)

// TestRegisterWireFormat pins the exact outbound JSON shape.
func TestRegisterWireFormat(t *testing.T) {
	payload, err := NewRegister(42, "sidekick field app").Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := `{"type":"Register","uuid":42,"data":"sidekick field app"}`
	if string(payload) != want {
		t.Errorf("register wire form:\n got %s\nwant %s", payload, want)
	}
}

// TestHeartbeatWireFormat verifies heartbeats omit the data field entirely.
func TestHeartbeatWireFormat(t *testing.T) {
	payload, err := NewHeartbeat(42).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := `{"type":"Heartbeat","uuid":42}`
	if string(payload) != want {
		t.Errorf("heartbeat wire form:\n got %s\nwant %s", payload, want)
	}
}

// TestEncodeRejectsUnknownType verifies the serialization boundary matches
// the message tag exhaustively.
func TestEncodeRejectsUnknownType(t *testing.T) {
	if _, err := (Message{Type: "Goodbye", UUID: 1}).Encode(); err == nil {
		t.Fatal("expected error for unknown message type")
	}
}

// TestMessagesShareSessionID verifies both variants carry the same uuid so
// the device can correlate them to one logical client.
func TestMessagesShareSessionID(t *testing.T) {
	session := NewSessionID()

	for _, msg := range []Message{NewRegister(session, "x"), NewHeartbeat(session)} {
		payload, err := msg.Encode()
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}

		var decoded struct {
			UUID SessionID `json:"uuid"`
		}
		if err := json.Unmarshal(payload, &decoded); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if decoded.UUID != session {
			t.Errorf("expected session %d, got %d", session, decoded.UUID)
		}
	}
}

// TestNewSessionIDNonNegative verifies identifiers stay in the positive
// int32 range the device expects.
func TestNewSessionIDNonNegative(t *testing.T) {
	for i := 0; i < 1000; i++ {
		if id := NewSessionID(); id < 0 {
			t.Fatalf("negative session id: %d", id)
		}
	}
}
