package link

import (
	"testing"
	"time"
)

// TestGovernorNeverConnected verifies a fresh governor reports no stall.
func TestGovernorNeverConnected(t *testing.T) {
	g := NewGovernor()
	if g.Stalled(time.Millisecond) {
		t.Error("governor with no connection history reported a stall")
	}
}

// TestGovernorStallFromConnect verifies silence is measured from connect
// time when no frame has ever arrived.
func TestGovernorStallFromConnect(t *testing.T) {
	g := NewGovernor()
	g.MarkConnected(time.Now().Add(-time.Second))

	if !g.Stalled(500 * time.Millisecond) {
		t.Error("expected stall: connected 1s ago, no frames, 500ms window")
	}
	if g.Stalled(2 * time.Second) {
		t.Error("unexpected stall: still inside a 2s window")
	}
}

// TestGovernorDeliveryResetsWindow verifies a frame delivery pushes the
// stall reference forward past the connect time.
func TestGovernorDeliveryResetsWindow(t *testing.T) {
	g := NewGovernor()
	g.MarkConnected(time.Now().Add(-time.Minute))
	g.MarkDelivery(time.Now())

	if g.Stalled(500 * time.Millisecond) {
		t.Error("unexpected stall right after a delivery")
	}

	if got := g.LastDelivery(); got.IsZero() {
		t.Error("expected non-zero last delivery time")
	}
}

// TestGovernorReconnectRefreshesReference verifies a new generation's
// connect time supersedes a stale delivery timestamp.
func TestGovernorReconnectRefreshesReference(t *testing.T) {
	g := NewGovernor()
	g.MarkDelivery(time.Now().Add(-time.Minute))
	g.MarkConnected(time.Now())

	if g.Stalled(time.Second) {
		t.Error("unexpected stall right after reconnect")
	}
}
