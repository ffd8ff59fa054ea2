package camlink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trailcam/camlink/internal/wire"
)

// testDevice is a minimal fake camera: it accepts one websocket at a time
// and streams the given payload as soon as a client registers.
func testDevice(t *testing.T, payload []byte) (host string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		// First text message is the Register; reply with one frame.
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		if payload != nil {
			if err := ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				return
			}
		}
		// Keep the socket open until the client goes away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func testFramePayload(t *testing.T) []byte {
	t.Helper()
	info := wire.FrameInfo{
		Telemetry: wire.Telemetry{FFCState: "complete", FrameCount: 7},
		Camera:    wire.CameraInfo{ResX: 160, ResY: 120, FPS: 9},
	}
	payload, err := wire.Encode(info, make([]uint16, 160*120))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return payload
}

// TestGetOrCreateSharesHandle verifies one handle per host, created lazily
// and shared by all callers.
func TestGetOrCreateSharesHandle(t *testing.T) {
	reg := New(nil, nil)
	defer reg.Close()

	a1, err := reg.GetOrCreate("10.0.0.1:8080")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	a2, err := reg.GetOrCreate("10.0.0.1:8080")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	b, err := reg.GetOrCreate("10.0.0.2:8080")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if a1 != a2 {
		t.Error("same host returned distinct handles")
	}
	if a1 == b {
		t.Error("different hosts share a handle")
	}
	if a1.Host() != "10.0.0.1:8080" {
		t.Errorf("handle bound to wrong host: %s", a1.Host())
	}
}

// TestRegistryClosed verifies GetOrCreate is rejected after Close.
func TestRegistryClosed(t *testing.T) {
	reg := New(nil, nil)
	reg.Close()
	reg.Close() // idempotent

	if _, err := reg.GetOrCreate("10.0.0.1:8080"); err != ErrRegistryClosed {
		t.Fatalf("expected ErrRegistryClosed, got %v", err)
	}
}

// TestSubscribeErrors verifies subscriber misuse surfaces sentinel errors
// and never corrupts the subscriber set.
func TestSubscribeErrors(t *testing.T) {
	reg := New(nil, nil)
	defer reg.Close()

	h, err := reg.GetOrCreate("10.0.0.1:8080")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	ch := make(chan *Frame, 1)
	if err := h.Subscribe("viewer", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := h.Subscribe("viewer", ch); err != ErrSubscriberExists {
		t.Errorf("expected ErrSubscriberExists, got %v", err)
	}
	if err := h.Subscribe("other", nil); err == nil {
		t.Error("expected error for nil channel")
	}
	if err := h.Unsubscribe("nobody"); err != ErrSubscriberNotFound {
		t.Errorf("expected ErrSubscriberNotFound, got %v", err)
	}
	if err := h.Unsubscribe("viewer"); err != nil {
		t.Errorf("Unsubscribe failed: %v", err)
	}
	if got := len(h.Stats().Subscribers); got != 0 {
		t.Errorf("expected empty subscriber stats, got %d entries", got)
	}
}

// TestFanOutDelivery verifies one inbound frame reaches every subscriber
// with space, while a full subscriber has the frame dropped and counted.
func TestFanOutDelivery(t *testing.T) {
	host := testDevice(t, testFramePayload(t))

	reg := New(nil, nil)
	defer reg.Close()

	h, err := reg.GetOrCreate(host)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	fast := make(chan *Frame, 4)
	full := make(chan *Frame) // unbuffered with no reader: every frame drops
	if err := h.Subscribe("fast", fast); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := h.Subscribe("full", full); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	h.Run(context.Background())

	select {
	case f := <-fast:
		if len(f.Pixels) != 19200 {
			t.Errorf("expected 19200 samples, got %d", len(f.Pixels))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for fan-out delivery")
	}

	stats := h.Stats()
	if stats.Subscribers["fast"].Sent != 1 {
		t.Errorf("expected fast subscriber to receive 1 frame, got %d",
			stats.Subscribers["fast"].Sent)
	}
	if stats.Subscribers["full"].Dropped != 1 {
		t.Errorf("expected full subscriber to drop 1 frame, got %d",
			stats.Subscribers["full"].Dropped)
	}
	if stats.Link.FramesDecoded != 1 {
		t.Errorf("expected 1 decoded frame in link stats, got %d", stats.Link.FramesDecoded)
	}
}

// TestPreloadConnectsWithoutSubscribers verifies warming a link before any
// consumer exists.
func TestPreloadConnectsWithoutSubscribers(t *testing.T) {
	host := testDevice(t, nil)

	reg := New(nil, nil)
	defer reg.Close()

	h, err := reg.GetOrCreate(host)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	h.Preload(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for !h.IsConnected() {
		if time.Now().After(deadline) {
			t.Fatal("preload never reached connected")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := len(h.Stats().Subscribers); got != 0 {
		t.Errorf("expected no subscribers during preload, got %d", got)
	}
}

// TestToggleOff verifies turning the link off is observable via
// IsConnected and is idempotent against repeated toggling intent.
func TestToggleOff(t *testing.T) {
	host := testDevice(t, nil)

	reg := New(nil, nil)
	defer reg.Close()

	h, err := reg.GetOrCreate(host)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	h.Run(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for !h.IsConnected() {
		if time.Now().After(deadline) {
			t.Fatal("never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.Toggle()
	if h.IsConnected() {
		t.Error("expected disconnected after toggle off")
	}
}
