package camlink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/trailcam/camlink/config"
	"github.com/trailcam/camlink/emitter"
	"github.com/trailcam/camlink/internal/link"
	"github.com/trailcam/camlink/internal/wire"
)

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is called with an unknown id.
	ErrSubscriberNotFound = errors.New("subscriber id not found")

	// ErrRegistryClosed is returned when handles are requested after Close.
	ErrRegistryClosed = errors.New("registry is closed")
)

// Registry is the explicit, injectable cache of camera handles, one per
// device host. Its lifecycle is tied to the app session: construct it at
// startup, Close it at shutdown. Handles are never evicted in between,
// which is acceptable for the small, fixed number of paired devices per
// session.
type Registry struct {
	cfg    *config.Config
	events emitter.Sink

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

// New creates a registry. A nil cfg uses defaults; a nil sink logs events
// through slog.
func New(cfg *config.Config, events emitter.Sink) *Registry {
	if cfg == nil {
		cfg = config.Default()
	}
	if events == nil {
		events = emitter.LogSink{}
	}
	return &Registry{
		cfg:     cfg,
		events:  events,
		handles: make(map[string]*Handle),
	}
}

// GetOrCreate returns the cached handle for host, constructing and
// registering a new one on first reference. Construction does not open a
// connection; multiple consumers of the same host share one handle, hence
// one socket, one session identifier, and one heartbeat loop.
func (r *Registry) GetOrCreate(host string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	if h, ok := r.handles[host]; ok {
		return h, nil
	}

	session := wire.NewSessionID()
	mgr, err := link.NewManager(link.Config{
		Host:              host,
		ClientID:          r.cfg.ClientID,
		Session:           session,
		HeartbeatInterval: r.cfg.Link.HeartbeatInterval(),
		ReconnectDelay:    r.cfg.Link.ReconnectDelay(),
		ConnectTimeout:    r.cfg.Link.ConnectTimeout(),
		StallWindow:       r.cfg.Link.StallWindow(),
		Events:            r.events,
	})
	if err != nil {
		return nil, err
	}

	h := &Handle{
		host:    host,
		session: session,
		mgr:     mgr,
		subs:    make(map[string]chan<- *Frame),
	}
	r.handles[host] = h

	slog.Debug("camlink: handle created", "host", host, "session", session)

	return h, nil
}

// Close tears down every handle's link and rejects further GetOrCreate
// calls. Idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.mgr.Close()
	}
}

// Handle is the public-facing object for one device host. It multiplexes
// open/close requests from multiple consumers onto one underlying
// connection and fans decoded frames out to an ordered set of subscribers.
//
// At most one live socket exists per handle at any time; the session
// identifier is generated once and stays stable across reconnects for the
// handle's lifetime.
type Handle struct {
	host    string
	session wire.SessionID
	mgr     *link.Manager

	mu    sync.RWMutex
	order []string
	subs  map[string]chan<- *Frame
	stats map[string]*subscriberCounters
}

// subscriberCounters holds internal atomic counters.
type subscriberCounters struct {
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Host returns the device address this handle is bound to.
func (h *Handle) Host() string { return h.host }

// Session returns the handle's stable session identifier.
func (h *Handle) Session() SessionID { return h.session }

// Run is the idempotent "ensure connected" operation.
func (h *Handle) Run(ctx context.Context) {
	h.mgr.Run(ctx)
}

// Preload warms the connection before any subscriber is registered so the
// first real consumer sees zero connection latency. Session state survives
// the idle period: the link stays registered and heartbeaten.
func (h *Handle) Preload(ctx context.Context) {
	slog.Debug("camlink: preloading link", "host", h.host)
	h.mgr.Run(ctx)
}

// Toggle flips the desired on/off state of the link. Turning off tears the
// socket down immediately and cancels any pending reconnect.
func (h *Handle) Toggle() {
	h.mgr.Toggle()
}

// IsConnected reports whether the link is currently connected.
func (h *Handle) IsConnected() bool {
	return h.mgr.IsConnected()
}

// Subscribe registers a channel to receive decoded frames. The first
// subscriber marks the link as having an active consumer, arming the stall
// watchdog. Returns ErrSubscriberExists on a duplicate id.
//
// Delivery is non-blocking: if ch is full when a frame arrives, that frame
// is dropped for this subscriber and counted in Stats.
func (h *Handle) Subscribe(id string, ch chan<- *Frame) error {
	if ch == nil {
		return errors.New("subscriber channel cannot be nil")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.subs[id]; exists {
		return ErrSubscriberExists
	}

	if h.stats == nil {
		h.stats = make(map[string]*subscriberCounters)
	}
	h.subs[id] = ch
	h.stats[id] = &subscriberCounters{}
	h.order = append(h.order, id)

	if len(h.subs) == 1 {
		h.mgr.SetOnFrame(h.publish)
	}

	return nil
}

// Unsubscribe removes a subscriber by id. Removing the last subscriber
// clears the consumer callback, disarming the stall watchdog; the link
// itself stays in whatever state Toggle/Run left it.
func (h *Handle) Unsubscribe(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.subs[id]; !exists {
		return ErrSubscriberNotFound
	}

	delete(h.subs, id)
	delete(h.stats, id)
	for i, existing := range h.order {
		if existing == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}

	if len(h.subs) == 0 {
		h.mgr.SetOnFrame(nil)
	}

	return nil
}

// publish fans one frame out to all subscribers in subscription order.
// Frames are shared zero-copy; subscribers must not modify them.
func (h *Handle) publish(frame *wire.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, id := range h.order {
		ch := h.subs[id]
		select {
		case ch <- frame:
			h.stats[id].sent.Add(1)
		default:
			// Channel full - drop frame for this subscriber only.
			h.stats[id].dropped.Add(1)
		}
	}
}

// Stats returns a snapshot of the link counters and per-subscriber
// delivery breakdown.
func (h *Handle) Stats() HandleStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := make(map[string]SubscriberStats, len(h.stats))
	for id, c := range h.stats {
		subs[id] = SubscriberStats{
			Sent:    c.sent.Load(),
			Dropped: c.dropped.Load(),
		}
	}

	return HandleStats{
		Link:        h.mgr.Stats(),
		Subscribers: subs,
	}
}
