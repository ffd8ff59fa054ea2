// Package link owns the socket lifecycle for one camera host: connect,
// register, heartbeat loop, inbound frame pump, teardown, and reconnection.
// It also hosts the activity governor that recovers silent links.
//
// Concurrency model: each connection attempt is a numbered generation with
// its own context and WaitGroup. Long-running tasks (heartbeat loop, read
// pump, stall watchdog) capture the generation active at their start and
// re-check it before every side effect; a mismatch is a silent no-op exit.
// A generation is fully drained before its successor dials, so heartbeats
// from two generations can never interleave on the wire.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trailcam/camlink/emitter"
	"github.com/trailcam/camlink/internal/wire"
)

// State is the connection state of one managed link. It is owned
// exclusively by the Manager; everything else only observes it.
type State int32

const (
	StateOff State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// errStalled marks a governor-forced teardown of a silent link.
var errStalled = errors.New("link: no frames within stall window")

// Config contains the settings for one managed link.
type Config struct {
	// Host is the device address, e.g. "192.168.50.1:8080" (required)
	Host string
	// Path is the websocket endpoint path (default: "/ws")
	Path string
	// ClientID is the identifying string sent in the Register message
	ClientID string
	// Session correlates every outbound message from this logical client
	Session wire.SessionID

	// HeartbeatInterval between liveness messages (default: 3s)
	HeartbeatInterval time.Duration
	// ReconnectDelay before a new attempt after the link drops (default: 2s)
	ReconnectDelay time.Duration
	// ConnectTimeout bounds the websocket dial (default: 20s)
	ConnectTimeout time.Duration
	// StallWindow after which a silent connected link with an active
	// consumer is torn down and reconnected (default: 10m)
	StallWindow time.Duration

	// Events receives best-effort diagnostics; may be nil
	Events emitter.Sink
}

func (c *Config) applyDefaults() {
	if c.Path == "" {
		c.Path = "/ws"
	}
	if c.ClientID == "" {
		c.ClientID = "camlink"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 3 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 20 * time.Second
	}
	if c.StallWindow <= 0 {
		c.StallWindow = 10 * time.Minute
	}
}

// generation is one attempt-lifetime of the state machine.
type generation struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
	conn   *websocket.Conn
	wg     sync.WaitGroup
}

// Manager is the state machine governing one physical link to one device.
// All methods are safe for concurrent use.
type Manager struct {
	cfg      Config
	governor *Governor

	mu        sync.Mutex
	baseCtx   context.Context
	desired   bool
	state     State
	gen       uint64
	current   *generation
	reconnect *time.Timer
	onFrame   func(*wire.Frame)

	// Statistics (atomic for thread-safety)
	framesDecoded uint64
	decodeErrors  uint64
	bytesRead     uint64
	heartbeats    uint64
	reconnects    uint32
	started       time.Time
}

// NewManager creates a link manager. Nothing connects until Run or Toggle.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("link: host is required")
	}
	cfg.applyDefaults()

	return &Manager{
		cfg:      cfg,
		governor: NewGovernor(),
		state:    StateOff,
	}, nil
}

// Run is the idempotent "ensure connected" operation: it marks the link as
// wanted and opens a new connection attempt unless one is already in
// flight. The context bounds the whole link lifetime, not one attempt.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.desired = true
	if m.baseCtx == nil {
		if ctx == nil {
			ctx = context.Background()
		}
		m.baseCtx = ctx
	}

	switch m.state {
	case StateConnecting, StateConnected:
		return
	case StateReconnecting:
		// An attempt is already scheduled; let the timer fire.
		if m.reconnect != nil {
			return
		}
	}

	m.startLocked()
}

// Toggle flips the desired on/off state. Turning off immediately tears down
// any live connection and cancels pending reconnects; turning on behaves
// like Run.
func (m *Manager) Toggle() {
	m.mu.Lock()

	if m.desired {
		m.desired = false
		m.cancelReconnectLocked()
		cur := m.current
		m.current = nil
		m.state = StateOff
		m.mu.Unlock()

		if cur != nil {
			teardown(cur)
		}
		slog.Info("link: toggled off", "host", m.cfg.Host)
		m.emit(emitter.EventDisconnect, "toggled off")
		return
	}

	m.desired = true
	if m.baseCtx == nil {
		m.baseCtx = context.Background()
	}
	if m.state == StateOff {
		m.startLocked()
	}
	m.mu.Unlock()
}

// SetOnFrame registers the sole consumer callback at this layer; replacing
// it is atomic and last-write-wins. Fan-out to multiple subscribers is the
// caller's responsibility. A nil callback marks the link as having no
// active consumer, which disarms the stall watchdog.
func (m *Manager) SetOnFrame(cb func(*wire.Frame)) {
	m.mu.Lock()
	m.onFrame = cb
	m.mu.Unlock()
}

// IsConnected reports whether the link is currently in the connected state.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

// Close turns the link off and blocks until all generation goroutines have
// exited. Intended for app-session shutdown and tests.
func (m *Manager) Close() {
	m.mu.Lock()
	m.desired = false
	m.cancelReconnectLocked()
	cur := m.current
	m.current = nil
	m.state = StateOff
	m.mu.Unlock()

	if cur != nil {
		teardown(cur)
		cur.wg.Wait()
	}
}

// startLocked begins a new generation. Caller holds m.mu and has verified
// no attempt is in flight.
func (m *Manager) startLocked() {
	prev := m.current

	m.gen++
	gctx, cancel := context.WithCancel(m.baseCtx)
	g := &generation{id: m.gen, ctx: gctx, cancel: cancel}
	m.current = g
	m.state = StateConnecting
	if m.started.IsZero() {
		m.started = time.Now()
	}

	slog.Info("link: connecting", "host", m.cfg.Host, "generation", g.id)

	g.wg.Add(2)
	go m.connect(g, prev)
	go m.watchShutdown(g, m.baseCtx)
}

// watchShutdown folds cancellation of the lifetime context into a terminal
// teardown: desired goes false, the socket closes, state reads off, and no
// retry is scheduled. A generation cancelled for any other reason (toggle,
// reconnect) exits silently.
func (m *Manager) watchShutdown(g *generation, base context.Context) {
	defer g.wg.Done()

	select {
	case <-g.ctx.Done():
		// The generation context derives from base, so this fires for
		// both. Only lifetime cancellation is ours to handle.
		if base.Err() == nil {
			return
		}
	case <-base.Done():
	}

	m.mu.Lock()
	if m.gen != g.id || m.state == StateOff {
		m.mu.Unlock()
		return
	}
	m.desired = false
	m.cancelReconnectLocked()
	m.current = nil
	m.state = StateOff
	m.mu.Unlock()

	teardown(g)
	slog.Info("link: lifetime context canceled, shutting down", "host", m.cfg.Host)
	m.emit(emitter.EventDisconnect, "context canceled")
}

// connect dials the device and, on success, registers the session and
// starts the per-generation loops. Runs outside the lock.
func (m *Manager) connect(g *generation, prev *generation) {
	defer g.wg.Done()

	// Drain the previous generation completely before touching the wire so
	// its heartbeat loop cannot interleave with ours.
	if prev != nil {
		teardown(prev)
		prev.wg.Wait()
	}

	dialCtx, cancel := context.WithTimeout(g.ctx, m.cfg.ConnectTimeout)
	defer cancel()

	u := url.URL{Scheme: "ws", Host: m.cfg.Host, Path: m.cfg.Path}
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		m.linkDown(g, fmt.Errorf("dial %s: %w", u.String(), err))
		return
	}

	m.mu.Lock()
	if m.gen != g.id || !m.desired {
		// The consumer toggled off (or a newer generation started) while
		// the dial was in flight: close the late-opened socket without
		// ever sending Register.
		m.mu.Unlock()
		conn.Close()
		slog.Debug("link: discarding late socket open", "host", m.cfg.Host, "generation", g.id)
		return
	}
	g.conn = conn
	m.mu.Unlock()

	register := wire.NewRegister(m.cfg.Session, m.cfg.ClientID)
	payload, err := register.Encode()
	if err != nil {
		m.linkDown(g, fmt.Errorf("encode register: %w", err))
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		m.linkDown(g, fmt.Errorf("send register: %w", err))
		return
	}

	// Connected is entered on successful Register send; the protocol has
	// no acknowledgment.
	m.mu.Lock()
	if m.gen != g.id || !m.desired {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.state = StateConnected
	m.mu.Unlock()

	m.governor.MarkConnected(time.Now())

	slog.Info("link: connection established",
		"host", m.cfg.Host,
		"generation", g.id,
		"session", m.cfg.Session,
	)
	m.emit(emitter.EventConnect, fmt.Sprintf("generation %d", g.id))

	g.wg.Add(3)
	go m.heartbeatLoop(g)
	go m.readPump(g)
	go m.watchdog(g)
}

// heartbeatLoop sends a Heartbeat on a fixed interval until its generation
// is torn down. It is the only writer on the socket after Register.
func (m *Manager) heartbeatLoop(g *generation) {
	defer g.wg.Done()

	payload, err := wire.NewHeartbeat(m.cfg.Session).Encode()
	if err != nil {
		m.linkDown(g, fmt.Errorf("encode heartbeat: %w", err))
		return
	}

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			if !m.isCurrent(g) {
				return
			}
			if err := g.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				m.linkDown(g, fmt.Errorf("heartbeat write: %w", err))
				return
			}
			atomic.AddUint64(&m.heartbeats, 1)
		}
	}
}

// readPump receives inbound messages for one generation, decodes binary
// frame payloads, and delivers them in arrival order. A single bad frame is
// dropped and logged; it never closes the socket.
func (m *Manager) readPump(g *generation) {
	defer g.wg.Done()

	for {
		msgType, payload, err := g.conn.ReadMessage()
		if err != nil {
			if g.ctx.Err() != nil {
				// Deliberate teardown unblocked the read.
				return
			}
			m.linkDown(g, fmt.Errorf("read: %w", err))
			return
		}

		if msgType != websocket.BinaryMessage {
			// Text control frames are filtered out before the codec.
			slog.Debug("link: ignoring non-binary message",
				"host", m.cfg.Host,
				"type", msgType,
				"size", len(payload),
			)
			continue
		}

		atomic.AddUint64(&m.bytesRead, uint64(len(payload)))

		frame, err := wire.Decode(payload)
		if err != nil {
			atomic.AddUint64(&m.decodeErrors, 1)
			slog.Warn("link: dropping undecodable frame",
				"host", m.cfg.Host,
				"error", err,
			)
			m.emit(emitter.EventDecodeError, err.Error())
			continue
		}

		m.deliver(g, frame)
	}
}

// deliver hands one decoded frame to the registered consumer callback.
// Frames arrive from a single pump goroutine, so delivery order matches
// arrival order.
func (m *Manager) deliver(g *generation, frame *wire.Frame) {
	m.mu.Lock()
	if m.gen != g.id {
		m.mu.Unlock()
		return
	}
	cb := m.onFrame
	m.mu.Unlock()

	m.governor.MarkDelivery(time.Now())
	atomic.AddUint64(&m.framesDecoded, 1)

	if cb != nil {
		cb(frame)
	}
}

// watchdog recovers silent/half-open sockets that never signal a close:
// if the link stays connected with an active consumer but no frame arrives
// for the stall window, the generation is torn down and reconnected.
func (m *Manager) watchdog(g *generation) {
	defer g.wg.Done()

	interval := m.cfg.StallWindow / 8
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			if !m.isCurrent(g) {
				return
			}
			if !m.hasConsumer() {
				continue
			}
			if m.governor.Stalled(m.cfg.StallWindow) {
				slog.Warn("link: stalled, forcing reconnect",
					"host", m.cfg.Host,
					"window", m.cfg.StallWindow,
					"last_frame", m.governor.LastDelivery(),
				)
				m.emit(emitter.EventStall, m.cfg.StallWindow.String())
				m.linkDown(g, errStalled)
				return
			}
		}
	}
}

// linkDown folds every failure mode (dial error, write error, read error,
// abrupt close, stall) into the same reconnect path. Stale generations
// are ignored. Never surfaces an error to the consumer.
func (m *Manager) linkDown(g *generation, err error) {
	m.mu.Lock()
	if m.gen != g.id {
		m.mu.Unlock()
		return
	}

	g.cancel()
	if g.conn != nil {
		g.conn.Close()
	}

	if !m.desired || m.baseCtx.Err() != nil {
		m.desired = false
		m.current = nil
		m.state = StateOff
		m.mu.Unlock()
		return
	}

	m.state = StateReconnecting
	atomic.AddUint32(&m.reconnects, 1)
	m.scheduleReconnectLocked()
	delay := m.cfg.ReconnectDelay
	m.mu.Unlock()

	slog.Warn("link: connection lost, reconnect scheduled",
		"host", m.cfg.Host,
		"generation", g.id,
		"delay", delay,
		"error", err,
	)
	m.emit(emitter.EventReconnectScheduled, err.Error())
}

// scheduleReconnectLocked arms the reconnect timer, replacing any pending
// one so at most a single timer is ever outstanding. Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked() {
	if m.reconnect != nil {
		m.reconnect.Stop()
	}
	m.reconnect = time.AfterFunc(m.cfg.ReconnectDelay, m.retry)
}

// retry fires when the reconnect delay elapses. Honors the desired state
// and the lifetime context: if the consumer toggled off or the context was
// canceled in the meantime, no attempt is made.
func (m *Manager) retry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reconnect = nil
	if !m.desired || m.baseCtx.Err() != nil {
		m.desired = false
		m.state = StateOff
		return
	}
	if m.state != StateReconnecting {
		return
	}
	m.startLocked()
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
}

// isCurrent reports whether g is still the live generation.
func (m *Manager) isCurrent(g *generation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == g.id
}

// hasConsumer reports whether a frame callback is currently registered.
func (m *Manager) hasConsumer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onFrame != nil
}

func (m *Manager) emit(kind emitter.Kind, detail string) {
	if m.cfg.Events == nil {
		return
	}
	m.cfg.Events.Emit(emitter.Event{
		Kind:   kind,
		Host:   m.cfg.Host,
		Detail: detail,
		Time:   time.Now(),
	})
}

// teardown cancels a generation and closes its socket, unblocking its read
// pump. Safe to call on generations that never finished dialing.
func teardown(g *generation) {
	g.cancel()
	if g.conn != nil {
		g.conn.Close()
	}
}

// Stats is a point-in-time snapshot of one link.
type Stats struct {
	// Host is the device address
	Host string
	// State is the current connection state
	State State
	// Session is the stable session identifier for this link's handle
	Session wire.SessionID
	// FramesDecoded is the number of frames delivered to the consumer
	FramesDecoded uint64
	// DecodeErrors is the number of inbound payloads rejected by the codec
	DecodeErrors uint64
	// BytesRead is the total inbound binary payload bytes
	BytesRead uint64
	// HeartbeatsSent is the number of liveness messages written
	HeartbeatsSent uint64
	// Reconnects is the number of times the link entered reconnecting
	Reconnects uint32
	// LastFrameAt is when the last frame was delivered (zero if never)
	LastFrameAt time.Time
	// Uptime is the time since the link was first wanted (zero if never)
	Uptime time.Duration
}

// Stats returns a snapshot of the link's counters and state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	state := m.state
	started := m.started
	m.mu.Unlock()

	var uptime time.Duration
	if !started.IsZero() {
		uptime = time.Since(started)
	}

	return Stats{
		Host:           m.cfg.Host,
		State:          state,
		Session:        m.cfg.Session,
		FramesDecoded:  atomic.LoadUint64(&m.framesDecoded),
		DecodeErrors:   atomic.LoadUint64(&m.decodeErrors),
		BytesRead:      atomic.LoadUint64(&m.bytesRead),
		HeartbeatsSent: atomic.LoadUint64(&m.heartbeats),
		Reconnects:     atomic.LoadUint32(&m.reconnects),
		LastFrameAt:    m.governor.LastDelivery(),
		Uptime:         uptime,
	}
}
