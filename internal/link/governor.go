package link

import (
	"sync"
	"time"
)

// Governor tracks consumer demand and frame delivery recency so the manager
// can tell a healthy-but-quiet link from a stalled one. It never mutates
// connection state itself; it only answers questions about timing.
type Governor struct {
	mu           sync.Mutex
	connectedAt  time.Time
	lastDelivery time.Time
}

// NewGovernor returns an empty governor.
func NewGovernor() *Governor {
	return &Governor{}
}

// MarkConnected records when the current generation entered connected.
// The stall window is measured from here until the first frame arrives.
func (g *Governor) MarkConnected(t time.Time) {
	g.mu.Lock()
	g.connectedAt = t
	g.mu.Unlock()
}

// MarkDelivery records a frame delivery to the consumer.
func (g *Governor) MarkDelivery(t time.Time) {
	g.mu.Lock()
	g.lastDelivery = t
	g.mu.Unlock()
}

// LastDelivery returns when the last frame was delivered, or the zero time
// if no frame has ever arrived.
func (g *Governor) LastDelivery() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastDelivery
}

// Stalled reports whether no frame has been delivered for the given window.
// Silence is measured from the most recent of connect time and last
// delivery, so a link that connected but never produced a frame still
// stalls out. A governor that never saw a connection reports false.
func (g *Governor) Stalled(window time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	ref := g.connectedAt
	if g.lastDelivery.After(ref) {
		ref = g.lastDelivery
	}
	if ref.IsZero() {
		return false
	}
	return time.Since(ref) > window
}
