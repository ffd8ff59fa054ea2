// Package emitter delivers best-effort diagnostic events (connect,
// disconnect, decode error, stall) to pluggable sinks. Emit failures are
// never fatal to the stream they describe.
package emitter

import (
	"log/slog"
	"time"
)

// Kind classifies a diagnostic event.
type Kind string

const (
	EventConnect            Kind = "connect"
	EventDisconnect         Kind = "disconnect"
	EventReconnectScheduled Kind = "reconnect_scheduled"
	EventDecodeError        Kind = "decode_error"
	EventStall              Kind = "stall"
)

// Event is one diagnostic occurrence on a camera link.
type Event struct {
	Kind   Kind      `json:"kind"`
	Host   string    `json:"host"`
	Detail string    `json:"detail,omitempty"`
	Time   time.Time `json:"time"`
}

// Sink receives diagnostic events. Implementations must not block the
// caller for long and must swallow their own delivery failures.
type Sink interface {
	Emit(Event)
}

// LogSink writes events to the default slog logger.
type LogSink struct{}

// Emit logs the event at a level matching its severity.
func (LogSink) Emit(ev Event) {
	switch ev.Kind {
	case EventDecodeError, EventStall:
		slog.Warn("emitter: link event", "kind", ev.Kind, "host", ev.Host, "detail", ev.Detail)
	default:
		slog.Info("emitter: link event", "kind", ev.Kind, "host", ev.Host, "detail", ev.Detail)
	}
}

// Multi fans one event out to several sinks.
type Multi []Sink

// Emit delivers the event to every sink in order.
func (m Multi) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}
