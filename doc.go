// Package camlink streams live frames from wildlife trail cameras over
// flaky local WiFi links and keeps those links alive.
//
// One Handle exists per device host, cached in a Registry. A Handle owns a
// single websocket to the device's /ws endpoint: it registers a session,
// heartbeats it, decodes the inbound binary frame stream (telemetry +
// 16-bit thermal pixels), and reconnects automatically for as long as the
// consumer wants the link on.
//
// # Core Philosophy
//
// "No failure is fatal while the consumer wants the link on."
//
// Transient network errors, abrupt closes, and silent half-open sockets all
// fold into the same reconnect path. A single undecodable frame is dropped,
// logged, and forgotten; the stream continues. Errors are observable only
// through IsConnected(), Stats(), and the diagnostic event sink.
//
// # Basic Usage
//
//	reg := camlink.New(nil, nil)
//	defer reg.Close()
//
//	handle, _ := reg.GetOrCreate("192.168.50.1:8080")
//
//	frames := make(chan *camlink.Frame, 4)
//	handle.Subscribe("viewer", frames)
//	defer handle.Unsubscribe("viewer")
//
//	handle.Run(ctx)
//	for frame := range frames {
//	    render(frame) // frame.Pixels is ResX*ResY uint16 samples
//	}
//
// # Delivery Semantics
//
// Frames are delivered to subscribers in arrival order, non-blocking: a
// subscriber whose channel is full has that frame dropped (tracked in
// Stats), never queued. Frames are shared zero-copy between subscribers and
// must not be modified after delivery.
//
// # Resource Conservation
//
// Preload() warms a connection before any subscriber exists so the first
// real viewer has zero connection latency. The stall watchdog only forces
// reconnects while at least one subscriber is registered, so an idle warm
// link does not burn device battery chasing silence.
package camlink
