package camlink

import (
	"github.com/trailcam/camlink/internal/link"
	"github.com/trailcam/camlink/internal/wire"
)

// Frame is re-exported from the wire package. See internal/wire/types.go
// for field documentation and the immutability contract.
type Frame = wire.Frame

// Telemetry, CameraInfo and the detection types ride along on every Frame.
type (
	Telemetry  = wire.Telemetry
	CameraInfo = wire.CameraInfo
	Track      = wire.Track
	Region     = wire.Region
	Prediction = wire.Prediction
	FrameInfo  = wire.FrameInfo
)

// SessionID is the random integer correlating all messages from one handle.
type SessionID = wire.SessionID

// State is the connection state of a handle's link.
type State = link.State

const (
	StateOff          = link.StateOff
	StateConnecting   = link.StateConnecting
	StateConnected    = link.StateConnected
	StateReconnecting = link.StateReconnecting
)

// LinkStats is the per-link counter snapshot.
type LinkStats = link.Stats

// SubscriberStats tracks delivery metrics for a single subscriber.
type SubscriberStats struct {
	// Sent is the number of frames successfully sent to this subscriber
	Sent uint64
	// Dropped is the number of frames dropped due to a full channel
	Dropped uint64
}

// HandleStats combines the link snapshot with per-subscriber breakdowns.
type HandleStats struct {
	Link        LinkStats
	Subscribers map[string]SubscriberStats
}
