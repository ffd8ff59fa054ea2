package wire

import "time"

// Telemetry contains per-frame device operating metrics as reported by the
// camera. It is an immutable snapshot attached to each decoded frame.
type Telemetry struct {
	// TimeOn is how long the camera has been running, in nanoseconds
	TimeOn int64 `json:"TimeOn"`
	// FFCState is the flat-field-correction state (e.g. "complete", "imminent")
	FFCState string `json:"FFCState"`
	// FrameCount is the device-side frame counter
	FrameCount int `json:"FrameCount"`
	// FrameMean is the mean pixel value of the frame as computed on-device
	FrameMean uint16 `json:"FrameMean"`
	// TempC is the sensor temperature in degrees Celsius
	TempC float64 `json:"TempC"`
	// LastFFCTempC is the sensor temperature at the last flat-field correction
	LastFFCTempC float64 `json:"LastFFCTempC"`
	// LastFFCTime is when the last flat-field correction ran, in nanoseconds of TimeOn
	LastFFCTime int64 `json:"LastFFCTime"`
}

// CameraInfo is the capability/identity metadata of the device. It rarely
// changes within a session but is re-sent with every frame header.
type CameraInfo struct {
	// ResX is the horizontal resolution in pixels (required, > 0)
	ResX int `json:"ResX"`
	// ResY is the vertical resolution in pixels (required, > 0)
	ResY int `json:"ResY"`
	// FPS is the nominal frame rate
	FPS int `json:"FPS"`
	// Brand of the sensor module (e.g. "flir")
	Brand string `json:"Brand"`
	// Model of the sensor module (e.g. "lepton3.5")
	Model string `json:"Model"`
	// Firmware version string
	Firmware string `json:"Firmware"`
	// CameraSerial is the device serial number
	CameraSerial int `json:"CameraSerial"`
}

// Prediction is a single classification guess for a track.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Region is a bounding box in frame pixel coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Track is an optional per-frame detection result. Tracks are absent when
// the device has no detector running; they are consumed only by rendering
// and are not required for stream correctness.
type Track struct {
	Predictions []Prediction `json:"predictions"`
	Positions   []Region     `json:"positions"`
}

// FrameInfo is the JSON metadata block that precedes the pixel data in every
// inbound binary frame message.
type FrameInfo struct {
	Telemetry Telemetry  `json:"Telemetry"`
	Camera    CameraInfo `json:"Camera"`
	// Tracks is nil when no detector is running on the device
	Tracks        []Track `json:"Tracks,omitempty"`
	AppVersion    string  `json:"AppVersion,omitempty"`
	BinaryVersion string  `json:"BinaryVersion,omitempty"`
}

// Frame is the unit the streaming core produces: decoded metadata paired
// with a fixed-format pixel buffer of ResX*ResY unsigned 16-bit samples.
//
// Frames are transient: constructed on message receipt, handed to
// subscribers, then owned by them. The core keeps no history of past frames.
//
// Contract: Pixels MUST NOT be modified after delivery (frames are shared
// zero-copy between subscribers).
type Frame struct {
	// Info is the decoded metadata header
	Info FrameInfo
	// Pixels holds ResX*ResY samples in row-major order
	Pixels []uint16
	// TraceID is a unique identifier for distributed tracing
	TraceID string
	// ReceivedAt is when the frame was decoded on this client
	ReceivedAt time.Time
}
