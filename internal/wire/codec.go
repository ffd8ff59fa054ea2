// Package wire implements the camera wire protocol: the binary frame codec
// for inbound messages and the JSON session messages (Register/Heartbeat)
// for outbound ones.
//
// Inbound binary layout (all little-endian):
//
//	[2 bytes: uint16 metadata length L]
//	[L bytes: UTF-8 JSON FrameInfo block]
//	[remaining bytes: uint16 pixel samples, exactly ResX*ResY of them]
//
// Decoding is pure and synchronous; a malformed payload yields a
// *DecodeError and the caller drops the frame without touching the socket.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// headerLen is the size of the metadata length prefix.
const headerLen = 2

var (
	// ErrShortPayload means the payload cannot even hold the length prefix.
	ErrShortPayload = errors.New("payload shorter than metadata length header")

	// ErrMetadataLength means the declared metadata length overruns the payload.
	ErrMetadataLength = errors.New("metadata length overruns payload")

	// ErrBadMetadata means the metadata block is not valid JSON for FrameInfo.
	ErrBadMetadata = errors.New("malformed metadata block")

	// ErrBadResolution means the metadata declares a non-positive resolution.
	ErrBadResolution = errors.New("non-positive resolution in metadata")

	// ErrPixelLength means the pixel section is not exactly ResX*ResY*2 bytes.
	ErrPixelLength = errors.New("pixel section length mismatch")
)

// DecodeError reports a rejected inbound frame payload. It wraps one of the
// sentinel errors above and carries the offending sizes for diagnostics.
type DecodeError struct {
	Err        error // sentinel cause
	PayloadLen int   // total payload bytes received
	MetaLen    int   // declared metadata length, if the header was readable
	Detail     string
}

func (e *DecodeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("wire: %v (%s, payload=%dB meta=%dB)", e.Err, e.Detail, e.PayloadLen, e.MetaLen)
	}
	return fmt.Sprintf("wire: %v (payload=%dB meta=%dB)", e.Err, e.PayloadLen, e.MetaLen)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode turns one inbound binary payload into a typed Frame, or rejects it
// with a *DecodeError. The returned frame owns a fresh pixel buffer; the
// input payload may be reused by the transport afterwards.
func Decode(payload []byte) (*Frame, error) {
	if len(payload) < headerLen {
		return nil, &DecodeError{Err: ErrShortPayload, PayloadLen: len(payload)}
	}

	metaLen := int(binary.LittleEndian.Uint16(payload))
	if headerLen+metaLen > len(payload) {
		return nil, &DecodeError{Err: ErrMetadataLength, PayloadLen: len(payload), MetaLen: metaLen}
	}

	var info FrameInfo
	if err := json.Unmarshal(payload[headerLen:headerLen+metaLen], &info); err != nil {
		return nil, &DecodeError{
			Err:        ErrBadMetadata,
			PayloadLen: len(payload),
			MetaLen:    metaLen,
			Detail:     err.Error(),
		}
	}

	resX, resY := info.Camera.ResX, info.Camera.ResY
	if resX <= 0 || resY <= 0 {
		return nil, &DecodeError{
			Err:        ErrBadResolution,
			PayloadLen: len(payload),
			MetaLen:    metaLen,
			Detail:     fmt.Sprintf("%dx%d", resX, resY),
		}
	}

	pixelData := payload[headerLen+metaLen:]
	want := resX * resY * 2
	if len(pixelData) != want {
		return nil, &DecodeError{
			Err:        ErrPixelLength,
			PayloadLen: len(payload),
			MetaLen:    metaLen,
			Detail:     fmt.Sprintf("got %dB, want %dB for %dx%d", len(pixelData), want, resX, resY),
		}
	}

	pixels := make([]uint16, resX*resY)
	for i := range pixels {
		pixels[i] = binary.LittleEndian.Uint16(pixelData[i*2:])
	}

	return &Frame{
		Info:       info,
		Pixels:     pixels,
		TraceID:    uuid.New().String(),
		ReceivedAt: time.Now(),
	}, nil
}

// Encode is the inverse of Decode. It is used by tests and by the device
// simulator; real devices produce these payloads themselves.
func Encode(info FrameInfo, pixels []uint16) ([]byte, error) {
	if want := info.Camera.ResX * info.Camera.ResY; want != len(pixels) {
		return nil, fmt.Errorf("wire: pixel count %d does not match %dx%d",
			len(pixels), info.Camera.ResX, info.Camera.ResY)
	}

	meta, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal metadata: %w", err)
	}
	if len(meta) > math.MaxUint16 {
		return nil, fmt.Errorf("wire: metadata block too large (%d bytes)", len(meta))
	}

	buf := make([]byte, headerLen+len(meta)+len(pixels)*2)
	binary.LittleEndian.PutUint16(buf, uint16(len(meta)))
	copy(buf[headerLen:], meta)
	pixelData := buf[headerLen+len(meta):]
	for i, sample := range pixels {
		binary.LittleEndian.PutUint16(pixelData[i*2:], sample)
	}

	return buf, nil
}
