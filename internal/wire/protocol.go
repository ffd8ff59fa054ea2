package wire

import (
	"encoding/json"
	"fmt"
	"math/rand"
)

// SessionID is a randomly generated integer correlating all messages from
// one logical client connection. It is created once per camera handle and
// stays stable across reconnects for the handle's lifetime.
type SessionID int32

// NewSessionID returns a fresh random session identifier.
func NewSessionID() SessionID {
	return SessionID(rand.Int31())
}

// MessageType tags the outbound session message variants.
type MessageType string

const (
	// MessageRegister announces a new logical client; sent exactly once,
	// immediately after the socket opens, before anything else.
	MessageRegister MessageType = "Register"

	// MessageHeartbeat keeps the device-side session alive; sent on a fixed
	// interval for as long as the consumer wants the link on.
	MessageHeartbeat MessageType = "Heartbeat"
)

// Message is the outbound session message. The protocol defines exactly two
// variants, built via NewRegister and NewHeartbeat; Encode matches the type
// tag exhaustively so an unknown variant can never reach the wire.
//
// Wire forms:
//
//	{"type":"Register","uuid":<int>,"data":"<client string>"}
//	{"type":"Heartbeat","uuid":<int>}
//
// Neither message is acknowledged by the device; liveness is inferred from
// the absence of socket errors and continued frame delivery.
type Message struct {
	Type MessageType `json:"type"`
	UUID SessionID   `json:"uuid"`
	Data string      `json:"data,omitempty"`
}

// NewRegister builds the one-shot registration message carrying a client
// identifying string.
func NewRegister(session SessionID, clientID string) Message {
	return Message{Type: MessageRegister, UUID: session, Data: clientID}
}

// NewHeartbeat builds a liveness message for the session.
func NewHeartbeat(session SessionID) Message {
	return Message{Type: MessageHeartbeat, UUID: session}
}

// Encode serializes the message as a JSON text frame.
func (m Message) Encode() ([]byte, error) {
	switch m.Type {
	case MessageRegister, MessageHeartbeat:
		return json.Marshal(m)
	default:
		return nil, fmt.Errorf("wire: unknown message type %q", m.Type)
	}
}
