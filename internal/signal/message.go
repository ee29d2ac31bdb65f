// Package signal relays the offer/answer handshake between peers over
// websockets. Every connection is assigned a fresh peer id on connect.
package signal

import (
	"encoding/json"
	"fmt"
)

// Message types.
const (
	TypeOpen   = "open"
	TypeOffer  = "offer"
	TypeAnswer = "answer"
	TypeError  = "error"
	TypeLeave  = "leave"
)

// Error reasons carried in an error message.
const (
	ReasonPeerUnavailable = "peer-unavailable"
	ReasonInvalidMessage  = "invalid-message"
	ReasonRateLimited     = "rate-limited"
)

// Message is the envelope exchanged with the signaling server. From is set
// by the server; clients address messages with To.
type Message struct {
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OpenPayload announces the peer id assigned to a new connection.
type OpenPayload struct {
	PeerID string `json:"peer_id"`
}

// ErrorPayload describes why a message was rejected.
type ErrorPayload struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// NewMessage builds a message addressed to peer to with payload encoded as JSON.
func NewMessage(typ, to string, payload any) (Message, error) {
	msg := Message{Type: typ, To: to}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// ErrorInfo returns the payload of an error message.
func (m Message) ErrorInfo() ErrorPayload {
	var p ErrorPayload
	if m.Type == TypeError {
		_ = json.Unmarshal(m.Payload, &p)
	}
	return p
}
