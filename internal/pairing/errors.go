package pairing

import (
	"errors"
	"fmt"
)

// Reason classifies why a session closed.
type Reason string

const (
	ReasonSignaling       Reason = "signaling-failed"
	ReasonInvalidTarget   Reason = "invalid-target"
	ReasonNegotiation     Reason = "negotiation-failed"
	ReasonPeerUnavailable Reason = "peer-unavailable"
	ReasonConnectionLost  Reason = "connection-lost"
	ReasonMedia           Reason = "media-unavailable"
)

// ErrAlreadyCalled is returned by a second Sender.Call. A session places
// one call.
var ErrAlreadyCalled = errors.New("pairing: sender already called")

// Error is the terminal error of a session.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
