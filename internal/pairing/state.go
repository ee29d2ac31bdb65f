// Package pairing establishes the peer-to-peer video link between a Host,
// which displays the video, and a Sender, which owns the camera.
package pairing

// State is a pairing session state. States only ever advance.
type State int

const (
	// StateInitializing is the state before the signaling server assigned a peer id.
	StateInitializing State = iota
	// StateRegistered means the peer id is known and the pairing URL can be shown.
	StateRegistered
	// StateAwaitingCall means the host is registered and no call has arrived yet.
	StateAwaitingCall
	// StateConnecting covers offer/answer exchange and ICE until media flows.
	StateConnecting
	// StateStreaming means media is flowing.
	StateStreaming
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRegistered:
		return "registered"
	case StateAwaitingCall:
		return "awaiting-call"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role distinguishes the two ends of a pairing.
type Role string

const (
	RoleHost   Role = "host"
	RoleSender Role = "sender"
)

// StatusText projects a state and its error onto the short status shown to the user.
func StatusText(role Role, state State, err *Error) string {
	if err != nil {
		return "Error: " + string(err.Reason)
	}
	switch state {
	case StateInitializing:
		return "Initializing"
	case StateRegistered, StateAwaitingCall:
		if role == RoleHost {
			return "Waiting for sender"
		}
		return "Connecting"
	case StateConnecting:
		return "Connecting"
	case StateStreaming:
		return "Streaming"
	default:
		return "Closed"
	}
}
