package pairing

import (
	"sync"
	"time"
)

// StateFunc observes state changes. err is non-nil only for StateClosed
// reached through a failure.
type StateFunc func(state State, err *Error)

// Session holds the state shared by both roles.
type Session struct {
	role   Role
	origin string

	mu        sync.Mutex
	state     State
	peerID    string
	err       *Error
	observers []StateFunc
	started   time.Time
}

func newSession(role Role, origin string) *Session {
	return &Session{
		role:    role,
		origin:  origin,
		started: time.Now(),
	}
}

// Role returns the session's role.
func (s *Session) Role() Role {
	return s.role
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PeerID returns the id assigned at registration, or "" before that.
func (s *Session) PeerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerID
}

// Err returns the terminal error, if the session failed.
func (s *Session) Err() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time {
	return s.started
}

// PairingURL returns the URL a Sender opens to call this peer. It is empty
// until the session is registered and after it closes.
func (s *Session) PairingURL() string {
	s.mu.Lock()
	peerID, state := s.peerID, s.state
	s.mu.Unlock()

	if peerID == "" || state == StateClosed || s.origin == "" {
		return ""
	}
	u, err := BuildURL(s.origin, peerID)
	if err != nil {
		return ""
	}
	return u
}

// Status returns the user facing status projection.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusText(s.role, s.state, s.err)
}

// OnStateChange registers fn to be called after every transition.
func (s *Session) OnStateChange(fn StateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Session) register(peerID string) bool {
	s.mu.Lock()
	if s.state != StateInitializing {
		s.mu.Unlock()
		return false
	}
	s.peerID = peerID
	s.mu.Unlock()
	return s.transition(StateRegistered)
}

// transition advances to state to. It reports false when to does not
// advance the session, including any transition out of StateClosed.
func (s *Session) transition(to State) bool {
	return s.advance(to, nil)
}

// fail closes the session with a reason. It reports false if the session
// was already closed.
func (s *Session) fail(reason Reason, err error) bool {
	return s.advance(StateClosed, &Error{Reason: reason, Err: err})
}

func (s *Session) advance(to State, failure *Error) bool {
	s.mu.Lock()
	if to <= s.state {
		s.mu.Unlock()
		return false
	}
	s.state = to
	if failure != nil {
		s.err = failure
	}
	observers := make([]StateFunc, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(to, failure)
	}
	return true
}
