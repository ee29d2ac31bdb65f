// Package source provides the video sources the viewer can display: the
// local camera and a remote camera paired over WebRTC.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

// Kind identifies a source variant.
type Kind int

const (
	KindLocal Kind = iota
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses "local" or "remote".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return KindLocal, nil
	case "remote":
		return KindRemote, nil
	default:
		return 0, fmt.Errorf("unknown source kind %q", s)
	}
}

var (
	// ErrCameraAccess is returned when the camera cannot be opened or
	// delivers no frames.
	ErrCameraAccess = errors.New("camera access failed")
	// ErrNoFrame is returned by Stream.ReadFrame before the first frame.
	ErrNoFrame = errors.New("no frame available")
	// ErrAlreadyAcquired is returned by a second Acquire.
	ErrAlreadyAcquired = errors.New("source already acquired")
)

// Stream is a playing video stream.
type Stream interface {
	// ReadFrame returns a copy of the current frame. The caller closes it.
	ReadFrame() (*gocv.Mat, error)
	// Size returns the current frame size.
	Size() (width, height int)
}

// ReadyFunc is called once when a source starts playing. The returned
// cleanup, if any, runs first when the source is released.
type ReadyFunc func(stream Stream) (cleanup func())

// Source is a video source. Implementations are Local and Remote.
type Source interface {
	Kind() Kind
	// Acquire starts acquisition and returns without waiting for video.
	// onReady fires at most once, when the first frame is available.
	Acquire(ctx context.Context, onReady ReadyFunc) error
	// Release runs the ready cleanup, then frees the camera or peer
	// session. It is idempotent; events arriving afterwards are ignored.
	Release() error
	// Ready reports whether onReady has fired.
	Ready() bool
	// Stream returns the playing stream, or nil before ready.
	Stream() Stream
	// Err returns the acquisition failure, if any.
	Err() error
	// OnFailure registers fn to be called once with the acquisition
	// failure. It is not called after Release.
	OnFailure(fn func(err error))
}
