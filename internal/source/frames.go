package source

import (
	"context"
	"errors"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/fingerglow/internal/capture"
)

// frameSlot holds the most recent frame of a stream.
type frameSlot struct {
	mu     sync.Mutex
	frame  *gocv.Mat
	width  int
	height int
	closed bool
}

// store takes ownership of frame and drops the previous one.
func (s *frameSlot) store(frame *gocv.Mat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		frame.Close()
		return
	}
	if s.frame != nil {
		s.frame.Close()
	}
	s.frame = frame
	s.width, s.height = frame.Cols(), frame.Rows()
}

func (s *frameSlot) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frame == nil {
		return nil, ErrNoFrame
	}
	clone := s.frame.Clone()
	return &clone, nil
}

func (s *frameSlot) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *frameSlot) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.frame != nil {
		s.frame.Close()
		s.frame = nil
	}
}

// pump opens cam and keeps slot filled until ctx ends or the camera fails.
// first is called after the first frame is stored.
func pump(ctx context.Context, cam capture.Camera, slot *frameSlot, first func()) error {
	if err := cam.Open(); err != nil {
		return err
	}
	defer cam.Close()

	for ctx.Err() == nil {
		frame, err := cam.ReadFrame()
		if errors.Is(err, capture.ErrEmptyFrame) {
			continue
		}
		if err != nil {
			return err
		}
		slot.store(frame)

		if first != nil {
			first()
			first = nil
		}
	}
	return nil
}

// readiness implements the one-shot ready transition shared by sources.
type readiness struct {
	mu       sync.Mutex
	acquired bool
	released bool
	ready    bool
	stream   Stream
	cleanup  func()
	err      error
	onFail   func(error)
}

func (r *readiness) acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.acquired || r.released {
		return ErrAlreadyAcquired
	}
	r.acquired = true
	return nil
}

// fire marks the source ready and calls onReady. It reports false when the
// source was already ready or has been released.
func (r *readiness) fire(stream Stream, onReady ReadyFunc) bool {
	r.mu.Lock()
	if r.released || r.ready {
		r.mu.Unlock()
		return false
	}
	r.ready = true
	r.stream = stream
	r.mu.Unlock()

	var cleanup func()
	if onReady != nil {
		cleanup = onReady(stream)
	}

	r.mu.Lock()
	if r.released {
		// Released while onReady ran.
		r.mu.Unlock()
		if cleanup != nil {
			cleanup()
		}
		return true
	}
	r.cleanup = cleanup
	r.mu.Unlock()
	return true
}

func (r *readiness) fail(err error) {
	r.mu.Lock()
	if r.released || r.err != nil {
		r.mu.Unlock()
		return
	}
	r.err = err
	hook := r.onFail
	r.mu.Unlock()

	if hook != nil {
		hook(err)
	}
}

func (r *readiness) onFailure(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFail = fn
}

// release marks the source released and returns the pending cleanup. The
// second return is false if it was already released.
func (r *readiness) release() (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return nil, false
	}
	r.released = true
	r.ready = false
	r.stream = nil
	cleanup := r.cleanup
	r.cleanup = nil
	return cleanup, true
}

func (r *readiness) isReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *readiness) isReleased() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

func (r *readiness) current() Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream
}

func (r *readiness) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
