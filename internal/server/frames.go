package server

import (
	"context"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// DefaultJPEGQuality is the quality of frames encoded for the MJPEG stream.
const DefaultJPEGQuality = 80

// FrameHub holds the latest rendered frame as JPEG. Only the newest frame
// is kept; viewers that fall behind skip frames. Frames are only encoded
// while someone is watching.
type FrameHub struct {
	quality int
	viewers atomic.Int32

	mu      sync.Mutex
	jpeg    []byte
	seq     uint64
	updated chan struct{}
}

// NewFrameHub creates a hub encoding at the given JPEG quality (1-100).
func NewFrameHub(quality int) *FrameHub {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &FrameHub{
		quality: quality,
		updated: make(chan struct{}),
	}
}

// Publish encodes frame as the latest JPEG. It implements app.FrameSink.
func (h *FrameHub) Publish(frame *gocv.Mat) {
	if h.viewers.Load() == 0 || frame.Empty() {
		return
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame, []int{int(gocv.IMWriteJpegQuality), h.quality})
	if err != nil {
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()
	h.store(data)
}

func (h *FrameHub) store(jpeg []byte) {
	h.mu.Lock()
	h.jpeg = jpeg
	h.seq++
	close(h.updated)
	h.updated = make(chan struct{})
	h.mu.Unlock()
}

// Latest returns the newest frame and its sequence number (0 if none).
func (h *FrameHub) Latest() ([]byte, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.jpeg, h.seq
}

// Next waits for a frame newer than after.
func (h *FrameHub) Next(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		h.mu.Lock()
		if h.seq > after && h.jpeg != nil {
			jpeg, seq := h.jpeg, h.seq
			h.mu.Unlock()
			return jpeg, seq, nil
		}
		updated := h.updated
		h.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, after, ctx.Err()
		case <-updated:
		}
	}
}

// Reset drops the held frame.
func (h *FrameHub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jpeg = nil
}

// watch registers a viewer and returns its release func.
func (h *FrameHub) watch() func() {
	h.viewers.Add(1)
	return func() { h.viewers.Add(-1) }
}

// Viewers returns the number of connected stream viewers.
func (h *FrameHub) Viewers() int {
	return int(h.viewers.Load())
}
