package server

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	// placeholderInterval is how often the placeholder frame is resent
	// while no source is playing.
	placeholderInterval = 500 * time.Millisecond
	frameWait           = time.Second
)

// StreamHandler serves the rendered frames as MJPEG. While the active
// source is not playing it serves a placeholder: the pairing QR code for
// the remote camera, or a waiting notice.
type StreamHandler struct {
	frames      *FrameHub
	controller  Controller
	placeholder *Placeholder
}

// NewStreamHandler creates a new StreamHandler. controller may be nil.
func NewStreamHandler(frames *FrameHub, controller Controller) *StreamHandler {
	return &StreamHandler{
		frames:      frames,
		controller:  controller,
		placeholder: NewPlaceholder(PlaceholderWidth, PlaceholderHeight),
	}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	release := h.frames.watch()
	defer release()

	ctx := r.Context()
	var seq uint64
	for {
		if ctx.Err() != nil {
			return
		}

		if jpeg, ok := h.placeholderFrame(); ok {
			if err := writePart(w, jpeg); err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(placeholderInterval):
			}
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, frameWait)
		jpeg, next, err := h.frames.Next(waitCtx, seq)
		cancel()
		if err != nil {
			continue
		}
		seq = next
		if err := writePart(w, jpeg); err != nil {
			return
		}
	}
}

// placeholderFrame returns the frame to show instead of video, if any.
func (h *StreamHandler) placeholderFrame() ([]byte, bool) {
	if h.controller == nil {
		return nil, false
	}
	st := h.controller.Status()
	if st.Ready {
		return nil, false
	}

	caption := "Waiting for camera"
	switch {
	case st.Error != "":
		caption = st.Error
	case st.PairingURL != "":
		caption = "Scan with your phone to stream its camera"
	case st.PairingStatus != "":
		caption = st.PairingStatus
	}

	jpeg, err := h.placeholder.Render(st.PairingURL, caption)
	if err != nil {
		return nil, false
	}
	return jpeg, true
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
