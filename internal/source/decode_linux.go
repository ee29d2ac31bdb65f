//go:build linux

package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"

	"github.com/ayusman/fingerglow/internal/capture"
)

// fifoDecoder writes the inbound VP8 track as IVF into a named pipe that
// OpenCV reads back as a video file.
type fifoDecoder struct {
	dir  string
	path string
	pipe *os.File
	ivf  *ivfwriter.IVFWriter
	cam  capture.Camera

	closeOnce sync.Once
	closeErr  error
}

func newPlatformDecoder() (decoder, error) {
	dir, err := os.MkdirTemp("", "fingerglow-remote-")
	if err != nil {
		return nil, fmt.Errorf("create decoder dir: %w", err)
	}
	path := filepath.Join(dir, "remote.ivf")
	if err := syscall.Mkfifo(path, 0o600); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("create fifo: %w", err)
	}

	// O_RDWR keeps the open from blocking until OpenCV opens the read end.
	pipe, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("open fifo: %w", err)
	}

	ivf, err := ivfwriter.NewWith(pipe)
	if err != nil {
		pipe.Close()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("create ivf writer: %w", err)
	}

	return &fifoDecoder{
		dir:  dir,
		path: path,
		pipe: pipe,
		ivf:  ivf,
		cam:  capture.NewCamera(capture.Config{Device: path}),
	}, nil
}

func (d *fifoDecoder) Feed(track inboundTrack) error {
	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			return err
		}
		if err := forwardRTP(d.ivf, packet); err != nil {
			if errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("write ivf: %w", err)
		}
	}
}

func (d *fifoDecoder) Camera() capture.Camera {
	return d.cam
}

// Close ends the pipe, which makes the reader see end of file, and removes
// the fifo.
func (d *fifoDecoder) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.pipe.Close()
		if err := os.RemoveAll(d.dir); err != nil && d.closeErr == nil {
			d.closeErr = err
		}
	})
	return d.closeErr
}
