// Package capture provides camera capture functionality using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings. The resolution is a request; devices that cannot
// honour it deliver their closest mode.
const (
	DefaultDevice = "0"
	DefaultFPS    = 30
	DefaultWidth  = 1280
	DefaultHeight = 720
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrEmptyFrame is returned when the device delivered no image data.
	ErrEmptyFrame = errors.New("captured frame is empty")
)

// Config selects a capture device and the requested mode.
type Config struct {
	// Device is a device index ("0") or anything OpenCV can open: a file,
	// a named pipe or a stream URL.
	Device string `yaml:"device"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
}

// DefaultConfig returns the first camera at 1280x720.
func DefaultConfig() Config {
	return Config{
		Device: DefaultDevice,
		Width:  DefaultWidth,
		Height: DefaultHeight,
		FPS:    DefaultFPS,
	}
}

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame blocks until the next frame. The caller closes the returned Mat.
	ReadFrame() (*gocv.Mat, error)
	// Size returns the delivered frame size, or 0x0 before the device is open.
	Size() (width, height int)
	IsOpen() bool
}

// cameraImpl manages video capture from a device using GoCV.
type cameraImpl struct {
	config  Config
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	width   int
	height  int
}

// NewCamera creates a new Camera for the configured device.
func NewCamera(config Config) Camera {
	if config.Device == "" {
		config.Device = DefaultDevice
	}
	return &cameraImpl{config: config}
}

// Open opens the device and requests the configured mode.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	var device interface{} = c.config.Device
	if id, err := strconv.Atoi(c.config.Device); err == nil {
		device = id
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.config.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open %s: device unavailable", c.config.Device)
	}

	if c.config.Width > 0 && c.config.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	}
	if c.config.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(c.config.FPS))
	}

	c.capture = capture
	c.width = int(capture.Get(gocv.VideoCaptureFrameWidth))
	c.height = int(capture.Get(gocv.VideoCaptureFrameHeight))
	c.running = true

	return nil
}

// Close closes the camera and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame from the camera.
// The caller is responsible for closing the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, errors.New("failed to read frame from camera")
	}

	if mat.Empty() {
		mat.Close()
		return nil, ErrEmptyFrame
	}

	c.width, c.height = mat.Cols(), mat.Rows()
	return &mat, nil
}

// Size returns the size of the last delivered frame, or the negotiated
// device mode before the first read.
func (c *cameraImpl) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.width, c.height
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
