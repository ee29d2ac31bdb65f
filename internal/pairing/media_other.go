//go:build !linux

package pairing

import (
	"errors"

	"go.uber.org/zap"
)

// CameraConfig selects the sender's capture mode.
type CameraConfig struct {
	Width   int
	Height  int
	Bitrate int
}

// OpenCamera is only available on Linux, where pion/mediadevices has a
// camera driver.
func OpenCamera(config CameraConfig, logger *zap.Logger) (*LocalMedia, error) {
	return nil, errors.New("camera capture for sending is only supported on linux")
}
