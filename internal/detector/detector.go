package detector

import (
	"errors"

	"gocv.io/x/gocv"
)

// ErrNotLoaded is returned by Detect when Load has not succeeded.
var ErrNotLoaded = errors.New("hand detection model not loaded")

// Detector defines the interface for hand landmark engines.
type Detector interface {
	// Load initializes the engine. It must be called once before the first
	// Detect. A failed Load is not retried by callers.
	Load() error

	// Detect analyzes a video frame captured at timestampMs and returns the
	// detected hands. Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat, timestampMs int64) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int `yaml:"max_hands"`

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64 `yaml:"min_confidence"`

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64 `yaml:"min_tracking_confidence"`

	// ScriptPath points at mediapipe_service.py. Empty means search the usual locations.
	ScriptPath string `yaml:"script_path"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}
