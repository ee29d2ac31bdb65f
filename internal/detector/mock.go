package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control load and detection results.
type MockDetector struct {
	mu          sync.Mutex
	hands       []HandLandmarks
	err         error
	loadErr     error
	loaded      bool
	detectCalls int
	closed      bool
	lastTS      int64
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetLoadError makes Load fail with err.
func (m *MockDetector) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// Load succeeds unless SetLoadError was called.
func (m *MockDetector) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return m.loadErr
	}
	m.loaded = true
	return nil
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat, timestampMs int64) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectCalls++
	m.lastTS = timestampMs
	if !m.loaded {
		return nil, ErrNotLoaded
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// DetectCalls returns how many times Detect was called.
func (m *MockDetector) DetectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detectCalls
}

// LastTimestamp returns the timestamp passed to the most recent Detect.
func (m *MockDetector) LastTimestamp() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTS
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// PointingLandmarks returns a right hand with the index finger extended and
// its tip at (tipX, tipY) in normalized coordinates.
func PointingLandmarks(tipX, tipY float64) HandLandmarks {
	lm := HandLandmarks{
		Handedness: "Right",
		Score:      0.95,
	}

	lm.Points[Wrist] = Point3D{X: tipX, Y: tipY + 0.45}

	lm.Points[ThumbCMC] = Point3D{X: tipX + 0.05, Y: tipY + 0.40}
	lm.Points[ThumbMCP] = Point3D{X: tipX + 0.08, Y: tipY + 0.33}
	lm.Points[ThumbIP] = Point3D{X: tipX + 0.07, Y: tipY + 0.28}
	lm.Points[ThumbTip] = Point3D{X: tipX + 0.04, Y: tipY + 0.26}

	// Index finger extended toward the tip
	lm.Points[IndexMCP] = Point3D{X: tipX, Y: tipY + 0.33}
	lm.Points[IndexPIP] = Point3D{X: tipX, Y: tipY + 0.21}
	lm.Points[IndexDIP] = Point3D{X: tipX, Y: tipY + 0.10}
	lm.Points[IndexTip] = Point3D{X: tipX, Y: tipY}

	// Remaining fingers curled against the palm
	for i, base := range []int{MiddleMCP, RingMCP, PinkyMCP} {
		dx := -0.04 * float64(i+1)
		lm.Points[base] = Point3D{X: tipX + dx, Y: tipY + 0.34}
		lm.Points[base+1] = Point3D{X: tipX + dx, Y: tipY + 0.30, Z: -0.05}
		lm.Points[base+2] = Point3D{X: tipX + dx, Y: tipY + 0.33, Z: -0.04}
		lm.Points[base+3] = Point3D{X: tipX + dx, Y: tipY + 0.36, Z: -0.02}
	}

	return lm
}
