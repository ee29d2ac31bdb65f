// Package detector provides hand landmark detection interfaces and types.
package detector

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Connection is a skeleton edge between two landmark indices.
type Connection struct {
	From, To int
}

// HandConnections is the skeleton topology drawn over a detected hand.
var HandConnections = []Connection{
	{Wrist, ThumbCMC}, {ThumbCMC, ThumbMCP}, {ThumbMCP, ThumbIP}, {ThumbIP, ThumbTip},
	{Wrist, IndexMCP}, {IndexMCP, IndexPIP}, {IndexPIP, IndexDIP}, {IndexDIP, IndexTip},
	{Wrist, MiddleMCP}, {MiddleMCP, MiddlePIP}, {MiddlePIP, MiddleDIP}, {MiddleDIP, MiddleTip},
	{Wrist, RingMCP}, {RingMCP, RingPIP}, {RingPIP, RingDIP}, {RingDIP, RingTip},
	{Wrist, PinkyMCP}, {PinkyMCP, PinkyPIP}, {PinkyPIP, PinkyDIP}, {PinkyDIP, PinkyTip},
	{IndexMCP, MiddleMCP}, {MiddleMCP, RingMCP}, {RingMCP, PinkyMCP},
}

// Point3D is a landmark position. X and Y are normalized to the frame
// (0..1); Z is relative depth and is ignored when drawing.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Pixel converts landmark i to canvas pixel coordinates for a canvas of
// width x height, using the canvas size at the time of the call.
func (h *HandLandmarks) Pixel(i, width, height int) (x, y float64) {
	p := h.Points[i]
	return p.X * float64(width), p.Y * float64(height)
}

// Fingertip returns the index fingertip in canvas pixels and whether it
// lies within [0, width] x [0, height].
func (h *HandLandmarks) Fingertip(width, height int) (x, y float64, ok bool) {
	x, y = h.Pixel(IndexTip, width, height)
	ok = x >= 0 && x <= float64(width) && y >= 0 && y <= float64(height)
	return x, y, ok
}
