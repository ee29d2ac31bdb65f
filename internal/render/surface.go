// Package render draws the hand overlay: fingertip particles and the optional
// hand skeleton, composed over the current video frame.
package render

import (
	"image/color"

	"github.com/ayusman/fingerglow/internal/particle"
)

// BlendMode selects how new pixels combine with what is already drawn.
type BlendMode int

const (
	// BlendNormal paints over existing pixels.
	BlendNormal BlendMode = iota
	// BlendAdditive adds new pixels to existing ones, saturating at white.
	BlendAdditive
)

func (m BlendMode) String() string {
	switch m {
	case BlendAdditive:
		return "additive"
	default:
		return "normal"
	}
}

// Surface is an overlay canvas sized to the video frame.
type Surface interface {
	particle.Painter

	// Size returns the current surface size in pixels.
	Size() (width, height int)
	// Clear erases the whole surface.
	Clear()
	// SetBlend switches the blend mode for subsequent drawing.
	SetBlend(mode BlendMode)
	// Line strokes a segment between two points.
	Line(x1, y1, x2, y2 float64, c color.RGBA, thickness int)
	// Dot fills a small opaque circle.
	Dot(x, y, radius float64, c color.RGBA)
}

// Skeleton colors.
var (
	ConnectionColor = color.RGBA{G: 255, A: 255}
	LandmarkColor   = color.RGBA{R: 255, A: 255}
)

const (
	connectionWidth = 4
	landmarkRadius  = 4
)
