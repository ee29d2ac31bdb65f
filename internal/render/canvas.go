package render

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/fingerglow/internal/particle"
)

// Canvas is a gocv-backed Surface. Black pixels are transparent: the layer
// is added onto the video frame by ComposeOnto.
//
// While the additive blend mode is active, circles are collected in a
// separate layer together with their blurred glow and added onto the main
// layer when the mode is switched back.
type Canvas struct {
	width, height int
	blend         BlendMode

	layer   gocv.Mat
	scratch gocv.Mat
	glow    gocv.Mat
	stamp   gocv.Mat
	glowMax float64
}

var _ Surface = (*Canvas)(nil)

// NewCanvas allocates a width x height canvas.
func NewCanvas(width, height int) *Canvas {
	c := &Canvas{}
	c.alloc(width, height)
	return c
}

func (c *Canvas) alloc(width, height int) {
	c.width, c.height = width, height
	c.layer = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	c.scratch = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	c.glow = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	c.stamp = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	c.Clear()
}

func (c *Canvas) release() {
	c.layer.Close()
	c.scratch.Close()
	c.glow.Close()
	c.stamp.Close()
}

// Resize reallocates the canvas when the frame size changes. Drawn content is lost.
func (c *Canvas) Resize(width, height int) {
	if width == c.width && height == c.height {
		return
	}
	c.release()
	c.alloc(width, height)
}

// Size returns the canvas size in pixels.
func (c *Canvas) Size() (int, int) {
	return c.width, c.height
}

// Clear erases all layers.
func (c *Canvas) Clear() {
	black := gocv.NewScalar(0, 0, 0, 0)
	c.layer.SetTo(black)
	c.scratch.SetTo(black)
	c.glow.SetTo(black)
	c.glowMax = 0
}

// SetBlend switches the blend mode. Leaving additive mode flushes the
// collected circles onto the layer.
func (c *Canvas) SetBlend(mode BlendMode) {
	if c.blend == BlendAdditive && mode != BlendAdditive {
		c.flush()
	}
	c.blend = mode
}

// Blend returns the active blend mode.
func (c *Canvas) Blend() BlendMode {
	return c.blend
}

// FillCircle implements particle.Painter.
func (c *Canvas) FillCircle(x, y, radius float64, col color.RGBA, alpha, glow float64) {
	center := image.Pt(int(math.Round(x)), int(math.Round(y)))
	r := int(math.Max(1, math.Round(radius)))

	if c.blend != BlendAdditive {
		gocv.Circle(&c.layer, center, r, scale(col, alpha), -1)
		return
	}

	c.addCircle(&c.scratch, center, r, scale(col, alpha))
	if glow > 0 {
		c.addCircle(&c.glow, center, r, scale(col, alpha*particle.GlowAlpha))
		c.glowMax = math.Max(c.glowMax, glow)
	}
}

// Line strokes a segment on the layer.
func (c *Canvas) Line(x1, y1, x2, y2 float64, col color.RGBA, thickness int) {
	gocv.Line(&c.layer,
		image.Pt(int(math.Round(x1)), int(math.Round(y1))),
		image.Pt(int(math.Round(x2)), int(math.Round(y2))),
		col, thickness)
}

// Dot fills a circle on the layer.
func (c *Canvas) Dot(x, y, radius float64, col color.RGBA) {
	gocv.Circle(&c.layer, image.Pt(int(math.Round(x)), int(math.Round(y))), int(math.Round(radius)), col, -1)
}

// addCircle sums a filled circle into dst instead of overwriting it, so
// overlapping circles accumulate. Only the circle's bounding box is touched.
func (c *Canvas) addCircle(dst *gocv.Mat, center image.Point, r int, col color.RGBA) {
	box := image.Rect(center.X-r-1, center.Y-r-1, center.X+r+2, center.Y+r+2).
		Intersect(image.Rect(0, 0, c.width, c.height))
	if box.Empty() {
		return
	}

	stamp := c.stamp.Region(box)
	defer stamp.Close()
	stamp.SetTo(gocv.NewScalar(0, 0, 0, 0))
	gocv.Circle(&c.stamp, center, r, col, -1)

	target := dst.Region(box)
	defer target.Close()
	gocv.Add(target, stamp, &target)
}

func (c *Canvas) flush() {
	if c.glowMax > 0 {
		// A shadow blur of b corresponds to a Gaussian sigma of b/2.
		sigma := c.glowMax / 2
		gocv.GaussianBlur(c.glow, &c.glow, image.Pt(0, 0), sigma, sigma, gocv.BorderDefault)
		gocv.Add(c.layer, c.glow, &c.layer)
	}
	gocv.Add(c.layer, c.scratch, &c.layer)

	black := gocv.NewScalar(0, 0, 0, 0)
	c.scratch.SetTo(black)
	c.glow.SetTo(black)
	c.glowMax = 0
}

// ComposeOnto adds the layer onto frame. The frame must be a 3-channel BGR
// image; if its size differs from the canvas nothing is composed.
func (c *Canvas) ComposeOnto(frame *gocv.Mat) {
	if frame.Empty() || frame.Cols() != c.width || frame.Rows() != c.height || frame.Channels() != 3 {
		return
	}
	gocv.Add(*frame, c.layer, frame)
}

// Close releases the native buffers.
func (c *Canvas) Close() error {
	c.release()
	return nil
}

func scale(col color.RGBA, alpha float64) color.RGBA {
	if alpha >= 1 {
		return col
	}
	if alpha <= 0 {
		return color.RGBA{}
	}
	return color.RGBA{
		R: uint8(float64(col.R) * alpha),
		G: uint8(float64(col.G) * alpha),
		B: uint8(float64(col.B) * alpha),
		A: col.A,
	}
}
