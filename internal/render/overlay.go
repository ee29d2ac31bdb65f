package render

import (
	"github.com/ayusman/fingerglow/internal/detector"
	"github.com/ayusman/fingerglow/internal/particle"
)

// Overlay turns a landmark result into drawing calls on a Surface.
type Overlay struct {
	engine   *particle.Engine
	skeleton bool
}

// NewOverlay creates an Overlay that emits into engine. When skeleton is
// true, the hand connections and landmarks are drawn as well.
func NewOverlay(engine *particle.Engine, skeleton bool) *Overlay {
	return &Overlay{engine: engine, skeleton: skeleton}
}

// Engine returns the particle engine the overlay emits into.
func (o *Overlay) Engine() *particle.Engine {
	return o.engine
}

// Draw clears s, emits one particle batch at each in-bounds index fingertip,
// draws the skeleton if enabled and advances the particles under additive
// blending. It returns the number of hands that emitted. The blend mode is
// always normal when Draw returns.
func (o *Overlay) Draw(s Surface, hands []detector.HandLandmarks) int {
	s.Clear()
	width, height := s.Size()

	emitted := 0
	for i := range hands {
		hand := &hands[i]
		if x, y, ok := hand.Fingertip(width, height); ok {
			o.engine.Emit(x, y, width, height)
			emitted++
		}
		if o.skeleton {
			drawSkeleton(s, hand, width, height)
		}
	}

	s.SetBlend(BlendAdditive)
	o.engine.Tick(s)
	s.SetBlend(BlendNormal)

	return emitted
}

func drawSkeleton(s Surface, hand *detector.HandLandmarks, width, height int) {
	for _, c := range detector.HandConnections {
		x1, y1 := hand.Pixel(c.From, width, height)
		x2, y2 := hand.Pixel(c.To, width, height)
		s.Line(x1, y1, x2, y2, ConnectionColor, connectionWidth)
	}
	for i := 0; i < detector.NumLandmarks; i++ {
		x, y := hand.Pixel(i, width, height)
		s.Dot(x, y, landmarkRadius, LandmarkColor)
	}
}
