// Package particle simulates the short-lived glowing dust emitted at a tracked fingertip.
package particle

import (
	"image/color"
	"math"
	"math/rand/v2"
)

// Simulation constants. Speeds and sizes are expressed for a 1000px wide
// canvas and scaled by canvasWidth/1000 so the effect looks the same at any
// resolution.
const (
	// BatchSize is the number of particles appended by a single Emit call.
	BatchSize = 8
	// LifeTicks is the number of ticks a particle lives without leaving the canvas.
	LifeTicks = 50
	// Decrement is the life lost per tick (1/LifeTicks).
	Decrement = 1.0 / LifeTicks

	Friction  = 0.95
	Gravity   = 0.05
	Shrink    = 0.96
	GlowBlur  = 15.0
	GlowAlpha = 0.8

	// ReferenceWidth is the canvas width at which scale is 1.0.
	ReferenceWidth = 1000.0

	minSpeed   = 1.0
	speedRange = 3.0
	minSize    = 2.0
	sizeRange  = 5.0
)

// Palette holds the emission colors: cyan, pink, gold and white, all at 70% lightness.
var Palette = []color.RGBA{
	{R: 102, G: 255, B: 255, A: 255},
	{R: 255, G: 102, B: 255, A: 255},
	{R: 255, G: 217, B: 102, A: 255},
	{R: 179, G: 179, B: 179, A: 255},
}

// Particle is a single decaying dot. Positions are canvas pixels.
type Particle struct {
	X, Y   float64
	VX, VY float64
	Size   float64
	Scale  float64
	Color  color.RGBA

	ticksLeft     int
	width, height float64
}

func newParticle(rng *rand.Rand, x, y, width, height float64) Particle {
	scale := width / ReferenceWidth
	angle := rng.Float64() * 2 * math.Pi
	speed := (rng.Float64()*speedRange + minSpeed) * scale

	return Particle{
		X:         x,
		Y:         y,
		VX:        math.Cos(angle) * speed,
		VY:        math.Sin(angle) * speed,
		Size:      (rng.Float64()*sizeRange + minSize) * scale,
		Scale:     scale,
		Color:     Palette[rng.IntN(len(Palette))],
		ticksLeft: LifeTicks,
		width:     width,
		height:    height,
	}
}

// Life returns the remaining life in [0, 1].
func (p *Particle) Life() float64 {
	if p.ticksLeft <= 0 {
		return 0
	}
	return float64(p.ticksLeft) / LifeTicks
}

// step integrates one tick and reports whether the particle is still alive.
func (p *Particle) step() bool {
	p.X += p.VX
	p.Y += p.VY
	p.VX *= Friction
	p.VY *= Friction
	p.VY += Gravity * p.Scale
	p.ticksLeft--
	p.Size *= Shrink

	if p.X < 0 || p.X > p.width || p.Y < 0 || p.Y > p.height {
		p.ticksLeft = 0
	}

	return p.ticksLeft > 0
}
