package particle

import (
	"image/color"
	"math/rand/v2"
	"time"
)

// Painter is the drawing surface the engine renders onto.
type Painter interface {
	// FillCircle draws a filled circle with the given fill alpha and a glow
	// of radius glow drawn at GlowAlpha.
	FillCircle(x, y, radius float64, c color.RGBA, alpha, glow float64)
}

// Engine owns the live particle set. It is not safe for concurrent use; the
// render loop is its only caller.
type Engine struct {
	particles []Particle
	rng       *rand.Rand
	batch     int
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand sets the random source used for emission.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = rng
	}
}

// WithBatchSize overrides the number of particles per Emit. Values <= 0 are ignored.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batch = n
		}
	}
}

// NewEngine creates an empty Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{batch: BatchSize}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		seed := uint64(time.Now().UnixNano())
		e.rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return e
}

// Emit appends a batch of particles at (x, y) on a canvas of the given size.
func (e *Engine) Emit(x, y float64, canvasWidth, canvasHeight int) {
	w, h := float64(canvasWidth), float64(canvasHeight)
	for i := 0; i < e.batch; i++ {
		e.particles = append(e.particles, newParticle(e.rng, x, y, w, h))
	}
}

// Tick advances every particle one step, drops the expired or out-of-bounds
// ones and draws the survivors. A particle is never drawn on the tick it dies.
func (e *Engine) Tick(p Painter) {
	live := e.particles[:0]
	for i := range e.particles {
		pt := e.particles[i]
		if !pt.step() {
			continue
		}
		if p != nil {
			p.FillCircle(pt.X, pt.Y, pt.Size, pt.Color, pt.Life(), GlowBlur*pt.Scale)
		}
		live = append(live, pt)
	}

	// Clear the tail so dropped particles don't linger in the backing array.
	for i := len(live); i < len(e.particles); i++ {
		e.particles[i] = Particle{}
	}
	e.particles = live
}

// Len returns the number of live particles.
func (e *Engine) Len() int {
	return len(e.particles)
}

// Particles returns a copy of the live particles.
func (e *Engine) Particles() []Particle {
	out := make([]Particle, len(e.particles))
	copy(out, e.particles)
	return out
}

// Reset drops all particles.
func (e *Engine) Reset() {
	e.particles = e.particles[:0]
}
