package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/fingerglow/internal/detector"
	"github.com/ayusman/fingerglow/internal/metrics"
	"github.com/ayusman/fingerglow/internal/particle"
	"github.com/ayusman/fingerglow/internal/render"
	"github.com/ayusman/fingerglow/internal/source"
)

// DefaultRefreshHz is the render loop rate.
const DefaultRefreshHz = 60

// FrameSink receives every rendered frame. Publish must not keep frame
// after it returns.
type FrameSink interface {
	Publish(frame *gocv.Mat)
}

// Compositor is an overlay surface that can be laid over a video frame.
type Compositor interface {
	render.Surface
	Resize(width, height int)
	ComposeOnto(frame *gocv.Mat)
	Close() error
}

// PipelineConfig configures the render loop.
type PipelineConfig struct {
	RefreshHz int
	Skeleton  bool
	// Mirror flips the published frame horizontally, like a selfie view.
	Mirror    bool
	BatchSize int
}

// Pipeline reads the current frame of the attached stream on every tick,
// runs landmark detection, draws particles at the fingertips and publishes
// the composed frame. The canvas and particle engine are owned by the
// goroutine calling Tick.
type Pipeline struct {
	config PipelineConfig
	// detector is nil when the model failed to load; frames are then
	// published without detection.
	detector detector.Detector
	overlay  *render.Overlay
	canvas   Compositor
	sink     FrameSink
	metrics  *metrics.Metrics
	logger   *zap.Logger

	streamMu sync.Mutex
	stream   source.Stream
	fresh    bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastTS    int64
	detecting bool
}

// NewPipeline creates a stopped pipeline. det may be nil.
func NewPipeline(config PipelineConfig, det detector.Detector, sink FrameSink, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	if config.RefreshHz <= 0 {
		config.RefreshHz = DefaultRefreshHz
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := particle.NewEngine(particle.WithBatchSize(config.BatchSize))
	return &Pipeline{
		config:    config,
		detector:  det,
		overlay:   render.NewOverlay(engine, config.Skeleton),
		canvas:    render.NewCanvas(1, 1),
		sink:      sink,
		metrics:   m,
		logger:    logger.Named("pipeline"),
		detecting: true,
	}
}

// Attach makes stream the pipeline's input. The returned detach func
// clears it and returns only when no tick is reading from the stream.
func (p *Pipeline) Attach(stream source.Stream) (detach func()) {
	p.streamMu.Lock()
	p.stream = stream
	p.fresh = true
	p.streamMu.Unlock()

	return func() {
		p.streamMu.Lock()
		defer p.streamMu.Unlock()
		if p.stream == stream {
			p.stream = nil
		}
	}
}

// Attached reports whether a stream is attached.
func (p *Pipeline) Attached() bool {
	p.streamMu.Lock()
	defer p.streamMu.Unlock()
	return p.stream != nil
}

// Tick renders one frame. It does nothing until a stream is attached and
// reports whether a frame was published.
func (p *Pipeline) Tick(now time.Time) bool {
	frame, fresh := p.readFrame()
	if frame == nil {
		return false
	}
	defer frame.Close()

	p.metrics.Ticks.Add(1)
	if fresh {
		p.overlay.Engine().Reset()
	}

	if p.detector == nil {
		p.publish(frame, false)
		return true
	}

	hands, err := p.detect(frame, p.timestamp(now))
	if err != nil {
		p.metrics.DetectErrors.Add(1)
		if p.detecting {
			p.logger.Warn("hand detection failed", zap.Error(err))
			p.detecting = false
		}
		p.publish(frame, false)
		return true
	}
	if !p.detecting {
		p.logger.Info("hand detection recovered")
		p.detecting = true
	}
	p.metrics.Detections.Add(1)
	p.metrics.HandsDetected.Add(uint64(len(hands)))

	p.canvas.Resize(frame.Cols(), frame.Rows())
	p.overlay.Draw(p.canvas, hands)
	p.canvas.ComposeOnto(frame)
	p.metrics.ParticlesLive.Store(int64(p.overlay.Engine().Len()))

	p.publish(frame, true)
	return true
}

func (p *Pipeline) readFrame() (*gocv.Mat, bool) {
	p.streamMu.Lock()
	defer p.streamMu.Unlock()

	if p.stream == nil {
		return nil, false
	}
	frame, err := p.stream.ReadFrame()
	if err != nil {
		return nil, false
	}
	if frame.Empty() {
		frame.Close()
		return nil, false
	}
	fresh := p.fresh
	p.fresh = false
	return frame, fresh
}

// detect calls the detector and turns a panic into an error so a bad
// frame never takes the loop down.
func (p *Pipeline) detect(frame *gocv.Mat, ts int64) (hands []detector.HandLandmarks, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return p.detector.Detect(frame, ts)
}

// timestamp returns a strictly increasing millisecond timestamp.
func (p *Pipeline) timestamp(now time.Time) int64 {
	ts := now.UnixMilli()
	if ts <= p.lastTS {
		ts = p.lastTS + 1
	}
	p.lastTS = ts
	return ts
}

func (p *Pipeline) publish(frame *gocv.Mat, overlay bool) {
	if overlay {
		p.metrics.FramesRendered.Add(1)
	} else {
		p.metrics.RawFrames.Add(1)
	}
	if p.config.Mirror {
		gocv.Flip(*frame, frame, 1)
	}
	if p.sink != nil {
		p.sink.Publish(frame)
	}
}

// Run ticks at the configured rate until ctx is done.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(p.config.RefreshHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.Tick(now)
		}
	}
}

// Start runs the loop in the background. It is a no-op when running.
func (p *Pipeline) Start() {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	go func() {
		defer close(done)
		p.Run(ctx)
	}()
}

// Stop halts the loop. No tick runs after Stop returns.
func (p *Pipeline) Stop() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is started.
func (p *Pipeline) Running() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.cancel != nil
}

// Particles returns the number of live particles. Call it only while the
// loop is stopped or from the goroutine calling Tick.
func (p *Pipeline) Particles() int {
	return p.overlay.Engine().Len()
}

// Close stops the loop and frees the canvas.
func (p *Pipeline) Close() error {
	p.Stop()
	return p.canvas.Close()
}
