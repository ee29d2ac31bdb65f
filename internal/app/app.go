// Package app wires the video sources, the landmark detector and the render
// pipeline together and switches between the local and the remote camera.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ayusman/fingerglow/internal/detector"
	"github.com/ayusman/fingerglow/internal/metrics"
	"github.com/ayusman/fingerglow/internal/pairing"
	"github.com/ayusman/fingerglow/internal/source"
	"github.com/ayusman/fingerglow/internal/store"
)

// User-facing messages.
const (
	MsgDetectorLoading = "Loading Model..."
	MsgDetectorFailed  = "Failed to load hand detection model."
	MsgCameraDenied    = "Unable to access camera. Please allow camera permissions."
)

// ErrClosed is returned by Switch after Close.
var ErrClosed = errors.New("app closed")

// SourceFactory creates an unacquired source of the given kind. onSession
// must be passed to remote sources so the pairing session can be observed.
type SourceFactory func(kind source.Kind, onSession func(*pairing.Host)) (source.Source, error)

// Config holds the App dependencies.
type Config struct {
	Detector detector.Detector
	Sources  SourceFactory
	Sink     FrameSink
	// Store is optional; it remembers the last source and logs pairing sessions.
	Store   *store.Store
	Metrics *metrics.Metrics
	Logger  *zap.Logger

	Pipeline PipelineConfig
	// InitialSource is used when the store has no remembered source.
	InitialSource source.Kind
}

// DetectorState is the landmark model load state.
type DetectorState string

const (
	DetectorLoading DetectorState = "loading"
	DetectorReady   DetectorState = "ready"
	DetectorFailed  DetectorState = "failed"
)

// App is the source switch controller. At most one source is active; a
// switch fully releases the previous source before acquiring the next.
type App struct {
	config  Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	// mu serializes Start, Switch and Close.
	mu       sync.Mutex
	started  bool
	closed   bool
	pipeline *Pipeline

	stateMu     sync.RWMutex
	current     source.Source
	kind        source.Kind
	host        *pairing.Host
	sourceErr   error
	detector    DetectorState
	detectorErr error

	obsMu     sync.Mutex
	observers []func(Status)
}

// New creates an App. Start must be called before frames are rendered.
func New(config Config) (*App, error) {
	if config.Detector == nil {
		return nil, errors.New("app: detector is required")
	}
	if config.Sources == nil {
		return nil, errors.New("app: source factory is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := config.Metrics
	if m == nil {
		m = metrics.New()
	}

	return &App{
		config:   config,
		logger:   logger.Named("app"),
		metrics:  m,
		kind:     config.InitialSource,
		detector: DetectorLoading,
	}, nil
}

// Start loads the landmark model once, starts the render loop and
// acquires the remembered (or initial) source. A model load failure is
// reported through Status and the video is shown without particles.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started || a.closed {
		a.mu.Unlock()
		return fmt.Errorf("app: already started")
	}
	a.started = true

	det := a.loadDetector()
	a.pipeline = NewPipeline(a.config.Pipeline, det, a.config.Sink, a.metrics, a.config.Logger)
	a.mu.Unlock()

	return a.Switch(ctx, a.initialKind())
}

func (a *App) loadDetector() detector.Detector {
	err := a.config.Detector.Load()

	a.stateMu.Lock()
	if err != nil {
		a.detector = DetectorFailed
		a.detectorErr = err
	} else {
		a.detector = DetectorReady
	}
	a.stateMu.Unlock()

	if err != nil {
		a.logger.Error("failed to load hand detection model", zap.Error(err))
		return nil
	}
	a.logger.Info("hand detection model loaded")
	return a.config.Detector
}

func (a *App) initialKind() source.Kind {
	kind := a.config.InitialSource
	if a.config.Store == nil {
		return kind
	}
	v, err := a.config.Store.Settings().GetOr(store.KeyLastSource, kind.String())
	if err != nil {
		a.logger.Warn("cannot read last source", zap.Error(err))
		return kind
	}
	if k, err := source.ParseKind(v); err == nil {
		return k
	}
	return kind
}

// Switch makes kind the active source: the render loop is stopped, the
// current source released, the new one acquired and the loop restarted.
// Switching to the active kind re-acquires it.
func (a *App) Switch(ctx context.Context, kind source.Kind) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.pipeline == nil {
		return errors.New("app: not started")
	}

	a.pipeline.Stop()
	defer a.pipeline.Start()

	a.releaseCurrent()

	a.logger.Info("switching source", zap.Stringer("kind", kind))
	a.metrics.SourceSwitched(kind.String())
	a.persistKind(kind)

	src, err := a.config.Sources(kind, a.observeSession)
	if err != nil {
		a.setSource(nil, kind, err)
		a.notify()
		return fmt.Errorf("create %s source: %w", kind, err)
	}
	src.OnFailure(func(err error) {
		a.sourceFailed(src, err)
	})
	a.setSource(src, kind, nil)

	if err := src.Acquire(ctx, a.readyFunc(src)); err != nil {
		// Sources that already reported the failure through the hook
		// must not count it twice.
		if src.Err() == nil {
			a.sourceFailed(src, err)
		}
		return fmt.Errorf("acquire %s source: %w", kind, err)
	}
	a.notify()
	return nil
}

// releaseCurrent releases the active source. Release errors are logged.
func (a *App) releaseCurrent() {
	a.stateMu.Lock()
	src := a.current
	a.current = nil
	a.host = nil
	a.sourceErr = nil
	a.stateMu.Unlock()

	if src == nil {
		return
	}
	if err := src.Release(); err != nil {
		a.logger.Warn("release source", zap.Stringer("kind", src.Kind()), zap.Error(err))
	}
}

func (a *App) setSource(src source.Source, kind source.Kind, err error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.current = src
	a.kind = kind
	a.sourceErr = err
}

func (a *App) isCurrent(src source.Source) bool {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.current == src
}

func (a *App) readyFunc(src source.Source) source.ReadyFunc {
	return func(stream source.Stream) func() {
		if !a.isCurrent(src) {
			return nil
		}
		w, h := stream.Size()
		a.logger.Info("source ready", zap.Stringer("kind", src.Kind()), zap.Int("width", w), zap.Int("height", h))
		detach := a.pipeline.Attach(stream)
		a.notify()
		return detach
	}
}

func (a *App) sourceFailed(src source.Source, err error) {
	a.stateMu.Lock()
	if a.current != src {
		a.stateMu.Unlock()
		return
	}
	a.sourceErr = err
	a.stateMu.Unlock()

	a.metrics.SourceFailed(src.Kind().String())
	a.logger.Error("source failed", zap.Stringer("kind", src.Kind()), zap.Error(err))
	a.notify()
}

func (a *App) persistKind(kind source.Kind) {
	if a.config.Store == nil {
		return
	}
	if err := a.config.Store.Settings().Set(store.KeyLastSource, kind.String()); err != nil {
		a.logger.Warn("cannot persist source", zap.Error(err))
	}
}

// observeSession tracks a remote pairing session for status, metrics and
// the session log.
func (a *App) observeSession(host *pairing.Host) {
	a.stateMu.Lock()
	a.host = host
	a.stateMu.Unlock()

	var rec *store.SessionRecord
	if a.config.Store != nil {
		rec = &store.SessionRecord{
			Role:      string(host.Role()),
			State:     host.State().String(),
			StartedAt: host.StartedAt(),
		}
		if err := a.config.Store.Sessions().Create(rec); err != nil {
			a.logger.Warn("cannot log pairing session", zap.Error(err))
			rec = nil
		}
	}

	host.OnStateChange(func(state pairing.State, perr *pairing.Error) {
		if state == pairing.StateClosed {
			reason := ""
			if perr != nil {
				reason = string(perr.Reason)
			}
			a.metrics.PairingEnded(string(host.Role()), reason)
			if rec != nil {
				if err := a.config.Store.Sessions().Finish(rec.ID, state.String(), reason); err != nil {
					a.logger.Warn("cannot log pairing session", zap.Error(err))
				}
			}
		} else if rec != nil {
			if err := a.config.Store.Sessions().Update(rec.ID, host.PeerID(), state.String()); err != nil {
				a.logger.Warn("cannot log pairing session", zap.Error(err))
			}
		}
		a.notify()
	})
}

// Kind returns the selected source kind.
func (a *App) Kind() source.Kind {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.kind
}

// Source returns the active source, or nil.
func (a *App) Source() source.Source {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.current
}

// PairingURL returns the URL to show as a QR code, or "" when no remote
// session is waiting for a sender.
func (a *App) PairingURL() string {
	a.stateMu.RLock()
	host, src := a.host, a.current
	a.stateMu.RUnlock()

	if host == nil || src == nil || src.Ready() {
		return ""
	}
	return host.PairingURL()
}

// OnStatus registers fn to be called after every status change. fn runs on
// the goroutine that caused the change and must not block.
func (a *App) OnStatus(fn func(Status)) {
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	a.observers = append(a.observers, fn)
}

func (a *App) notify() {
	a.obsMu.Lock()
	observers := make([]func(Status), len(a.observers))
	copy(observers, a.observers)
	a.obsMu.Unlock()

	if len(observers) == 0 {
		return
	}
	st := a.Status()
	for _, fn := range observers {
		fn(st)
	}
}

// Close stops the render loop, releases the active source and closes the
// detector.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	if a.pipeline != nil {
		a.pipeline.Stop()
	}
	a.releaseCurrent()
	if a.pipeline != nil {
		if err := a.pipeline.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pipeline: %w", err))
		}
	}
	if err := a.config.Detector.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close detector: %w", err))
	}
	a.logger.Info("stopped")
	return errors.Join(errs...)
}
