package source

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ayusman/fingerglow/internal/capture"
)

// Local is the locally attached camera.
type Local struct {
	camera capture.Camera
	logger *zap.Logger

	state  readiness
	slot   frameSlot
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Source = (*Local)(nil)

// NewLocal creates a Local source over camera.
func NewLocal(camera capture.Camera, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{camera: camera, logger: logger.Named("local")}
}

// Kind returns KindLocal.
func (l *Local) Kind() Kind { return KindLocal }

// Acquire opens the camera in the background. onReady fires with the first
// decodable frame. A denied or missing camera is reported through Err and
// never retried.
func (l *Local) Acquire(ctx context.Context, onReady ReadyFunc) error {
	if err := l.state.acquire(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ready := false
		err := pump(runCtx, l.camera, &l.slot, func() {
			ready = true
			w, h := l.slot.Size()
			l.logger.Info("camera ready", zap.Int("width", w), zap.Int("height", h))
			l.state.fire(&l.slot, onReady)
		})
		if err == nil || l.state.isReleased() {
			return
		}
		if !ready {
			err = fmt.Errorf("%w: %v", ErrCameraAccess, err)
			l.state.fail(err)
			l.logger.Error("camera unavailable", zap.Error(err))
			return
		}
		l.logger.Warn("camera stopped delivering frames", zap.Error(err))
	}()
	return nil
}

// Release cancels acquisition, runs the ready cleanup and closes the camera.
func (l *Local) Release() error {
	cleanup, first := l.state.release()
	if !first {
		return nil
	}
	if cleanup != nil {
		cleanup()
	}

	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	l.wg.Wait()
	err := l.camera.Close()
	l.slot.close()
	return err
}

// Ready reports whether the first frame arrived.
func (l *Local) Ready() bool { return l.state.isReady() }

// Stream returns the camera stream once ready.
func (l *Local) Stream() Stream { return l.state.current() }

// Err returns the acquisition failure, wrapping ErrCameraAccess.
func (l *Local) Err() error { return l.state.failure() }

// OnFailure registers the camera failure hook. Set it before Acquire.
func (l *Local) OnFailure(fn func(err error)) { l.state.onFailure(fn) }
