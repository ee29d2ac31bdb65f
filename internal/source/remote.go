package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/ayusman/fingerglow/internal/capture"
	"github.com/ayusman/fingerglow/internal/pairing"
)

// DefaultKeyframeInterval is how often a keyframe is requested from the sender.
const DefaultKeyframeInterval = 3 * time.Second

// RemoteConfig configures a Remote source.
type RemoteConfig struct {
	Pairing          pairing.HostConfig
	KeyframeInterval time.Duration
	Logger           *zap.Logger
	// OnSession is called with the pairing session before it starts, so
	// callers can observe its state.
	OnSession func(host *pairing.Host)
}

// inboundTrack is the read side of a received video track.
type inboundTrack interface {
	SSRC() webrtc.SSRC
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// rtcpWriter sends feedback to the sender; *webrtc.PeerConnection is one.
type rtcpWriter interface {
	WriteRTCP(pkts []rtcp.Packet) error
}

// streamingHost is the part of the pairing session a track handler drives.
type streamingHost interface {
	MarkStreaming() bool
	Abort(reason pairing.Reason, err error) bool
}

// decoder turns an inbound track into frames a capture.Camera can read.
type decoder interface {
	// Feed copies the track's packets into the decoder until the track or
	// the decoder closes.
	Feed(track inboundTrack) error
	Camera() capture.Camera
	Close() error
}

// Remote is a camera on another device, paired through a QR code URL.
// It is ready once the first inbound frame has been decoded.
type Remote struct {
	config RemoteConfig
	logger *zap.Logger

	state readiness
	slot  frameSlot

	mu      sync.Mutex
	host    *pairing.Host
	decoder decoder
	onReady ReadyFunc
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	releaseOnce sync.Once
	releaseErr  error

	newDecoder func() (decoder, error)
}

var _ Source = (*Remote)(nil)

// NewRemote creates a Remote source.
func NewRemote(config RemoteConfig) *Remote {
	if config.KeyframeInterval <= 0 {
		config.KeyframeInterval = DefaultKeyframeInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	config.Pairing.Logger = logger
	return &Remote{
		config:     config,
		logger:     logger.Named("remote"),
		newDecoder: newPlatformDecoder,
	}
}

// Kind returns KindRemote.
func (r *Remote) Kind() Kind { return KindRemote }

// Acquire registers a Host pairing session. It returns once the session is
// registered and the pairing URL is known; onReady fires after a Sender
// called in and its first frame was decoded.
func (r *Remote) Acquire(ctx context.Context, onReady ReadyFunc) error {
	if err := r.state.acquire(); err != nil {
		return err
	}

	host := pairing.NewHost(r.config.Pairing)
	runCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.host = host
	r.onReady = onReady
	r.cancel = cancel
	r.mu.Unlock()

	host.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver, pc *webrtc.PeerConnection) {
		r.handleTrack(runCtx, host, track, pc)
	})
	host.OnStateChange(func(state pairing.State, perr *pairing.Error) {
		if perr != nil {
			r.state.fail(perr)
			// Detach and stop decoding. The callback may run on the host's
			// own goroutines, which Release waits for.
			go r.Release()
		}
	})
	if r.config.OnSession != nil {
		r.config.OnSession(host)
	}

	if err := host.Start(ctx); err != nil {
		r.state.fail(err)
		return err
	}
	return nil
}

func (r *Remote) handleTrack(ctx context.Context, host streamingHost, track inboundTrack, pc rtcpWriter) {
	if r.state.isReleased() {
		return
	}

	dec, err := r.newDecoder()
	if err != nil {
		r.logger.Error("cannot decode remote video", zap.Error(err))
		host.Abort(pairing.ReasonMedia, err)
		return
	}

	r.mu.Lock()
	if r.decoder != nil || r.state.isReleased() {
		r.mu.Unlock()
		dec.Close()
		return
	}
	r.decoder = dec
	onReady := r.onReady
	r.wg.Add(3)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.requestKeyframes(ctx, pc, track)
	}()
	go func() {
		defer r.wg.Done()
		if err := dec.Feed(track); err != nil && ctx.Err() == nil {
			r.logger.Warn("inbound track ended", zap.Error(err))
		}
	}()
	go func() {
		defer r.wg.Done()
		err := pump(ctx, dec.Camera(), &r.slot, func() {
			if !host.MarkStreaming() {
				return
			}
			w, h := r.slot.Size()
			r.logger.Info("remote stream playing", zap.Int("width", w), zap.Int("height", h))
			r.state.fire(&r.slot, onReady)
		})
		if err != nil && ctx.Err() == nil && !r.state.isReleased() {
			r.logger.Warn("remote decoding stopped", zap.Error(err))
		}
	}()
}

// requestKeyframes sends a picture loss indication now and then periodically
// so the decoder can start and recover from loss.
func (r *Remote) requestKeyframes(ctx context.Context, pc rtcpWriter, track inboundTrack) {
	ticker := time.NewTicker(r.config.KeyframeInterval)
	defer ticker.Stop()

	for {
		if err := pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
		}); err != nil {
			r.logger.Debug("keyframe request failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Host returns the pairing session, or nil before Acquire.
func (r *Remote) Host() *pairing.Host {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.host
}

// PairingURL returns the URL to show as a QR code while waiting for a Sender.
func (r *Remote) PairingURL() string {
	if host := r.Host(); host != nil {
		return host.PairingURL()
	}
	return ""
}

// Release runs the ready cleanup, destroys the pairing session and stops
// decoding. No reconnect is attempted. A failed pairing session releases
// itself; concurrent callers wait for that to finish.
func (r *Remote) Release() error {
	r.releaseOnce.Do(func() { r.releaseErr = r.release() })
	return r.releaseErr
}

func (r *Remote) release() error {
	cleanup, _ := r.state.release()
	if cleanup != nil {
		cleanup()
	}

	r.mu.Lock()
	host, dec, cancel := r.host, r.decoder, r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var errs []error
	if host != nil {
		if err := host.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pairing session: %w", err))
		}
	}
	if dec != nil {
		if err := dec.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close decoder: %w", err))
		}
	}
	r.wg.Wait()
	r.slot.close()
	return errors.Join(errs...)
}

// Ready reports whether the remote stream is playing.
func (r *Remote) Ready() bool { return r.state.isReady() }

// Stream returns the decoded stream once ready.
func (r *Remote) Stream() Stream { return r.state.current() }

// Err returns the pairing failure, if any.
func (r *Remote) Err() error { return r.state.failure() }

// OnFailure registers the pairing failure hook. Set it before Acquire.
func (r *Remote) OnFailure(fn func(err error)) { r.state.onFailure(fn) }
