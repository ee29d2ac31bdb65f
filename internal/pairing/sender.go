package pairing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/ayusman/fingerglow/internal/signal"
)

// LocalMedia is the camera a Sender transmits.
type LocalMedia struct {
	Tracks []webrtc.TrackLocal
	// Codecs registers the codecs the tracks are encoded with.
	Codecs MediaEngineFunc
	// Close stops the tracks.
	Close func()
}

// SenderConfig configures the camera end of a pairing.
type SenderConfig struct {
	SignalURL  string
	ICEServers []string
	Logger     *zap.Logger
}

// Sender calls a Host and streams local media to it.
type Sender struct {
	*Session

	config SenderConfig
	logger *zap.Logger

	mu      sync.Mutex
	client  *signal.Client
	pc      *webrtc.PeerConnection
	target  string
	cancel  context.CancelFunc
	called  bool
	running bool
	done    chan struct{}
}

// NewSender creates a Sender session in StateInitializing.
func NewSender(config SenderConfig) *Sender {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		Session: newSession(RoleSender, ""),
		config:  config,
		logger:  logger.Named("sender"),
		done:    make(chan struct{}),
	}
}

// Call registers with the signaling server and sends an offer carrying
// media to target. It returns once the offer is sent; the answer and the
// connection progress are reported through state changes.
func (s *Sender) Call(ctx context.Context, target string, media *LocalMedia) error {
	s.mu.Lock()
	if s.called {
		s.mu.Unlock()
		return ErrAlreadyCalled
	}
	s.called = true
	s.mu.Unlock()

	started := false
	defer func() {
		if !started {
			close(s.done)
		}
	}()

	if err := ValidateTarget(target); err != nil {
		s.fail(ReasonInvalidTarget, err)
		return &Error{Reason: ReasonInvalidTarget, Err: err}
	}
	if media == nil || len(media.Tracks) == 0 {
		err := errors.New("no local tracks")
		s.fail(ReasonMedia, err)
		return &Error{Reason: ReasonMedia, Err: err}
	}

	client, err := signal.Dial(ctx, s.config.SignalURL)
	if err != nil {
		s.fail(ReasonSignaling, err)
		return &Error{Reason: ReasonSignaling, Err: err}
	}

	pc, err := newPeerConnection(s.config.ICEServers, media.Codecs)
	if err != nil {
		client.Close()
		s.fail(ReasonNegotiation, err)
		return &Error{Reason: ReasonNegotiation, Err: err}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.State() == StateClosed {
		s.mu.Unlock()
		cancel()
		pc.Close()
		client.Close()
		return &Error{Reason: ReasonSignaling, Err: errors.New("session closed during registration")}
	}
	s.client, s.pc, s.target, s.cancel = client, pc, target, cancel
	s.mu.Unlock()

	s.register(client.ID())
	s.logger.Info("registered", zap.String("peer_id", client.ID()), zap.String("target", target))

	for _, track := range media.Tracks {
		if _, err := pc.AddTrack(track); err != nil {
			return s.abort(ReasonNegotiation, fmt.Errorf("add track: %w", err))
		}
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Info("peer connection state", zap.String("state", state.String()))
		switch state {
		case webrtc.PeerConnectionStateConnected:
			s.transition(StateStreaming)
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			s.fail(ReasonConnectionLost, fmt.Errorf("peer connection %s", state))
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return s.abort(ReasonNegotiation, fmt.Errorf("create offer: %w", err))
	}
	local, err := setLocalAndGather(ctx, pc, offer)
	if err != nil {
		return s.abort(ReasonNegotiation, err)
	}

	msg, err := signal.NewMessage(signal.TypeOffer, target, local)
	if err != nil {
		return s.abort(ReasonNegotiation, err)
	}
	if err := client.Send(msg); err != nil {
		return s.abort(ReasonSignaling, err)
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	started = true

	s.transition(StateConnecting)
	go s.run(runCtx, client, pc, target)
	return nil
}

func (s *Sender) abort(reason Reason, err error) error {
	s.fail(reason, err)
	s.release()
	return &Error{Reason: reason, Err: err}
}

func (s *Sender) run(ctx context.Context, client *signal.Client, pc *webrtc.PeerConnection, target string) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.Messages():
			if !ok {
				if err := client.Err(); err != nil && s.State() < StateStreaming {
					s.fail(ReasonSignaling, err)
				}
				return
			}
			s.handle(pc, target, msg)
		}
	}
}

func (s *Sender) handle(pc *webrtc.PeerConnection, target string, msg signal.Message) {
	switch msg.Type {
	case signal.TypeAnswer:
		if msg.From != target {
			s.logger.Warn("answer from unexpected peer", zap.String("from", msg.From))
			return
		}
		var answer webrtc.SessionDescription
		if err := msg.Decode(&answer); err != nil {
			s.fail(ReasonNegotiation, err)
			return
		}
		if err := pc.SetRemoteDescription(answer); err != nil {
			s.fail(ReasonNegotiation, fmt.Errorf("set remote description: %w", err))
			return
		}
		s.logger.Info("call answered", zap.String("from", msg.From))

	case signal.TypeError:
		info := msg.ErrorInfo()
		if info.Reason == signal.ReasonPeerUnavailable {
			s.fail(ReasonPeerUnavailable, fmt.Errorf("peer %s is not connected", target))
			return
		}
		s.logger.Warn("signaling error", zap.String("reason", info.Reason), zap.String("detail", info.Detail))

	case signal.TypeLeave:
		if msg.From == target {
			s.fail(ReasonConnectionLost, fmt.Errorf("host %s left", target))
		}
	}
}

// Close destroys the session. Local media is owned by the caller and is
// not stopped here. Safe to call more than once.
func (s *Sender) Close() error {
	s.transition(StateClosed)
	err := s.release()

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		<-s.done
	}
	return err
}

func (s *Sender) release() error {
	s.mu.Lock()
	client, pc, target, cancel := s.client, s.pc, s.target, s.cancel
	s.client, s.pc, s.cancel = nil, nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var firstErr error
	if client != nil {
		client.Send(signal.Message{Type: signal.TypeLeave, To: target})
		firstErr = client.Close()
	}
	if pc != nil {
		if err := pc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
