package pairing

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/ayusman/fingerglow/internal/signal"
)

// HostConfig configures the displaying end of a pairing.
type HostConfig struct {
	// SignalURL is the ws(s) signaling endpoint.
	SignalURL string
	// Origin is the public http(s) origin embedded in the pairing URL.
	Origin     string
	ICEServers []string
	Logger     *zap.Logger
}

// TrackFunc receives the inbound video track of an answered call.
type TrackFunc func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver, pc *webrtc.PeerConnection)

// Host registers with the signaling server and auto-answers the first
// inbound call receive-only.
type Host struct {
	*Session

	config HostConfig
	logger *zap.Logger

	mu      sync.Mutex
	client  *signal.Client
	pc      *webrtc.PeerConnection
	caller  string
	onTrack TrackFunc
	cancel  context.CancelFunc
	done    chan struct{}

	releaseOnce sync.Once
	releaseErr  error
}

// NewHost creates a Host session in StateInitializing.
func NewHost(config HostConfig) *Host {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Host{
		Session: newSession(RoleHost, config.Origin),
		config:  config,
		logger:  logger.Named("host"),
		done:    make(chan struct{}),
	}
	// A failed session frees its connections without waiting for Close.
	// Failures are reported from the receive loop and from pion callbacks,
	// both of which release waits on, so it runs on its own goroutine.
	h.OnStateChange(func(state State, err *Error) {
		if state == StateClosed && err != nil {
			go h.release()
		}
	})
	return h
}

// OnTrack sets the handler for the inbound video track. It must be set
// before Start.
func (h *Host) OnTrack(fn TrackFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onTrack = fn
}

// Start registers with the signaling server. It returns once the peer id is
// known; calls are then answered in the background until Close.
func (h *Host) Start(ctx context.Context) error {
	client, err := signal.Dial(ctx, h.config.SignalURL)
	if err != nil {
		h.fail(ReasonSignaling, err)
		close(h.done)
		return &Error{Reason: ReasonSignaling, Err: err}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	if h.State() == StateClosed {
		h.mu.Unlock()
		cancel()
		client.Close()
		close(h.done)
		return &Error{Reason: ReasonSignaling, Err: fmt.Errorf("session closed during registration")}
	}
	h.client = client
	h.cancel = cancel
	h.mu.Unlock()

	h.register(client.ID())
	h.transition(StateAwaitingCall)
	h.logger.Info("registered", zap.String("peer_id", client.ID()), zap.String("pairing_url", h.PairingURL()))

	go h.run(runCtx, client)
	return nil
}

func (h *Host) run(ctx context.Context, client *signal.Client) {
	defer close(h.done)

	for msg := range client.Messages() {
		switch msg.Type {
		case signal.TypeOffer:
			h.handleOffer(ctx, client, msg)

		case signal.TypeLeave:
			if h.isCaller(msg.From) {
				h.logger.Info("caller left", zap.String("peer_id", msg.From))
				h.fail(ReasonConnectionLost, fmt.Errorf("caller %s left", msg.From))
			}

		case signal.TypeError:
			info := msg.ErrorInfo()
			h.logger.Warn("signaling error", zap.String("reason", info.Reason), zap.String("detail", info.Detail))

		default:
			h.logger.Debug("ignoring message", zap.String("type", msg.Type))
		}
	}

	if err := client.Err(); err != nil && h.State() < StateStreaming {
		h.fail(ReasonSignaling, err)
	}
}

func (h *Host) isCaller(peerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.caller != "" && h.caller == peerID
}

func (h *Host) handleOffer(ctx context.Context, client *signal.Client, msg signal.Message) {
	h.mu.Lock()
	if h.pc != nil {
		h.mu.Unlock()
		// Only one call is answered per session.
		h.logger.Warn("ignoring additional call", zap.String("from", msg.From))
		return
	}
	onTrack := h.onTrack
	h.mu.Unlock()

	var offer webrtc.SessionDescription
	if err := msg.Decode(&offer); err != nil {
		h.logger.Warn("malformed offer", zap.String("from", msg.From), zap.Error(err))
		return
	}

	pc, err := newPeerConnection(h.config.ICEServers, registerVP8)
	if err != nil {
		h.fail(ReasonNegotiation, err)
		return
	}

	h.mu.Lock()
	if h.State() == StateClosed {
		h.mu.Unlock()
		pc.Close()
		return
	}
	h.pc = pc
	h.caller = msg.From
	h.mu.Unlock()

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		h.fail(ReasonNegotiation, fmt.Errorf("add transceiver: %w", err))
		return
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		h.logger.Info("inbound track",
			zap.String("codec", track.Codec().MimeType),
			zap.Uint32("ssrc", uint32(track.SSRC())),
		)
		if onTrack != nil {
			onTrack(track, receiver, pc)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		h.logger.Info("peer connection state", zap.String("state", state.String()))
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			h.fail(ReasonConnectionLost, fmt.Errorf("peer connection %s", state))
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		h.fail(ReasonNegotiation, fmt.Errorf("set remote description: %w", err))
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		h.fail(ReasonNegotiation, fmt.Errorf("create answer: %w", err))
		return
	}

	local, err := setLocalAndGather(ctx, pc, answer)
	if err != nil {
		h.fail(ReasonNegotiation, err)
		return
	}

	reply, err := signal.NewMessage(signal.TypeAnswer, msg.From, local)
	if err != nil {
		h.fail(ReasonNegotiation, err)
		return
	}
	if err := client.Send(reply); err != nil {
		h.fail(ReasonSignaling, err)
		return
	}

	h.transition(StateConnecting)
	h.logger.Info("answered call", zap.String("from", msg.From))
}

// MarkStreaming records that inbound media is playing.
func (h *Host) MarkStreaming() bool {
	return h.transition(StateStreaming)
}

// Close destroys the session: the caller is told to leave, the peer
// connection and the signaling connection are closed. Safe to call more
// than once.
func (h *Host) Close() error {
	h.transition(StateClosed)
	return h.release()
}

// release runs the teardown once. Concurrent callers block until it is done.
func (h *Host) release() error {
	h.releaseOnce.Do(func() { h.releaseErr = h.teardown() })
	return h.releaseErr
}

func (h *Host) teardown() error {
	h.mu.Lock()
	client, pc, caller, cancel := h.client, h.pc, h.caller, h.cancel
	h.client, h.pc, h.cancel = nil, nil, nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var firstErr error
	if client != nil {
		if caller != "" {
			client.Send(signal.Message{Type: signal.TypeLeave, To: caller})
		}
		if err := client.Close(); err != nil {
			firstErr = err
		}
		<-h.done
	}
	if pc != nil {
		if err := pc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Abort closes the session with reason and frees its connections in the
// background.
func (h *Host) Abort(reason Reason, err error) bool {
	return h.fail(reason, err)
}
