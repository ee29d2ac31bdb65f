package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	// Senders open the pairing page from another device, so any origin is accepted.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Defaults for Server options.
const (
	DefaultPingInterval = 30 * time.Second
	DefaultReadTimeout  = 60 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultRate         = 20
	DefaultBurst        = 40
	maxMessageSize      = 64 * 1024
)

// Server is the signaling endpoint. It is an http.Handler.
type Server struct {
	mu          sync.RWMutex
	connections map[string]*peerConn

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	rate         rate.Limit
	burst        int

	onPeers func(n int)
	logger  *zap.SugaredLogger
}

type peerConn struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
	limiter *rate.Limiter

	// partners are peers this one exchanged messages with; they receive a
	// leave message when it disconnects.
	partners map[string]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithPingInterval sets the keepalive ping interval. The read timeout is
// twice the interval.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingInterval = d
			s.readTimeout = 2 * d
		}
	}
}

// WithRateLimit sets the per-connection message rate.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond > 0 && burst > 0 {
			s.rate = rate.Limit(perSecond)
			s.burst = burst
		}
	}
}

// WithPeerCountHook registers fn to be called with the number of connected
// peers whenever it changes.
func WithPeerCountHook(fn func(n int)) Option {
	return func(s *Server) {
		s.onPeers = fn
	}
}

// NewServer creates a signaling server.
func NewServer(logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		connections:  make(map[string]*peerConn),
		pingInterval: DefaultPingInterval,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		rate:         DefaultRate,
		burst:        DefaultBurst,
		logger:       logger.Named("signal").Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the request, assigns a peer id and relays messages
// until the connection closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	pc := &peerConn{
		id:       uuid.NewString(),
		conn:     conn,
		limiter:  rate.NewLimiter(s.rate, s.burst),
		partners: make(map[string]struct{}),
	}
	s.register(pc)
	defer s.unregister(pc)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	open, _ := NewMessage(TypeOpen, pc.id, OpenPayload{PeerID: pc.id})
	if err := s.write(pc, open); err != nil {
		s.logger.Infow("failed to send open", "peer_id", pc.id, "error", err)
		return
	}
	s.logger.Infow("peer connected", "peer_id", pc.id, "remote_addr", r.RemoteAddr)

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan Message, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			messageChan <- msg
		}
	}()

	for {
		select {
		case msg := <-messageChan:
			if !pc.limiter.Allow() {
				s.sendError(pc, ReasonRateLimited, msg.Type)
				continue
			}
			if err := s.handleMessage(pc, msg); err != nil {
				s.logger.Infow("rejected message", "peer_id", pc.id, "type", msg.Type, "error", err)
			}

		case <-pingTicker.C:
			pc.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
			pc.writeMu.Unlock()
			if err != nil {
				s.logger.Infow("error sending ping", "peer_id", pc.id, "error", err)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("error reading message from peer", "peer_id", pc.id, "error", err)
			}
			return
		}
	}
}

var (
	errPeerUnavailable = errors.New(ReasonPeerUnavailable)
	errInvalidMessage  = errors.New(ReasonInvalidMessage)
)

func (s *Server) handleMessage(from *peerConn, msg Message) error {
	switch msg.Type {
	case TypeOffer, TypeAnswer:
		var desc struct {
			SDP string `json:"sdp"`
		}
		if err := msg.Decode(&desc); err != nil {
			s.sendError(from, ReasonInvalidMessage, err.Error())
			return fmt.Errorf("%w: %v", errInvalidMessage, err)
		}
		if err := validateSDP(desc.SDP); err != nil {
			s.sendError(from, ReasonInvalidMessage, err.Error())
			return fmt.Errorf("%w: %v", errInvalidMessage, err)
		}
		return s.relay(from, msg)

	case TypeLeave:
		return s.relay(from, msg)

	default:
		s.sendError(from, ReasonInvalidMessage, "unknown message type "+msg.Type)
		return fmt.Errorf("%w: unknown type %q", errInvalidMessage, msg.Type)
	}
}

func (s *Server) relay(from *peerConn, msg Message) error {
	if msg.To == "" || msg.To == from.id {
		s.sendError(from, ReasonInvalidMessage, "missing or invalid target")
		return fmt.Errorf("%w: target %q", errInvalidMessage, msg.To)
	}

	s.mu.Lock()
	target, ok := s.connections[msg.To]
	if ok {
		from.partners[target.id] = struct{}{}
		target.partners[from.id] = struct{}{}
	}
	s.mu.Unlock()

	if !ok {
		s.sendError(from, ReasonPeerUnavailable, msg.To)
		return fmt.Errorf("%w: %s", errPeerUnavailable, msg.To)
	}

	msg.From = from.id
	s.logger.Infow("routing message",
		"type", msg.Type,
		"from_peer", from.id,
		"to_peer", target.id,
		"payload_length", len(msg.Payload),
	)
	if err := s.write(target, msg); err != nil {
		s.sendError(from, ReasonPeerUnavailable, msg.To)
		return fmt.Errorf("%w: %v", errPeerUnavailable, err)
	}
	return nil
}

func (s *Server) register(pc *peerConn) {
	s.mu.Lock()
	s.connections[pc.id] = pc
	n := len(s.connections)
	s.mu.Unlock()

	if s.onPeers != nil {
		s.onPeers(n)
	}
}

func (s *Server) unregister(pc *peerConn) {
	s.mu.Lock()
	delete(s.connections, pc.id)
	var partners []*peerConn
	for id := range pc.partners {
		if other, ok := s.connections[id]; ok {
			delete(other.partners, pc.id)
			partners = append(partners, other)
		}
	}
	n := len(s.connections)
	s.mu.Unlock()

	for _, other := range partners {
		s.write(other, Message{Type: TypeLeave, From: pc.id, To: other.id})
	}
	if s.onPeers != nil {
		s.onPeers(n)
	}
	s.logger.Infow("peer disconnected", "peer_id", pc.id)
}

func (s *Server) write(pc *peerConn, msg Message) error {
	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()

	pc.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return pc.conn.WriteJSON(msg)
}

func (s *Server) sendError(pc *peerConn, reason, detail string) {
	msg, _ := NewMessage(TypeError, pc.id, ErrorPayload{Reason: reason, Detail: detail})
	if err := s.write(pc, msg); err != nil {
		s.logger.Debugw("failed to send error", "peer_id", pc.id, "error", err)
	}
}

// IsPeerConnected reports whether a peer id is currently connected.
func (s *Server) IsPeerConnected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.connections[id]
	return ok
}

// PeerCount returns the number of connected peers.
func (s *Server) PeerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// Shutdown closes every connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	conns := make([]*peerConn, 0, len(s.connections))
	for _, pc := range s.connections {
		conns = append(conns, pc)
	}
	s.mu.RUnlock()

	for _, pc := range conns {
		if err := ctx.Err(); err != nil {
			return err
		}
		pc.writeMu.Lock()
		pc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(s.writeTimeout))
		pc.writeMu.Unlock()
		pc.conn.Close()
	}
	return nil
}

// validateSDP performs a basic sanity check of a session description.
func validateSDP(sdp string) error {
	if sdp == "" {
		return errors.New("SDP cannot be empty")
	}
	if !strings.HasPrefix(sdp, "v=") {
		return errors.New("invalid SDP format: must start with 'v='")
	}
	for _, field := range []string{"o=", "s=", "t="} {
		if !strings.Contains(sdp, field) {
			return fmt.Errorf("invalid SDP format: missing required field '%s'", field)
		}
	}
	return nil
}
