package pairing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// DefaultICEServers is used when no ICE servers are configured.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302"}

// MediaEngineFunc registers codecs on a MediaEngine before the API is built.
type MediaEngineFunc func(m *webrtc.MediaEngine) error

// registerVP8 limits the host to VP8 so the inbound track can be decoded.
func registerVP8(m *webrtc.MediaEngine) error {
	feedback := []webrtc.RTCPFeedback{
		{Type: "goog-remb"},
		{Type: "ccm", Parameter: "fir"},
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
	}
	return m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     webrtc.MimeTypeVP8,
			ClockRate:    90000,
			RTCPFeedback: feedback,
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo)
}

func newPeerConnection(iceServers []string, media MediaEngineFunc) (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if media == nil {
		media = func(m *webrtc.MediaEngine) error { return m.RegisterDefaultCodecs() }
	}
	if err := media(mediaEngine); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	// disconnected after 10s of silence, failed after 30s
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(10*time.Second, 30*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return api.NewPeerConnection(config)
}

// setLocalAndGather applies desc and waits for ICE gathering to finish so
// the returned description carries every candidate. Signaling does not
// trickle candidates.
func setLocalAndGather(ctx context.Context, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	local := pc.LocalDescription()
	if local == nil {
		return nil, errors.New("no local description after gathering")
	}
	return local, nil
}
