package source

import "github.com/pion/rtp"

// rtpSink consumes RTP packets of a single track.
type rtpSink interface {
	WriteRTP(packet *rtp.Packet) error
}

// forwardRTP writes packet to sink unless it carries no media. Bandwidth
// probes arrive as padding-only packets without a VP8 payload.
func forwardRTP(sink rtpSink, packet *rtp.Packet) error {
	if packet == nil || len(packet.Payload) == 0 {
		return nil
	}
	return sink.WriteRTP(packet)
}
