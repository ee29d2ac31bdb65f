//go:build linux

package pairing

import (
	"fmt"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// CameraConfig selects the sender's capture mode.
type CameraConfig struct {
	Width   int
	Height  int
	Bitrate int
}

// OpenCamera captures the default camera as a VP8 track.
func OpenCamera(config CameraConfig, logger *zap.Logger) (*LocalMedia, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	if config.Bitrate > 0 {
		vpxParams.BitRate = config.Bitrate
	}

	codecSelector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
	)

	for _, d := range mediadevices.EnumerateDevices() {
		logger.Debug("media device", zap.String("kind", fmt.Sprint(d.Kind)), zap.String("label", d.Label))
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			// Raw formats only; MJPEG nodes on some cameras yield broken frames.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Ideal: config.Width}
			c.Height = prop.IntRanged{Ideal: config.Height}
		},
		Codec: codecSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}

	var tracks []webrtc.TrackLocal
	var all []mediadevices.Track
	for _, track := range stream.GetVideoTracks() {
		track.OnEnded(func(err error) {
			if err != nil {
				logger.Warn("camera track ended", zap.Error(err))
			}
		})
		tracks = append(tracks, track)
		all = append(all, track)
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("no video track")
	}

	return &LocalMedia{
		Tracks: tracks,
		Codecs: func(m *webrtc.MediaEngine) error {
			codecSelector.Populate(m)
			return nil
		},
		Close: func() {
			for _, t := range all {
				t.Close()
			}
		},
	}, nil
}
