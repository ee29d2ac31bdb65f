//go:build !linux

package source

import "errors"

// ErrDecodeUnsupported is returned on platforms without named pipes.
var ErrDecodeUnsupported = errors.New("remote video decoding is only supported on linux")

func newPlatformDecoder() (decoder, error) {
	return nil, ErrDecodeUnsupported
}
