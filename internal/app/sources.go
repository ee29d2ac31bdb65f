package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ayusman/fingerglow/internal/capture"
	"github.com/ayusman/fingerglow/internal/pairing"
	"github.com/ayusman/fingerglow/internal/source"
)

// SourcesConfig configures the default source factory.
type SourcesConfig struct {
	Camera capture.Config
	Remote source.RemoteConfig
	Logger *zap.Logger
}

// NewSourceFactory returns a factory creating a fresh capture.Camera for
// every Local source and a fresh pairing session for every Remote source.
func NewSourceFactory(config SourcesConfig) SourceFactory {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(kind source.Kind, onSession func(*pairing.Host)) (source.Source, error) {
		switch kind {
		case source.KindLocal:
			return source.NewLocal(capture.NewCamera(config.Camera), logger), nil
		case source.KindRemote:
			rc := config.Remote
			rc.Logger = logger
			rc.OnSession = onSession
			return source.NewRemote(rc), nil
		default:
			return nil, fmt.Errorf("unsupported source kind %s", kind)
		}
	}
}
