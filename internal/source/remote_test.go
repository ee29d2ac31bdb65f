package source

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ayusman/fingerglow/internal/pairing"
	"github.com/ayusman/fingerglow/internal/signal"
)

func remoteConfig(t *testing.T) RemoteConfig {
	t.Helper()
	ts := httptest.NewServer(signal.NewServer(zap.NewNop()))
	t.Cleanup(ts.Close)
	return RemoteConfig{
		Pairing: pairing.HostConfig{
			SignalURL: "ws" + strings.TrimPrefix(ts.URL, "http"),
			Origin:    "http://192.168.1.2:8080",
		},
	}
}

func TestRemote_AcquireShowsPairingURL(t *testing.T) {
	var observed *pairing.Host
	cfg := remoteConfig(t)
	cfg.OnSession = func(h *pairing.Host) { observed = h }
	src := NewRemote(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, src.Acquire(ctx, func(Stream) func() {
		t.Error("remote source must not be ready without a sender")
		return nil
	}))

	require.NotNil(t, observed)
	assert.Equal(t, pairing.StateAwaitingCall, observed.State())
	assert.True(t, strings.HasPrefix(src.PairingURL(), "http://192.168.1.2:8080/?mode=sender&target="))
	assert.False(t, src.Ready())
	assert.Nil(t, src.Stream())
	assert.Equal(t, KindRemote, src.Kind())

	require.NoError(t, src.Release())
	assert.Equal(t, pairing.StateClosed, observed.State(), "release destroys the peer session")
	assert.Empty(t, src.PairingURL())
	assert.NoError(t, src.Release())
}

func TestRemote_SignalingFailure(t *testing.T) {
	src := NewRemote(RemoteConfig{
		Pairing: pairing.HostConfig{SignalURL: "ws://127.0.0.1:1/signal"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := src.Acquire(ctx, nil)

	var perr *pairing.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, pairing.ReasonSignaling, perr.Reason)
	require.ErrorAs(t, src.Err(), &perr)
	assert.NoError(t, src.Release())
}
