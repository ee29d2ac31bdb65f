package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersExposed(t *testing.T) {
	m := New()
	m.Ticks.Add(3)
	m.DetectErrors.Add(1)
	m.ParticlesLive.Store(24)

	expected := `
# HELP fingerglow_render_ticks_total Render ticks with a ready stream
# TYPE fingerglow_render_ticks_total counter
fingerglow_render_ticks_total 3
# HELP fingerglow_detect_errors_total Failed or panicking landmark detection calls
# TYPE fingerglow_detect_errors_total counter
fingerglow_detect_errors_total 1
# HELP fingerglow_particles_live Particles alive after the last tick
# TYPE fingerglow_particles_live gauge
fingerglow_particles_live 24
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"fingerglow_render_ticks_total", "fingerglow_detect_errors_total", "fingerglow_particles_live")
	assert.NoError(t, err)
}

func TestMetrics_LabelledCounters(t *testing.T) {
	m := New()
	m.SourceSwitched("remote")
	m.SourceSwitched("remote")
	m.SourceSwitched("local")
	m.SourceFailed("local")
	m.PairingEnded("host", "connection-lost")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sourceSwitches.WithLabelValues("remote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sourceSwitches.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sourceErrors.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pairingEnded.WithLabelValues("host", "connection-lost")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SignalPeers.Store(2)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "fingerglow_signal_peers 2")
}
