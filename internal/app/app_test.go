package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/fingerglow/internal/detector"
	"github.com/ayusman/fingerglow/internal/metrics"
	"github.com/ayusman/fingerglow/internal/pairing"
	"github.com/ayusman/fingerglow/internal/source"
	"github.com/ayusman/fingerglow/internal/store"
)

type appFixture struct {
	app    *App
	det    *detector.MockDetector
	ledger *sourceLedger
	sink   *recordingSink
}

func newFixture(t *testing.T, ready source.Stream, mutate func(*Config)) *appFixture {
	t.Helper()
	f := &appFixture{
		det:    detector.NewMockDetector(),
		ledger: &sourceLedger{},
		sink:   newRecordingSink(t),
	}
	config := Config{
		Detector: f.det,
		Sources:  f.ledger.factory(ready),
		Sink:     f.sink,
		Metrics:  metrics.New(),
		Pipeline: PipelineConfig{RefreshHz: 200},
	}
	if mutate != nil {
		mutate(&config)
	}

	a, err := New(config)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	f.app = a
	return f
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{Sources: (&sourceLedger{}).factory(nil)})
	assert.Error(t, err)

	_, err = New(Config{Detector: detector.NewMockDetector()})
	assert.Error(t, err)
}

func TestApp_StartAcquiresInitialSource(t *testing.T) {
	f := newFixture(t, nil, func(c *Config) { c.InitialSource = source.KindRemote })

	require.NoError(t, f.app.Start(context.Background()))

	assert.Equal(t, []string{"acquire remote#1"}, f.ledger.Events())
	st := f.app.Status()
	assert.Equal(t, "remote", st.Source)
	assert.False(t, st.Ready)
	assert.Equal(t, DetectorReady, st.Detector)
	assert.Empty(t, st.DetectorMessage)

	assert.Error(t, f.app.Start(context.Background()), "Start runs once")
}

func TestApp_SwitchReleasesBeforeAcquire(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	require.NoError(t, f.app.Start(ctx))

	require.NoError(t, f.app.Switch(ctx, source.KindRemote))
	require.NoError(t, f.app.Switch(ctx, source.KindLocal))

	assert.Equal(t, []string{
		"acquire local#1",
		"release local#1",
		"acquire remote#2",
		"release remote#2",
		"acquire local#3",
	}, f.ledger.Events())
	assert.Equal(t, source.KindLocal, f.app.Kind())
}

func TestApp_RapidSwitchesKeepOneSource(t *testing.T) {
	f := newFixture(t, newFakeStream(t, 64, 48), nil)
	ctx := context.Background()
	require.NoError(t, f.app.Start(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kind := source.KindLocal
			if i%2 == 0 {
				kind = source.KindRemote
			}
			assert.NoError(t, f.app.Switch(ctx, kind))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.ledger.MaxActive(), "two sources were held at once")
	assert.Equal(t, 1, f.ledger.Active())
	assert.Same(t, f.ledger.Last(), f.app.Source())

	require.NoError(t, f.app.Close())
	assert.Equal(t, 0, f.ledger.Active())
}

func TestApp_ReadySourceFeedsPipeline(t *testing.T) {
	f := newFixture(t, newFakeStream(t, 64, 48), nil)

	var mu sync.Mutex
	var statuses []Status
	f.app.OnStatus(func(st Status) {
		mu.Lock()
		statuses = append(statuses, st)
		mu.Unlock()
	})

	require.NoError(t, f.app.Start(context.Background()))
	require.Eventually(t, func() bool { return f.det.DetectCalls() > 0 }, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.sink.Count() > 0 }, 5*time.Second, 5*time.Millisecond)

	assert.True(t, f.app.Status().Ready)
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, statuses)
	assert.True(t, statuses[len(statuses)-1].Ready)
}

func TestApp_DetectorLoadFailureShowsRawVideo(t *testing.T) {
	f := newFixture(t, newFakeStream(t, 64, 48), nil)
	f.det.SetLoadError(errors.New("model missing"))

	require.NoError(t, f.app.Start(context.Background()))
	require.Eventually(t, func() bool { return f.sink.Count() >= 3 }, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, f.det.DetectCalls(), "detect must never run without a model")
	st := f.app.Status()
	assert.Equal(t, DetectorFailed, st.Detector)
	assert.Equal(t, MsgDetectorFailed, st.DetectorMessage)
	assert.True(t, st.Ready)
}

func TestApp_SourceFailureReported(t *testing.T) {
	m := metrics.New()
	f := newFixture(t, nil, func(c *Config) { c.Metrics = m })
	require.NoError(t, f.app.Start(context.Background()))

	src := f.ledger.Last()
	src.fail(fmt.Errorf("%w: permission denied", source.ErrCameraAccess))

	st := f.app.Status()
	assert.Equal(t, MsgCameraDenied, st.Error)
	assert.False(t, st.Ready)

	// a fresh switch clears the error
	require.NoError(t, f.app.Switch(context.Background(), source.KindLocal))
	assert.Empty(t, f.app.Status().Error)
}

func TestApp_PairingFailureMessage(t *testing.T) {
	f := newFixture(t, nil, nil)
	require.NoError(t, f.app.Start(context.Background()))

	f.ledger.Last().fail(&pairing.Error{Reason: pairing.ReasonConnectionLost, Err: errors.New("caller left")})
	assert.Equal(t, "Error: connection-lost", f.app.Status().Error)
}

func TestApp_FailureFromReleasedSourceIgnored(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	require.NoError(t, f.app.Start(ctx))

	old := f.ledger.Last()
	require.NoError(t, f.app.Switch(ctx, source.KindRemote))

	old.fail(source.ErrCameraAccess)
	assert.Empty(t, f.app.Status().Error)
}

func TestApp_LateReadyFromReleasedSourceIgnored(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	require.NoError(t, f.app.Start(ctx))

	old := f.ledger.Last()
	require.NoError(t, f.app.Switch(ctx, source.KindRemote))
	require.True(t, old.Released())

	old.mu.Lock()
	old.stream = newFakeStream(t, 64, 48)
	old.mu.Unlock()
	old.fire()

	assert.False(t, f.app.pipeline.Attached())
	assert.False(t, f.app.Status().Ready)
}

func TestApp_AcquireErrorReturned(t *testing.T) {
	ledger := &sourceLedger{}
	failing := func(kind source.Kind, onSession func(*pairing.Host)) (source.Source, error) {
		src, _ := ledger.factory(nil)(kind, onSession)
		src.(*fakeSource).acquireErr = errors.New("no device")
		return src, nil
	}
	f := newFixture(t, nil, func(c *Config) { c.Sources = failing })

	err := f.app.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, "no device", f.app.Status().Error)
	assert.True(t, f.app.pipeline.Running(), "the loop restarts even when acquisition fails")
}

func TestApp_PersistsLastSource(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	first := newFixture(t, nil, func(c *Config) { c.Store = s })
	require.NoError(t, first.app.Start(context.Background()))
	require.NoError(t, first.app.Switch(context.Background(), source.KindRemote))
	require.NoError(t, first.app.Close())

	got, err := s.Settings().Get(store.KeyLastSource)
	require.NoError(t, err)
	assert.Equal(t, "remote", got)

	second := newFixture(t, nil, func(c *Config) {
		c.Store = s
		c.InitialSource = source.KindLocal
	})
	require.NoError(t, second.app.Start(context.Background()))
	assert.Equal(t, source.KindRemote, second.app.Kind())
}

func TestApp_CloseReleasesEverything(t *testing.T) {
	f := newFixture(t, newFakeStream(t, 64, 48), nil)
	require.NoError(t, f.app.Start(context.Background()))

	require.NoError(t, f.app.Close())
	require.NoError(t, f.app.Close())

	assert.Equal(t, 0, f.ledger.Active())
	assert.True(t, f.det.Closed())
	assert.False(t, f.app.pipeline.Running())
	assert.ErrorIs(t, f.app.Switch(context.Background(), source.KindLocal), ErrClosed)
}

func TestApp_SwitchBeforeStart(t *testing.T) {
	f := newFixture(t, nil, nil)
	assert.Error(t, f.app.Switch(context.Background(), source.KindLocal))
}

func TestApp_PairingURLHiddenWithoutSession(t *testing.T) {
	f := newFixture(t, nil, nil)
	require.NoError(t, f.app.Start(context.Background()))
	assert.Empty(t, f.app.PairingURL())
	assert.Empty(t, f.app.Status().PairingURL)
}
