package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"github.com/ayusman/fingerglow/internal/app"
	"github.com/ayusman/fingerglow/internal/capture"
	"github.com/ayusman/fingerglow/internal/config"
	"github.com/ayusman/fingerglow/internal/detector"
	"github.com/ayusman/fingerglow/internal/logger"
	"github.com/ayusman/fingerglow/internal/metrics"
	"github.com/ayusman/fingerglow/internal/pairing"
	"github.com/ayusman/fingerglow/internal/server"
	sig "github.com/ayusman/fingerglow/internal/signal"
	"github.com/ayusman/fingerglow/internal/source"
	"github.com/ayusman/fingerglow/internal/store"
	"github.com/ayusman/fingerglow/internal/tray"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "sender" {
		if err := runSender(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := runViewer(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runViewer(args []string) error {
	fs := flag.NewFlagSet("fingerglow", flag.ExitOnError)
	configPath := fs.String("config", "fingerglow.yaml", "path to the YAML config file")
	webDir := fs.String("web", "", "serve the viewer pages from this directory instead of the embedded ones")
	withTray := fs.Bool("tray", false, "show a system tray menu")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	origin := cfg.Server.PublicOrigin
	if origin == "" {
		origin, err = detectOrigin(cfg.Server.Address)
		if err != nil {
			return err
		}
	}
	signalURL, err := pairing.SignalingURL(origin)
	if err != nil {
		return err
	}
	log.Info("pairing origin", zap.String("origin", origin), zap.String("signal_url", signalURL))

	m := metrics.New()
	signaling := sig.NewServer(log,
		sig.WithPingInterval(cfg.Signal.PingInterval),
		sig.WithRateLimit(cfg.Signal.MessagesPerSecond, cfg.Signal.Burst),
		sig.WithPeerCountHook(func(n int) { m.SignalPeers.Store(int64(n)) }),
	)

	det := detector.NewMediaPipeDetector(detector.Config{
		MaxHands:        cfg.Detector.MaxHands,
		MinConfidence:   cfg.Detector.MinConfidence,
		MinTrackingConf: cfg.Detector.MinTrackingConf,
		ScriptPath:      cfg.Detector.ScriptPath,
	})

	frames := server.NewFrameHub(server.DefaultJPEGQuality)

	initial, err := source.ParseKind(cfg.Render.InitialSource)
	if err != nil {
		return err
	}

	controller, err := app.New(app.Config{
		Detector: det,
		Sources: app.NewSourceFactory(app.SourcesConfig{
			Camera: capture.Config{
				Device: cfg.Camera.Device,
				Width:  cfg.Camera.Width,
				Height: cfg.Camera.Height,
				FPS:    cfg.Camera.FPS,
			},
			Remote: source.RemoteConfig{
				Pairing: pairing.HostConfig{
					SignalURL:  signalURL,
					Origin:     origin,
					ICEServers: cfg.WebRTC.ICEServers,
					Logger:     log,
				},
				KeyframeInterval: cfg.WebRTC.KeyframeInterval,
			},
			Logger: log,
		}),
		Sink:    frames,
		Store:   st,
		Metrics: m,
		Logger:  log,
		Pipeline: app.PipelineConfig{
			RefreshHz: cfg.Render.RefreshHz,
			Skeleton:  cfg.Render.Skeleton,
			Mirror:    cfg.Render.Mirror,
			BatchSize: cfg.Render.BatchSize,
		},
		InitialSource: initial,
	})
	if err != nil {
		return err
	}
	defer controller.Close()

	srv := server.New(server.Config{
		StaticDir:  *webDir,
		Controller: controller,
		Frames:     frames,
		Store:      st,
		Signal:     signaling,
		SignalPath: pairing.SignalPath,
		Metrics:    m.Handler(),
		Logger:     log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The viewer comes up even when the first source fails: the error is
	// shown in the page and the user can switch.
	if err := controller.Start(ctx); err != nil {
		log.Warn("initial source failed", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx, cfg.Server.Address, cfg.Server.ShutdownTimeout)
	}()

	if *withTray {
		t := newTray(ctx, controller, origin, stop, log)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		// systray must own the main thread.
		t.Run()
	}

	err = <-errCh
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := signaling.Shutdown(shutdownCtx); serr != nil {
		log.Warn("signaling shutdown", zap.Error(serr))
	}
	return err
}

func newTray(ctx context.Context, controller *app.App, origin string, quit func(), log *zap.Logger) *tray.Tray {
	t := tray.New()
	t.SetSource(controller.Kind().String())
	t.OnSelect(func(name string) {
		kind, err := source.ParseKind(name)
		if err != nil {
			return
		}
		go func() {
			if err := controller.Switch(context.WithoutCancel(ctx), kind); err != nil {
				log.Warn("switch from tray failed", zap.Error(err))
			}
		}()
	})
	t.OnOpen(func() {
		if err := openBrowser(origin); err != nil {
			log.Warn("open browser", zap.Error(err))
		}
	})
	t.OnQuit(quit)
	controller.OnStatus(func(st app.Status) {
		t.SetSource(st.Source)
		switch {
		case st.Error != "":
			t.SetStatus(st.Error)
		case st.Ready:
			t.SetStatus("Streaming")
		case st.PairingStatus != "":
			t.SetStatus(st.PairingStatus)
		default:
			t.SetStatus("Starting")
		}
	})
	return t
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
