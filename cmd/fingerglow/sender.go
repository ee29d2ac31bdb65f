package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ayusman/fingerglow/internal/config"
	"github.com/ayusman/fingerglow/internal/logger"
	"github.com/ayusman/fingerglow/internal/pairing"
)

// senderInvocation resolves the call target and origin from either a
// pairing URL or the explicit flags.
func senderInvocation(rawURL, target, origin string) (pairing.Invocation, error) {
	if rawURL != "" {
		inv, err := pairing.ParseInvocation(rawURL)
		if err != nil {
			return pairing.Invocation{}, err
		}
		if inv.Mode != pairing.ModeSender {
			return pairing.Invocation{}, errors.New("pairing url has no mode=sender")
		}
		return inv, nil
	}
	if target == "" || origin == "" {
		return pairing.Invocation{}, errors.New("either -url or both -target and -origin are required")
	}
	return pairing.Invocation{Mode: pairing.ModeSender, Target: target, Origin: origin}, nil
}

func runSender(args []string) error {
	fs := flag.NewFlagSet("fingerglow sender", flag.ExitOnError)
	configPath := fs.String("config", "fingerglow.yaml", "path to the YAML config file")
	rawURL := fs.String("url", "", "pairing URL shown by the viewer")
	target := fs.String("target", "", "peer id of the viewer")
	origin := fs.String("origin", "", "viewer origin, e.g. http://192.168.1.5:8080")
	fs.Parse(args)

	inv, err := senderInvocation(*rawURL, *target, *origin)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	signalURL, err := pairing.SignalingURL(inv.Origin)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sender := pairing.NewSender(pairing.SenderConfig{
		SignalURL:  signalURL,
		ICEServers: cfg.WebRTC.ICEServers,
		Logger:     log,
	})
	defer sender.Close()

	closed := make(chan struct{})
	fmt.Println(pairing.StatusText(pairing.RoleSender, sender.State(), nil))
	sender.OnStateChange(func(state pairing.State, perr *pairing.Error) {
		fmt.Println(pairing.StatusText(pairing.RoleSender, state, perr))
		if state == pairing.StateClosed {
			close(closed)
		}
	})

	media, err := pairing.OpenCamera(pairing.CameraConfig{
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
	}, log)
	if err != nil {
		log.Error("open camera", zap.Error(err))
		return &pairing.Error{Reason: pairing.ReasonMedia, Err: err}
	}
	defer media.Close()

	if err := sender.Call(ctx, inv.Target, media); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-closed:
		if perr := sender.Err(); perr != nil {
			return perr
		}
	}
	return nil
}
