package pairing

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Mode is the role requested by a pairing URL.
type Mode string

const (
	ModeViewer Mode = "viewer"
	ModeSender Mode = "sender"
)

// SignalPath is where the signaling endpoint is mounted.
const SignalPath = "/signal"

// Invocation is what a pairing URL asks for.
type Invocation struct {
	Mode   Mode
	Target string
	Origin string
}

// BuildURL returns the URL a Sender opens to call peerID:
// <origin>/?mode=sender&target=<peerID>.
func BuildURL(origin, peerID string) (string, error) {
	base, err := parseOrigin(origin)
	if err != nil {
		return "", err
	}
	if peerID == "" {
		return "", errors.New("peer id is empty")
	}

	base.Path = "/"
	q := url.Values{}
	q.Set("mode", string(ModeSender))
	q.Set("target", peerID)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// ParseInvocation extracts mode, target and origin from a pairing URL.
// A URL without mode=sender is a viewer invocation.
func ParseInvocation(raw string) (Invocation, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Invocation{}, fmt.Errorf("parse pairing url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Invocation{}, fmt.Errorf("pairing url must be http or https, got %q", u.Scheme)
	}

	inv := Invocation{
		Mode:   ModeViewer,
		Origin: u.Scheme + "://" + u.Host,
	}
	q := u.Query()
	if Mode(q.Get("mode")) == ModeSender {
		inv.Mode = ModeSender
		inv.Target = q.Get("target")
	}
	return inv, nil
}

// ValidateTarget checks that a target is a well formed peer id.
func ValidateTarget(target string) error {
	if target == "" {
		return errors.New("target peer id is empty")
	}
	if _, err := uuid.Parse(target); err != nil {
		return fmt.Errorf("target peer id %q: %w", target, err)
	}
	return nil
}

// SignalingURL derives the websocket signaling endpoint from an http origin.
func SignalingURL(origin string) (string, error) {
	u, err := parseOrigin(origin)
	if err != nil {
		return "", err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = SignalPath
	return u.String(), nil
}

func parseOrigin(origin string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(origin, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("origin must be an http(s) URL with a host, got %q", origin)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}
