// Package config loads the viewer configuration from YAML with environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the full application configuration.
type Config struct {
	Server struct {
		Address string `yaml:"address"`
		// PublicOrigin is the origin a phone uses to reach this server. The
		// pairing URL and signaling URL are derived from it.
		PublicOrigin    string        `yaml:"public_origin"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		PingInterval      time.Duration `yaml:"ping_interval"`
		MessagesPerSecond float64       `yaml:"messages_per_second"`
		Burst             int           `yaml:"burst"`
	} `yaml:"signal"`

	WebRTC struct {
		ICEServers       []string      `yaml:"ice_servers"`
		KeyframeInterval time.Duration `yaml:"keyframe_interval"`
	} `yaml:"webrtc"`

	Camera struct {
		Device string `yaml:"device"`
		Width  int    `yaml:"width"`
		Height int    `yaml:"height"`
		FPS    int    `yaml:"fps"`
	} `yaml:"camera"`

	Detector struct {
		MaxHands        int     `yaml:"max_hands"`
		MinConfidence   float64 `yaml:"min_confidence"`
		MinTrackingConf float64 `yaml:"min_tracking_confidence"`
		ScriptPath      string  `yaml:"script_path"`
	} `yaml:"detector"`

	Render struct {
		RefreshHz int  `yaml:"refresh_hz"`
		Skeleton  bool `yaml:"skeleton"`
		Mirror    bool `yaml:"mirror"`
		BatchSize int  `yaml:"batch_size"`
		// InitialSource is used when the store has no remembered source.
		InitialSource string `yaml:"initial_source"`
	} `yaml:"render"`

	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.PublicOrigin != "" {
		u, err := url.Parse(c.Server.PublicOrigin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("server.public_origin must be an http(s) origin, got %q", c.Server.PublicOrigin)
		}
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.MessagesPerSecond <= 0 {
		return fmt.Errorf("signal.messages_per_second must be > 0")
	}
	if c.Signal.Burst <= 0 {
		return fmt.Errorf("signal.burst must be > 0")
	}

	// WebRTC
	if c.WebRTC.KeyframeInterval <= 0 {
		return fmt.Errorf("webrtc.keyframe_interval must be > 0")
	}

	// Camera
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("camera.width and camera.height must be > 0")
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("camera.fps must be > 0")
	}

	// Detector
	if c.Detector.MaxHands <= 0 {
		return fmt.Errorf("detector.max_hands must be > 0")
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return fmt.Errorf("detector.min_confidence must be in [0, 1]")
	}
	if c.Detector.MinTrackingConf < 0 || c.Detector.MinTrackingConf > 1 {
		return fmt.Errorf("detector.min_tracking_confidence must be in [0, 1]")
	}

	// Render
	if c.Render.RefreshHz <= 0 || c.Render.RefreshHz > 240 {
		return fmt.Errorf("render.refresh_hz must be in (0, 240]")
	}
	if c.Render.BatchSize <= 0 {
		return fmt.Errorf("render.batch_size must be > 0")
	}
	switch c.Render.InitialSource {
	case "local", "remote":
	default:
		return fmt.Errorf("render.initial_source must be local or remote, got %q", c.Render.InitialSource)
	}

	// Store
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}

	// Logging
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.MessagesPerSecond = 20
	cfg.Signal.Burst = 40

	cfg.WebRTC.ICEServers = []string{"stun:stun.l.google.com:19302"}
	cfg.WebRTC.KeyframeInterval = 3 * time.Second

	cfg.Camera.Device = "0"
	cfg.Camera.Width = 1280
	cfg.Camera.Height = 720
	cfg.Camera.FPS = 30

	cfg.Detector.MaxHands = 2
	cfg.Detector.MinConfidence = 0.5
	cfg.Detector.MinTrackingConf = 0.5

	cfg.Render.RefreshHz = 60
	cfg.Render.Skeleton = false
	cfg.Render.Mirror = true
	cfg.Render.BatchSize = 8
	cfg.Render.InitialSource = "local"

	cfg.Store.Path = defaultStorePath()

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"

	return cfg
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "fingerglow.db"
	}
	return home + "/.fingerglow/fingerglow.db"
}

func (c *Config) applyEnvOverrides() error {
	if addr := os.Getenv("FINGERGLOW_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if origin := os.Getenv("FINGERGLOW_PUBLIC_ORIGIN"); origin != "" {
		c.Server.PublicOrigin = origin
	}
	if device := os.Getenv("FINGERGLOW_CAMERA_DEVICE"); device != "" {
		c.Camera.Device = device
	}
	if path := os.Getenv("FINGERGLOW_STORE_PATH"); path != "" {
		c.Store.Path = path
	}
	if level := os.Getenv("FINGERGLOW_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if skeleton := os.Getenv("FINGERGLOW_SKELETON"); skeleton != "" {
		v, err := strconv.ParseBool(skeleton)
		if err != nil {
			return fmt.Errorf("FINGERGLOW_SKELETON: %w", err)
		}
		c.Render.Skeleton = v
	}
	return nil
}
