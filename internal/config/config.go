package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvAuthCookie holds the camera's authId cookie. Required.
	EnvAuthCookie = "UNIFI_AUTH_COOKIE"
	// EnvConfigPath optionally points at a YAML file overriding the defaults.
	EnvConfigPath = "CAMSTREAM_CONFIG"

	DefaultCameraURL = "http://192.168.2.135/snap.jpeg"
	DefaultPort      = 8000
)

// ErrMissingAuthToken is returned when UNIFI_AUTH_COOKIE is unset or blank.
var ErrMissingAuthToken = errors.New(EnvAuthCookie + " environment variable is not set")

// CameraConfig describes the upstream snapshot endpoint.
type CameraConfig struct {
	URL       string `yaml:"url"`        // snapshot URL, without cache buster
	TimeoutMs int    `yaml:"timeout_ms"` // per-request timeout
	UserAgent string `yaml:"user_agent"` // empty = browser-like default
}

// StreamConfig holds the updater and client cadences.
type StreamConfig struct {
	UpdateIntervalMs int `yaml:"update_interval_ms"` // time between two camera fetches
	TickMs           int `yaml:"tick_ms"`            // updater wake-up slice
	FrameIntervalMs  int `yaml:"frame_interval_ms"`  // pause between two parts sent to a client
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Stream   StreamConfig   `yaml:"stream"`
	Server   ServerConfig   `yaml:"server"`
	Defaults DefaultsConfig `yaml:"defaults"`

	// AuthToken only ever comes from the environment.
	AuthToken string `yaml:"-"`
}

// Default returns the built-in configuration (no auth token).
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			URL:       DefaultCameraURL,
			TimeoutMs: 5000,
		},
		Stream: StreamConfig{
			UpdateIntervalMs: 2000,
			TickMs:           100,
			FrameIntervalMs:  100,
		},
		Server:   ServerConfig{Port: DefaultPort},
		Defaults: DefaultsConfig{DebugLevel: 1},
	}
}

// FromEnv builds the configuration from the process environment. The auth
// token is checked first so a missing token fails before anything else.
func FromEnv(getenv func(string) string) (*Config, error) {
	token := strings.TrimSpace(getenv(EnvAuthCookie))
	if token == "" {
		return nil, ErrMissingAuthToken
	}

	cfg := Default()
	if path := strings.TrimSpace(getenv(EnvConfigPath)); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.AuthToken = token
	return cfg, nil
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and the camera URL.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Camera.URL)
	if err != nil {
		return fmt.Errorf("camera.url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("camera.url must be an absolute http(s) URL, got %q", c.Camera.URL)
	}
	if c.Camera.TimeoutMs <= 0 {
		return fmt.Errorf("camera.timeout_ms must be > 0, got %d", c.Camera.TimeoutMs)
	}
	if c.Stream.UpdateIntervalMs <= 0 {
		return fmt.Errorf("stream.update_interval_ms must be > 0, got %d", c.Stream.UpdateIntervalMs)
	}
	if c.Stream.TickMs <= 0 {
		return fmt.Errorf("stream.tick_ms must be > 0, got %d", c.Stream.TickMs)
	}
	if c.Stream.TickMs > c.Stream.UpdateIntervalMs {
		return fmt.Errorf("stream.tick_ms (%d) must not exceed stream.update_interval_ms (%d)",
			c.Stream.TickMs, c.Stream.UpdateIntervalMs)
	}
	if c.Stream.FrameIntervalMs <= 0 {
		return fmt.Errorf("stream.frame_interval_ms must be > 0, got %d", c.Stream.FrameIntervalMs)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be 0-4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// Addr returns the listen address on all interfaces.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// CameraTimeout returns the per-request timeout.
func (c *Config) CameraTimeout() time.Duration {
	return time.Duration(c.Camera.TimeoutMs) * time.Millisecond
}

// UpdateInterval returns the time between two camera fetches.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.Stream.UpdateIntervalMs) * time.Millisecond
}

// Tick returns the updater wake-up slice.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Stream.TickMs) * time.Millisecond
}

// FrameInterval returns the pause between two parts sent to one client.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.Stream.FrameIntervalMs) * time.Millisecond
}
