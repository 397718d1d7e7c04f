// Package config loads go-voicelink configuration from YAML files and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-voicelink/internal/log"
)

// Environment variables that override file values.
const (
	EnvAssistantID = "VOICELINK_ASSISTANT_ID"
	EnvServerURL   = "VOICELINK_SERVER_URL"
	EnvLogLevel    = "LOG_LEVEL"
)

// DefaultServerURL is used when no server origin is configured.
const DefaultServerURL = "http://localhost:5050"

// ErrMissingAssistantID is fatal at start-up.
var ErrMissingAssistantID = errors.New("config: assistant id is required")

// Config is the complete client configuration.
type Config struct {
	AssistantID string     `yaml:"assistant_id"`
	ServerURL   string     `yaml:"server_url"`
	Log         log.Config `yaml:"log"`
	Audio       Audio      `yaml:"audio"`
	Reconnect   Reconnect  `yaml:"reconnect"`
	Widget      Widget     `yaml:"widget"`
	Dashboard   Dashboard  `yaml:"dashboard"`
}

// Audio configures capture, segmentation and playback.
type Audio struct {
	Backend    string `yaml:"backend"`
	Device     string `yaml:"device"`
	SampleRate int    `yaml:"sample_rate"`
	FrameSize  int    `yaml:"frame_size"`

	SoundThreshold     float64       `yaml:"sound_threshold"`
	SilenceDuration    time.Duration `yaml:"silence_duration"`
	MinCommitGap       time.Duration `yaml:"min_commit_gap"`
	CommitGrace        time.Duration `yaml:"commit_grace"`
	MinimumAudioLength time.Duration `yaml:"minimum_audio_length"`
}

// Reconnect configures connection supervision.
type Reconnect struct {
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	BaseDelay          time.Duration `yaml:"base_delay"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	MaxAttempts        int           `yaml:"max_attempts"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	DeadReconnectDelay time.Duration `yaml:"dead_reconnect_delay"`
}

// Widget configures interaction behaviour around the core.
type Widget struct {
	// InitialState is "collapsed" or "expanded".
	InitialState string `yaml:"initial_state"`

	// HideAfterInactivity closes the widget after this much idle time. Zero disables.
	HideAfterInactivity time.Duration `yaml:"hide_after_inactivity"`

	WelcomeMessage  string        `yaml:"welcome_message"`
	ResumeDelay     time.Duration `yaml:"resume_delay"`
	TextRetireDelay time.Duration `yaml:"text_retire_delay"`
	MessageDuration time.Duration `yaml:"message_duration"`
}

// Dashboard configures the local status and control server.
type Dashboard struct {
	// Addr is the listen address, e.g. "127.0.0.1:8181". Empty disables it.
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with the engine defaults.
func DefaultConfig() Config {
	return Config{
		ServerURL: DefaultServerURL,
		Log:       log.Config{Level: "info"},
		Audio: Audio{
			Backend:            "auto",
			SampleRate:         24000,
			FrameSize:          2048,
			SoundThreshold:     0.02,
			SilenceDuration:    300 * time.Millisecond,
			MinCommitGap:       time.Second,
			CommitGrace:        100 * time.Millisecond,
			MinimumAudioLength: 300 * time.Millisecond,
		},
		Reconnect: Reconnect{
			ConnectTimeout:     20 * time.Second,
			BaseDelay:          time.Second,
			MaxDelay:           30 * time.Second,
			MaxAttempts:        5,
			PingInterval:       15 * time.Second,
			DeadReconnectDelay: time.Second,
		},
		Widget: Widget{
			InitialState:    "collapsed",
			ResumeDelay:     300 * time.Millisecond,
			TextRetireDelay: 3 * time.Second,
			MessageDuration: 5 * time.Second,
		},
	}
}

// Load reads a YAML file on top of DefaultConfig and applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	if id := os.Getenv(EnvAssistantID); id != "" {
		c.AssistantID = id
	}
	if u := os.Getenv(EnvServerURL); u != "" {
		c.ServerURL = u
	}
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		c.Log.Level = lvl
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AssistantID) == "" {
		return ErrMissingAssistantID
	}
	if _, err := c.Endpoint(); err != nil {
		return err
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("config: audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.FrameSize <= 0 {
		return fmt.Errorf("config: audio.frame_size must be positive, got %d", c.Audio.FrameSize)
	}
	if c.Audio.SoundThreshold <= 0 || c.Audio.SoundThreshold >= 1 {
		return fmt.Errorf("config: audio.sound_threshold must be in (0, 1), got %v", c.Audio.SoundThreshold)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("config: reconnect.max_attempts must not be negative, got %d", c.Reconnect.MaxAttempts)
	}

	durations := map[string]time.Duration{
		"audio.silence_duration":         c.Audio.SilenceDuration,
		"audio.minimum_audio_length":     c.Audio.MinimumAudioLength,
		"reconnect.connect_timeout":      c.Reconnect.ConnectTimeout,
		"reconnect.base_delay":           c.Reconnect.BaseDelay,
		"reconnect.max_delay":            c.Reconnect.MaxDelay,
		"reconnect.ping_interval":        c.Reconnect.PingInterval,
		"reconnect.dead_reconnect_delay": c.Reconnect.DeadReconnectDelay,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %v", name, d)
		}
	}
	if c.Widget.HideAfterInactivity < 0 {
		return fmt.Errorf("config: widget.hide_after_inactivity must not be negative")
	}
	return nil
}

// Endpoint returns the websocket URL for the configured assistant. The
// scheme mirrors the server origin: https becomes wss, http becomes ws.
func (c *Config) Endpoint() (string, error) {
	return EndpointURL(c.ServerURL, c.AssistantID)
}

// EndpointURL builds <ws|wss>://<host>/ws/<assistantID> from an origin.
func EndpointURL(origin, assistantID string) (string, error) {
	if assistantID == "" {
		return "", ErrMissingAssistantID
	}
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("config: invalid server url %q: %w", origin, err)
	}

	var scheme string
	switch u.Scheme {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", fmt.Errorf("config: unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("config: server url %q has no host", origin)
	}

	return fmt.Sprintf("%s://%s/ws/%s", scheme, u.Host, url.PathEscape(assistantID)), nil
}
