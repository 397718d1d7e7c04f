package widget

import (
	"time"

	"github.com/teslashibe/go-voicelink/internal/config"
	"github.com/teslashibe/go-voicelink/pkg/capture"
	"github.com/teslashibe/go-voicelink/pkg/reconnect"
	"github.com/teslashibe/go-voicelink/pkg/vad"
)

// Config holds the orchestrator settings.
type Config struct {
	// Endpoint is the websocket URL of the assistant.
	Endpoint string

	Capture capture.Config
	Policy  reconnect.Policy

	// Open opens the widget as soon as it runs.
	Open bool

	// HideAfterInactivity closes an open widget after this much time
	// without speech, text or playback. Zero disables.
	HideAfterInactivity time.Duration

	// WelcomeMessage is shown once connected while the widget is closed.
	WelcomeMessage string
	WelcomeDelay   time.Duration

	// ResumeDelay is the pause before listening resumes after a response.
	ResumeDelay time.Duration

	// TextRetireDelay is how long response text stays after it completes.
	TextRetireDelay time.Duration

	// MessageDuration is the display time of transient messages.
	MessageDuration time.Duration
}

// DefaultConfig returns defaults for endpoint.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:        endpoint,
		Capture:         capture.DefaultConfig(),
		Policy:          reconnect.DefaultPolicy(),
		WelcomeDelay:    time.Second,
		ResumeDelay:     300 * time.Millisecond,
		TextRetireDelay: 3 * time.Second,
		MessageDuration: 5 * time.Second,
	}
}

// FromConfig maps the application configuration onto widget settings.
func FromConfig(c *config.Config) (Config, error) {
	endpoint, err := c.Endpoint()
	if err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig(endpoint)
	cfg.Capture.SampleRate = c.Audio.SampleRate
	cfg.Capture.Segmenter = vad.Config{
		SoundThreshold:     c.Audio.SoundThreshold,
		SilenceDuration:    c.Audio.SilenceDuration,
		MinCommitGap:       c.Audio.MinCommitGap,
		CommitGrace:        c.Audio.CommitGrace,
		MinimumAudioLength: c.Audio.MinimumAudioLength,
	}
	cfg.Policy = reconnect.Policy{
		BaseDelay:          c.Reconnect.BaseDelay,
		MaxDelay:           c.Reconnect.MaxDelay,
		MaxAttempts:        c.Reconnect.MaxAttempts,
		ConnectTimeout:     c.Reconnect.ConnectTimeout,
		PingInterval:       c.Reconnect.PingInterval,
		DeadReconnectDelay: c.Reconnect.DeadReconnectDelay,
	}
	cfg.Open = c.Widget.InitialState == "expanded"
	cfg.HideAfterInactivity = c.Widget.HideAfterInactivity
	cfg.WelcomeMessage = c.Widget.WelcomeMessage
	cfg.ResumeDelay = c.Widget.ResumeDelay
	cfg.TextRetireDelay = c.Widget.TextRetireDelay
	cfg.MessageDuration = c.Widget.MessageDuration
	return cfg, nil
}
