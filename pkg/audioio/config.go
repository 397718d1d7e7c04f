// Package audioio provides microphone capture and speaker playback.
//
// This package supports two backends:
//   - Exec - arecord/aplay subprocesses (alsa-utils), the default on Linux
//   - Mock - CI/Testing without hardware, with scripted frames and failures
//
// The backend is selected automatically based on what the host provides,
// or can be explicitly specified via configuration.
package audioio

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnsupported is returned when the host has no usable audio backend.
var ErrUnsupported = errors.New("audioio: audio device not supported on this host")

// ErrSourceClosed is reported when a running source stops delivering frames.
var ErrSourceClosed = errors.New("audioio: source stream ended")

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects exec when the binaries are present.
	BackendAuto Backend = "auto"
	// BackendExec shells out to arecord and aplay.
	BackendExec Backend = "exec"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 24000
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// FrameSize is the number of samples delivered per capture frame.
	// Default: 2048 (about 85ms at 24kHz)
	FrameSize int `yaml:"frame_size" json:"frame_size"`

	// Device is the platform-specific device identifier.
	// Examples:
	//   - Exec: "default", "plughw:1,0"
	//   - Mock: ignored
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendAuto,
		SampleRate: 24000,
		FrameSize:  2048,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("frame_size must be positive, got %d", c.FrameSize)
	}
	return nil
}

// FrameDuration returns the wall time covered by one frame.
func (c *Config) FrameDuration() time.Duration {
	return time.Duration(float64(c.FrameSize) / float64(c.SampleRate) * float64(time.Second))
}

// FrameBytes returns the size of a frame in bytes as PCM16.
func (c *Config) FrameBytes() int {
	return c.FrameSize * 2
}
