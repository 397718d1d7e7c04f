package audioio

import (
	"context"
	"io"
	"time"
)

// Frame is one fixed-size block of mono samples in [-1, 1].
type Frame struct {
	Samples    []float32
	SampleRate int
	Captured   time.Time
}

// Duration returns the duration of this frame.
func (f *Frame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(f.Samples)) / float64(f.SampleRate) * float64(time.Second))
}

// FrameFromPCM16 builds a frame from little-endian PCM16 bytes.
func FrameFromPCM16(data []byte, sampleRate int, captured time.Time) Frame {
	samples := make([]float32, len(data)/2)
	for i := range samples {
		s := int16(data[i*2]) | int16(data[i*2+1])<<8
		samples[i] = float32(s) / 32768
	}
	return Frame{Samples: samples, SampleRate: sampleRate, Captured: captured}
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins audio capture. It fails with ErrUnsupported or a device
	// error when the microphone cannot be acquired.
	Start(ctx context.Context) error

	// Stop halts audio capture.
	// It is safe to call Stop multiple times.
	Stop() error

	// Stream returns a channel that receives frames.
	// The channel is closed when the source is stopped.
	Stream() <-chan Frame

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "exec", "mock").
	Name() string

	// Close releases all resources.
	// After Close, the source cannot be restarted.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	// FramesRead is the total number of frames delivered.
	FramesRead int64 `json:"frames_read"`

	// Overruns is the number of frames dropped because nobody was reading.
	Overruns int64 `json:"overruns"`

	// Running indicates if the source is currently capturing.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
