package audioio

import (
	"context"
	"io"
)

// Sink plays WAV clips on a speaker or other output device.
type Sink interface {
	// Open prepares a WAV clip for playback. The caller owns the returned
	// clip and must Close it once playback ends or fails.
	Open(wav []byte) (Clip, error)

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "exec", "mock").
	Name() string

	// Close releases all resources.
	io.Closer
}

// Clip is one prepared playback resource.
type Clip interface {
	// Play blocks until the clip has finished playing, fails, or ctx ends.
	Play(ctx context.Context) error

	// Close releases the clip's resources. It is safe to call more than once.
	io.Closer
}

// SinkStats contains statistics about the audio sink.
type SinkStats struct {
	// ClipsOpened is the total number of clips prepared.
	ClipsOpened int64 `json:"clips_opened"`

	// ClipsPlayed is the number of clips that played to completion.
	ClipsPlayed int64 `json:"clips_played"`

	// ClipsFailed is the number of clips that failed to open or play.
	ClipsFailed int64 `json:"clips_failed"`

	// OpenClips is the number of clips not yet closed.
	OpenClips int64 `json:"open_clips"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
