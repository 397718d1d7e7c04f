package protocol

import (
	"github.com/google/uuid"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewEventID returns an opaque, unique event id with a readable prefix.
func NewEventID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// Append creates an input_audio_buffer.append envelope
func Append(audioBase64 string) Envelope {
	return Envelope{Type: TypeAppend, EventID: NewEventID("audio"), Audio: audioBase64}
}

// Commit creates an input_audio_buffer.commit envelope
func Commit() Envelope {
	return Envelope{Type: TypeCommit, EventID: NewEventID("commit")}
}

// Clear creates an input_audio_buffer.clear envelope
func Clear() Envelope {
	return Envelope{Type: TypeClear, EventID: NewEventID("clear")}
}

// CancelResponse creates a response.cancel envelope
func CancelResponse() Envelope {
	return Envelope{Type: TypeCancel, EventID: NewEventID("cancel")}
}

// Ping creates a ping envelope
func Ping() Envelope {
	return Envelope{Type: TypePing, EventID: NewEventID("ping")}
}
