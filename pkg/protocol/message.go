// Package protocol defines the websocket message types exchanged between the
// voice client and the assistant endpoint.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies the type of websocket message
type MessageType string

const (
	// Client → Assistant messages
	TypeAppend MessageType = "input_audio_buffer.append" // One base64 audio frame
	TypeCommit MessageType = "input_audio_buffer.commit" // End of utterance
	TypeClear  MessageType = "input_audio_buffer.clear"  // Discard server-side buffer
	TypeCancel MessageType = "response.cancel"           // Abort in-flight response
	TypePing   MessageType = "ping"                      // Liveness probe

	// Assistant → Client messages
	TypeSessionCreated   MessageType = "session.created"
	TypeSessionUpdated   MessageType = "session.updated"
	TypeConnectionStatus MessageType = "connection_status"
	TypeError            MessageType = "error"
	TypeTextDelta        MessageType = "response.text.delta"
	TypeTextDone         MessageType = "response.text.done"
	TypeAudioDelta       MessageType = "response.audio.delta"
	TypeAudioDone        MessageType = "response.audio.done"
	TypeResponseDone     MessageType = "response.done"
	TypePong             MessageType = "pong"
)

// StatusConnected is the connection_status value signalling readiness.
const StatusConnected = "connected"

// ErrMissingType is returned for inbound messages without a type field.
var ErrMissingType = errors.New("protocol: message has no type")

// Envelope is the outbound wrapper for all client messages
type Envelope struct {
	Type    MessageType `json:"type"`
	EventID string      `json:"event_id"`
	Audio   string      `json:"audio,omitempty"` // base64 PCM16, append only
}

// Bytes returns the JSON-encoded envelope
func (e Envelope) Bytes() ([]byte, error) {
	return json.Marshal(e)
}

// ErrorData is the payload of an error message
type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Type    string `json:"type,omitempty"`
}

// Inbound is a parsed assistant message. Fields not used by a type are empty.
type Inbound struct {
	Type       MessageType `json:"type"`
	EventID    string      `json:"event_id,omitempty"`
	Status     string      `json:"status,omitempty"`
	Message    string      `json:"message,omitempty"`
	Delta      string      `json:"delta,omitempty"`
	Text       string      `json:"text,omitempty"`
	ResponseID string      `json:"response_id,omitempty"`
	ItemID     string      `json:"item_id,omitempty"`
	Error      *ErrorData  `json:"error,omitempty"`

	// Raw holds the original bytes for logging.
	Raw json.RawMessage `json:"-"`
}

// ErrorMessage returns the human readable error text, if any.
func (m *Inbound) ErrorMessage() string {
	if m.Error != nil && m.Error.Message != "" {
		return m.Error.Message
	}
	if m.Message != "" {
		return m.Message
	}
	return "unknown error"
}

// Known reports whether the type is one the client handles.
func (m *Inbound) Known() bool {
	switch m.Type {
	case TypeSessionCreated, TypeSessionUpdated, TypeConnectionStatus, TypeError,
		TypeTextDelta, TypeTextDone, TypeAudioDelta, TypeAudioDone, TypeResponseDone, TypePong:
		return true
	}
	return false
}

// ParseInbound parses a JSON message from bytes
func ParseInbound(data []byte) (*Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	msg.Raw = append(json.RawMessage(nil), data...)
	return &msg, nil
}

// Bytes returns the JSON-encoded message
func (m *Inbound) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseEnvelope parses a client envelope. Servers use it to read what the
// client sent.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}
	return &env, nil
}
