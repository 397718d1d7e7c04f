package session

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// Sentinel errors for the session package.
var (
	// ErrNotOpen indicates a send was attempted without an open connection.
	ErrNotOpen = errors.New("session: not connected")

	// ErrSendBufferFull indicates the writer could not keep up.
	ErrSendBufferFull = errors.New("session: send buffer full")
)

// CloseError describes why a connection ended.
type CloseError struct {
	// Code is the websocket close code, or 1006 when none was received.
	Code int

	// Text is the close reason sent by the peer.
	Text string

	// Clean is true for normal closure and going-away codes, and for
	// closes the client requested itself.
	Clean bool

	// Cause is the underlying transport error, if any.
	Cause error
}

// Error implements the error interface.
func (e *CloseError) Error() string {
	if e.Cause != nil && e.Text == "" {
		return fmt.Sprintf("session: closed (%d): %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("session: closed (%d) %s", e.Code, e.Text)
}

// Unwrap returns the underlying cause.
func (e *CloseError) Unwrap() error {
	return e.Cause
}

// IsCleanClose reports whether code is a normal closure or going away.
func IsCleanClose(code int) bool {
	return code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway
}

// closeErrorFrom converts a read error into a CloseError.
func closeErrorFrom(err error) *CloseError {
	var wsErr *websocket.CloseError
	if errors.As(err, &wsErr) {
		return &CloseError{
			Code:  wsErr.Code,
			Text:  wsErr.Text,
			Clean: IsCleanClose(wsErr.Code),
			Cause: err,
		}
	}
	return &CloseError{Code: websocket.CloseAbnormalClosure, Cause: err}
}
