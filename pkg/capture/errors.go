package capture

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("capture: engine closed")

// MicrophoneError reports a failure to acquire the microphone. It ends the
// current listen attempt; the next Start tries again.
type MicrophoneError struct {
	Backend string
	Err     error
}

func (e *MicrophoneError) Error() string {
	return fmt.Sprintf("capture: microphone unavailable (%s): %v", e.Backend, e.Err)
}

func (e *MicrophoneError) Unwrap() error {
	return e.Err
}

// IsMicrophoneError reports whether err is a MicrophoneError.
func IsMicrophoneError(err error) bool {
	var me *MicrophoneError
	return errors.As(err, &me)
}
