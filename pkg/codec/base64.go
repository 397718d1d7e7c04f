package codec

import (
	"encoding/base64"
	"fmt"
)

// DecodeError reports transport text that is not valid base64.
type DecodeError struct {
	// Length is the length of the rejected input.
	Length int

	// Cause is the underlying decoder error.
	Cause error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: invalid base64 payload (%d chars): %v", e.Length, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// EncodeBase64 encodes bytes with the standard padded alphabet.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 reverses EncodeBase64. Failures are returned as *DecodeError.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Length: len(s), Cause: err}
	}
	return b, nil
}
