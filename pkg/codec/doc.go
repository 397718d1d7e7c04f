// Package codec converts captured audio between the representations the
// voice engine moves around: float samples from the microphone, PCM16
// little-endian bytes on the wire, base64 text inside JSON envelopes and a
// canonical WAV container for local playback.
package codec
