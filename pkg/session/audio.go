package session

import (
	"github.com/teslashibe/go-voicelink/pkg/codec"
)

// audioBuffer accumulates decoded audio deltas per response id.
type audioBuffer struct {
	pending map[string][]byte

	// discarded responses keep dropping deltas until their audio.done
	discarded map[string]struct{}
}

func newAudioBuffer() *audioBuffer {
	return &audioBuffer{
		pending:   make(map[string][]byte),
		discarded: make(map[string]struct{}),
	}
}

// add decodes one delta and appends it to the response's buffer.
func (b *audioBuffer) add(responseID, delta string) error {
	if _, ok := b.discarded[responseID]; ok {
		return nil
	}
	pcm, err := codec.DecodeBase64(delta)
	if err != nil {
		return err
	}
	b.pending[responseID] = append(b.pending[responseID], pcm...)
	return nil
}

// take returns the response's audio as one base64 payload and forgets it.
func (b *audioBuffer) take(responseID string) (string, bool) {
	pcm, ok := b.pending[responseID]
	delete(b.pending, responseID)
	delete(b.discarded, responseID)
	if !ok || len(pcm) == 0 {
		return "", false
	}
	return codec.EncodeBase64(pcm), true
}

// discard drops every buffered response and ignores the rest of it.
func (b *audioBuffer) discard() int {
	n := len(b.pending)
	for id := range b.pending {
		b.discarded[id] = struct{}{}
	}
	clear(b.pending)
	return n
}

func (b *audioBuffer) reset() {
	clear(b.pending)
	clear(b.discarded)
}
