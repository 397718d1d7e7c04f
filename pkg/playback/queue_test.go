package playback

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-voicelink/pkg/audioio"
	"github.com/teslashibe/go-voicelink/pkg/codec"
	"github.com/teslashibe/go-voicelink/pkg/loop"
	"github.com/teslashibe/go-voicelink/pkg/state"
)

const waitFor = 2 * time.Second

type transitions struct {
	st      *state.Vector
	started int
	idle    int
	bad     bool
}

func (l *transitions) OnPlaybackStarted() {
	l.started++
	if l.st.PlayingAudio {
		l.bad = true
	}
}

func (l *transitions) OnPlaybackIdle() { l.idle++ }

func setup(opts ...audioio.MockSinkOption) (*Queue, *loop.Manual, *audioio.MockSink, *transitions, *state.Vector) {
	clock := loop.NewManual(time.Now())
	sink := audioio.NewMockSink(audioio.DefaultConfig(), nil, opts...)
	st := &state.Vector{}
	l := &transitions{st: st}
	return New(clock, sink, l, st), clock, sink, l, st
}

// item returns a payload whose PCM starts with a recognisable marker.
func item(marker byte) Item {
	return Item{EncodedAudio: codec.EncodeBase64([]byte{marker, 0, marker, 0})}
}

func markerOf(t *testing.T, wav []byte) byte {
	t.Helper()
	if len(wav) <= codec.WAVHeaderSize {
		t.Fatalf("clip of %d bytes has no payload", len(wav))
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != DefaultSampleRate {
		t.Errorf("clip sample rate = %d", rate)
	}
	return wav[codec.WAVHeaderSize]
}

func TestFIFOWithCorruptFirstItem(t *testing.T) {
	q, clock, sink, l, st := setup()

	q.Enqueue(Item{EncodedAudio: "%%% not base64 %%%"})
	q.Enqueue(item(1))
	q.Enqueue(item(2))

	if !clock.Await(func() bool { return l.idle == 1 }, waitFor) {
		t.Fatal("queue never drained")
	}

	played := sink.Played()
	if len(played) != 2 {
		t.Fatalf("played %d clips, want 2", len(played))
	}
	if markerOf(t, played[0]) != 1 || markerOf(t, played[1]) != 2 {
		t.Errorf("played out of order: %d, %d", markerOf(t, played[0]), markerOf(t, played[1]))
	}
	if s := q.Stats(); s.Played != 2 || s.Skipped != 1 {
		t.Errorf("Stats() = %+v", s)
	}
	if l.started != 1 {
		t.Errorf("started = %d, want 1", l.started)
	}
	if st.PlayingAudio || q.Playing() {
		t.Error("still playing after idle")
	}
	if l.bad {
		t.Error("OnPlaybackStarted called after PlayingAudio was set")
	}
}

func TestSkipOnOpenAndPlayErrors(t *testing.T) {
	bad := errors.New("device busy")
	q, clock, sink, l, _ := setup(
		audioio.WithOpenError(func(wav []byte) error {
			if wav[codec.WAVHeaderSize] == 1 {
				return bad
			}
			return nil
		}),
		audioio.WithPlayError(func(wav []byte) error {
			if wav[codec.WAVHeaderSize] == 2 {
				return bad
			}
			return nil
		}),
	)

	q.Enqueue(item(1))
	q.Enqueue(item(2))
	q.Enqueue(item(3))

	if !clock.Await(func() bool { return l.idle == 1 }, waitFor) {
		t.Fatal("queue never drained")
	}

	played := sink.Played()
	if len(played) != 1 || markerOf(t, played[0]) != 3 {
		t.Fatalf("played = %d clips", len(played))
	}
	if s := sink.Stats(); s.OpenClips != 0 {
		t.Errorf("%d clips never released", s.OpenClips)
	}
	if s := q.Stats(); s.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", s.Skipped)
	}
}

func TestEmptyPayloadSkipped(t *testing.T) {
	q, clock, sink, l, _ := setup()

	q.Enqueue(Item{EncodedAudio: codec.EncodeBase64(nil)})
	q.Enqueue(Item{})
	q.Enqueue(item(7))

	if !clock.Await(func() bool { return l.idle == 1 }, waitFor) {
		t.Fatal("queue never drained")
	}
	if len(sink.Played()) != 1 {
		t.Errorf("played %d clips", len(sink.Played()))
	}
}

func TestAllItemsFailNeverStarts(t *testing.T) {
	q, _, _, l, st := setup()

	q.Enqueue(Item{EncodedAudio: "***"})
	if l.started != 0 || l.idle != 0 || st.PlayingAudio {
		t.Errorf("started=%d idle=%d playing=%v", l.started, l.idle, st.PlayingAudio)
	}
}

func TestEnqueueWhilePlaying(t *testing.T) {
	q, clock, sink, l, st := setup(audioio.WithPlayDuration(30 * time.Millisecond))

	q.Enqueue(item(1))
	if !st.PlayingAudio {
		t.Fatal("PlayingAudio not set on start")
	}
	q.Enqueue(item(2))
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1 waiting", q.Len())
	}

	if !clock.Await(func() bool { return l.idle == 1 }, waitFor) {
		t.Fatal("queue never drained")
	}
	if len(sink.Played()) != 2 || l.started != 1 {
		t.Errorf("played=%d started=%d", len(sink.Played()), l.started)
	}
}

func TestStopCancelsInFlight(t *testing.T) {
	q, clock, sink, l, st := setup(audioio.WithPlayDuration(time.Minute))

	q.Enqueue(item(1))
	q.Enqueue(item(2))
	q.Stop()

	if st.PlayingAudio || q.Playing() || q.Len() != 0 {
		t.Fatalf("after Stop: playing=%v len=%d", st.PlayingAudio, q.Len())
	}
	if !clock.Await(func() bool { return sink.Stats().OpenClips == 0 }, waitFor) {
		t.Fatal("cancelled clip never released")
	}
	if len(sink.Played()) != 0 {
		t.Errorf("played %d clips after Stop", len(sink.Played()))
	}
	if l.idle != 0 {
		t.Errorf("idle = %d, Stop is not a drain", l.idle)
	}
}

func TestClearKeepsCurrent(t *testing.T) {
	q, clock, sink, l, _ := setup(audioio.WithPlayDuration(20 * time.Millisecond))

	q.Enqueue(item(1))
	q.Enqueue(item(2))
	q.Clear()

	if !clock.Await(func() bool { return l.idle == 1 }, waitFor) {
		t.Fatal("queue never drained")
	}
	played := sink.Played()
	if len(played) != 1 || markerOf(t, played[0]) != 1 {
		t.Errorf("played %d clips", len(played))
	}
}

