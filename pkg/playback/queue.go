// Package playback plays assistant audio strictly in arrival order. A
// failure at any item skips to the next one; the queue never stalls.
package playback

import (
	"context"
	"errors"
	"log/slog"

	"github.com/teslashibe/go-voicelink/pkg/audioio"
	"github.com/teslashibe/go-voicelink/pkg/codec"
	"github.com/teslashibe/go-voicelink/pkg/loop"
	"github.com/teslashibe/go-voicelink/pkg/state"
)

// DefaultSampleRate is the rate of assistant audio.
const DefaultSampleRate = 24000

var errEmptyAudio = errors.New("playback: empty audio payload")

// Item is one complete response's audio.
type Item struct {
	EncodedAudio string
}

// Listener receives playback transitions. Both run on the event loop.
type Listener interface {
	// OnPlaybackStarted is called before the queue leaves idle.
	OnPlaybackStarted()

	// OnPlaybackIdle is called once the last item has finished.
	OnPlaybackIdle()
}

// Stats counts processed items.
type Stats struct {
	Played  int
	Skipped int
}

// Queue is a FIFO of playback items. It is the only writer of the
// PlayingAudio field of the state vector. All methods must be called on the
// event loop.
type Queue struct {
	sched      loop.Scheduler
	sink       audioio.Sink
	listener   Listener
	state      *state.Vector
	logger     *slog.Logger
	sampleRate int

	items   []Item
	playing bool
	seq     uint64
	cancel  context.CancelFunc
	stats   Stats
}

// Option configures a Queue.
type Option func(*Queue)

// WithSampleRate sets the rate used for the WAV container.
func WithSampleRate(rate int) Option {
	return func(q *Queue) { q.sampleRate = rate }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// New creates a queue that plays through sink.
func New(sched loop.Scheduler, sink audioio.Sink, listener Listener, st *state.Vector, opts ...Option) *Queue {
	q := &Queue{
		sched:      sched,
		sink:       sink,
		listener:   listener,
		state:      st,
		logger:     slog.Default(),
		sampleRate: DefaultSampleRate,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("component", "playback")
	return q
}

// Enqueue appends an item and starts playback if the queue is idle.
func (q *Queue) Enqueue(item Item) {
	if item.EncodedAudio == "" {
		return
	}
	q.items = append(q.items, item)
	if !q.playing {
		q.playNext()
	}
}

// Len returns the number of items waiting behind the current one.
func (q *Queue) Len() int {
	return len(q.items)
}

// Playing reports whether an item is in flight.
func (q *Queue) Playing() bool {
	return q.playing
}

// Stats returns processed item counts.
func (q *Queue) Stats() Stats {
	return q.stats
}

// Clear drops pending items. The item in flight finishes normally.
func (q *Queue) Clear() {
	q.items = nil
}

// Stop drops pending items and cancels the item in flight.
func (q *Queue) Stop() {
	q.items = nil
	q.seq++
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	q.setPlaying(false)
}

func (q *Queue) playNext() {
	for len(q.items) > 0 {
		item := q.items[0]
		q.items = q.items[1:]

		clip, err := q.prepare(item)
		if err != nil {
			q.stats.Skipped++
			q.logger.Warn("skipping playback item", "error", err)
			continue
		}

		q.setPlaying(true)
		q.seq++
		seq := q.seq
		ctx, cancel := context.WithCancel(context.Background())
		q.cancel = cancel

		go func() {
			err := clip.Play(ctx)
			q.sched.Post(func() { q.finished(seq, clip, err) })
		}()
		return
	}

	if q.playing {
		q.setPlaying(false)
		q.listener.OnPlaybackIdle()
	}
}

func (q *Queue) prepare(item Item) (audioio.Clip, error) {
	pcm, err := codec.DecodeBase64(item.EncodedAudio)
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, errEmptyAudio
	}
	return q.sink.Open(codec.WAVFromPCM(pcm, q.sampleRate))
}

func (q *Queue) finished(seq uint64, clip audioio.Clip, err error) {
	if cerr := clip.Close(); cerr != nil {
		q.logger.Warn("releasing clip failed", "error", cerr)
	}
	if seq != q.seq {
		return
	}
	q.cancel()
	q.cancel = nil

	if err != nil {
		q.stats.Skipped++
		q.logger.Warn("playback failed, continuing with next item", "error", err)
	} else {
		q.stats.Played++
	}
	q.playNext()
}

func (q *Queue) setPlaying(playing bool) {
	if playing == q.playing {
		return
	}
	if playing {
		q.listener.OnPlaybackStarted()
	}
	q.playing = playing
	q.state.PlayingAudio = playing
}
