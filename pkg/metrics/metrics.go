// Package metrics tracks per-turn latency of the assistant round trip.
// Every duration is measured from the commit that ended the user's turn.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const historySize = 100

// Turn is the timing record of one committed utterance.
type Turn struct {
	CommitTime        time.Time `json:"commit_time"`
	FirstTextTime     time.Time `json:"first_text_time"`
	FirstAudioTime    time.Time `json:"first_audio_time"`
	PlaybackStartTime time.Time `json:"playback_start_time"`
	DoneTime          time.Time `json:"done_time"`

	FirstText     time.Duration `json:"first_text_ns"`
	FirstAudio    time.Duration `json:"first_audio_ns"`
	PlaybackStart time.Duration `json:"playback_start_ns"`
	Total         time.Duration `json:"total_ns"`

	TextDeltas  int `json:"text_deltas"`
	AudioDeltas int `json:"audio_deltas"`
}

// Summary renders the latencies on one line.
func (t Turn) Summary() string {
	return format(t.FirstText) + " text | " +
		format(t.FirstAudio) + " audio | " +
		format(t.PlaybackStart) + " play | " +
		format(t.Total) + " total"
}

func format(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}

// Collector records turns. It is safe for concurrent use so that readers
// off the event loop can query it.
type Collector struct {
	mu      sync.Mutex
	now     func() time.Time
	current Turn
	active  bool
	history []Turn
	prom    *promMetrics
}

// Option configures a Collector.
type Option func(*options)

type options struct {
	reg prometheus.Registerer
}

// WithRegisterer registers the collector's Prometheus metrics with reg.
// Without it the metrics are kept but never exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

// NewCollector returns a collector using now as its clock. A nil now uses
// time.Now.
func NewCollector(now func() time.Time, opts ...Option) *Collector {
	if now == nil {
		now = time.Now
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Collector{
		now:     now,
		history: make([]Turn, 0, historySize),
		prom:    newPromMetrics(o.reg),
	}
}

// MarkCommit starts a new turn.
func (c *Collector) MarkCommit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = Turn{CommitTime: c.now()}
	c.active = true
}

// MarkText records a text delta.
func (c *Collector) MarkText() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.current.TextDeltas++
	if c.current.FirstTextTime.IsZero() {
		c.current.FirstTextTime = c.now()
		c.current.FirstText = c.current.FirstTextTime.Sub(c.current.CommitTime)
	}
}

// MarkAudio records an audio delta.
func (c *Collector) MarkAudio() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.current.AudioDeltas++
	if c.current.FirstAudioTime.IsZero() {
		c.current.FirstAudioTime = c.now()
		c.current.FirstAudio = c.current.FirstAudioTime.Sub(c.current.CommitTime)
	}
}

// MarkPlaybackStart records when the speaker started.
func (c *Collector) MarkPlaybackStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || !c.current.PlaybackStartTime.IsZero() {
		return
	}
	c.current.PlaybackStartTime = c.now()
	c.current.PlaybackStart = c.current.PlaybackStartTime.Sub(c.current.CommitTime)
}

// MarkResponseDone closes the turn, archives it and returns it. ok is false
// when no turn was open.
func (c *Collector) MarkResponseDone() (Turn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return Turn{}, false
	}
	c.current.DoneTime = c.now()
	c.current.Total = c.current.DoneTime.Sub(c.current.CommitTime)
	c.active = false

	c.history = append(c.history, c.current)
	if len(c.history) > historySize {
		c.history = c.history[1:]
	}
	c.prom.record(c.current)
	return c.current, true
}

// Abandon drops the open turn, for example after a disconnect.
func (c *Collector) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		c.prom.abandoned.Inc()
	}
	c.active = false
}

// Current returns the open or most recent turn.
func (c *Collector) Current() Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Turns returns the number of completed turns retained.
func (c *Collector) Turns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Average returns mean latencies over the retained turns. Stages a turn
// never reached are left out of that stage's mean.
func (c *Collector) Average() Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	var avg Turn
	var nText, nAudio, nPlay time.Duration
	for _, h := range c.history {
		if h.FirstText > 0 {
			avg.FirstText += h.FirstText
			nText++
		}
		if h.FirstAudio > 0 {
			avg.FirstAudio += h.FirstAudio
			nAudio++
		}
		if h.PlaybackStart > 0 {
			avg.PlaybackStart += h.PlaybackStart
			nPlay++
		}
		avg.Total += h.Total
	}

	if nText > 0 {
		avg.FirstText /= nText
	}
	if nAudio > 0 {
		avg.FirstAudio /= nAudio
	}
	if nPlay > 0 {
		avg.PlaybackStart /= nPlay
	}
	if n := time.Duration(len(c.history)); n > 0 {
		avg.Total /= n
	}
	return avg
}
