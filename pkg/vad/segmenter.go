// Package vad decides when an utterance has ended. It watches the peak
// amplitude of each captured frame and signals end-of-utterance to a
// Committer once silence has lasted long enough. It never decides which
// samples are sent; every frame is transmitted by the caller.
package vad

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-voicelink/pkg/codec"
	"github.com/teslashibe/go-voicelink/pkg/loop"
)

// deferPadding is added to the remaining time of a too-short segment.
const deferPadding = 50 * time.Millisecond

// Config holds segmentation thresholds.
type Config struct {
	// SoundThreshold is the peak amplitude above which a frame has sound.
	SoundThreshold float64

	// SilenceDuration is how long silence must last before a commit is scheduled.
	SilenceDuration time.Duration

	// MinCommitGap is the minimum time between two commits.
	MinCommitGap time.Duration

	// CommitGrace delays the commit so a brief gap does not end the utterance.
	CommitGrace time.Duration

	// MinimumAudioLength is the shortest segment that may be committed.
	MinimumAudioLength time.Duration
}

// DefaultConfig returns the default segmentation thresholds.
func DefaultConfig() Config {
	return Config{
		SoundThreshold:     0.02,
		SilenceDuration:    300 * time.Millisecond,
		MinCommitGap:       time.Second,
		CommitGrace:        100 * time.Millisecond,
		MinimumAudioLength: 300 * time.Millisecond,
	}
}

// Segment is one utterance in progress.
type Segment struct {
	Samples   []int16
	StartedAt time.Time
	HasAudio  bool
}

// Duration returns the time elapsed from the first sound until now.
func (s Segment) Duration(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

// Committer receives end-of-utterance signals.
type Committer interface {
	// CanCommit reports whether a commit may be sent right now.
	CanCommit() bool

	// Commit ends the segment.
	Commit(seg Segment)
}

// Result describes one processed frame.
type Result struct {
	Peak           float32
	HasSound       bool
	SegmentStarted bool
}

// Segmenter tracks the active segment. It must only be used from the loop
// that its scheduler runs.
type Segmenter struct {
	cfg       Config
	sched     loop.Scheduler
	committer Committer
	logger    *slog.Logger

	active      bool
	segment     Segment
	generation  uint64
	silent      bool
	silentSince time.Time
	lastCommit  time.Time
	transmitted bool
	pending     loop.Timer
}

// New creates a segmenter.
func New(cfg Config, sched loop.Scheduler, committer Committer, logger *slog.Logger) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{
		cfg:       cfg,
		sched:     sched,
		committer: committer,
		logger:    logger.With("component", "vad"),
		silent:    true,
	}
}

// Process evaluates one frame. pcm is the quantised frame and transmitted
// reports whether the caller sent it to the server.
func (s *Segmenter) Process(frame []float32, pcm []int16, transmitted bool) Result {
	now := s.sched.Now()
	peak := codec.PeakAmplitude(frame)
	res := Result{
		Peak:     peak,
		HasSound: float64(peak) > s.cfg.SoundThreshold,
	}

	if transmitted {
		s.transmitted = true
		if s.active {
			s.segment.Samples = append(s.segment.Samples, pcm...)
		}
	}

	if res.HasSound {
		s.silent = false
		s.silentSince = now
		if !s.active {
			s.start(now, pcm, transmitted)
			res.SegmentStarted = true
		}
		return res
	}

	if s.silent || !s.active {
		return res
	}

	if now.Sub(s.silentSince) <= s.cfg.SilenceDuration {
		return res
	}
	s.silent = true

	if !s.lastCommit.IsZero() && now.Sub(s.lastCommit) <= s.cfg.MinCommitGap {
		s.logger.Debug("commit suppressed, too soon after previous",
			"since_last", now.Sub(s.lastCommit))
		return res
	}
	if !s.transmitted {
		return res
	}

	gen := s.generation
	s.schedule(s.cfg.CommitGrace, func() { s.graceElapsed(gen) })
	return res
}

func (s *Segmenter) start(now time.Time, pcm []int16, transmitted bool) {
	s.active = true
	s.generation++
	s.segment = Segment{StartedAt: now, HasAudio: true}
	if transmitted {
		s.segment.Samples = append([]int16(nil), pcm...)
	}
	s.logger.Debug("segment started", "generation", s.generation)
}

func (s *Segmenter) schedule(d time.Duration, fn func()) {
	if s.pending != nil {
		s.pending.Stop()
	}
	s.pending = s.sched.After(d, fn)
}

// stillDue reports whether a timer scheduled for generation gen may commit.
func (s *Segmenter) stillDue(gen uint64) bool {
	return s.active && s.generation == gen && s.silent && s.committer.CanCommit()
}

func (s *Segmenter) graceElapsed(gen uint64) {
	s.pending = nil
	if !s.stillDue(gen) {
		return
	}

	elapsed := s.segment.Duration(s.sched.Now())
	if elapsed < s.cfg.MinimumAudioLength {
		wait := s.cfg.MinimumAudioLength - elapsed + deferPadding
		s.logger.Debug("segment too short, deferring commit", "elapsed", elapsed, "wait", wait)
		s.schedule(wait, func() { s.deferredElapsed(gen) })
		return
	}
	s.commit()
}

func (s *Segmenter) deferredElapsed(gen uint64) {
	s.pending = nil
	if !s.stillDue(gen) {
		return
	}
	if s.segment.Duration(s.sched.Now()) < s.cfg.MinimumAudioLength {
		return
	}
	s.commit()
}

func (s *Segmenter) commit() {
	seg := s.segment
	now := s.sched.Now()

	s.active = false
	s.segment = Segment{}
	s.transmitted = false
	s.lastCommit = now

	s.logger.Debug("committing segment", "duration", seg.Duration(now), "samples", len(seg.Samples))
	s.committer.Commit(seg)
}

// Flush drops the active segment and cancels any pending commit.
func (s *Segmenter) Flush() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.active = false
	s.segment = Segment{}
	s.generation++
	s.silent = true
	s.transmitted = false
}

// Active reports whether a segment is in progress.
func (s *Segmenter) Active() bool {
	return s.active
}

// Current returns the active segment.
func (s *Segmenter) Current() (Segment, bool) {
	return s.segment, s.active
}
