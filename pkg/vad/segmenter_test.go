package vad

import (
	"testing"
	"time"

	"github.com/teslashibe/go-voicelink/pkg/loop"
)

type recordingCommitter struct {
	allow   bool
	commits []Segment
	times   []time.Time
	clock   loop.Scheduler
}

func (c *recordingCommitter) CanCommit() bool { return c.allow }

func (c *recordingCommitter) Commit(seg Segment) {
	c.commits = append(c.commits, seg)
	c.times = append(c.times, c.clock.Now())
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func frame(amplitude float32, n int) []float32 {
	f := make([]float32, n)
	for i := range f {
		if i%2 == 0 {
			f[i] = amplitude
		} else {
			f[i] = -amplitude
		}
	}
	return f
}

func pcm(n int) []int16 { return make([]int16, n) }

func setup(cfg Config) (*Segmenter, *loop.Manual, *recordingCommitter) {
	clock := loop.NewManual(epoch)
	c := &recordingCommitter{allow: true, clock: clock}
	return New(cfg, clock, c, nil), clock, c
}

func TestProcessDetectsSound(t *testing.T) {
	seg, _, _ := setup(DefaultConfig())

	tests := []struct {
		name      string
		amplitude float32
		wantSound bool
	}{
		{"silence", 0, false},
		{"below threshold", 0.01, false},
		{"at threshold", 0.02, false},
		{"above threshold", 0.3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := seg.Process(frame(tt.amplitude, 8), pcm(8), true)
			if res.HasSound != tt.wantSound {
				t.Errorf("HasSound = %v, want %v (peak %v)", res.HasSound, tt.wantSound, res.Peak)
			}
		})
	}
}

func TestSegmentStartsOnFirstSound(t *testing.T) {
	seg, _, _ := setup(DefaultConfig())

	if res := seg.Process(frame(0, 4), pcm(4), true); res.SegmentStarted {
		t.Fatal("silent frame started a segment")
	}
	if seg.Active() {
		t.Fatal("segment active before sound")
	}

	res := seg.Process(frame(0.5, 4), pcm(4), true)
	if !res.SegmentStarted {
		t.Fatal("loud frame did not start a segment")
	}
	res = seg.Process(frame(0.5, 4), pcm(4), true)
	if res.SegmentStarted {
		t.Error("second loud frame started another segment")
	}

	cur, ok := seg.Current()
	if !ok || !cur.HasAudio {
		t.Fatalf("Current() = %+v, %v", cur, ok)
	}
	if len(cur.Samples) != 8 {
		t.Errorf("segment holds %d samples, want 8", len(cur.Samples))
	}
	if !cur.StartedAt.Equal(epoch) {
		t.Errorf("StartedAt = %v, want %v", cur.StartedAt, epoch)
	}
}

func TestCommitAfterSilenceAndGrace(t *testing.T) {
	seg, clock, c := setup(DefaultConfig())

	seg.Process(frame(0.5, 4), pcm(4), true)
	clock.Advance(200 * time.Millisecond)
	seg.Process(frame(0.5, 4), pcm(4), true)

	// 300ms of silence is not yet more than SilenceDuration.
	clock.Advance(300 * time.Millisecond)
	seg.Process(frame(0, 4), pcm(4), true)
	if clock.Pending() != 0 {
		t.Fatal("commit scheduled before silence exceeded the threshold")
	}

	clock.Advance(50 * time.Millisecond)
	seg.Process(frame(0, 4), pcm(4), true)
	if len(c.commits) != 0 {
		t.Fatal("commit sent before grace delay")
	}

	clock.Advance(100 * time.Millisecond)
	if len(c.commits) != 1 {
		t.Fatalf("got %d commits, want 1", len(c.commits))
	}
	if seg.Active() {
		t.Error("segment still active after commit")
	}
	if got := c.times[0].Sub(epoch); got != 650*time.Millisecond {
		t.Errorf("commit at %v, want 650ms", got)
	}
}

func TestGraceCancelledBySound(t *testing.T) {
	seg, clock, c := setup(DefaultConfig())

	seg.Process(frame(0.5, 4), pcm(4), true)
	clock.Advance(400 * time.Millisecond)
	seg.Process(frame(0, 4), pcm(4), true)

	clock.Advance(50 * time.Millisecond)
	seg.Process(frame(0.5, 4), pcm(4), true)

	clock.Advance(100 * time.Millisecond)
	if len(c.commits) != 0 {
		t.Fatalf("got %d commits after sound resumed, want 0", len(c.commits))
	}
	if !seg.Active() {
		t.Error("segment should remain active")
	}
}

func TestShortSegmentCommitDeferred(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SilenceDuration = 50 * time.Millisecond
	seg, clock, c := setup(cfg)

	seg.Process(frame(0.5, 4), pcm(4), true)
	clock.Advance(100 * time.Millisecond)
	seg.Process(frame(0, 4), pcm(4), true)

	// Grace fires at 200ms, 100ms short of the minimum length.
	clock.Advance(100 * time.Millisecond)
	seg.Process(frame(0, 4), pcm(4), true)
	if len(c.commits) != 0 {
		t.Fatal("short segment committed at grace time")
	}

	clock.Advance(149 * time.Millisecond)
	if len(c.commits) != 0 {
		t.Fatal("short segment committed before deferral elapsed")
	}

	clock.Advance(time.Millisecond)
	if len(c.commits) != 1 {
		t.Fatalf("got %d commits, want 1", len(c.commits))
	}
	if got := c.times[0].Sub(c.commits[0].StartedAt); got < cfg.MinimumAudioLength {
		t.Errorf("committed segment length %v < %v", got, cfg.MinimumAudioLength)
	}
	if got := c.times[0].Sub(epoch); got != 350*time.Millisecond {
		t.Errorf("commit at %v, want 350ms", got)
	}
}

func TestNoDuplicateCommitWithinGap(t *testing.T) {
	seg, clock, c := setup(DefaultConfig())
	step := 85 * time.Millisecond

	for i := 0; i < 3; i++ {
		seg.Process(frame(0.5, 4), pcm(4), true)
		clock.Advance(step)
	}
	for i := 0; i < 10; i++ {
		seg.Process(frame(0, 4), pcm(4), true)
		clock.Advance(step)
	}
	if len(c.commits) != 1 {
		t.Fatalf("got %d commits, want 1", len(c.commits))
	}

	// A second short utterance inside the gap does not commit.
	seg.Process(frame(0.5, 4), pcm(4), true)
	for i := 0; i < 5; i++ {
		clock.Advance(step)
		seg.Process(frame(0, 4), pcm(4), true)
	}
	clock.Advance(time.Second)
	if len(c.commits) != 1 {
		t.Fatalf("got %d commits within the gap window, want 1", len(c.commits))
	}
}

func TestCommitRequiresTransmittedAudio(t *testing.T) {
	seg, clock, c := setup(DefaultConfig())

	seg.Process(frame(0.5, 4), pcm(4), false)
	clock.Advance(400 * time.Millisecond)
	seg.Process(frame(0, 4), pcm(4), false)
	clock.Advance(time.Second)

	if len(c.commits) != 0 {
		t.Fatalf("committed a segment that was never transmitted")
	}
}

func TestCommitBlockedByCommitter(t *testing.T) {
	seg, clock, c := setup(DefaultConfig())
	c.allow = false

	seg.Process(frame(0.5, 4), pcm(4), true)
	clock.Advance(400 * time.Millisecond)
	seg.Process(frame(0, 4), pcm(4), true)
	clock.Advance(time.Second)

	if len(c.commits) != 0 {
		t.Fatal("committed while committer refused")
	}
}

func TestFlushCancelsPendingCommit(t *testing.T) {
	seg, clock, c := setup(DefaultConfig())

	seg.Process(frame(0.5, 4), pcm(4), true)
	clock.Advance(400 * time.Millisecond)
	seg.Process(frame(0, 4), pcm(4), true)
	seg.Flush()

	clock.Advance(time.Second)
	if len(c.commits) != 0 {
		t.Fatal("commit sent after Flush")
	}
	if seg.Active() {
		t.Error("segment active after Flush")
	}
	if clock.Pending() != 0 {
		t.Errorf("%d timers still armed", clock.Pending())
	}
}

func TestStaleTimerIgnoredForNewSegment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SilenceDuration = 50 * time.Millisecond
	seg, clock, c := setup(cfg)

	seg.Process(frame(0.5, 4), pcm(4), true)
	clock.Advance(100 * time.Millisecond)
	seg.Process(frame(0, 4), pcm(4), true)

	// Grace deferral is armed for the first segment; flushing and starting
	// again must not let it commit the second one early.
	clock.Advance(100 * time.Millisecond)
	seg.Flush()
	seg.Process(frame(0.5, 4), pcm(4), true)

	clock.Advance(150 * time.Millisecond)
	if len(c.commits) != 0 {
		t.Fatalf("stale timer committed new segment")
	}
}
