package metrics

import (
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time                 { return c.t }
func (c *clock) advance(d time.Duration)        { c.t = c.t.Add(d) }
func (c *clock) step(d time.Duration, f func()) { c.advance(d); f() }

func TestTurnLatencies(t *testing.T) {
	clk := &clock{t: time.Unix(1000, 0)}
	c := NewCollector(clk.now)

	c.MarkCommit()
	clk.step(120*time.Millisecond, c.MarkText)
	clk.step(10*time.Millisecond, c.MarkText)
	clk.step(30*time.Millisecond, c.MarkAudio)
	clk.step(5*time.Millisecond, c.MarkPlaybackStart)
	clk.step(20*time.Millisecond, c.MarkAudio)
	clk.step(5*time.Millisecond, c.MarkPlaybackStart)
	clk.advance(300 * time.Millisecond)

	turn, ok := c.MarkResponseDone()
	if !ok {
		t.Fatal("MarkResponseDone reported no open turn")
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"first text", turn.FirstText, 120 * time.Millisecond},
		{"first audio", turn.FirstAudio, 160 * time.Millisecond},
		{"playback start", turn.PlaybackStart, 165 * time.Millisecond},
		{"total", turn.Total, 490 * time.Millisecond},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if turn.TextDeltas != 2 || turn.AudioDeltas != 2 {
		t.Errorf("deltas text=%d audio=%d, want 2 and 2", turn.TextDeltas, turn.AudioDeltas)
	}
}

func TestMarksIgnoredWithoutCommit(t *testing.T) {
	c := NewCollector(nil)
	c.MarkText()
	c.MarkAudio()
	c.MarkPlaybackStart()
	if _, ok := c.MarkResponseDone(); ok {
		t.Error("response done without commit should not archive a turn")
	}
	if c.Turns() != 0 {
		t.Errorf("Turns() = %d, want 0", c.Turns())
	}

	c.MarkCommit()
	c.Abandon()
	if _, ok := c.MarkResponseDone(); ok {
		t.Error("abandoned turn should not be archived")
	}
}

func TestAverageSkipsMissingStages(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	c := NewCollector(clk.now)

	// Text-only turn
	c.MarkCommit()
	clk.step(100*time.Millisecond, c.MarkText)
	clk.advance(100 * time.Millisecond)
	c.MarkResponseDone()

	c.MarkCommit()
	clk.step(300*time.Millisecond, c.MarkText)
	clk.step(100*time.Millisecond, c.MarkAudio)
	clk.advance(200 * time.Millisecond)
	c.MarkResponseDone()

	avg := c.Average()
	if avg.FirstText != 200*time.Millisecond {
		t.Errorf("FirstText = %v, want 200ms", avg.FirstText)
	}
	if avg.FirstAudio != 400*time.Millisecond {
		t.Errorf("FirstAudio = %v, want 400ms", avg.FirstAudio)
	}
	if avg.PlaybackStart != 0 {
		t.Errorf("PlaybackStart = %v, want 0", avg.PlaybackStart)
	}
	if avg.Total != 400*time.Millisecond {
		t.Errorf("Total = %v, want 400ms", avg.Total)
	}
}

func TestHistoryBounded(t *testing.T) {
	c := NewCollector(nil)
	for i := 0; i < historySize+5; i++ {
		c.MarkCommit()
		c.MarkResponseDone()
	}
	if c.Turns() != historySize {
		t.Errorf("Turns() = %d, want %d", c.Turns(), historySize)
	}
}

func TestSummary(t *testing.T) {
	turn := Turn{FirstText: 1234567 * time.Nanosecond, Total: 2 * time.Second}
	want := "1ms text | ---ms audio | ---ms play | 2s total"
	if got := turn.Summary(); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}
