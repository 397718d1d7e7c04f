package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	clk := &clock{t: time.Unix(0, 0)}
	c := NewCollector(clk.now, WithRegisterer(reg))

	c.MarkCommit()
	clk.step(100*time.Millisecond, c.MarkText)
	clk.step(100*time.Millisecond, c.MarkText)
	clk.step(100*time.Millisecond, c.MarkAudio)
	c.MarkResponseDone()

	c.MarkCommit()
	c.Abandon()
	c.Abandon()

	if got := testutil.ToFloat64(c.prom.turns); got != 1 {
		t.Errorf("turns = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.prom.abandoned); got != 1 {
		t.Errorf("abandoned = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.prom.deltas.WithLabelValues("text")); got != 2 {
		t.Errorf("text deltas = %v, want 2", got)
	}
	// first_text, first_audio and total; playback never started
	if n := testutil.CollectAndCount(c.prom.latency); n != 3 {
		t.Errorf("latency series = %d, want 3", n)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"voicelink_turns_total", "voicelink_turn_latency_seconds"} {
		if !names[want] {
			t.Errorf("%s not registered", want)
		}
	}
}

func TestUnregisteredCollectorsAreIndependent(t *testing.T) {
	a := NewCollector(nil)
	b := NewCollector(nil)
	a.MarkCommit()
	a.MarkResponseDone()
	if got := testutil.ToFloat64(b.prom.turns); got != 0 {
		t.Errorf("second collector turns = %v, want 0", got)
	}
}
