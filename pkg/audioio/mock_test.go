package audioio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.FrameSize = 240 // 10ms at 24kHz
	return cfg
}

func TestMockSource_StartStop(t *testing.T) {
	src := NewMockSource(fastConfig(), nil)
	defer src.Close()

	ctx := context.Background()

	// Start should succeed
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Starting again should be a no-op
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}

	// Stop should succeed
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Stopping again should be a no-op
	if err := src.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}

	if src.Starts() != 2 {
		t.Errorf("Starts() = %d, want 2", src.Starts())
	}
}

func TestMockSource_Stream(t *testing.T) {
	cfg := fastConfig()
	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	frameCount := 0
	for frame := range src.Stream() {
		if len(frame.Samples) != cfg.FrameSize {
			t.Fatalf("Expected %d samples, got %d", cfg.FrameSize, len(frame.Samples))
		}
		if frame.SampleRate != cfg.SampleRate {
			t.Fatalf("Expected sample rate %d, got %d", cfg.SampleRate, frame.SampleRate)
		}
		frameCount++
	}

	if frameCount < 3 {
		t.Errorf("Expected at least 3 frames in 100ms, got %d", frameCount)
	}
}

func TestMockSource_SineWave(t *testing.T) {
	src := NewMockSource(fastConfig(), nil, WithSineWave(440, 0.5))
	defer src.Close()

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	frame := <-src.Stream()

	// Verify samples are not all zero (sine wave should have non-zero values)
	hasNonZero := false
	for _, s := range frame.Samples {
		if s != 0 {
			hasNonZero = true
		}
		if s > 0.5 || s < -0.5 {
			t.Fatalf("sample %v exceeds amplitude", s)
		}
	}

	if !hasNonZero {
		t.Error("Expected non-zero samples from sine wave generator")
	}
}

func TestMockSource_Script(t *testing.T) {
	loud := []float32{0.9, -0.9}
	src := NewMockSource(fastConfig(), nil, WithScript(loud, loud))
	defer src.Close()

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		frame := <-src.Stream()
		if len(frame.Samples) != 2 || frame.Samples[0] != 0.9 {
			t.Fatalf("frame %d = %v, want scripted", i, frame.Samples)
		}
	}

	frame := <-src.Stream()
	if len(frame.Samples) != 240 {
		t.Errorf("after script, got %d samples, want generated frame", len(frame.Samples))
	}
}

func TestMockSource_StartError(t *testing.T) {
	denied := errors.New("permission denied")
	src := NewMockSource(fastConfig(), nil, WithStartError(denied))
	defer src.Close()

	if err := src.Start(context.Background()); !errors.Is(err, denied) {
		t.Fatalf("Start error = %v, want %v", err, denied)
	}
	if src.Running() {
		t.Error("source running after failed start")
	}
}

func TestMockSource_Push(t *testing.T) {
	src := NewMockSource(fastConfig(), nil, WithManualFrames())
	defer src.Close()

	if src.Push([]float32{0.1}) {
		t.Fatal("Push succeeded before Start")
	}
	if err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !src.Push([]float32{0.1}) {
		t.Fatal("Push failed while running")
	}

	frame := <-src.Stream()
	if len(frame.Samples) != 1 {
		t.Errorf("got %d samples", len(frame.Samples))
	}
}

func TestMockSource_Close(t *testing.T) {
	src := NewMockSource(fastConfig(), nil)

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Close should succeed
	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Start after close should fail
	if err := src.Start(ctx); err != io.ErrClosedPipe {
		t.Errorf("Expected ErrClosedPipe after close, got: %v", err)
	}

	// Closing again should be a no-op
	if err := src.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}
}

func TestMockSink_OpenPlayClose(t *testing.T) {
	sink := NewMockSink(fastConfig(), nil)
	defer sink.Close()

	clip, err := sink.Open([]byte("RIFF-one"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := clip.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	stats := sink.Stats()
	if stats.OpenClips != 1 {
		t.Errorf("OpenClips = %d, want 1 before Close", stats.OpenClips)
	}

	clip.Close()
	clip.Close()

	stats = sink.Stats()
	if stats.ClipsOpened != 1 || stats.ClipsPlayed != 1 || stats.OpenClips != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if played := sink.Played(); len(played) != 1 || string(played[0]) != "RIFF-one" {
		t.Errorf("Played() = %q", played)
	}
}

func TestMockSink_Failures(t *testing.T) {
	bad := errors.New("bad clip")
	sink := NewMockSink(fastConfig(), nil,
		WithOpenError(func(wav []byte) error {
			if string(wav) == "open-fail" {
				return bad
			}
			return nil
		}),
		WithPlayError(func(wav []byte) error {
			if string(wav) == "play-fail" {
				return bad
			}
			return nil
		}),
	)

	if _, err := sink.Open([]byte("open-fail")); !errors.Is(err, bad) {
		t.Errorf("Open error = %v", err)
	}

	clip, err := sink.Open([]byte("play-fail"))
	if err != nil {
		t.Fatal(err)
	}
	if err := clip.Play(context.Background()); !errors.Is(err, bad) {
		t.Errorf("Play error = %v", err)
	}
	clip.Close()

	stats := sink.Stats()
	if stats.ClipsFailed != 2 || stats.ClipsPlayed != 0 || stats.OpenClips != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestMockSink_PlayCancelled(t *testing.T) {
	sink := NewMockSink(fastConfig(), nil, WithPlayDuration(time.Second))
	clip, err := sink.Open([]byte("long"))
	if err != nil {
		t.Fatal(err)
	}
	defer clip.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := clip.Play(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Play error = %v, want deadline exceeded", err)
	}
}

func TestFrameFromPCM16(t *testing.T) {
	data := []byte{0x00, 0x40, 0x00, 0xC0, 0x00, 0x00}
	frame := FrameFromPCM16(data, 24000, time.Time{})

	want := []float32{0.5, -0.5, 0}
	if len(frame.Samples) != len(want) {
		t.Fatalf("got %d samples", len(frame.Samples))
	}
	for i := range want {
		if frame.Samples[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, frame.Samples[i], want[i])
		}
	}
}

func TestFrame_Duration(t *testing.T) {
	frame := Frame{Samples: make([]float32, 480), SampleRate: 24000}
	if d := frame.Duration(); d != 20*time.Millisecond {
		t.Errorf("Duration = %v, want 20ms", d)
	}
}
