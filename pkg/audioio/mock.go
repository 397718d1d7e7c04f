package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock audio source for testing.
// It generates synthetic audio (silence or sine wave) or replays scripted frames.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan Frame
	stopCh   chan struct{}
	starts   int

	// Stats
	framesRead atomic.Int64

	// Synthetic audio generation
	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0

	script   [][]float32
	startErr error
	manual   bool
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithScript makes the mock replay the given frames, then fall back to
// synthetic audio.
func WithScript(frames ...[]float32) MockSourceOption {
	return func(m *MockSource) {
		m.script = append(m.script, frames...)
	}
}

// WithStartError makes Start fail, simulating a denied or missing microphone.
func WithStartError(err error) MockSourceOption {
	return func(m *MockSource) {
		m.startErr = err
	}
}

// WithManualFrames disables the ticker; frames are only delivered via Push.
func WithManualFrames() MockSourceOption {
	return func(m *MockSource) {
		m.manual = true
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		streamCh:  make(chan Frame, 10),
		stopCh:    make(chan struct{}),
		frequency: 0, // Silence by default
		amplitude: 0.5,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.starts++
	if m.closed {
		return io.ErrClosedPipe
	}
	if m.startErr != nil {
		return m.startErr
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.streamCh = make(chan Frame, 10)

	if !m.manual {
		go m.generateLoop(ctx, m.streamCh, m.stopCh)
	}

	m.logger.Info("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"frequency", m.frequency,
		"scripted", len(m.script),
	)

	return nil
}

func (m *MockSource) generateLoop(ctx context.Context, out chan Frame, stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.FrameDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			frame := m.nextFrameLocked()
			m.mu.Unlock()
			select {
			case out <- frame:
				m.framesRead.Add(1)
			case <-stop:
				return
			default:
				// Buffer full, drop frame (overrun)
				m.logger.Debug("mock source: buffer full, dropping frame")
			}
		}
	}
}

func (m *MockSource) nextFrameLocked() Frame {
	if len(m.script) > 0 {
		samples := m.script[0]
		m.script = m.script[1:]
		return Frame{Samples: samples, SampleRate: m.cfg.SampleRate, Captured: time.Now()}
	}

	samples := make([]float32, m.cfg.FrameSize)
	if m.frequency > 0 {
		// Generate sine wave
		for i := range samples {
			samples[i] = float32(m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate)))
			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}
	// else: samples are already zero (silence)

	return Frame{Samples: samples, SampleRate: m.cfg.SampleRate, Captured: time.Now()}
}

// Push delivers one frame, blocking while the stream buffer is full. It
// reports false when the source is not running.
func (m *MockSource) Push(samples []float32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return false
	}
	m.streamCh <- Frame{Samples: samples, SampleRate: m.cfg.SampleRate, Captured: time.Now()}
	m.framesRead.Add(1)
	return true
}

// Stop halts audio generation.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	close(m.stopCh)
	close(m.streamCh)

	m.logger.Info("mock audio source stopped")

	return nil
}

// Stream returns the frame channel.
func (m *MockSource) Stream() <-chan Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCh
}

// Starts returns how many times Start was called.
func (m *MockSource) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Running reports whether the source is capturing.
func (m *MockSource) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return string(BackendMock)
}

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.Stop()
	return nil
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		FramesRead: m.framesRead.Load(),
		Running:    running,
		Backend:    string(BackendMock),
	}
}

// Ensure MockSource implements SourceWithStats.
var _ SourceWithStats = (*MockSource)(nil)

// MockSink is a mock audio sink for testing.
// It records every clip it is asked to play and never touches hardware.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	played  [][]byte
	opened  int64
	failed  int64
	live    int64
	openErr func(wav []byte) error
	playErr func(wav []byte) error
	hold    time.Duration
}

// MockSinkOption configures a MockSink.
type MockSinkOption func(*MockSink)

// WithOpenError makes Open fail whenever fn returns an error.
func WithOpenError(fn func(wav []byte) error) MockSinkOption {
	return func(m *MockSink) { m.openErr = fn }
}

// WithPlayError makes Play fail whenever fn returns an error.
func WithPlayError(fn func(wav []byte) error) MockSinkOption {
	return func(m *MockSink) { m.playErr = fn }
}

// WithPlayDuration makes each Play block for d of real time.
func WithPlayDuration(d time.Duration) MockSinkOption {
	return func(m *MockSink) { m.hold = d }
}

// NewMockSink creates a new mock audio sink.
func NewMockSink(cfg Config, logger *slog.Logger, opts ...MockSinkOption) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSink{
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open prepares a clip.
func (m *MockSink) Open(wav []byte) (Clip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, io.ErrClosedPipe
	}
	if m.openErr != nil {
		if err := m.openErr(wav); err != nil {
			m.failed++
			return nil, err
		}
	}

	m.opened++
	m.live++
	return &mockClip{sink: m, wav: append([]byte(nil), wav...)}, nil
}

// Played returns the clips that played to completion, in order.
func (m *MockSink) Played() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.played))
	copy(out, m.played)
	return out
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return string(BackendMock)
}

// Close releases resources.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Stats returns sink statistics.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return SinkStats{
		ClipsOpened: m.opened,
		ClipsPlayed: int64(len(m.played)),
		ClipsFailed: m.failed,
		OpenClips:   m.live,
		Backend:     string(BackendMock),
	}
}

// Ensure MockSink implements SinkWithStats.
var _ SinkWithStats = (*MockSink)(nil)

type mockClip struct {
	sink   *MockSink
	wav    []byte
	closed atomic.Bool
}

func (c *mockClip) Play(ctx context.Context) error {
	c.sink.mu.Lock()
	playErr, hold := c.sink.playErr, c.sink.hold
	c.sink.mu.Unlock()

	if playErr != nil {
		if err := playErr(c.wav); err != nil {
			c.sink.mu.Lock()
			c.sink.failed++
			c.sink.mu.Unlock()
			return err
		}
	}

	if hold > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(hold):
		}
	}

	c.sink.mu.Lock()
	c.sink.played = append(c.sink.played, c.wav)
	c.sink.mu.Unlock()
	return nil
}

func (c *mockClip) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.sink.mu.Lock()
	c.sink.live--
	c.sink.mu.Unlock()
	return nil
}
