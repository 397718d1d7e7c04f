package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Binaries used by the exec backend.
const (
	recordBinary = "arecord"
	playBinary   = "aplay"
)

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// execAvailable reports whether both alsa-utils binaries are on PATH.
func execAvailable() bool {
	if _, err := lookPath(recordBinary); err != nil {
		return false
	}
	if _, err := lookPath(playBinary); err != nil {
		return false
	}
	return true
}

// recordArgs builds the arecord command line for raw mono PCM16 on stdout.
func recordArgs(cfg Config) []string {
	args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", strconv.Itoa(cfg.SampleRate)}
	if cfg.Device != "" {
		args = append(args, "-D", cfg.Device)
	}
	return args
}

// playArgs builds the aplay command line for one WAV file.
func playArgs(cfg Config, path string) []string {
	args := []string{"-q"}
	if cfg.Device != "" {
		args = append(args, "-D", cfg.Device)
	}
	return append(args, path)
}

// ExecSource captures the microphone through an arecord subprocess.
type ExecSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	streamCh chan Frame
	done     chan struct{}

	framesRead atomic.Int64
	overruns   atomic.Int64
}

// NewExecSource creates an arecord-backed source.
func NewExecSource(cfg Config, logger *slog.Logger) (*ExecSource, error) {
	if _, err := lookPath(recordBinary); err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrUnsupported, recordBinary)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecSource{
		cfg:      cfg,
		logger:   logger,
		streamCh: make(chan Frame),
	}, nil
}

// Start launches arecord and begins delivering frames.
func (s *ExecSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	cmd := exec.CommandContext(ctx, recordBinary, recordArgs(s.cfg)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", recordBinary, err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.running = true
	s.streamCh = make(chan Frame, 10)
	s.done = make(chan struct{})

	go s.readLoop(stdout, s.streamCh, s.done)

	s.logger.Info("exec audio source started",
		"sample_rate", s.cfg.SampleRate,
		"frame_size", s.cfg.FrameSize,
		"device", s.cfg.Device,
	)
	return nil
}

func (s *ExecSource) readLoop(r io.Reader, out chan<- Frame, done <-chan struct{}) {
	defer close(out)

	buf := make([]byte, s.cfg.FrameBytes())
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Debug("exec source read ended", "error", err)
			}
			return
		}

		frame := FrameFromPCM16(buf, s.cfg.SampleRate, time.Now())
		select {
		case out <- frame:
			s.framesRead.Add(1)
		case <-done:
			return
		default:
			s.overruns.Add(1)
			s.logger.Debug("exec source: buffer full, dropping frame")
		}
	}
}

// Stop kills arecord.
func (s *ExecSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.done)

	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.stdout.Close()
	s.cmd.Wait()
	s.cmd = nil

	s.logger.Info("exec audio source stopped")
	return nil
}

// Stream returns the frame channel.
func (s *ExecSource) Stream() <-chan Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *ExecSource) Config() Config {
	return s.cfg
}

// Name returns "exec".
func (s *ExecSource) Name() string {
	return string(BackendExec)
}

// Close stops capture and prevents restarts.
func (s *ExecSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

// Stats returns source statistics.
func (s *ExecSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		FramesRead: s.framesRead.Load(),
		Overruns:   s.overruns.Load(),
		Running:    running,
		Backend:    string(BackendExec),
	}
}

var _ SourceWithStats = (*ExecSource)(nil)

// ExecSink plays clips through aplay. Each clip is a temporary WAV file.
type ExecSink struct {
	cfg    Config
	logger *slog.Logger
	dir    string

	opened atomic.Int64
	played atomic.Int64
	failed atomic.Int64
	live   atomic.Int64
}

// NewExecSink creates an aplay-backed sink.
func NewExecSink(cfg Config, logger *slog.Logger) (*ExecSink, error) {
	if _, err := lookPath(playBinary); err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrUnsupported, playBinary)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecSink{cfg: cfg, logger: logger}, nil
}

// Open writes the clip to a temporary file.
func (s *ExecSink) Open(wav []byte) (Clip, error) {
	f, err := os.CreateTemp(s.dir, "voicelink-*.wav")
	if err != nil {
		s.failed.Add(1)
		return nil, fmt.Errorf("create clip file: %w", err)
	}
	if _, err := f.Write(wav); err != nil {
		f.Close()
		os.Remove(f.Name())
		s.failed.Add(1)
		return nil, fmt.Errorf("write clip file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		s.failed.Add(1)
		return nil, fmt.Errorf("close clip file: %w", err)
	}

	s.opened.Add(1)
	s.live.Add(1)
	return &execClip{sink: s, path: f.Name()}, nil
}

// Config returns the audio configuration.
func (s *ExecSink) Config() Config {
	return s.cfg
}

// Name returns "exec".
func (s *ExecSink) Name() string {
	return string(BackendExec)
}

// Close is a no-op; clips own their files.
func (s *ExecSink) Close() error {
	return nil
}

// Stats returns sink statistics.
func (s *ExecSink) Stats() SinkStats {
	return SinkStats{
		ClipsOpened: s.opened.Load(),
		ClipsPlayed: s.played.Load(),
		ClipsFailed: s.failed.Load(),
		OpenClips:   s.live.Load(),
		Backend:     string(BackendExec),
	}
}

var _ SinkWithStats = (*ExecSink)(nil)

type execClip struct {
	sink *ExecSink
	path string
	once sync.Once
}

func (c *execClip) Play(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, playBinary, playArgs(c.sink.cfg, c.path)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		c.sink.failed.Add(1)
		return fmt.Errorf("%s: %w: %s", playBinary, err, out)
	}
	c.sink.played.Add(1)
	return nil
}

func (c *execClip) Close() error {
	var err error
	c.once.Do(func() {
		c.sink.live.Add(-1)
		if rmErr := os.Remove(c.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = rmErr
		}
	})
	return err
}
