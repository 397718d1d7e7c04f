// Package capture turns microphone frames into outbound audio. It owns the
// microphone handle, transmits every frame while listening and commits each
// utterance when the segmenter detects its end.
package capture

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-voicelink/pkg/audioio"
	"github.com/teslashibe/go-voicelink/pkg/codec"
	"github.com/teslashibe/go-voicelink/pkg/loop"
	"github.com/teslashibe/go-voicelink/pkg/protocol"
	"github.com/teslashibe/go-voicelink/pkg/state"
	"github.com/teslashibe/go-voicelink/pkg/vad"
)

// DefaultBars is the number of level bars reported per frame.
const DefaultBars = 5

// Sender transmits envelopes to the server.
type Sender interface {
	Send(env protocol.Envelope) error
}

// Listener receives capture events. All methods run on the event loop.
type Listener interface {
	// OnSpeech is called when sound starts a new segment.
	OnSpeech()

	// OnCommitted is called after a commit was sent.
	OnCommitted(seg vad.Segment)

	// OnLevels reports visualisation bar heights for one frame.
	OnLevels(levels []float64)

	// OnMicrophoneError is called once per failed acquisition, after
	// listening was cleared.
	OnMicrophoneError(err *MicrophoneError)
}

// Config holds capture settings.
type Config struct {
	// SampleRate is the rate of transmitted audio.
	SampleRate int

	// Bars is the number of level bars; 0 disables level reports.
	Bars int

	Segmenter vad.Config
}

// DefaultConfig returns the default capture settings.
func DefaultConfig() Config {
	return Config{
		SampleRate: 24000,
		Bars:       DefaultBars,
		Segmenter:  vad.DefaultConfig(),
	}
}

// Stats counts transmitted traffic.
type Stats struct {
	FramesSent    int64
	FramesFailed  int64
	FramesDropped int64
	Commits       int64
	Acquisitions  int
}

type micState int

const (
	micIdle micState = iota
	micAcquiring
	micReady
)

// Engine is the capture engine. It is the only writer of the Listening
// field of the state vector. All methods must be called on the event loop.
type Engine struct {
	cfg      Config
	sched    loop.Scheduler
	source   audioio.Source
	sender   Sender
	listener Listener
	state    *state.Vector
	logger   *slog.Logger

	seg    *vad.Segmenter
	mic    micState
	micErr *MicrophoneError
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	stats  Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine reading from source. The source is started on the
// first Start call.
func New(cfg Config, sched loop.Scheduler, source audioio.Source, sender Sender, listener Listener, st *state.Vector, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		sched:    sched,
		source:   source,
		sender:   sender,
		listener: listener,
		state:    st,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "capture")
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.seg = vad.New(cfg.Segmenter, sched, e, e.logger)
	return e
}

// Start begins listening. It does nothing while already listening, playing
// back, reconnecting or disconnected. After a microphone failure it returns
// that failure until ResetMicrophone is called.
func (e *Engine) Start() error {
	if e.closed {
		return ErrClosed
	}
	if e.micErr != nil {
		return e.micErr
	}
	if !e.state.CanListen() {
		return nil
	}

	e.state.Listening = true
	e.seg.Flush()
	e.send(protocol.Clear())
	e.logger.Info("listening started")

	if e.mic == micIdle {
		e.acquire()
	}
	return nil
}

// Stop ends listening. With abort set and a live connection it also
// discards the server-side buffer and cancels any response in flight.
func (e *Engine) Stop(abort bool) {
	if e.state.Listening {
		e.state.Listening = false
		e.logger.Info("listening stopped", "abort", abort)
	}
	e.seg.Flush()

	if abort && e.state.Connected {
		e.send(protocol.Clear())
		e.send(protocol.CancelResponse())
	}
}

// MicrophoneFailed reports whether the last acquisition failed or the
// source ended while listening.
func (e *Engine) MicrophoneFailed() bool {
	return e.micErr != nil
}

// ResetMicrophone clears a recorded failure so the next Start acquires the
// microphone again. Only user actions should call it.
func (e *Engine) ResetMicrophone() {
	e.micErr = nil
}

// Listening reports whether frames are being transmitted.
func (e *Engine) Listening() bool {
	return e.state.Listening
}

// Stats returns traffic counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Close releases the microphone.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.state.Listening = false
	e.seg.Flush()
	e.cancel()
	return e.source.Close()
}

// CanCommit implements vad.Committer.
func (e *Engine) CanCommit() bool {
	return e.state.CanTransmit()
}

// Commit implements vad.Committer.
func (e *Engine) Commit(seg vad.Segment) {
	if err := e.sender.Send(protocol.Commit()); err != nil {
		e.logger.Warn("commit failed", "error", err)
		return
	}
	e.stats.Commits++
	e.logger.Info("segment committed", "samples", len(seg.Samples))
	e.listener.OnCommitted(seg)
}

func (e *Engine) acquire() {
	e.mic = micAcquiring
	e.stats.Acquisitions++
	ctx := e.ctx

	go func() {
		err := e.source.Start(ctx)
		var frames <-chan audioio.Frame
		if err == nil {
			frames = e.source.Stream()
		}
		e.sched.Post(func() { e.acquired(frames, err) })
	}()
}

func (e *Engine) acquired(frames <-chan audioio.Frame, err error) {
	if e.closed {
		return
	}
	if err != nil {
		e.mic = micIdle
		e.state.Listening = false
		e.seg.Flush()
		e.micErr = &MicrophoneError{Backend: e.source.Name(), Err: err}
		e.logger.Error("microphone acquisition failed", "error", err)
		e.listener.OnMicrophoneError(e.micErr)
		return
	}

	e.mic = micReady
	e.logger.Info("microphone acquired", "backend", e.source.Name())
	go e.pump(frames)
}

func (e *Engine) pump(frames <-chan audioio.Frame) {
	for {
		select {
		case <-e.ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				e.sched.Post(e.released)
				return
			}
			e.sched.Post(func() { e.frame(f) })
		}
	}
}

// released handles a source that stopped delivering frames.
func (e *Engine) released() {
	if e.closed || e.mic != micReady {
		return
	}
	e.mic = micIdle
	if e.state.Listening {
		e.state.Listening = false
		e.seg.Flush()
		e.micErr = &MicrophoneError{Backend: e.source.Name(), Err: audioio.ErrSourceClosed}
		e.listener.OnMicrophoneError(e.micErr)
	}
}

func (e *Engine) frame(f audioio.Frame) {
	if e.closed {
		return
	}
	if !e.state.CanTransmit() {
		e.stats.FramesDropped++
		return
	}

	f = audioio.ResampleFrame(f, e.cfg.SampleRate)
	pcm := codec.PCM16FromFloat(f.Samples)
	transmitted := e.send(protocol.Append(codec.EncodeBase64(codec.Int16ToBytes(pcm))))
	if transmitted {
		e.stats.FramesSent++
	} else {
		e.stats.FramesFailed++
	}

	res := e.seg.Process(f.Samples, pcm, transmitted)
	if res.SegmentStarted {
		e.listener.OnSpeech()
	}
	if e.cfg.Bars > 0 {
		e.listener.OnLevels(codec.Levels(f.Samples, e.cfg.Bars))
	}
}

func (e *Engine) send(env protocol.Envelope) bool {
	if err := e.sender.Send(env); err != nil {
		e.logger.Warn("send failed", "type", env.Type, "error", err)
		return false
	}
	return true
}

var _ vad.Committer = (*Engine)(nil)
