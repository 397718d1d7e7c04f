// Package widget is the voice client orchestrator. It owns the state vector
// and wires the session, reconnection supervisor, capture engine and
// playback queue together on one event loop, turning their events into
// observer notifications.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-voicelink/internal/httpc"
	"github.com/teslashibe/go-voicelink/pkg/audioio"
	"github.com/teslashibe/go-voicelink/pkg/capture"
	"github.com/teslashibe/go-voicelink/pkg/loop"
	"github.com/teslashibe/go-voicelink/pkg/metrics"
	"github.com/teslashibe/go-voicelink/pkg/playback"
	"github.com/teslashibe/go-voicelink/pkg/protocol"
	"github.com/teslashibe/go-voicelink/pkg/reconnect"
	"github.com/teslashibe/go-voicelink/pkg/session"
	"github.com/teslashibe/go-voicelink/pkg/state"
	"github.com/teslashibe/go-voicelink/pkg/vad"
)

// maxServerErrors is the number of consecutive server errors after which
// the error display becomes persistent.
const maxServerErrors = 3

var (
	// ErrMissingEndpoint is returned by New without an endpoint URL.
	ErrMissingEndpoint = errors.New("widget: endpoint is required")

	// ErrMissingDevice is returned by New without a source or sink.
	ErrMissingDevice = errors.New("widget: audio source and sink are required")

	// ErrExternalLoop is returned by Run when the caller supplied the
	// scheduler and therefore drives it.
	ErrExternalLoop = errors.New("widget: scheduler is driven by the caller")
)

// Deps are the collaborators of a Widget.
type Deps struct {
	Source   audioio.Source
	Sink     audioio.Sink
	Observer Observer

	// Scheduler runs every component. When nil the widget creates a loop
	// and Run drives it.
	Scheduler loop.Scheduler

	// Dialer is used for the websocket handshake. Defaults to
	// httpc.NewDialer with the connect timeout.
	Dialer *websocket.Dialer

	// Registerer exports turn metrics. Nil keeps them in-process only.
	Registerer prometheus.Registerer

	Logger *slog.Logger
}

// Widget is the orchestrator. Its methods must be called on the event loop
// except Do, Snapshot and Run.
type Widget struct {
	cfg      Config
	sched    loop.Scheduler
	runner   *loop.Loop
	observer Observer
	logger   *slog.Logger
	sink     audioio.Sink

	state      state.Vector
	session    *session.Session
	supervisor *reconnect.Supervisor
	capture    *capture.Engine
	queue      *playback.Queue
	metrics    *metrics.Collector

	resumeTimer     loop.Timer
	restartTimer    loop.Timer
	retireTimer     loop.Timer
	inactivityTimer loop.Timer
	welcomeTimer    loop.Timer

	text         strings.Builder
	serverErrors int
	welcomed     bool
	started      bool
	shut         bool

	last     state.Vector
	notified bool

	snapMu   sync.Mutex
	snapshot state.Vector
}

// New builds a widget and its components.
func New(cfg Config, deps Deps) (*Widget, error) {
	if cfg.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	if deps.Source == nil || deps.Sink == nil {
		return nil, ErrMissingDevice
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := deps.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	w := &Widget{
		cfg:      cfg,
		sched:    deps.Scheduler,
		observer: observer,
		logger:   logger.With("component", "widget"),
		sink:     deps.Sink,
	}
	if w.sched == nil {
		w.runner = loop.New(logger)
		w.sched = w.runner
	}

	dialer := deps.Dialer
	if dialer == nil {
		dialer = httpc.NewDialer(cfg.Policy.ConnectTimeout)
	}

	h := (*hooks)(w)
	w.session = session.New(cfg.Endpoint, w.sched, h,
		session.WithDialer(dialer),
		session.WithLogger(logger),
	)
	w.supervisor = reconnect.New(cfg.Policy, w.sched, w.session, h, &w.state, logger)
	w.session.SetConnHandler(w.supervisor)
	w.capture = capture.New(cfg.Capture, w.sched, deps.Source, w.session, h, &w.state, capture.WithLogger(logger))
	w.queue = playback.New(w.sched, deps.Sink, h, &w.state, playback.WithLogger(logger))
	w.metrics = metrics.NewCollector(w.sched.Now, metrics.WithRegisterer(deps.Registerer))
	return w, nil
}

// Metrics returns the turn latency collector. It may be read from any
// goroutine.
func (w *Widget) Metrics() *metrics.Collector {
	return w.metrics
}

// Do runs fn on the event loop. It may be called from any goroutine.
func (w *Widget) Do(fn func()) {
	w.sched.Post(fn)
}

// Snapshot returns the state as of the last event. It may be called from
// any goroutine.
func (w *Widget) Snapshot() state.Vector {
	w.snapMu.Lock()
	defer w.snapMu.Unlock()
	return w.snapshot
}

// Run drives the widget's own loop until ctx is cancelled, then shuts down.
func (w *Widget) Run(ctx context.Context) error {
	if w.runner == nil {
		return ErrExternalLoop
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.sched.Post(func() {
		if err := w.Start(ctx); err != nil {
			w.logger.Error("start failed", "error", err)
		}
	})
	go func() {
		select {
		case <-ctx.Done():
			w.sched.Post(func() {
				w.Shutdown()
				cancel()
			})
		case <-loopCtx.Done():
		}
	}()

	err := w.runner.Run(loopCtx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start connects and, when configured, opens the widget. ctx bounds every
// connection attempt.
func (w *Widget) Start(ctx context.Context) error {
	if w.started {
		return nil
	}
	w.started = true
	w.logger.Info("starting", "endpoint", w.cfg.Endpoint)

	if err := w.supervisor.Start(ctx); err != nil {
		return err
	}
	if w.cfg.Open {
		w.Open()
	}
	w.notify()
	return nil
}

// Shutdown stops all audio, closes the connection and releases devices.
func (w *Widget) Shutdown() {
	if w.shut {
		return
	}
	w.shut = true
	w.Close()
	stop(&w.welcomeTimer)
	w.supervisor.Stop()
	if err := w.capture.Close(); err != nil {
		w.logger.Warn("closing microphone failed", "error", err)
	}
	if err := w.sink.Close(); err != nil {
		w.logger.Warn("closing speaker failed", "error", err)
	}
	w.notify()
	w.logger.Info("shut down")
}

// Open shows the widget and starts listening when possible.
func (w *Widget) Open() {
	if w.state.WidgetOpen || w.shut {
		return
	}
	w.state.WidgetOpen = true
	w.state.Unread = false
	stop(&w.welcomeTimer)
	w.logger.Info("opened")

	w.resetInactivity()
	w.startListening(true)
	w.notify()
}

// Close hides the widget and stops all audio processing: listening is
// aborted, playback is stopped and visuals are reset.
func (w *Widget) Close() {
	if !w.state.WidgetOpen {
		return
	}
	w.stopAll()
	w.state.WidgetOpen = false
	stop(&w.inactivityTimer)
	w.logger.Info("closed")
	w.notify()
}

// StartListening starts capture if the state allows it. It returns
// reconnect.ErrFailedPermanently after the supervisor gave up. A recorded
// microphone failure is cleared so the microphone is acquired again.
func (w *Widget) StartListening() error {
	return w.startListening(true)
}

// StopListening stops capture without discarding the server response.
func (w *Widget) StopListening() {
	w.capture.Stop(false)
	if w.state.Visual == state.Listening {
		w.state.Visual = state.Idle
	}
	w.notify()
}

// Retry clears a permanent connection failure and connects again.
func (w *Widget) Retry() error {
	err := w.supervisor.Reset()
	w.notify()
	return err
}

// startListening starts capture. Automatic callers pass user=false and
// skip a failed microphone; user actions clear the failure and try again.
func (w *Widget) startListening(user bool) error {
	stop(&w.resumeTimer)
	stop(&w.restartTimer)

	if w.state.FailedPermanently {
		return reconnect.ErrFailedPermanently
	}
	if user {
		w.capture.ResetMicrophone()
	} else if w.capture.MicrophoneFailed() {
		return nil
	}
	if err := w.capture.Start(); err != nil {
		return err
	}
	if w.state.Listening && w.state.Visual != state.Speaking {
		w.state.Visual = state.Listening
	}
	w.notify()
	return nil
}

func (w *Widget) stopAll() {
	stop(&w.resumeTimer)
	stop(&w.restartTimer)
	stop(&w.retireTimer)

	w.capture.Stop(true)
	w.session.DiscardAudio()
	w.queue.Stop()
	w.state.Visual = state.Idle
	w.text.Reset()

	w.observer.ShowMessage("", 0)
	if lo, ok := w.observer.(LevelObserver); ok {
		lo.Levels(make([]float64, w.cfg.Capture.Bars))
	}
}

func (w *Widget) resetInactivity() {
	stop(&w.inactivityTimer)
	if w.cfg.HideAfterInactivity <= 0 || !w.state.WidgetOpen {
		return
	}
	w.inactivityTimer = w.sched.After(w.cfg.HideAfterInactivity, func() {
		w.inactivityTimer = nil
		w.logger.Info("closing after inactivity", "after", w.cfg.HideAfterInactivity)
		w.Close()
	})
}

// resumeAfter starts listening after d unless something else happens first.
func (w *Widget) resumeAfter(t *loop.Timer, d time.Duration) {
	stop(t)
	*t = w.sched.After(d, func() {
		*t = nil
		if w.state.WidgetOpen && !w.state.PlayingAudio {
			w.startListening(false)
		}
	})
}

func (w *Widget) notify() {
	v := w.state.Snapshot()
	if err := v.Valid(); err != nil {
		w.logger.Error("inconsistent state", "error", err, "state", v.String())
	}

	w.snapMu.Lock()
	w.snapshot = v
	w.snapMu.Unlock()

	if w.notified && v == w.last {
		return
	}
	w.last = v
	w.notified = true
	w.observer.StateChanged(v)
}

func (w *Widget) showText() {
	w.observer.ShowMessage(w.text.String(), 2*w.cfg.MessageDuration)
}

// hooks receives component events. It is the Widget under another method
// set so the callbacks stay off the public API.
type hooks Widget

func (h *hooks) widget() *Widget { return (*Widget)(h) }

// OnStatus implements session.Handler.
func (h *hooks) OnStatus(status string) {
	w := h.widget()
	w.logger.Info("connection status", "status", status)
	if status == protocol.StatusConnected && w.state.WidgetOpen {
		w.startListening(false)
	}
}

// OnServerError implements session.Handler.
func (h *hooks) OnServerError(message string) {
	w := h.widget()
	w.serverErrors++
	w.logger.Warn("server error", "message", message, "consecutive", w.serverErrors)
	w.observer.ShowError(message, w.serverErrors >= maxServerErrors)
}

// OnTextDelta implements session.Handler.
func (h *hooks) OnTextDelta(delta string) {
	w := h.widget()
	stop(&w.retireTimer)
	w.metrics.MarkText()
	w.text.WriteString(delta)
	w.showText()

	if !w.state.WidgetOpen {
		w.state.Unread = true
	}
	w.resetInactivity()
	w.notify()
}

// OnTextDone implements session.Handler.
func (h *hooks) OnTextDone(text string) {
	w := h.widget()
	if w.text.Len() == 0 && text != "" {
		w.text.WriteString(text)
		w.showText()
	}

	stop(&w.retireTimer)
	w.retireTimer = w.sched.After(w.cfg.TextRetireDelay, func() {
		w.retireTimer = nil
		w.text.Reset()
		w.observer.ShowMessage("", 0)
	})
}

// OnAudio implements session.Handler.
func (h *hooks) OnAudio(responseID, audio string) {
	w := h.widget()
	stop(&w.resumeTimer)
	stop(&w.restartTimer)
	w.logger.Debug("response audio", "response_id", responseID, "bytes", len(audio))
	w.metrics.MarkAudio()

	if !w.state.WidgetOpen {
		w.state.Unread = true
	}
	w.queue.Enqueue(playback.Item{EncodedAudio: audio})
	w.notify()
}

// OnResponseDone implements session.Handler.
func (h *hooks) OnResponseDone() {
	w := h.widget()
	w.serverErrors = 0
	if turn, ok := w.metrics.MarkResponseDone(); ok {
		w.logger.Info("turn complete", "latency", turn.Summary())
	}
	if w.state.WidgetOpen && !w.state.PlayingAudio && !w.state.Reconnecting {
		w.resumeAfter(&w.restartTimer, w.cfg.ResumeDelay)
	}
}

// OnConnected implements reconnect.Listener.
func (h *hooks) OnConnected() {
	w := h.widget()
	if w.state.WidgetOpen {
		w.startListening(false)
	} else if w.cfg.WelcomeMessage != "" && !w.welcomed {
		w.welcomed = true
		w.welcomeTimer = w.sched.After(w.cfg.WelcomeDelay, func() {
			w.welcomeTimer = nil
			if !w.state.WidgetOpen {
				w.observer.ShowMessage(w.cfg.WelcomeMessage, w.cfg.MessageDuration)
			}
		})
	}
	w.notify()
}

// OnDisconnected implements reconnect.Listener.
func (h *hooks) OnDisconnected(err error) {
	w := h.widget()
	stop(&w.resumeTimer)
	stop(&w.restartTimer)
	w.capture.Stop(false)
	w.metrics.Abandon()
	if w.state.Visual == state.Listening {
		w.state.Visual = state.Idle
	}

	if w.state.WidgetOpen {
		var ce *session.CloseError
		if errors.As(err, &ce) && ce.Clean {
			w.observer.ShowMessage("Connection closed", w.cfg.MessageDuration)
		} else {
			w.observer.ShowMessage("Connection lost. Reconnecting...", w.cfg.MessageDuration)
		}
	}
	w.notify()
}

// OnReconnecting implements reconnect.Listener.
func (h *hooks) OnReconnecting(attempt int, delay time.Duration) {
	w := h.widget()
	if w.state.WidgetOpen {
		w.observer.ShowMessage(fmt.Sprintf("Reconnecting (attempt %d)...", attempt), min(delay, w.cfg.MessageDuration))
	}
	w.notify()
}

// OnFailedPermanently implements reconnect.Listener.
func (h *hooks) OnFailedPermanently() {
	w := h.widget()
	w.observer.ShowError("Unable to reach the assistant. Retry to connect again.", true)
	w.notify()
}

// OnPlaybackStarted implements playback.Listener. Capture stops before the
// queue marks itself playing.
func (h *hooks) OnPlaybackStarted() {
	w := h.widget()
	stop(&w.resumeTimer)
	stop(&w.restartTimer)
	w.capture.Stop(false)
	w.metrics.MarkPlaybackStart()
	w.state.Visual = state.Speaking
	w.resetInactivity()
	w.sched.Post(w.notify)
}

// OnPlaybackIdle implements playback.Listener.
func (h *hooks) OnPlaybackIdle() {
	w := h.widget()
	if w.state.Visual == state.Speaking {
		w.state.Visual = state.Idle
	}
	if w.state.WidgetOpen {
		w.resumeAfter(&w.resumeTimer, w.cfg.ResumeDelay)
	} else {
		w.state.Unread = true
	}
	w.notify()
}

// OnSpeech implements capture.Listener.
func (h *hooks) OnSpeech() {
	w := h.widget()
	if w.state.Visual != state.Speaking {
		w.state.Visual = state.Listening
	}
	w.resetInactivity()
	w.notify()
}

// OnCommitted implements capture.Listener.
func (h *hooks) OnCommitted(seg vad.Segment) {
	w := h.widget()
	w.metrics.MarkCommit()
	if w.state.Visual == state.Listening {
		w.state.Visual = state.Idle
	}
	w.notify()
}

// OnLevels implements capture.Listener.
func (h *hooks) OnLevels(levels []float64) {
	if lo, ok := h.observer.(LevelObserver); ok {
		lo.Levels(levels)
	}
}

// OnMicrophoneError implements capture.Listener.
func (h *hooks) OnMicrophoneError(err *capture.MicrophoneError) {
	w := h.widget()
	if w.state.Visual == state.Listening {
		w.state.Visual = state.Idle
	}
	w.observer.ShowError(err.Error(), true)
	w.notify()
}

func stop(t *loop.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

var (
	_ session.Handler    = (*hooks)(nil)
	_ reconnect.Listener = (*hooks)(nil)
	_ playback.Listener  = (*hooks)(nil)
	_ capture.Listener   = (*hooks)(nil)
)
