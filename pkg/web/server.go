// Package web provides a local status and control dashboard for the
// voicelink client.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-voicelink/pkg/hub"
	"github.com/teslashibe/go-voicelink/pkg/metrics"
	"github.com/teslashibe/go-voicelink/pkg/state"
	"github.com/teslashibe/go-voicelink/pkg/widget"
)

const (
	maxEvents   = 200
	callTimeout = 5 * time.Second
)

var (
	// ErrNoController is returned by control endpoints before Attach.
	ErrNoController = errors.New("web: no controller attached")

	// ErrTimeout is returned when the event loop does not run a call in time.
	ErrTimeout = errors.New("web: controller call timed out")
)

// Controller is the subset of the widget the dashboard drives. Every
// method except Do and Snapshot runs on the event loop.
type Controller interface {
	Do(fn func())
	Snapshot() state.Vector
	Open()
	Close()
	StartListening() error
	StopListening()
	Retry() error
	Metrics() *metrics.Collector
}

// Status is the JSON form of the state vector.
type Status struct {
	Connected         bool      `json:"connected"`
	Listening         bool      `json:"listening"`
	PlayingAudio      bool      `json:"playing_audio"`
	Reconnecting      bool      `json:"reconnecting"`
	WidgetOpen        bool      `json:"widget_open"`
	FailedPermanently bool      `json:"failed_permanently"`
	Unread            bool      `json:"unread"`
	Visual            string    `json:"visual"`
	Levels            []float64 `json:"levels,omitempty"`
}

// Event is a message or error shown to the user.
type Event struct {
	Time       string `json:"time"`
	Type       string `json:"type"` // message, error
	Text       string `json:"text"`
	Persistent bool   `json:"persistent,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Server is the dashboard. It is also a widget.Observer that records and
// broadcasts every notification before forwarding it.
type Server struct {
	app    *fiber.App
	logger *slog.Logger
	next   widget.Observer

	mu     sync.RWMutex
	ctrl   Controller
	status Status
	events []Event

	statusHub *hub.Hub
	eventHub  *hub.Hub

	gatherer prometheus.Gatherer
	timeout  time.Duration
	cancel   context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves g in the Prometheus text format at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewServer creates a dashboard that forwards notifications to next.
func NewServer(next widget.Observer, logger *slog.Logger, opts ...Option) *Server {
	if next == nil {
		next = widget.NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:    logger.With("component", "web"),
		next:      next,
		events:    make([]Event, 0, maxEvents),
		status:    toStatus(state.Vector{}),
		statusHub: hub.New("status", logger),
		eventHub:  hub.New("events", logger),
		timeout:   callTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	app := fiber.New(fiber.Config{
		AppName:               "Voicelink Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if s.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleEvents)
	api.Get("/metrics", s.handleMetrics)
	api.Post("/open", s.handleOpen)
	api.Post("/close", s.handleClose)
	api.Post("/listen", s.handleListen)
	api.Post("/stop", s.handleStop)
	api.Post("/retry", s.handleRetry)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Attach sets the controller driven by the control endpoints.
func (s *Server) Attach(ctrl Controller) {
	s.mu.Lock()
	s.ctrl = ctrl
	if ctrl != nil {
		s.status = toStatus(ctrl.Snapshot())
	}
	s.mu.Unlock()
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the hubs and serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve starts the hubs and serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.statusHub.Run(ctx)
	go s.eventHub.Run(ctx)

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown stops the hubs and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	return s.app.ShutdownWithContext(ctx)
}

// StateChanged implements widget.Observer.
func (s *Server) StateChanged(v state.Vector) {
	s.mu.Lock()
	levels := s.status.Levels
	s.status = toStatus(v)
	if v.Listening {
		s.status.Levels = levels
	}
	st := s.status
	s.mu.Unlock()

	s.broadcast(s.statusHub, st)
	s.next.StateChanged(v)
}

// ShowMessage implements widget.Observer.
func (s *Server) ShowMessage(text string, d time.Duration) {
	if text != "" {
		s.record(Event{Type: "message", Text: text, DurationMS: d.Milliseconds()})
	}
	s.next.ShowMessage(text, d)
}

// ShowError implements widget.Observer.
func (s *Server) ShowError(text string, persistent bool) {
	s.record(Event{Type: "error", Text: text, Persistent: persistent})
	s.next.ShowError(text, persistent)
}

// Levels implements widget.LevelObserver.
func (s *Server) Levels(levels []float64) {
	s.mu.Lock()
	s.status.Levels = append(s.status.Levels[:0:0], levels...)
	st := s.status
	s.mu.Unlock()

	s.broadcast(s.statusHub, st)
	if lo, ok := s.next.(widget.LevelObserver); ok {
		lo.Levels(levels)
	}
}

// Events returns a copy of the recorded events, oldest first.
func (s *Server) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

// Status returns the last reported status.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) record(e Event) {
	e.Time = time.Now().Format("15:04:05")

	s.mu.Lock()
	s.events = append(s.events, e)
	if len(s.events) > maxEvents {
		s.events = s.events[1:]
	}
	s.mu.Unlock()

	s.broadcast(s.eventHub, e)
}

func (s *Server) broadcast(h *hub.Hub, v any) {
	if err := h.BroadcastJSON(v); err != nil {
		s.logger.Warn("broadcast failed", "error", err)
	}
}

func (s *Server) controller() Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctrl
}

// call runs fn on the controller's event loop and waits for its result.
func (s *Server) call(fn func(Controller) error) error {
	ctrl := s.controller()
	if ctrl == nil {
		return ErrNoController
	}

	done := make(chan error, 1)
	ctrl.Do(func() { done <- fn(ctrl) })

	select {
	case err := <-done:
		return err
	case <-time.After(s.timeout):
		return ErrTimeout
	}
}

func toStatus(v state.Vector) Status {
	return Status{
		Connected:         v.Connected,
		Listening:         v.Listening,
		PlayingAudio:      v.PlayingAudio,
		Reconnecting:      v.Reconnecting,
		WidgetOpen:        v.WidgetOpen,
		FailedPermanently: v.FailedPermanently,
		Unread:            v.Unread,
		Visual:            v.Visual.String(),
	}
}
