// Package stubserver is a local stand-in for the assistant endpoint. It
// speaks the voice wire protocol, answers every committed utterance with a
// short text reply and a synthetic tone, and is used for development and
// end-to-end tests.
package stubserver

import (
	"log/slog"
	"math"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-voicelink/pkg/codec"
	"github.com/teslashibe/go-voicelink/pkg/protocol"
)

// Config controls the stub's replies.
type Config struct {
	// Reply is the text sent for every committed utterance.
	Reply string

	// ToneFrequency and ToneDuration shape the synthetic audio reply.
	ToneFrequency float64
	ToneDuration  time.Duration

	// Chunks is the number of audio deltas the tone is split into.
	Chunks int

	SampleRate int

	// Silent stops the server from answering pings, simulating a dead peer.
	Silent bool
}

// DefaultConfig returns the stub defaults.
func DefaultConfig() Config {
	return Config{
		Reply:         "Hello from the stub assistant.",
		ToneFrequency: 440,
		ToneDuration:  400 * time.Millisecond,
		Chunks:        4,
		SampleRate:    24000,
	}
}

// Stats counts server activity.
type Stats struct {
	Active    int64  `json:"active"`
	Accepted  uint64 `json:"accepted"`
	Appends   uint64 `json:"appends"`
	Commits   uint64 `json:"commits"`
	Responses uint64 `json:"responses"`
	Pings     uint64 `json:"pings"`
	Cancels   uint64 `json:"cancels"`
}

// Server is the stub assistant.
type Server struct {
	cfg    Config
	logger *slog.Logger
	app    *fiber.App

	mu     sync.Mutex
	silent bool

	active    atomic.Int64
	accepted  atomic.Uint64
	appends   atomic.Uint64
	commits   atomic.Uint64
	responses atomic.Uint64
	pings     atomic.Uint64
	cancels   atomic.Uint64
}

// New creates a stub server. Middleware is installed ahead of the routes.
func New(cfg Config, logger *slog.Logger, middleware ...fiber.Handler) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Chunks <= 0 {
		cfg.Chunks = 1
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}

	s := &Server{
		cfg:    cfg,
		logger: logger.With("component", "stubserver"),
		silent: cfg.Silent,
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
	}
	for _, m := range middleware {
		s.app.Use(m)
	}
	s.RegisterRoutes(s.app)
	return s
}

// App returns the fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// RegisterRoutes registers the health and websocket routes on app.
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "stats": s.Stats()})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/:assistantId", websocket.New(s.handle))
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("stub assistant listening", "addr", addr)
	return s.app.Listen(addr)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("stub assistant listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown stops the server and closes open connections.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// SetSilent toggles ping answering at runtime.
func (s *Server) SetSilent(silent bool) {
	s.mu.Lock()
	s.silent = silent
	s.mu.Unlock()
}

func (s *Server) isSilent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.silent
}

// Stats returns activity counters.
func (s *Server) Stats() Stats {
	return Stats{
		Active:    s.active.Load(),
		Accepted:  s.accepted.Load(),
		Appends:   s.appends.Load(),
		Commits:   s.commits.Load(),
		Responses: s.responses.Load(),
		Pings:     s.pings.Load(),
		Cancels:   s.cancels.Load(),
	}
}

type peer struct {
	id        string
	assistant string
	conn      *websocket.Conn
	buffered  []byte
}

func (p *peer) send(msg *protocol.Inbound) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) handle(c *websocket.Conn) {
	p := &peer{
		id:        uuid.NewString(),
		assistant: c.Params("assistantId"),
		conn:      c,
	}
	logger := s.logger.With("peer", p.id, "assistant", p.assistant)

	s.accepted.Add(1)
	s.active.Add(1)
	defer s.active.Add(-1)

	c.SetPingHandler(func(appData string) error {
		if s.isSilent() {
			return nil
		}
		return c.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	logger.Info("client connected")
	if err := p.send(&protocol.Inbound{Type: protocol.TypeConnectionStatus, Status: protocol.StatusConnected}); err != nil {
		return
	}
	if err := p.send(&protocol.Inbound{Type: protocol.TypeSessionCreated, EventID: protocol.NewEventID("session")}); err != nil {
		return
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("read failed", "error", err)
			} else {
				logger.Info("client disconnected")
			}
			return
		}
		if err := s.handleMessage(p, data); err != nil {
			logger.Warn("write failed", "error", err)
			return
		}
	}
}

func (s *Server) handleMessage(p *peer, data []byte) error {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		return p.send(errorMessage("invalid_message", err.Error()))
	}

	switch env.Type {
	case protocol.TypePing:
		s.pings.Add(1)
		if s.isSilent() {
			return nil
		}
		return p.send(&protocol.Inbound{Type: protocol.TypePong, EventID: env.EventID})

	case protocol.TypeAppend:
		audio, err := codec.DecodeBase64(env.Audio)
		if err != nil {
			return p.send(errorMessage("invalid_audio", err.Error()))
		}
		s.appends.Add(1)
		p.buffered = append(p.buffered, audio...)
		return nil

	case protocol.TypeCommit:
		s.commits.Add(1)
		if len(p.buffered) == 0 {
			return p.send(errorMessage("input_audio_buffer_commit_empty", "input audio buffer is empty"))
		}
		p.buffered = p.buffered[:0]
		return s.respond(p)

	case protocol.TypeClear:
		p.buffered = p.buffered[:0]
		return nil

	case protocol.TypeCancel:
		s.cancels.Add(1)
		return nil

	default:
		return p.send(errorMessage("unknown_type", "unknown message type: "+string(env.Type)))
	}
}

// respond sends one complete response cycle.
func (s *Server) respond(p *peer) error {
	responseID := "resp_" + uuid.NewString()

	for _, word := range strings.SplitAfter(s.cfg.Reply, " ") {
		if word == "" {
			continue
		}
		if err := p.send(&protocol.Inbound{Type: protocol.TypeTextDelta, ResponseID: responseID, Delta: word}); err != nil {
			return err
		}
	}
	if err := p.send(&protocol.Inbound{Type: protocol.TypeTextDone, ResponseID: responseID, Text: s.cfg.Reply}); err != nil {
		return err
	}

	for _, chunk := range splitChunks(s.tone(), s.cfg.Chunks) {
		msg := &protocol.Inbound{Type: protocol.TypeAudioDelta, ResponseID: responseID, Delta: codec.EncodeBase64(chunk)}
		if err := p.send(msg); err != nil {
			return err
		}
	}
	if err := p.send(&protocol.Inbound{Type: protocol.TypeAudioDone, ResponseID: responseID}); err != nil {
		return err
	}

	s.responses.Add(1)
	return p.send(&protocol.Inbound{Type: protocol.TypeResponseDone, ResponseID: responseID})
}

// tone returns the reply tone as PCM16 bytes.
func (s *Server) tone() []byte {
	n := int(s.cfg.ToneDuration.Seconds() * float64(s.cfg.SampleRate))
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.3 * math.Sin(2*math.Pi*s.cfg.ToneFrequency*float64(i)/float64(s.cfg.SampleRate)))
	}
	return codec.Int16ToBytes(codec.PCM16FromFloat(samples))
}

// splitChunks splits pcm into n pieces on sample boundaries.
func splitChunks(pcm []byte, n int) [][]byte {
	if len(pcm) == 0 {
		return nil
	}
	size := (len(pcm)/2 + n - 1) / n * 2
	var chunks [][]byte
	for len(pcm) > 0 {
		end := min(size, len(pcm))
		chunks = append(chunks, pcm[:end])
		pcm = pcm[end:]
	}
	return chunks
}

func errorMessage(code, message string) *protocol.Inbound {
	return &protocol.Inbound{
		Type:  protocol.TypeError,
		Error: &protocol.ErrorData{Message: message, Code: code, Type: "invalid_request_error"},
	}
}
