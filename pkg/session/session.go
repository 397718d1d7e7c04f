// Package session owns the websocket connection to the assistant endpoint.
// It runs the connection state machine, serialises outbound envelopes on a
// writer goroutine and dispatches inbound messages on the event loop.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-voicelink/internal/httpc"
	"github.com/teslashibe/go-voicelink/pkg/loop"
	"github.com/teslashibe/go-voicelink/pkg/protocol"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// closeWait is how long a requested close waits for the peer's close frame
	closeWait = 2 * time.Second

	// maxMessageSize is the maximum inbound message size
	maxMessageSize = 4 * 1024 * 1024

	// sendBuffer is the number of queued outbound frames
	sendBuffer = 256
)

type frameKind int

const (
	frameText frameKind = iota
	framePing
	frameClose
)

type outbound struct {
	kind frameKind
	data []byte
}

// link is one live connection and its pumps.
type link struct {
	conn *websocket.Conn
	send chan outbound
	done chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithDialer sets the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithConnHandler sets the lifecycle handler.
func WithConnHandler(h ConnHandler) Option {
	return func(s *Session) { s.conn = h }
}

// Session is a single logical connection to the assistant. All methods
// must be called on the event loop.
type Session struct {
	url     string
	sched   loop.Scheduler
	dialer  *websocket.Dialer
	logger  *slog.Logger
	handler Handler
	conn    ConnHandler

	state      State
	generation uint64
	link       *link
	cancelDial context.CancelFunc
	closeTimer loop.Timer

	audio *audioBuffer
}

// New creates a session for the endpoint url.
func New(url string, sched loop.Scheduler, handler Handler, opts ...Option) *Session {
	s := &Session{
		url:     url,
		sched:   sched,
		handler: handler,
		conn:    nopConnHandler{},
		logger:  slog.Default(),
		state:   Idle,
		audio:   newAudioBuffer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.handler == nil {
		s.handler = NopHandler{}
	}
	if s.dialer == nil {
		s.dialer = httpc.NewDialer(0)
	}
	s.logger = s.logger.With("component", "session")
	return s
}

// SetConnHandler replaces the lifecycle handler.
func (s *Session) SetConnHandler(h ConnHandler) {
	if h == nil {
		h = nopConnHandler{}
	}
	s.conn = h
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// URL returns the endpoint.
func (s *Session) URL() string {
	return s.url
}

// Dial starts a connection attempt. The outcome is reported to the
// ConnHandler. Any connection still held is closed first.
func (s *Session) Dial(ctx context.Context) error {
	next, err := Transition(s.state, EventDial)
	if err != nil {
		return err
	}

	if s.link != nil || s.cancelDial != nil {
		s.logger.Warn("dial requested while a connection is held, closing it first")
		s.teardown()
	}

	s.setState(next, EventDial)
	s.generation++
	gen := s.generation

	dialCtx, cancel := context.WithCancel(ctx)
	s.cancelDial = cancel

	s.logger.Info("connecting", "url", s.url)
	go func() {
		conn, _, err := s.dialer.DialContext(dialCtx, s.url, nil)
		s.sched.Post(func() { s.dialed(gen, conn, err) })
	}()
	return nil
}

func (s *Session) dialed(gen uint64, conn *websocket.Conn, err error) {
	if gen != s.generation {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}

	if err != nil {
		s.logger.Warn("connection attempt failed", "error", err)
		s.apply(EventFailed)
		s.conn.OnDialFailed(err)
		return
	}

	l := &link{
		conn: conn,
		send: make(chan outbound, sendBuffer),
		done: make(chan struct{}),
	}
	s.link = l

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		s.sched.Post(func() { s.pong(gen) })
		return nil
	})

	go s.writePump(l)
	go s.readPump(gen, l)

	s.apply(EventOpened)
	s.logger.Info("connection open")
	s.conn.OnOpen()
}

// readPump reads messages from the websocket connection and posts them to
// the loop. It ends when the connection fails or closes.
func (s *Session) readPump(gen uint64, l *link) {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			s.sched.Post(func() { s.closed(gen, err) })
			return
		}
		s.sched.Post(func() { s.message(gen, data) })
	}
}

// writePump writes queued frames to the websocket connection.
// Only this goroutine writes to the connection.
func (s *Session) writePump(l *link) {
	for {
		select {
		case <-l.done:
			return
		case msg := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))

			var err error
			switch msg.kind {
			case frameText:
				err = l.conn.WriteMessage(websocket.TextMessage, msg.data)
			case framePing:
				err = l.conn.WriteMessage(websocket.PingMessage, nil)
			case frameClose:
				err = l.conn.WriteMessage(websocket.CloseMessage, msg.data)
			}
			if err != nil {
				// The reader sees the broken connection and reports it.
				l.conn.Close()
				return
			}
		}
	}
}

func (s *Session) enqueue(msg outbound) error {
	if s.state != Open || s.link == nil {
		return ErrNotOpen
	}
	select {
	case s.link.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Send queues an envelope for transmission.
func (s *Session) Send(env protocol.Envelope) error {
	data, err := env.Bytes()
	if err != nil {
		return err
	}
	return s.enqueue(outbound{kind: frameText, data: data})
}

// SendPing sends a ping envelope followed by a websocket ping frame. The
// peer may answer either one.
func (s *Session) SendPing() error {
	if err := s.Send(protocol.Ping()); err != nil {
		return err
	}
	return s.enqueue(outbound{kind: framePing})
}

// Close performs a clean close with the normal closure code.
func (s *Session) Close() error {
	switch s.state {
	case Idle, Closed, Closing:
		return nil
	case Connecting:
		s.teardown()
		s.apply(EventCloseRequested)
		s.apply(EventClosed)
		return nil
	}

	s.apply(EventCloseRequested)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	select {
	case s.link.send <- outbound{kind: frameClose, data: msg}:
	default:
	}

	gen := s.generation
	s.closeTimer = s.sched.After(closeWait, func() {
		s.closeTimer = nil
		if gen != s.generation || s.state != Closing {
			return
		}
		s.logger.Debug("peer did not acknowledge close")
		s.teardown()
		s.apply(EventClosed)
		s.conn.OnClose(&CloseError{Code: websocket.CloseNormalClosure, Clean: true})
	})
	return nil
}

// ForceClose drops the current connection or attempt without a close
// handshake and without reporting OnClose. The session stays in Connecting
// so a new Dial can follow.
func (s *Session) ForceClose(reason string) {
	if s.state != Open && s.state != Connecting {
		return
	}
	s.logger.Warn("forcing connection closed", "reason", reason)
	s.teardown()
	if s.state == Open {
		s.apply(EventLost)
	} else {
		s.apply(EventFailed)
	}
}

// DiscardAudio drops audio buffered for responses that have not finished.
// Later deltas of those responses are ignored too.
func (s *Session) DiscardAudio() {
	if n := s.audio.discard(); n > 0 {
		s.logger.Debug("discarded buffered response audio", "responses", n)
	}
}

// GiveUp tears everything down and moves to Closed.
func (s *Session) GiveUp() {
	s.teardown()
	s.apply(EventGiveUp)
}

func (s *Session) closed(gen uint64, err error) {
	if gen != s.generation {
		return
	}
	ce := closeErrorFrom(err)
	s.teardown()

	switch {
	case s.state == Closing:
		ce.Clean = true
		s.apply(EventClosed)
	case ce.Clean:
		s.apply(EventClosedClean)
	default:
		s.apply(EventLost)
	}

	s.logger.Info("connection closed", "code", ce.Code, "clean", ce.Clean, "reason", ce.Text)
	s.conn.OnClose(ce)
}

func (s *Session) pong(gen uint64) {
	if gen != s.generation || s.state != Open {
		return
	}
	s.conn.OnPong()
}

func (s *Session) message(gen uint64, data []byte) {
	if gen != s.generation {
		return
	}

	msg, err := protocol.ParseInbound(data)
	if err != nil {
		s.logger.Warn("malformed message", "error", err, "bytes", len(data))
		return
	}
	s.dispatch(msg)
}

func (s *Session) dispatch(msg *protocol.Inbound) {
	switch msg.Type {
	case protocol.TypeSessionCreated, protocol.TypeSessionUpdated:
		s.logger.Debug("session event", "type", msg.Type)
	case protocol.TypeConnectionStatus:
		s.handler.OnStatus(msg.Status)
	case protocol.TypeError:
		s.logger.Warn("assistant error", "message", msg.ErrorMessage())
		s.handler.OnServerError(msg.ErrorMessage())
	case protocol.TypeTextDelta:
		if msg.Delta != "" {
			s.handler.OnTextDelta(msg.Delta)
		}
	case protocol.TypeTextDone:
		s.handler.OnTextDone(msg.Text)
	case protocol.TypeAudioDelta:
		if msg.Delta == "" {
			return
		}
		if err := s.audio.add(msg.ResponseID, msg.Delta); err != nil {
			s.logger.Warn("skipping undecodable audio delta", "response_id", msg.ResponseID, "error", err)
		}
	case protocol.TypeAudioDone:
		if audio, ok := s.audio.take(msg.ResponseID); ok {
			s.handler.OnAudio(msg.ResponseID, audio)
		}
	case protocol.TypeResponseDone:
		s.handler.OnResponseDone()
	case protocol.TypePong:
		s.conn.OnPong()
	default:
		s.logger.Debug("ignoring unknown message type", "type", msg.Type)
	}
}

// teardown releases the connection or pending dial and invalidates any
// events already posted for it.
func (s *Session) teardown() {
	s.generation++
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	if s.closeTimer != nil {
		s.closeTimer.Stop()
		s.closeTimer = nil
	}
	if s.link != nil {
		close(s.link.done)
		s.link.conn.Close()
		s.link = nil
	}
	s.audio.reset()
}

func (s *Session) apply(e Event) {
	next, err := Transition(s.state, e)
	if err != nil {
		s.logger.Error("invalid state transition", "error", err)
		return
	}
	s.setState(next, e)
}

func (s *Session) setState(next State, e Event) {
	if next != s.state {
		s.logger.Debug("state change", "from", s.state, "to", next, "event", e)
	}
	s.state = next
}
