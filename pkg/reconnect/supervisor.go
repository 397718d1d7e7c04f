package reconnect

import (
	"context"
	"log/slog"
	"time"

	"github.com/teslashibe/go-voicelink/pkg/loop"
	"github.com/teslashibe/go-voicelink/pkg/session"
	"github.com/teslashibe/go-voicelink/pkg/state"
)

// Connector is the connection being supervised.
type Connector interface {
	Dial(ctx context.Context) error
	ForceClose(reason string)
	SendPing() error
	GiveUp()
	Close() error
}

// Listener receives supervision events. All methods run on the event loop.
type Listener interface {
	// OnConnected reports an open connection.
	OnConnected()

	// OnDisconnected reports a lost connection or failed attempt. err is a
	// *session.CloseError for clean closes, which are not retried.
	OnDisconnected(err error)

	// OnReconnecting reports a scheduled retry.
	OnReconnecting(attempt int, delay time.Duration)

	// OnFailedPermanently reports that retries stopped.
	OnFailedPermanently()
}

// Supervisor drives a Connector. It is the only writer of the Connected,
// Reconnecting and FailedPermanently fields of the state vector. All
// methods must be called on the event loop.
type Supervisor struct {
	policy   Policy
	sched    loop.Scheduler
	conn     Connector
	listener Listener
	state    *state.Vector
	logger   *slog.Logger

	ctx      context.Context
	attempts int
	stopped  bool
	dialing  bool
	lastPong time.Time
	warned   bool

	connectTimer loop.Timer
	retryTimer   loop.Timer
	pingTimer    loop.Timer
}

// New creates a supervisor.
func New(policy Policy, sched loop.Scheduler, conn Connector, listener Listener, st *state.Vector, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		policy:   policy,
		sched:    sched,
		conn:     conn,
		listener: listener,
		state:    st,
		logger:   logger.With("component", "reconnect"),
		ctx:      context.Background(),
	}
}

// Start makes the first connection attempt. ctx bounds every dial.
func (s *Supervisor) Start(ctx context.Context) error {
	s.ctx = ctx
	s.stopped = false
	return s.Connect()
}

// Connect starts an attempt now unless the supervisor gave up.
func (s *Supervisor) Connect() error {
	if s.state.FailedPermanently {
		return ErrFailedPermanently
	}
	if s.stopped || s.state.Connected || s.dialing {
		return nil
	}

	stop(&s.retryTimer)
	stop(&s.connectTimer)

	if err := s.conn.Dial(s.ctx); err != nil {
		s.logger.Warn("dial rejected", "error", err)
		s.failure(err)
		return nil
	}
	s.dialing = true
	s.connectTimer = s.sched.After(s.policy.ConnectTimeout, s.connectTimedOut)
	return nil
}

func (s *Supervisor) connectTimedOut() {
	s.connectTimer = nil
	if !s.dialing {
		return
	}
	s.logger.Warn("connection attempt timed out", "timeout", s.policy.ConnectTimeout)
	s.dialing = false
	s.conn.ForceClose("connect timeout")
	s.failure(ErrConnectTimeout)
}

// Reset clears the failure counter and the terminal flag and connects
// again. It is the manual retry after a permanent failure.
func (s *Supervisor) Reset() error {
	if s.stopped {
		return nil
	}
	s.logger.Info("manual reset", "attempts", s.attempts)
	s.attempts = 0
	s.state.FailedPermanently = false
	return s.Connect()
}

// Stop closes the connection cleanly and cancels every timer.
func (s *Supervisor) Stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	s.dialing = false
	stop(&s.connectTimer)
	stop(&s.retryTimer)
	stop(&s.pingTimer)
	s.state.Connected = false
	s.state.Reconnecting = false
	s.conn.Close()
}

// Attempts returns the number of consecutive failures being retried.
func (s *Supervisor) Attempts() int {
	return s.attempts
}

// OnOpen implements session.ConnHandler.
func (s *Supervisor) OnOpen() {
	s.dialing = false
	stop(&s.connectTimer)
	stop(&s.retryTimer)

	s.attempts = 0
	s.state.FailedPermanently = false
	s.state.Reconnecting = false
	s.state.Connected = true

	s.lastPong = s.sched.Now()
	s.warned = false
	s.schedulePing()

	s.logger.Info("connected")
	s.listener.OnConnected()
}

// OnDialFailed implements session.ConnHandler.
func (s *Supervisor) OnDialFailed(err error) {
	if !s.dialing {
		return
	}
	s.dialing = false
	stop(&s.connectTimer)
	s.failure(err)
}

// OnClose implements session.ConnHandler.
func (s *Supervisor) OnClose(ce *session.CloseError) {
	stop(&s.pingTimer)
	s.state.Connected = false

	if ce.Clean || s.stopped {
		s.state.Reconnecting = false
		s.logger.Info("connection closed cleanly", "code", ce.Code)
		s.listener.OnDisconnected(ce)
		return
	}
	s.failure(ce)
}

// OnPong implements session.ConnHandler.
func (s *Supervisor) OnPong() {
	s.lastPong = s.sched.Now()
	if s.warned {
		s.logger.Info("keepalive recovered")
	}
	s.warned = false
}

func (s *Supervisor) failure(err error) {
	stop(&s.pingTimer)
	s.state.Connected = false
	if s.stopped {
		return
	}
	s.listener.OnDisconnected(err)

	if s.attempts >= s.policy.MaxAttempts {
		s.logger.Error("giving up after repeated failures", "attempts", s.attempts, "error", err)
		s.state.Reconnecting = false
		s.state.FailedPermanently = true
		s.conn.GiveUp()
		s.listener.OnFailedPermanently()
		return
	}

	delay := s.policy.NextDelay(s.attempts)
	s.attempts++
	s.scheduleRetry(delay, err)
}

func (s *Supervisor) scheduleRetry(delay time.Duration, err error) {
	s.state.Reconnecting = true
	s.logger.Warn("reconnecting", "attempt", s.attempts, "delay", delay, "error", err)
	s.listener.OnReconnecting(s.attempts, delay)

	stop(&s.retryTimer)
	s.retryTimer = s.sched.After(delay, func() {
		s.retryTimer = nil
		s.Connect()
	})
}

func (s *Supervisor) schedulePing() {
	stop(&s.pingTimer)
	s.pingTimer = s.sched.After(s.policy.PingInterval, s.keepalive)
}

func (s *Supervisor) keepalive() {
	s.pingTimer = nil
	if !s.state.Connected || s.stopped {
		return
	}

	silence := s.sched.Now().Sub(s.lastPong)
	switch {
	case silence > s.policy.DeadAfter():
		s.logger.Error("connection dead, no pong received", "silence", silence)
		s.state.Connected = false
		s.conn.ForceClose("keepalive timeout")
		s.listener.OnDisconnected(ErrKeepaliveTimeout)
		s.scheduleRetry(s.policy.DeadReconnectDelay, ErrKeepaliveTimeout)
		return
	case silence > s.policy.WarnAfter() && !s.warned:
		s.warned = true
		s.logger.Warn("no pong received", "silence", silence)
	}

	if err := s.conn.SendPing(); err != nil {
		s.logger.Warn("ping failed", "error", err)
	}
	s.schedulePing()
}

func stop(t *loop.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

var _ session.ConnHandler = (*Supervisor)(nil)
