package session

import "fmt"

// State is the connection lifecycle state.
type State int

const (
	Idle State = iota
	Connecting
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event drives a state transition.
type Event int

const (
	// EventDial starts a connection attempt.
	EventDial Event = iota
	// EventOpened reports a completed handshake.
	EventOpened
	// EventFailed reports a failed or abandoned attempt; a retry may follow.
	EventFailed
	// EventLost reports an unexpected closure of an open connection.
	EventLost
	// EventCloseRequested starts a clean local close.
	EventCloseRequested
	// EventClosed reports that a requested close completed.
	EventClosed
	// EventClosedClean reports a normal closure initiated by the peer.
	EventClosedClean
	// EventGiveUp stops reconnecting for good.
	EventGiveUp
)

func (e Event) String() string {
	switch e {
	case EventDial:
		return "dial"
	case EventOpened:
		return "opened"
	case EventFailed:
		return "failed"
	case EventLost:
		return "lost"
	case EventCloseRequested:
		return "close-requested"
	case EventClosed:
		return "closed"
	case EventClosedClean:
		return "closed-clean"
	case EventGiveUp:
		return "give-up"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// TransitionError is returned for an event that is not valid in a state.
type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: invalid transition %s on %s", e.Event, e.From)
}

type edge struct {
	from  State
	event Event
}

var transitions = map[edge]State{
	{Idle, EventDial}:                 Connecting,
	{Closed, EventDial}:               Connecting,
	{Connecting, EventDial}:           Connecting,
	{Connecting, EventOpened}:         Open,
	{Connecting, EventFailed}:         Connecting,
	{Open, EventLost}:                 Connecting,
	{Open, EventFailed}:               Connecting,
	{Open, EventCloseRequested}:       Closing,
	{Connecting, EventCloseRequested}: Closing,
	{Closing, EventClosed}:            Closed,
	{Open, EventClosedClean}:          Closed,
}

// Transition returns the state reached from s on e. It performs no I/O.
func Transition(s State, e Event) (State, error) {
	if e == EventGiveUp {
		return Closed, nil
	}
	next, ok := transitions[edge{s, e}]
	if !ok {
		return s, &TransitionError{From: s, Event: e}
	}
	return next, nil
}
