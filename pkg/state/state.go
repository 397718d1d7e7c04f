// Package state holds the consolidated session-state vector shared by the
// engine components. Every field has exactly one writer:
//
//	Connected, Reconnecting, FailedPermanently  reconnect supervisor
//	Listening                                   capture engine
//	PlayingAudio                                playback queue
//	WidgetOpen, Visual                          widget
//
// Readers take a Snapshot or read fields directly on the loop.
package state

import "fmt"

// Visual is the indicator shown to the user.
type Visual int

const (
	Idle Visual = iota
	Listening
	Speaking
)

func (v Visual) String() string {
	switch v {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Speaking:
		return "speaking"
	default:
		return fmt.Sprintf("visual(%d)", int(v))
	}
}

// Vector is the session-state value object. It is passed by pointer and
// only touched on the event loop.
type Vector struct {
	Connected         bool
	Listening         bool
	PlayingAudio      bool
	Reconnecting      bool
	WidgetOpen        bool
	FailedPermanently bool

	Visual Visual

	// Unread is set when a response arrives while the widget is closed.
	Unread bool
}

// CanListen reports whether capture may start.
func (v *Vector) CanListen() bool {
	return v.Connected && !v.Listening && !v.PlayingAudio && !v.Reconnecting && !v.FailedPermanently
}

// CanTransmit reports whether captured frames may be sent.
func (v *Vector) CanTransmit() bool {
	return v.Connected && v.Listening && !v.Reconnecting
}

// Snapshot returns a copy safe to hand to observers.
func (v *Vector) Snapshot() Vector {
	return *v
}

// Valid checks the cross-field invariants.
func (v Vector) Valid() error {
	if v.Listening && v.PlayingAudio {
		return fmt.Errorf("state: listening and playing at the same time")
	}
	if v.Listening && !v.Connected {
		return fmt.Errorf("state: listening while disconnected")
	}
	if v.Connected && v.Reconnecting {
		return fmt.Errorf("state: connected while reconnecting")
	}
	return nil
}

func (v Vector) String() string {
	return fmt.Sprintf("connected=%t listening=%t playing=%t reconnecting=%t open=%t failed=%t visual=%s",
		v.Connected, v.Listening, v.PlayingAudio, v.Reconnecting, v.WidgetOpen, v.FailedPermanently, v.Visual)
}
