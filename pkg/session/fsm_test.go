package session

import (
	"errors"
	"testing"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from    State
		event   Event
		want    State
		wantErr bool
	}{
		{Idle, EventDial, Connecting, false},
		{Connecting, EventOpened, Open, false},
		{Connecting, EventFailed, Connecting, false},
		{Connecting, EventDial, Connecting, false},
		{Open, EventLost, Connecting, false},
		{Open, EventCloseRequested, Closing, false},
		{Connecting, EventCloseRequested, Closing, false},
		{Closing, EventClosed, Closed, false},
		{Open, EventClosedClean, Closed, false},
		{Closed, EventDial, Connecting, false},
		{Open, EventGiveUp, Closed, false},
		{Connecting, EventGiveUp, Closed, false},
		{Idle, EventGiveUp, Closed, false},

		{Open, EventDial, Open, true},
		{Idle, EventOpened, Idle, true},
		{Closing, EventDial, Closing, true},
		{Closed, EventLost, Closed, true},
		{Idle, EventCloseRequested, Idle, true},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.event.String(), func(t *testing.T) {
			got, err := Transition(tt.from, tt.event)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transition() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Transition() = %v, want %v", got, tt.want)
			}
			var te *TransitionError
			if tt.wantErr && !errors.As(err, &te) {
				t.Errorf("error %T is not a TransitionError", err)
			}
		})
	}
}

func TestIsCleanClose(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{1000, true},
		{1001, true},
		{1006, false},
		{1011, false},
		{4000, false},
	}

	for _, tt := range tests {
		if got := IsCleanClose(tt.code); got != tt.want {
			t.Errorf("IsCleanClose(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
