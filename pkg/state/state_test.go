package state

import "testing"

func TestCanListen(t *testing.T) {
	tests := []struct {
		name string
		v    Vector
		want bool
	}{
		{"connected idle", Vector{Connected: true}, true},
		{"disconnected", Vector{}, false},
		{"already listening", Vector{Connected: true, Listening: true}, false},
		{"playing", Vector{Connected: true, PlayingAudio: true}, false},
		{"reconnecting", Vector{Reconnecting: true}, false},
		{"failed", Vector{Connected: true, FailedPermanently: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.CanListen(); got != tt.want {
				t.Errorf("CanListen() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name    string
		v       Vector
		wantErr bool
	}{
		{"zero", Vector{}, false},
		{"listening", Vector{Connected: true, Listening: true}, false},
		{"speaking", Vector{Connected: true, PlayingAudio: true, Visual: Speaking}, false},
		{"half duplex violated", Vector{Connected: true, Listening: true, PlayingAudio: true}, true},
		{"listening offline", Vector{Listening: true}, true},
		{"connected and reconnecting", Vector{Connected: true, Reconnecting: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.v.Valid(); (err != nil) != tt.wantErr {
				t.Errorf("Valid() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	v := &Vector{Connected: true}
	snap := v.Snapshot()
	v.Connected = false

	if !snap.Connected {
		t.Error("snapshot changed with the source vector")
	}
}

func TestVisualString(t *testing.T) {
	if Speaking.String() != "speaking" || Idle.String() != "idle" || Listening.String() != "listening" {
		t.Error("unexpected visual names")
	}
	if Visual(9).String() != "visual(9)" {
		t.Errorf("unknown visual = %q", Visual(9).String())
	}
}
