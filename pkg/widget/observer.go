package widget

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-voicelink/pkg/state"
)

// Observer receives user-facing notifications. Calls are made on the event
// loop and must not block.
type Observer interface {
	// StateChanged reports a new state vector.
	StateChanged(v state.Vector)

	// ShowMessage displays a transient message for duration. An empty text
	// hides the current message.
	ShowMessage(text string, duration time.Duration)

	// ShowError displays an error. Persistent errors stay until the user
	// acts, for example by calling Retry.
	ShowError(text string, persistent bool)
}

// LevelObserver is implemented by observers that draw level meters.
type LevelObserver interface {
	Levels(levels []float64)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) StateChanged(state.Vector)         {}
func (NopObserver) ShowMessage(string, time.Duration) {}
func (NopObserver) ShowError(string, bool)            {}

// LogObserver writes notifications to a logger.
type LogObserver struct {
	Logger *slog.Logger
}

// NewLogObserver returns an observer that logs to logger.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{Logger: logger.With("component", "ui")}
}

func (o *LogObserver) StateChanged(v state.Vector) {
	o.Logger.Info("state", "visual", v.Visual.String(),
		"connected", v.Connected,
		"listening", v.Listening,
		"playing", v.PlayingAudio,
		"reconnecting", v.Reconnecting,
		"open", v.WidgetOpen,
		"failed", v.FailedPermanently,
		"unread", v.Unread,
	)
}

func (o *LogObserver) ShowMessage(text string, duration time.Duration) {
	if text == "" {
		return
	}
	o.Logger.Info("message", "text", text, "duration", duration)
}

func (o *LogObserver) ShowError(text string, persistent bool) {
	o.Logger.Error("error", "text", text, "persistent", persistent)
}

func (o *LogObserver) Levels(levels []float64) {
	o.Logger.Debug("levels", "bars", levels)
}

var (
	_ Observer      = NopObserver{}
	_ Observer      = (*LogObserver)(nil)
	_ LevelObserver = (*LogObserver)(nil)
)
