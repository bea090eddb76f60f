package loadtest

import (
	"time"

	"go.uber.org/zap"
)

// Event marks a point in the harness lifecycle.
type Event string

const (
	EventStartHatching Event = "start_hatching"
	EventHatchComplete Event = "hatch_complete"
	EventQuitting      Event = "quitting"
)

// EventInfo accompanies an event.
type EventInfo struct {
	Time  time.Time
	Test  string
	Users int
}

// Observer is notified of lifecycle events. Observers are passed to the
// harness in its Config.
type Observer interface {
	Notify(Event, EventInfo)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event, EventInfo)

func (f ObserverFunc) Notify(e Event, info EventInfo) { f(e, info) }

// EventMarker logs every event it sees in a stable format, so runs can be
// located in logs programmatically.
type EventMarker struct {
	logger *zap.Logger
}

// NewEventMarker creates a marker writing to logger.
func NewEventMarker(logger *zap.Logger) *EventMarker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventMarker{logger: logger}
}

func (m *EventMarker) Notify(e Event, info EventInfo) {
	m.logger.Info("loadtest event: "+string(e),
		zap.String("event", string(e)),
		zap.String("test", info.Test),
		zap.Int("users", info.Users),
		zap.Time("at", info.Time.UTC()),
	)
}
