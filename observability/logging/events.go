package logging

import (
	"log/slog"
	"sort"

	"daosplit/core/events"
)

// EventLogger writes every emitted event as a structured log line. Attribute
// values pass through MaskField so free-text fields stay out of the logs.
type EventLogger struct {
	logger *slog.Logger
}

// NewEventLogger returns an emitter logging to logger, or to the default
// logger when nil.
func NewEventLogger(logger *slog.Logger) *EventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLogger{logger: logger}
}

// Emit implements events.Emitter.
func (l *EventLogger) Emit(evt events.Event) {
	if l == nil || evt == nil {
		return
	}
	args := []any{slog.String("event", evt.EventType())}
	if payload, ok := evt.(events.Payload); ok {
		if rendered := payload.Event(); rendered != nil {
			keys := make([]string, 0, len(rendered.Attributes))
			for key := range rendered.Attributes {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				args = append(args, MaskField(key, rendered.Attributes[key]))
			}
		}
	}
	l.logger.Info("event", args...)
}
