package event

import (
	"go.uber.org/zap"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case AcquisitionStarted:
		h.logger.Info("acquisition started",
			zap.String("asset", e.Key.Identifier),
			zap.String("resolution", e.Key.Resolution.String()),
			zap.String("url", e.URL),
		)
	case AcquisitionReady:
		h.logger.Info("acquisition ready",
			zap.String("asset", e.Key.Identifier),
			zap.String("resolution", e.Key.Resolution.String()),
			zap.String("local_path", e.LocalPath),
			zap.Int64("bytes", e.Bytes),
			zap.Int("files", e.Files),
			zap.Bool("cached", e.Cached),
			zap.Duration("duration", e.Timestamp.Sub(e.StartedAt)),
		)
	case AcquisitionFailed:
		h.logger.Warn("acquisition failed",
			zap.String("asset", e.Key.Identifier),
			zap.String("resolution", e.Key.Resolution.String()),
			zap.String("kind", string(e.Kind)),
			zap.String("error", e.Error),
			zap.Int64("bytes", e.Bytes),
		)
	case AcquisitionCancelled:
		h.logger.Info("acquisition cancelled",
			zap.String("asset", e.Key.Identifier),
			zap.String("resolution", e.Key.Resolution.String()),
			zap.Int64("bytes", e.Bytes),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns all events
func (h *LoggingHandler) HandledEvents() []string {
	return []string{NameAll}
}
