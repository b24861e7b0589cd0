package hub

import (
	"fmt"
	"log/slog"
)

// SubscriberError is a failure inside one subscriber's callback
type SubscriberError struct {
	Topic          Topic
	SubscriptionID string
	Err            error
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("subscriber %s on %s: %v", e.SubscriptionID, e.Topic, e.Err)
}

func (e *SubscriberError) Unwrap() error {
	return e.Err
}

// ErrorSink receives subscriber failures. It is called from the delivering
// goroutine and must not block for long.
type ErrorSink interface {
	HandleSubscriberError(err *SubscriberError)
}

type logSink struct {
	logger *slog.Logger
}

// NewLogSink reports subscriber failures through logger
func NewLogSink(logger *slog.Logger) ErrorSink {
	return &logSink{logger: logger}
}

func (s *logSink) HandleSubscriberError(err *SubscriberError) {
	s.logger.Error("subscriber failed",
		"topic", string(err.Topic),
		"subscription", err.SubscriptionID,
		"err", err.Err,
	)
}
