package events

import (
	"context"
	"encoding/json"
	"log/slog"
)

// NoopPublisher discards all events.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that drops everything.
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

// Publish implements Publisher.
func (p *NoopPublisher) Publish(ctx context.Context, event Event) error {
	return nil
}

// Close implements Publisher.
func (p *NoopPublisher) Close() error {
	return nil
}

// LogPublisher writes events to the process log. It is the default sink when
// no broker is configured.
type LogPublisher struct{}

// NewLogPublisher creates a publisher backed by the process log.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	slog.Info("[Events] publish", "subject", event.Subject(), "event", string(data))
	return nil
}

// Close implements Publisher.
func (p *LogPublisher) Close() error {
	return nil
}
