package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes events to the structured log. It is the sink used when
// no broker is configured.
type LogPublisher struct {
	Logger zerolog.Logger
}

// Name implements Publisher.
func (LogPublisher) Name() string { return "log" }

// Publish implements Publisher.
func (l LogPublisher) Publish(_ context.Context, ev Event) error {
	l.Logger.Debug().
		Str("event_id", ev.ID.String()).
		Str("topic", ev.Topic).
		Str("key", ev.Key).
		RawJSON("payload", ev.Payload).
		Msg("domain_event")
	return nil
}
