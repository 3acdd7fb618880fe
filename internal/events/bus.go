package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/opaline-simulator/internal/obs"
)

// Event is a domain event handed to every publisher.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Topic      string          `json:"topic"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher delivers events to one sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event Event) error
}

// Bus fans events out to downstream publishers. A failing publisher does not
// prevent delivery to the others.
type Bus struct {
	Publishers []Publisher
	Now        func() time.Time
}

// Emit builds the event and dispatches it to all configured publishers. The
// returned error joins every publisher failure.
func (b *Bus) Emit(ctx context.Context, topic, key string, payload any) (Event, error) {
	if b == nil {
		return Event{}, errors.New("events: bus not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	ev := Event{
		ID:         uuid.New(),
		Topic:      topic,
		Key:        key,
		OccurredAt: now().UTC(),
		Payload:    encoded,
	}
	var joined error
	for _, p := range b.Publishers {
		if p == nil {
			continue
		}
		err := p.Publish(ctx, ev)
		record(p.Name(), err)
		if err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: publish to %s: %w", p.Name(), err))
		}
	}
	return ev, joined
}

func record(sink string, err error) {
	if obs.EventsPublishedTotal == nil {
		return
	}
	result := "published"
	if err != nil {
		result = "error"
	}
	obs.EventsPublishedTotal.WithLabelValues(sink, result).Inc()
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		return validJSON(v)
	case []byte:
		return validJSON(v)
	default:
		return json.Marshal(v)
	}
}

func validJSON(data []byte) (json.RawMessage, error) {
	if len(data) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid json")
	}
	return append(json.RawMessage(nil), data...), nil
}
