package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/noah-isme/opaline-simulator/internal/resilience"
)

// Message is a rendered email ready for delivery.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Transport delivers a single message. Implementations must honour ctx.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Outbox records messages in memory instead of sending them.
type Outbox struct {
	mu       sync.Mutex
	messages []Message
	// Err, when set, is returned by every Send and nothing is recorded.
	Err error
}

// Send records msg.
func (o *Outbox) Send(_ context.Context, msg Message) error {
	if o == nil {
		return errors.New("notify: outbox is nil")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.messages = append(o.messages, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.messages...)
}

// GuardedTransport short-circuits sends while the breaker is open.
type GuardedTransport struct {
	Next    Transport
	Breaker *resilience.Breaker
}

// Send implements Transport.
func (g GuardedTransport) Send(ctx context.Context, msg Message) error {
	if g.Next == nil {
		return errors.New("notify: transport not configured")
	}
	if g.Breaker == nil {
		return g.Next.Send(ctx, msg)
	}
	return g.Breaker.Execute(ctx, func(ctx context.Context) error {
		return g.Next.Send(ctx, msg)
	})
}
