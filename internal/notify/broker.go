// Package notify delivers reconciler notifications to consumers: an
// in-process subscriber fan-out plus an optional Postgres NOTIFY forward
// for out-of-process listeners. Delivery is fire-and-forget; a slow
// subscriber drops events rather than blocking the reconciler.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/renraku/internal/ctxutil"
	"github.com/ashita-ai/renraku/internal/reconcile"
	"github.com/ashita-ai/renraku/internal/telemetry"
)

// Forwarder pushes an envelope onto an external notification channel.
// *storage.DB satisfies it via pg_notify.
type Forwarder interface {
	Notify(ctx context.Context, channel, payload string) error
}

// Envelope is the wire shape of one notification.
type Envelope struct {
	ID        string           `json:"id"`
	Event     string           `json:"event"`
	SessionID string           `json:"sessionId"`
	Status    reconcile.Status `json:"status"`
	Message   string           `json:"message,omitempty"`
	Data      any              `json:"data,omitempty"`
}

// Broker implements reconcile.Sink. Emit never returns an error; delivery
// problems are logged and swallowed so notification trouble cannot bleed
// into reconciliation.
type Broker struct {
	channel   string
	forwarder Forwarder
	logger    *slog.Logger
	emitted   metric.Int64Counter

	mu          sync.RWMutex
	subscribers map[chan Envelope]struct{}
}

// Option configures a Broker.
type Option func(*Broker)

// WithForwarder also forwards every envelope to an external channel,
// typically Postgres NOTIFY on storage.ChannelEvents.
func WithForwarder(f Forwarder, channel string) Option {
	return func(b *Broker) {
		b.forwarder = f
		b.channel = channel
	}
}

// NewBroker creates a broker with no subscribers.
func NewBroker(logger *slog.Logger, opts ...Option) *Broker {
	b := &Broker{
		logger:      logger,
		subscribers: make(map[chan Envelope]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.emitted, _ = telemetry.Meter("renraku/notify").Int64Counter("renraku.notifications.emitted",
		metric.WithDescription("Notifications emitted by the broker"))
	return b
}

// Subscribe returns a channel receiving every emitted envelope. The
// caller must call Unsubscribe when done.
func (b *Broker) Subscribe() chan Envelope {
	ch := make(chan Envelope, 64) // Buffer to avoid blocking Emit.
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan Envelope) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// Emit delivers one notification to all subscribers and, when configured,
// to the external channel. The envelope id is the context's correlation
// id when one is set, so all notifications born from one inbound event
// share it.
func (b *Broker) Emit(ctx context.Context, event, sessionID string, data any, status reconcile.Status, message string) {
	id := ctxutil.CorrelationID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	env := Envelope{
		ID:        id,
		Event:     event,
		SessionID: sessionID,
		Status:    status,
		Message:   message,
		Data:      data,
	}
	b.emitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("status", string(status)),
	))

	b.mu.RLock()
	for ch := range b.subscribers {
		select {
		case ch <- env:
		default:
			// Subscriber buffer full, drop this event for them.
		}
	}
	b.mu.RUnlock()

	if b.forwarder == nil {
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		b.logger.Error("notify: marshal envelope", "event", event, "error", err)
		return
	}
	if err := b.forwarder.Notify(ctx, b.channel, string(payload)); err != nil {
		b.logger.Warn("notify: forward failed", "event", event, "channel", b.channel, "error", err)
	}
}
