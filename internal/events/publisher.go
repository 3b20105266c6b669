// Package events publishes invoice lifecycle events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Event types.
const (
	EventInvoiceCreated           = "invoice_created"
	EventInvoiceUpdated           = "invoice_updated"
	EventInvoiceDeleted           = "invoice_deleted"
	EventInvoiceApproved          = "invoice_approved"
	EventInvoiceRejected          = "invoice_rejected"
	EventPaymentMethodProvisioned = "payment_method_provisioned"
)

// Conn is the part of a NATS connection the publisher uses.
type Conn interface {
	Publish(subj string, data []byte) error
}

// Publisher publishes lifecycle events on <prefix>.<event_type>.
//
// All publish operations are non-fatal: errors are logged and never
// propagated, so an unavailable broker never fails an invoice mutation.
type Publisher struct {
	conn   Conn
	prefix string
	log    zerolog.Logger
	now    func() time.Time
}

// Event is the JSON document published to NATS.
type Event struct {
	EventType  string         `json:"event_type"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id,omitempty"`
	InvoiceID  string         `json:"invoice_id,omitempty"`
	Kind       string         `json:"kind,omitempty"`
	FromStatus string         `json:"from_status,omitempty"`
	ToStatus   string         `json:"to_status,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// NewPublisher creates a publisher. A nil conn yields a publisher that
// drops every event.
func NewPublisher(conn Conn, prefix string, log zerolog.Logger) *Publisher {
	if prefix == "" {
		prefix = "payables"
	}
	return &Publisher{conn: conn, prefix: prefix, log: log, now: time.Now}
}

// Connect dials NATS and returns the connection. An empty url returns nil
// and no error so the service can run without a broker.
func Connect(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// Subject returns the subject an event type is published on.
func (p *Publisher) Subject(eventType string) string {
	return fmt.Sprintf("%s.%s", p.prefix, eventType)
}

// Publish sends ev. It never fails the caller.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if p == nil || p.conn == nil {
		return
	}
	if ctx.Err() != nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = p.now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", ev.EventType).Msg("Failed to marshal event")
		return
	}

	subject := p.Subject(ev.EventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("invoice_id", ev.InvoiceID).
			Msg("Failed to publish event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("invoice_id", ev.InvoiceID).
		Msg("Event published")
}
