// Package events publishes domain events (procedure created, stock received,
// status changed) to Kafka after the database work that produced them has
// committed.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	ProcedureCreated       = "procedure.created"
	ProcedureStatusChanged = "procedure.status_changed"
	InventoryItemReceived  = "inventory.item_received"
	InventoryAdjusted      = "inventory.adjusted"
	InvoiceCreated         = "invoice.created"
	PatientRegistered      = "patient.registered"
	PatientUpdated         = "patient.updated"
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	TenantID   string    `json:"tenant_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`

	trace propagation.MapCarrier
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Emit publishes evt after the work that produced it has committed. A
// refused event cannot fail the request any more, so the error is logged on
// the request logger carried by ctx.
func Emit(ctx context.Context, p Publisher, evt Event) {
	if err := p.Publish(ctx, evt); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("event_type", evt.Type).
			Str("event_key", evt.Key).
			Str("tenant_id", evt.TenantID).
			Msg("event not published")
	}
}

// prepare fills the envelope and captures the caller's trace context, which
// is gone by the time the event is written.
func prepare(ctx context.Context, evt Event) Event {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	evt.trace = propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, evt.trace)
	return evt
}

func encode(evt Event) (kafka.Message, error) {
	value, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, err
	}
	headers := []kafka.Header{{Key: "event_type", Value: []byte(evt.Type)}}
	if evt.TenantID != "" {
		headers = append(headers, kafka.Header{Key: "tenant_id", Value: []byte(evt.TenantID)})
	}
	for k, v := range evt.trace {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Key:     []byte(evt.Key),
		Value:   value,
		Headers: headers,
		Time:    evt.OccurredAt,
	}, nil
}
