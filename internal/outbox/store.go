// Package outbox implements the §4.2 outbox store: inserting a row into the
// caller's open database transaction so that the business write and the
// event row become durable atomically.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arc-self/order-lifecycle/internal/domain"
	"github.com/arc-self/order-lifecycle/internal/repository"
	"github.com/arc-self/order-lifecycle/internal/repository/db"
	"github.com/arc-self/order-lifecycle/internal/tracing"
)

// InsertParams carries the caller-supplied fields for a new outbox row.
type InsertParams struct {
	EventType    string
	Topic        string
	PartitionKey string // optional; empty means no partition key
	AggregateID  string // optional; the order id, used to chain an order's lifecycle events
	Data         any    // marshalled into Envelope.Data
}

// Store inserts outbox rows. It holds no state: every method takes the
// caller's open Querier (bound to an in-flight transaction) so the insert
// participates in that transaction rather than starting its own.
type Store struct{}

// NewStore returns an outbox Store.
func NewStore() *Store {
	return &Store{}
}

// Insert mints an event_id, wraps payload in the standard envelope (§6.2),
// captures the current trace context if any, and inserts the row via q.
// It never commits — that is the caller's responsibility.
func (s *Store) Insert(ctx context.Context, q db.Querier, params InsertParams) (domain.OutboxEvent, error) {
	eventID := uuid.NewString()
	now := time.Now().UTC()

	dataRaw, err := json.Marshal(params.Data)
	if err != nil {
		return domain.OutboxEvent{}, fmt.Errorf("marshal event data: %w", err)
	}

	envelope := domain.Envelope{
		EventID:   eventID,
		EventType: params.EventType,
		Timestamp: now.Format(time.RFC3339),
		Version:   domain.EnvelopeVersion,
		Data:      dataRaw,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return domain.OutboxEvent{}, fmt.Errorf("marshal envelope: %w", err)
	}

	arg := db.InsertOutboxEventParams{
		ID:           repository.NewUUID(),
		EventID:      eventID,
		EventType:    params.EventType,
		Topic:        params.Topic,
		PartitionKey: repository.Text(params.PartitionKey),
		AggregateID:  repository.Text(params.AggregateID),
		Payload:      payload,
	}

	if tc, ok := tracing.FromContext(ctx); ok {
		arg.TraceID = repository.Text(tc.TraceID)
		arg.SpanID = repository.Text(tc.SpanID)
		arg.ParentSpanID = repository.Text(tc.ParentSpanID)
	}

	row, err := q.InsertOutboxEvent(ctx, arg)
	if err != nil {
		return domain.OutboxEvent{}, fmt.Errorf("insert outbox event: %w", err)
	}

	return domain.OutboxEvent{
		ID:           repository.UUIDString(row.ID),
		EventID:      row.EventID,
		EventType:    row.EventType,
		Topic:        row.Topic,
		PartitionKey: row.PartitionKey.String,
		AggregateID:  row.AggregateID.String,
		Payload:      row.Payload,
		Published:    row.Published,
		Attempts:     row.Attempts,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
	}, nil
}
