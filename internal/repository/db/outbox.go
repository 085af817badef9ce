package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// InsertOutboxEventParams carries the fields needed to insert an
// outbox_events row inside the same transaction as the business write that
// produced it (§4.2).
type InsertOutboxEventParams struct {
	ID           pgtype.UUID
	EventID      string
	EventType    string
	Topic        string
	PartitionKey pgtype.Text
	AggregateID  pgtype.Text
	Payload      []byte
	TraceID      pgtype.Text
	SpanID       pgtype.Text
	ParentSpanID pgtype.Text
}

const insertOutboxEvent = `
INSERT INTO outbox_events (id, event_id, event_type, topic, partition_key, aggregate_id, payload,
                            published, attempts, trace_id, span_id, parent_span_id,
                            created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, false, 0, $8, $9, $10, now(), now())
RETURNING id, event_id, event_type, topic, partition_key, aggregate_id, payload, published, published_at,
          attempts, last_error, trace_id, span_id, parent_span_id, created_at, updated_at`

func (q *Queries) InsertOutboxEvent(ctx context.Context, arg InsertOutboxEventParams) (OutboxEvent, error) {
	row := q.db.QueryRow(ctx, insertOutboxEvent, arg.ID, arg.EventID, arg.EventType, arg.Topic,
		arg.PartitionKey, arg.AggregateID, arg.Payload, arg.TraceID, arg.SpanID, arg.ParentSpanID)
	return scanOutboxEvent(row)
}

// lockUnpublishedOutboxEvents selects a batch of unpublished rows with
// FOR UPDATE SKIP LOCKED so concurrent relay replicas never contend for the
// same row or block behind one another's in-flight transaction (§4.4, §5).
const lockUnpublishedOutboxEvents = `
SELECT id, event_id, event_type, topic, partition_key, aggregate_id, payload, published, published_at,
       attempts, last_error, trace_id, span_id, parent_span_id, created_at, updated_at
FROM outbox_events
WHERE published = false
ORDER BY created_at ASC
LIMIT $1
FOR UPDATE SKIP LOCKED`

func (q *Queries) LockUnpublishedOutboxEvents(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := q.db.Query(ctx, lockUnpublishedOutboxEvents, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		e, err := scanOutboxEventRows(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

const markOutboxEventPublished = `
UPDATE outbox_events SET published = true, published_at = now(), updated_at = now() WHERE id = $1`

// MarkOutboxEventPublished finalizes a row: once published=true the row is
// immutable (§3) — the relay must never call this twice for the same id
// within one batch.
func (q *Queries) MarkOutboxEventPublished(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, markOutboxEventPublished, id)
	return err
}

// RecordOutboxEventFailureParams carries the fields written when a publish
// attempt fails: attempts increments monotonically and last_error is
// truncated by the caller to the configured bound before being passed here.
type RecordOutboxEventFailureParams struct {
	ID        pgtype.UUID
	LastError string
}

const recordOutboxEventFailure = `
UPDATE outbox_events SET attempts = attempts + 1, last_error = $2, updated_at = now() WHERE id = $1`

func (q *Queries) RecordOutboxEventFailure(ctx context.Context, arg RecordOutboxEventFailureParams) error {
	_, err := q.db.Exec(ctx, recordOutboxEventFailure, arg.ID, arg.LastError)
	return err
}

const getOutboxEventByAggregateEventType = `
SELECT id, event_id, event_type, topic, partition_key, aggregate_id, payload, published, published_at,
       attempts, last_error, trace_id, span_id, parent_span_id, created_at, updated_at
FROM outbox_events WHERE aggregate_id = $1 AND event_type = $2 ORDER BY created_at ASC LIMIT 1`

// GetOutboxEventByAggregateEventType finds the originating outbox row for an
// order (aggregateID is the order id) and event type — the lifecycle
// processor uses this to recover the order.created trace context so the
// whole lifecycle shares one trace (§4.5, §9).
func (q *Queries) GetOutboxEventByAggregateEventType(ctx context.Context, aggregateID, eventType string) (OutboxEvent, error) {
	row := q.db.QueryRow(ctx, getOutboxEventByAggregateEventType, aggregateID, eventType)
	return scanOutboxEvent(row)
}

const countUnpublishedOutboxEvents = `SELECT count(*) FROM outbox_events WHERE published = false`

// CountUnpublishedOutboxEvents backs the outbox-backlog gauge (§4.8).
func (q *Queries) CountUnpublishedOutboxEvents(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countUnpublishedOutboxEvents).Scan(&n)
	return n, err
}

// rowScanner is satisfied by both pgx.Row (QueryRow) and pgx.Rows (Query),
// letting scanOutboxEvent share its Scan call across both call sites.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOutboxEvent(row rowScanner) (OutboxEvent, error) {
	var e OutboxEvent
	err := row.Scan(&e.ID, &e.EventID, &e.EventType, &e.Topic, &e.PartitionKey, &e.AggregateID, &e.Payload,
		&e.Published, &e.PublishedAt, &e.Attempts, &e.LastError, &e.TraceID, &e.SpanID,
		&e.ParentSpanID, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func scanOutboxEventRows(rows rowScanner) (OutboxEvent, error) {
	return scanOutboxEvent(rows)
}
