// Package db is the hand-written repository layer for the orders,
// order_items, and outbox_events tables (§6.3). It follows the sqlc-style
// shape used throughout the teacher's services: a DBTX interface satisfied
// by both *pgxpool.Pool and pgx.Tx, a Queries struct wrapping it, and one
// Params struct per mutating query.
package db

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Order mirrors the orders table. UUID and numeric columns are carried as
// pgtype types at this layer; the repository package converts to/from the
// plain-string domain.Order at its boundary.
type Order struct {
	ID              pgtype.UUID
	UserID          string
	TotalAmount     pgtype.Numeric
	Currency        string
	ShippingAddress pgtype.Text
	Status          string
	TrackingNumber  pgtype.Text
	Carrier         pgtype.Text
	PaymentID       pgtype.Text
	CreatedAt       pgtype.Timestamptz
	UpdatedAt       pgtype.Timestamptz
	ConfirmedAt     pgtype.Timestamptz
	ShippedAt       pgtype.Timestamptz
}

// OrderItem mirrors the order_items table.
type OrderItem struct {
	ID        pgtype.UUID
	OrderID   pgtype.UUID
	ProductID string
	Quantity  int32
	Price     pgtype.Numeric
}

// OutboxEvent mirrors the outbox_events table.
//
// EventID is a plain string and TraceID, SpanID and ParentSpanID are
// pgtype.Text, rather than pgtype.UUID: this row round-trips through JSON (the relay marshals its
// payload, the lifecycle processor re-reads a prior row to recover trace
// context) and pgtype.UUID's JSON codec expects Postgres wire format, not a
// hex string, so a plain string avoids the zero-value deserialization bug
// the teacher's audit consumer documents against the same mistake.
type OutboxEvent struct {
	ID           pgtype.UUID
	EventID      string
	EventType    string
	Topic        string
	PartitionKey pgtype.Text
	AggregateID  pgtype.Text
	Payload      []byte
	Published    bool
	PublishedAt  pgtype.Timestamptz
	Attempts     int32
	LastError    pgtype.Text
	TraceID      pgtype.Text
	SpanID       pgtype.Text
	ParentSpanID pgtype.Text
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

// now wraps time.Now().UTC(). No query in this package reads it: every
// timestamp column is set by the database's own now().
var now = func() time.Time { return time.Now().UTC() }
