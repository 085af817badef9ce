package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, letting callers pass
// either a pool (for single-statement reads) or an open transaction (for
// the atomic multi-statement writes the outbox pattern requires).
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Querier is the full set of queries this service issues against Postgres.
// Unit tests either embed it in a hand-rolled fake (internal/outbox) or
// back db.New with a pgxmock pool (service/relay/processor/consumer).
type Querier interface {
	CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error)
	CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error)
	GetOrder(ctx context.Context, id pgtype.UUID) (Order, error)
	ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]OrderItem, error)
	ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error)
	ConfirmOrder(ctx context.Context, arg ConfirmOrderParams) (Order, error)
	ShipOrder(ctx context.Context, arg ShipOrderParams) (Order, error)
	CancelOrder(ctx context.Context, arg CancelOrderParams) (Order, error)
	ListOrdersEligibleForConfirm(ctx context.Context, olderThan time.Time) ([]Order, error)
	ListOrdersEligibleForShip(ctx context.Context, olderThan time.Time) ([]Order, error)
	ListOrdersByUserAndStatuses(ctx context.Context, userID string, statuses []string) ([]Order, error)

	InsertOutboxEvent(ctx context.Context, arg InsertOutboxEventParams) (OutboxEvent, error)
	LockUnpublishedOutboxEvents(ctx context.Context, limit int32) ([]OutboxEvent, error)
	MarkOutboxEventPublished(ctx context.Context, id pgtype.UUID) error
	RecordOutboxEventFailure(ctx context.Context, arg RecordOutboxEventFailureParams) error
	GetOutboxEventByAggregateEventType(ctx context.Context, aggregateID, eventType string) (OutboxEvent, error)
	CountUnpublishedOutboxEvents(ctx context.Context) (int64, error)
}
