package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Queries implements Querier against a DBTX — either *pgxpool.Pool for
// standalone reads or a pgx.Tx for the atomic multi-statement writes the
// outbox pattern requires. Call New(pool) for the former, New(tx) inside an
// open transaction for the latter, exactly as the teacher's db.New does.
type Queries struct {
	db DBTX
}

// New returns a Queries bound to db (a pool or an open transaction).
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// CreateOrderParams carries the fields needed to insert an orders row.
type CreateOrderParams struct {
	ID              pgtype.UUID
	UserID          string
	TotalAmount     pgtype.Numeric
	Currency        string
	ShippingAddress pgtype.Text
	Status          string
}

const createOrder = `
INSERT INTO orders (id, user_id, total_amount, currency, shipping_address, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now(), now())
RETURNING id, user_id, total_amount, currency, shipping_address, status,
          tracking_number, carrier, payment_id, created_at, updated_at, confirmed_at, shipped_at`

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder, arg.ID, arg.UserID, arg.TotalAmount, arg.Currency, arg.ShippingAddress, arg.Status)
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Currency, &o.ShippingAddress, &o.Status,
		&o.TrackingNumber, &o.Carrier, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.ShippedAt)
	return o, err
}

// CreateOrderItemParams carries the fields needed to insert an order_items row.
type CreateOrderItemParams struct {
	ID        pgtype.UUID
	OrderID   pgtype.UUID
	ProductID string
	Quantity  int32
	Price     pgtype.Numeric
}

const createOrderItem = `
INSERT INTO order_items (id, order_id, product_id, quantity, price)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_id, product_id, quantity, price`

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem, arg.ID, arg.OrderID, arg.ProductID, arg.Quantity, arg.Price)
	var item OrderItem
	err := row.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price)
	return item, err
}

const getOrder = `
SELECT id, user_id, total_amount, currency, shipping_address, status,
       tracking_number, carrier, payment_id, created_at, updated_at, confirmed_at, shipped_at
FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id pgtype.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, getOrder, id)
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Currency, &o.ShippingAddress, &o.Status,
		&o.TrackingNumber, &o.Carrier, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.ShippedAt)
	return o, err
}

const listOrderItems = `SELECT id, order_id, product_id, quantity, price FROM order_items WHERE order_id = $1`

func (q *Queries) ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListOrdersParams carries the §6.1 pagination parameters.
type ListOrdersParams struct {
	Skip  int32
	Limit int32
}

const listOrders = `
SELECT id, user_id, total_amount, currency, shipping_address, status,
       tracking_number, carrier, payment_id, created_at, updated_at, confirmed_at, shipped_at
FROM orders ORDER BY created_at DESC OFFSET $1 LIMIT $2`

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.Skip, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Currency, &o.ShippingAddress, &o.Status,
			&o.TrackingNumber, &o.Carrier, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.ShippedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ConfirmOrderParams transitions an order to confirmed (§3: payment_id set
// whenever confirmed_at is set).
type ConfirmOrderParams struct {
	ID        pgtype.UUID
	PaymentID pgtype.Text
}

const confirmOrder = `
UPDATE orders SET status = 'confirmed', payment_id = $2, confirmed_at = now(), updated_at = now()
WHERE id = $1 AND status = 'pending'
RETURNING id, user_id, total_amount, currency, shipping_address, status,
          tracking_number, carrier, payment_id, created_at, updated_at, confirmed_at, shipped_at`

func (q *Queries) ConfirmOrder(ctx context.Context, arg ConfirmOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, confirmOrder, arg.ID, arg.PaymentID)
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Currency, &o.ShippingAddress, &o.Status,
		&o.TrackingNumber, &o.Carrier, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.ShippedAt)
	return o, err
}

// ShipOrderParams transitions an order to shipped (§3: tracking_number and
// carrier set whenever shipped_at is set).
type ShipOrderParams struct {
	ID             pgtype.UUID
	TrackingNumber pgtype.Text
	Carrier        pgtype.Text
}

const shipOrder = `
UPDATE orders SET status = 'shipped', tracking_number = $2, carrier = $3, shipped_at = now(), updated_at = now()
WHERE id = $1 AND status = 'confirmed'
RETURNING id, user_id, total_amount, currency, shipping_address, status,
          tracking_number, carrier, payment_id, created_at, updated_at, confirmed_at, shipped_at`

func (q *Queries) ShipOrder(ctx context.Context, arg ShipOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, shipOrder, arg.ID, arg.TrackingNumber, arg.Carrier)
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Currency, &o.ShippingAddress, &o.Status,
		&o.TrackingNumber, &o.Carrier, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.ShippedAt)
	return o, err
}

// CancelOrderParams transitions an order to cancelled from pending or
// confirmed (the user.deleted consumer path).
type CancelOrderParams struct {
	ID pgtype.UUID
}

const cancelOrder = `
UPDATE orders SET status = 'cancelled', updated_at = now()
WHERE id = $1 AND status IN ('pending', 'confirmed')
RETURNING id, user_id, total_amount, currency, shipping_address, status,
          tracking_number, carrier, payment_id, created_at, updated_at, confirmed_at, shipped_at`

func (q *Queries) CancelOrder(ctx context.Context, arg CancelOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, cancelOrder, arg.ID)
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Currency, &o.ShippingAddress, &o.Status,
		&o.TrackingNumber, &o.Carrier, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.ShippedAt)
	return o, err
}

// listOrdersEligibleForConfirm locks one pending order past its confirm
// delay with FOR UPDATE SKIP LOCKED — the same per-row-transaction shape the
// relay uses, so the processor's confirm sweep never blocks behind a bad
// row (§4.5: "one order per transaction, so a bad row never blocks the
// batch").
const listOrdersEligibleForConfirm = `
SELECT id, user_id, total_amount, currency, shipping_address, status,
       tracking_number, carrier, payment_id, created_at, updated_at, confirmed_at, shipped_at
FROM orders WHERE status = 'pending' AND created_at <= $1
ORDER BY created_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED`

// ListOrdersEligibleForConfirm locks and returns at most one pending order
// older than olderThan, or nil if none are eligible right now.
func (q *Queries) ListOrdersEligibleForConfirm(ctx context.Context, olderThan time.Time) ([]Order, error) {
	return q.scanOrders(ctx, listOrdersEligibleForConfirm, olderThan)
}

const listOrdersEligibleForShip = `
SELECT id, user_id, total_amount, currency, shipping_address, status,
       tracking_number, carrier, payment_id, created_at, updated_at, confirmed_at, shipped_at
FROM orders WHERE status = 'confirmed' AND confirmed_at <= $1
ORDER BY confirmed_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED`

// ListOrdersEligibleForShip locks and returns at most one confirmed order
// old enough to ship, or nil if none are eligible right now.
func (q *Queries) ListOrdersEligibleForShip(ctx context.Context, olderThan time.Time) ([]Order, error) {
	return q.scanOrders(ctx, listOrdersEligibleForShip, olderThan)
}

const listOrdersByUserAndStatuses = `
SELECT id, user_id, total_amount, currency, shipping_address, status,
       tracking_number, carrier, payment_id, created_at, updated_at, confirmed_at, shipped_at
FROM orders WHERE user_id = $1 AND status = ANY($2) ORDER BY created_at ASC`

// ListOrdersByUserAndStatuses returns a user's orders currently in one of
// statuses, ordered by created_at — the event consumer's user.deleted
// cancellation path uses this to find orders still eligible to cancel
// (§4.6: status ∈ {pending, confirmed}).
func (q *Queries) ListOrdersByUserAndStatuses(ctx context.Context, userID string, statuses []string) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByUserAndStatuses, userID, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Currency, &o.ShippingAddress, &o.Status,
			&o.TrackingNumber, &o.Carrier, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.ShippedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (q *Queries) scanOrders(ctx context.Context, sql string, arg time.Time) ([]Order, error) {
	rows, err := q.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Currency, &o.ShippingAddress, &o.Status,
			&o.TrackingNumber, &o.Carrier, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.ShippedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
