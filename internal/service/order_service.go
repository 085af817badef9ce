// Package service implements the order API handler's business logic (§4.7):
// validating the user, then opening one database transaction that writes the
// order, its items, and the order.created outbox row atomically.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arc-self/order-lifecycle/internal/cache"
	"github.com/arc-self/order-lifecycle/internal/directory"
	"github.com/arc-self/order-lifecycle/internal/domain"
	"github.com/arc-self/order-lifecycle/internal/outbox"
	"github.com/arc-self/order-lifecycle/internal/repository"
	"github.com/arc-self/order-lifecycle/internal/repository/db"
	"github.com/arc-self/order-lifecycle/internal/telemetry"
)

// ErrUserNotFound is returned when the user is missing or inactive — the
// handler maps this to HTTP 404 (§4.7, §7 PolicyViolation).
var ErrUserNotFound = errors.New("user not found or not active")

// ErrInvalidInput is returned for caller errors not worth a DB round-trip.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// CreateOrderItem is one line item on an incoming order.
type CreateOrderItem struct {
	ProductID string
	Quantity  int32
	Price     string
}

// CreateOrderInput carries the caller-supplied fields for a new order.
type CreateOrderInput struct {
	UserID          string
	TotalAmount     string
	Currency        string
	ShippingAddress *string
	Items           []CreateOrderItem
}

// OrderService is the interface the HTTP handler depends on.
type OrderService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, skip, limit int32) ([]domain.Order, error)
}

// beginner is satisfied by *pgxpool.Pool in production and by pgxmock's
// mocked pool in tests — the same narrow-interface-over-pgxpool idiom
// wolfman30-medspa-ai-platform uses for its own transactional code.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type orderService struct {
	pool      beginner
	querier   db.Querier
	directory directory.Client
	cache     *cache.Cache
	outbox    *outbox.Store
	metrics   *telemetry.Metrics
}

// NewOrderService wires together the dependencies CreateOrder/GetOrder/
// ListOrders need. metrics may be nil in tests that don't assert on it.
func NewOrderService(pool beginner, q db.Querier, dirClient directory.Client, c *cache.Cache, store *outbox.Store, metrics *telemetry.Metrics) OrderService {
	return &orderService{pool: pool, querier: q, directory: dirClient, cache: c, outbox: store, metrics: metrics}
}

// CreateOrder validates the user (cache-aside over the directory
// collaborator), then atomically inserts the order, its items, and an
// order.created outbox row (§4.7). Any failure before commit aborts both
// writes.
func (s *orderService) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	if in.UserID == "" || len(in.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: user_id and at least one item are required", ErrInvalidInput)
	}

	if err := s.validateUser(ctx, in.UserID); err != nil {
		return domain.Order{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	qtx := db.New(tx)

	totalAmount, err := repository.Numeric(in.TotalAmount)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: total_amount: %v", ErrInvalidInput, err)
	}

	row, err := qtx.CreateOrder(ctx, db.CreateOrderParams{
		ID:              repository.NewUUID(),
		UserID:          in.UserID,
		TotalAmount:     totalAmount,
		Currency:        in.Currency,
		ShippingAddress: repository.OptionalText(in.ShippingAddress),
		Status:          string(domain.OrderStatusPending),
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	var items []db.OrderItem
	var itemData []domain.OrderItemData
	for _, reqItem := range in.Items {
		if reqItem.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: item quantity must be > 0", ErrInvalidInput)
		}
		price, err := repository.Numeric(reqItem.Price)
		if err != nil {
			return domain.Order{}, fmt.Errorf("%w: item price: %v", ErrInvalidInput, err)
		}
		item, err := qtx.CreateOrderItem(ctx, db.CreateOrderItemParams{
			ID:        repository.NewUUID(),
			OrderID:   row.ID,
			ProductID: reqItem.ProductID,
			Quantity:  reqItem.Quantity,
			Price:     price,
		})
		if err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
		items = append(items, item)
		itemData = append(itemData, domain.OrderItemData{
			ProductID: reqItem.ProductID,
			Quantity:  reqItem.Quantity,
			Price:     reqItem.Price,
		})
	}

	orderID := repository.UUIDString(row.ID)
	createdAt := row.CreatedAt.Time
	if !row.CreatedAt.Valid {
		createdAt = time.Now().UTC()
	}

	if _, err := s.outbox.Insert(ctx, qtx, outbox.InsertParams{
		EventType:    domain.EventOrderCreated,
		Topic:        domain.EventOrderCreated,
		PartitionKey: in.UserID,
		AggregateID:  orderID,
		Data: domain.OrderCreatedData{
			OrderID:         orderID,
			UserID:          in.UserID,
			Status:          string(domain.OrderStatusPending),
			TotalAmount:     in.TotalAmount,
			Currency:        in.Currency,
			ShippingAddress: in.ShippingAddress,
			Items:           itemData,
			CreatedAt:       createdAt.Format(time.RFC3339),
		},
	}); err != nil {
		return domain.Order{}, fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("commit tx: %w", err)
	}

	return repository.ToDomainOrder(row, items), nil
}

// validateUser is the cache-aside lookup: check the cache first, fall back
// to the directory collaborator on a miss, and populate the cache on
// success (§4.7, §6.4).
func (s *orderService) validateUser(ctx context.Context, userID string) error {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ValidationLatency.Observe(time.Since(start).Seconds())
		}
	}()

	if user, ok, err := s.cache.GetUser(ctx, userID); err == nil && ok {
		if user.Status != "active" {
			return ErrUserNotFound
		}
		return nil
	}

	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("directory lookup: %w", err)
	}
	if user.Status != "active" {
		return ErrUserNotFound
	}

	_ = s.cache.SetUser(ctx, user) // best-effort; a cache write failure must not fail order creation
	return nil
}

// GetOrder returns a single order with its items eagerly loaded.
func (s *orderService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	orderID, err := repository.ParseUUID(id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: invalid order id", ErrInvalidInput)
	}

	row, err := s.querier.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	items, err := s.querier.ListOrderItems(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("list order items: %w", err)
	}
	return repository.ToDomainOrder(row, items), nil
}

// ListOrders returns a page of orders ordered by created_at desc (§6.1).
func (s *orderService) ListOrders(ctx context.Context, skip, limit int32) ([]domain.Order, error) {
	rows, err := s.querier.ListOrders(ctx, db.ListOrdersParams{Skip: skip, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		items, err := s.querier.ListOrderItems(ctx, row.ID)
		if err != nil {
			return nil, fmt.Errorf("list order items: %w", err)
		}
		orders = append(orders, repository.ToDomainOrder(row, items))
	}
	return orders, nil
}
