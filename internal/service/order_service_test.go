package service

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/order-lifecycle/internal/cache"
	"github.com/arc-self/order-lifecycle/internal/directory"
	"github.com/arc-self/order-lifecycle/internal/outbox"
	"github.com/arc-self/order-lifecycle/internal/repository/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var orderColumns = []string{
	"id", "user_id", "total_amount", "currency", "shipping_address", "status",
	"tracking_number", "carrier", "payment_id", "created_at", "updated_at", "confirmed_at", "shipped_at",
}

var orderItemColumns = []string{"id", "order_id", "product_id", "quantity", "price"}

type fakeDirectory struct {
	user directory.User
	err  error
}

func (f *fakeDirectory) GetUser(ctx context.Context, userID string) (directory.User, error) {
	return f.user, f.err
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.New(rdb, 24*time.Hour, 7*24*time.Hour)
}

func TestCreateOrderInsertsOrderItemsAndOutboxAtomically(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := &fakeDirectory{user: directory.User{UserID: "user-1", Status: "active"}}
	c := newTestCache(t)
	store := outbox.NewStore()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "user-1", nil, "USD", nil, "pending",
			nil, nil, nil, nil, nil, nil, nil,
		))
	mock.ExpectQuery("INSERT INTO order_items").
		WillReturnRows(pgxmock.NewRows(orderItemColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "11111111-1111-1111-1111-111111111111", "product-1", int32(2), nil,
		))
	mock.ExpectQuery("INSERT INTO outbox_events").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "event_id", "event_type", "topic", "partition_key", "aggregate_id", "payload",
			"published", "published_at", "attempts", "last_error",
			"trace_id", "span_id", "parent_span_id", "created_at", "updated_at",
		}).AddRow(
			"11111111-1111-1111-1111-111111111111", "evt-1", "order.created", "order.created", "user-1", "order-1", []byte(`{}`),
			false, nil, int32(0), nil, nil, nil, nil, nil, nil,
		))
	mock.ExpectCommit()

	svc := NewOrderService(mock, db.New(mock), dir, c, store, nil)

	_, err = svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:      "user-1",
		TotalAmount: "19.98",
		Currency:    "USD",
		Items: []CreateOrderItem{
			{ProductID: "product-1", Quantity: 2, Price: "9.99"},
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderRejectsInactiveUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := &fakeDirectory{user: directory.User{UserID: "user-1", Status: "suspended"}}
	c := newTestCache(t)
	store := outbox.NewStore()

	svc := NewOrderService(mock, db.New(mock), dir, c, store, nil)

	_, err = svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:      "user-1",
		TotalAmount: "19.98",
		Currency:    "USD",
		Items:       []CreateOrderItem{{ProductID: "product-1", Quantity: 1, Price: "9.99"}},
	})
	require.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderRejectsMissingUserFromDirectory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := &fakeDirectory{err: directory.ErrUserNotFound}
	c := newTestCache(t)
	store := outbox.NewStore()

	svc := NewOrderService(mock, db.New(mock), dir, c, store, nil)

	_, err = svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:      "ghost",
		TotalAmount: "1.00",
		Currency:    "USD",
		Items:       []CreateOrderItem{{ProductID: "p", Quantity: 1, Price: "1.00"}},
	})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreateOrderRejectsZeroQuantity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := &fakeDirectory{user: directory.User{UserID: "user-1", Status: "active"}}
	c := newTestCache(t)
	store := outbox.NewStore()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "user-1", nil, "USD", nil, "pending",
			nil, nil, nil, nil, nil, nil, nil,
		))
	mock.ExpectRollback()

	svc := NewOrderService(mock, db.New(mock), dir, c, store, nil)

	_, err = svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:      "user-1",
		TotalAmount: "1.00",
		Currency:    "USD",
		Items:       []CreateOrderItem{{ProductID: "p", Quantity: 0, Price: "1.00"}},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}
